package cmd

import (
	"fmt"
	"os"

	"github.com/jctechlabs/jarvis/agent"
	"github.com/jctechlabs/jarvis/config"
	"github.com/jctechlabs/jarvis/constants/lipgloss"
	"github.com/jctechlabs/jarvis/engine"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RootDependencies holds everything the daemon needs after bootstrap.
type RootDependencies struct {
	Config *config.Config
	Logger *zap.SugaredLogger
	Core   *engine.Core
	Agent  *agent.Agent
}

var rootCmd = &cobra.Command{
	Use:   "jarvis",
	Short: "Watches a queue folder and answers requirement files with an AI model.",
	Long: `jarvis is a long-running agent that watches a queue folder for text
files, assembles a prompt environment per session folder from settings,
context and task files, sends each requirement to the configured AI
endpoint, and writes the reply next to the input. Ad-hoc chat messages can
be posted to the embedded web endpoint and are answered over WebSocket.`,
	Run: func(cmd *cobra.Command, args []string) {
		if version, _ := cmd.Flags().GetBool("version"); version {
			fmt.Println(agent.Version)
			return
		}

		deps, err := bootstrap(cmd)
		if err != nil {
			fmt.Println(lipgloss.Red.Render(fmt.Sprintf("%v", err)))
			os.Exit(1)
		}
		runDaemon(deps)
	},
}

func init() {
	config.InitFlags(rootCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads the config and builds the logger, engine core and agent.
// Any error here is a startup config failure (exit 1).
func bootstrap(cmd *cobra.Command) (*RootDependencies, error) {
	cfg, warnings, err := config.Load(cmd.Root())
	for _, warning := range warnings {
		fmt.Println(lipgloss.Yellow.Render(warning))
	}
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	core := engine.New(cfg, logger)
	return &RootDependencies{
		Config: cfg,
		Logger: logger,
		Core:   core,
		Agent:  agent.New(core, logger),
	}, nil
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	zapCfg := zap.NewProductionConfig()
	if verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// runDaemon starts the agent and spins the engine run loop until shutdown.
func runDaemon(deps *RootDependencies) {
	pterm.DefaultBasicText.Println(lipgloss.BoxStyle.Render(
		fmt.Sprintf("jarvis %s\nqueue: %s\nendpoint: %s (%s)\npress q to quit",
			agent.Version, deps.Config.QueueFolder, deps.Config.API().URL, deps.Config.API().InterfaceType)))

	spinner, _ := pterm.DefaultSpinner.
		WithStyle(pterm.NewStyle(pterm.FgLightBlue)).
		WithRemoveWhenDone(true).
		Start("Starting watcher and web server...")

	if err := deps.Agent.OnStart(); err != nil {
		spinner.Stop()
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("startup failed: %v", err)))
		os.Exit(1)
	}
	spinner.Stop()
	pterm.Success.Println("jarvis is watching", deps.Config.QueueFolder)

	deps.Core.Run(deps.Agent)

	deps.Agent.OnShutdown()
	deps.Core.Shutdown()
	_ = deps.Logger.Sync()
	pterm.Info.Println("jarvis stopped")
}
