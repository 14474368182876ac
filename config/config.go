package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InterfaceType selects the request/reply dialect of an API endpoint.
type InterfaceType int

const (
	API1 InterfaceType = iota // chat-completions style
	API2                      // responses style
)

func (t InterfaceType) String() string {
	switch t {
	case API1:
		return "API1"
	case API2:
		return "API2"
	default:
		return "Unknown"
	}
}

// ParseInterfaceType maps the config string onto an InterfaceType.
func ParseInterfaceType(s string) (InterfaceType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "API1":
		return API1, nil
	case "API2":
		return API2, nil
	default:
		return API1, fmt.Errorf("unknown interface type %q", s)
	}
}

// APIInterface is one configured endpoint.
type APIInterface struct {
	URL           string `mapstructure:"url"`
	Model         string `mapstructure:"model"`
	InterfaceType string `mapstructure:"interface type"`
}

// Config is the engine configuration loaded from the JSON config file.
// The keys carry spaces; viper matches them without regard to case.
type Config struct {
	QueueFolder   string         `mapstructure:"queue folder"`
	MaxThreads    int            `mapstructure:"max threads"`
	SleepTimeMS   int            `mapstructure:"engine sleep time in run loop in ms"`
	Verbose       bool           `mapstructure:"verbose"`
	APIInterfaces []APIInterface `mapstructure:"api interfaces"`
	APIIndex      int            `mapstructure:"api index"`
	MaxFileSizeKB int            `mapstructure:"max file size kB"`
}

// Defaults for out-of-range or missing numeric options.
const (
	DefaultMaxThreads    = 16
	DefaultSleepTimeMS   = 10
	DefaultMaxFileSizeKB = 512
)

// cfgFile holds the path to the configuration file (set via CLI)
var cfgFile string

// InitFlags registers the persistent flags on the root command.
func InitFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./config.json", "Path to the JSON configuration file.")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable trace-level logging.")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version and exit.")
}

// Load reads the config file, applies defaults, binds environment variables
// and flags, and validates the result. Clamped values produce warnings; a
// non-nil error is fatal for startup.
func Load(rootCmd *cobra.Command) (*Config, []string, error) {
	v := viper.New()

	v.SetDefault("max threads", DefaultMaxThreads)
	v.SetDefault("engine sleep time in run loop in ms", DefaultSleepTimeMS)
	v.SetDefault("max file size kB", DefaultMaxFileSizeKB)
	v.SetDefault("api index", 0)
	v.SetDefault("verbose", false)

	v.AutomaticEnv()
	_ = v.BindEnv("queue folder", "QUEUE_FOLDER")
	_ = v.BindEnv("verbose", "VERBOSE")

	_ = v.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	v.SetConfigFile(cfgFile)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("decode config: %w", err)
	}

	warnings := cfg.check()
	if err := cfg.validate(); err != nil {
		return nil, warnings, err
	}
	return &cfg, warnings, nil
}

// check clamps out-of-range numeric options back to their defaults and
// returns one warning per fixup.
func (c *Config) check() []string {
	var warnings []string

	if c.MaxThreads < 1 || c.MaxThreads > 256 {
		warnings = append(warnings, fmt.Sprintf("max threads %d out of range [1,256], using default %d", c.MaxThreads, DefaultMaxThreads))
		c.MaxThreads = DefaultMaxThreads
	}
	if c.SleepTimeMS < 1 || c.SleepTimeMS > 256 {
		warnings = append(warnings, fmt.Sprintf("engine sleep time %d ms out of range [1,256], using default %d", c.SleepTimeMS, DefaultSleepTimeMS))
		c.SleepTimeMS = DefaultSleepTimeMS
	}
	if c.MaxFileSizeKB < 1 {
		warnings = append(warnings, fmt.Sprintf("max file size %d kB invalid, using default %d", c.MaxFileSizeKB, DefaultMaxFileSizeKB))
		c.MaxFileSizeKB = DefaultMaxFileSizeKB
	}
	if len(c.APIInterfaces) > 0 && (c.APIIndex < 0 || c.APIIndex >= len(c.APIInterfaces)) {
		warnings = append(warnings, fmt.Sprintf("api index %d out of range, using 0", c.APIIndex))
		c.APIIndex = 0
	}
	return warnings
}

// validate reports the fatal conditions: no queue folder, no API
// interfaces, an API interface without a url, or an unparseable interface
// type.
func (c *Config) validate() error {
	if c.QueueFolder == "" {
		return fmt.Errorf("config: 'queue folder' is required")
	}
	if len(c.APIInterfaces) == 0 {
		return fmt.Errorf("config: 'api interfaces' must not be empty")
	}
	for i, api := range c.APIInterfaces {
		if api.URL == "" {
			return fmt.Errorf("config: 'api interfaces'[%d] is missing a url", i)
		}
		if _, err := ParseInterfaceType(api.InterfaceType); err != nil {
			return fmt.Errorf("config: 'api interfaces'[%d]: %w", i, err)
		}
	}
	return nil
}

// API returns the selected endpoint entry.
func (c *Config) API() APIInterface {
	return c.APIInterfaces[c.APIIndex]
}

// Dialect returns the parsed interface type of the selected endpoint.
func (c *Config) Dialect() InterfaceType {
	t, _ := ParseInterfaceType(c.API().InterfaceType)
	return t
}
