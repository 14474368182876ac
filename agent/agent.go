package agent

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/jctechlabs/jarvis/chat"
	"github.com/jctechlabs/jarvis/engine"
	"github.com/jctechlabs/jarvis/event"
	"github.com/jctechlabs/jarvis/session"
	"github.com/jctechlabs/jarvis/tokens"
	tokencontracts "github.com/jctechlabs/jarvis/tokens/contracts"
	"github.com/jctechlabs/jarvis/tracker"
	"github.com/jctechlabs/jarvis/watcher"
	"github.com/jctechlabs/jarvis/web"
	"go.uber.org/zap"
)

// Version of the agent, stamped into the startup banner.
const Version = "0.9.0"

// DefaultWebAddr is where the chat endpoint listens.
const DefaultWebAddr = ":8080"

// DefaultChatPoolSize is the initial chat slot count.
const DefaultChatPoolSize = 16

// Agent is the application driven by the engine core: it owns the session
// managers, the chat message pool and the web server, and it routes
// filesystem events through the startup-time correlation filter.
type Agent struct {
	core     *engine.Core
	sessions map[string]*session.Manager
	chatPool *chat.MessagePool
	webSrv   *web.Server
	watch    *watcher.Watcher
	tokens   tokencontracts.ITokenManagement
	log      *zap.SugaredLogger
	finished bool

	// statusCache decouples the web server's status reads from main-thread
	// session state
	statusMu    sync.RWMutex
	statusCache []session.Status
}

// New wires the application. The web server doubles as the chat pool's
// broadcaster.
func New(core *engine.Core, log *zap.SugaredLogger) *Agent {
	a := &Agent{
		core:     core,
		sessions: make(map[string]*session.Manager),
		tokens:   tokens.NewTokenManager(),
		log:      log,
	}
	a.webSrv = web.NewServer(DefaultWebAddr, core.Config().QueueFolder, a, log)
	a.chatPool = chat.NewMessagePool(DefaultChatPoolSize, chat.DefaultGrowThreshold, a.webSrv, log)
	a.webSrv.SetMessagePool(a.chatPool)
	a.watch = watcher.New(core.Config().QueueFolder, watcher.DefaultInterval, core.Events(), log)
	return a
}

// OnStart launches the long-lived workers: file watcher and web server.
func (a *Agent) OnStart() error {
	a.log.Infow("starting agent", "version", Version, "queue", a.core.Config().QueueFolder)

	if _, err := os.Stat(a.core.Config().QueueFolder); err != nil {
		return err
	}

	a.watch.Start(a.core.Pool())
	a.webSrv.Start(a.core.Pool())
	return nil
}

// OnUpdate drives every session dispatcher and expires stale chat entries.
func (a *Agent) OnUpdate() {
	for _, s := range a.sessions {
		s.OnUpdate()
	}
	a.chatPool.ExpireOld()
	a.refreshStatusCache()
}

func (a *Agent) refreshStatusCache() {
	statuses := make([]session.Status, 0, len(a.sessions))
	for _, s := range a.sessions {
		statuses = append(statuses, s.Status())
	}
	a.statusMu.Lock()
	a.statusCache = statuses
	a.statusMu.Unlock()
}

// OnEvent handles app-level events: shutdown marks the agent finished;
// filesystem events run through the correlation filter and then into the
// owning session.
func (a *Agent) OnEvent(e *event.Event) {
	if e.Kind == event.EngineShutdown {
		a.log.Infow("agent received shutdown request")
		a.finished = true
		e.Handled = true
		return
	}

	if !e.IsFileSystem() {
		return
	}

	if a.filterCorrelationFile(e) {
		e.Handled = true
		return
	}

	sessionName := filepath.Dir(e.Path)
	s, ok := a.sessions[sessionName]
	if !ok {
		s = session.NewManager(sessionName, session.Deps{
			Pool:       a.core.Pool(),
			Events:     a.core.Events(),
			Tokens:     a.tokens,
			MaxThreads: a.core.Config().MaxThreads,
			StartupNS:  a.core.StartupTimestamp(),
			Dialect:    a.core.Config().Dialect(),
			URL:        a.core.Config().API().URL,
			Model:      a.core.Config().API().Model,
			MaxFileKB:  int64(a.core.Config().MaxFileSizeKB),
			Log:        a.log,
		})
		a.sessions[sessionName] = s
	}
	s.OnEvent(*e)
	e.Handled = true
}

// filterCorrelationFile short-circuits PROB files: stale ones are dropped,
// reply files are routed into the chat pool and never reach a session.
// Returns whether the event was consumed.
func (a *Agent) filterCorrelationFile(e *event.Event) bool {
	info, ok := tracker.ParseProbFilename(filepath.Base(e.Path))
	if !ok {
		return false
	}

	if info.Timestamp < a.core.StartupTimestamp() {
		// stale leftover from a previous run
		return true
	}

	if !info.IsOutput {
		// fresh chat input, handled as a normal requirement
		return false
	}

	if e.Kind == event.FileRemoved {
		return true
	}

	body, err := os.ReadFile(e.Path)
	if err != nil {
		a.log.Warnw("failed to read chat answer file", "path", e.Path, "error", err)
		return true
	}
	a.chatPool.MarkAnswered(info.ID, string(body))
	return true
}

// OnShutdown stops the long-lived workers and prints the final summary.
func (a *Agent) OnShutdown() {
	a.log.Infow("leaving agent")
	a.watch.Stop()
	a.webSrv.Stop()
	for _, s := range a.sessions {
		s.OnShutdown()
	}
	a.tokens.DisplayTokens(a.core.Config().API().Model)
}

// IsFinished reports whether a shutdown request was received.
func (a *Agent) IsFinished() bool { return a.finished }

// StatusSnapshot implements web.StatusSource. It serves the cached
// per-tick snapshot so the web worker never touches live session state.
func (a *Agent) StatusSnapshot() any {
	a.statusMu.RLock()
	statuses := a.statusCache
	a.statusMu.RUnlock()
	if statuses == nil {
		statuses = []session.Status{}
	}
	total, input, output := a.tokens.GetCurrentTokenUsage()
	return map[string]any{
		"sessions":     statuses,
		"active chats": a.chatPool.ActiveCount(),
		"tokens": map[string]int{
			"total":  total,
			"input":  input,
			"output": output,
		},
	}
}
