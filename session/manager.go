package session

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jctechlabs/jarvis/config"
	"github.com/jctechlabs/jarvis/event"
	"github.com/jctechlabs/jarvis/providers"
	"github.com/jctechlabs/jarvis/threadpool"
	tokens "github.com/jctechlabs/jarvis/tokens/contracts"
	"github.com/jctechlabs/jarvis/tracker"
	"github.com/jctechlabs/jarvis/utils"
	"go.uber.org/zap"
)

// Deps are the collaborators a session manager needs. Query task closures
// capture plain values only, never the manager itself, so the manager can
// be mutated freely on the main goroutine while tasks run.
type Deps struct {
	Pool       *threadpool.Pool
	Events     *event.Queue
	Tokens     tokens.ITokenManagement
	MaxThreads int
	StartupNS  int64
	Dialect    config.InterfaceType
	URL        string
	Model      string
	MaxFileKB  int64
	Log        *zap.SugaredLogger
}

// Manager orchestrates one session: it owns the session's categorizer,
// environment, state machine and the in-flight query handles. All methods
// run on the main goroutine.
type Manager struct {
	name        string
	deps        Deps
	categorizer *tracker.Categorizer
	environment Environment
	machine     *StateMachine

	settings string
	context  string
	tasks    string

	handles   []*threadpool.Handle
	completed int

	log *zap.SugaredLogger
}

// NewManager creates the session for one queue sub-folder.
func NewManager(name string, deps Deps) *Manager {
	log := deps.Log.With("session", filepath.Base(name))
	return &Manager{
		name:        name,
		deps:        deps,
		categorizer: tracker.NewCategorizer(deps.StartupNS, deps.MaxFileKB, log),
		machine:     NewStateMachine(log),
		log:         log,
	}
}

func (m *Manager) Name() string { return m.name }

// Status is a point-in-time snapshot for the status endpoint.
type Status struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	InFlight  int    `json:"inflight"`
	Completed int    `json:"completed"`
}

func (m *Manager) Status() Status {
	return Status{
		Name:      m.name,
		State:     m.machine.State().String(),
		InFlight:  len(m.handles),
		Completed: m.completed,
	}
}

// IsIdle reports whether the session has nothing outstanding.
func (m *Manager) IsIdle() bool {
	return m.machine.State() == AllResponsesReceived
}

// OnEvent routes one filesystem event into the categorizer.
func (m *Manager) OnEvent(e event.Event) {
	switch e.Kind {
	case event.FileAdded:
		m.log.Infow("new file detected", "path", e.Path)
		m.categorizer.Add(e.Path)
	case event.FileModified:
		m.categorizer.Modify(e.Path)
	case event.FileRemoved:
		m.categorizer.Remove(e.Path)
	}
}

// OnUpdate is the per-tick dispatch procedure: refresh categories, assemble
// the environment, propagate environment changes to the requirements, reap
// finished queries, advance the state machine, then dispatch what is due
// under the admission cap.
func (m *Manager) OnUpdate() {
	envChanged := m.refreshEnvironment()

	if envChanged {
		m.remarkRequirements()
	}

	m.reapInFlight()

	requirements := m.categorizer.Files().Requirements
	m.machine.Update(StateInfo{
		EnvironmentChanged:   m.environment.Dirty(),
		EnvironmentComplete:  m.environment.Complete(),
		QueriesChanged:       requirements.ModifiedCount() != 0,
		AllQueriesSent:       requirements.ModifiedCount() == 0,
		AllResponsesReceived: len(m.handles) == 0,
	})

	// limit in-flight queries to 1.5x the configured thread count; the pool
	// queue is unbounded, the cap keeps queue memory in check
	limit := int(1.5 * float64(m.deps.MaxThreads))
	if !m.environment.Complete() || len(m.handles) >= limit {
		return
	}

	dispatched := 0
	requirements.Walk(func(f *tracker.TrackedFile) {
		if len(m.handles) >= limit {
			// at the cap; leave the file modified so the next tick retries
			return
		}
		if !f.IsModified() {
			return
		}
		if m.dispatchIfStale(f) {
			dispatched++
		} else {
			// considered this tick, whether sent or not
			f.MarkModified(false)
			requirements.DecrementModified()
		}
	})

	// a fresh environment with no stale outputs must not replay forever
	if dispatched == 0 && m.environment.Dirty() {
		m.environment.ClearDirty()
	}
}

// OnShutdown logs the final session summary and the categorized files.
func (m *Manager) OnShutdown() {
	m.log.Infow("session shutting down",
		"state", m.machine.State().String(),
		"completed", m.completed,
		"inflight", len(m.handles))
	for _, set := range m.categorizer.Files().All() {
		set.WalkSorted(func(f *tracker.TrackedFile) {
			m.log.Infow("categorized file", "category", f.Category().String(), "path", f.Path())
		})
	}
}

// refreshEnvironment rebuilds the cached Settings/Context/Tasks strings for
// every dirty set and reassembles the environment. Returns whether the
// environment changed: the combined string differs, or the environment has
// just become complete.
func (m *Manager) refreshEnvironment() bool {
	refreshed := false

	if set := m.categorizer.Files().Settings; set.Dirty() {
		m.settings = m.collectCategory(set)
		set.SetDirty(false)
		refreshed = true
	}
	if set := m.categorizer.Files().Context; set.Dirty() {
		m.context = m.collectCategory(set)
		set.SetDirty(false)
		refreshed = true
	}
	if set := m.categorizer.Files().Tasks; set.Dirty() {
		m.tasks = m.collectCategory(set)
		set.SetDirty(false)
		refreshed = true
	}

	if !refreshed {
		return false
	}
	wasComplete := m.environment.Complete()
	changed := m.environment.Assemble(m.settings, m.context, m.tasks, m.newestInputTime())
	// becoming complete counts as a change even when the combined string
	// matches the cached one
	return changed || (!wasComplete && m.environment.Complete())
}

// collectCategory concatenates a set's content in path order, clearing the
// modified flags and counter as it goes.
func (m *Manager) collectCategory(set *tracker.TrackedFileSet) string {
	var combined strings.Builder
	set.WalkSorted(func(f *tracker.TrackedFile) {
		wasModified := f.IsModified()
		content, err := f.ContentAndClearModified()
		if err != nil {
			m.log.Warnw("failed to read tracked file", "path", f.Path(), "error", err)
		} else {
			combined.WriteString(content)
		}
		if wasModified {
			set.DecrementModified()
		}
	})
	return combined.String()
}

// newestInputTime finds the newest last-write time across the Settings,
// Context and Task files.
func (m *Manager) newestInputTime() time.Time {
	var newest time.Time
	files := m.categorizer.Files()
	for _, set := range []*tracker.TrackedFileSet{files.Settings, files.Context, files.Tasks} {
		set.Walk(func(f *tracker.TrackedFile) {
			if info, err := os.Stat(f.Path()); err == nil && info.ModTime().After(newest) {
				newest = info.ModTime()
			}
		})
	}
	return newest
}

// remarkRequirements marks every requirement modified so each is re-sent
// against the changed environment.
func (m *Manager) remarkRequirements() {
	requirements := m.categorizer.Files().Requirements
	requirements.Walk(func(f *tracker.TrackedFile) {
		if !f.IsModified() {
			f.MarkModified(true)
			requirements.IncrementModified()
		}
	})
}

// reapInFlight collects finished query handles. A failed query raises an
// AppErrorBadNetwork event; the requirement stays non-modified and is only
// retried when its input or the environment changes.
func (m *Manager) reapInFlight() {
	remaining := m.handles[:0]
	for _, h := range m.handles {
		if !h.PollReady() {
			remaining = append(remaining, h)
			continue
		}
		m.completed++
		if !h.Take() {
			m.deps.Events.Push(event.NewAppErrorBadNetwork())
		}
	}
	m.handles = remaining
}

// dispatchIfStale runs the per-requirement staleness check and submits a
// query when the input is newer than the existing output. Returns whether
// a query was dispatched. The modified flag and counter are settled here
// for the dispatch case.
func (m *Manager) dispatchIfStale(f *tracker.TrackedFile) bool {
	outputPath := OutputPath(f.Path())

	outInfo, err := os.Stat(outputPath)
	if err == nil {
		inputNewest := m.environment.Timestamp()
		if reqInfo, statErr := os.Stat(f.Path()); statErr == nil && reqInfo.ModTime().After(inputNewest) {
			inputNewest = reqInfo.ModTime()
		}
		if !inputNewest.After(outInfo.ModTime()) {
			return false
		}
	}

	message := m.environment.Take()
	content, err := f.ContentAndClearModified()
	if err != nil {
		// the caller settles the modified flag and counter for skips
		m.log.Warnw("failed to read requirement", "path", f.Path(), "error", err)
		return false
	}
	m.categorizer.Files().Requirements.DecrementModified()
	message += content

	body := providers.BuildRequestBody(m.deps.Dialect, m.deps.Model, message, false)

	// the closure captures values only; the session is never touched from
	// a pool worker
	url := m.deps.URL
	dialect := m.deps.Dialect
	tm := m.deps.Tokens
	log := m.log
	m.handles = append(m.handles, m.deps.Pool.Submit(func() bool {
		return runQuery(url, body, dialect, outputPath, tm, log)
	}))
	m.log.Infow("query dispatched", "requirement", f.Path())
	return true
}

// runQuery executes one query on a pool worker: POST the request, decode
// the reply, write the content blocks to the output file.
func runQuery(url, body string, dialect config.InterfaceType, outputPath string, tm tokens.ITokenManagement, log *zap.SugaredLogger) bool {
	replyBody, err := providers.Query(url, body)
	if err != nil {
		log.Errorw("query failed", "url", url, "error", err)
		return false
	}

	parser := providers.NewReplyParser(dialect, replyBody, tm, log)
	count := parser.HasContent()
	if count == 0 {
		log.Errorw("reply had no content", "url", url)
		return false
	}

	var text strings.Builder
	for i := 0; i < count; i++ {
		text.WriteString(parser.GetContent(i))
	}
	if err := utils.WriteFileAtomic(outputPath, []byte(text.String())); err != nil {
		log.Errorw("failed to write output file", "path", outputPath, "error", err)
		return false
	}
	log.Infow("output written", "path", outputPath)
	return true
}

// OutputPath derives the reply file path for an input: <stem>.output<ext>.
func OutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	stem := strings.TrimSuffix(inputPath, ext)
	return stem + ".output" + ext
}
