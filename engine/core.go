package engine

import (
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/jctechlabs/jarvis/config"
	"github.com/jctechlabs/jarvis/event"
	"github.com/jctechlabs/jarvis/threadpool"
	"go.uber.org/zap"
)

// Application is the contract the core drives: update once per tick,
// receive unhandled events, report when finished.
type Application interface {
	OnStart() error
	OnUpdate()
	OnEvent(e *event.Event)
	OnShutdown()
	IsFinished() bool
}

// threadsRequiredByApp reserves workers for the file watcher, keyboard
// input and web server so query tasks cannot starve infrastructure.
const threadsRequiredByApp = 3

// Core owns the engine-side resources: configuration, the event queue, the
// worker pool and the startup timestamp. The run loop lives here.
type Core struct {
	cfg       *config.Config
	events    *event.Queue
	pool      *threadpool.Pool
	keyboard  *keyboardInput
	startupNS int64
	sleep     time.Duration
	log       *zap.SugaredLogger

	shutdownSeen bool
	sigintCount  atomic.Int32
}

// New builds a core from a validated configuration. The startup timestamp
// is captured once here and read-only afterwards.
func New(cfg *config.Config, log *zap.SugaredLogger) *Core {
	sleep := time.Duration(cfg.SleepTimeMS) * time.Millisecond
	if sleep < time.Millisecond {
		sleep = time.Millisecond
	}
	if sleep > 256*time.Millisecond {
		sleep = 256 * time.Millisecond
	}

	c := &Core{
		cfg:       cfg,
		events:    event.NewQueue(),
		pool:      threadpool.New(cfg.MaxThreads + threadsRequiredByApp),
		startupNS: time.Now().UnixNano(),
		sleep:     sleep,
		log:       log,
	}
	c.keyboard = newKeyboardInput(c.events, log)
	return c
}

func (c *Core) Config() *config.Config    { return c.cfg }
func (c *Core) Events() *event.Queue      { return c.events }
func (c *Core) Pool() *threadpool.Pool    { return c.pool }
func (c *Core) StartupTimestamp() int64   { return c.startupNS }
func (c *Core) SleepDuration() time.Duration { return c.sleep }

// Run drives the application until it reports finished or a shutdown event
// is observed. The first SIGINT converts into a shutdown event; a second
// one forces the process out.
func (c *Core) Run(app Application) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	defer close(sigCh) // after Stop, so the handler goroutine exits
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if c.sigintCount.Add(1) >= 2 {
				c.log.Warnw("second interrupt, forcing exit")
				os.Exit(1)
			}
			c.log.Infow("interrupt received, requesting shutdown")
			c.events.Push(event.NewEngineShutdown())
		}
	}()

	c.keyboard.start(c.pool)

	for {
		app.OnUpdate()

		c.dispatchEvents(app)

		if app.IsFinished() || c.shutdownSeen {
			break
		}

		time.Sleep(c.sleep)
	}

	// one more drain so events pushed during the last tick are not lost
	c.dispatchEvents(app)
}

// dispatchEvents drains the queue once. Engine-level handlers run first;
// app-level handlers only see events that are still unhandled.
func (c *Core) dispatchEvents(app Application) {
	for _, e := range c.events.DrainAll() {
		c.handleEngineEvent(&e)
		if !e.Handled {
			app.OnEvent(&e)
		}
	}
}

func (c *Core) handleEngineEvent(e *event.Event) {
	switch e.Kind {
	case event.EngineShutdown:
		// noted here, but left for the application so it can finish too
		c.shutdownSeen = true
	case event.AppErrorBadNetwork:
		c.log.Errorw("network error reported by a query task")
		e.Handled = true
	case event.KeyPressed:
		if e.Key == 'q' || e.Key == 'Q' {
			c.log.Infow("quit key pressed, requesting shutdown")
			c.events.Push(event.NewEngineShutdown())
		}
		e.Handled = true
	}
}

// Shutdown stops the long-lived workers and waits for every outstanding
// task before returning.
func (c *Core) Shutdown() {
	c.keyboard.requestStop()
	c.pool.Shutdown()
}
