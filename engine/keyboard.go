package engine

import (
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/jctechlabs/jarvis/event"
	"github.com/jctechlabs/jarvis/threadpool"
	"go.uber.org/zap"
)

// keyboardInput reads single bytes from stdin on a pool worker and turns
// them into KeyPressed events. Reads use a deadline so the worker can
// observe its stop flag; if stdin does not support deadlines (a regular
// file, for example) the worker exits and only SIGINT remains for
// shutdown.
type keyboardInput struct {
	events *event.Queue
	log    *zap.SugaredLogger
	stop   atomic.Bool
	task   *threadpool.Handle
}

func newKeyboardInput(events *event.Queue, log *zap.SugaredLogger) *keyboardInput {
	return &keyboardInput{events: events, log: log}
}

func (k *keyboardInput) start(pool *threadpool.Pool) {
	k.task = pool.Submit(k.run)
}

func (k *keyboardInput) requestStop() {
	k.stop.Store(true)
}

func (k *keyboardInput) run() bool {
	buf := make([]byte, 1)
	for !k.stop.Load() {
		if err := os.Stdin.SetReadDeadline(time.Now().Add(250 * time.Millisecond)); err != nil {
			k.log.Debugw("stdin does not support read deadlines, keyboard input disabled", "error", err)
			return true
		}
		n, err := os.Stdin.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			k.log.Debugw("keyboard input closed", "error", err)
			return true
		}
		if n == 1 {
			k.events.Push(event.NewKeyPressed(buf[0]))
		}
	}
	return true
}
