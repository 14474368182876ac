package session

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jctechlabs/jarvis/config"
	"github.com/jctechlabs/jarvis/event"
	"github.com/jctechlabs/jarvis/threadpool"
	"github.com/jctechlabs/jarvis/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const api1Reply = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1,
	"model": "test-model",
	"choices": [
		{"index": 0, "message": {"role": "assistant", "content": "REPLY"}, "finish_reason": "stop"}
	],
	"usage": {"prompt_tokens": 3, "completion_tokens": 5, "total_tokens": 8}
}`

// fakeAPI records every request body it sees and answers like an API1
// endpoint.
type fakeAPI struct {
	mu     sync.Mutex
	bodies []string
	reply  string
	status int
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	io.WriteString(w, f.reply)
}

func (f *fakeAPI) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func (f *fakeAPI) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return ""
	}
	return f.bodies[len(f.bodies)-1]
}

type managerFixture struct {
	dir     string
	manager *Manager
	pool    *threadpool.Pool
	events  *event.Queue
	api     *fakeAPI
	server  *httptest.Server
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	api := &fakeAPI{reply: api1Reply}
	server := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(server.Close)

	pool := threadpool.New(4)
	t.Cleanup(pool.Shutdown)

	events := event.NewQueue()
	dir := t.TempDir()

	m := NewManager(dir, Deps{
		Pool:       pool,
		Events:     events,
		Tokens:     tokens.NewTokenManager(),
		MaxThreads: 2,
		StartupNS:  time.Now().UnixNano(),
		Dialect:    config.API1,
		URL:        server.URL,
		Model:      "test-model",
		MaxFileKB:  64,
		Log:        zap.NewNop().Sugar(),
	})

	return &managerFixture{dir: dir, manager: m, pool: pool, events: events, api: api, server: server}
}

func (fx *managerFixture) addFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(fx.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	fx.manager.OnEvent(event.NewFileAdded(path))
	return path
}

func (fx *managerFixture) modifyFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(fx.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	fx.manager.OnEvent(event.NewFileModified(path))
	return path
}

// tickUntil spins the dispatcher until the condition holds.
func tickUntil(t *testing.T, m *Manager, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		m.OnUpdate()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestFreshSessionDispatchesAndWritesOutput(t *testing.T) {
	fx := newManagerFixture(t)

	fx.addFile(t, "STNG_a.txt", "S")
	fx.addFile(t, "CNTX_b.txt", "C")
	fx.addFile(t, "TASK_c.txt", "T")
	req := fx.addFile(t, "req1.txt", "R")

	outputPath := OutputPath(req)
	tickUntil(t, fx.manager, func() bool { return fileExists(outputPath) })

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "REPLY", string(data))

	assert.Equal(t, 1, fx.api.requestCount())
	assert.Contains(t, fx.api.lastBody(), `"content": "SCTR"`)
	assert.Contains(t, fx.api.lastBody(), `"model": "test-model"`)

	tickUntil(t, fx.manager, fx.manager.IsIdle)
	assert.Equal(t, 1, fx.manager.Status().Completed)
}

func TestIdenticalModificationDoesNotRedispatch(t *testing.T) {
	fx := newManagerFixture(t)

	fx.addFile(t, "STNG_a.txt", "S")
	fx.addFile(t, "CNTX_b.txt", "C")
	fx.addFile(t, "TASK_c.txt", "T")
	req := fx.addFile(t, "req1.txt", "R")

	tickUntil(t, fx.manager, func() bool { return fileExists(OutputPath(req)) })
	tickUntil(t, fx.manager, fx.manager.IsIdle)

	// byte-identical rewrite: the hash check absorbs the event
	fx.modifyFile(t, "STNG_a.txt", "S")
	for i := 0; i < 20; i++ {
		fx.manager.OnUpdate()
	}

	assert.Equal(t, 1, fx.api.requestCount())
	assert.True(t, fx.manager.IsIdle())
}

func TestEnvironmentChangeRefansOutRequirements(t *testing.T) {
	fx := newManagerFixture(t)

	fx.addFile(t, "STNG_a.txt", "S")
	fx.addFile(t, "CNTX_b.txt", "C")
	fx.addFile(t, "TASK_c.txt", "T")
	req := fx.addFile(t, "req1.txt", "R")

	outputPath := OutputPath(req)
	tickUntil(t, fx.manager, func() bool { return fileExists(outputPath) })
	tickUntil(t, fx.manager, fx.manager.IsIdle)

	// file mtime resolution can be coarse; keep the rewrite clearly newer
	time.Sleep(20 * time.Millisecond)
	fx.modifyFile(t, "CNTX_b.txt", "C2")

	tickUntil(t, fx.manager, func() bool { return fx.api.requestCount() >= 2 })
	assert.Contains(t, fx.api.lastBody(), `"content": "SC2TR"`)

	tickUntil(t, fx.manager, fx.manager.IsIdle)
	assert.Equal(t, 2, fx.manager.Status().Completed)
}

func TestUpToDateOutputIsNotDispatched(t *testing.T) {
	fx := newManagerFixture(t)

	fx.addFile(t, "STNG_a.txt", "S")
	fx.addFile(t, "CNTX_b.txt", "C")
	fx.addFile(t, "TASK_c.txt", "T")

	// requirement whose output is newer than both the input and the
	// environment must not be sent
	req := filepath.Join(fx.dir, "req2.txt")
	require.NoError(t, os.WriteFile(req, []byte("R2"), 0o644))
	outputPath := OutputPath(req)
	require.NoError(t, os.WriteFile(outputPath, []byte("cached"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(outputPath, future, future))

	fx.manager.OnEvent(event.NewFileAdded(req))
	for i := 0; i < 20; i++ {
		fx.manager.OnUpdate()
	}

	assert.Equal(t, 0, fx.api.requestCount())
	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))
}

func TestFailedQueryRaisesNetworkErrorEvent(t *testing.T) {
	fx := newManagerFixture(t)
	fx.api.reply = `{"error": {"message": "quota exceeded", "type": "insufficient_quota", "code": "quota"}}`
	fx.api.status = http.StatusTooManyRequests

	fx.addFile(t, "STNG_a.txt", "S")
	fx.addFile(t, "CNTX_b.txt", "C")
	fx.addFile(t, "TASK_c.txt", "T")
	req := fx.addFile(t, "req1.txt", "R")

	tickUntil(t, fx.manager, func() bool {
		for _, e := range fx.events.DrainAll() {
			if e.Kind == event.AppErrorBadNetwork {
				return true
			}
		}
		return false
	})

	assert.False(t, fileExists(OutputPath(req)))
	// the requirement stays non-modified; no retry until inputs change
	for i := 0; i < 10; i++ {
		fx.manager.OnUpdate()
	}
	assert.Equal(t, 1, fx.api.requestCount())
}

func TestIncompleteEnvironmentHoldsDispatch(t *testing.T) {
	fx := newManagerFixture(t)

	fx.addFile(t, "STNG_a.txt", "S")
	fx.addFile(t, "TASK_c.txt", "T")
	fx.addFile(t, "req1.txt", "R")

	for i := 0; i < 10; i++ {
		fx.manager.OnUpdate()
	}
	assert.Equal(t, 0, fx.api.requestCount())
	assert.Equal(t, "CompilingEnvironment", fx.manager.Status().State)

	// the missing piece arrives and the query goes out
	fx.addFile(t, "CNTX_b.txt", "C")
	tickUntil(t, fx.manager, func() bool { return fx.api.requestCount() == 1 })
}

func TestInFlightCapIsEnforced(t *testing.T) {
	fx := newManagerFixture(t)

	// a slow endpoint keeps queries in flight
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, api1Reply)
	}))
	defer slow.Close()
	defer close(release)
	fx.manager.deps.URL = slow.URL

	fx.addFile(t, "STNG_a.txt", "S")
	fx.addFile(t, "CNTX_b.txt", "C")
	fx.addFile(t, "TASK_c.txt", "T")
	for i := 0; i < 10; i++ {
		fx.addFile(t, "req"+string(rune('a'+i))+".txt", "R")
	}

	for i := 0; i < 10; i++ {
		fx.manager.OnUpdate()
	}

	// max threads 2 -> cap is 3
	assert.LessOrEqual(t, fx.manager.Status().InFlight, 3)
}

func TestEnvironmentCompletionRemarksRequirements(t *testing.T) {
	fx := newManagerFixture(t)

	fx.addFile(t, "STNG_a.txt", "S")
	fx.addFile(t, "CNTX_b.txt", "C")
	fx.addFile(t, "TASK_c.txt", "T")
	req := fx.addFile(t, "req1.txt", "R")

	tickUntil(t, fx.manager, func() bool { return fileExists(OutputPath(req)) })
	tickUntil(t, fx.manager, fx.manager.IsIdle)

	// losing a constituent makes the environment incomplete; bringing the
	// same content back completes it again and re-marks the requirement
	ctx := filepath.Join(fx.dir, "CNTX_b.txt")
	require.NoError(t, os.Remove(ctx))
	fx.manager.OnEvent(event.NewFileRemoved(ctx))
	for i := 0; i < 5; i++ {
		fx.manager.OnUpdate()
	}
	// an incomplete environment is not a content change; the session stays
	// idle and just stops dispatching
	assert.Equal(t, "AllResponsesReceived", fx.manager.Status().State)

	time.Sleep(20 * time.Millisecond)
	fx.addFile(t, "CNTX_b.txt", "C")

	// the requirement is re-marked and reconsidered, but the environment
	// content is unchanged and the output still up to date, so nothing is
	// re-sent and the session settles back to idle
	tickUntil(t, fx.manager, fx.manager.IsIdle)
	assert.Equal(t, 1, fx.api.requestCount())
}

func TestOutputPathDerivation(t *testing.T) {
	assert.Equal(t, "/q/demo/req1.output.txt", OutputPath("/q/demo/req1.txt"))
	assert.Equal(t, "/q/demo/PROB_1_2.output.txt", OutputPath("/q/demo/PROB_1_2.txt"))
	assert.Equal(t, "/q/demo/noext.output", OutputPath("/q/demo/noext"))
}
