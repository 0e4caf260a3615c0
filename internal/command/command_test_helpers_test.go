package command

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type echoArgs struct {
	Message string `json:"message"`
}

func (a echoArgs) Validate() error {
	if a.Message == "" {
		return errors.New("message is required")
	}
	return nil
}

type fakeExtension struct {
	asyncRuns atomic.Int32
}

func (f *fakeExtension) Name() string { return "fake" }

func (f *fakeExtension) Commands() map[string]Handler {
	return map[string]Handler{
		"echo": SyncHandler(Typed(func(_ context.Context, args echoArgs) (any, error) {
			return args.Message, nil
		})),
		"fail": SyncHandler(NoArgs(func(context.Context) (any, error) {
			return nil, errors.New("disk on fire")
		})),
		"reject": SyncHandler(NoArgs(func(context.Context) (any, error) {
			return nil, InvalidCommandParamsError("rejected by body")
		})),
		"sleep": AsyncHandler(NoArgs(func(context.Context) (any, error) {
			f.asyncRuns.Add(1)
			return map[string]any{"slept": true}, nil
		})),
		"crash": AsyncHandler(NoArgs(func(context.Context) (any, error) {
			f.asyncRuns.Add(1)
			return nil, errors.New("crashed")
		})),
	}
}

type executorFixture struct {
	exec     *Executor
	ext      *fakeExtension
	clock    *fakeClock
	forced   atomic.Int32
	registry *Registry
}

func newExecutorFixture(t *testing.T, disabled ...string) *executorFixture {
	t.Helper()
	f := &executorFixture{ext: &fakeExtension{}, clock: newFakeClock()}
	reg, err := NewRegistry(disabled, f.ext)
	require.NoError(t, err)
	f.registry = reg
	logger, _ := logtest.NewNullLogger()
	f.exec = NewExecutor(reg, ExecutorOptions{
		OnAsyncComplete: func() { f.forced.Add(1) },
		Logger:          logger,
		Now:             f.clock.Now,
		Delay:           func() time.Duration { return 5 * time.Second },
	})
	return f
}

func countRunning(results []*Result) int {
	n := 0
	for _, r := range results {
		if !r.IsDone() {
			n++
		}
	}
	return n
}
