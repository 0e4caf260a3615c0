package command

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/logging"
)

const (
	DefaultAsyncMinDelay = 5 * time.Second
	DefaultAsyncMaxDelay = 10 * time.Second
)

type ExecutorOptions struct {
	// AsyncMinDelay and AsyncMaxDelay bound the simulated duration of an
	// async command.
	AsyncMinDelay time.Duration
	AsyncMaxDelay time.Duration
	// OnAsyncComplete runs after every async command reaches a terminal
	// state.
	OnAsyncComplete func()
	Logger          logging.Logger
	Now             func() time.Time
	Delay           func() time.Duration
}

// Executor runs commands for one agent. Only one command may be RUNNING at
// a time: the most recently issued one.
type Executor struct {
	mu       sync.Mutex
	registry *Registry
	ledger   *Ledger

	onAsyncComplete func()
	log             logging.Logger
	now             func() time.Time
	delay           func() time.Duration
}

func NewExecutor(registry *Registry, opts ExecutorOptions) *Executor {
	e := &Executor{
		registry:        registry,
		ledger:          NewLedger(),
		onAsyncComplete: opts.OnAsyncComplete,
		log:             opts.Logger,
		now:             opts.Now,
		delay:           opts.Delay,
	}
	if e.log == nil {
		e.log = logging.New("command")
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.delay == nil {
		e.delay = randomDelay(opts.AsyncMinDelay, opts.AsyncMaxDelay)
	}
	return e
}

func randomDelay(lo, hi time.Duration) func() time.Duration {
	if lo <= 0 && hi <= 0 {
		lo, hi = DefaultAsyncMinDelay, DefaultAsyncMaxDelay
	}
	if hi < lo {
		hi = lo
	}
	return func() time.Duration {
		return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
	}
}

// Execute dispatches name ("<extension>.<command>") with params and records
// the result. Client errors and busy/not-found conditions are returned as
// errors; failures inside the command body become FAILED results.
func (e *Executor) Execute(ctx context.Context, name string, params Params) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refreshLastLocked(ctx)
	log := e.log.WithField("command", name)
	log.WithField("params", params).Debug("executing command")

	extension, cmd, err := SplitCommand(name)
	if err != nil {
		return nil, err
	}

	if last := e.ledger.Last(); last != nil && !last.IsDone() {
		log.WithField("running", last.String()).Error("agent is still executing a command")
		return nil, AgentIsBusyError(last.Name())
	}

	handler, err := e.registry.Resolve(extension, cmd)
	if err != nil {
		log.WithError(err).Warn("command rejected")
		return nil, err
	}

	result, err := e.dispatch(ctx, log, name, params, handler)
	if err != nil {
		log.WithError(err).Warn("invalid command content")
		return nil, err
	}
	e.ledger.Add(result)
	return result, nil
}

func (e *Executor) dispatch(ctx context.Context, log logrus.FieldLogger, name string, params Params, h Handler) (*Result, error) {
	run, err := h.Bind(params)
	if err != nil {
		if IsClientError(err) {
			return nil, err
		}
		log.WithError(err).Error("command execution error")
		return NewFailedResult(name, params, err), nil
	}

	if h.Mode == Async {
		due := e.now().Add(e.delay())
		log.WithField("due", due.Format(time.RFC3339)).Info("asynchronous command started")
		return newAsyncResult(name, params, run, due, e.onAsyncComplete, e.now, e.log), nil
	}

	value, err := e.runSync(ctx, name, run)
	if err != nil {
		if IsClientError(err) {
			return nil, err
		}
		log.WithError(err).Error("command execution error")
		return NewFailedResult(name, params, err), nil
	}
	log.WithField("result", value).Info("synchronous command completed")
	return NewSyncResult(name, params, value), nil
}

func (e *Executor) runSync(ctx context.Context, name string, run Func) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = CommandExecutionError("command " + name + " panicked")
			e.log.WithField("command", name).WithField("panic", p).Error("command panicked")
		}
	}()
	return run(ctx)
}

func (e *Executor) refreshLastLocked(ctx context.Context) {
	if last := e.ledger.Last(); last != nil {
		last.refresh(ctx)
	}
}

// List refreshes the most recent command, then returns all results in
// insertion order.
func (e *Executor) List(ctx context.Context) []*Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshLastLocked(ctx)
	return e.ledger.List()
}

func (e *Executor) Get(id string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Get(id)
}

func (e *Executor) Last() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Last()
}
