package command

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/logging"
	"github.com/izzyreal/fakeipa/internal/protocol"
)

// Result is the lifecycle of one accepted command. A result leaves RUNNING
// exactly once and never changes afterwards.
type Result struct {
	id     string
	name   string
	params Params

	async  bool
	due    time.Time
	run    Func
	onDone func()
	now    func() time.Time
	log    logging.Logger
	once   sync.Once

	mu     sync.RWMutex
	status string
	value  any
	err    *Error
}

// NewSyncResult returns a SUCCEEDED result. String payloads are wrapped as
// {"result": value} for consistency with the agent API.
func NewSyncResult(name string, params Params, value any) *Result {
	r := newResult(name, params)
	r.status = protocol.CommandStatusSucceeded
	r.value = wrapString("result", value)
	return r
}

// NewFailedResult returns a FAILED result carrying err as a REST error.
func NewFailedResult(name string, params Params, err error) *Result {
	r := newResult(name, params)
	r.status = protocol.CommandStatusFailed
	r.err = AsError(err)
	return r
}

func newAsyncResult(name string, params Params, run Func, due time.Time, onDone func(), now func() time.Time, log logging.Logger) *Result {
	r := newResult(name, params)
	r.async = true
	r.run = run
	r.due = due
	r.onDone = onDone
	r.now = now
	r.log = log
	return r
}

func newResult(name string, params Params) *Result {
	return &Result{
		id:     uuid.NewString(),
		name:   name,
		params: params.clone(),
		status: protocol.CommandStatusRunning,
	}
}

func wrapString(key string, value any) any {
	switch v := value.(type) {
	case string:
		return map[string]any{key: v}
	case []byte:
		return map[string]any{key: string(v)}
	default:
		return value
	}
}

func (r *Result) ID() string     { return r.id }
func (r *Result) Name() string   { return r.name }
func (r *Result) Async() bool    { return r.async }
func (r *Result) Due() time.Time { return r.due }
func (r *Result) Params() Params { return r.params.clone() }

func (r *Result) Status() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Result) IsDone() bool {
	return protocol.IsTerminalCommandStatus(r.Status())
}

// Join waits until an async result is due and advances it. Sync results
// return immediately.
func (r *Result) Join(ctx context.Context) (*Result, error) {
	if !r.async || r.IsDone() {
		return r, nil
	}
	if wait := r.due.Sub(r.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return r, ctx.Err()
		case <-timer.C:
		}
	}
	r.advance(ctx)
	return r, nil
}

// Wait joins the result and returns its payload, or its error if it failed.
func (r *Result) Wait(ctx context.Context) (any, error) {
	if _, err := r.Join(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.value, nil
}

// refresh advances a running async result whose scheduled time has passed.
func (r *Result) refresh(ctx context.Context) bool {
	if !r.async || r.IsDone() || r.now().Before(r.due) {
		return false
	}
	r.advance(ctx)
	return true
}

func (r *Result) advance(ctx context.Context) {
	r.once.Do(func() {
		value, err := r.invoke(ctx)

		r.mu.Lock()
		if err != nil {
			r.status = protocol.CommandStatusFailed
			r.err = AsError(err)
		} else {
			r.status = protocol.CommandStatusSucceeded
			r.value = value
		}
		r.mu.Unlock()

		if err != nil {
			r.log.WithFields(logrus.Fields{"command": r.name, "id": r.id}).WithError(err).Error("command failed")
		} else {
			r.log.WithFields(logrus.Fields{"command": r.name, "id": r.id}).Info("asynchronous command completed")
		}
		if r.onDone != nil {
			r.onDone()
		}
	})
}

func (r *Result) invoke(ctx context.Context) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("command %s panicked: %v", r.name, p)
		}
	}()
	return r.run(ctx)
}

func (r *Result) View() protocol.CommandResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	view := protocol.CommandResult{
		ID:            r.id,
		CommandName:   r.name,
		CommandStatus: r.status,
		CommandResult: r.value,
	}
	if r.err != nil {
		view.CommandError = r.err.REST()
	}
	return view
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.View())
}

func (r *Result) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("Command name: %s, params: %v, status: %s, result: %v.", r.name, r.params, r.status, r.value)
}
