package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/izzyreal/fakeipa/internal/command"
	"github.com/izzyreal/fakeipa/internal/protocol"
)

type runCall struct {
	node   string
	name   string
	params command.Params
	token  string
	wait   bool
}

type fakeFleet struct {
	mu            sync.Mutex
	notifications []protocol.System
	results       []*command.Result
	runs          []runCall
	getWait       bool
	err           error
}

func (f *fakeFleet) HandleNotification(system protocol.System) {
	f.mu.Lock()
	f.notifications = append(f.notifications, system)
	f.mu.Unlock()
}

func (f *fakeFleet) NodeUUIDs() []string { return []string{"node-1"} }

func (f *fakeFleet) ListCommands(context.Context, string) ([]*command.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeFleet) GetCommand(_ context.Context, _, id string, wait bool) (*command.Result, error) {
	f.mu.Lock()
	f.getWait = wait
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.results {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, command.NotFoundError("Command Result", id)
}

func (f *fakeFleet) RunCommand(_ context.Context, node, name string, params command.Params, token string, wait bool) (*command.Result, error) {
	f.mu.Lock()
	f.runs = append(f.runs, runCall{node: node, name: name, params: params, token: token, wait: wait})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return command.NewSyncResult(name, params, "done"), nil
}

type fakeQueue struct{}

func (fakeQueue) Len() int                 { return 2 }
func (fakeQueue) PendingRemoval() []string { return []string{"sys-1"} }

func newTestServer(t *testing.T, fleet *fakeFleet) http.Handler {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	return New(fleet, fakeQueue{}, logger).Handler()
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
