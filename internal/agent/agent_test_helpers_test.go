package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/izzyreal/fakeipa/internal/heartbeat"
	"github.com/izzyreal/fakeipa/internal/protocol"
)

const (
	testNodeUUID = "6f1a0d5e-4c3b-4f2a-9a1b-0c9d8e7f6a5b"
	testToken    = "0123456789abcdef0123456789abcdef"
)

type controller struct {
	mu         sync.Mutex
	version    string
	lookup     protocol.LookupResponse
	lookupQs   []string
	heartbeats []map[string]any
	hbPaths    []string
}

func (c *controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case r.URL.Path == "/":
		_ = json.NewEncoder(w).Encode(map[string]any{"default_version": map[string]any{"version": c.version}})
	case r.URL.Path == "/v1/lookup":
		c.lookupQs = append(c.lookupQs, r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode(c.lookup)
	case strings.HasPrefix(r.URL.Path, "/v1/heartbeat/"):
		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.heartbeats = append(c.heartbeats, body)
		c.hbPaths = append(c.hbPaths, r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	default:
		http.NotFound(w, r)
	}
}

func startController(t *testing.T, token string) (*controller, *httptest.Server) {
	t.Helper()
	c := &controller{
		version: "1.68",
		lookup: protocol.LookupResponse{
			Node:   protocol.LookupNode{UUID: testNodeUUID, Name: "node-0"},
			Config: protocol.LookupConfig{HeartbeatTimeout: 300, AgentToken: token},
		},
	}
	srv := httptest.NewServer(c)
	t.Cleanup(srv.Close)
	return c, srv
}

func testSystem() protocol.System {
	return protocol.System{
		UUID:       "b7c2d8e0-aaaa-bbbb-cccc-000000000001",
		Name:       "fake-0",
		BootDevice: "Pxe",
		NICs:       []protocol.NIC{{MAC: "52:54:00:12:34:56", IP: "192.168.111.30"}},
	}
}

type fixture struct {
	opts      Options
	scheduler *heartbeat.Scheduler
	hook      *logtest.Hook
}

func newFixture(t *testing.T, apiURL string) *fixture {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sched := heartbeat.New(heartbeat.Options{Logger: logger})
	return &fixture{
		scheduler: sched,
		hook:      hook,
		opts: Options{
			Settings: Settings{
				APIURL:            apiURL,
				AdvertiseIP:       "192.168.111.1",
				AdvertisePort:     9999,
				AdvertiseProtocol: "http",
				LookupTimeout:     5 * time.Second,
				LookupInterval:    time.Millisecond,
				AsyncMinDelay:     time.Millisecond,
				AsyncMaxDelay:     time.Millisecond,
			},
			Scheduler: sched,
			Logger:    logger,
			Sleep:     func(context.Context, time.Duration) error { return nil },
			Rand:      func() float64 { return 0.5 },
		},
	}
}

func (f *fixture) newAgent(t *testing.T) *Agent {
	t.Helper()
	a, err := New(testSystem(), f.opts)
	require.NoError(t, err)
	return a
}

func (f *fixture) messages(level logrus.Level) []string {
	var out []string
	for _, e := range f.hook.AllEntries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}
