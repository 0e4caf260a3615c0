package ironic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu           sync.Mutex
	version      string
	rootStatus   int
	rootCalls    int
	lookupCalls  int
	lookup       func(call int, w http.ResponseWriter, r *http.Request)
	heartbeat    func(w http.ResponseWriter, r *http.Request)
	lastHeaders  http.Header
	lastBody     map[string]any
	lastClose    bool
	lastLookupQ  map[string]string
	lastHBHeader string
}

func (f *fakeController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.URL.Path == "/":
		f.rootCalls++
		if f.rootStatus != 0 && f.rootStatus != http.StatusOK {
			w.WriteHeader(f.rootStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"default_version": map[string]any{"id": "v1", "version": f.version},
		})
	case r.URL.Path == "/v1/lookup":
		f.lookupCalls++
		f.lastHeaders = r.Header.Clone()
		f.lastLookupQ = map[string]string{
			"addresses": r.URL.Query().Get("addresses"),
			"node_uuid": r.URL.Query().Get("node_uuid"),
		}
		f.lookup(f.lookupCalls, w, r)
	default:
		f.lastHBHeader = r.Header.Get("X-OpenStack-Ironic-API-Version")
		f.lastClose = r.Close
		f.lastBody = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		if f.heartbeat != nil {
			f.heartbeat(w, r)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func newTestClient(t *testing.T, apiURL string) (*Client, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c, err := NewClient(ClientOptions{
		APIURL:       apiURL,
		Logger:       logger,
		AgentVersion: "1.22",
		Sleep:        func(context.Context, time.Duration) error { return nil },
		Rand:         func() float64 { return 0.5 },
	})
	require.NoError(t, err)
	return c, hook
}

func startController(t *testing.T, fc *fakeController) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)
	return srv
}

func closedServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}
