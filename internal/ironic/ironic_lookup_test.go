package ironic

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izzyreal/fakeipa/internal/protocol"
)

const validLookupBody = `{"node":{"uuid":"1be26c0b-03f2-4d2e-ae87-c02d7f33c123","name":"fake1"},` +
	`"config":{"heartbeat_timeout":300,"agent_token":"abcdefghijklmnopqrstuvwxyz0123456789","agent_token_required":true}}`

func TestLookupSucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()
	fc := &fakeController{version: "1.80", lookup: func(call int, w http.ResponseWriter, _ *http.Request) {
		switch call {
		case 1:
			http.Error(w, `{"error_message":{"faultstring":"Node not found"}}`, http.StatusNotFound)
		case 2:
			_, _ = w.Write([]byte("{not json"))
		default:
			_, _ = w.Write([]byte(validLookupBody))
		}
	}}
	srv := startController(t, fc)
	c, _ := newTestClient(t, srv.URL)

	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	resp, err := c.Lookup(context.Background(), LookupParams{
		Addresses:        []string{"52:54:00:aa:bb:cc"},
		NodeUUID:         "hint-uuid",
		Timeout:          time.Minute,
		StartingInterval: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "1be26c0b-03f2-4d2e-ae87-c02d7f33c123", resp.Node.UUID)
	assert.Equal(t, 300*time.Second, resp.Config.HeartbeatTimeoutDuration())
	assert.True(t, resp.Config.AgentTokenRequired)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Equal(t, 3, fc.lookupCalls)
	assert.Equal(t, "1.62", fc.lastHeaders.Get(protocol.APIVersionHeader))
	assert.Equal(t, "52:54:00:aa:bb:cc", fc.lastLookupQ["addresses"])
	assert.Equal(t, "hint-uuid", fc.lastLookupQ["node_uuid"])
	assert.Equal(t, 1, fc.rootCalls)
	require.Len(t, waits, 2)
	for _, w := range waits {
		assert.GreaterOrEqual(t, w, time.Second)
		assert.LessOrEqual(t, w, 30*time.Second)
	}
}

func TestLookupFailsAfterTimeoutAgainstDeadController(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, closedServerURL(t))
	c.sleep = sleepContext

	start := time.Now()
	_, err := c.Lookup(context.Background(), LookupParams{
		Addresses:        []string{"52:54:00:aa:bb:cc"},
		Timeout:          200 * time.Millisecond,
		StartingInterval: 10 * time.Millisecond,
		MaxInterval:      40 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrLookupFailed)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestLookupStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, closedServerURL(t))
	c.sleep = sleepContext

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Lookup(ctx, LookupParams{Timeout: time.Hour, StartingInterval: 5 * time.Millisecond})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrLookupFailed)
}

func TestLookupRetriesResponseWithoutHeartbeatTimeout(t *testing.T) {
	t.Parallel()
	fc := &fakeController{version: "1.80", lookup: func(call int, w http.ResponseWriter, _ *http.Request) {
		if call == 1 {
			_, _ = w.Write([]byte(`{"node":{"uuid":"n1"},"config":{}}`))
			return
		}
		_, _ = w.Write([]byte(validLookupBody))
	}}
	srv := startController(t, fc)
	c, _ := newTestClient(t, srv.URL)
	c.sleep = func(context.Context, time.Duration) error { return nil }

	resp, err := c.Lookup(context.Background(), LookupParams{
		Addresses:        []string{"52:54:00:aa:bb:cc"},
		Timeout:          time.Minute,
		StartingInterval: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, resp.Config.HeartbeatTimeoutDuration())

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Equal(t, 2, fc.lookupCalls)
}

func TestDecodeLookup(t *testing.T) {
	t.Parallel()

	t.Run("legacy top level heartbeat timeout", func(t *testing.T) {
		resp, err := decodeLookup([]byte(`{"node":{"uuid":"n1"},"heartbeat_timeout":120}`))
		require.NoError(t, err)
		assert.Equal(t, "n1", resp.Node.UUID)
		assert.Equal(t, 120*time.Second, resp.Config.HeartbeatTimeoutDuration())
	})

	for name, body := range map[string]string{
		"no node":                 `{"config":{"heartbeat_timeout":1}}`,
		"no node uuid":            `{"node":{"name":"x"},"config":{"heartbeat_timeout":1}}`,
		"no config":               `{"node":{"uuid":"n1"}}`,
		"config wrong type":       `{"node":{"uuid":"n1"},"config":[]}`,
		"no heartbeat timeout":    `{"node":{"uuid":"n1"},"config":{}}`,
		"null heartbeat timeout":  `{"node":{"uuid":"n1"},"config":{"heartbeat_timeout":null}}`,
		"zero heartbeat timeout":  `{"node":{"uuid":"n1"},"config":{"heartbeat_timeout":0}}`,
		"legacy negative timeout": `{"node":{"uuid":"n1"},"heartbeat_timeout":-5}`,
		"not an object":           `[]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeLookup([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	t.Parallel()
	for _, r := range []float64{0, 0.3, 0.99} {
		b := newBackoff(time.Second, 30*time.Second, func() float64 { return r })
		prev := time.Second
		for i := 0; i < 20; i++ {
			d := b.Next()
			assert.GreaterOrEqual(t, d, time.Second)
			assert.LessOrEqual(t, d, 30*time.Second)
			assert.LessOrEqual(t, d, 3*prev)
			prev = d
		}
	}

	b := newBackoff(time.Second, 30*time.Second, func() float64 { return 1 })
	got := []time.Duration{b.Next(), b.Next(), b.Next(), b.Next()}
	assert.Equal(t, []time.Duration{3 * time.Second, 9 * time.Second, 27 * time.Second, 30 * time.Second}, got)
}
