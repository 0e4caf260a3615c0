package ironic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/izzyreal/fakeipa/internal/logging"
	"github.com/izzyreal/fakeipa/internal/protocol"
	"github.com/izzyreal/fakeipa/internal/version"
)

const (
	lookupPath    = "/v1/lookup"
	heartbeatPath = "/v1/heartbeat/"

	maxErrorBodyBytes = 16 * 1024
)

type ClientOptions struct {
	APIURL       string
	HTTPClient   *http.Client
	Logger       logging.Logger
	AgentVersion string
	// Sleep and Rand are overridable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

// Client talks to the Ironic API on behalf of one agent. The negotiated API
// version and the agent token are cached per client.
type Client struct {
	apiURL       string
	http         *http.Client
	log          logging.Logger
	agentVersion string
	sleep        func(ctx context.Context, d time.Duration) error
	rand         func() float64

	mu         sync.Mutex
	apiVersion *protocol.APIVersion
	agentToken string
}

func NewClient(opts ClientOptions) (*Client, error) {
	apiURL := strings.TrimRight(strings.TrimSpace(opts.APIURL), "/")
	if apiURL == "" {
		return nil, fmt.Errorf("ironic API URL is required")
	}
	c := &Client{
		apiURL:       apiURL,
		http:         opts.HTTPClient,
		log:          opts.Logger,
		agentVersion: opts.AgentVersion,
		sleep:        opts.Sleep,
		rand:         opts.Rand,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.log == nil {
		c.log = logging.New("ironic")
	}
	if c.agentVersion == "" {
		c.agentVersion = version.Current()
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.rand == nil {
		c.rand = rand.Float64
	}
	return c, nil
}

func (c *Client) APIURL() string {
	return c.apiURL
}

func (c *Client) SetAgentToken(token string) {
	c.mu.Lock()
	c.agentToken = token
	c.mu.Unlock()
}

func (c *Client) AgentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentToken
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func readErrorBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return body
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
