// Package agent simulates one ironic-python-agent per booted system and
// keeps the fleet of them addressable by node UUID.
package agent

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/command"
	"github.com/izzyreal/fakeipa/internal/extensions"
	"github.com/izzyreal/fakeipa/internal/heartbeat"
	"github.com/izzyreal/fakeipa/internal/ironic"
	"github.com/izzyreal/fakeipa/internal/logging"
	"github.com/izzyreal/fakeipa/internal/protocol"
)

// MDNSAPIURL as api_url makes each agent discover the controller over mDNS.
const MDNSAPIURL = "mdns"

// Settings are the per-agent knobs shared by the whole fleet.
type Settings struct {
	APIURL                string
	AdvertiseIP           string
	AdvertisePort         int
	AdvertiseProtocol     string
	InspectionCallbackURL string

	BootMinTime time.Duration
	BootMaxTime time.Duration

	LookupTimeout     time.Duration
	LookupInterval    time.Duration
	LookupMaxInterval time.Duration

	AsyncMinDelay    time.Duration
	AsyncMaxDelay    time.Duration
	DisabledCommands []string

	Redfish extensions.RedfishConfig
	MDNS    ironic.DiscoverOptions
}

type Options struct {
	Settings      Settings
	Scheduler     *heartbeat.Scheduler
	HTTPClient    *http.Client
	RedfishClient *http.Client
	Logger        logging.Logger

	// Overridable for tests.
	Sleep    func(ctx context.Context, d time.Duration) error
	Rand     func() float64
	Discover func(ctx context.Context, opts ironic.DiscoverOptions) (string, error)
	Now      func() time.Time
}

// Agent is the fake IPA of one system. Its scheduler identity is the
// system UUID; the node UUID is only known after lookup.
type Agent struct {
	system    protocol.System
	settings  Settings
	scheduler *heartbeat.Scheduler
	httpc     *http.Client
	executor  *command.Executor
	log       logging.Logger

	sleep    func(ctx context.Context, d time.Duration) error
	rand     func() float64
	discover func(ctx context.Context, opts ironic.DiscoverOptions) (string, error)

	forced atomic.Bool

	mu               sync.Mutex
	client           *ironic.Client
	node             protocol.LookupNode
	heartbeatTimeout time.Duration
	interval         time.Duration
	token            string
	tokenRequired    bool
}

func New(system protocol.System, opts Options) (*Agent, error) {
	log := opts.Logger
	if log == nil {
		log = logging.New("agent")
	}
	log = log.WithFields(logrus.Fields{"system": system.Name, "system_uuid": system.UUID})

	a := &Agent{
		system:    system,
		settings:  opts.Settings,
		scheduler: opts.Scheduler,
		httpc:     opts.HTTPClient,
		log:       log,
		sleep:     opts.Sleep,
		rand:      opts.Rand,
		discover:  opts.Discover,
	}
	if a.sleep == nil {
		a.sleep = sleepContext
	}
	if a.rand == nil {
		a.rand = rand.Float64
	}
	if a.discover == nil {
		a.discover = ironic.Discover
	}

	registry, err := command.NewRegistry(opts.Settings.DisabledCommands, extensions.ForSystem(extensions.Options{
		SystemUUID: system.UUID,
		Redfish:    opts.Settings.Redfish,
		HTTPClient: opts.RedfishClient,
		Logger:     log,
	})...)
	if err != nil {
		return nil, fmt.Errorf("build command registry: %w", err)
	}
	a.executor = command.NewExecutor(registry, command.ExecutorOptions{
		AsyncMinDelay:   opts.Settings.AsyncMinDelay,
		AsyncMaxDelay:   opts.Settings.AsyncMaxDelay,
		OnAsyncComplete: a.forceHeartbeat,
		Logger:          log,
		Now:             opts.Now,
	})
	return a, nil
}

func (a *Agent) System() protocol.System { return a.system }

func (a *Agent) Executor() *command.Executor { return a.executor }

// ID is the scheduler identity.
func (a *Agent) ID() string { return a.system.UUID }

func (a *Agent) Name() string { return a.system.Name }

func (a *Agent) NodeUUID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.node.UUID
}

func (a *Agent) HeartbeatTimeout() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.heartbeatTimeout
}

func (a *Agent) Interval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interval
}

func (a *Agent) SetInterval(d time.Duration) {
	a.mu.Lock()
	a.interval = d
	a.mu.Unlock()
}

func (a *Agent) Forced() bool { return a.forced.Load() }

func (a *Agent) ClearForced() { a.forced.Store(false) }

// forceHeartbeat is the executor's async completion hook.
func (a *Agent) forceHeartbeat() {
	a.forced.Store(true)
	a.log.Debug("forcing heartbeat after command completion")
}

// Heartbeat announces this agent's callback URL to the controller.
func (a *Agent) Heartbeat(ctx context.Context) error {
	a.mu.Lock()
	client := a.client
	nodeUUID := a.node.UUID
	a.mu.Unlock()
	if client == nil {
		return fmt.Errorf("%w: agent has no controller client", ironic.ErrHeartbeat)
	}
	return client.Heartbeat(ctx, ironic.HeartbeatParams{
		NodeUUID:          nodeUUID,
		AdvertiseHost:     a.settings.AdvertiseIP,
		AdvertisePort:     a.settings.AdvertisePort,
		AdvertiseProtocol: a.settings.AdvertiseProtocol,
	})
}

var _ heartbeat.Node = (*Agent)(nil)
