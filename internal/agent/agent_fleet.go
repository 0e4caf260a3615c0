package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/command"
	"github.com/izzyreal/fakeipa/internal/logging"
	"github.com/izzyreal/fakeipa/internal/protocol"
)

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrUnauthorized  = errors.New("token invalid")
)

// Fleet tracks the booted systems and the agents that completed lookup.
type Fleet struct {
	opts Options
	log  logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	agents map[string]*Agent
	// booted maps a system UUID to the agent booting or running on it.
	booted map[string]*Agent
}

func NewFleet(opts Options) *Fleet {
	log := opts.Logger
	if log == nil {
		log = logging.New("fleet")
	}
	opts.Logger = log
	ctx, cancel := context.WithCancel(context.Background())
	return &Fleet{
		opts:   opts,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		agents: make(map[string]*Agent),
		booted: make(map[string]*Agent),
	}
}

// HandleNotification reacts to a power state change pushed by the BMC
// emulator. Powering on a system that is not booted and does not boot from
// disk starts a fake IPA; any other pending state stops heartbeating for a
// booted system.
func (f *Fleet) HandleNotification(system protocol.System) {
	log := f.log.WithFields(logrus.Fields{"system": system.Name, "system_uuid": system.UUID})
	if system.PendingPower == nil || system.PendingPower.PowerState == "" {
		log.Info("no pending power state, no action taken")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	_, booted := f.booted[system.UUID]

	if system.PendingPower.PowerState == protocol.PowerStateOn {
		if booted || system.BootDevice == protocol.BootDeviceHdd {
			log.WithField("boot_device", system.BootDevice).Info("system already booted or booting from disk, no boot action taken")
			return
		}
		a, err := New(system, f.opts)
		if err != nil {
			log.WithError(err).Error("failed to create agent")
			return
		}
		f.booted[system.UUID] = a
		log.Info("booting IPA")
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			if err := a.Boot(f.ctx, f.register); err != nil && f.ctx.Err() == nil {
				log.WithError(err).Error("IPA boot aborted")
			}
		}()
		return
	}

	if booted {
		log.WithField("pending_power_state", system.PendingPower.PowerState).Info("shutting down IPA")
		delete(f.booted, system.UUID)
		f.dropAgentsLocked(system.UUID)
		if f.opts.Scheduler != nil {
			f.opts.Scheduler.RemoveAsync(system.UUID)
		}
	}
}

// register exposes a looked-up agent through the command API, unless its
// system was powered off or rebooted while the lookup was running.
func (f *Fleet) register(a *Agent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.booted[a.System().UUID] != a {
		f.log.WithField("node_uuid", a.NodeUUID()).Info("system powered off during boot, not registering agent")
		return false
	}
	f.dropAgentsLocked(a.System().UUID)
	f.agents[a.NodeUUID()] = a
	return true
}

func (f *Fleet) dropAgentsLocked(systemUUID string) {
	for nodeUUID, a := range f.agents {
		if a.System().UUID == systemUUID {
			delete(f.agents, nodeUUID)
		}
	}
}

func (f *Fleet) Booted(systemUUID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.booted[systemUUID]
	return ok
}

// NodeUUIDs lists the nodes with a registered agent, sorted.
func (f *Fleet) NodeUUIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.agents))
	for id := range f.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (f *Fleet) Agent(nodeUUID string) (*Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[nodeUUID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, nodeUUID)
	}
	return a, nil
}

func (f *Fleet) ListCommands(ctx context.Context, nodeUUID string) ([]*command.Result, error) {
	a, err := f.Agent(nodeUUID)
	if err != nil {
		return nil, err
	}
	return a.executor.List(ctx), nil
}

// GetCommand returns one result. With wait it first joins the result.
func (f *Fleet) GetCommand(ctx context.Context, nodeUUID, id string, wait bool) (*command.Result, error) {
	a, err := f.Agent(nodeUUID)
	if err != nil {
		return nil, err
	}
	result, err := a.executor.Get(id)
	if err != nil {
		return nil, err
	}
	if wait {
		return result.Join(ctx)
	}
	return result, nil
}

// RunCommand validates token and executes name on the node's agent.
func (f *Fleet) RunCommand(ctx context.Context, nodeUUID, name string, params command.Params, token string, wait bool) (*command.Result, error) {
	a, err := f.Agent(nodeUUID)
	if err != nil {
		return nil, err
	}
	if !a.ValidateToken(token) {
		a.log.WithField("command", name).Warn("rejected command with an invalid agent token")
		return nil, ErrUnauthorized
	}
	result, err := a.executor.Execute(ctx, name, params)
	if err != nil {
		return nil, err
	}
	if wait {
		return result.Join(ctx)
	}
	return result, nil
}

// Close cancels pending boots and waits for them to return.
func (f *Fleet) Close() {
	f.cancel()
	f.wg.Wait()
}
