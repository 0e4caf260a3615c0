package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/izzyreal/fakeipa/internal/ironic"
)

var ErrNoEndpoints = errors.New("neither api_url nor inspection callback_url is configured")

// Boot runs the ramdisk start-up: a random boot delay, inspection, lookup
// and finally registration with the heartbeat scheduler. register is
// called with the agent once lookup has assigned it a node UUID; when it
// returns false the agent is not scheduled.
func (a *Agent) Boot(ctx context.Context, register func(*Agent) bool) error {
	delay := a.bootDelay()
	a.log.WithField("delay", delay.String()).Info("booting fake IPA")
	if err := a.sleep(ctx, delay); err != nil {
		return fmt.Errorf("boot %s: %w", a.system.Name, err)
	}

	var nodeUUID string
	if url := a.settings.InspectionCallbackURL; url != "" {
		a.log.WithField("callback_url", url).Debug("starting inspection")
		inspector := &ironic.Inspector{
			CallbackURL: url,
			HTTPClient:  a.httpc,
			Logger:      a.log,
			Sleep:       a.sleep,
		}
		uuid, err := inspector.Inspect(ctx, a.system)
		if err != nil {
			a.log.WithError(err).Error("failed to perform inspection")
		}
		nodeUUID = uuid
		a.log.WithField("inspection_uuid", nodeUUID).Debug("inspection finished")
	}

	if a.settings.APIURL == "" {
		if a.settings.InspectionCallbackURL == "" {
			a.log.Error("neither api_url nor inspection callback_url found, please check the configuration")
			return ErrNoEndpoints
		}
		a.log.Info("no api_url configured, heartbeat and lookup skipped after inspection")
		return nil
	}

	client, err := a.newClient(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.client = client
	a.mu.Unlock()

	resp, err := client.Lookup(ctx, ironic.LookupParams{
		Addresses:        []string{a.system.PrimaryMAC()},
		NodeUUID:         nodeUUID,
		Timeout:          a.settings.LookupTimeout,
		StartingInterval: a.settings.LookupInterval,
		MaxInterval:      a.settings.LookupMaxInterval,
	})
	if err != nil {
		a.log.WithError(err).WithField("api_url", client.APIURL()).Error("lookup failed, aborting boot")
		return fmt.Errorf("boot %s: %w", a.system.Name, err)
	}
	a.processLookup(resp)
	if register != nil && !register(a) {
		return nil
	}

	if a.scheduler != nil {
		a.scheduler.Add(a)
	}
	return nil
}

func (a *Agent) newClient(ctx context.Context) (*ironic.Client, error) {
	apiURL := a.settings.APIURL
	if apiURL == MDNSAPIURL {
		opts := a.settings.MDNS
		opts.Logger = a.log
		discovered, err := a.discover(ctx, opts)
		if err != nil {
			a.log.WithError(err).Error("failed to discover the ironic API over mDNS")
			return nil, fmt.Errorf("boot %s: discover api_url: %w", a.system.Name, err)
		}
		apiURL = discovered
	}
	client, err := ironic.NewClient(ironic.ClientOptions{
		APIURL:     apiURL,
		HTTPClient: a.httpc,
		Logger:     a.log,
		Sleep:      a.sleep,
		Rand:       a.rand,
	})
	if err != nil {
		return nil, fmt.Errorf("boot %s: %w", a.system.Name, err)
	}
	return client, nil
}

func (a *Agent) bootDelay() time.Duration {
	lo, hi := a.settings.BootMinTime, a.settings.BootMaxTime
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(a.rand()*float64(hi-lo))
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
