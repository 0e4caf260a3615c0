package ironic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/logging"
	"github.com/izzyreal/fakeipa/internal/protocol"
)

const (
	inspectRetryAttempts = 5
	inspectRetryWait     = 5 * time.Second
)

type Inspector struct {
	CallbackURL string
	HTTPClient  *http.Client
	Logger      logging.Logger
	Attempts    int
	RetryWait   time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// BuildInventory describes a fake host with the system's NICs and a small
// x86_64 CPU.
func BuildInventory(system protocol.System) protocol.InspectionRequest {
	ifaces := make([]protocol.InventoryInterface, 0, len(system.NICs))
	for i, nic := range system.NICs {
		name := nic.Name
		if name == "" {
			name = fmt.Sprintf("enp%ds0", i+1)
		}
		ifaces = append(ifaces, protocol.InventoryInterface{
			Product:     "0x0001",
			Vendor:      "0x1af4",
			Name:        name,
			HasCarrier:  true,
			IPv4Address: nic.IP,
			MACAddress:  nic.MAC,
		})
	}
	return protocol.InspectionRequest{
		BootInterface: system.PrimaryMAC(),
		Inventory: protocol.Inventory{
			Interfaces: ifaces,
			CPU: protocol.InventoryCPU{
				Count:        2,
				Frequency:    "2100.084",
				Flags:        []string{"fpu", "mmx", "fxsr", "sse", "sse2"},
				Architecture: "x86_64",
			},
		},
	}
}

// Inspect posts the inventory and returns the node UUID assigned by the
// inspector. Only connection failures are retried. An error status from the
// inspector is logged and yields an empty UUID so lookup can proceed.
func (in *Inspector) Inspect(ctx context.Context, system protocol.System) (string, error) {
	attempts := in.Attempts
	if attempts <= 0 {
		attempts = inspectRetryAttempts
	}
	wait := in.RetryWait
	if wait <= 0 {
		wait = inspectRetryWait
	}
	sleep := in.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	log := in.Logger
	if log == nil {
		log = logging.New("inspector")
	}
	client := in.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	payload, err := json.Marshal(BuildInventory(system))
	if err != nil {
		return "", fmt.Errorf("marshal inventory: %w", err)
	}

	var resp *http.Response
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, in.CallbackURL, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("create inspection request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = client.Do(req)
		if err == nil {
			break
		}
		var opErr *net.OpError
		if !errors.As(err, &opErr) || attempt >= attempts {
			return "", fmt.Errorf("post inspection data to %s: %w", in.CallbackURL, err)
		}
		log.WithError(err).WithField("attempt", attempt).Warn("inspection callback unreachable, retrying")
		if err := sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("post inspection data: %w", err)
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read inspection response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		log.WithFields(logrus.Fields{
			"url":    in.CallbackURL,
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("inspector returned an error, proceeding with lookup")
		return "", nil
	}

	var out protocol.InspectionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode inspection response: %w", err)
	}
	return out.UUID, nil
}
