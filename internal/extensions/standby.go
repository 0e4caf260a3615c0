package extensions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/command"
)

type Standby struct {
	systemUUID string
	redfish    RedfishConfig
	client     *http.Client
	log        logrus.FieldLogger
}

func (s *Standby) Name() string { return "standby" }

func (s *Standby) Commands() map[string]command.Handler {
	return map[string]command.Handler{
		"power_off":           command.AsyncHandler(command.NoArgs(s.powerOff)),
		"get_partition_uuids": command.SyncHandler(command.NoArgs(s.getPartitionUUIDs)),
	}
}

type resetRequest struct {
	Action    string `json:"Action"`
	ResetType string `json:"ResetType"`
}

// powerOff asks the Redfish emulator to force the system off, which is
// what the real agent achieves by shutting the host down.
func (s *Standby) powerOff(ctx context.Context) (any, error) {
	s.log.WithField("system", s.systemUUID).Info("powering off system")

	target := fmt.Sprintf("%s/redfish/v1/Systems/%s/Actions/ComputerSystem.Reset",
		strings.TrimRight(s.redfish.URL, "/"), url.PathEscape(s.systemUUID))
	body, err := json.Marshal(resetRequest{Action: "Reset", ResetType: "ForceOff"})
	if err != nil {
		return nil, fmt.Errorf("marshal reset request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create reset request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.redfish.User, s.redfish.Password)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send reset request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("reset rejected: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil, nil
}

// getPartitionUUIDs reports an empty mapping, which is what a whole disk
// image looks like.
func (s *Standby) getPartitionUUIDs(context.Context) (any, error) {
	return map[string]any{}, nil
}
