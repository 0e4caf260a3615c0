package protocol

import "time"

// LookupResponse is the body of GET /v1/lookup.
type LookupResponse struct {
	Node   LookupNode   `json:"node"`
	Config LookupConfig `json:"config"`
}

type LookupNode struct {
	UUID           string         `json:"uuid"`
	Name           string         `json:"name,omitempty"`
	ProvisionState string         `json:"provision_state,omitempty"`
	Properties     map[string]any `json:"properties,omitempty"`
	InstanceInfo   map[string]any `json:"instance_info,omitempty"`
	DriverInternal map[string]any `json:"driver_internal_info,omitempty"`
}

type LookupConfig struct {
	HeartbeatTimeout   float64 `json:"heartbeat_timeout"`
	AgentToken         string  `json:"agent_token,omitempty"`
	AgentTokenRequired bool    `json:"agent_token_required,omitempty"`
	Metrics            any     `json:"metrics,omitempty"`
	MetricsStatsd      any     `json:"metrics_statsd,omitempty"`
}

func (c LookupConfig) HeartbeatTimeoutDuration() time.Duration {
	return time.Duration(c.HeartbeatTimeout * float64(time.Second))
}
