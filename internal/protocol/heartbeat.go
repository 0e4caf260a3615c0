package protocol

import "encoding/json"

// HeartbeatRequest is the body of POST /v1/heartbeat/<uuid>. Only
// CallbackURL is always sent; the rest is gated on the negotiated version.
type HeartbeatRequest struct {
	CallbackURL string `json:"callback_url"`
	// WithToken puts agent_token on the wire, as null when AgentToken is nil.
	WithToken     bool    `json:"-"`
	AgentToken    *string `json:"-"`
	AgentVersion  string  `json:"agent_version,omitempty"`
	AgentVerifyCA string  `json:"agent_verify_ca,omitempty"`
}

func (r HeartbeatRequest) MarshalJSON() ([]byte, error) {
	type plain HeartbeatRequest
	if !r.WithToken {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		AgentToken *string `json:"agent_token"`
	}{plain: plain(r), AgentToken: r.AgentToken})
}

// APIRootResponse is the subset of GET / on the Ironic API used for
// version negotiation.
type APIRootResponse struct {
	DefaultVersion struct {
		Version string `json:"version"`
	} `json:"default_version"`
}
