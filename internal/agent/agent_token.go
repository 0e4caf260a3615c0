package agent

import "github.com/izzyreal/fakeipa/internal/protocol"

const (
	minTokenLength = 32
	redactedToken  = "******"
)

// processLookup records the node and controller settings from a lookup.
// It is the only writer of the agent token.
func (a *Agent) processLookup(resp *protocol.LookupResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.node = resp.Node
	a.heartbeatTimeout = resp.Config.HeartbeatTimeoutDuration()
	log := a.log.WithField("node_uuid", a.node.UUID)
	log.Info("lookup succeeded")

	if resp.Config.AgentTokenRequired {
		a.tokenRequired = true
	}

	switch token := resp.Config.AgentToken; {
	case token == "":
	case len(token) >= minTokenLength:
		if a.token != "" && a.token != token {
			log.Warn("agent token already recorded, ignoring the new one")
			break
		}
		log.Debug("agent token recorded as designated by the ironic installation")
		a.token = token
	case token == redactedToken:
		log.Error("the agent token has already been retrieved; IPA may not operate as intended " +
			"and the deployment may fail depending on settings in the ironic deployment")
		if a.token == "" && a.tokenRequired {
			log.Error("ironic is signaling that agent tokens are required, however we do not " +
				"have a token on file; this is likely FATAL")
		}
	default:
		log.Info("an invalid token was received")
	}

	if a.token != "" && a.client != nil {
		a.client.SetAgentToken(a.token)
	}
}

// ValidateToken checks a token presented to the agent API. A request
// without a token is accepted only when a token was received before and
// the controller no longer requires one.
func (a *Agent) ValidateToken(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if token == "" && a.token != "" && !a.tokenRequired {
		return true
	}
	return a.token == token
}

// ClearToken forgets the stored token so the next lookup may set a new one.
func (a *Agent) ClearToken() {
	a.mu.Lock()
	a.token = ""
	if a.client != nil {
		a.client.SetAgentToken("")
	}
	a.mu.Unlock()
}

func (a *Agent) TokenRequired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokenRequired
}
