package ironic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/protocol"
)

type LookupParams struct {
	// Addresses are the MAC addresses of the node; the first NIC is usually
	// enough.
	Addresses []string
	// NodeUUID is an optional hint, e.g. the UUID returned by inspection.
	NodeUUID         string
	Timeout          time.Duration
	StartingInterval time.Duration
	MaxInterval      time.Duration
}

// Lookup asks the controller for this node's record, retrying every
// failure with jittered exponential backoff until Timeout has elapsed.
func (c *Client) Lookup(ctx context.Context, p LookupParams) (*protocol.LookupResponse, error) {
	deadline := time.Now().Add(p.Timeout)
	lookupCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	log := c.log.WithFields(logrus.Fields{
		"api_url":   c.apiURL,
		"addresses": strings.Join(p.Addresses, ","),
		"node_uuid": p.NodeUUID,
	})
	wait := newBackoff(p.StartingInterval, p.MaxInterval, c.rand)

	for attempt := 1; ; attempt++ {
		resp, err := c.lookupOnce(lookupCtx, p)
		if err == nil {
			log.WithField("attempt", attempt).Debug("lookup succeeded")
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("lookup node: %w", ctx.Err())
		}
		log.WithError(err).WithField("attempt", attempt).Warn("lookup attempt failed, retrying")

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := c.sleep(lookupCtx, min(wait.Next(), remaining)); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("lookup node: %w", ctx.Err())
			}
			break
		}
		if time.Until(deadline) <= 0 {
			break
		}
	}
	return nil, fmt.Errorf("%w from %s within %s, check logs for details", ErrLookupFailed, c.apiURL, p.Timeout)
}

func (c *Client) lookupOnce(ctx context.Context, p LookupParams) (*protocol.LookupResponse, error) {
	query := url.Values{}
	query.Set("addresses", strings.Join(p.Addresses, ","))
	if p.NodeUUID != "" {
		query.Set("node_uuid", p.NodeUUID)
	}

	req, err := c.newRequest(ctx, http.MethodGet, lookupPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(versionHeader(protocol.MinAPIVersion(c.APIVersion(ctx), protocol.AgentTokenIronicVersion)))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send lookup request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read lookup response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup failed, check if inspection has completed: %s", protocol.ErrorText(resp.StatusCode, body))
	}
	return decodeLookup(body)
}

// decodeLookup validates a lookup body. Old controllers return
// heartbeat_timeout at the top level; it is moved into config.
func decodeLookup(body []byte) (*protocol.LookupResponse, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}

	var node protocol.LookupNode
	rawNode, ok := doc["node"]
	if !ok {
		return nil, errors.New("invalid node data in lookup response: no node")
	}
	if err := json.Unmarshal(rawNode, &node); err != nil {
		return nil, fmt.Errorf("invalid node data in lookup response: %w", err)
	}
	if node.UUID == "" {
		return nil, errors.New("invalid node data in lookup response: no node uuid")
	}

	rawConfig, ok := doc["config"]
	if !ok {
		legacy, ok := doc["heartbeat_timeout"]
		if !ok {
			return nil, errors.New("invalid lookup response: no config and no heartbeat_timeout")
		}
		rawConfig = json.RawMessage(`{"heartbeat_timeout":` + string(legacy) + `}`)
	}
	var cfg protocol.LookupConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config in lookup response: %w", err)
	}
	var timeout struct {
		HeartbeatTimeout *float64 `json:"heartbeat_timeout"`
	}
	if err := json.Unmarshal(rawConfig, &timeout); err != nil || timeout.HeartbeatTimeout == nil {
		return nil, errors.New("invalid config in lookup response: no heartbeat_timeout")
	}
	if *timeout.HeartbeatTimeout <= 0 {
		return nil, fmt.Errorf("invalid config in lookup response: heartbeat_timeout %v must be positive", *timeout.HeartbeatTimeout)
	}
	return &protocol.LookupResponse{Node: node, Config: cfg}, nil
}
