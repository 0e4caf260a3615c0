package ironic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/protocol"
)

type HeartbeatParams struct {
	NodeUUID          string
	AdvertiseHost     string
	AdvertisePort     int
	AdvertiseProtocol string
	GeneratedCert     string
}

// CallbackURL is the agent API address the controller uses to reach the
// node: <protocol>://<host>:<port>/<node uuid>.
func CallbackURL(proto, host string, port int, nodeUUID string) string {
	if proto == "" {
		proto = "http"
	}
	return fmt.Sprintf("%s://%s/%s", proto, net.JoinHostPort(host, strconv.Itoa(port)), nodeUUID)
}

// BuildHeartbeat returns the request body for the given negotiated
// version.
func (c *Client) BuildHeartbeat(v protocol.APIVersion, p HeartbeatParams) protocol.HeartbeatRequest {
	req := protocol.HeartbeatRequest{
		CallbackURL: CallbackURL(p.AdvertiseProtocol, p.AdvertiseHost, p.AdvertisePort, p.NodeUUID),
	}
	if v.AtLeast(protocol.AgentTokenIronicVersion) {
		req.WithToken = true
		if token := c.AgentToken(); token != "" {
			req.AgentToken = &token
		}
	}
	if v.AtLeast(protocol.AgentVersionIronicVersion) {
		req.AgentVersion = c.agentVersion
	}
	if v.AtLeast(protocol.AgentVerifyCAIronicVersion) && p.GeneratedCert != "" {
		req.AgentVerifyCA = p.GeneratedCert
	}
	return req
}

// Heartbeat announces the agent callback URL. Only 202 is success. 409 and
// 404 map to ErrHeartbeatConflict and ErrHeartbeatNotFound, network
// failures to ErrHeartbeatConnection and everything else to ErrHeartbeat.
func (c *Client) Heartbeat(ctx context.Context, p HeartbeatParams) error {
	v := c.APIVersion(ctx)
	body := c.BuildHeartbeat(v, p)
	headerVersion := protocol.MinAPIVersion(protocol.MaxKnownIronicVersion, v)

	c.log.WithFields(logrus.Fields{
		"callback_url": body.CallbackURL,
		"api_version":  headerVersion.String(),
	}).Debug("heartbeat: announcing callback URL")

	req, err := c.newRequest(ctx, http.MethodPost, heartbeatPath+url.PathEscape(p.NodeUUID), body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHeartbeat, err)
	}
	req.Header.Set(versionHeader(headerVersion))
	req.Header.Set("Connection", "close")
	req.Close = true

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrHeartbeatConflict, protocol.ErrorText(resp.StatusCode, readErrorBody(resp)))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrHeartbeatNotFound, protocol.ErrorText(resp.StatusCode, readErrorBody(resp)))
	case resp.StatusCode != http.StatusAccepted:
		return fmt.Errorf("%w: %s", ErrHeartbeat, protocol.ErrorText(resp.StatusCode, readErrorBody(resp)))
	}
	return nil
}

// classifyTransportError maps failures to reach the controller, including
// dial timeouts, to ErrHeartbeatConnection. Timeouts waiting for a response
// stay ErrHeartbeat.
func classifyTransportError(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op != "dial" && opErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrHeartbeat, err)
		}
		return fmt.Errorf("%w: %v", ErrHeartbeatConnection, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrHeartbeatConnection, err)
	}
	return fmt.Errorf("%w: %v", ErrHeartbeat, err)
}
