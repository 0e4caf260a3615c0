package ironic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/izzyreal/fakeipa/internal/protocol"
)

// APIVersion returns the controller's default API version, discovering it
// on first use. A failed discovery falls back to the minimum supported
// version and is retried on the next call.
func (c *Client) APIVersion(ctx context.Context) protocol.APIVersion {
	c.mu.Lock()
	cached := c.apiVersion
	c.mu.Unlock()
	if cached != nil {
		return *cached
	}

	v, err := c.discoverAPIVersion(ctx)
	if err != nil {
		c.log.WithError(err).WithField("api_url", c.apiURL).
			Errorf("failed to discover the available Ironic API versions, falling back to %s", protocol.MinIronicVersion)
		return protocol.MinIronicVersion
	}

	c.mu.Lock()
	c.apiVersion = &v
	c.mu.Unlock()
	return v
}

func (c *Client) discoverAPIVersion(ctx context.Context) (protocol.APIVersion, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return protocol.APIVersion{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.APIVersion{}, fmt.Errorf("query API root: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return protocol.APIVersion{}, fmt.Errorf("read API root: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return protocol.APIVersion{}, fmt.Errorf("query API root: %s", protocol.ErrorText(resp.StatusCode, body))
	}
	var root protocol.APIRootResponse
	if err := json.Unmarshal(body, &root); err != nil {
		return protocol.APIVersion{}, fmt.Errorf("decode API root: %w", err)
	}
	return protocol.ParseAPIVersion(root.DefaultVersion.Version)
}

func versionHeader(v protocol.APIVersion) (string, string) {
	return protocol.APIVersionHeader, v.String()
}
