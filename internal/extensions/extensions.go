// Package extensions holds the fake IPA command bodies exposed to the
// controller: standby, clean and image.
package extensions

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/izzyreal/fakeipa/internal/command"
	"github.com/izzyreal/fakeipa/internal/logging"
)

type RedfishConfig struct {
	URL      string
	User     string
	Password string
}

type Options struct {
	SystemUUID string
	Redfish    RedfishConfig
	HTTPClient *http.Client
	Logger     logging.Logger
}

// ForSystem returns the extensions of one fake agent.
func ForSystem(opts Options) []command.Extension {
	if opts.Logger == nil {
		opts.Logger = logging.New("extensions")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewRedfishHTTPClient()
	}
	return []command.Extension{
		&Standby{systemUUID: opts.SystemUUID, redfish: opts.Redfish, client: opts.HTTPClient, log: opts.Logger.WithField("extension", "standby")},
		&Clean{log: opts.Logger.WithField("extension", "clean")},
		&Image{log: opts.Logger.WithField("extension", "image")},
	}
}

// NewRedfishHTTPClient returns the client used for power actions. The
// emulated BMC uses a self-signed certificate, so verification is off.
func NewRedfishHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}
