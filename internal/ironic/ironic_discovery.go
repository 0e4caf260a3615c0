package ironic

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/izzyreal/fakeipa/internal/logging"
)

const (
	DefaultMDNSService      = "_openstack._tcp"
	baremetalInstancePrefix = "baremetal."
	defaultDiscoverTimeout  = 5 * time.Second
)

type DiscoverOptions struct {
	Service string
	Domain  string
	Timeout time.Duration
	Logger  logging.Logger
}

// Discover finds the Ironic API announced over mDNS, the way a ramdisk does
// when booted with ipa-api-url=mdns.
func Discover(ctx context.Context, opts DiscoverOptions) (string, error) {
	if opts.Service == "" {
		opts.Service = DefaultMDNSService
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultDiscoverTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.New("discovery")
	}

	entries := make(chan *mdns.ServiceEntry, 32)
	params := mdns.DefaultParams(opts.Service)
	params.Entries = entries
	params.Timeout = opts.Timeout
	params.DisableIPv6 = true
	if opts.Domain != "" {
		params.Domain = opts.Domain
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- mdns.Query(params)
		close(entries)
	}()

	var found string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case entry, ok := <-entries:
			if !ok {
				if err := <-errCh; err != nil {
					return "", fmt.Errorf("query mDNS service %s: %w", opts.Service, err)
				}
				if found == "" {
					return "", ErrNoControllerFound
				}
				return found, nil
			}
			if found != "" {
				continue
			}
			if u, ok := apiURLFromEntry(entry); ok {
				log.WithField("api_url", u).Info("discovered ironic API via mDNS")
				found = u
			}
		}
	}
}

func apiURLFromEntry(entry *mdns.ServiceEntry) (string, bool) {
	if entry == nil || !strings.HasPrefix(entry.Name, baremetalInstancePrefix) || entry.Port <= 0 {
		return "", false
	}
	fields := infoFields(entry.InfoFields)

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		host = strings.TrimSuffix(entry.Host, ".")
	}
	if host == "" {
		return "", false
	}

	proto := fields["protocol"]
	if proto == "" {
		proto = "http"
	}
	path := strings.TrimRight(fields["path"], "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s%s", proto, net.JoinHostPort(host, strconv.Itoa(entry.Port)), path), true
}

func infoFields(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
