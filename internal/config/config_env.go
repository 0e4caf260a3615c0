package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/izzyreal/fakeipa/internal/agent"
	"github.com/izzyreal/fakeipa/internal/extensions"
	"github.com/izzyreal/fakeipa/internal/ironic"
	"github.com/izzyreal/fakeipa/internal/server"
)

// ApplyEnv overrides fields from FAKE_IPA_* variables, the names sushy-tools
// deployments already export.
func (cfg *File) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, field *string) {
		if v, ok := lookup(name); ok {
			*field = strings.TrimSpace(v)
		}
	}
	str("FAKE_IPA_API_URL", &cfg.APIURL)
	str("FAKE_IPA_ADVERTISE_ADDRESS_IP", &cfg.Advertise.IP)
	str("FAKE_IPA_CAFILE", &cfg.TLS.CAFile)
	str("FAKE_IPA_CERTFILE", &cfg.TLS.CertFile)
	str("FAKE_IPA_KEYFILE", &cfg.TLS.KeyFile)
	str("FAKE_IPA_REDFISH_URL", &cfg.Redfish.URL)
	str("FAKE_IPA_REDFISH_USER", &cfg.Redfish.User)
	str("FAKE_IPA_REDFISH_PASSWORD", &cfg.Redfish.Password)
	str("SUSHY_FAKE_IPA_LISTEN_IP", &cfg.Listen.IP)

	if v, ok := lookup("FAKE_IPA_INSPECTION_CALLBACK_URL"); ok {
		v = strings.TrimSpace(v)
		cfg.Inspection.CallbackURL = &v
	}

	for name, field := range map[string]*int{
		"FAKE_IPA_ADVERTISE_ADDRESS_PORT": &cfg.Advertise.Port,
		"SUSHY_FAKE_IPA_LISTEN_PORT":      &cfg.Listen.Port,
	} {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = n
	}

	for name, field := range map[string]*time.Duration{
		"FAKE_IPA_MIN_BOOT_TIME": &cfg.Boot.MinTime,
		"FAKE_IPA_MAX_BOOT_TIME": &cfg.Boot.MaxTime,
	} {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = d
	}

	if v, ok := lookup("FAKE_IPA_INSECURE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("FAKE_IPA_INSECURE: %w", err)
		}
		cfg.TLS.Insecure = b
	}
	return nil
}

// parseSeconds accepts a bare number of seconds or a Go duration string.
func parseSeconds(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

func (cfg File) ListenAddr() string {
	return cfg.Listen.Addr()
}

func (cfg File) TLSOptions() ironic.TLSOptions {
	return ironic.TLSOptions{
		Insecure: cfg.TLS.Insecure,
		CAFile:   cfg.TLS.CAFile,
		CertFile: cfg.TLS.CertFile,
		KeyFile:  cfg.TLS.KeyFile,
	}
}

func (cfg File) AgentSettings() agent.Settings {
	return agent.Settings{
		APIURL:                cfg.APIURL,
		AdvertiseIP:           cfg.Advertise.IP,
		AdvertisePort:         cfg.Advertise.Port,
		AdvertiseProtocol:     cfg.Advertise.Protocol,
		InspectionCallbackURL: cfg.Inspection.URL(),
		BootMinTime:           cfg.Boot.MinTime,
		BootMaxTime:           cfg.Boot.MaxTime,
		LookupTimeout:         cfg.Lookup.Timeout,
		LookupInterval:        cfg.Lookup.Interval,
		LookupMaxInterval:     cfg.Lookup.MaxInterval,
		AsyncMinDelay:         cfg.Commands.AsyncMinDelay,
		AsyncMaxDelay:         cfg.Commands.AsyncMaxDelay,
		DisabledCommands:      append([]string(nil), cfg.Commands.Disabled...),
		Redfish: extensions.RedfishConfig{
			URL:      cfg.Redfish.URL,
			User:     cfg.Redfish.User,
			Password: cfg.Redfish.Password,
		},
		MDNS: ironic.DiscoverOptions{
			Service: cfg.MDNS.Service,
			Domain:  cfg.MDNS.Domain,
			Timeout: cfg.MDNS.Timeout,
		},
	}
}

func (cfg File) ServerConfig() server.Config {
	return server.Config{
		ListenAddr: cfg.ListenAddr(),
		MDNS: server.MDNSConfig{
			Enabled:  cfg.MDNS.Advertise,
			Instance: cfg.MDNS.Instance,
			Service:  cfg.MDNS.AdvertiseService,
		},
		GRPCHealth: server.GRPCHealthConfig{
			ListenAddr:    cfg.GRPCHealth.Listen,
			ProbeInterval: cfg.GRPCHealth.ProbeInterval,
		},
	}
}
