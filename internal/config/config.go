package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/izzyreal/fakeipa/internal/heartbeat"
	"github.com/izzyreal/fakeipa/internal/logging"
)

type File struct {
	APIURL     string           `yaml:"api_url"`
	Advertise  Advertise        `yaml:"advertise"`
	Listen     Listen           `yaml:"listen"`
	Inspection Inspection       `yaml:"inspection"`
	Boot       Boot             `yaml:"boot"`
	Lookup     Lookup           `yaml:"lookup"`
	Heartbeat  heartbeat.Config `yaml:"heartbeat"`
	Commands   Commands         `yaml:"commands"`
	TLS        TLS              `yaml:"tls"`
	Redfish    Redfish          `yaml:"redfish"`
	MDNS       MDNS             `yaml:"mdns"`
	GRPCHealth GRPCHealth       `yaml:"grpc_health"`
	Log        logging.Config   `yaml:"log"`
}

type Advertise struct {
	IP       string `yaml:"ip"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol"`
}

type Listen struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

func (l Listen) Addr() string {
	return net.JoinHostPort(l.IP, strconv.Itoa(l.Port))
}

type Inspection struct {
	// CallbackURL is nil when unset; an explicit empty string disables
	// inspection.
	CallbackURL *string `yaml:"callback_url"`
}

func (i Inspection) URL() string {
	if i.CallbackURL == nil {
		return ""
	}
	return *i.CallbackURL
}

type Boot struct {
	MinTime time.Duration `yaml:"min_time"`
	MaxTime time.Duration `yaml:"max_time"`
}

type Lookup struct {
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

type Commands struct {
	AsyncMinDelay time.Duration `yaml:"async_min_delay"`
	AsyncMaxDelay time.Duration `yaml:"async_max_delay"`
	Disabled      []string      `yaml:"disabled"`
}

type TLS struct {
	Insecure bool   `yaml:"insecure"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type Redfish struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type MDNS struct {
	Service   string        `yaml:"service"`
	Domain    string        `yaml:"domain"`
	Timeout   time.Duration `yaml:"timeout"`
	Advertise bool          `yaml:"advertise"`
	Instance  string        `yaml:"instance"`
	// AdvertiseService is the service type the agent API is announced as.
	AdvertiseService string `yaml:"advertise_service"`
}

type GRPCHealth struct {
	Listen        string        `yaml:"listen"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	return Parse(data, path)
}

// Parse decodes data, fills defaults, applies FAKE_IPA_* environment
// overrides and validates the result.
func Parse(data []byte, source string) (File, error) {
	return parse(data, source, os.LookupEnv)
}

func parse(data []byte, source string, lookupEnv func(string) (string, bool)) (File, error) {
	var cfg File

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse YAML in %q: %w", source, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return cfg, fmt.Errorf("invalid environment override: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid config in %q: %s", source, strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (cfg *File) ApplyDefaults() {
	setDefault(&cfg.APIURL, "http://localhost:6385")
	setDefault(&cfg.Advertise.Protocol, "http")
	setDefault(&cfg.Listen.IP, "0.0.0.0")
	setDefault(&cfg.Redfish.User, "admin")
	setDefault(&cfg.Redfish.Password, "password")
	setDefault(&cfg.MDNS.Service, "_openstack._tcp")
	setDefault(&cfg.Log.Level, "info")
	setDefault(&cfg.Log.Format, "text")
	setDefault(&cfg.Log.Output, "stderr")

	if cfg.Advertise.Port == 0 {
		cfg.Advertise.Port = 9999
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 9999
	}
	if cfg.Inspection.CallbackURL == nil {
		def := "http://localhost:5050/v1/continue"
		cfg.Inspection.CallbackURL = &def
	}
	if cfg.Boot.MinTime == 0 && cfg.Boot.MaxTime == 0 {
		cfg.Boot.MinTime, cfg.Boot.MaxTime = 180*time.Second, 240*time.Second
	}
	setDurationDefault(&cfg.Lookup.Timeout, 300*time.Second)
	setDurationDefault(&cfg.Lookup.Interval, time.Second)
	setDurationDefault(&cfg.Lookup.MaxInterval, 30*time.Second)
	if cfg.Commands.AsyncMinDelay == 0 && cfg.Commands.AsyncMaxDelay == 0 {
		cfg.Commands.AsyncMinDelay, cfg.Commands.AsyncMaxDelay = 5*time.Second, 10*time.Second
	}
	setDurationDefault(&cfg.MDNS.Timeout, 5*time.Second)

	def := heartbeat.DefaultConfig()
	if cfg.Heartbeat.Workers == 0 {
		cfg.Heartbeat.Workers = def.Workers
	}
	setDurationDefault(&cfg.Heartbeat.MinInterval, def.MinInterval)
	setDurationDefault(&cfg.Heartbeat.ForcedInterval, def.ForcedInterval)
	if cfg.Heartbeat.JitterMin == 0 && cfg.Heartbeat.JitterMax == 0 {
		cfg.Heartbeat.JitterMin, cfg.Heartbeat.JitterMax = def.JitterMin, def.JitterMax
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func setDurationDefault(field *time.Duration, value time.Duration) {
	if *field == 0 {
		*field = value
	}
}

func (cfg File) Validate() []string {
	var errs []string

	if strings.TrimSpace(cfg.Advertise.IP) == "" {
		errs = append(errs, "advertise.ip is required")
	}
	if !validPort(cfg.Advertise.Port) {
		errs = append(errs, fmt.Sprintf("advertise.port %d out of range", cfg.Advertise.Port))
	}
	if !slices.Contains([]string{"http", "https"}, cfg.Advertise.Protocol) {
		errs = append(errs, fmt.Sprintf("advertise.protocol must be one of http,https, got %q", cfg.Advertise.Protocol))
	}
	if !validPort(cfg.Listen.Port) {
		errs = append(errs, fmt.Sprintf("listen.port %d out of range", cfg.Listen.Port))
	}

	if cfg.Boot.MinTime < 0 || cfg.Boot.MinTime > cfg.Boot.MaxTime {
		errs = append(errs, "boot.min_time must be >= 0 and <= boot.max_time")
	}
	if cfg.Commands.AsyncMinDelay < 0 || cfg.Commands.AsyncMinDelay > cfg.Commands.AsyncMaxDelay {
		errs = append(errs, "commands.async_min_delay must be >= 0 and <= commands.async_max_delay")
	}
	if cfg.Lookup.Timeout < 0 || cfg.Lookup.Interval < 0 || cfg.Lookup.MaxInterval < 0 {
		errs = append(errs, "lookup durations must be >= 0")
	}

	hb := cfg.Heartbeat
	if hb.Workers < 1 {
		errs = append(errs, "heartbeat.workers must be >= 1")
	}
	if hb.JitterMin <= 0 || hb.JitterMax > 1 || hb.JitterMin > hb.JitterMax {
		errs = append(errs, "heartbeat jitter must satisfy 0 < jitter_min <= jitter_max <= 1")
	}
	if hb.MinInterval < 0 || hb.ForcedInterval < 0 {
		errs = append(errs, "heartbeat intervals must be >= 0")
	}

	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		errs = append(errs, "tls.cert_file and tls.key_file must be set together")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, strings.ToLower(cfg.Log.Level)) {
		errs = append(errs, fmt.Sprintf("log.level unsupported %q", cfg.Log.Level))
	}
	if !slices.Contains([]string{"text", "json"}, cfg.Log.Format) {
		errs = append(errs, fmt.Sprintf("log.format must be one of text,json, got %q", cfg.Log.Format))
	}
	if !slices.Contains([]string{"stdout", "stderr", "file"}, cfg.Log.Output) {
		errs = append(errs, fmt.Sprintf("log.output must be one of stdout,stderr,file, got %q", cfg.Log.Output))
	}
	if cfg.Log.Output == "file" && strings.TrimSpace(cfg.Log.FilePath) == "" {
		errs = append(errs, "log.file_path is required when log.output is file")
	}

	for i, pattern := range cfg.Commands.Disabled {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Sprintf("commands.disabled[%d] invalid pattern %q", i, pattern))
		}
	}

	return errs
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
