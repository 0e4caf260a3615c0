package server

import (
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/mdns"

	"github.com/izzyreal/fakeipa/internal/logging"
	"github.com/izzyreal/fakeipa/internal/version"
)

const defaultMDNSService = "_fake-ipa._tcp"

type MDNSConfig struct {
	Enabled  bool
	Instance string
	Service  string
}

// startMDNSAdvertiser announces the agent API so BMC emulators can find
// the notification endpoint. The returned func stops it.
func startMDNSAdvertiser(cfg MDNSConfig, listenAddr string, log logging.Logger) func() {
	if !cfg.Enabled {
		return func() {}
	}
	portNum, err := strconv.Atoi(listenPortFromAddr(listenAddr))
	if err != nil || portNum <= 0 {
		return func() {}
	}

	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = defaultMDNSService
	}
	instance := strings.TrimSpace(cfg.Instance)
	if instance == "" {
		host, _ := os.Hostname()
		instance = "fake-ipa"
		if strings.TrimSpace(host) != "" {
			instance = "fake-ipa-" + host
		}
	}

	meta := []string{
		"name=fake-ipa",
		"protocol=http",
		"version=" + version.Current(),
	}
	ips := discoverAdvertiseIPs()
	zone, err := mdns.NewMDNSService(instance, service, "", "", portNum, ips, meta)
	if err != nil {
		log.WithError(err).Error("mdns advertise service setup failed")
		return func() {}
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		log.WithError(err).Error("mdns advertise start failed")
		return func() {}
	}
	log.WithField("service", service).WithField("instance", instance).WithField("port", portNum).Info("mdns advertising enabled")

	return func() {
		_ = server.Shutdown()
	}
}

func discoverAdvertiseIPs() []net.IP {
	ifAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	return filterAdvertiseIPs(ifAddrs)
}

// filterAdvertiseIPs keeps routable unicast addresses, IPv4 first.
func filterAdvertiseIPs(addrs []net.Addr) []net.IP {
	seen := map[string]struct{}{}
	out := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet == nil || ipNet.IP == nil {
			continue
		}
		ip := ipNet.IP
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			continue
		}
		normalized := ip.To16()
		if normalized == nil {
			continue
		}
		key := normalized.String()
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Slice(out, func(i, j int) bool {
		ai := out[i].To4() != nil
		aj := out[j].To4() != nil
		if ai != aj {
			return ai
		}
		return out[i].String() < out[j].String()
	})
	return out
}

func listenPortFromAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, ":") {
		return strings.TrimPrefix(addr, ":")
	}
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return p
}
