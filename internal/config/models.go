package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Defaults
const (
	DefaultRequestTimeout  = 2 * time.Second
	DefaultProbeTimeout    = 3 * time.Second
	DefaultResolveTimeout  = time.Second
	DefaultLivenessTimeout = 3 * time.Second
	DefaultListenAddr      = ":6666"
	DefaultNotifyPath      = "/wsd"
	DefaultDisplayName     = "wsdtool"
	DefaultScanDir         = "scans"
)

// Config represents the entire user configuration file
type Config struct {
	Version  int                `yaml:"version"`
	Timeouts Timeouts           `yaml:"timeouts"`
	Events   Events             `yaml:"events"`
	Cache    string             `yaml:"cache_path,omitempty"` // Empty means WSD_CACHE_PATH or ~/.wsdcache.db
	Devices  map[string]*Device `yaml:"devices,omitempty"`    // Keyed by endpoint reference address
}

// Timeouts holds the network timeouts
type Timeouts struct {
	Request  time.Duration `yaml:"request"`  // One HTTP exchange
	Probe    time.Duration `yaml:"probe"`    // Silence that ends a probe
	Resolve  time.Duration `yaml:"resolve"`  // Wait for a resolve match
	Liveness time.Duration `yaml:"liveness"` // Cached target liveness check
}

// Events configures the notification listener
type Events struct {
	Listen      string `yaml:"listen"`           // Local address the listener binds
	Notify      string `yaml:"notify,omitempty"` // URL given to devices; derived from Listen when empty
	DisplayName string `yaml:"display_name"`     // Shown on the scanner panel
	ScanDir     string `yaml:"scan_dir"`         // Where device-initiated scans are written
}

// Device is user metadata for one target
type Device struct {
	Nickname string `yaml:"nickname,omitempty"`
}

// Default creates a Config with default values
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Timeouts: Timeouts{
			Request:  DefaultRequestTimeout,
			Probe:    DefaultProbeTimeout,
			Resolve:  DefaultResolveTimeout,
			Liveness: DefaultLivenessTimeout,
		},
		Events: Events{
			Listen:      DefaultListenAddr,
			DisplayName: DefaultDisplayName,
			ScanDir:     DefaultScanDir,
		},
		Devices: make(map[string]*Device),
	}
}

// fill replaces zero values with defaults
func (c *Config) fill() {
	d := Default()
	if c.Timeouts.Request <= 0 {
		c.Timeouts.Request = d.Timeouts.Request
	}
	if c.Timeouts.Probe <= 0 {
		c.Timeouts.Probe = d.Timeouts.Probe
	}
	if c.Timeouts.Resolve <= 0 {
		c.Timeouts.Resolve = d.Timeouts.Resolve
	}
	if c.Timeouts.Liveness <= 0 {
		c.Timeouts.Liveness = d.Timeouts.Liveness
	}
	if c.Events.Listen == "" {
		c.Events.Listen = d.Events.Listen
	}
	if c.Events.DisplayName == "" {
		c.Events.DisplayName = d.Events.DisplayName
	}
	if c.Events.ScanDir == "" {
		c.Events.ScanDir = d.Events.ScanDir
	}
	if c.Devices == nil {
		c.Devices = make(map[string]*Device)
	}
}

// Nickname returns the nickname configured for epRefAddr, or ""
func (c *Config) Nickname(epRefAddr string) string {
	if d := c.Devices[epRefAddr]; d != nil {
		return d.Nickname
	}
	return ""
}

// SetNickname records a nickname for epRefAddr. An empty name removes it.
func (c *Config) SetNickname(epRefAddr, name string) {
	if name == "" {
		delete(c.Devices, epRefAddr)
		return
	}
	if c.Devices == nil {
		c.Devices = make(map[string]*Device)
	}
	c.Devices[epRefAddr] = &Device{Nickname: name}
}

// NotifyAddr returns the URL devices post events to. Without an explicit
// notify address it is built from the listen port and the host's outbound
// address.
func (e Events) NotifyAddr() (string, error) {
	if e.Notify != "" {
		return e.Notify, nil
	}
	host, port, err := net.SplitHostPort(e.Listen)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", e.Listen, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		ip, err := LocalIP()
		if err != nil {
			return "", err
		}
		host = ip.String()
	}
	return "http://" + net.JoinHostPort(host, port) + DefaultNotifyPath, nil
}

// LocalIP returns the address the host uses to reach the WS-Discovery
// multicast group. No packet is sent.
func LocalIP() (net.IP, error) {
	conn, err := net.Dial("udp4", "239.255.255.250:3702")
	if err != nil {
		return nil, fmt.Errorf("cannot determine local address: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return nil, fmt.Errorf("cannot determine local address from %s", conn.LocalAddr())
	}
	return addr.IP, nil
}

func (c *Config) validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.Events.Notify != "" && !strings.HasPrefix(c.Events.Notify, "http://") {
		return fmt.Errorf("notify address must be an http URL: %q", c.Events.Notify)
	}
	return nil
}
