package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig marks a configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds configuration values for both the server and the client.
type Config struct {
	// Name is the server name. A numeric name is a port on ListenHost.
	Name string `mapstructure:"name" yaml:"name"`
	// Peers lists peer servers as "<port>" or "<name>@<host:port>".
	Peers      []string `mapstructure:"peers" yaml:"peers"`
	ListenHost string   `mapstructure:"listen_host" yaml:"listen_host"`
	// ListenAddr overrides the address derived from Name.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	BufferSize      int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	IOTimeout       time.Duration `mapstructure:"io_timeout" yaml:"io_timeout"`
	QueueSize       int           `mapstructure:"queue_size" yaml:"queue_size"`
	OutboxLimit     int           `mapstructure:"outbox_limit" yaml:"outbox_limit"`
	MaxHops         int           `mapstructure:"max_hops" yaml:"max_hops"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	StatusAddr   string `mapstructure:"status_addr" yaml:"status_addr"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	KeyCost      int    `mapstructure:"key_cost" yaml:"key_cost"`

	// Nickname is used by the client only.
	Nickname string `mapstructure:"nickname" yaml:"nickname"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ListenHost:      "localhost",
		BufferSize:      1024,
		IOTimeout:       5 * time.Second,
		QueueSize:       64,
		OutboxLimit:     256,
		MaxHops:         8,
		PollInterval:    2 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		DatabasePath:    ":memory:",
		LogLevel:        "info",
		KeyCost:         10,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Name != "" {
		c.Name = other.Name
	}
	if len(other.Peers) != 0 {
		c.Peers = append([]string(nil), other.Peers...)
	}
	if other.ListenHost != "" {
		c.ListenHost = other.ListenHost
	}
	if other.ListenAddr != "" {
		c.ListenAddr = other.ListenAddr
	}
	if other.BufferSize != 0 {
		c.BufferSize = other.BufferSize
	}
	if other.IOTimeout != 0 {
		c.IOTimeout = other.IOTimeout
	}
	if other.QueueSize != 0 {
		c.QueueSize = other.QueueSize
	}
	if other.OutboxLimit != 0 {
		c.OutboxLimit = other.OutboxLimit
	}
	if other.MaxHops != 0 {
		c.MaxHops = other.MaxHops
	}
	if other.PollInterval != 0 {
		c.PollInterval = other.PollInterval
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.StatusAddr != "" {
		c.StatusAddr = other.StatusAddr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.KeyCost != 0 {
		c.KeyCost = other.KeyCost
	}
	if other.Nickname != "" {
		c.Nickname = other.Nickname
	}
}

// Peer is a resolved peer server.
type Peer struct {
	Name string
	Addr string
}

// ParsePeer parses "<port>" or "<name>@<host:port>". A bare port listens
// on host.
func ParsePeer(entry, host string) (Peer, error) {
	entry = strings.TrimSpace(entry)
	if name, addr, ok := strings.Cut(entry, "@"); ok {
		if err := validServerName(name); err != nil {
			return Peer{}, err
		}
		if addr == "" {
			return Peer{}, fmt.Errorf("%w: peer %q has no address", ErrInvalidConfig, entry)
		}
		return Peer{Name: name, Addr: addr}, nil
	}
	if err := validServerName(entry); err != nil {
		return Peer{}, err
	}
	return Peer{Name: entry, Addr: joinHost(host, entry)}, nil
}

// Validate checks the server settings and returns the parsed peers.
func (c Config) Validate() ([]Peer, error) {
	if err := validServerName(c.Name); err != nil {
		return nil, err
	}
	if c.ListenAddr == "" {
		if _, err := strconv.Atoi(c.Name); err != nil {
			return nil, fmt.Errorf("%w: non-numeric name %q needs listen_addr", ErrInvalidConfig, c.Name)
		}
	}
	peers := make([]Peer, 0, len(c.Peers))
	seen := map[string]bool{c.Name: true}
	for _, entry := range c.Peers {
		p, err := ParsePeer(entry, c.ListenHost)
		if err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: duplicate server name %q", ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = true
		peers = append(peers, p)
	}
	return peers, nil
}

// ListenAddress returns the address the server binds to.
func (c Config) ListenAddress() string {
	if c.ListenAddr != "" {
		return c.ListenAddr
	}
	return joinHost(c.ListenHost, c.Name)
}

// Resolver returns a function mapping server names to addresses. Names of
// configured peers map to their address; other names are treated as a
// port on ListenHost when numeric and as an address otherwise.
func (c Config) Resolver(peers []Peer) func(string) string {
	known := make(map[string]string, len(peers))
	for _, p := range peers {
		known[p.Name] = p.Addr
	}
	host := c.ListenHost
	return func(name string) string {
		if addr, ok := known[name]; ok {
			return addr
		}
		if _, err := strconv.Atoi(name); err == nil {
			return joinHost(host, name)
		}
		return name
	}
}

func joinHost(host, port string) string {
	if host == "" {
		host = "localhost"
	}
	return host + ":" + port
}

func validServerName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty server name", ErrInvalidConfig)
	}
	if name == "*" || strings.ContainsAny(name, ":@ \t\r\n") {
		return fmt.Errorf("%w: server name %q contains a reserved character", ErrInvalidConfig, name)
	}
	return nil
}
