package config

import (
	"net"
	"strconv"
	"time"
)

// Config represents the complete livebridge configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Host    HostConfig    `yaml:"host"`
	Client  ClientConfig  `yaml:"client"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Session SessionConfig `yaml:"session"`
	Journal JournalConfig `yaml:"journal"`
	Events  EventsConfig  `yaml:"events"`
	API     APIConfig     `yaml:"api,omitempty"`

	// SourceFile is the absolute path the config was loaded from, empty when
	// running on defaults.
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string        `yaml:"name"`
	TickInterval time.Duration `yaml:"tick_interval"`
	LogLevel     string        `yaml:"log_level" env:"LIVEBRIDGE_LOG_LEVEL"`
	LogFormat    string        `yaml:"log_format"`
	// PIDDir holds the per-port instance lock files.
	PIDDir string `yaml:"pid_dir"`
}

// HostConfig defines where the host listens and what it tells new clients.
type HostConfig struct {
	Address string `yaml:"address" env:"LIVEBRIDGE_HOST"`
	Port    int    `yaml:"port" env:"LIVEBRIDGE_PORT"`
	// Greeting is the connected message. Ignored when DisableGreeting is set.
	Greeting        string        `yaml:"greeting"`
	DisableGreeting bool          `yaml:"disable_greeting"`
	MaxFrameSize    int           `yaml:"max_frame_size"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// ClientConfig defines per-class receive deadlines and pacing.
type ClientConfig struct {
	ReadOnlyTimeout    time.Duration `yaml:"read_only_timeout"`
	MutatingTimeout    time.Duration `yaml:"mutating_timeout"`
	LongRunningTimeout time.Duration `yaml:"long_running_timeout" env:"LIVEBRIDGE_LONG_TIMEOUT"`
	SettleDelay        time.Duration `yaml:"settle_delay"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	GreetingTimeout    time.Duration `yaml:"greeting_timeout"`
}

// BridgeConfig defines how long a dispatch waits on the main loop.
type BridgeConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	LongRunningTimeout time.Duration `yaml:"long_running_timeout" env:"LIVEBRIDGE_LONG_TIMEOUT"`
	QueueSize          int           `yaml:"queue_size"`
}

// SessionConfig shapes the demo session the host starts with.
type SessionConfig struct {
	Tracks       int           `yaml:"tracks"`
	Scenes       int           `yaml:"scenes"`
	BrowserDelay time.Duration `yaml:"browser_delay"`
}

// JournalConfig defines command journal storage.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// EventsConfig sizes the in-memory event hub.
type EventsConfig struct {
	Capacity int `yaml:"capacity"`
}

// APIConfig defines HTTP status API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// Token is an optional bearer token, usually given as ${VAR}.
	Token string `yaml:"token,omitempty"`
}

// Endpoint returns the host:port the host listens on and clients dial.
func (h HostConfig) Endpoint() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// GreetingMessage returns the greeting to send, or "" when disabled.
func (h HostConfig) GreetingMessage() string {
	if h.DisableGreeting {
		return ""
	}
	return h.Greeting
}

// Defaults returns a Config with the stock settings.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "livebridge",
			TickInterval: 100 * time.Millisecond,
			LogLevel:     "info",
			LogFormat:    "json",
			PIDDir:       "./data",
		},
		Host: HostConfig{
			Address:      "localhost",
			Port:         9877,
			Greeting:     "livebridge ready",
			MaxFrameSize: 16 << 20,
			WriteTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			ReadOnlyTimeout:    12 * time.Second,
			MutatingTimeout:    30 * time.Second,
			LongRunningTimeout: 120 * time.Second,
			SettleDelay:        100 * time.Millisecond,
			ConnectTimeout:     5 * time.Second,
			GreetingTimeout:    5 * time.Second,
		},
		Bridge: BridgeConfig{
			Timeout:            10 * time.Second,
			LongRunningTimeout: 120 * time.Second,
			QueueSize:          64,
		},
		Session: SessionConfig{
			Tracks: 2,
			Scenes: 8,
		},
		Journal: JournalConfig{
			Enabled:   true,
			Path:      "./data/journal.db",
			Retention: 7 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Capacity: 256,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9878",
		},
	}
}
