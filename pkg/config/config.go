// Package config loads the YAML configuration of an LWM2M client process.
//
// Priority: defaults < file < environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lwm2m-node/lwm2m-go/pkg/client"
	"github.com/lwm2m-node/lwm2m-go/pkg/registry"
	"github.com/lwm2m-node/lwm2m-go/pkg/version"
)

// ErrInvalidConfig is returned for a configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables overriding file values.
const (
	EnvName        = "LWM2M_NAME"
	EnvServerHost  = "LWM2M_SERVER_HOST"
	EnvServerPort  = "LWM2M_SERVER_PORT"
	EnvAdminListen = "LWM2M_ADMIN_LISTEN"
)

// File is the configuration file of the client process.
type File struct {
	Client     ClientConfig     `yaml:"client"`
	Server     ServerConfig     `yaml:"server"`
	Attributes AttributesConfig `yaml:"attributes"`
	Admin      AdminConfig      `yaml:"admin"`
	Log        LogConfig        `yaml:"log"`

	// Objects holds the initial resource values.
	Objects Objects `yaml:"objects"`

	// Registry is the path of a custom object definition file.
	Registry string `yaml:"registry"`
}

// ClientConfig holds the node settings.
type ClientConfig struct {
	Name                string        `yaml:"name"`
	Lifetime            int           `yaml:"lifetime"`
	Version             string        `yaml:"version"`
	Binding             string        `yaml:"binding"`
	Listen              string        `yaml:"listen"`
	RefreshMargin       time.Duration `yaml:"refresh_margin"`
	AutoReconnect       bool          `yaml:"auto_reconnect"`
	ReconnectDelay      time.Duration `yaml:"reconnect_delay"`
	ReconnectMultiplier float64       `yaml:"reconnect_multiplier"`
	ReconnectMaxDelay   time.Duration `yaml:"reconnect_max_delay"`
	ReconnectJitter     float64       `yaml:"reconnect_jitter"`
	Heartbeat           time.Duration `yaml:"heartbeat"`
	Reap                time.Duration `yaml:"reap"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
}

// ServerConfig addresses the LWM2M server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Bootstrap sends a bootstrap request before registering.
	Bootstrap bool `yaml:"bootstrap"`
}

// AttributesConfig holds the default notification periods in seconds.
type AttributesConfig struct {
	Pmin int `yaml:"pmin"`
	Pmax int `yaml:"pmax"`
}

// AdminConfig configures the admin HTTP server. An empty Listen disables it.
type AdminConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	// File is the protocol event log. Empty disables it.
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

// Default returns the default configuration.
func Default() *File {
	c := client.DefaultConfig()
	return &File{
		Client: ClientConfig{
			Lifetime:            c.Lifetime,
			Version:             c.Version,
			Binding:             c.Binding,
			Listen:              c.ListenAddress,
			RefreshMargin:       c.RefreshMargin,
			ReconnectDelay:      c.ReconnectDelay,
			ReconnectMultiplier: c.ReconnectMultiplier,
			ReconnectMaxDelay:   c.ReconnectMaxDelay,
			ReconnectJitter:     c.ReconnectJitter,
			Heartbeat:           c.HeartbeatInterval,
			Reap:                c.ReapInterval,
			RequestTimeout:      c.RequestTimeout,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 5683,
		},
		Attributes: AttributesConfig{
			Pmin: c.DefaultPmin,
			Pmax: c.DefaultPmax,
		},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes data over the defaults and applies environment overrides.
func Parse(data []byte) (*File, error) {
	f := Default()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := f.loadEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// loadEnv applies environment overrides.
func (f *File) loadEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvName); ok && v != "" {
		f.Client.Name = v
	}
	if v, ok := lookup(EnvServerHost); ok && v != "" {
		f.Server.Host = v
	}
	if v, ok := lookup(EnvServerPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvServerPort, v)
		}
		f.Server.Port = port
	}
	if v, ok := lookup(EnvAdminListen); ok {
		f.Admin.Listen = v
	}
	return nil
}

// Validate checks the file-level settings. Node settings are checked
// again by client.Config.Validate.
func (f *File) Validate() error {
	if f.Server.Port <= 0 || f.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d", ErrInvalidConfig, f.Server.Port)
	}
	if f.Server.Host == "" {
		return fmt.Errorf("%w: server host is required", ErrInvalidConfig)
	}
	if f.Attributes.Pmin < 0 || f.Attributes.Pmax < 0 {
		return fmt.Errorf("%w: negative default period", ErrInvalidConfig)
	}
	if err := version.Check(f.Client.Version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := version.CheckBinding(f.Client.Binding); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return f.Objects.validate()
}

// NodeConfig returns the node configuration. Logger, protocol logger,
// resolver and hooks are left for the caller.
func (f *File) NodeConfig() client.Config {
	c := client.DefaultConfig()
	c.Name = f.Client.Name
	c.Lifetime = f.Client.Lifetime
	c.Version = f.Client.Version
	c.Binding = f.Client.Binding
	c.ListenAddress = f.Client.Listen
	c.RefreshMargin = f.Client.RefreshMargin
	c.AutoReconnect = f.Client.AutoReconnect
	c.ReconnectDelay = f.Client.ReconnectDelay
	c.ReconnectMultiplier = f.Client.ReconnectMultiplier
	c.ReconnectMaxDelay = f.Client.ReconnectMaxDelay
	c.ReconnectJitter = f.Client.ReconnectJitter
	c.HeartbeatInterval = f.Client.Heartbeat
	c.ReapInterval = f.Client.Reap
	c.RequestTimeout = f.Client.RequestTimeout
	c.DefaultPmin = f.Attributes.Pmin
	c.DefaultPmax = f.Attributes.Pmax
	return c
}

// Resolver returns a resolver with the built-in objects plus the custom
// definitions of the registry file.
func (f *File) Resolver() (*registry.Resolver, error) {
	r := registry.New()
	if f.Registry == "" {
		return r, nil
	}
	rd, err := os.Open(f.Registry)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	if err := r.LoadYAML(rd); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Registry, err)
	}
	return r, nil
}
