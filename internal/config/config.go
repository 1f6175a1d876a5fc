// Package config loads process settings from defaults, an optional file and
// REFLECTGRAPH_ environment variables, in increasing precedence.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides; server.addr is read from
// REFLECTGRAPH_SERVER_ADDR.
const EnvPrefix = "REFLECTGRAPH"

type Config struct {
	Server    Server    `mapstructure:"server"`
	Schema    Schema    `mapstructure:"schema"`
	Transport Transport `mapstructure:"transport"`
	Otel      Otel      `mapstructure:"otel"`
	Log       Log       `mapstructure:"log"`
}

type Server struct {
	Addr         string        `mapstructure:"addr"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Pretty       bool          `mapstructure:"pretty"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	GraphiQL     bool          `mapstructure:"graphiql"`
	Metrics      string        `mapstructure:"metrics_path"`
	// MetadataHeaders are forwarded from HTTP requests to outgoing gRPC
	// metadata.
	MetadataHeaders []string `mapstructure:"metadata_headers"`
}

// Schema names the root types and which services back each root.
// Descriptors is a FileDescriptorSet holding every listed service.
type Schema struct {
	Descriptors   string   `mapstructure:"descriptors"`
	Introspection bool     `mapstructure:"introspection"`
	Query         string   `mapstructure:"query"`
	Mutation      string   `mapstructure:"mutation"`
	Subscription  string   `mapstructure:"subscription"`
	Services      Services `mapstructure:"services"`
}

// Services lists fully qualified gRPC service names per root operation. An
// entry may name a single method as service/Method.
type Services struct {
	Query        []string `mapstructure:"query"`
	Mutation     []string `mapstructure:"mutation"`
	Subscription []string `mapstructure:"subscription"`
}

type Transport struct {
	// Backends routes services to dial targets. A "*" service matches
	// services without their own entry.
	Backends            []Backend     `mapstructure:"backends"`
	RPCTimeout          time.Duration `mapstructure:"rpc_timeout"`
	MaxConnsPerEndpoint int           `mapstructure:"max_conns_per_endpoint"`
	MaxMessageBytes     int           `mapstructure:"max_message_bytes"`
}

// Backend is kept as a list entry because viper folds the case of map keys
// and treats their dots as nesting, both of which break service names.
type Backend struct {
	Service string `mapstructure:"service"`
	Target  string `mapstructure:"target"`
}

type Otel struct {
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults installs the default of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.timeout", 10*time.Second)
	v.SetDefault("server.pretty", false)
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.graphiql", true)
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.metadata_headers", []string{})

	v.SetDefault("schema.descriptors", "")
	v.SetDefault("schema.introspection", true)
	v.SetDefault("schema.query", "Query")
	v.SetDefault("schema.mutation", "Mutation")
	v.SetDefault("schema.subscription", "Subscription")
	v.SetDefault("schema.services.query", []string{})
	v.SetDefault("schema.services.mutation", []string{})
	v.SetDefault("schema.services.subscription", []string{})

	v.SetDefault("transport.backends", []Backend{})
	v.SetDefault("transport.rpc_timeout", 5*time.Second)
	v.SetDefault("transport.max_conns_per_endpoint", 4)
	v.SetDefault("transport.max_message_bytes", 4<<20)

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service", "reflectgraph")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// New returns a viper instance with defaults and environment binding. When
// path is not empty the file is read; its format follows the extension.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}
	return v, nil
}

// Load reads and validates the configuration.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	roots := []struct{ role, name string }{
		{"query", c.Schema.Query},
		{"mutation", c.Schema.Mutation},
		{"subscription", c.Schema.Subscription},
	}
	names := map[string]string{}
	for _, r := range roots {
		if r.name == "" {
			return errors.Newf("schema.%s: root type name is empty", r.role)
		}
		if other, ok := names[r.name]; ok {
			return errors.Newf("schema.%s: %q is already the %s root", r.role, r.name, other)
		}
		names[r.name] = r.role
	}
	for i, b := range c.Transport.Backends {
		if b.Service == "" || b.Target == "" {
			return errors.Newf("transport.backends[%d]: service and target are required", i)
		}
	}
	if c.Transport.MaxConnsPerEndpoint < 1 {
		return errors.Newf("transport.max_conns_per_endpoint must be positive, got %d", c.Transport.MaxConnsPerEndpoint)
	}
	if c.Transport.MaxMessageBytes < 0 {
		return errors.Newf("transport.max_message_bytes must not be negative, got %d", c.Transport.MaxMessageBytes)
	}
	if c.Transport.RPCTimeout < 0 || c.Server.Timeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// CheckBackends reports listed services without a dial target. Commands
// that never dial skip it.
func (c *Config) CheckBackends() error {
	for _, svc := range c.Schema.Services.All() {
		name, _, _ := strings.Cut(svc, "/")
		if _, ok := c.Transport.Backend(name); !ok {
			return errors.Newf("transport.backends: no target for %s", svc)
		}
	}
	return nil
}

// Backend returns the dial target for service.
func (t Transport) Backend(service string) (string, bool) {
	fallback, found := "", false
	for _, b := range t.Backends {
		switch b.Service {
		case service:
			return b.Target, true
		case "*":
			fallback, found = b.Target, true
		}
	}
	return fallback, found
}

// All returns every listed entry in root order.
func (s Services) All() []string {
	out := make([]string, 0, len(s.Query)+len(s.Mutation)+len(s.Subscription))
	out = append(out, s.Query...)
	out = append(out, s.Mutation...)
	return append(out, s.Subscription...)
}
