package config

import (
	"fmt"
	"net"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/luaspect/internal/logging"
)

// Transport names accepted by inspector.transport.
const (
	TransportWebSocket = "websocket"
	TransportStdio     = "stdio"
)

// Default values.
const (
	DefaultListen       = "127.0.0.1:9229"
	DefaultPollInterval = 50 * time.Millisecond
	DefaultLogLevel     = "info"
)

// Config is the complete luaspect configuration.
type Config struct {
	Inspector InspectorConfig `toml:"inspector" yaml:"inspector"`
	Engine    EngineConfig    `toml:"engine" yaml:"engine"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
}

// InspectorConfig controls the debugger frontend.
type InspectorConfig struct {
	// Enabled starts a frontend transport before the script runs.
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Listen is the host:port of the WebSocket server.
	Listen string `toml:"listen" yaml:"listen"`
	// Transport is "websocket" or "stdio".
	Transport string `toml:"transport" yaml:"transport"`
	// Wait blocks until a frontend sends Runtime.runIfWaitingForDebugger.
	Wait bool `toml:"wait" yaml:"wait"`
	// BreakOnStart pauses on the first line of the script. Implies Wait.
	BreakOnStart bool `toml:"break_on_start" yaml:"break_on_start"`
	// PollInterval bounds each wait for frontend traffic while paused.
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`
	// ContextName is the execution context name shown by frontends.
	ContextName string `toml:"context_name" yaml:"context_name"`
}

// EngineConfig controls the Lua engine.
type EngineConfig struct {
	// Libraries lists the Lua standard libraries to open.
	Libraries []string `toml:"libraries" yaml:"libraries"`
	// Timeout stops the script after this long. Zero means no limit.
	Timeout Duration `toml:"timeout" yaml:"timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Pretty bool   `toml:"pretty" yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Inspector: InspectorConfig{
			Listen:       DefaultListen,
			Transport:    TransportWebSocket,
			PollInterval: Duration(DefaultPollInterval),
		},
		Engine: EngineConfig{
			Libraries: []string{"base", "table", "string", "math", "coroutine"},
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

var knownLibraries = map[string]bool{
	"base": true, "table": true, "string": true, "math": true,
	"coroutine": true, "os": true, "io": true, "debug": true,
}

// Validate checks every setting and returns a *ValidationError listing all
// problems, or nil.
func (c *Config) Validate() error {
	verr := &ValidationError{}

	if _, _, err := net.SplitHostPort(c.Inspector.Listen); err != nil {
		verr.add("inspector.listen", "must be host:port", c.Inspector.Listen)
	}
	switch c.Inspector.Transport {
	case TransportWebSocket, TransportStdio:
	default:
		verr.add("inspector.transport", "must be websocket or stdio", c.Inspector.Transport)
	}
	if c.Inspector.PollInterval <= 0 {
		verr.add("inspector.poll_interval", "must be positive", c.Inspector.PollInterval)
	}
	for _, lib := range c.Engine.Libraries {
		if !knownLibraries[lib] {
			verr.add("engine.libraries", "unknown library", lib)
		}
	}
	if c.Engine.Timeout < 0 {
		verr.add("engine.timeout", "must not be negative", c.Engine.Timeout)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		verr.add("logging.level", "unknown level", c.Logging.Level)
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}
