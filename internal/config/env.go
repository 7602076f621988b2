package config

import (
	"fmt"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable the configuration reads.
const EnvPrefix = "LUASPECT_"

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// envSetter applies one environment value.
type envSetter func(cfg *Config, value string) error

// envMapping maps environment variables to settings.
var envMapping = map[string]envSetter{
	"LUASPECT_INSPECTOR_ENABLED":        boolSetter(func(c *Config) *bool { return &c.Inspector.Enabled }),
	"LUASPECT_INSPECTOR_LISTEN":         stringSetter(func(c *Config) *string { return &c.Inspector.Listen }),
	"LUASPECT_INSPECTOR_TRANSPORT":      stringSetter(func(c *Config) *string { return &c.Inspector.Transport }),
	"LUASPECT_INSPECTOR_WAIT":           boolSetter(func(c *Config) *bool { return &c.Inspector.Wait }),
	"LUASPECT_INSPECTOR_BREAK_ON_START": boolSetter(func(c *Config) *bool { return &c.Inspector.BreakOnStart }),
	"LUASPECT_INSPECTOR_POLL_INTERVAL":  durationSetter(func(c *Config) *Duration { return &c.Inspector.PollInterval }),
	"LUASPECT_INSPECTOR_CONTEXT_NAME":   stringSetter(func(c *Config) *string { return &c.Inspector.ContextName }),
	"LUASPECT_ENGINE_LIBRARIES":         listSetter(func(c *Config) *[]string { return &c.Engine.Libraries }),
	"LUASPECT_ENGINE_TIMEOUT":           durationSetter(func(c *Config) *Duration { return &c.Engine.Timeout }),
	"LUASPECT_LOG_LEVEL":                stringSetter(func(c *Config) *string { return &c.Logging.Level }),
	"LUASPECT_LOG_PRETTY":               boolSetter(func(c *Config) *bool { return &c.Logging.Pretty }),
}

// EnvVars returns the names of the environment variables the configuration
// reads.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	return names
}

// ApplyEnv overrides cfg with the LUASPECT_* variables found by lookup.
// Empty values are treated as set.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	for name, set := range envMapping {
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := set(cfg, value); err != nil {
			return fmt.Errorf("environment variable %s: %w", name, err)
		}
	}
	return nil
}

func stringSetter(field func(*Config) *string) envSetter {
	return func(cfg *Config, value string) error {
		*field(cfg) = value
		return nil
	}
}

func boolSetter(field func(*Config) *bool) envSetter {
	return func(cfg *Config, value string) error {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "yes", "on", "1":
			*field(cfg) = true
		case "false", "no", "off", "0", "":
			*field(cfg) = false
		default:
			return fmt.Errorf("invalid boolean %q", value)
		}
		return nil
	}
}

func durationSetter(field func(*Config) *Duration) envSetter {
	return func(cfg *Config, value string) error {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		*field(cfg) = Duration(d)
		return nil
	}
}

// listSetter parses a comma separated list.
func listSetter(field func(*Config) *[]string) envSetter {
	return func(cfg *Config, value string) error {
		var out []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*field(cfg) = out
		return nil
	}
}
