// Package config loads the layered runtime configuration described in
// spec section 6: built-in defaults, overridden by an optional YAML
// file, overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration for one agent process.
type Config struct {
	Agent    AgentConfig    `yaml:"agent" env:"AGENT"`
	Shared   SharedConfig   `yaml:"shared" env:"SHARED"`
	Bus      BusConfig      `yaml:"bus" env:"BUS"`
	TaskPool TaskPoolConfig `yaml:"task_pool" env:"TASK_POOL"`
	Loop     LoopConfig     `yaml:"loop" env:"LOOP"`
	Log      LogConfig      `yaml:"log" env:"LOG"`
	Metrics  MetricsConfig  `yaml:"metrics" env:"METRICS"`
}

// AgentConfig identifies this process's agent within the project.
type AgentConfig struct {
	ID           string   `yaml:"id" env:"ID"`
	Role         string   `yaml:"role" env:"ROLE"`
	Capabilities []string `yaml:"capabilities" env:"CAPABILITIES"`
	HomeFolder   string   `yaml:"home_folder" env:"HOME_FOLDER"`
	Provider     string   `yaml:"provider" env:"PROVIDER"`
	Model        string   `yaml:"model" env:"MODEL"`
	SystemPrompt string   `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
}

// SharedConfig locates the shared directory all agents in a project
// read and write, and the port range the peer server scans.
type SharedConfig struct {
	Dir            string `yaml:"dir" env:"DIR"`
	ProjectID      string `yaml:"project_id" env:"PROJECT_ID"`
	PortRangeStart int    `yaml:"port_range_start" env:"PORT_RANGE_START"`
	PortRangeEnd   int    `yaml:"port_range_end" env:"PORT_RANGE_END"`
}

// BusConfig tunes the message bus's poll cadence. HTTPTimeout is loaded
// but not passed to the bus, whose HTTP fast path uses fixed timeouts.
type BusConfig struct {
	InboxPollInterval time.Duration `yaml:"inbox_poll_interval" env:"INBOX_POLL_INTERVAL"`
	LogWatchInterval  time.Duration `yaml:"log_watch_interval" env:"LOG_WATCH_INTERVAL"`
	HTTPTimeout       time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
}

// TaskPoolConfig holds the stale-claim threshold. StaleAfter is loaded
// but not applied: reset_tasks reclaims with taskpool.DefaultStaleAfter.
type TaskPoolConfig struct {
	StaleAfter time.Duration `yaml:"stale_after" env:"STALE_AFTER"`
}

// LoopConfig mirrors loop.Config's tunables so they can be set from
// YAML/env; adapt.go converts it into a loop.Config.
type LoopConfig struct {
	MaxIterations           int           `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	ToolRepeatThreshold     int           `yaml:"tool_repeat_threshold" env:"TOOL_REPEAT_THRESHOLD"`
	CommandWindow           int           `yaml:"command_window" env:"COMMAND_WINDOW"`
	CommandRepeatThreshold  int           `yaml:"command_repeat_threshold" env:"COMMAND_REPEAT_THRESHOLD"`
	TextRepeatThreshold     int           `yaml:"text_repeat_threshold" env:"TEXT_REPEAT_THRESHOLD"`
	ReadOnlyAutoContinueMax int           `yaml:"read_only_auto_continue_max" env:"READ_ONLY_AUTO_CONTINUE_MAX"`
	WatchdogEvery           int           `yaml:"watchdog_every" env:"WATCHDOG_EVERY"`
	StallTimeout            time.Duration `yaml:"stall_timeout" env:"STALL_TIMEOUT"`
}

// LogConfig tunes the zap logger built at startup.
type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`
	Encoding string `yaml:"encoding" env:"ENCODING"` // "json" or "console"
}

// MetricsConfig tunes the prometheus collector.
type MetricsConfig struct {
	Namespace  string `yaml:"namespace" env:"NAMESPACE"`
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// Loader builds a Config from layered sources (builder pattern).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader builds a Loader defaulting to the AGENTSOCIETY env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTSOCIETY"}
}

// WithConfigPath sets the YAML file to load, if any.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load merges defaults, then the YAML file (if configured and present),
// then environment variables, then runs validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("config: load from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: load from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config: validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks v's fields, recursing into nested structs, and
// overrides any field whose `env` tag names a set environment variable.
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the config at path, panicking on failure. Intended for
// cmd/agentsociety's startup path where a bad config is fatal anyway.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("config: failed to load: %v", err))
	}
	return cfg
}

// Validate checks the invariants a running agent process depends on.
func (c *Config) Validate() error {
	var errs []string

	if c.Agent.ID == "" {
		errs = append(errs, "agent.id must be set")
	}
	if c.Shared.Dir == "" {
		errs = append(errs, "shared.dir must be set")
	}
	if c.Shared.PortRangeStart <= 0 || c.Shared.PortRangeEnd <= c.Shared.PortRangeStart {
		errs = append(errs, "shared.port_range_start/end must form a positive range")
	}
	if c.Loop.MaxIterations <= 0 {
		errs = append(errs, "loop.max_iterations must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
