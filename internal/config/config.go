// Package config implements process configuration: struct-tag defaults,
// map-to-struct population, and validation, composed the way the teacher's
// runtime/config.go and runtime/converter.go compose the same three
// concerns for plugin configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Server configures the Run-trigger REST API (internal/api).
type Server struct {
	Port int `json:"port" default:"8080" validate:"gte=1,lte=65535"`
}

// Database configures the Postgres-backed Run Persistence Adapter.
type Database struct {
	ConnectionString  string `json:"connection_string"`
	MaxOpenConns      int    `json:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `json:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMS int    `json:"conn_max_lifetime_ms" default:"300000" validate:"gte=0"`
}

// Queue configures the redis-backed Queue Dispatcher and its worker pool.
type Queue struct {
	RedisAddr      string `json:"redis_addr" default:"localhost:6379"`
	StreamKey      string `json:"stream_key" default:"flowtest:runs"`
	WorkerCount    int    `json:"worker_count" default:"4" validate:"gte=1,lte=256"`
	InlineFallback bool   `json:"inline_fallback" default:"true"`
}

// CallResolver configures the Cross-Suite Call Resolver's sandboxing.
type CallResolver struct {
	AllowedRoot string `json:"allowed_root" validate:"required"`
	MaxDepth    int    `json:"max_depth" default:"10" validate:"gte=1,lte=100"`
}

// Execution configures engine-wide execution defaults.
type Execution struct {
	DefaultRequestTimeoutMS int `json:"default_request_timeout_ms" default:"30000" validate:"gte=1"`
	EventBufferSize         int `json:"event_buffer_size" default:"64" validate:"gte=1"`
}

// Schedule binds a cron expression to a suite/version pair, driving the
// external schedule registrar (§1 "the engine itself remains
// schedule-agnostic"; trigger_source SCHEDULE is simply recorded on the
// resulting Run).
type Schedule struct {
	SuiteRef   string         `json:"suite_ref" validate:"required"`
	VersionRef string         `json:"version_ref"`
	CronExpr   string         `json:"cron" validate:"required"`
	Priority   int            `json:"priority"`
	Variables  map[string]any `json:"variables"`
}

// Config is the process-wide configuration struct. cmd/flowtestctl builds
// one via Load.
type Config struct {
	Server       Server       `json:"server"`
	Database     Database     `json:"database"`
	Queue        Queue        `json:"queue"`
	CallResolver CallResolver `json:"call_resolver"`
	Execution    Execution    `json:"execution"`
	Schedules    []Schedule   `json:"schedules"`
}

var validate = validator.New()

// Load applies struct-tag defaults, merges raw (e.g. parsed YAML/env)
// values, then validates the result — same three-step pipeline as the
// teacher's InitializeConfig, generalized from per-plugin config to one
// process-wide struct.
func Load(raw map[string]any) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: apply defaults: %w", err)
	}

	if len(raw) > 0 {
		if err := decode(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: decode values: %w", err)
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, formatValidationError(err)
	}
	return cfg, nil
}

func decode(raw map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field %q failed validation: %s (rule: %s)", fe.Namespace(), fe.Error(), fe.Tag()))
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// DefaultRequestTimeout is a convenience accessor used by wiring code that
// needs a time.Duration rather than a raw millisecond count.
func (c *Config) DefaultRequestTimeout() time.Duration {
	return time.Duration(c.Execution.DefaultRequestTimeoutMS) * time.Millisecond
}
