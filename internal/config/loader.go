// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/nlbridge/internal/validate"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader. An empty configPath loads
// defaults and environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// ConfigPath returns the file the loader reads, if any.
func (l *Loader) ConfigPath() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then
// resolves data paths and validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if err := resolvePaths(&cfg); err != nil {
		return cfg, fmt.Errorf("resolve paths: %w", err)
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:   "info",
		LogService: "nlbridge",
		DataDir:    "data",
		Applet: AppletConfig{
			Driver:           DriverFake,
			ElementID:        "netlogo-applet",
			CommandRate:      20,
			CommandBurst:     4,
			Timeout:          2 * time.Second,
			BreakerThreshold: 5,
			BreakerReset:     10 * time.Second,
		},
		Poll: PollConfig{
			Readiness:    250 * time.Millisecond,
			Data:         250 * time.Millisecond,
			Completion:   50 * time.Millisecond,
			Log:          250 * time.Millisecond,
			LogDrain:     50 * time.Millisecond,
			ProbeTimeout: 2 * time.Second,
		},
		Ledger: LedgerConfig{
			Backend:   "memory",
			Namespace: "default",
		},
		Sinks: SinksConfig{
			Dir:          "exports",
			AMQPExchange: "nlbridge.runs",
		},
		API: APIConfig{
			ListenAddr:       ":8088",
			TriggerRateLimit: 30,
			LogHistory:       512,
		},
		Telemetry: TelemetryConfig{
			Environment:  "development",
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrMultipleDocuments
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)

	cfg.Applet.Driver = l.envString("APPLET_DRIVER", cfg.Applet.Driver)
	cfg.Applet.BridgeURL = l.envString("BRIDGE_URL", cfg.Applet.BridgeURL)
	cfg.Applet.CDPURL = l.envString("CDP_URL", cfg.Applet.CDPURL)
	cfg.Applet.PageURL = l.envString("PAGE_URL", cfg.Applet.PageURL)
	cfg.Applet.ElementID = l.envString("ELEMENT_ID", cfg.Applet.ElementID)
	cfg.Applet.CommandRate = l.envFloat("COMMAND_RATE", cfg.Applet.CommandRate)
	cfg.Applet.CommandBurst = l.envInt("COMMAND_BURST", cfg.Applet.CommandBurst)
	cfg.Applet.Timeout = l.envDuration("APPLET_TIMEOUT", cfg.Applet.Timeout)
	cfg.Applet.BreakerThreshold = l.envInt("BREAKER_THRESHOLD", cfg.Applet.BreakerThreshold)
	cfg.Applet.BreakerReset = l.envDuration("BREAKER_RESET", cfg.Applet.BreakerReset)

	cfg.Poll.Readiness = l.envDuration("POLL_READINESS", cfg.Poll.Readiness)
	cfg.Poll.Data = l.envDuration("POLL_DATA", cfg.Poll.Data)
	cfg.Poll.Completion = l.envDuration("POLL_COMPLETION", cfg.Poll.Completion)
	cfg.Poll.Log = l.envDuration("POLL_LOG", cfg.Poll.Log)
	cfg.Poll.LogDrain = l.envDuration("POLL_LOG_DRAIN", cfg.Poll.LogDrain)
	cfg.Poll.MaxReadinessAttempts = l.envInt("MAX_READINESS_ATTEMPTS", cfg.Poll.MaxReadinessAttempts)
	cfg.Poll.MaxWaitPolls = l.envInt("MAX_WAIT_POLLS", cfg.Poll.MaxWaitPolls)
	cfg.Poll.ProbeTimeout = l.envDuration("PROBE_TIMEOUT", cfg.Poll.ProbeTimeout)

	cfg.Export.AutoExport = l.envBool("AUTO_EXPORT", cfg.Export.AutoExport)
	cfg.Export.InlineText = l.envBool("INLINE_TEXT", cfg.Export.InlineText)

	cfg.Ledger.Backend = l.envString("LEDGER_BACKEND", cfg.Ledger.Backend)
	cfg.Ledger.Path = l.envString("LEDGER_PATH", cfg.Ledger.Path)
	cfg.Ledger.RedisAddr = l.envString("REDIS_ADDR", cfg.Ledger.RedisAddr)
	cfg.Ledger.RedisDB = l.envInt("REDIS_DB", cfg.Ledger.RedisDB)
	cfg.Ledger.Namespace = l.envString("LEDGER_NAMESPACE", cfg.Ledger.Namespace)

	cfg.Sinks.Dir = l.envString("SINK_DIR", cfg.Sinks.Dir)
	cfg.Sinks.SQLite = l.envString("SINK_SQLITE", cfg.Sinks.SQLite)
	cfg.Sinks.AMQPURL = l.envString("AMQP_URL", cfg.Sinks.AMQPURL)
	cfg.Sinks.AMQPExchange = l.envString("AMQP_EXCHANGE", cfg.Sinks.AMQPExchange)

	cfg.API.ListenAddr = l.envString("LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.TriggerRateLimit = l.envInt("TRIGGER_RATE_LIMIT", cfg.API.TriggerRateLimit)
	cfg.API.LogHistory = l.envInt("LOG_HISTORY", cfg.API.LogHistory)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Environment = l.envString("ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.Exporter = l.envString("OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// resolvePaths anchors relative data paths below DataDir. Sinks left empty
// stay disabled; the sqlite and badger ledgers get a default file name.
func resolvePaths(cfg *AppConfig) error {
	if cfg.Ledger.Path == "" {
		switch cfg.Ledger.Backend {
		case "sqlite":
			cfg.Ledger.Path = "ledger.db"
		case "badger":
			cfg.Ledger.Path = "ledger"
		}
	}

	v := validate.New()
	for _, p := range []struct {
		field string
		value *string
	}{
		{"ledger.path", &cfg.Ledger.Path},
		{"sinks.dir", &cfg.Sinks.Dir},
		{"sinks.sqlite", &cfg.Sinks.SQLite},
	} {
		if *p.value == "" || filepath.IsAbs(*p.value) {
			continue
		}
		v.Path(p.field, *p.value)
		*p.value = filepath.Join(cfg.DataDir, filepath.Clean(*p.value))
	}
	return v.Err()
}
