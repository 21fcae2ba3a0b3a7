// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// Applet driver names.
const (
	DriverFake   = "fake"
	DriverBridge = "bridge"
	DriverCDP    = "cdp"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	// Version is stamped by the loader from the binary, never read from file.
	Version string `yaml:"-"`

	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`
	DataDir    string `yaml:"dataDir"`

	Applet    AppletConfig    `yaml:"applet"`
	Poll      PollConfig      `yaml:"poll"`
	Export    ExportConfig    `yaml:"export"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Sinks     SinksConfig     `yaml:"sinks"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AppletConfig selects and tunes the applet driver.
type AppletConfig struct {
	Driver string `yaml:"driver"`

	// BridgeURL is the base URL of the page-side relay (driver "bridge").
	BridgeURL string `yaml:"bridgeURL"`
	// CDPURL is the browser DevTools endpoint (driver "cdp").
	CDPURL string `yaml:"cdpURL"`
	// PageURL is opened in a new tab by the cdp driver when set.
	PageURL   string `yaml:"pageURL"`
	ElementID string `yaml:"elementID"`

	// CommandRate is the number of commands per second sent to the applet.
	CommandRate      float64       `yaml:"commandRate"`
	CommandBurst     int           `yaml:"commandBurst"`
	Timeout          time.Duration `yaml:"timeout"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// PollConfig holds every polling interval and bound.
type PollConfig struct {
	Readiness  time.Duration `yaml:"readiness"`
	Data       time.Duration `yaml:"data"`
	Completion time.Duration `yaml:"completion"`
	Log        time.Duration `yaml:"log"`
	LogDrain   time.Duration `yaml:"logDrain"`

	// Zero means unbounded for all three.
	MaxReadinessAttempts int           `yaml:"maxReadinessAttempts"`
	MaxWaitPolls         int           `yaml:"maxWaitPolls"`
	ProbeTimeout         time.Duration `yaml:"probeTimeout"`
}

// ExportConfig controls the data-export affordance.
type ExportConfig struct {
	// AutoExport exports as soon as new data is available instead of
	// waiting for a manual trigger.
	AutoExport bool `yaml:"autoExport"`
	// InlineText shows raw payloads as text instead of parsing them.
	InlineText bool `yaml:"inlineText"`
}

// LedgerConfig configures the processed-run timestamp store.
type LedgerConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redisAddr"`
	RedisDB   int    `yaml:"redisDB"`
	Namespace string `yaml:"namespace"`
}

// SinksConfig enables exporter sinks. Empty values disable a sink.
type SinksConfig struct {
	Dir          string `yaml:"dir"`
	SQLite       string `yaml:"sqlite"`
	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// TriggerRateLimit is the number of manual export triggers allowed per
	// client and minute.
	TriggerRateLimit int `yaml:"triggerRateLimit"`
	LogHistory       int `yaml:"logHistory"`
}

// TelemetryConfig mirrors telemetry.Config.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Environment  string  `yaml:"environment"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}
