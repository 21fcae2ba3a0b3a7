// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"

	"github.com/ManuGH/nlbridge/internal/validate"
)

var (
	drivers        = []string{DriverFake, DriverBridge, DriverCDP}
	ledgerBackends = []string{"memory", "sqlite", "badger", "redis"}
	otelExporters  = []string{"grpc", "http"}
)

// Validate validates the complete configuration and returns every failure
// at once as a validate.ValidationError.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", err.Error(), cfg.LogLevel)
	}
	v.NotEmpty("logService", cfg.LogService)
	v.Directory("dataDir", cfg.DataDir, false)

	validateApplet(v, cfg.Applet)
	validatePoll(v, cfg.Poll)

	v.OneOf("ledger.backend", cfg.Ledger.Backend, ledgerBackends)
	v.NotEmpty("ledger.namespace", cfg.Ledger.Namespace)
	if cfg.Ledger.Backend == "redis" {
		v.NotEmpty("ledger.redisAddr", cfg.Ledger.RedisAddr)
		v.Range("ledger.redisDB", cfg.Ledger.RedisDB, 0, 15)
	}

	if cfg.Sinks.AMQPURL != "" {
		v.URL("sinks.amqpURL", cfg.Sinks.AMQPURL, []string{"amqp", "amqps"})
		v.NotEmpty("sinks.amqpExchange", cfg.Sinks.AMQPExchange)
	}
	if cfg.Export.InlineText && cfg.Sinks.Dir == "" {
		v.AddError("export.inlineText", "inline text display needs sinks.dir", cfg.Export.InlineText)
	}

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.Positive("api.triggerRateLimit", cfg.API.TriggerRateLimit)
	v.Positive("api.logHistory", cfg.API.LogHistory)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, otelExporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}

func validateApplet(v *validate.Validator, a AppletConfig) {
	v.OneOf("applet.driver", a.Driver, drivers)
	switch a.Driver {
	case DriverBridge:
		v.URL("applet.bridgeURL", a.BridgeURL, []string{"http", "https"})
	case DriverCDP:
		v.URL("applet.cdpURL", a.CDPURL, []string{"ws", "wss", "http", "https"})
		if a.PageURL != "" {
			v.URL("applet.pageURL", a.PageURL, []string{"http", "https"})
		}
		v.NotEmpty("applet.elementID", a.ElementID)
	}
	if a.CommandRate <= 0 {
		v.AddError("applet.commandRate", fmt.Sprintf("value must be positive, got %g", a.CommandRate), a.CommandRate)
	}
	v.Positive("applet.commandBurst", a.CommandBurst)
	v.Interval("applet.timeout", a.Timeout)
	v.Positive("applet.breakerThreshold", a.BreakerThreshold)
	v.Interval("applet.breakerReset", a.BreakerReset)
}

func validatePoll(v *validate.Validator, p PollConfig) {
	v.Interval("poll.readiness", p.Readiness)
	v.Interval("poll.data", p.Data)
	v.Interval("poll.completion", p.Completion)
	v.Interval("poll.log", p.Log)
	v.Interval("poll.logDrain", p.LogDrain)
	v.NonNegative("poll.maxReadinessAttempts", p.MaxReadinessAttempts)
	v.NonNegative("poll.maxWaitPolls", p.MaxWaitPolls)
	if p.ProbeTimeout < 0 {
		v.AddError("poll.probeTimeout", "timeout cannot be negative", p.ProbeTimeout)
	}
}
