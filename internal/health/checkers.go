// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/nlbridge/internal/resilience"
)

// AppletStatus is satisfied by *applet.Handle.
type AppletStatus interface {
	Ready() bool
	Attempts() int
}

// AppletChecker is unhealthy until the applet has been detected. gaveUp,
// when set, reports a terminal readiness failure.
type AppletChecker struct {
	status AppletStatus
	gaveUp func() error
}

// NewAppletChecker creates the applet readiness checker.
func NewAppletChecker(status AppletStatus, gaveUp func() error) *AppletChecker {
	return &AppletChecker{status: status, gaveUp: gaveUp}
}

func (c *AppletChecker) Name() string { return "applet" }

func (c *AppletChecker) Check(context.Context) CheckResult {
	attempts := c.status.Attempts()
	if c.status.Ready() {
		return CheckResult{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("ready after %d probes", attempts),
		}
	}
	if c.gaveUp != nil {
		if err := c.gaveUp(); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Error:   err.Error(),
				Message: fmt.Sprintf("gave up after %d probes", attempts),
			}
		}
	}
	return CheckResult{
		Status:  StatusUnhealthy,
		Message: fmt.Sprintf("waiting for applet (%d probes)", attempts),
	}
}

// PingChecker reports a remote dependency such as the redis ledger.
type PingChecker struct {
	name    string
	timeout time.Duration
	ping    func(context.Context) error
}

// NewPingChecker wraps ping with a 2s timeout.
func NewPingChecker(name string, ping func(context.Context) error) *PingChecker {
	return &PingChecker{name: name, timeout: 2 * time.Second, ping: ping}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// BreakerChecker is degraded while a circuit breaker is not closed.
type BreakerChecker struct {
	name  string
	state func() resilience.State
}

// NewBreakerChecker creates a checker over a breaker's State method.
func NewBreakerChecker(name string, state func() resilience.State) *BreakerChecker {
	return &BreakerChecker{name: name, state: state}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch s := c.state(); s {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy, Message: string(s)}
	default:
		return CheckResult{Status: StatusDegraded, Message: "circuit " + string(s)}
	}
}

// DirChecker verifies that a directory exists and is writable.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a writability checker. An empty path is reported
// as not configured.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if err := CheckWritableDir(c.path); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: "writable"}
}

// CheckWritableDir creates and removes a probe file in path.
func CheckWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	probe, err := os.CreateTemp(path, ".write_test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(filepath.Clean(name))
	return nil
}
