// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bridge drives an applet through a page-side HTTP relay.
//
// The relay exposes:
//
//	GET  /applet/status        {"missing": "<first unavailable hop or empty>"}
//	GET  /applet/globals       {"globals": "[A, B, C]"}
//	GET  /applet/observer/{i}  {"value": <json>}
//	POST /applet/command       {"command": "..."} -> 202, or 422 {"error": "..."}
//
// A 503 from any endpoint means the applet is still initialising.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/nlbridge/internal/applet"
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/resilience"
	"github.com/ManuGH/nlbridge/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/idna"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 2 * time.Second
	defaultCommandRate  = 20
	defaultCommandBurst = 5
	maxBodyBytes        = 8 << 20
)

// errNotFound marks a 404 from the relay.
var errNotFound = errors.New("bridge: not found")

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	// CommandRate limits commands per second sent to the applet.
	CommandRate  rate.Limit
	CommandBurst int
	// BreakerThreshold is the number of consecutive transport failures that
	// open the circuit.
	BreakerThreshold int
	BreakerReset     time.Duration
	HTTPClient       *http.Client
}

// Client talks to the relay. It implements applet.Applet.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// New creates a client for the relay at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.CommandRate <= 0 {
		opts.CommandRate = defaultCommandRate
	}
	if opts.CommandBurst <= 0 {
		opts.CommandBurst = defaultCommandBurst
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:          16,
				MaxIdleConnsPerHost:   16,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: opts.Timeout,
			},
		}
	}
	return &Client{
		baseURL: normalized,
		http:    hc,
		limiter: rate.NewLimiter(opts.CommandRate, opts.CommandBurst),
		breaker: resilience.NewCircuitBreaker("applet_bridge", opts.BreakerThreshold, opts.BreakerReset,
			resilience.WithFailureFilter(func(err error) bool { return errors.Is(err, applet.ErrUnreachable) })),
		logger: xglog.WithComponent("bridge").With().Str(xglog.FieldBaseURL, normalized).Logger(),
		tracer: telemetry.Tracer("nlbridge.bridge"),
	}, nil
}

// NormalizeBaseURL validates raw and converts an internationalised host to
// its ASCII form.
func NormalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("bridge: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("bridge: base url scheme must be http or https, got %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("bridge: base url %q has no host", raw)
	}
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("bridge: invalid host %q: %w", host, err)
		}
		host = strings.ToLower(ascii)
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// BaseURL returns the normalized relay address.
func (c *Client) BaseURL() string { return c.baseURL }

// Breaker exposes the circuit breaker state for health reporting.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

type statusResponse struct {
	Missing string `json:"missing"`
}

type globalsResponse struct {
	Globals string `json:"globals"`
}

type valueResponse struct {
	Value json.RawMessage `json:"value"`
}

type commandRequest struct {
	Command string `json:"command"`
}

type errorResponse struct {
	Error string `json:"error"`
	Hop   string `json:"hop,omitempty"`
}

// do performs one relay call through the breaker and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, span := c.tracer.Start(ctx, "bridge.request", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String(telemetry.HTTPMethodKey, method),
		attribute.String(telemetry.HTTPRouteKey, routeOf(path)),
	)
	defer span.End()

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, method, path, in, out)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %v", applet.ErrUnreachable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", applet.ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", applet.ErrUnreachable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("bridge: decode %s: %w", path, err)
		}
		return nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", applet.ErrNotReady, relayMessage(data))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", errNotFound, path)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", applet.ErrCommandRejected, relayMessage(data))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: relay returned status %d", applet.ErrUnreachable, resp.StatusCode)
	default:
		return fmt.Errorf("bridge: relay returned status %d: %s", resp.StatusCode, relayMessage(data))
	}
}

func relayMessage(data []byte) string {
	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		if e.Hop != "" {
			return e.Hop + ": " + e.Error
		}
		return e.Error
	}
	return strings.TrimSpace(string(data))
}

// routeOf strips observer indexes so span routes stay low-cardinality.
func routeOf(path string) string {
	if strings.HasPrefix(path, "/applet/observer/") {
		return "/applet/observer/{index}"
	}
	return path
}
