// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package llm is a client for the Ollama generate API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/metrics"
	"github.com/ManuGH/ragbox/internal/resilience"
	"github.com/ManuGH/ragbox/internal/telemetry"
)

var (
	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrCircuitOpen is returned while the backend is considered down.
	ErrCircuitOpen = resilience.ErrCircuitOpen
)

// APIError is a non-2xx answer from the Ollama server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama: status %d", e.StatusCode)
	}
	return fmt.Sprintf("ollama: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Options configures the client.
type Options struct {
	BaseURL          string
	Model            string
	Timeout          time.Duration
	Temperature      *float64
	KeepAlive        string
	MaxRetries       int
	Backoff          time.Duration
	MaxBackoff       time.Duration
	RateLimit        rate.Limit
	RateLimitBurst   int
	BreakerThreshold int
	BreakerReset     time.Duration
	// HTTPClient replaces the instrumented default client.
	HTTPClient *http.Client
}

const (
	defaultBaseURL        = "http://localhost:11434"
	defaultModel          = "llava"
	defaultTimeout        = 120 * time.Second
	defaultRetries        = 2
	defaultBackoff        = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultRateLimit      = 4
	defaultRateLimitBurst = 4

	tracerName = "ragbox.llm"
)

// Client talks to one Ollama server.
type Client struct {
	baseURL     string
	model       string
	temperature *float64
	keepAlive   string
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *resilience.CircuitBreaker
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	logger      zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates a client. Zero options take defaults.
func New(opts Options) *Client {
	opts = normalizeOptions(opts)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: otelhttp.NewTransport(&http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			}),
		}
	}

	return &Client{
		baseURL:     opts.BaseURL,
		model:       opts.Model,
		temperature: opts.Temperature,
		keepAlive:   opts.KeepAlive,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(opts.RateLimit, opts.RateLimitBurst),
		breaker: resilience.NewCircuitBreaker("ollama", opts.BreakerThreshold, opts.BreakerReset,
			resilience.WithFailureClassifier(isBackendFailure)),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		maxBackoff: opts.MaxBackoff,
		logger:     xglog.WithComponent("llm").With().Str(xglog.FieldBaseURL, opts.BaseURL).Logger(),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

func normalizeOptions(opts Options) Options {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	return opts
}

// isBackendFailure decides which errors count against the circuit breaker.
func isBackendFailure(err error) bool {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Retryable()
	case errors.Is(err, ErrEmptyResponse), errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// Model returns the default model name.
func (c *Client) Model() string { return c.model }

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// BreakerState exposes the circuit breaker state for health checks.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

// GenerateRequest is one completion request.
type GenerateRequest struct {
	Prompt string
	// Images are base64 encoded and sent to multimodal models.
	Images []string
	// Model overrides the client default.
	Model  string
	System string
}

type generateBody struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Images    []string       `json:"images,omitempty"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model         string `json:"model"`
	Response      string `json:"response"`
	Done          bool   `json:"done"`
	TotalDuration int64  `json:"total_duration"`
	EvalCount     int    `json:"eval_count"`
}

// Generate sends a non-streaming completion request and returns the text.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body := generateBody{
		Model:     model,
		Prompt:    req.Prompt,
		System:    req.System,
		Images:    req.Images,
		Stream:    false,
		KeepAlive: c.keepAlive,
	}
	if c.temperature != nil {
		body.Options = map[string]any{"temperature": *c.temperature}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	ctx, finish := telemetry.StartSpan(ctx, tracerName, "llm.generate", telemetry.LLMAttributes(model, len(req.Images))...)
	start := time.Now()

	var out generateResponse
	err = c.breaker.Execute(func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/generate", payload, model, &out)
	})
	if err == nil && strings.TrimSpace(out.Response) == "" {
		err = ErrEmptyResponse
	}
	finish(err)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		if errors.Is(err, ErrCircuitOpen) {
			outcome = "circuit_open"
		}
	}
	metrics.RecordLLMRequest(model, outcome, time.Since(start))

	logger := xglog.FromContext(ctx).With().Str(xglog.FieldModel, model).Logger()
	if err != nil {
		logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("generate request failed")
		return "", err
	}
	logger.Debug().
		Int("images", len(req.Images)).
		Int("eval_count", out.EvalCount).
		Dur("duration", time.Since(start)).
		Msg("generate request completed")
	return strings.TrimSpace(out.Response), nil
}

// ModelInfo describes a locally available model.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Models lists the models installed on the server.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	var out struct {
		Models []ModelInfo `json:"models"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/tags", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// HasModel reports whether name (with or without the ":latest" tag) is installed.
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.Name == name || strings.TrimSuffix(m.Name, ":latest") == name {
			return true, nil
		}
	}
	return false, nil
}

// doJSON performs a request with rate limiting and retries and decodes the
// JSON answer into v.
func (c *Client) doJSON(ctx context.Context, method, path string, payload []byte, model string, v any) error {
	url := c.baseURL + path
	maxAttempts := c.maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.attempt(ctx, method, url, path, payload, v)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !shouldRetry(err) || attempt == maxAttempts {
			break
		}

		wait := c.backoffFor(attempt - 1)
		if model != "" {
			metrics.IncLLMRetry(model)
		}
		c.logger.Debug().
			Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("retrying ollama request")
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, method, url, route string, payload []byte, v any) error {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "llm.request.attempt")
	defer span.End()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(telemetry.HTTPAttributes(method, route, url, resp.StatusCode)...)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("decode response: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// errorMessage extracts {"error": "..."} from an Ollama error body.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

func shouldRetry(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	jitter := time.Duration(c.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (c *Client) randInt63n(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
