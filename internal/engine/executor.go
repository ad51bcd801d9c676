package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AuthMode selects which credential, if any, is attached to a request.
// Exactly one credential applies per request, never both.
type AuthMode string

const (
	// AuthNone sends no credential at all.
	AuthNone AuthMode = "none"
	// AuthBearer places the platform API key in the Authorization header.
	AuthBearer AuthMode = "bearer"
	// AuthPrivileged places the administrative key in the admin header.
	AuthPrivileged AuthMode = "privileged"
)

// adminHeader carries the privileged credential.
const adminHeader = "X-Admin-Key"

// DefaultTimeout bounds a request when neither the executor config nor the
// call site overrides it.
const DefaultTimeout = 10 * time.Second

// RequestResult is the uniform envelope for one request attempt. Err is set
// only on transport-level failure; an HTTP error status is a normal transport
// outcome carried in Status.
type RequestResult struct {
	Status   int
	Body     map[string]any
	RawText  string
	Duration time.Duration
	Err      error
}

// ExecutorConfig carries everything the host supplies once at construction.
type ExecutorConfig struct {
	BaseURL        string
	BearerKey      string
	PrivilegedKey  string
	DefaultTimeout time.Duration
	Client         *http.Client
	Logger         *slog.Logger
}

// Executor issues authenticated, timed requests against the platform. It
// never panics and never returns a Go error; every failure mode is encoded in
// the RequestResult.
type Executor struct {
	baseURL        string
	bearerKey      string
	privilegedKey  string
	defaultTimeout time.Duration
	client         *http.Client
	logger         *slog.Logger
}

// NewExecutor builds an Executor from host-supplied configuration.
func NewExecutor(cfg ExecutorConfig) *Executor {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		bearerKey:      cfg.BearerKey,
		privilegedKey:  cfg.PrivilegedKey,
		defaultTimeout: timeout,
		client:         client,
		logger:         logger,
	}
}

type requestOptions struct {
	body    any
	auth    AuthMode
	headers map[string]string
	timeout time.Duration
}

// Option adjusts a single request.
type Option func(*requestOptions)

// WithBody attaches a JSON payload to the request.
func WithBody(body any) Option {
	return func(o *requestOptions) { o.body = body }
}

// WithAuth overrides the verb's default credential mode.
func WithAuth(mode AuthMode) Option {
	return func(o *requestOptions) { o.auth = mode }
}

// WithHeader adds or overrides a request header.
func WithHeader(key, value string) Option {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// WithTimeout overrides the default timeout for one call. Long-running
// operations such as deploys use this with an extended budget.
func WithTimeout(d time.Duration) Option {
	return func(o *requestOptions) { o.timeout = d }
}

// Get issues a GET request. All verbs default to bearer auth.
func (e *Executor) Get(ctx context.Context, path string, opts ...Option) RequestResult {
	return e.Execute(ctx, http.MethodGet, path, opts...)
}

// Post issues a POST request.
func (e *Executor) Post(ctx context.Context, path string, opts ...Option) RequestResult {
	return e.Execute(ctx, http.MethodPost, path, opts...)
}

// Put issues a PUT request.
func (e *Executor) Put(ctx context.Context, path string, opts ...Option) RequestResult {
	return e.Execute(ctx, http.MethodPut, path, opts...)
}

// Patch issues a PATCH request.
func (e *Executor) Patch(ctx context.Context, path string, opts ...Option) RequestResult {
	return e.Execute(ctx, http.MethodPatch, path, opts...)
}

// Delete issues a DELETE request.
func (e *Executor) Delete(ctx context.Context, path string, opts ...Option) RequestResult {
	return e.Execute(ctx, http.MethodDelete, path, opts...)
}

// Execute performs one request attempt. Duration covers dispatch through body
// read, including timeout handling.
func (e *Executor) Execute(ctx context.Context, method, path string, opts ...Option) RequestResult {
	options := requestOptions{auth: AuthBearer}
	for _, opt := range opts {
		opt(&options)
	}
	timeout := options.timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	start := time.Now()
	res := e.attempt(ctx, method, path, options, timeout)
	res.Duration = time.Since(start)

	if res.Err != nil {
		e.logger.Debug("request failed", "method", method, "path", path, "error", res.Err)
	}
	return res
}

func (e *Executor) attempt(ctx context.Context, method, path string, options requestOptions, timeout time.Duration) RequestResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var payload io.Reader
	if options.body != nil {
		encoded, err := json.Marshal(options.body)
		if err != nil {
			return RequestResult{Err: fmt.Errorf("encode request body: %w", err)}
		}
		payload = bytes.NewReader(encoded)
	}

	// An absolute URL bypasses the base address; reachability probes hit the
	// platform's public edge rather than its API host.
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = e.baseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return RequestResult{Err: fmt.Errorf("build request: %w", err)}
	}
	if options.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch options.auth {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+e.bearerKey)
	case AuthPrivileged:
		req.Header.Set(adminHeader, e.privilegedKey)
	}
	for k, v := range options.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return RequestResult{Err: transportError(err, timeout)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return RequestResult{Status: resp.StatusCode, Err: transportError(err, timeout)}
	}

	res := RequestResult{Status: resp.StatusCode, RawText: string(raw)}
	// Best-effort parse: a non-JSON payload is not an error at this layer.
	var body map[string]any
	if json.Unmarshal(raw, &body) == nil {
		res.Body = body
	}
	return res
}

func transportError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out after %s", timeout)
	}
	return err
}
