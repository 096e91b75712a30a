// Package client is the REST client of the finance backend: one method per
// resource-action pair, all speaking the {success, message, data} envelope.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/infra/observability"
	"github.com/boddenberg/fintrack-go/internal/infra/resilience"
	"github.com/boddenberg/fintrack-go/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

func init() {
	// The backend reads amounts as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// MsgNoToken is the error raised when an authenticated call finds no stored token.
const MsgNoToken = "No authentication token found"

// Client talks to the REST backend. The bearer token is read from the
// durable storage on every authenticated call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     port.KeyValueStore
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// New creates a Client. Only GET requests use cfg's retries.
func New(
	httpClient *http.Client,
	baseURL string,
	tokens port.KeyValueStore,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Client {
	cfg.RetryIf = IsTransient
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		cb:         cb,
		cfg:        cfg,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		metrics:    metrics,
		logger:     logger,
	}
}

// IsTransient reports whether err is worth retrying or counting against the
// breaker: transport failures and 5xx responses.
func IsTransient(err error) bool {
	var network *domain.ErrNetwork
	if errors.As(err, &network) {
		return true
	}
	var app *domain.ErrApp
	return errors.As(err, &app) && app.Status >= 500
}

// envelope is the backend's response wrapper. Error bodies carry message and
// errors; framework errors carry detail instead.
type envelope struct {
	Success *bool               `json:"success"`
	Message string              `json:"message"`
	Detail  any                 `json:"detail"`
	Code    string              `json:"code"`
	Errors  map[string][]string `json:"errors"`
	Data    json.RawMessage     `json:"data"`
}

func (e *envelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	if s, ok := e.Detail.(string); ok {
		return s
	}
	return ""
}

func (e *envelope) code() string {
	if e.Code != "" {
		return e.Code
	}
	for field := range e.Errors {
		return field
	}
	return ""
}

type request struct {
	op     string // span / metric name and error resource
	method string
	path   string
	auth   bool
	body   any
}

// call executes req inside the bulkhead, the breaker, the retry loop (GET only)
// and a span, and returns the envelope's data.
func (c *Client) call(ctx context.Context, req request) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "Client."+req.op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.method),
		attribute.String("http.path", req.path),
	)

	start := time.Now()
	defer func() { c.metrics.RecordRequestDuration("rest."+req.op, time.Since(start)) }()

	var token string
	if req.auth {
		t, ok, err := c.tokens.Get(ctx, domain.KeyAuthToken)
		if err != nil {
			return nil, fmt.Errorf("read auth token: %w", err)
		}
		if !ok || t == "" {
			span.SetStatus(codes.Error, MsgNoToken)
			return nil, &domain.ErrAuth{Message: MsgNoToken}
		}
		token = t
	}

	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", req.op, err)
		}
		payload = b
	}

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.bulkhead.Release()

	cfg := c.cfg
	if req.method != http.MethodGet {
		cfg = cfg.NoRetry()
	}

	var data json.RawMessage
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, cfg, func() error {
			d, err := c.do(ctx, req, token, payload)
			if err != nil {
				return err
			}
			data = d
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.IncrExternalError(req.op)
			return nil, &domain.ErrCircuitOpen{Service: "api"}
		}
		if IsTransient(err) {
			c.metrics.IncrExternalError(req.op)
		}
		return nil, &domain.ErrExternalService{Service: req.op, Err: err}
	}
	return data, nil
}

// do performs one HTTP attempt.
func (c *Client) do(ctx context.Context, req request, token string, payload []byte) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.IncrRESTRequest(0)
		c.logger.Warn("client: request failed",
			zap.String("op", req.op),
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Error(err),
		)
		return nil, &domain.ErrNetwork{Err: err}
	}
	defer resp.Body.Close()
	c.metrics.IncrRESTRequest(resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ErrNetwork{Err: fmt.Errorf("read response body: %w", err)}
	}

	var env envelope
	var decodeErr error
	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("client: non-2xx response",
			zap.String("op", req.op),
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", env.message()),
		)
		return nil, statusError(resp.StatusCode, &env)
	}
	if decodeErr != nil {
		return nil, &domain.ErrApp{Status: resp.StatusCode, Message: fmt.Sprintf("invalid response body: %v", decodeErr)}
	}
	if env.Success != nil && !*env.Success {
		return nil, statusError(resp.StatusCode, &env)
	}

	c.logger.Debug("client: request OK",
		zap.String("op", req.op),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
	)
	return env.Data, nil
}

func statusError(status int, env *envelope) error {
	if status == http.StatusUnauthorized {
		return &domain.ErrAuth{Message: env.message(), Status: status}
	}
	return &domain.ErrApp{Status: status, Code: env.code(), Message: env.message()}
}

// decodeList accepts the list either bare or wrapped as {key: [...]}.
func decodeList[T any](data json.RawMessage, key string) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}

	if trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return out, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	inner, ok := wrapped[key]
	if !ok {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(inner, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// decodeOne accepts the entity either bare or wrapped as {key: {...}}.
func decodeOne[T any](data json.RawMessage, key string) (*T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if inner, ok := wrapped[key]; ok {
		trimmed = inner
	}

	var out T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &out, nil
}

// decodeBare decodes an entity that is never wrapped.
func decodeBare[T any](data json.RawMessage, what string) (*T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return &out, nil
}

func monthQuery(month domain.MonthKey) string {
	if month == "" {
		return ""
	}
	return "?month=" + string(month)
}
