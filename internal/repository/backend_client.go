package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/pkg/config"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
	"github.com/noah-isme/sma-progress-api/pkg/middleware/requestid"
)

const maxErrorBody = 4 << 10

// BackendObserver receives timing for every call to the persistence service.
type BackendObserver interface {
	ObserveBackendCall(method, endpoint string, status int, duration time.Duration)
}

// BackendClient speaks the JSON request/response contract of the persistence
// service. Every non-2xx status is translated into an *appErrors.Error so
// callers never inspect HTTP codes.
type BackendClient struct {
	baseURL  string
	token    string
	client   *http.Client
	observer BackendObserver
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewBackendClient constructs a client for the configured base URL.
func NewBackendClient(cfg config.BackendConfig, observer BackendObserver, logger *zap.Logger) *BackendClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BackendClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		observer: observer,
		logger:   logger,
		tracer:   otel.Tracer("github.com/noah-isme/sma-progress-api/internal/repository/backend"),
	}
}

// Get decodes the response of GET path into out.
func (c *BackendClient) Get(ctx context.Context, endpoint, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, path, query, nil, out)
}

// Post sends body as JSON and decodes the response into out when non-nil.
func (c *BackendClient) Post(ctx context.Context, endpoint, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, endpoint, path, nil, body, out)
}

// Put sends body as JSON and decodes the response into out when non-nil.
func (c *BackendClient) Put(ctx context.Context, endpoint, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, endpoint, path, nil, body, out)
}

// Delete issues DELETE path with the optional query.
func (c *BackendClient) Delete(ctx context.Context, endpoint, path string, query url.Values) error {
	return c.do(ctx, http.MethodDelete, endpoint, path, query, nil, nil)
}

func (c *BackendClient) do(ctx context.Context, method, endpoint, path string, query url.Values, body, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "backend."+endpoint, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("backend.path", path),
	))
	defer span.End()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode backend request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build backend request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.HeaderKey, id)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.observe(method, endpoint, 0, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport_failed")
		c.logger.Warn("backend unreachable", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, appErrors.ErrBackendUnavailable.Message)
	}
	defer resp.Body.Close()

	c.observe(method, endpoint, resp.StatusCode, duration)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		appErr := statusError(resp.StatusCode, method, path, raw)
		span.SetStatus(codes.Error, appErr.Code)
		return appErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := decodeBody(resp.Body, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode_failed")
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "persistence service returned an unreadable body")
	}
	return nil
}

func (c *BackendClient) observe(method, endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer.ObserveBackendCall(method, endpoint, status, duration)
	}
}

// decodeBody accepts both a bare payload and a {"data": ...} envelope.
func decodeBody(body io.Reader, out interface{}) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
			raw = envelope.Data
		}
	}
	return json.Unmarshal(raw, out)
}

func statusError(status int, method, path string, body []byte) *appErrors.Error {
	detail := backendMessage(body)
	cause := fmt.Errorf("%s %s returned %d", method, path, status)
	switch {
	case status == http.StatusConflict:
		return appErrors.Wrap(cause, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, firstNonEmpty(detail, "record already exists"))
	case status == http.StatusNotFound:
		return appErrors.Wrap(cause, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, firstNonEmpty(detail, "record not found"))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return appErrors.Wrap(cause, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, firstNonEmpty(detail, "persistence service rejected the request"))
	default:
		return appErrors.Wrap(cause, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	}
}

func backendMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return firstNonEmpty(payload.Message, payload.Error)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
