// Package apiclient is the single choke point for calls to the remote quiz
// platform API. It attaches the stored bearer credential to every outbound
// request, detects authorization failures, runs the refresh protocol once per
// failing call, and retries the original request at most once. No other
// component needs authentication awareness.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sandipsstha139/quizu-admin/internal/credstore"
	"github.com/sandipsstha139/quizu-admin/internal/metrics"
	"go.uber.org/zap"
)

// DefaultRefreshPath is the backend endpoint that re-establishes authorization.
const DefaultRefreshPath = "/user/refresh-token"

// One original send plus at most one retry after a successful refresh.
const maxSendAttempts = 2

// Config configures the API client.
type Config struct {
	BaseURL     string
	RefreshPath string
	Timeout     time.Duration
	Transport   http.RoundTripper
}

// Response is the outcome of one call. Any HTTP status is a response, not an
// error; only transport and encoding failures surface as errors.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports whether the status is in the 2xx range.
func (response *Response) IsSuccess() bool {
	return response.StatusCode >= 200 && response.StatusCode < 300
}

// IsAuthFailure reports whether the status indicates a missing, expired, or
// insufficient credential.
func (response *Response) IsAuthFailure() bool {
	return response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	headers map[string]string
}

// WithHeader sets one extra header on the call and on its retry.
func WithHeader(name string, value string) CallOption {
	return func(options *callOptions) {
		options.headers[name] = value
	}
}

// Client issues authenticated calls against the backend.
type Client struct {
	baseURL      string
	refreshPath  string
	httpClient   *http.Client
	tokens       credstore.TokenStore
	logger       *zap.Logger
	recorder     metrics.Recorder
	refreshMutex sync.Mutex
}

// New constructs a Client. The token store is required; logger and recorder
// fall back to no-ops.
func New(configuration Config, tokens credstore.TokenStore, logger *zap.Logger, recorder metrics.Recorder) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("api_client.new: %w", ErrEmptyBaseURL)
	}
	if tokens == nil {
		return nil, fmt.Errorf("api_client.new: token store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewCounterMetrics()
	}
	refreshPath := configuration.RefreshPath
	if strings.TrimSpace(refreshPath) == "" {
		refreshPath = DefaultRefreshPath
	}
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		refreshPath: refreshPath,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: configuration.Transport,
		},
		tokens:   tokens,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// Get issues a GET call.
func (client *Client) Get(ctx context.Context, path string, options ...CallOption) (*Response, error) {
	return client.call(ctx, http.MethodGet, path, nil, options...)
}

// Post issues a POST call with a JSON-encoded body.
func (client *Client) Post(ctx context.Context, path string, body any, options ...CallOption) (*Response, error) {
	return client.call(ctx, http.MethodPost, path, body, options...)
}

// Patch issues a PATCH call with a JSON-encoded body.
func (client *Client) Patch(ctx context.Context, path string, body any, options ...CallOption) (*Response, error) {
	return client.call(ctx, http.MethodPatch, path, body, options...)
}

// Delete issues a DELETE call.
func (client *Client) Delete(ctx context.Context, path string, options ...CallOption) (*Response, error) {
	return client.call(ctx, http.MethodDelete, path, nil, options...)
}

// call runs the attach-refresh-retry protocol. The attempt counter is
// explicit and capped: a call that sees an authorization failure triggers
// the refresh protocol exactly once, resends the original request verbatim
// exactly once on refresh success, and otherwise propagates the original
// failure unmasked.
func (client *Client) call(ctx context.Context, method string, path string, body any, options ...CallOption) (*Response, error) {
	resolvedOptions := callOptions{headers: make(map[string]string)}
	for _, option := range options {
		option(&resolvedOptions)
	}

	var payload []byte
	if body != nil {
		encoded, encodeErr := json.Marshal(body)
		if encodeErr != nil {
			return nil, fmt.Errorf("api_client.encode_body: %w", encodeErr)
		}
		payload = encoded
	}

	requestID := uuid.NewString()

	var response *Response
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		sent, sendErr := client.send(ctx, method, path, payload, resolvedOptions, requestID)
		if sendErr != nil {
			// Transport failures never trigger refresh.
			return nil, sendErr
		}
		response = sent
		if !response.IsAuthFailure() || attempt > 0 {
			return response, nil
		}

		client.recorder.Increment("api_client.auth_failure")
		if refreshErr := client.refreshSession(ctx, requestID); refreshErr != nil {
			client.logger.Warn("refresh failed, propagating original authorization failure",
				zap.String("code", "api_client.refresh_failed"),
				zap.String("request_id", requestID),
				zap.String("method", method),
				zap.String("path", path),
				zap.Error(refreshErr))
			return response, nil
		}
		client.recorder.Increment("api_client.retry")
		client.logger.Info("retrying request after refresh",
			zap.String("code", "api_client.retry"),
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("path", path))
	}
	return response, nil
}

func (client *Client) send(ctx context.Context, method string, path string, payload []byte, options callOptions, requestID string) (*Response, error) {
	client.recorder.Increment("api_client.request")

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	request, requestErr := http.NewRequestWithContext(ctx, method, client.baseURL+path, bodyReader)
	if requestErr != nil {
		return nil, fmt.Errorf("api_client.build_request: %w", requestErr)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for name, value := range options.headers {
		request.Header.Set(name, value)
	}

	token, present, loadErr := client.tokens.Load(ctx)
	if loadErr != nil {
		return nil, fmt.Errorf("api_client.credential_load: %w", loadErr)
	}
	if present {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	httpResponse, doErr := client.httpClient.Do(request)
	if doErr != nil {
		client.recorder.Increment("api_client.transport_error")
		return nil, fmt.Errorf("api_client.transport: %w", doErr)
	}
	defer func() { _ = httpResponse.Body.Close() }()

	responseBody, readErr := io.ReadAll(httpResponse.Body)
	if readErr != nil {
		return nil, fmt.Errorf("api_client.read_body: %w", readErr)
	}

	client.logger.Debug("api call",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", httpResponse.StatusCode))

	return &Response{
		StatusCode: httpResponse.StatusCode,
		Header:     httpResponse.Header,
		Body:       responseBody,
	}, nil
}

// refreshSession runs the refresh protocol: an unauthenticated POST to the
// refresh endpoint carrying the stored credential as the refresh secret.
// Refresh executions are serialized so a credential write is atomic with
// respect to the read building any single request's auth header. A failed
// refresh is never retried recursively.
func (client *Client) refreshSession(ctx context.Context, requestID string) error {
	client.refreshMutex.Lock()
	defer client.refreshMutex.Unlock()

	storedToken, present, loadErr := client.tokens.Load(ctx)
	if loadErr != nil {
		return fmt.Errorf("api_client.refresh.credential_load: %w", loadErr)
	}
	if !present {
		return fmt.Errorf("api_client.refresh: %w", ErrNoCredential)
	}

	payload, encodeErr := json.Marshal(map[string]string{"refreshToken": storedToken})
	if encodeErr != nil {
		return fmt.Errorf("api_client.refresh.encode: %w", encodeErr)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+client.refreshPath, bytes.NewReader(payload))
	if requestErr != nil {
		return fmt.Errorf("api_client.refresh.build_request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")

	httpResponse, doErr := client.httpClient.Do(request)
	if doErr != nil {
		client.recorder.Increment("api_client.refresh_failed")
		return fmt.Errorf("api_client.refresh.transport: %w", doErr)
	}
	defer func() { _ = httpResponse.Body.Close() }()

	responseBody, readErr := io.ReadAll(httpResponse.Body)
	if readErr != nil {
		client.recorder.Increment("api_client.refresh_failed")
		return fmt.Errorf("api_client.refresh.read_body: %w", readErr)
	}
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		client.recorder.Increment("api_client.refresh_failed")
		return fmt.Errorf("api_client.refresh.status_%d: %w", httpResponse.StatusCode, ErrRefreshRejected)
	}

	// The server may return a renewed access token in the standard envelope.
	// When present it replaces the stored credential so the retried request
	// carries it; when absent the server re-established the session on its
	// side and the store is left untouched.
	var renewed struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	if decodeErr := json.Unmarshal(responseBody, &renewed); decodeErr == nil {
		if freshToken := strings.TrimSpace(renewed.Data.AccessToken); freshToken != "" {
			if saveErr := client.tokens.Save(ctx, freshToken); saveErr != nil {
				return fmt.Errorf("api_client.refresh.save: %w", saveErr)
			}
		}
	}

	client.recorder.Increment("api_client.refresh")
	client.logger.Info("session refreshed",
		zap.String("code", "api_client.refresh"),
		zap.String("request_id", requestID))
	return nil
}
