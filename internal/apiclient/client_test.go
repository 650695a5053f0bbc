package apiclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sandipsstha139/quizu-admin/internal/credstore"
	"github.com/sandipsstha139/quizu-admin/internal/metrics"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, baseURL string, recorder metrics.Recorder) (*Client, *credstore.MemoryTokenStore) {
	t.Helper()
	tokens := credstore.NewMemoryTokenStore(zaptest.NewLogger(t))
	client, err := New(Config{BaseURL: baseURL}, tokens, zaptest.NewLogger(t), recorder)
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	return client, tokens
}

func TestNewRequiresBaseURL(t *testing.T) {
	tokens := credstore.NewMemoryTokenStore(nil)
	if _, err := New(Config{}, tokens, nil, nil); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}

func TestBearerAttachment(t *testing.T) {
	var observedAuthorization atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		observedAuthorization.Store(request.Header.Get("Authorization"))
		writer.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	client, tokens := newTestClient(t, backend.URL, nil)
	ctx := context.Background()

	// Without a stored credential the request goes out bare.
	if _, err := client.Get(ctx, "/category"); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if header := observedAuthorization.Load().(string); header != "" {
		t.Fatalf("expected no authorization header, got %q", header)
	}

	if err := tokens.Save(ctx, "abc"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := client.Get(ctx, "/category"); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if header := observedAuthorization.Load().(string); header != "Bearer abc" {
		t.Fatalf("expected bearer abc, got %q", header)
	}
}

// Token stored, /book answers 401 once, refresh succeeds,
// the client resends /book exactly once and returns the retried response.
func TestAuthFailureTriggersSingleRefreshAndRetry(t *testing.T) {
	var bookCalls, refreshCalls int32
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/book":
			if atomic.AddInt32(&bookCalls, 1) == 1 {
				writer.WriteHeader(http.StatusUnauthorized)
				return
			}
			writer.WriteHeader(http.StatusOK)
			_, _ = writer.Write([]byte(`{"statusCode":200,"success":true,"data":{"books":[]}}`))
		case DefaultRefreshPath:
			atomic.AddInt32(&refreshCalls, 1)
			writer.WriteHeader(http.StatusOK)
		default:
			writer.WriteHeader(http.StatusNotFound)
		}
	}))
	defer backend.Close()

	recorder := metrics.NewCounterMetrics()
	client, tokens := newTestClient(t, backend.URL, recorder)
	ctx := context.Background()
	if err := tokens.Save(ctx, "abc"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	response, err := client.Get(ctx, "/book")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected retried 200, got %d", response.StatusCode)
	}
	if got := atomic.LoadInt32(&bookCalls); got != 2 {
		t.Fatalf("expected exactly 2 calls to /book, got %d", got)
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", got)
	}
	if count := recorder.Count("api_client.retry"); count != 1 {
		t.Fatalf("expected 1 retry metric, got %d", count)
	}
}

// Two consecutive authorization failures with a succeeding refresh must not
// loop: one refresh, then the second failure is returned to the caller.
func TestSingleRetryBound(t *testing.T) {
	var protectedCalls, refreshCalls int32
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == DefaultRefreshPath {
			atomic.AddInt32(&refreshCalls, 1)
			writer.WriteHeader(http.StatusOK)
			return
		}
		atomic.AddInt32(&protectedCalls, 1)
		writer.WriteHeader(http.StatusForbidden)
	}))
	defer backend.Close()

	client, tokens := newTestClient(t, backend.URL, nil)
	ctx := context.Background()
	if err := tokens.Save(ctx, "abc"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	response, err := client.Get(ctx, "/quiz")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if response.StatusCode != http.StatusForbidden {
		t.Fatalf("expected final 403, got %d", response.StatusCode)
	}
	if got := atomic.LoadInt32(&protectedCalls); got != 2 {
		t.Fatalf("expected exactly 2 protected calls, got %d", got)
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Fatalf("expected exactly 1 refresh, got %d", got)
	}
}

// A failed refresh is terminal: the original authorization failure is what
// the caller sees, and the protected endpoint is not retried.
func TestRefreshFailurePropagatesOriginalFailure(t *testing.T) {
	var protectedCalls int32
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == DefaultRefreshPath {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&protectedCalls, 1)
		writer.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	client, tokens := newTestClient(t, backend.URL, nil)
	ctx := context.Background()
	if err := tokens.Save(ctx, "abc"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	response, err := client.Get(ctx, "/news")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected original 401, got %d", response.StatusCode)
	}
	if got := atomic.LoadInt32(&protectedCalls); got != 1 {
		t.Fatalf("expected no retry after failed refresh, got %d calls", got)
	}
}

// A renewed token returned by the refresh endpoint replaces the stored
// credential, and the retried request carries it.
func TestRetryCarriesRenewedToken(t *testing.T) {
	var retriedAuthorization atomic.Value
	var protectedCalls int32
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == DefaultRefreshPath {
			writer.Header().Set("Content-Type", "application/json")
			_, _ = writer.Write([]byte(`{"statusCode":200,"success":true,"data":{"accessToken":"renewed"}}`))
			return
		}
		if atomic.AddInt32(&protectedCalls, 1) == 1 {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		retriedAuthorization.Store(request.Header.Get("Authorization"))
		writer.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	client, tokens := newTestClient(t, backend.URL, nil)
	ctx := context.Background()
	if err := tokens.Save(ctx, "stale"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := client.Get(ctx, "/score"); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if header := retriedAuthorization.Load().(string); header != "Bearer renewed" {
		t.Fatalf("expected retried request to carry renewed token, got %q", header)
	}
	stored, present, _ := tokens.Load(ctx)
	if !present || stored != "renewed" {
		t.Fatalf("expected renewed token in store, got %q present=%v", stored, present)
	}
}

// Transport failures surface as errors and never trigger the refresh
// protocol.
func TestTransportErrorNeverRefreshes(t *testing.T) {
	var refreshCalls int32
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
	}))
	backend.Close()

	client, tokens := newTestClient(t, backend.URL, nil)
	ctx := context.Background()
	if err := tokens.Save(ctx, "abc"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := client.Get(ctx, "/book"); err == nil {
		t.Fatalf("expected transport error against closed backend")
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 0 {
		t.Fatalf("expected no refresh attempt, got %d", got)
	}
}

// A refresh with no stored credential cannot run; the original failure is
// still what the caller sees.
func TestRefreshWithoutCredentialPropagatesFailure(t *testing.T) {
	var refreshCalls int32
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == DefaultRefreshPath {
			atomic.AddInt32(&refreshCalls, 1)
			return
		}
		writer.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	client, _ := newTestClient(t, backend.URL, nil)

	response, err := client.Get(context.Background(), "/user/me")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", response.StatusCode)
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 0 {
		t.Fatalf("expected no refresh call without a stored credential, got %d", got)
	}
}

func TestRefreshRequestCarriesStoredCredential(t *testing.T) {
	var refreshBody atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == DefaultRefreshPath {
			raw, _ := io.ReadAll(request.Body)
			refreshBody.Store(string(raw))
			writer.WriteHeader(http.StatusOK)
			return
		}
		writer.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	client, tokens := newTestClient(t, backend.URL, nil)
	ctx := context.Background()
	if err := tokens.Save(ctx, "abc"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := client.Get(ctx, "/book"); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if body := refreshBody.Load().(string); body != `{"refreshToken":"abc"}` {
		t.Fatalf("unexpected refresh body %q", body)
	}
}

func TestDecodeEnvelopeRejectsShapeMismatch(t *testing.T) {
	type payload struct {
		Books []string `json:"books"`
	}
	if _, err := DecodeEnvelope[payload](&Response{Body: []byte("not json")}); err == nil {
		t.Fatalf("expected decode error for malformed body")
	}
	if _, err := DecodeEnvelope[payload](&Response{}); err == nil {
		t.Fatalf("expected decode error for empty body")
	}
	decoded, err := DecodeEnvelope[payload](&Response{Body: []byte(`{"data":{"books":["a"]}}`)})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded.Books) != 1 || decoded.Books[0] != "a" {
		t.Fatalf("unexpected decoded payload %+v", decoded)
	}
}
