package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sandipsstha139/quizu-admin/internal/apiclient"
	"github.com/sandipsstha139/quizu-admin/internal/credstore"
	"go.uber.org/zap/zaptest"
)

const adminIdentityBody = `{"statusCode":200,"success":true,"data":{"user":{"_id":"u1","fullname":"Admin","email":"admin@example.com","role":"admin"}}}`

func newManagerAgainst(t *testing.T, backend *httptest.Server) (*Manager, *credstore.MemoryTokenStore) {
	t.Helper()
	tokens := credstore.NewMemoryTokenStore(zaptest.NewLogger(t))
	client, clientErr := apiclient.New(apiclient.Config{BaseURL: backend.URL}, tokens, zaptest.NewLogger(t), nil)
	if clientErr != nil {
		t.Fatalf("failed to construct client: %v", clientErr)
	}
	return NewManager(tokens, client, zaptest.NewLogger(t), nil), tokens
}

func TestStateString(t *testing.T) {
	pairs := map[State]string{
		StateUnknown:         "unknown",
		StateRehydrating:     "rehydrating",
		StateAuthenticated:   "authenticated",
		StateUnauthenticated: "unauthenticated",
		State(99):            "invalid",
	}
	for state, expected := range pairs {
		if state.String() != expected {
			t.Fatalf("expected %q for state %d, got %q", expected, state, state.String())
		}
	}
}

func TestRehydrateWithoutCredential(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		t.Errorf("unexpected backend call to %s", request.URL.Path)
	}))
	defer backend.Close()

	manager, _ := newManagerAgainst(t, backend)
	if err := manager.Rehydrate(context.Background()); err != nil {
		t.Fatalf("rehydrate failed: %v", err)
	}
	snapshot := manager.Snapshot()
	if snapshot.State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", snapshot.State)
	}
	if snapshot.Loading {
		t.Fatalf("expected loading to be settled")
	}
}

func TestRehydrateConfirmsStoredCredential(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/user/me" {
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(adminIdentityBody))
	}))
	defer backend.Close()

	manager, _ := newManagerAgainst(t, backend)
	ctx := context.Background()
	tokensSeed(t, manager, ctx, "stored-token")

	if err := manager.Rehydrate(ctx); err != nil {
		t.Fatalf("rehydrate failed: %v", err)
	}
	snapshot := manager.Snapshot()
	if snapshot.State != StateAuthenticated {
		t.Fatalf("expected authenticated, got %v", snapshot.State)
	}
	if snapshot.User.ID != "u1" || snapshot.User.Email != "admin@example.com" {
		t.Fatalf("unexpected user %+v", snapshot.User)
	}
}

// A stored credential the server rejects even after the client's refresh
// attempt is cleared so the next start lands directly in Unauthenticated.
func TestRehydrateRejectedCredentialIsCleared(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == apiclient.DefaultRefreshPath {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		writer.WriteHeader(http.StatusForbidden)
	}))
	defer backend.Close()

	manager, tokens := newManagerAgainst(t, backend)
	ctx := context.Background()
	tokensSeed(t, manager, ctx, "expired-token")

	rehydrateErr := manager.Rehydrate(ctx)
	if !errors.Is(rehydrateErr, ErrIdentityRejected) {
		t.Fatalf("expected identity rejection, got %v", rehydrateErr)
	}
	if snapshot := manager.Snapshot(); snapshot.State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", snapshot.State)
	}
	if _, present, _ := tokens.Load(ctx); present {
		t.Fatalf("expected rejected credential to be cleared")
	}
}

func TestRehydrateMalformedIdentity(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"statusCode":200,"success":true,"data":{"unexpected":true}}`))
	}))
	defer backend.Close()

	manager, _ := newManagerAgainst(t, backend)
	ctx := context.Background()
	tokensSeed(t, manager, ctx, "stored-token")

	if err := manager.Rehydrate(ctx); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
	if snapshot := manager.Snapshot(); snapshot.State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", snapshot.State)
	}
}

func TestLoginSuccess(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/user/login" {
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = writer.Write([]byte(`{"statusCode":200,"success":true,"data":{"loggedInUser":{"_id":"u1","fullname":"Admin","email":"admin@example.com","role":"admin"},"accessToken":"issued-token"}}`))
	}))
	defer backend.Close()

	manager, tokens := newManagerAgainst(t, backend)
	ctx := context.Background()
	if err := manager.Login(ctx, "admin@example.com", "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	snapshot := manager.Snapshot()
	if snapshot.State != StateAuthenticated || snapshot.User.ID != "u1" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	stored, present, _ := tokens.Load(ctx)
	if !present || stored != "issued-token" {
		t.Fatalf("expected issued token stored, got %q present=%v", stored, present)
	}
}

// The server accepts the login at the HTTP level but the user is not an
// admin: the console rejects the login and never stores the issued token.
func TestLoginNonAdminRejectedDespiteHTTPSuccess(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"statusCode":200,"success":true,"data":{"loggedInUser":{"_id":"u2","fullname":"Player","email":"player@example.com","role":"user"},"accessToken":"player-token"}}`))
	}))
	defer backend.Close()

	manager, tokens := newManagerAgainst(t, backend)
	ctx := context.Background()
	if err := manager.Login(ctx, "player@example.com", "secret"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected not-admin rejection, got %v", err)
	}
	if snapshot := manager.Snapshot(); snapshot.State == StateAuthenticated {
		t.Fatalf("expected session to remain unauthenticated")
	}
	if _, present, _ := tokens.Load(ctx); present {
		t.Fatalf("expected no credential stored for rejected login")
	}
}

func TestLoginRejectedStatus(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	manager, _ := newManagerAgainst(t, backend)
	if err := manager.Login(context.Background(), "admin@example.com", "wrong"); !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected login rejection, got %v", err)
	}
}

// Logout against an unreachable backend still clears local state. The user
// asked to leave; local belief never stays authenticated.
func TestLogoutOfflineClearsLocally(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/user/login" {
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = writer.Write([]byte(`{"statusCode":200,"success":true,"data":{"loggedInUser":{"_id":"u1","fullname":"Admin","email":"admin@example.com","role":"admin"},"accessToken":"issued-token"}}`))
	}))

	manager, tokens := newManagerAgainst(t, backend)
	ctx := context.Background()
	if err := manager.Login(ctx, "admin@example.com", "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	backend.Close()

	if err := manager.Logout(ctx); err != nil {
		t.Fatalf("logout must not fail offline: %v", err)
	}
	if snapshot := manager.Snapshot(); snapshot.State != StateUnauthenticated || snapshot.User.ID != "" {
		t.Fatalf("expected cleared session, got %+v", snapshot)
	}
	if _, present, _ := tokens.Load(ctx); present {
		t.Fatalf("expected credential cleared on logout")
	}
}

type stubCaller struct {
	get  func(ctx context.Context, path string) (*apiclient.Response, error)
	post func(ctx context.Context, path string, body any) (*apiclient.Response, error)
}

func (stub *stubCaller) Get(ctx context.Context, path string, options ...apiclient.CallOption) (*apiclient.Response, error) {
	return stub.get(ctx, path)
}

func (stub *stubCaller) Post(ctx context.Context, path string, body any, options ...apiclient.CallOption) (*apiclient.Response, error) {
	return stub.post(ctx, path, body)
}

// A login that completes while a rehydration identity fetch is still in
// flight wins: the stale fetch result is discarded when it finally lands.
func TestLoginSupersedesInFlightRehydrate(t *testing.T) {
	fetchEntered := make(chan struct{})
	releaseFetch := make(chan struct{})
	stub := &stubCaller{
		get: func(ctx context.Context, path string) (*apiclient.Response, error) {
			close(fetchEntered)
			<-releaseFetch
			return &apiclient.Response{StatusCode: http.StatusForbidden}, nil
		},
		post: func(ctx context.Context, path string, body any) (*apiclient.Response, error) {
			return &apiclient.Response{
				StatusCode: http.StatusOK,
				Body:       []byte(`{"statusCode":200,"success":true,"data":{"loggedInUser":{"_id":"u1","fullname":"Admin","email":"admin@example.com","role":"admin"},"accessToken":"fresh-token"}}`),
			}, nil
		},
	}

	ctx := context.Background()
	tokens := credstore.NewMemoryTokenStore(zaptest.NewLogger(t))
	if err := tokens.Save(ctx, "stale-token"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	manager := NewManager(tokens, stub, zaptest.NewLogger(t), nil)

	rehydrateDone := make(chan error, 1)
	go func() {
		rehydrateDone <- manager.Rehydrate(ctx)
	}()

	select {
	case <-fetchEntered:
	case <-time.After(2 * time.Second):
		t.Fatalf("identity fetch never started")
	}

	if err := manager.Login(ctx, "admin@example.com", "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	close(releaseFetch)
	select {
	case err := <-rehydrateDone:
		if err != nil {
			t.Fatalf("superseded rehydrate must report no error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("rehydrate never finished")
	}

	snapshot := manager.Snapshot()
	if snapshot.State != StateAuthenticated || snapshot.User.ID != "u1" {
		t.Fatalf("stale fetch clobbered the login outcome: %+v", snapshot)
	}
	stored, present, _ := tokens.Load(ctx)
	if !present || stored != "fresh-token" {
		t.Fatalf("expected login token to survive, got %q present=%v", stored, present)
	}
}

func tokensSeed(t *testing.T, manager *Manager, ctx context.Context, token string) {
	t.Helper()
	if err := manager.tokens.Save(ctx, token); err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}
}
