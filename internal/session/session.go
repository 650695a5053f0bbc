// Package session holds the process-wide belief about who is logged in and
// whether that belief is settled or still resolving. A single Manager
// instance is constructor-injected into every consumer; all mutation goes
// through its own methods.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sandipsstha139/quizu-admin/internal/apiclient"
	"github.com/sandipsstha139/quizu-admin/internal/credstore"
	"github.com/sandipsstha139/quizu-admin/internal/metrics"
	"github.com/sandipsstha139/quizu-admin/pkg/tokeninspect"
	"go.uber.org/zap"
)

// State is the session lifecycle position.
type State int

const (
	// StateUnknown precedes the first credential check.
	StateUnknown State = iota
	// StateRehydrating means a stored credential was found and the identity
	// fetch is in flight.
	StateRehydrating
	// StateAuthenticated means the identity fetch confirmed the credential.
	StateAuthenticated
	// StateUnauthenticated means no credential, a failed identity fetch, or
	// an explicit logout.
	StateUnauthenticated
)

// String renders the state for logs.
func (state State) String() string {
	switch state {
	case StateUnknown:
		return "unknown"
	case StateRehydrating:
		return "rehydrating"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "invalid"
	}
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	State   State
	User    UserRecord
	Loading bool
}

// Caller is the slice of the API client the session manager needs.
type Caller interface {
	Get(ctx context.Context, path string, options ...apiclient.CallOption) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body any, options ...apiclient.CallOption) (*apiclient.Response, error)
}

var (
	// ErrNotAdmin indicates a login that the server accepted but whose user
	// does not carry the admin role. The console treats it as an
	// authorization rejection despite the HTTP success.
	ErrNotAdmin = errors.New("session.not_admin")
	// ErrLoginRejected indicates the login endpoint answered with a
	// non-success status.
	ErrLoginRejected = errors.New("session.login_rejected")
	// ErrIdentityRejected indicates the identity fetch failed with an
	// authorization failure that survived the client's refresh attempt.
	ErrIdentityRejected = errors.New("session.identity_rejected")
	// ErrMalformedResponse indicates a response whose shape did not match
	// the expected schema.
	ErrMalformedResponse = errors.New("session.malformed_response")
)

// Manager owns the session state machine.
type Manager struct {
	mutex      sync.Mutex
	state      State
	user       UserRecord
	loading    bool
	generation uint64

	tokens   credstore.TokenStore
	client   Caller
	logger   *zap.Logger
	recorder metrics.Recorder
}

// NewManager constructs a Manager in the Unknown state.
func NewManager(tokens credstore.TokenStore, client Caller, logger *zap.Logger, recorder metrics.Recorder) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewCounterMetrics()
	}
	return &Manager{
		state:    StateUnknown,
		tokens:   tokens,
		client:   client,
		logger:   logger,
		recorder: recorder,
	}
}

// Snapshot returns the current state, user, and loading flag.
func (manager *Manager) Snapshot() Snapshot {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return Snapshot{
		State:   manager.state,
		User:    manager.user,
		Loading: manager.loading,
	}
}

// Rehydrate recovers the session from the credential store on process start.
// Absent credential moves straight to Unauthenticated; a present credential
// enters Rehydrating while GET /user/me resolves the identity. An
// authorization failure surviving the client's own refresh attempt clears
// the stored credential so the next start does not loop.
func (manager *Manager) Rehydrate(ctx context.Context) error {
	token, present, loadErr := manager.tokens.Load(ctx)
	if loadErr != nil {
		manager.applyUnauthenticated(manager.bumpGeneration())
		return fmt.Errorf("session.rehydrate.credential_load: %w", loadErr)
	}
	if !present {
		manager.applyUnauthenticated(manager.bumpGeneration())
		return nil
	}

	manager.mutex.Lock()
	manager.state = StateRehydrating
	manager.loading = true
	manager.generation++
	fetchGeneration := manager.generation
	manager.mutex.Unlock()

	manager.logCredentialExpiry(token)

	response, callErr := manager.client.Get(ctx, "/user/me")

	manager.mutex.Lock()
	if manager.generation != fetchGeneration {
		// A newer login or fetch superseded this one; its result is
		// already reflected and this outcome must not clobber it.
		manager.mutex.Unlock()
		manager.recorder.Increment("session.stale_identity_discarded")
		manager.logger.Debug("discarding superseded identity fetch result",
			zap.String("code", "session.stale_identity"))
		return nil
	}
	manager.loading = false
	manager.mutex.Unlock()

	if callErr != nil {
		manager.applyUnauthenticated(fetchGeneration)
		return fmt.Errorf("session.rehydrate.fetch: %w", callErr)
	}
	if response.IsAuthFailure() {
		if clearErr := manager.tokens.Clear(ctx); clearErr != nil {
			manager.logger.Error("failed to clear rejected credential",
				zap.String("code", "session.clear_failed"),
				zap.Error(clearErr))
		}
		manager.applyUnauthenticated(fetchGeneration)
		manager.recorder.Increment("session.rehydrate_rejected")
		return fmt.Errorf("session.rehydrate.status_%d: %w", response.StatusCode, ErrIdentityRejected)
	}
	if !response.IsSuccess() {
		manager.applyUnauthenticated(fetchGeneration)
		return fmt.Errorf("session.rehydrate.status_%d: %w", response.StatusCode, ErrIdentityRejected)
	}

	identity, decodeErr := apiclient.DecodeEnvelope[identityPayload](response)
	if decodeErr != nil || strings.TrimSpace(identity.User.ID) == "" {
		manager.applyUnauthenticated(fetchGeneration)
		manager.logger.Warn("identity response shape mismatch",
			zap.String("code", "session.identity_shape"))
		return fmt.Errorf("session.rehydrate.decode: %w", ErrMalformedResponse)
	}

	manager.mutex.Lock()
	if manager.generation == fetchGeneration {
		manager.state = StateAuthenticated
		manager.user = identity.User
	}
	manager.mutex.Unlock()
	manager.recorder.Increment("session.rehydrated")
	manager.logger.Info("session rehydrated",
		zap.String("code", "session.rehydrated"),
		zap.String("user_id", identity.User.ID))
	return nil
}

// Login exchanges credentials for a session. The server may accept a
// non-admin login at the HTTP level; the console rejects it without storing
// the issued credential. Logging in while already authenticated refreshes
// the user record without a state transition.
func (manager *Manager) Login(ctx context.Context, email string, password string) error {
	manager.mutex.Lock()
	manager.loading = true
	// Invalidate any in-flight identity fetch so a slow stale failure
	// cannot clobber this login's outcome.
	manager.generation++
	loginGeneration := manager.generation
	manager.mutex.Unlock()

	response, callErr := manager.client.Post(ctx, "/user/login", loginRequest{Email: email, Password: password})

	manager.mutex.Lock()
	manager.loading = false
	manager.mutex.Unlock()

	if callErr != nil {
		manager.recorder.Increment("session.login_failed")
		return fmt.Errorf("session.login.transport: %w", callErr)
	}
	if !response.IsSuccess() {
		manager.recorder.Increment("session.login_failed")
		return fmt.Errorf("session.login.status_%d: %w", response.StatusCode, ErrLoginRejected)
	}

	login, decodeErr := apiclient.DecodeEnvelope[loginPayload](response)
	if decodeErr != nil || strings.TrimSpace(login.LoggedInUser.ID) == "" || strings.TrimSpace(login.AccessToken) == "" {
		manager.recorder.Increment("session.login_failed")
		manager.logger.Warn("login response shape mismatch",
			zap.String("code", "session.login_shape"))
		return fmt.Errorf("session.login.decode: %w", ErrMalformedResponse)
	}
	if !login.LoggedInUser.IsAdmin() {
		manager.recorder.Increment("session.login_not_admin")
		manager.logger.Warn("rejecting non-admin login despite HTTP success",
			zap.String("code", "session.not_admin"),
			zap.String("user_id", login.LoggedInUser.ID),
			zap.String("role", login.LoggedInUser.Role))
		return fmt.Errorf("session.login: %w", ErrNotAdmin)
	}

	if saveErr := manager.tokens.Save(ctx, login.AccessToken); saveErr != nil {
		manager.recorder.Increment("session.login_failed")
		return fmt.Errorf("session.login.save_credential: %w", saveErr)
	}

	manager.mutex.Lock()
	if manager.generation == loginGeneration {
		manager.state = StateAuthenticated
		manager.user = login.LoggedInUser
	}
	manager.mutex.Unlock()
	manager.recorder.Increment("session.login")
	manager.logger.Info("login successful",
		zap.String("code", "session.login"),
		zap.String("user_id", login.LoggedInUser.ID))
	return nil
}

// Logout invalidates the server session best-effort, then unconditionally
// clears local credential and user state. Local state never remains
// authenticated after a user-initiated logout, even offline.
func (manager *Manager) Logout(ctx context.Context) error {
	manager.mutex.Lock()
	manager.loading = true
	manager.generation++
	logoutGeneration := manager.generation
	manager.mutex.Unlock()

	response, callErr := manager.client.Get(ctx, "/user/logout")
	if callErr != nil {
		manager.logger.Warn("server logout unreachable, clearing locally",
			zap.String("code", "session.logout_offline"),
			zap.Error(callErr))
	} else if !response.IsSuccess() {
		manager.logger.Warn("server logout rejected, clearing locally",
			zap.String("code", "session.logout_rejected"),
			zap.Int("status", response.StatusCode))
	}

	if clearErr := manager.tokens.Clear(ctx); clearErr != nil {
		manager.logger.Error("failed to clear credential on logout",
			zap.String("code", "session.clear_failed"),
			zap.Error(clearErr))
	}
	manager.applyUnauthenticated(logoutGeneration)
	manager.recorder.Increment("session.logout")
	return nil
}

func (manager *Manager) bumpGeneration() uint64 {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	manager.generation++
	return manager.generation
}

func (manager *Manager) applyUnauthenticated(generation uint64) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	if manager.generation != generation {
		return
	}
	manager.state = StateUnauthenticated
	manager.user = UserRecord{}
	manager.loading = false
}

// logCredentialExpiry surfaces the stored token's expiry as a rehydration
// diagnostic when the token happens to be a JWT. The credential is otherwise
// treated as opaque; a parse failure is not an error.
func (manager *Manager) logCredentialExpiry(token string) {
	info, inspectErr := tokeninspect.Inspect(token)
	if inspectErr != nil {
		manager.logger.Debug("stored credential is opaque",
			zap.String("code", "session.credential_opaque"))
		return
	}
	if !info.HasExpiry() {
		return
	}
	manager.logger.Debug("stored credential expiry",
		zap.String("code", "session.credential_expiry"),
		zap.Time("expires", info.ExpiresAt),
		zap.Bool("expired", info.ExpiredAt(nil)))
}
