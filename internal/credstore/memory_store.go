package credstore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// MemoryTokenStore is an in-memory store intended for tests and local runs
// without a database. Values are kept JSON-encoded, matching the durable
// stores, so decode failures behave identically everywhere.
type MemoryTokenStore struct {
	mutex  sync.Mutex
	values map[string]string
	logger *zap.Logger
}

// NewMemoryTokenStore constructs an empty in-memory store.
func NewMemoryTokenStore(logger *zap.Logger) *MemoryTokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryTokenStore{
		values: make(map[string]string),
		logger: logger,
	}
}

// Save persists the token, replacing any prior value.
func (store *MemoryTokenStore) Save(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}
	encoded, encodeErr := json.Marshal(token)
	if encodeErr != nil {
		return encodeErr
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.values[CredentialKey] = string(encoded)
	return nil
}

// Load returns the current token, or absent when nothing valid is stored.
// A malformed stored value is cleared and reported as absent.
func (store *MemoryTokenStore) Load(ctx context.Context) (string, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	raw, ok := store.values[CredentialKey]
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false, nil
	}
	var token string
	if decodeErr := json.Unmarshal([]byte(raw), &token); decodeErr != nil || strings.TrimSpace(token) == "" {
		store.logger.Warn("discarding malformed stored credential",
			zap.String("code", "credential_store.corrupt"))
		delete(store.values, CredentialKey)
		return "", false, nil
	}
	return token, true, nil
}

// Clear removes any stored token. Clearing an empty store is not an error.
func (store *MemoryTokenStore) Clear(ctx context.Context) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.values, CredentialKey)
	return nil
}

// SeedRaw writes an arbitrary raw value under the credential key, bypassing
// encoding. Tests use it to simulate corrupt persisted state.
func (store *MemoryTokenStore) SeedRaw(raw string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.values[CredentialKey] = raw
}
