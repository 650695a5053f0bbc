package credstore

import (
	"context"
	"errors"
)

// CredentialKey is the single fixed key under which the bearer credential is stored.
const CredentialKey = "token"

var (
	// ErrEmptyToken indicates an attempt to save an empty credential.
	ErrEmptyToken = errors.New("credential_store.empty_token")
	// ErrEmptyDatabaseURL indicates the database store was constructed without a URL.
	ErrEmptyDatabaseURL = errors.New("credential_store.empty_database_url")
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("credential_store.unsupported_dialect")
)

// TokenStore durably persists the current bearer credential. Load reports
// presence explicitly: a stored value that fails to decode is treated as
// absent, proactively cleared, and never surfaced as an error.
type TokenStore interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (token string, present bool, err error)
	Clear(ctx context.Context) error
}
