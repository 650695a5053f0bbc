package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	errSQLiteEmptyPath     = errors.New("credential_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("credential_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("credential_store.unsupported_no_scheme")
)

// DatabaseTokenStore persists the bearer credential using GORM so it
// survives process restarts. The credential lives in a single row under the
// fixed CredentialKey, JSON-encoded.
type DatabaseTokenStore struct {
	db          *gorm.DB
	driverLabel string
	zapLogger   *zap.Logger
}

// Driver exposes the selected database driver label.
func (store *DatabaseTokenStore) Driver() string {
	return store.driverLabel
}

type credentialRecord struct {
	Name        string `gorm:"column:name;primaryKey"`
	Value       string `gorm:"column:value;not null"`
	UpdatedUnix int64  `gorm:"column:updated_unix;not null"`
}

func (credentialRecord) TableName() string {
	return "credential_store"
}

// NewDatabaseTokenStore constructs a GORM-backed store from a sqlite:// or
// postgres:// URL.
func NewDatabaseTokenStore(ctx context.Context, databaseURL string, zapLogger *zap.Logger) (*DatabaseTokenStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("credential_store.open: %w", ErrEmptyDatabaseURL)
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("credential_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&credentialRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("credential_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseTokenStore{
		db:          gormDB,
		driverLabel: driverLabel,
		zapLogger:   zapLogger,
	}, nil
}

// Save upserts the credential row. The fixed key guarantees at most one
// credential is live at any time.
func (store *DatabaseTokenStore) Save(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("credential_store.save.%s: %w", store.driverLabel, ErrEmptyToken)
	}
	encoded, encodeErr := json.Marshal(token)
	if encodeErr != nil {
		return fmt.Errorf("credential_store.save.%s: %w", store.driverLabel, encodeErr)
	}
	record := credentialRecord{
		Name:        CredentialKey,
		Value:       string(encoded),
		UpdatedUnix: time.Now().UTC().Unix(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_unix"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("credential_store.save.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Load returns the stored token, or absent when no row exists or the stored
// value does not decode. A malformed row is deleted so the next Load is
// absent as well.
func (store *DatabaseTokenStore) Load(ctx context.Context) (string, bool, error) {
	var record credentialRecord
	err := store.db.WithContext(ctx).Where("name = ?", CredentialKey).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("credential_store.load.%s: %w", store.driverLabel, err)
	}
	var token string
	if decodeErr := json.Unmarshal([]byte(record.Value), &token); decodeErr != nil || strings.TrimSpace(token) == "" {
		store.zapLogger.Warn("discarding malformed stored credential",
			zap.String("code", "credential_store.corrupt"),
			zap.String("driver", store.driverLabel))
		if clearErr := store.Clear(ctx); clearErr != nil {
			store.zapLogger.Error("failed to clear malformed credential",
				zap.String("code", "credential_store.clear_failed"),
				zap.Error(clearErr))
		}
		return "", false, nil
	}
	return token, true, nil
}

// Clear removes the credential row. Clearing an empty store is not an error.
func (store *DatabaseTokenStore) Clear(ctx context.Context) error {
	err := store.db.WithContext(ctx).Where("name = ?", CredentialKey).Delete(&credentialRecord{}).Error
	if err != nil {
		return fmt.Errorf("credential_store.clear.%s: %w", store.driverLabel, err)
	}
	return nil
}

// SeedRaw writes an arbitrary raw value under the credential key, bypassing
// encoding. Tests use it to simulate corrupt persisted state.
func (store *DatabaseTokenStore) SeedRaw(ctx context.Context, raw string) error {
	record := credentialRecord{
		Name:        CredentialKey,
		Value:       raw,
		UpdatedUnix: time.Now().UTC().Unix(),
	}
	return store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_unix"}),
	}).Create(&record).Error
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("credential_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("credential_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("credential_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("credential_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
