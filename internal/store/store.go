// Package store persists ruleset drafts, published ruleset versions and
// characters in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/dlovans/charsheet/internal/store/migrations"
	"github.com/dlovans/charsheet/pkg/ruleset"
	"github.com/dlovans/charsheet/pkg/xp"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidSchema = errors.New("invalid schema")
)

// Store persists charsheet state in SQLite.
type Store struct {
	sqlDB  *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Character is a stored character bound to one published ruleset version.
type Character struct {
	ID        string
	RulesetID string
	Version   int
	Sheet     xp.Sheet
	CreatedAt time.Time
	UpdatedAt time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations. A nil logger
// discards output.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Debug("store opened", zap.String("path", path))
	return &Store{sqlDB: sqlDB, logger: logger, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveDraft creates or replaces the draft of a ruleset. Drafts are stored
// as given; they are only checked on Publish.
func (s *Store) SaveDraft(ctx context.Context, rulesetID string, document any) error {
	rulesetID = strings.TrimSpace(rulesetID)
	if rulesetID == "" {
		return fmt.Errorf("ruleset id is required")
	}
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO ruleset_drafts (ruleset_id, document, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (ruleset_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		rulesetID, string(data), toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	s.logger.Info("draft saved", zap.String("ruleset_id", rulesetID))
	return nil
}

// Draft returns the decoded draft document of a ruleset.
func (s *Store) Draft(ctx context.Context, rulesetID string) (any, error) {
	var doc string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT document FROM ruleset_drafts WHERE ruleset_id = ?`, rulesetID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	var out any
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return out, nil
}

// Publish validates the draft of rulesetID and stores its normalized schema
// as the next immutable version. An invalid draft returns the validation
// result and an error wrapping ErrInvalidSchema; nothing is stored.
func (s *Store) Publish(ctx context.Context, rulesetID string) (int, ruleset.ValidationResult, error) {
	draft, err := s.Draft(ctx, rulesetID)
	if err != nil {
		return 0, ruleset.ValidationResult{}, err
	}
	result := ruleset.Validate(draft)
	if !result.Valid {
		return 0, result, fmt.Errorf("%w: %s", ErrInvalidSchema, strings.Join(result.Errors, "; "))
	}
	data, err := json.Marshal(result.Schema)
	if err != nil {
		return 0, result, fmt.Errorf("encode schema: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, result, fmt.Errorf("begin publish: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM ruleset_versions WHERE ruleset_id = ?`, rulesetID,
	).Scan(&latest); err != nil {
		return 0, result, fmt.Errorf("latest version: %w", err)
	}
	version := latest + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ruleset_versions (ruleset_id, version, schema_json, published_at) VALUES (?, ?, ?, ?)`,
		rulesetID, version, string(data), toMillis(s.now()),
	); err != nil {
		if isUniqueViolation(err) {
			return 0, result, ErrAlreadyExists
		}
		return 0, result, fmt.Errorf("insert version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, result, fmt.Errorf("commit publish: %w", err)
	}
	s.logger.Info("ruleset published", zap.String("ruleset_id", rulesetID), zap.Int("version", version))
	return version, result, nil
}

// LatestVersion returns the newest published version of rulesetID.
func (s *Store) LatestVersion(ctx context.Context, rulesetID string) (int, error) {
	var latest int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM ruleset_versions WHERE ruleset_id = ?`, rulesetID,
	).Scan(&latest); err != nil {
		return 0, fmt.Errorf("latest version: %w", err)
	}
	if latest == 0 {
		return 0, ErrNotFound
	}
	return latest, nil
}

// Schema loads a published ruleset version.
func (s *Store) Schema(ctx context.Context, rulesetID string, version int) (*ruleset.Schema, error) {
	var doc string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT schema_json FROM ruleset_versions WHERE ruleset_id = ? AND version = ?`, rulesetID, version,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	var raw any
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return ruleset.Normalize(raw), nil
}

// CreateCharacter binds a new, empty character to a published version.
func (s *Store) CreateCharacter(ctx context.Context, characterID, rulesetID string, version int) error {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return fmt.Errorf("character id is required")
	}
	if _, err := s.Schema(ctx, rulesetID, version); err != nil {
		return fmt.Errorf("ruleset %s version %d: %w", rulesetID, version, err)
	}
	now := toMillis(s.now())
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO characters (character_id, ruleset_id, version, values_json, transactions_json, created_at, updated_at)
		 VALUES (?, ?, ?, '{}', '[]', ?, ?)`,
		characterID, rulesetID, version, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create character: %w", err)
	}
	s.logger.Info("character created",
		zap.String("character_id", characterID),
		zap.String("ruleset_id", rulesetID),
		zap.Int("version", version),
	)
	return nil
}

// Character loads a character and its sheet.
func (s *Store) Character(ctx context.Context, characterID string) (Character, error) {
	var (
		c            Character
		values, txs  string
		created, upd int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT character_id, ruleset_id, version, values_json, transactions_json, created_at, updated_at
		   FROM characters WHERE character_id = ?`, characterID,
	).Scan(&c.ID, &c.RulesetID, &c.Version, &values, &txs, &created, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return Character{}, ErrNotFound
	}
	if err != nil {
		return Character{}, fmt.Errorf("get character: %w", err)
	}
	if err := json.Unmarshal([]byte(values), &c.Sheet.Values); err != nil {
		return Character{}, fmt.Errorf("decode values: %w", err)
	}
	if err := json.Unmarshal([]byte(txs), &c.Sheet.Transactions); err != nil {
		return Character{}, fmt.Errorf("decode transactions: %w", err)
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(upd)
	return c, nil
}

// SaveSheet replaces the stored sheet of a character.
func (s *Store) SaveSheet(ctx context.Context, characterID string, sheet xp.Sheet) error {
	if sheet.Values == nil {
		sheet.Values = map[string]any{}
	}
	if sheet.Transactions == nil {
		sheet.Transactions = []xp.Transaction{}
	}
	values, err := json.Marshal(sheet.Values)
	if err != nil {
		return fmt.Errorf("encode values: %w", err)
	}
	txs, err := json.Marshal(sheet.Transactions)
	if err != nil {
		return fmt.Errorf("encode transactions: %w", err)
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE characters SET values_json = ?, transactions_json = ?, updated_at = ? WHERE character_id = ?`,
		string(values), string(txs), toMillis(s.now()), characterID,
	)
	if err != nil {
		return fmt.Errorf("save sheet: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.logger.Debug("sheet saved", zap.String("character_id", characterID), zap.Int("transactions", len(sheet.Transactions)))
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
