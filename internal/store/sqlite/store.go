// Package sqlite provides an embedded SQLite registration store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/assiworks/opening-registration/internal/models"
	"github.com/assiworks/opening-registration/internal/store"
	"github.com/assiworks/opening-registration/internal/store/sqlite/migrations"
)

// Store persists registrations in a SQLite file.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := sqlDB.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Create inserts a registration with a fresh id.
func (s *Store) Create(ctx context.Context, reg *models.Registration) error {
	id := uuid.New()
	createdAt := s.now().UTC().Truncate(time.Millisecond)
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO registrations (id, email, name, affiliation, position, note, cancel_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), reg.Email, reg.Name, nullString(reg.Affiliation), nullString(reg.Position), nullString(reg.Note),
		reg.CancelToken, toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateToken
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	reg.ID = id
	reg.CreatedAt = createdAt
	return nil
}

const registrationColumns = `id, email, name, affiliation, position, note, cancel_token, created_at, cancelled_at`

// GetByToken returns the registration holding the cancel token.
func (s *Store) GetByToken(ctx context.Context, token string) (*models.Registration, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE cancel_token = ?`, token)
	return scanOne(row)
}

// GetByID returns a registration by id.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, id.String())
	return scanOne(row)
}

// CancelByToken sets cancelled_at for an active registration.
func (s *Store) CancelByToken(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE registrations SET cancelled_at = ? WHERE cancel_token = ? AND cancelled_at IS NULL`,
		toMillis(at), token,
	)
	if err != nil {
		return false, fmt.Errorf("cancel registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}
	return n == 1, nil
}

// List returns the most recent registrations.
func (s *Store) List(ctx context.Context, limit int) ([]models.Registration, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		store.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	list := make([]models.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *reg)
	}
	return list, rows.Err()
}

// DeleteByIDs removes registrations and returns the ids that were present.
func (s *Store) DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	deleted := make([]uuid.UUID, 0, len(ids))
	if len(ids) == 0 {
		return deleted, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}
	q := `DELETE FROM registrations WHERE id IN (` + strings.Join(placeholders, ",") + `) RETURNING id`
	rows, err := s.sqlDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("delete registrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse deleted id: %w", err)
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

// CountActive counts registrations that are not cancelled.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations WHERE cancelled_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return n, nil
}

// CreateEmailLog inserts a delivery attempt record.
func (s *Store) CreateEmailLog(ctx context.Context, el *models.EmailLog) error {
	id := uuid.New()
	createdAt := s.now().UTC().Truncate(time.Millisecond)
	var registrationID sql.NullString
	if el.RegistrationID != nil {
		registrationID = sql.NullString{String: el.RegistrationID.String(), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO email_logs (id, registration_id, recipient_email, subject, status, endpoint, sender, error_message, attempt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), registrationID, el.RecipientEmail, nullString(el.Subject), el.Status,
		nullString(el.Endpoint), nullString(el.Sender), nullString(el.ErrorMessage), el.Attempt, toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	el.ID = id
	el.CreatedAt = createdAt
	return nil
}

// ListEmailLogs returns email logs, newest first.
func (s *Store) ListEmailLogs(ctx context.Context, limit int) ([]models.EmailLog, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, registration_id, recipient_email, subject, status, endpoint, sender, error_message, attempt, created_at
		FROM email_logs ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		store.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()
	list := make([]models.EmailLog, 0)
	for rows.Next() {
		var (
			el                                             models.EmailLog
			rawID                                          string
			registrationID, subject, endpoint, sender, msg sql.NullString
			createdAt                                      int64
		)
		if err := rows.Scan(&rawID, &registrationID, &el.RecipientEmail, &subject, &el.Status, &endpoint, &sender, &msg, &el.Attempt, &createdAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse email log id: %w", err)
		}
		el.ID = id
		if registrationID.Valid {
			rid, err := uuid.Parse(registrationID.String)
			if err != nil {
				return nil, fmt.Errorf("parse registration id: %w", err)
			}
			el.RegistrationID = &rid
		}
		el.Subject = subject.String
		el.Endpoint = endpoint.String
		el.Sender = sender.String
		el.ErrorMessage = msg.String
		el.CreatedAt = fromMillis(createdAt)
		list = append(list, el)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row rowScanner) (*models.Registration, error) {
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return reg, err
}

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var (
		reg                         models.Registration
		rawID                       string
		affiliation, position, note sql.NullString
		createdAt                   int64
		cancelledAt                 sql.NullInt64
	)
	if err := row.Scan(&rawID, &reg.Email, &reg.Name, &affiliation, &position, &note, &reg.CancelToken, &createdAt, &cancelledAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse registration id: %w", err)
	}
	reg.ID = id
	reg.Affiliation = affiliation.String
	reg.Position = position.String
	reg.Note = note.String
	reg.CreatedAt = fromMillis(createdAt)
	if cancelledAt.Valid {
		at := fromMillis(cancelledAt.Int64)
		reg.CancelledAt = &at
	}
	return &reg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
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
