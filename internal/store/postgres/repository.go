// Package postgres implements store.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assiworks/opening-registration/internal/models"
	"github.com/assiworks/opening-registration/internal/store"
)

const uniqueViolation = "23505"

// Repository handles registration and email log persistence.
type Repository struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Repository)(nil)

// NewRepository creates a Postgres-backed store.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const registrationColumns = `id, email, name, affiliation, position, note, cancel_token, created_at, cancelled_at`

// Create inserts a registration. The id and created_at come from the database.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (email, name, affiliation, position, note, cancel_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q,
		reg.Email, reg.Name, nullable(reg.Affiliation), nullable(reg.Position), nullable(reg.Note), reg.CancelToken,
	).Scan(&reg.ID, &reg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicateToken
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetByToken returns the registration holding the cancel token.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM registrations WHERE cancel_token = $1`
	return scanOne(r.pool.QueryRow(ctx, q, token))
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	return scanOne(r.pool.QueryRow(ctx, q, id))
}

// CancelByToken sets cancelled_at for an active registration.
func (r *Repository) CancelByToken(ctx context.Context, token string, at time.Time) (bool, error) {
	const q = `UPDATE registrations SET cancelled_at = $2 WHERE cancel_token = $1 AND cancelled_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, token, at)
	if err != nil {
		return false, fmt.Errorf("cancel registration: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns the most recent registrations.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM registrations ORDER BY created_at DESC, id DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, store.ClampLimit(limit))
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
func (r *Repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	deleted := make([]uuid.UUID, 0, len(ids))
	if len(ids) == 0 {
		return deleted, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	rows, err := r.pool.Query(ctx, `DELETE FROM registrations WHERE id = ANY($1::uuid[]) RETURNING id`, raw)
	if err != nil {
		return nil, fmt.Errorf("delete registrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

// CountActive counts registrations that are not cancelled.
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE cancelled_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return n, nil
}

// CreateEmailLog inserts a delivery attempt record.
func (r *Repository) CreateEmailLog(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (registration_id, recipient_email, subject, status, endpoint, sender, error_message, attempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q,
		el.RegistrationID, el.RecipientEmail, nullable(el.Subject), el.Status,
		nullable(el.Endpoint), nullable(el.Sender), nullable(el.ErrorMessage), el.Attempt,
	).Scan(&el.ID, &el.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// ListEmailLogs returns email logs, newest first.
func (r *Repository) ListEmailLogs(ctx context.Context, limit int) ([]models.EmailLog, error) {
	const q = `SELECT id, registration_id, recipient_email, subject, status, endpoint, sender, error_message, attempt, created_at
		FROM email_logs
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, q, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()
	list := make([]models.EmailLog, 0)
	for rows.Next() {
		var el models.EmailLog
		var subject, endpoint, sender, errMsg *string
		if err := rows.Scan(&el.ID, &el.RegistrationID, &el.RecipientEmail, &subject, &el.Status, &endpoint, &sender, &errMsg, &el.Attempt, &el.CreatedAt); err != nil {
			return nil, err
		}
		el.Subject = deref(subject)
		el.Endpoint = deref(endpoint)
		el.Sender = deref(sender)
		el.ErrorMessage = deref(errMsg)
		list = append(list, el)
	}
	return list, rows.Err()
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func scanOne(row pgx.Row) (*models.Registration, error) {
	reg, err := scanRegistration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return reg, err
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	var affiliation, position, note *string
	err := row.Scan(&reg.ID, &reg.Email, &reg.Name, &affiliation, &position, &note, &reg.CancelToken, &reg.CreatedAt, &reg.CancelledAt)
	if err != nil {
		return nil, err
	}
	reg.Affiliation = deref(affiliation)
	reg.Position = deref(position)
	reg.Note = deref(note)
	return &reg, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
