package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell/inkwell-api/internal/models"
	"github.com/lib/pq"
)

const profileByIDQuery = `
	SELECT id, role, username, updated_at
	FROM profiles
	WHERE id = $1
`

// ProfileRepository reads and updates profile roles with whatever privileges its connection has.
// Built on the service connection it bypasses row-level security.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID returns the profile for userID, or nil when no row is visible.
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, profileByIDQuery, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// LookupRole satisfies the admin gate's role lookup on the elevated connection.
func (r *ProfileRepository) LookupRole(ctx context.Context, userID string) (*models.Profile, error) {
	return r.GetByID(ctx, userID)
}

// SetRole updates the role of an existing profile.
func (r *ProfileRepository) SetRole(ctx context.Context, userID string, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET role = $2, updated_at = $3 WHERE id = $1
	`, userID, string(role), time.Now())
	if err != nil {
		return fmt.Errorf("failed to set profile role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %w", sql.ErrNoRows)
	}
	return nil
}

// SessionProfileReader reads profiles as the end user would: inside a read-only transaction that
// assumes the session role and exposes the caller's JWT claims to row-level security policies.
type SessionProfileReader struct {
	db   *DB
	role string
}

// NewSessionProfileReader creates a reader that switches to sessionRole for each lookup.
// An empty sessionRole keeps the connection's own role.
func NewSessionProfileReader(db *DB, sessionRole string) *SessionProfileReader {
	return &SessionProfileReader{db: db, role: sessionRole}
}

// GetByIDAs returns the profile for userID as visible to a session carrying claimsJSON,
// or nil when policies hide the row.
func (r *SessionProfileReader) GetByIDAs(ctx context.Context, claimsJSON []byte, userID string) (p *models.Profile, err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin session lookup: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err == nil {
			err = fmt.Errorf("rollback session lookup: %w", rbErr)
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(claimsJSON)); err != nil {
		return nil, fmt.Errorf("set session claims: %w", err)
	}
	if r.role != "" {
		if _, err = tx.ExecContext(ctx, "SET LOCAL ROLE "+pq.QuoteIdentifier(r.role)); err != nil {
			return nil, fmt.Errorf("assume session role: %w", err)
		}
	}

	p, err = scanProfile(tx.QueryRowContext(ctx, profileByIDQuery, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get profile as session: %w", err)
	}
	return p, nil
}

func scanProfile(row *sql.Row) (*models.Profile, error) {
	p := &models.Profile{}
	var role string
	var username sql.NullString
	var updatedAt sql.NullTime
	err := row.Scan(&p.ID, &role, &username, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	if username.Valid {
		p.Username = &username.String
	}
	if updatedAt.Valid {
		p.UpdatedAt = &updatedAt.Time
	}
	return p, nil
}
