// Package postgres implements the token store on PostgreSQL via
// database/sql. Rotation is a transaction around a conditional UPDATE,
// so the row version check and the successor insert commit together.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flowforward/authcore/token"
)

const pgUniqueViolation = "23505"

// Store implements [token.Store] over a *sql.DB. It is driver-agnostic
// in principle but written and tested against pgx's stdlib driver.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const insertQuery = `
	INSERT INTO refresh_tokens
		(token_id, subject_id, family_id, status, secret_hash, issued_at, expires_at, revoked_at, replaced_by, device_ip, device_ua, device_cid)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const selectQuery = `
	SELECT token_id, subject_id, family_id, status, secret_hash, issued_at, expires_at, revoked_at, replaced_by, device_ip, device_ua, device_cid
	FROM refresh_tokens
	WHERE token_id = $1
`

func (s *Store) Create(ctx context.Context, rec *token.Record) error {
	_, err := s.db.ExecContext(ctx, insertQuery, insertArgs(rec)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return token.ErrConflict
		}
		return fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	return nil
}

func insertArgs(rec *token.Record) []any {
	return []any{
		rec.TokenID, rec.SubjectID, rec.FamilyID, string(rec.Status),
		rec.SecretHash[:], rec.IssuedAt, rec.ExpiresAt, rec.RevokedAt,
		rec.ReplacedBy, rec.Device.IP, rec.Device.UserAgent, rec.Device.ClientID,
	}
}

func (s *Store) Get(ctx context.Context, tokenID string) (*token.Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectQuery, tokenID))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*token.Record, error) {
	var (
		rec    token.Record
		status string
		hash   []byte
	)
	err := row.Scan(
		&rec.TokenID, &rec.SubjectID, &rec.FamilyID, &status,
		&hash, &rec.IssuedAt, &rec.ExpiresAt, &rec.RevokedAt,
		&rec.ReplacedBy, &rec.Device.IP, &rec.Device.UserAgent, &rec.Device.ClientID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, token.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	if len(hash) != 32 {
		return nil, fmt.Errorf("%w: corrupt secret hash", token.ErrUnavailable)
	}
	rec.Status = token.Status(status)
	copy(rec.SecretHash[:], hash)
	return &rec, nil
}

// CompareAndRotate consumes the predecessor and inserts the successor in
// one transaction. The conditional UPDATE is the arbiter: its WHERE
// clause checks status, expiry, and secret hash in a single statement,
// so at most one concurrent caller sees a row change.
func (s *Store) CompareAndRotate(ctx context.Context, tokenID string, providedHash [32]byte, successor *token.Record, now time.Time) (*token.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET status = 'rotated', replaced_by = $1
		WHERE token_id = $2 AND status = 'active' AND expires_at > $3 AND secret_hash = $4
	`, successor.TokenID, tokenID, now.Unix(), providedHash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}

	if affected == 0 {
		return nil, s.classifyRotationFailure(ctx, tx, tokenID, providedHash, now)
	}

	if _, err := tx.ExecContext(ctx, insertQuery, insertArgs(successor)...); err != nil {
		return nil, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}

	return successor.Clone(), nil
}

// classifyRotationFailure re-reads the target to decide which failure the
// zero-row UPDATE represented.
func (s *Store) classifyRotationFailure(ctx context.Context, tx *sql.Tx, tokenID string, providedHash [32]byte, now time.Time) error {
	rec, err := scanRecord(tx.QueryRowContext(ctx, selectQuery, tokenID))
	if err != nil {
		return err
	}

	switch {
	case rec.Status != token.StatusActive:
		return token.ErrRotationConflict
	case rec.ExpiredAt(now):
		return token.ErrExpired
	case rec.SecretHash != providedHash:
		return token.ErrSecretMismatch
	default:
		// The row qualified on re-read, so the UPDATE lost to a concurrent
		// writer between the two statements.
		return token.ErrRotationConflict
	}
}

func (s *Store) Revoke(ctx context.Context, tokenID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET status = 'revoked', revoked_at = $1
		WHERE token_id = $2 AND status <> 'revoked'
	`, now.Unix(), tokenID)
	if err != nil {
		return fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	if affected > 0 {
		return nil
	}

	// Zero rows is fine for an already-revoked record but not for a
	// missing one.
	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_id = $1)`, tokenID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	if !exists {
		return token.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeFamily(ctx context.Context, familyID string, now time.Time) (int, error) {
	return s.revokeWhere(ctx, `family_id = $2`, familyID, now)
}

func (s *Store) RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int, error) {
	return s.revokeWhere(ctx, `subject_id = $2`, subjectID, now)
}

func (s *Store) revokeWhere(ctx context.Context, clause, arg string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET status = 'revoked', revoked_at = $1
		WHERE `+clause+` AND status <> 'revoked'
	`, now.Unix(), arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	return int(affected), nil
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	return int(affected), nil
}
