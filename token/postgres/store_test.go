package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flowforward/authcore/token"
)

var pgNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewStore(db), mock, db
}

func pgSecretHash(seed string) [32]byte {
	return sha256.Sum256([]byte(seed))
}

func pgRecord(tokenID, seed string) *token.Record {
	return &token.Record{
		TokenID:    tokenID,
		SubjectID:  "sub-1",
		FamilyID:   "fam-1",
		Status:     token.StatusActive,
		SecretHash: pgSecretHash(seed),
		IssuedAt:   pgNow.Unix(),
		ExpiresAt:  pgNow.Add(time.Hour).Unix(),
	}
}

func recordRows(rec *token.Record) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"token_id", "subject_id", "family_id", "status", "secret_hash",
		"issued_at", "expires_at", "revoked_at", "replaced_by",
		"device_ip", "device_ua", "device_cid",
	}).AddRow(
		rec.TokenID, rec.SubjectID, rec.FamilyID, string(rec.Status), rec.SecretHash[:],
		rec.IssuedAt, rec.ExpiresAt, rec.RevokedAt, rec.ReplacedBy,
		rec.Device.IP, rec.Device.UserAgent, rec.Device.ClientID,
	)
}

const (
	insertRe = `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\b`
	selectRe = `(?s)^\s*SELECT\s+token_id,.*FROM\s+refresh_tokens\s+WHERE\s+token_id\s*=\s*\$1`
	rotateRe = `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+status\s*=\s*'rotated'`
	revokeRe = `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+status\s*=\s*'revoked'`
)

func TestCreateSuccess(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertRe).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Create(context.Background(), pgRecord("tok-1", "s1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUniqueViolation(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertRe).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Create(context.Background(), pgRecord("tok-1", "s1"))
	if !errors.Is(err, token.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestCreateDBError(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertRe).
		WillReturnError(errors.New("db down"))

	err := store.Create(context.Background(), pgRecord("tok-1", "s1"))
	if !errors.Is(err, token.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestGetFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	rec := pgRecord("tok-1", "s1")
	mock.ExpectQuery(selectRe).
		WithArgs("tok-1").
		WillReturnRows(recordRows(rec))

	got, err := store.Get(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TokenID != "tok-1" || got.Status != token.StatusActive || got.SecretHash != rec.SecretHash {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectRe).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, token.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCompareAndRotateSuccess(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	succ := pgRecord("tok-2", "s2")

	oldHash := pgSecretHash("s1")

	mock.ExpectBegin()
	mock.ExpectExec(rotateRe).
		WithArgs("tok-2", "tok-1", pgNow.Unix(), oldHash[:]).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertRe).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	stored, err := store.CompareAndRotate(context.Background(), "tok-1", pgSecretHash("s1"), succ, pgNow)
	if err != nil {
		t.Fatalf("CompareAndRotate: %v", err)
	}
	if stored.TokenID != "tok-2" {
		t.Fatalf("successor id = %q", stored.TokenID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCompareAndRotateClassifiesFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*token.Record)
		want    error
		missing bool
	}{
		{name: "not found", missing: true, want: token.ErrNotFound},
		{name: "already rotated", mutate: func(r *token.Record) { r.Status = token.StatusRotated }, want: token.ErrRotationConflict},
		{name: "revoked", mutate: func(r *token.Record) { r.Status = token.StatusRevoked }, want: token.ErrRotationConflict},
		{name: "expired", mutate: func(r *token.Record) { r.ExpiresAt = pgNow.Add(-time.Minute).Unix() }, want: token.ErrExpired},
		{name: "secret mismatch", mutate: func(r *token.Record) { r.SecretHash = pgSecretHash("other") }, want: token.ErrSecretMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock, db := newStoreWithMock(t)
			defer db.Close()

			mock.ExpectBegin()
			mock.ExpectExec(rotateRe).
				WillReturnResult(sqlmock.NewResult(0, 0))

			if tc.missing {
				mock.ExpectQuery(selectRe).WillReturnError(sql.ErrNoRows)
			} else {
				rec := pgRecord("tok-1", "s1")
				if tc.mutate != nil {
					tc.mutate(rec)
				}
				mock.ExpectQuery(selectRe).WillReturnRows(recordRows(rec))
			}
			mock.ExpectRollback()

			_, err := store.CompareAndRotate(context.Background(), "tok-1", pgSecretHash("s1"), pgRecord("tok-2", "s2"), pgNow)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRevokeTransitions(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(revokeRe).
		WithArgs(pgNow.Unix(), "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Revoke(context.Background(), "tok-1", pgNow); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
}

func TestRevokeAlreadyRevoked(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(revokeRe).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT\s+EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if err := store.Revoke(context.Background(), "tok-1", pgNow); err != nil {
		t.Fatalf("Revoke on revoked record: %v", err)
	}
}

func TestRevokeNotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(revokeRe).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT\s+EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := store.Revoke(context.Background(), "missing", pgNow)
	if !errors.Is(err, token.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRevokeFamilyCounts(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(revokeRe).
		WithArgs(pgNow.Unix(), "fam-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	revoked, err := store.RevokeFamily(context.Background(), "fam-1", pgNow)
	if err != nil {
		t.Fatalf("RevokeFamily: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("revoked = %d, want 3", revoked)
	}
}

func TestRevokeAllForSubjectCounts(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(revokeRe).
		WithArgs(pgNow.Unix(), "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	revoked, err := store.RevokeAllForSubject(context.Background(), "sub-1", pgNow)
	if err != nil {
		t.Fatalf("RevokeAllForSubject: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("revoked = %d, want 2", revoked)
	}
}

func TestPurgeExpired(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<=\s*\$1`).
		WithArgs(pgNow.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 5))

	purged, err := store.PurgeExpired(context.Background(), pgNow)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 5 {
		t.Fatalf("purged = %d, want 5", purged)
	}
}
