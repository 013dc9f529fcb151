package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/flowforward/authcore/events"
	"github.com/flowforward/authcore/internal"
	internalaudit "github.com/flowforward/authcore/internal/audit"
	"github.com/flowforward/authcore/jwt"
	"github.com/flowforward/authcore/password"
	"github.com/flowforward/authcore/token"
)

const tokenTypeBearer = "bearer"

// Engine issues, rotates, and revokes token pairs. Construct one with
// [New] and its builder; the zero value is not usable. All methods are
// safe for concurrent use.
type Engine struct {
	config       Config
	tokenStore   token.Store
	userProvider UserProvider
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
	publisher    events.Publisher
	logger       logr.Logger
	metrics      *Metrics
	audit        *internalaudit.Dispatcher

	dummyHash string
}

func (e *Engine) now() time.Time {
	return e.config.Clock()
}

// Login verifies identifier/secret against the user provider and, on
// success, starts a new token family: one access token plus the family's
// first refresh token. All credential failures surface as
// [ErrInvalidCredentials] with no further distinction.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	cred, err := e.userProvider.LookupCredential(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			// Burn the same hashing cost as a real mismatch.
			_, _ = e.passwordHash.Verify(secret, e.dummyHash)
			return nil, e.loginRejected(ctx, "", "unknown identifier")
		}
		return nil, wrapStoreErr(err)
	}

	ok, err := e.passwordHash.Verify(secret, cred.PasswordHash)
	if err != nil {
		e.logger.Error(err, "stored credential hash unusable", "subject_id", cred.SubjectID)
		return nil, e.loginRejected(ctx, cred.SubjectID, "credential hash unusable")
	}
	if !ok {
		return nil, e.loginRejected(ctx, cred.SubjectID, "password mismatch")
	}
	if !cred.Active {
		return nil, e.loginRejected(ctx, cred.SubjectID, "subject inactive")
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, cred, secret)
	}

	now := e.now()
	familyID := internal.NewFamilyID()

	wire, rec, err := e.mintRefresh(ctx, cred.SubjectID, familyID, now)
	if err != nil {
		return nil, err
	}
	if err := e.tokenStore.Create(ctx, rec); err != nil {
		return nil, wrapStoreErr(err)
	}

	pair, err := e.assemblePair(cred.SubjectID, wire, now)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricTokenIssued)
	e.emitAudit(ctx, AuditLoginSuccess, auditFields{
		subjectID: cred.SubjectID,
		familyID:  familyID,
		tokenID:   rec.TokenID,
		success:   true,
	})
	e.publish(ctx, events.TypeUserLoggedIn, cred.SubjectID, map[string]string{
		"family_id": familyID,
	})

	return pair, nil
}

func (e *Engine) loginRejected(ctx context.Context, subjectID, reason string) error {
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, AuditLoginFailure, auditFields{
		subjectID: subjectID,
		err:       ErrInvalidCredentials,
		metadata:  map[string]string{"reason": reason},
	})
	e.publish(ctx, events.TypeLoginFailed, "", nil)
	return ErrInvalidCredentials
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, cred CredentialRecord, secret string) {
	upgrade, err := e.passwordHash.NeedsRehash(cred.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	newHash, err := e.passwordHash.Hash(secret)
	if err != nil {
		return
	}
	if err := e.userProvider.UpdatePasswordHash(ctx, cred.SubjectID, newHash); err != nil {
		e.logger.Error(err, "password hash upgrade failed", "subject_id", cred.SubjectID)
	}
}

// Refresh consumes a refresh token and returns its successor pair. The
// presented token must be the newest in its family: presenting an
// already-consumed one is treated as replay and revokes the whole family
// before [ErrReplayDetected] is returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	tokenID, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return nil, e.refreshRejected(ctx, auditFields{err: ErrTokenInvalid, metadata: map[string]string{"reason": "undecodable"}})
	}
	providedHash := internal.HashRefreshSecret(secret)

	rec, err := e.tokenStore.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return nil, e.refreshRejected(ctx, auditFields{tokenID: tokenID, err: ErrTokenInvalid, metadata: map[string]string{"reason": "unknown token"}})
		}
		return nil, wrapStoreErr(err)
	}

	// A consumed or revoked token can only be replayed with knowledge of
	// its secret; without it the presenter proves nothing and gets a
	// plain rejection instead of triggering a family sweep.
	if rec.Status != token.StatusActive {
		if rec.SecretHash != providedHash {
			return nil, e.refreshRejected(ctx, auditFields{
				subjectID: rec.SubjectID, familyID: rec.FamilyID, tokenID: rec.TokenID,
				err: ErrTokenInvalid, metadata: map[string]string{"reason": "secret mismatch on inactive token"},
			})
		}
		replayed := ErrReplayDetected
		if rec.Status == token.StatusRevoked {
			replayed = ErrTokenInvalid
		}
		return nil, e.replayDetected(ctx, rec, replayed)
	}

	now := e.now()
	if rec.ExpiredAt(now) {
		return nil, e.refreshExpired(ctx, rec)
	}

	if e.config.Token.RecheckSubjectOnRefresh {
		active, err := e.userProvider.SubjectActive(ctx, rec.SubjectID)
		if err != nil {
			return nil, wrapStoreErr(err)
		}
		if !active {
			return nil, e.refreshRejected(ctx, auditFields{
				subjectID: rec.SubjectID, familyID: rec.FamilyID, tokenID: rec.TokenID,
				err: ErrTokenInvalid, metadata: map[string]string{"reason": "subject inactive"},
			})
		}
	}

	wire, successor, err := e.mintRefresh(ctx, rec.SubjectID, rec.FamilyID, now)
	if err != nil {
		return nil, err
	}

	stored, err := e.tokenStore.CompareAndRotate(ctx, tokenID, providedHash, successor, now)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMismatch):
			return nil, e.refreshRejected(ctx, auditFields{
				subjectID: rec.SubjectID, familyID: rec.FamilyID, tokenID: rec.TokenID,
				err: ErrTokenInvalid, metadata: map[string]string{"reason": "secret mismatch"},
			})
		case errors.Is(err, token.ErrExpired):
			return nil, e.refreshExpired(ctx, rec)
		case errors.Is(err, token.ErrRotationConflict):
			// Another rotation or a revocation won between Get and here.
			// For an active-looking token that just lost the race this is
			// exactly the double-spend the protocol exists to catch.
			return nil, e.replayDetected(ctx, rec, ErrReplayDetected)
		case errors.Is(err, token.ErrNotFound):
			return nil, e.refreshRejected(ctx, auditFields{
				subjectID: rec.SubjectID, familyID: rec.FamilyID, tokenID: rec.TokenID,
				err: ErrTokenInvalid, metadata: map[string]string{"reason": "token purged"},
			})
		default:
			return nil, wrapStoreErr(err)
		}
	}

	pair, err := e.assemblePair(stored.SubjectID, wire, now)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.metrics.Inc(MetricTokenIssued)
	e.emitAudit(ctx, AuditRefreshSuccess, auditFields{
		subjectID: stored.SubjectID,
		familyID:  stored.FamilyID,
		tokenID:   stored.TokenID,
		success:   true,
		metadata:  map[string]string{"rotated_from": tokenID},
	})
	e.publish(ctx, events.TypeTokenRefreshed, stored.SubjectID, map[string]string{
		"family_id": stored.FamilyID,
	})

	return pair, nil
}

func (e *Engine) refreshRejected(ctx context.Context, f auditFields) error {
	e.metrics.Inc(MetricRefreshFailure)
	e.emitAudit(ctx, AuditRefreshInvalid, f)
	return f.err
}

func (e *Engine) refreshExpired(ctx context.Context, rec *token.Record) error {
	e.metrics.Inc(MetricRefreshExpired)
	e.emitAudit(ctx, AuditRefreshExpired, auditFields{
		subjectID: rec.SubjectID,
		familyID:  rec.FamilyID,
		tokenID:   rec.TokenID,
		err:       ErrTokenExpired,
	})
	return ErrTokenExpired
}

// replayDetected revokes the whole family and reports result to the
// caller. The sweep failing does not soften the outcome: the caller's
// token is dead either way.
func (e *Engine) replayDetected(ctx context.Context, rec *token.Record, result error) error {
	now := e.now()

	revoked, err := e.tokenStore.RevokeFamily(ctx, rec.FamilyID, now)
	if err != nil {
		e.logger.Error(err, "family revocation sweep failed",
			"family_id", rec.FamilyID, "subject_id", rec.SubjectID)
	} else if revoked > 0 {
		e.metrics.Inc(MetricFamilyRevoked)
	}

	e.metrics.Inc(MetricReplayDetected)
	e.emitAudit(ctx, AuditReplayDetected, auditFields{
		subjectID: rec.SubjectID,
		familyID:  rec.FamilyID,
		tokenID:   rec.TokenID,
		err:       result,
	})
	e.publish(ctx, events.TypeTokenRevoked, rec.SubjectID, map[string]string{
		"family_id": rec.FamilyID,
		"reason":    "replay",
	})

	return result
}

// Logout revokes the presented refresh token. Unknown and already-revoked
// tokens are treated as success, so retried logouts are harmless. The
// token's family stays usable; only this line of succession ends.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	tokenID, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return ErrTokenInvalid
	}

	rec, err := e.tokenStore.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return nil
		}
		return wrapStoreErr(err)
	}
	// Revocation requires possession, same as rotation.
	if rec.SecretHash != internal.HashRefreshSecret(secret) {
		return ErrTokenInvalid
	}

	if err := e.tokenStore.Revoke(ctx, tokenID, e.now()); err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return nil
		}
		return wrapStoreErr(err)
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, auditFields{
		subjectID: rec.SubjectID,
		familyID:  rec.FamilyID,
		tokenID:   rec.TokenID,
		success:   true,
	})
	e.publish(ctx, events.TypeUserLoggedOut, rec.SubjectID, map[string]string{
		"family_id": rec.FamilyID,
	})

	return nil
}

// LogoutAll revokes every live refresh token the subject holds, across
// all families and devices, and returns how many were revoked. Calling
// it for a subject with no tokens is valid and returns zero.
func (e *Engine) LogoutAll(ctx context.Context, subjectID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.tokenStore.RevokeAllForSubject(ctx, subjectID, e.now())
	if err != nil {
		return 0, wrapStoreErr(err)
	}

	e.metrics.Inc(MetricLogoutAll)
	e.emitAudit(ctx, AuditLogoutAll, auditFields{
		subjectID: subjectID,
		success:   true,
		metadata:  map[string]string{"revoked": strconv.Itoa(revoked)},
	})
	e.publish(ctx, events.TypeUserLoggedOutAll, subjectID, map[string]string{
		"revoked":            strconv.Itoa(revoked),
		"logout_all_devices": "true",
	})

	return revoked, nil
}

// VerifyAccess checks an access token's signature and claims and returns
// the subject id it was issued to. Purely local: no store access, so a
// revoked family's access tokens stay valid until they expire.
func (e *Engine) VerifyAccess(tokenStr string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	subjectID, err := e.jwtManager.ParseAccess(tokenStr, e.now())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrExpired):
			return "", ErrTokenExpired
		case errors.Is(err, jwt.ErrSignature):
			return "", ErrTokenSignature
		default:
			return "", ErrTokenMalformed
		}
	}
	return subjectID, nil
}

// PurgeExpired removes refresh token records whose lifetime has elapsed.
// Operator housekeeping, never called on a request path.
func (e *Engine) PurgeExpired(ctx context.Context) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	purged, err := e.tokenStore.PurgeExpired(ctx, e.now())
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	return purged, nil
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close flushes the audit dispatcher and closes the event publisher.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.audit.Close()
	return e.publisher.Close()
}

// mintRefresh creates a new refresh token record plus its wire encoding.
// The record is not persisted; Login inserts it, Refresh hands it to
// CompareAndRotate.
func (e *Engine) mintRefresh(ctx context.Context, subjectID, familyID string, now time.Time) (string, *token.Record, error) {
	tokenID := internal.NewTokenID()
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return "", nil, err
	}
	wire, err := internal.EncodeRefreshToken(tokenID, secret)
	if err != nil {
		return "", nil, err
	}

	rec := &token.Record{
		TokenID:    tokenID,
		SubjectID:  subjectID,
		FamilyID:   familyID,
		Status:     token.StatusActive,
		SecretHash: internal.HashRefreshSecret(secret),
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(e.config.Token.RefreshTTL).Unix(),
		Device:     deviceFromContext(ctx),
	}
	return wire, rec, nil
}

func (e *Engine) assemblePair(subjectID, refreshWire string, now time.Time) (*TokenPair, error) {
	access, err := e.jwtManager.CreateAccess(subjectID, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshWire,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(e.config.JWT.AccessTTL.Seconds()),
	}, nil
}

func (e *Engine) publish(ctx context.Context, eventType, subjectID string, data map[string]string) {
	event := events.New(eventType, e.config.Events.Source, subjectID, e.now(), data)
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Error(err, "event publish failed", "event_type", eventType)
	}
}

