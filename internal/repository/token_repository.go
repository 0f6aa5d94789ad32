package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront-api/internal/model"
)

// TokenRepo persists refresh tokens. Only the SHA-256 digest of a token is
// ever written or looked up.
type TokenRepo struct{ db *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

const tokenSelect = "SELECT t.id, t.token, t.expiry_date, t.is_used, t.is_revoked, t.user_id, t.replaced_by_token, t.reason_revoked, "

func scanToken(s scanner) (*model.RefreshToken, error) {
	var t model.RefreshToken
	dest := []any{&t.ID, &t.Token, &t.ExpiryDate, &t.IsUsed, &t.IsRevoked, &t.UserID, &t.ReplacedByToken, &t.ReasonRevoked}
	if err := s.Scan(append(dest, auditDest(&t.Audit)...)...); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// Store inserts a fresh token that is neither used nor revoked.
func (r *TokenRepo) Store(ctx context.Context, q Querier, actor Actor, userID, hash string, expires time.Time) (*model.RefreshToken, error) {
	t := &model.RefreshToken{
		ID:         uuid.NewString(),
		Token:      hash,
		ExpiryDate: expires.UTC(),
		UserID:     userID,
	}
	t.CreatedAt = nowUTC()
	t.CreatedByID = actor.AuditID()
	_, err := q.ExecContext(ctx,
		`INSERT INTO security_refresh_tokens (id, token, expiry_date, is_used, is_revoked, user_id, is_deleted, created_at, created_by_id)
		 VALUES (?, ?, ?, 0, 0, ?, 0, ?, ?)`,
		t.ID, t.Token, t.ExpiryDate, t.UserID, t.CreatedAt, t.CreatedByID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByHash returns the non-deleted token with the given digest regardless
// of its state; callers decide whether it is still usable.
func (r *TokenRepo) GetByHash(ctx context.Context, hash string) (*model.RefreshToken, error) {
	return scanToken(r.db.QueryRowContext(ctx,
		tokenSelect+auditColumns("t")+" FROM security_refresh_tokens t WHERE t.token = ? AND t.is_deleted = 0 LIMIT 1", hash))
}

// GetByHashForUpdateTx is GetByHash with a row lock held until tx ends, so
// two concurrent rotations of the same token serialise.
func (r *TokenRepo) GetByHashForUpdateTx(ctx context.Context, tx *sql.Tx, hash string) (*model.RefreshToken, error) {
	return scanToken(tx.QueryRowContext(ctx,
		tokenSelect+auditColumns("t")+" FROM security_refresh_tokens t WHERE t.token = ? AND t.is_deleted = 0 LIMIT 1 FOR UPDATE", hash))
}

// MarkRotated flags the token used and revoked and records its replacement.
// Only an active token can be rotated; otherwise ErrNoRowsAffected.
func (r *TokenRepo) MarkRotated(ctx context.Context, q Querier, actor Actor, id, replacedBy, reason string) error {
	now := nowUTC()
	res, err := q.ExecContext(ctx,
		`UPDATE security_refresh_tokens
		 SET is_used = 1, is_revoked = 1, replaced_by_token = ?, reason_revoked = ?, updated_at = ?, updated_by_id = ?
		 WHERE id = ? AND is_used = 0 AND is_revoked = 0 AND is_deleted = 0`,
		replacedBy, reason, now, actor.AuditID(), id)
	return mustAffect(res, err, ErrNoRowsAffected)
}

// Revoke flags a single token revoked without a replacement.
func (r *TokenRepo) Revoke(ctx context.Context, actor Actor, id, reason string) error {
	now := nowUTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE security_refresh_tokens
		 SET is_revoked = 1, reason_revoked = ?, updated_at = ?, updated_by_id = ?
		 WHERE id = ? AND is_revoked = 0 AND is_deleted = 0`,
		reason, now, actor.AuditID(), id)
	return mustAffect(res, err, ErrNoRowsAffected)
}

// RevokeAllForUser revokes every token of the user that is still live and
// returns how many were revoked.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, q Querier, actor Actor, userID, reason string) (int64, error) {
	now := nowUTC()
	res, err := q.ExecContext(ctx,
		`UPDATE security_refresh_tokens
		 SET is_revoked = 1, reason_revoked = ?, updated_at = ?, updated_by_id = ?
		 WHERE user_id = ? AND is_revoked = 0 AND is_used = 0 AND is_deleted = 0`,
		reason, now, actor.AuditID(), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired physically removes tokens that can no longer be used and
// were last touched before cutoff.
func (r *TokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM security_refresh_tokens
		 WHERE (is_revoked = 1 OR is_used = 1 OR expiry_date < ?) AND COALESCE(updated_at, created_at) < ?`,
		cutoff, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
