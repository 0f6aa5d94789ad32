package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/config"
	"github.com/iliyamo/storefront-api/internal/metrics"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/utils"
)

// Claims is the payload of an access token. Role carries one entry per
// role the user holds.
type Claims struct {
	UniqueName string   `json:"unique_name"`
	Email      string   `json:"email"`
	FullName   string   `json:"fullName"`
	Roles      []string `json:"role"`
	jwt.RegisteredClaims
}

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
	ID        string // jti
}

// TokenPair is returned by login, register and refresh. RefreshToken is the
// raw value; only its digest is stored.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

var errInvalidRefresh = apperr.Unauthorized("invalid refresh token")

// TokenService issues, validates, rotates and revokes tokens.
type TokenService struct {
	cfg     config.JWTConfig
	db      TxBeginner
	tokens  TokenStore
	users   UserStore
	revoked RevocationList
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewTokenService(cfg config.JWTConfig, db TxBeginner, tokens TokenStore, users UserStore,
	revoked RevocationList, m *metrics.Metrics, log *zap.Logger) *TokenService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = config.DefaultAccessTTLMinutes * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		cfg: cfg, db: db, tokens: tokens, users: users, revoked: revoked,
		metrics: m, log: nopIfNil(log), now: func() time.Time { return time.Now().UTC() },
	}
}

// IssueAccessToken signs an HS256 token for u with its current roles.
func (s *TokenService) IssueAccessToken(u *model.User) (AccessToken, error) {
	now := s.now()
	exp := now.Add(s.cfg.AccessTTL)
	jti := uuid.NewString()
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	claims := Claims{
		UniqueName: u.Username,
		Email:      u.Email,
		FullName:   u.DisplayName,
		Roles:      roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        jti,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return AccessToken{}, apperr.Internal(err, "sign access token")
	}
	return AccessToken{Token: signed, ExpiresAt: exp, ID: jti}, nil
}

// ParseAccessToken verifies signature, algorithm, issuer, audience and
// expiry, and rejects tokens whose jti was revoked.
func (s *TokenService) ParseAccessToken(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(s.cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Unauthorized("access token expired")
		}
		return nil, apperr.Unauthorized("invalid access token")
	}
	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.log.Warn("revocation lookup failed", zap.Error(err))
		} else if revoked {
			return nil, apperr.Unauthorized("access token revoked")
		}
	}
	return claims, nil
}

// RevokeAccessToken blocks the token's jti until it would have expired.
func (s *TokenService) RevokeAccessToken(ctx context.Context, c *Claims) error {
	if s.revoked == nil || c == nil || c.ExpiresAt == nil {
		return nil
	}
	return s.revoked.Revoke(ctx, c.ID, c.ExpiresAt.Time)
}

// IssueRefreshToken creates and stores a new refresh token for userID
// through q, which may be a transaction.
func (s *TokenService) IssueRefreshToken(ctx context.Context, q repository.Querier, actor repository.Actor, userID string) (string, *model.RefreshToken, error) {
	raw, err := utils.NewOpaqueToken(utils.RefreshTokenBytes)
	if err != nil {
		return "", nil, apperr.Internal(err, "generate refresh token")
	}
	t, err := s.tokens.Store(ctx, q, actor, userID, utils.HashToken(raw), s.now().Add(s.cfg.RefreshTTL))
	if err != nil {
		return "", nil, apperr.Internal(err, "store refresh token")
	}
	return raw, t, nil
}

// ValidateRefreshToken returns the token and its owner when raw is known,
// unused, unrevoked and unexpired.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, raw string) (*model.RefreshToken, error) {
	if raw == "" {
		return nil, errInvalidRefresh
	}
	t, err := s.tokens.GetByHash(ctx, utils.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errInvalidRefresh
	}
	if err != nil {
		return nil, apperr.Internal(err, "load refresh token")
	}
	if err := s.checkUsable(t); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, t.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errInvalidRefresh
	}
	if err != nil {
		return nil, apperr.Internal(err, "load token owner")
	}
	t.User = u
	return t, nil
}

func (s *TokenService) checkUsable(t *model.RefreshToken) error {
	switch {
	case t.IsUsed:
		s.log.Warn("refresh token reuse detected", zap.String("user_id", t.UserID), zap.String("token_id", t.ID))
		return apperr.Unauthorized("refresh token has already been used")
	case t.IsRevoked:
		return apperr.Unauthorized("refresh token has been revoked")
	case !t.IsActive(s.now()):
		return apperr.Unauthorized("refresh token has expired")
	}
	return nil
}

// Rotate exchanges a valid refresh token for a new access and refresh
// token pair. The old token is locked, checked and marked used and revoked
// with the new token's digest as its replacement, all in one transaction,
// so presenting it again always fails.
func (s *TokenService) Rotate(ctx context.Context, raw string) (*TokenPair, *model.User, error) {
	if raw == "" {
		return nil, nil, errInvalidRefresh
	}
	var (
		pair TokenPair
		user *model.User
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		old, err := s.tokens.GetByHashForUpdateTx(ctx, tx, utils.HashToken(raw))
		if errors.Is(err, repository.ErrNotFound) {
			return errInvalidRefresh
		}
		if err != nil {
			return apperr.Internal(err, "load refresh token")
		}
		if err := s.checkUsable(old); err != nil {
			return err
		}

		user, err = s.users.GetByID(ctx, old.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return errInvalidRefresh
		}
		if err != nil {
			return apperr.Internal(err, "load token owner")
		}
		if !user.IsActive {
			return errDeactivated
		}

		actor := actorOf(user)
		access, err := s.IssueAccessToken(user)
		if err != nil {
			return err
		}
		newRaw, fresh, err := s.IssueRefreshToken(ctx, tx, actor, user.ID)
		if err != nil {
			return err
		}
		if err := s.tokens.MarkRotated(ctx, tx, actor, old.ID, fresh.Token, model.ReasonReplaced); err != nil {
			if errors.Is(err, repository.ErrNoRowsAffected) {
				return errInvalidRefresh
			}
			return apperr.Internal(err, "mark refresh token rotated")
		}
		pair = TokenPair{
			AccessToken:      access.Token,
			RefreshToken:     newRaw,
			ExpiresAt:        access.ExpiresAt,
			RefreshExpiresAt: fresh.ExpiryDate,
		}
		return nil
	})
	if err != nil {
		s.metrics.TokenRotated("rejected")
		return nil, nil, err
	}
	s.metrics.TokenRotated("rotated")
	s.log.Info("refresh token rotated", zap.String("user_id", user.ID))
	return &pair, user, nil
}

// Revoke marks t revoked without a replacement. An empty reason records
// the default user-initiated reason.
func (s *TokenService) Revoke(ctx context.Context, actor repository.Actor, t *model.RefreshToken, reason string) error {
	if reason == "" {
		reason = model.ReasonRevokedByUser
	}
	err := s.tokens.Revoke(ctx, actor, t.ID, reason)
	if errors.Is(err, repository.ErrNoRowsAffected) {
		return errInvalidRefresh
	}
	if err != nil {
		return apperr.Internal(err, "revoke refresh token")
	}
	return nil
}

// RevokeAllForUser revokes every live refresh token of userID through q.
func (s *TokenService) RevokeAllForUser(ctx context.Context, q repository.Querier, actor repository.Actor, userID, reason string) (int64, error) {
	n, err := s.tokens.RevokeAllForUser(ctx, q, actor, userID, reason)
	if err != nil {
		return 0, apperr.Internal(err, "revoke refresh tokens")
	}
	return n, nil
}

// Cleanup purges unusable refresh tokens older than retention.
func (s *TokenService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now().Add(-retention))
}
