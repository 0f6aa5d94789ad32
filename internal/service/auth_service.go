package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/config"
	"github.com/iliyamo/storefront-api/internal/metrics"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/utils"
)

var (
	errBadCredentials = apperr.Unauthorized("invalid username or password")
	errDeactivated    = apperr.Unauthorized("Your account is deactivated. Please contact administrator.")
)

// RegisterInput carries the fields accepted by POST /v1/auth/register.
// Shape validation happens in the handler.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Address     *string
}

// AuthService implements login, registration, refresh and revocation on top
// of TokenService.
type AuthService struct {
	db         TxBeginner
	users      UserStore
	tokens     *TokenService
	bcryptCost int
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewAuthService(db TxBeginner, users UserStore, tokens *TokenService, bcryptCost int,
	m *metrics.Metrics, log *zap.Logger) *AuthService {
	return &AuthService{db: db, users: users, tokens: tokens, bcryptCost: bcryptCost, metrics: m, log: nopIfNil(log)}
}

// Login checks credentials and starts a new session. All live refresh
// tokens of the user are revoked in the same transaction that stores the
// new one, leaving exactly one active token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.Login("unknown_user")
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, apperr.Internal(err, "load user")
	}
	if !u.IsActive {
		s.metrics.Login("inactive")
		return nil, errDeactivated
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		s.metrics.Login("bad_password")
		return nil, errBadCredentials
	}

	pair, err := s.startSession(ctx, u, model.ReasonLoggedInAgain)
	if err != nil {
		return nil, err
	}
	s.metrics.Login("success")
	s.log.Info("user logged in", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return pair, nil
}

func (s *AuthService) startSession(ctx context.Context, u *model.User, revokeReason string) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(u)
	if err != nil {
		return nil, err
	}
	actor := actorOf(u)
	var (
		raw     string
		refresh *model.RefreshToken
	)
	err = inTx(ctx, s.db, func(tx *sql.Tx) error {
		if revokeReason != "" {
			n, err := s.tokens.RevokeAllForUser(ctx, tx, actor, u.ID, revokeReason)
			if err != nil {
				return err
			}
			if n > 0 {
				s.log.Debug("revoked previous refresh tokens", zap.String("user_id", u.ID), zap.Int64("count", n))
			}
		}
		raw, refresh, err = s.tokens.IssueRefreshToken(ctx, tx, actor, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     raw,
		ExpiresAt:        access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiryDate,
	}, nil
}

// Register creates a user with the User role and returns a token pair.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*TokenPair, *model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	userTaken, emailTaken, err := s.users.Taken(ctx, in.Username, in.Email)
	if err != nil {
		return nil, nil, apperr.Internal(err, "check username")
	}
	if userTaken {
		return nil, nil, apperr.Conflict("username %q is already taken", in.Username)
	}
	if emailTaken {
		return nil, nil, apperr.Conflict("email %q is already registered", in.Email)
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return nil, nil, apperr.Validation("password must be at most 72 bytes")
	}
	if err != nil {
		return nil, nil, apperr.Internal(err, "hash password")
	}

	u := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		DateOfBirth:  in.DateOfBirth,
		Address:      in.Address,
	}
	u.DisplayName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	u.IsActive = true

	if err := s.createUser(ctx, repository.System, u, model.RoleUser); err != nil {
		return nil, nil, err
	}

	pair, err := s.startSession(ctx, u, "")
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return pair, u, nil
}

func (s *AuthService) createUser(ctx context.Context, actor repository.Actor, u *model.User, role string) error {
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.users.CreateTx(ctx, tx, actor, u); err != nil {
			return err
		}
		return s.users.AssignRoleTx(ctx, tx, u.ID, role)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return apperr.Conflict("username or email is already registered")
	}
	if err != nil {
		return storeErr(err, "role")
	}
	u.Roles = []string{role}
	return nil
}

// Refresh rotates raw into a new token pair.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	pair, _, err := s.tokens.Rotate(ctx, raw)
	return pair, err
}

// RevokeToken revokes a refresh token owned by actor and blocks the access
// token the request was made with.
func (s *AuthService) RevokeToken(ctx context.Context, actor repository.Actor, raw string, claims *Claims) error {
	t, err := s.tokens.ValidateRefreshToken(ctx, raw)
	if err != nil {
		return err
	}
	if t.UserID != actor.ID {
		return apperr.Unauthorized("refresh token does not belong to the current user")
	}
	if err := s.tokens.Revoke(ctx, actor, t, model.ReasonRevokedByUser); err != nil {
		return err
	}
	if err := s.tokens.RevokeAccessToken(ctx, claims); err != nil {
		s.log.Warn("access token not blacklisted", zap.String("user_id", actor.ID), zap.Error(err))
	}
	s.log.Info("refresh token revoked", zap.String("user_id", actor.ID))
	return nil
}

// Me returns the current user with roles.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	return u, nil
}

var defaultRoles = []struct{ name, description string }{
	{model.RoleSystemAdministrator, "Full access including user management"},
	{model.RoleAdministrator, "Manages the catalog and all orders"},
	{model.RoleManager, "Read access to operational data"},
	{model.RoleUser, "Places and manages own orders"},
}

// SeedDefaults ensures the built-in roles exist and, when configured,
// creates the bootstrap administrator.
func (s *AuthService) SeedDefaults(ctx context.Context, seed config.SeedConfig) error {
	for _, r := range defaultRoles {
		if err := s.users.EnsureRole(ctx, repository.System, r.name, r.description); err != nil {
			return apperr.Internal(err, "seed role "+r.name)
		}
	}
	if seed.AdminUsername == "" || seed.AdminPassword == "" {
		return nil
	}
	_, err := s.users.GetByUsername(ctx, seed.AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal(err, "load seed admin")
	}

	hash, err := utils.HashPassword(seed.AdminPassword, s.bcryptCost)
	if err != nil {
		return apperr.Internal(err, "hash seed admin password")
	}
	email := seed.AdminEmail
	if email == "" {
		email = seed.AdminUsername + "@localhost"
	}
	u := &model.User{
		Username:     seed.AdminUsername,
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		FirstName:    "System",
		LastName:     "Administrator",
		DisplayName:  "System Administrator",
	}
	u.IsActive = true
	if err := s.createUser(ctx, repository.System, u, model.RoleSystemAdministrator); err != nil {
		return err
	}
	s.log.Info("seeded administrator", zap.String("username", u.Username))
	return nil
}

func actorOf(u *model.User) repository.Actor {
	return repository.Actor{ID: u.ID, Name: u.Username, Roles: u.Roles}
}
