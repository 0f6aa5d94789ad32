package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/middleware"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/service"
)

// AuthService is the part of *service.AuthService the auth endpoints use.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*service.TokenPair, error)
	Register(ctx context.Context, in service.RegisterInput) (*service.TokenPair, *model.User, error)
	Refresh(ctx context.Context, raw string) (*service.TokenPair, error)
	RevokeToken(ctx context.Context, actor repository.Actor, raw string, claims *service.Claims) error
	Me(ctx context.Context, userID string) (*model.User, error)
}

type AuthHandler struct {
	svc AuthService
	log *zap.Logger
}

func NewAuthHandler(svc AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log}
}

// ----- DTOs -----

type registerReq struct {
	Username        string  `json:"username" validate:"required,min=3,max=50"`
	Email           string  `json:"email" validate:"required,email,max=255"`
	Password        string  `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string  `json:"confirm_password" validate:"required,eqfield=Password"`
	FirstName       string  `json:"first_name" validate:"required,max=50"`
	LastName        string  `json:"last_name" validate:"required,max=50"`
	DateOfBirth     string  `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Address         *string `json:"address" validate:"omitempty,max=500"`
}

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenResp struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func toTokenResp(p *service.TokenPair) tokenResp {
	return tokenResp{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, ExpiresAt: p.ExpiresAt}
}

// Register creates an account with the User role and returns a session.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	in := service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Address:   req.Address,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse(time.DateOnly, req.DateOfBirth)
		if err != nil {
			return respondError(c, h.log, apperr.Validation("date_of_birth must be YYYY-MM-DD"))
		}
		in.DateOfBirth = &dob
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	pair, u, err := h.svc.Register(ctx, in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": toUserView(*u), "token": toTokenResp(pair)})
}

// Login exchanges credentials for an access and refresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	pair, err := h.svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toTokenResp(pair))
}

// RefreshToken rotates a refresh token.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	pair, err := h.svc.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toTokenResp(pair))
}

// RevokeToken revokes one of the caller's refresh tokens and the access
// token used for this request.
func (h *AuthHandler) RevokeToken(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.svc.RevokeToken(ctx, middleware.ActorFrom(c), strings.TrimSpace(req.RefreshToken), middleware.ClaimsFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.svc.Me(ctx, middleware.ActorFrom(c).ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toUserView(*u))
}
