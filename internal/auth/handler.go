package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dualcast/backend/internal/models"
	"github.com/dualcast/backend/pkg/response"
	"github.com/dualcast/backend/pkg/utils"
)

// RefreshCookie is the cookie carrying the refresh token.
const RefreshCookie = "refresh_token"

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name" binding:"required"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response. The refresh token travels only in the
// http-only cookie, never in the body.
type TokenResponse struct {
	AccessToken string            `json:"access_token"`
	ExpiresIn   int64             `json:"expires_in"`
	User        models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	store        Store
	svc          *Service
	logger       *zap.Logger
	cookieSecure bool
	cookieMaxAge int
}

// NewHandler creates an auth handler.
func NewHandler(store Store, svc *Service, refreshTTL time.Duration, cookieSecure bool, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:        store,
		svc:          svc,
		logger:       logger,
		cookieSecure: cookieSecure,
		cookieMaxAge: int(refreshTTL / time.Second),
	}
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string) {
	c.SetCookie(RefreshCookie, token, h.cookieMaxAge, "/auth", "", h.cookieSecure, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetCookie(RefreshCookie, "", -1, "/auth", "", h.cookieSecure, true)
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if _, err := h.store.GetUserByEmail(c.Request.Context(), req.Email); err == nil {
		response.Conflict(c, "email already registered")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.store.CreateUser(c.Request.Context(), req.Email, hash, req.FullName)
	if err != nil {
		h.logger.Error("create user failed", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	pair, err := h.svc.IssuePair(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("issue token pair failed", zap.Error(err))
		response.Internal(c, "failed to issue tokens")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.Created(c, TokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresIn:   int64(h.svc.jwt.TTL() / time.Second),
		User:        user.ToPublic(),
	})
}

// Login handles POST /auth/login. Unknown email and wrong password collapse to
// the same message to avoid account enumeration.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Unauthorized(c, response.CodeTokenInvalid, "invalid email or password")
		return
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, response.CodeTokenInvalid, "invalid email or password")
		return
	}

	pair, err := h.svc.IssuePair(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("issue token pair failed", zap.Error(err))
		response.Internal(c, "failed to issue tokens")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.OK(c, TokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresIn:   int64(h.svc.jwt.TTL() / time.Second),
		User:        user.ToPublic(),
	})
}

// Refresh handles POST /auth/refresh-token: rotates the refresh token from the
// cookie and returns a new access token.
func (h *Handler) Refresh(c *gin.Context) {
	token, err := c.Cookie(RefreshCookie)
	if err != nil || token == "" {
		response.Unauthorized(c, response.CodeTokenInvalid, "refresh token required")
		return
	}

	user, pair, err := h.svc.Rotate(c.Request.Context(), token)
	if err != nil {
		h.clearRefreshCookie(c)
		switch {
		case errors.Is(err, ErrExpiredToken):
			response.Unauthorized(c, response.CodeTokenExpired, "refresh token expired")
		case errors.Is(err, ErrInvalidToken):
			response.Unauthorized(c, response.CodeTokenInvalid, "invalid refresh token")
		default:
			h.logger.Error("rotate refresh token failed", zap.Error(err))
			response.Internal(c, "failed to refresh token")
		}
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.OK(c, TokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresIn:   int64(h.svc.jwt.TTL() / time.Second),
		User:        user.ToPublic(),
	})
}

// Logout handles POST /auth/logout: revokes the cookie's refresh token.
// Succeeds whether or not the token was still live.
func (h *Handler) Logout(c *gin.Context) {
	if token, err := c.Cookie(RefreshCookie); err == nil && token != "" {
		if err := h.svc.RevokeOne(c.Request.Context(), token); err != nil {
			h.logger.Warn("revoke refresh token failed", zap.Error(err))
		}
	}
	h.clearRefreshCookie(c)
	response.OK(c, gin.H{"logged_out": true})
}

// LogoutAll handles POST /auth/logout-all: revokes every refresh token of the
// authenticated caller.
func (h *Handler) LogoutAll(c *gin.Context) {
	userID := c.MustGet(ContextUserID).(uuid.UUID)
	if err := h.svc.RevokeAll(c.Request.Context(), userID); err != nil {
		h.logger.Error("revoke all refresh tokens failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to revoke sessions")
		return
	}
	h.clearRefreshCookie(c)
	response.OK(c, gin.H{"logged_out": true})
}
