package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"turbotalk/internal/domain"
	"turbotalk/internal/service"
)

// AuthHandler expone el Session Store y el access guard por HTTP.
type AuthHandler struct {
	logger *zap.Logger
	routes service.RouteTable
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, routes service.RouteTable) *AuthHandler {
	return &AuthHandler{
		logger: logger,
		routes: routes,
	}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignUp maneja POST /auth/signup.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req struct {
		credentialsRequest
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	store, ok := h.store(c)
	if !ok {
		return
	}

	session, err := store.SignUp(c.Request.Context(), req.Email, req.Password, domain.Role(strings.ToLower(strings.TrimSpace(req.Role))))
	if err != nil {
		var signupErr *service.SignupError
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		case errors.As(err, &signupErr) && isClientSignupError(signupErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": "signup failed", "reason": signupErr.Reason})
		default:
			h.logger.Error("signup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign up"})
		}
		return
	}

	c.JSON(http.StatusCreated, sessionResponse(session))
}

func isClientSignupError(err *service.SignupError) bool {
	return errors.Is(err.Err, service.ErrInvalidEmail) ||
		errors.Is(err.Err, service.ErrWeakPassword) ||
		errors.Is(err.Err, service.ErrInvalidRole)
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	store, ok := h.store(c)
	if !ok {
		return
	}

	session, err := store.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTooManyAttempts):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		}
		return
	}

	c.JSON(http.StatusOK, sessionResponse(session))
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	store, ok := h.store(c)
	if !ok {
		return
	}
	store.SignOut(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "signed_out", "redirect": service.LoginPath})
}

// Session maneja GET /auth/session.
func (h *AuthHandler) Session(c *gin.Context) {
	store, ok := h.store(c)
	if !ok {
		return
	}
	snap := store.Snapshot()
	resp := gin.H{"state": snap.State.String()}
	if snap.State == service.StateAuthenticated {
		resp["user"] = snap.Session.Identity
		resp["role"] = snap.Session.Role
	}
	c.JSON(http.StatusOK, resp)
}

// DecideRoute maneja GET /routes/decide?path=.
func (h *AuthHandler) DecideRoute(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	store, ok := h.store(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "verdict": h.routes.DecidePath(store.Snapshot(), path)})
}

func (h *AuthHandler) store(c *gin.Context) (*service.SessionStore, bool) {
	store, ok := GetSessionStore(c)
	if !ok {
		h.logger.Error("session store missing from context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return nil, false
	}
	return store, true
}

func sessionResponse(session domain.Session) gin.H {
	return gin.H{
		"user":     session.Identity,
		"role":     session.Role,
		"redirect": service.DefaultPath(session.Role),
	}
}
