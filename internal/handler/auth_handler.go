package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboarding/internal/service/auth"
	"onboarding/pkg/logger"
)

const (
	adminPage = "/admin.html"
	userPage  = "/index.html"
)

type AuthHandler struct {
	service    *auth.Service
	cookieName string
	ttl        time.Duration
	logger     *zap.Logger
}

func NewAuthHandler(service *auth.Service, cookieName string, ttl time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: service, cookieName: cookieName, ttl: ttl, logger: logger}
}

type loginRequest struct {
	Name     string `json:"name" form:"name"`
	Password string `json:"password" form:"password"`
}

// Login POST /login. Accepts a JSON or form body and redirects to the admin
// or user page. Errors are plain text.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	_ = c.ShouldBind(&req)

	session, err := h.service.Login(c.Request.Context(), req.Name, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		c.String(http.StatusBadRequest, "Navn og adgangskode er påkrævet.")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.String(http.StatusUnauthorized, "Forkert navn eller adgangskode.")
		return
	case err != nil:
		logger.WithTrace(c.Request.Context(), h.logger).Error("Login: failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "Serverfejl.")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, session.Token, int(h.ttl.Seconds()), "/", "", false, true)

	target := userPage
	if session.User.IsAdmin {
		target = adminPage
	}
	c.Redirect(http.StatusFound, target)
}
