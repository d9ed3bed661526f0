package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboarding/internal/service/admin"
	"onboarding/internal/service/journey"
	"onboarding/pkg/logger"
)

type JourneyHandler struct {
	engine *journey.Engine
	admin  *admin.Service
	logger *zap.Logger
}

func NewJourneyHandler(engine *journey.Engine, adminService *admin.Service, logger *zap.Logger) *JourneyHandler {
	return &JourneyHandler{engine: engine, admin: adminService, logger: logger}
}

// ListUsers GET /api/users
func (h *JourneyHandler) ListUsers(c *gin.Context) {
	users, err := h.admin.ListUsers(c.Request.Context())
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("ListUsers: failed to fetch users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Fejl ved hentning af brugere."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetJourney GET /api/journey?userId=
func (h *JourneyHandler) GetJourney(c *gin.Context) {
	userID, err := userIDOrDefault(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Ugyldigt userId."})
		return
	}

	view, err := h.engine.JourneyForUser(c.Request.Context(), userID)
	if errors.Is(err, journey.ErrNoActiveJourney) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Ingen aktiv onboarding for bruger."})
		return
	}
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("GetJourney: failed",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Fejl ved hentning af journey."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":   userID,
		"journey":  view.Journey,
		"tasks":    view.Tasks,
		"progress": view.Progress,
	})
}

type eventRequest struct {
	EventType string          `json:"eventType"`
	UserID    any             `json:"userId"`
	Metadata  json.RawMessage `json:"metadata"`
}

// PostEvent POST /api/events
func (h *JourneyHandler) PostEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.EventType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "eventType er påkrævet."})
		return
	}
	userID, err := userIDOrDefault(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Ugyldigt userId."})
		return
	}

	out, err := h.engine.HandleEvent(c.Request.Context(), journey.Event{
		Type:     req.EventType,
		UserID:   userID,
		Metadata: req.Metadata,
		Source:   "http",
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Fejl ved håndtering af event."})
		return
	}

	if out.Journey == nil {
		c.JSON(http.StatusOK, gin.H{"message": out.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  out.Message,
		"journey":  out.Journey,
		"tasks":    out.Tasks,
		"progress": out.Progress,
	})
}

type resetRequest struct {
	UserID any `json:"userId"`
}

// Reset POST /api/reset
func (h *JourneyHandler) Reset(c *gin.Context) {
	var req resetRequest
	// an empty body resets user 1
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Ugyldigt userId."})
		return
	}
	userID, err := userIDOrDefault(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Ugyldigt userId."})
		return
	}

	err = h.engine.ResetUser(c.Request.Context(), userID)
	if errors.Is(err, journey.ErrNoActiveJourney) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Ingen aktiv onboarding at nulstille."})
		return
	}
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Reset: failed",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Fejl ved reset."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Onboarding er nulstillet."})
}
