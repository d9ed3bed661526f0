package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboarding/internal/model"
	"onboarding/internal/service/admin"
	"onboarding/pkg/logger"
)

type AdminHandler struct {
	service *admin.Service
	logger  *zap.Logger
}

func NewAdminHandler(service *admin.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// ListJourneys GET /api/admin/journeys
func (h *AdminHandler) ListJourneys(c *gin.Context) {
	journeys, err := h.service.ListJourneys(c.Request.Context())
	if err != nil {
		h.fail(c, "ListJourneys", err, "Fejl ved hentning af journeys.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"journeys": journeys})
}

type createJourneyRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Tasks       []model.TaskInput `json:"tasks"`
}

// CreateJourney POST /api/admin/journeys
func (h *AdminHandler) CreateJourney(c *gin.Context) {
	const invalidMsg = "Navn og mindst ét trin (task) er påkrævet."

	var req createJourneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": invalidMsg})
		return
	}

	id, err := h.service.CreateJourney(c.Request.Context(), req.Name, req.Description, req.Tasks)
	if errors.Is(err, admin.ErrInvalidJourney) {
		c.JSON(http.StatusBadRequest, gin.H{"message": invalidMsg})
		return
	}
	if err != nil {
		h.fail(c, "CreateJourney", err, "Fejl ved oprettelse af journey.")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Journey oprettet.", "journeyId": id})
}

// DeleteJourney DELETE /api/admin/journeys/:id
func (h *AdminHandler) DeleteJourney(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Ugyldigt journey-id."})
		return
	}

	if err := h.service.DeleteJourney(c.Request.Context(), id); err != nil {
		h.fail(c, "DeleteJourney", err, "Fejl ved sletning af journey.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Journey er slettet."})
}

// ResetJourneys POST /api/admin/journeys/reset
func (h *AdminHandler) ResetJourneys(c *gin.Context) {
	if err := h.service.ResetAllJourneys(c.Request.Context()); err != nil {
		h.fail(c, "ResetJourneys", err, "Fejl ved reset af journeys.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alle journeys er slettet."})
}

// ListUsers GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, "ListUsers", err, "Fejl ved hentning af brugere.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

type assignRequest struct {
	UserID    any `json:"userId"`
	JourneyID any `json:"journeyId"`
}

// AssignJourney POST /api/admin/assign-journey
func (h *AdminHandler) AssignJourney(c *gin.Context) {
	const missingMsg = "userId og journeyId er påkrævet."

	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": missingMsg})
		return
	}
	userID, okUser, errUser := optionalID(req.UserID)
	journeyID, okJourney, errJourney := optionalID(req.JourneyID)
	if errUser != nil || errJourney != nil || !okUser || !okJourney {
		c.JSON(http.StatusBadRequest, gin.H{"message": missingMsg})
		return
	}

	if err := h.service.AssignJourney(c.Request.Context(), userID, journeyID); err != nil {
		h.fail(c, "AssignJourney", err, "Fejl ved tildeling af journey.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Journey tildelt til bruger."})
}

// Overview GET /api/admin/overview
func (h *AdminHandler) Overview(c *gin.Context) {
	entries, err := h.service.Overview(c.Request.Context())
	if err != nil {
		h.fail(c, "Overview", err, "Fejl ved hentning af overview.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *AdminHandler) fail(c *gin.Context, op string, err error, msg string) {
	logger.WithTrace(c.Request.Context(), h.logger).Error(op+": failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"message": msg})
}
