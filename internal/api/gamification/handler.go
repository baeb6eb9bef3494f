// Package gamification provides the REST API for attempt completion, progress reads and admin operations.
package gamification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/internal/service/achievements"
	"github.com/ecgtrainer/gamification-engine/internal/service/events"
	"github.com/ecgtrainer/gamification-engine/internal/service/leaderboard"
	"github.com/ecgtrainer/gamification-engine/internal/service/progression"
	"github.com/ecgtrainer/gamification-engine/internal/service/session"
	"github.com/ecgtrainer/gamification-engine/internal/service/settings"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
)

// AdminUserHeader names the operator performing an admin change.
const AdminUserHeader = "X-Admin-User"

// SessionService records attempts and reads streak state.
type SessionService interface {
	CompleteAttempt(ctx context.Context, userID uint, outcome session.AttemptOutcome) (*session.Result, error)
	StreakStatus(ctx context.Context, userID uint) (progression.StreakStatus, error)
}

// LeaderboardService interface for leaderboard operations.
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, userID uint, limit int) (*leaderboard.Board, error)
	GetUserStats(ctx context.Context, userID uint) (*leaderboard.UserStats, error)
}

// AchievementService lists the achievement catalog for a user.
type AchievementService interface {
	Catalog(ctx context.Context, userID uint) ([]achievements.CatalogEntry, error)
}

// ConfigService reads and replaces the gamification config.
type ConfigService interface {
	Get(ctx context.Context) (*models.GamificationConfig, error)
	Update(ctx context.Context, cfg *models.GamificationConfig, updatedBy string) (*models.GamificationConfig, error)
}

// EventService manages XP events.
type EventService interface {
	Create(ctx context.Context, event *models.XPEvent) error
	Deactivate(ctx context.Context, id uint) error
	Enroll(ctx context.Context, eventID, userID uint) (bool, error)
	ListActive(ctx context.Context) ([]models.XPEvent, error)
}

// Handler handles gamification API requests.
type Handler struct {
	sessions     SessionService
	leaderboard  LeaderboardService
	achievements AchievementService
	config       ConfigService
	events       EventService
	log          *logger.Logger
}

// NewHandler creates a new gamification handler.
func NewHandler(
	sessionService *session.Service,
	leaderboardService *leaderboard.Service,
	achievementService *achievements.Service,
	configProvider *settings.Provider,
	eventService *events.Service,
	log *logger.Logger,
) *Handler {
	return NewHandlerWithInterfaces(sessionService, leaderboardService, achievementService, configProvider, eventService, log)
}

// NewHandlerWithInterfaces creates a new handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	sessionService SessionService,
	leaderboardService LeaderboardService,
	achievementService AchievementService,
	configService ConfigService,
	eventService EventService,
	log *logger.Logger,
) *Handler {
	return &Handler{
		sessions:     sessionService,
		leaderboard:  leaderboardService,
		achievements: achievementService,
		config:       configService,
		events:       eventService,
		log:          log,
	}
}

// RegisterRoutes mounts every endpoint under /api/v1.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/v1")

	users := api.Group("/users/:id")
	users.POST("/attempts", h.CompleteAttempt)
	users.GET("/leaderboard", h.GetLeaderboard)
	users.GET("/stats", h.GetUserStats)
	users.GET("/streak", h.GetStreak)
	users.GET("/achievements", h.GetAchievements)

	admin := api.Group("/admin")
	admin.GET("/config", h.GetConfig)
	admin.PUT("/config", h.UpdateConfig)
	admin.GET("/events", h.ListEvents)
	admin.POST("/events", h.CreateEvent)
	admin.POST("/events/:id/deactivate", h.DeactivateEvent)
	admin.POST("/events/:id/assignments", h.AssignEvent)
}

type attemptRequest struct {
	Score             float64   `json:"score" binding:"min=0,max=100"`
	Difficulty        string    `json:"difficulty" binding:"required"`
	IsPerfect         bool      `json:"is_perfect"`
	CorrectCategories []string  `json:"correct_categories"`
	CorrectFindings   []string  `json:"correct_findings"`
	CompletedAt       time.Time `json:"completed_at"`
}

type eventRequest struct {
	Name           string    `json:"name" binding:"required"`
	MultiplierType string    `json:"multiplier_type" binding:"required,oneof=2x 3x"`
	StartAt        time.Time `json:"start_at" binding:"required"`
	EndAt          time.Time `json:"end_at" binding:"required"`
	TargetType     string    `json:"target_type" binding:"required,oneof=all user_specific"`
	TargetUserID   *uint     `json:"target_user_id"`
}

type assignmentRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// CompleteAttempt records a scored attempt.
// POST /api/v1/users/:id/attempts.
func (h *Handler) CompleteAttempt(c *gin.Context) {
	userID, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req attemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid attempt: %v", err))
		return
	}

	result, err := h.sessions.CompleteAttempt(c.Request.Context(), userID, session.AttemptOutcome{
		Score:             req.Score,
		Difficulty:        models.Difficulty(req.Difficulty),
		IsPerfect:         req.IsPerfect,
		CorrectCategories: req.CorrectCategories,
		CorrectFindings:   req.CorrectFindings,
		CompletedAt:       req.CompletedAt,
	})
	if err != nil {
		h.serviceError(c, err, "Failed to record attempt")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetLeaderboard returns the top of the board and the caller's standing.
// GET /api/v1/users/:id/leaderboard?limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	userID, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := h.parseLimit(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	board, err := h.leaderboard.GetLeaderboard(c.Request.Context(), userID, limit)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":  board,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserStats returns a user's profile summary.
// GET /api/v1/users/:id/stats.
func (h *Handler) GetUserStats(c *gin.Context) {
	userID, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.leaderboard.GetUserStats(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve user statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":        stats,
		"generated_at": time.Now().UTC(),
	})
}

// GetStreak reports whether the user's streak survives without further practice.
// GET /api/v1/users/:id/streak.
func (h *Handler) GetStreak(c *gin.Context) {
	userID, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.sessions.StreakStatus(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve streak")
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetAchievements returns the visible catalog with the user's unlock state.
// GET /api/v1/users/:id/achievements.
func (h *Handler) GetAchievements(c *gin.Context) {
	userID, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	catalog, err := h.achievements.Catalog(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve achievements")
		return
	}

	earned := 0
	for _, e := range catalog {
		if e.Earned {
			earned++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"achievements": catalog,
		"earned":       earned,
		"total":        len(catalog),
	})
}

// GetConfig returns the effective gamification config.
// GET /api/v1/admin/config.
func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.config.Get(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve config")
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// UpdateConfig replaces the gamification config.
// PUT /api/v1/admin/config.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var cfg models.GamificationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid config: %v", err))
		return
	}

	updated, err := h.config.Update(c.Request.Context(), &cfg, c.GetHeader(AdminUserHeader))
	if err != nil {
		h.serviceError(c, err, "Failed to update config")
		return
	}

	c.JSON(http.StatusOK, updated)
}

// ListEvents returns events that are on and not yet over.
// GET /api/v1/admin/events.
func (h *Handler) ListEvents(c *gin.Context) {
	list, err := h.events.ListActive(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "Failed to list events")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": list,
		"total":  len(list),
	})
}

// CreateEvent schedules a new XP event.
// POST /api/v1/admin/events.
func (h *Handler) CreateEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid event: %v", err))
		return
	}

	event := &models.XPEvent{
		Name:           req.Name,
		MultiplierType: models.MultiplierType(req.MultiplierType),
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		TargetType:     models.TargetType(req.TargetType),
		TargetUserID:   req.TargetUserID,
		Source:         models.EventSourceAdmin,
		CreatedBy:      c.GetHeader(AdminUserHeader),
	}
	if err := h.events.Create(c.Request.Context(), event); err != nil {
		h.serviceError(c, err, "Failed to create event")
		return
	}

	c.JSON(http.StatusCreated, event)
}

// DeactivateEvent switches an event off.
// POST /api/v1/admin/events/:id/deactivate.
func (h *Handler) DeactivateEvent(c *gin.Context) {
	eventID, err := h.parseID(c, "event")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.events.Deactivate(c.Request.Context(), eventID); err != nil {
		h.serviceError(c, err, "Failed to deactivate event")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": eventID, "is_active": false})
}

// AssignEvent enrolls a user in an event.
// POST /api/v1/admin/events/:id/assignments.
func (h *Handler) AssignEvent(c *gin.Context) {
	eventID, err := h.parseID(c, "event")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req assignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid assignment: %v", err))
		return
	}

	created, err := h.events.Enroll(c.Request.Context(), eventID, req.UserID)
	if err != nil {
		h.serviceError(c, err, "Failed to assign event")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"event_id": eventID, "user_id": req.UserID, "created": created})
}

// Helper functions

// parseID extracts and validates the :id URL parameter.
func (h *Handler) parseID(c *gin.Context, kind string) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, idStr)
	}
	return uint(id), nil
}

// parseLimit reads the limit query parameter. Zero means the server default.
func (h *Handler) parseLimit(c *gin.Context) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return 0, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}

	return limit, nil
}

// serviceError maps service errors onto HTTP statuses.
func (h *Handler) serviceError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, session.ErrInvalidAttempt),
		errors.Is(err, models.ErrInvalidConfig),
		errors.Is(err, models.ErrInvalidEvent):
		h.errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		h.errorResponse(c, http.StatusNotFound, "not found")
	case errors.Is(err, session.ErrRetryable):
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg(message)
		h.errorResponse(c, http.StatusServiceUnavailable, session.ErrRetryable.Error())
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(message)
		h.errorResponse(c, http.StatusInternalServerError, message)
	}
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
