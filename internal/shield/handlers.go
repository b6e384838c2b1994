package shield

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jimdaga/family-shield/internal/crypto"
	"github.com/jimdaga/family-shield/internal/emergency"
	"github.com/jimdaga/family-shield/internal/models"
	"gorm.io/gorm"
)

// CronSecretHeader authenticates the scheduler trigger endpoint.
const CronSecretHeader = "X-Cron-Secret"

// Handler serves owner-facing shield endpoints and the detector trigger.
type Handler struct {
	db         *gorm.DB
	lifecycle  *Lifecycle
	detector   *Detector
	tokens     *emergency.TokenService
	cronSecret string
	logger     *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(db *gorm.DB, lifecycle *Lifecycle, detector *Detector, tokens *emergency.TokenService, cronSecret string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		db:         db,
		lifecycle:  lifecycle,
		detector:   detector,
		tokens:     tokens,
		cronSecret: cronSecret,
		logger:     logger,
	}
}

type tokenSummary struct {
	ID                   string     `json:"id"`
	GuardianID           string     `json:"guardian_id"`
	ExpiresAt            time.Time  `json:"expires_at"`
	IsActive             bool       `json:"is_active"`
	ActivationDate       *time.Time `json:"activation_date,omitempty"`
	RequiresVerification bool       `json:"requires_verification"`
}

type guardianSummary struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Email       string                     `json:"email"`
	Permissions models.GuardianPermissions `json:"permissions"`
}

type settingsResponse struct {
	IsShieldEnabled                bool       `json:"is_shield_enabled"`
	InactivityPeriodMonths         int        `json:"inactivity_period_months"`
	RequiredGuardiansForActivation int        `json:"required_guardians_for_activation"`
	ShieldStatus                   string     `json:"shield_status"`
	LastActivityCheck              *time.Time `json:"last_activity_check,omitempty"`
}

func toSettingsResponse(s *models.ShieldSettings) settingsResponse {
	return settingsResponse{
		IsShieldEnabled:                s.IsShieldEnabled,
		InactivityPeriodMonths:         s.InactivityPeriodMonths,
		RequiredGuardiansForActivation: s.RequiredGuardiansForActivation,
		ShieldStatus:                   s.ShieldStatus,
		LastActivityCheck:              s.LastActivityCheck,
	}
}

// GetShield handles GET /api/shield.
func (h *Handler) GetShield(c *gin.Context) {
	userID := c.GetString("user_id")
	ctx := c.Request.Context()

	settings, err := h.lifecycle.Settings(ctx, userID)
	if errors.Is(err, ErrSettingsNotFound) {
		settings = &models.ShieldSettings{
			InactivityPeriodMonths:         6,
			RequiredGuardiansForActivation: 1,
			ShieldStatus:                   models.ShieldStatusInactive,
		}
	} else if err != nil {
		h.internalError(c, "load settings", err)
		return
	}

	var guardians []models.Guardian
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&guardians).Error; err != nil {
		h.internalError(c, "load guardians", err)
		return
	}

	var tokens []models.EmergencyAccessToken
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&tokens).Error; err != nil {
		h.internalError(c, "load tokens", err)
		return
	}

	gs := make([]guardianSummary, 0, len(guardians))
	for _, g := range guardians {
		gs = append(gs, guardianSummary{ID: g.ID, Name: g.Name, Email: g.Email, Permissions: g.Permissions})
	}
	ts := make([]tokenSummary, 0, len(tokens))
	for _, t := range tokens {
		ts = append(ts, tokenSummary{
			ID:                   t.ID,
			GuardianID:           t.GuardianID,
			ExpiresAt:            t.ExpiresAt,
			IsActive:             t.IsActive,
			ActivationDate:       t.ActivationDate,
			RequiresVerification: t.RequiresVerification,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"settings":  toSettingsResponse(settings),
		"guardians": gs,
		"tokens":    ts,
	})
}

// UpdateSettings handles PUT /api/shield/settings.
func (h *Handler) UpdateSettings(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := ValidateSettingsPayload(payload); err != nil {
		if errors.Is(err, ErrInvalidSettings) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "validate settings", err)
		return
	}

	var update SettingsUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	settings, err := h.lifecycle.UpdateSettings(c.Request.Context(), c.GetString("user_id"), update)
	if err != nil {
		h.internalError(c, "update settings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": toSettingsResponse(settings)})
}

// CheckIn handles POST /api/shield/check-in for a signed-in owner.
func (h *Handler) CheckIn(c *gin.Context) {
	status, err := h.lifecycle.CheckIn(c.Request.Context(), c.GetString("user_id"))
	h.writeCheckIn(c, status, err)
}

// CheckInWithToken handles POST /check-in from the emailed link.
func (h *Handler) CheckInWithToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	status, err := h.lifecycle.CheckInWithToken(c.Request.Context(), req.Token)
	h.writeCheckIn(c, status, err)
}

func (h *Handler) writeCheckIn(c *gin.Context, status string, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Check-in recorded", "shield_status": status})
	case errors.Is(err, ErrInvalidCheckInToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired check-in link"})
	case errors.Is(err, ErrSettingsNotFound):
		c.JSON(http.StatusOK, gin.H{"message": "Check-in recorded", "shield_status": models.ShieldStatusInactive})
	default:
		h.internalError(c, "check in", err)
	}
}

// IssueToken handles POST /api/shield/guardians/:id/tokens. The bearer
// token and verification code appear only in this response.
func (h *Handler) IssueToken(c *gin.Context) {
	issued, err := h.tokens.Issue(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if errors.Is(err, emergency.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Guardian not found"})
		return
	}
	if err != nil {
		h.internalError(c, "issue token", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":                issued.ID,
		"guardian_id":       issued.GuardianID,
		"token":             issued.Token,
		"verification_code": issued.VerificationCode,
		"expires_at":        issued.ExpiresAt,
		"permissions":       issued.Permissions,
	})
}

// RevokeToken handles DELETE /api/shield/tokens/:id.
func (h *Handler) RevokeToken(c *gin.Context) {
	err := h.tokens.Revoke(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if errors.Is(err, emergency.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Token not found"})
		return
	}
	if err != nil {
		h.internalError(c, "revoke token", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdminReset handles POST /api/shield/reset. Callers must hold the admin role.
func (h *Handler) AdminReset(c *gin.Context) {
	if c.GetString("user_role") != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Administrator role required"})
		return
	}

	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be a UUID"})
		return
	}

	err := h.lifecycle.AdminReset(c.Request.Context(), req.UserID, c.GetString("user_id"))
	if errors.Is(err, ErrStatusConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "Shield is not active"})
		return
	}
	if err != nil {
		h.internalError(c, "admin reset", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shield_status": models.ShieldStatusInactive})
}

// TriggerInactivityCheck handles POST /internal/inactivity-check.
func (h *Handler) TriggerInactivityCheck(c *gin.Context) {
	if h.cronSecret == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Trigger disabled"})
		return
	}
	if !crypto.EqualSecret(c.GetHeader(CronSecretHeader), h.cronSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	result, err := h.detector.Run(c.Request.Context())
	if err != nil {
		h.internalError(c, "inactivity check", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Inactivity check completed",
		"processed": result.Processed,
		"triggered": result.Triggered,
	})
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error("Shield request failed", "op", op, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
