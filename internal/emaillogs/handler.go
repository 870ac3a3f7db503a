// Package emaillogs serves the admin view of notification attempts.
package emaillogs

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/internal/models"
	"github.com/assiworks/opening-registration/internal/registrations"
	"github.com/assiworks/opening-registration/internal/store"
	"github.com/assiworks/opening-registration/pkg/response"
)

// Lister reads email logs.
type Lister interface {
	ListEmailLogs(ctx context.Context, limit int) ([]models.EmailLog, error)
}

// Resender re-sends the cancellation link for a registration.
type Resender interface {
	Resend(ctx context.Context, id uuid.UUID, baseURL string) (*registrations.EmailResult, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	logs          Lister
	resender      Resender
	publicBaseURL string
	logger        *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(logs Lister, resender Resender, publicBaseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logs: logs, resender: resender, publicBaseURL: strings.TrimSpace(publicBaseURL), logger: logger}
}

// List handles GET /email-logs?limit=. Newest first, capped like the
// registration list.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.logs.ListEmailLogs(c.Request.Context(), store.ClampLimit(limit))
	if err != nil {
		h.logger.Error("list email logs failed", zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	if logs == nil {
		logs = []models.EmailLog{}
	}
	response.OK(c, gin.H{"emailLogs": logs})
}

// ResendRequest is the body for POST /email-logs/resend.
type ResendRequest struct {
	RegistrationID string `json:"registration_id" binding:"required,uuid"`
}

// Resend handles POST /email-logs/resend. The email is sent inline and
// queued for retry when that fails and a queue is configured.
func (h *Handler) Resend(c *gin.Context) {
	var body ResendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "registration_id required")
		return
	}
	id, err := uuid.Parse(body.RegistrationID)
	if err != nil {
		response.BadRequest(c, "invalid registration_id")
		return
	}
	base := h.publicBaseURL
	if base == "" {
		base = registrations.RequestOrigin(c.Request)
	}
	result, err := h.resender.Resend(c.Request.Context(), id, base)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"email": result})
}
