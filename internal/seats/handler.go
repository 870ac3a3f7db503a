package seats

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/assiworks/opening-registration/pkg/errors"
	"github.com/assiworks/opening-registration/pkg/response"
)

// Handler serves GET /seat-status.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a seat status handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Status handles GET /seat-status.
func (h *Handler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("seat status failed", zap.Error(err))
		response.Error(c, apperrors.Upstream(err, "failed to load seat status"))
		return
	}
	response.OK(c, gin.H{
		"capacity":    st.Capacity,
		"activeCount": st.ActiveCount,
		"remaining":   st.Remaining,
		"full":        st.Full,
	})
}
