package admin

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/pkg/response"
)

// Handler serves the admin registration endpoints. Routes must sit behind
// middleware.AdminAuth.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an admin handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /registrations?limit=.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"registrations": rows})
}

// Summary handles GET /registrations/summary.
func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"summary": summary})
}

// DeleteRequest accepts {"id": "..."} or {"ids": ["...", ...]}.
type DeleteRequest struct {
	ID  string   `json:"id"`
	IDs []string `json:"ids"`
}

func (r DeleteRequest) all() []string {
	out := make([]string, 0, len(r.IDs)+1)
	if r.ID != "" {
		out = append(out, r.ID)
	}
	return append(out, r.IDs...)
}

// Delete handles DELETE /registrations. A query ?id= is accepted when there
// is no body.
func (h *Handler) Delete(c *gin.Context) {
	var body DeleteRequest
	// An empty body, chunked or not, falls back to the query string.
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid JSON body")
		return
	}
	raw := body.all()
	if len(raw) == 0 {
		raw = c.QueryArray("id")
	}
	result, err := h.svc.Delete(c.Request.Context(), raw)
	if err != nil {
		var partial *PartialDeleteError
		if errors.As(err, &partial) {
			response.FailWith(c, http.StatusInternalServerError, "only some registrations were deleted", gin.H{
				"deletedIds": partial.Result.DeletedIDs,
				"invalidIds": partial.Result.InvalidIDs,
			})
			return
		}
		response.Error(c, err)
		return
	}
	fields := gin.H{"deletedIds": result.DeletedIDs}
	if len(result.InvalidIDs) > 0 {
		fields["invalidIds"] = result.InvalidIDs
	}
	response.OK(c, fields)
}
