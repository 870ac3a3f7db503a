package content

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/pkg/response"
)

// Handler serves the parsed copy deck.
type Handler struct {
	source Source
	logger *zap.Logger
}

// NewHandler creates a content handler.
func NewHandler(source Source, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{source: source, logger: logger}
}

// Get handles GET /content.
func (h *Handler) Get(c *gin.Context) {
	raw, err := h.source.Load(c.Request.Context())
	if err != nil {
		h.logger.Error("load copy deck failed", zap.String("source", h.source.Describe()), zap.Error(err))
		response.Internal(c, "failed to load content")
		return
	}
	response.OK(c, gin.H{"content": Parse(string(raw))})
}

// Put handles PUT /content with a raw markdown body.
func (h *Handler) Put(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxDeckBytes+1))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}
	if len(raw) > MaxDeckBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, "content is too large")
		return
	}
	deck := Parse(string(raw))
	if len(deck) == 0 {
		response.BadRequest(c, "content must contain at least one \"## key\" section")
		return
	}
	if err := h.source.Save(c.Request.Context(), raw); err != nil {
		if errors.Is(err, ErrReadOnly) {
			response.Fail(c, http.StatusConflict, "content source is read-only")
			return
		}
		h.logger.Error("save copy deck failed", zap.String("source", h.source.Describe()), zap.Error(err))
		response.Internal(c, "failed to save content")
		return
	}
	h.logger.Info("copy deck updated", zap.String("source", h.source.Describe()), zap.Int("sections", len(deck)))
	response.OK(c, gin.H{"content": deck})
}
