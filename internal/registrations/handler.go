package registrations

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/pkg/response"
)

// Handler handles registration and cancellation HTTP endpoints.
type Handler struct {
	svc           *Service
	publicBaseURL string
	logger        *zap.Logger
}

// NewHandler creates a registration handler. When publicBaseURL is empty the
// cancel link origin is derived from the request.
func NewHandler(svc *Service, publicBaseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, publicBaseURL: strings.TrimSpace(publicBaseURL), logger: logger}
}

// Register handles POST /register.
func (h *Handler) Register(c *gin.Context) {
	var body RegisterInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid JSON body")
		return
	}
	base := h.publicBaseURL
	if base == "" {
		base = RequestOrigin(c.Request)
	}
	result, err := h.svc.Register(c.Request.Context(), body, base)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"id":          result.Registration.ID,
		"cancelToken": result.Registration.CancelToken,
		"cancelLink":  result.CancelLink,
		"email":       result.Email,
	})
}

// CancelStatus handles GET /cancel?token=.
func (h *Handler) CancelStatus(c *gin.Context) {
	status, err := h.svc.Status(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"cancelled":   status.Cancelled,
		"cancelledAt": status.CancelledAt,
	})
}

type cancelRequest struct {
	Token string `json:"token"`
}

// Cancel handles POST /cancel {token}. The query token is accepted when the
// body is empty so a bare form post from the cancel link also works.
func (h *Handler) Cancel(c *gin.Context) {
	var body cancelRequest
	// An empty body, chunked or not, falls back to the query string.
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid JSON body")
		return
	}
	token := body.Token
	if strings.TrimSpace(token) == "" {
		token = c.Query("token")
	}
	result, err := h.svc.Cancel(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"cancelled":        true,
		"alreadyCancelled": result.AlreadyCancelled,
		"cancelledAt":      result.CancelledAt,
	})
}

// RequestOrigin derives scheme://host from forwarding headers, falling back
// to the Host header. Loopback hosts default to http, everything else https.
func RequestOrigin(r *http.Request) string {
	host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	if host == "" {
		host = "localhost"
	}
	proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto"))
	if proto == "" {
		if isLoopbackHost(host) {
			proto = "http"
		} else {
			proto = "https"
		}
	}
	return proto + "://" + host
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func isLoopbackHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host == "localhost" || strings.HasPrefix(host, "127.")
}
