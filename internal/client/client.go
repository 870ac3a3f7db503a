// Package client is a typed API client for the registration service, used
// by the admin CLI and by integrations that stand in for the web forms.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	"github.com/assiworks/opening-registration/internal/dashboard"
	"github.com/assiworks/opening-registration/internal/models"
	"github.com/assiworks/opening-registration/internal/registrations"
	"github.com/assiworks/opening-registration/internal/seats"
	"github.com/assiworks/opening-registration/internal/transport"
)

// Step is a form progress stage.
type Step string

const (
	StepValidating Step = "validating"
	StepSubmitting Step = "submitting"
	StepDone       Step = "done"
	StepFailed     Step = "failed"
)

// ProgressFunc receives step changes. message is set for StepFailed.
type ProgressFunc func(step Step, message string)

// ErrInvalidInput wraps local validation failures; nothing was sent.
var ErrInvalidInput = errors.New("client: invalid input")

const adminTokenHeader = "x-admin-token"

// Client wraps a transport.Client with typed calls.
type Client struct {
	transport  *transport.Client
	adminToken string
	progress   ProgressFunc
	validate   *validator.Validate
}

// Option configures a Client.
type Option func(*Client)

// WithAdminToken sets the x-admin-token header for admin calls.
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = token }
}

// WithProgress registers a progress callback for Register and Cancel.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) { c.progress = fn }
}

// New creates an API client.
func New(t *transport.Client, opts ...Option) *Client {
	c := &Client{transport: t, progress: func(Step, string) {}, validate: validator.New()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) fail(err error) error {
	c.progress(StepFailed, Message(err))
	return err
}

func (c *Client) adminHeader() http.Header {
	return http.Header{http.CanonicalHeaderKey(adminTokenHeader): {c.adminToken}}
}

// Message extracts the user-facing message from an error.
func Message(err error) string {
	var te *transport.Error
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// RegisterResponse mirrors POST /register.
type RegisterResponse struct {
	ID          string                    `json:"id"`
	CancelToken string                    `json:"cancelToken"`
	CancelLink  string                    `json:"cancelLink"`
	Email       registrations.EmailResult `json:"email"`
}

// Register validates locally, then submits the registration.
func (c *Client) Register(ctx context.Context, in registrations.RegisterInput) (*RegisterResponse, error) {
	c.progress(StepValidating, "")
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := c.validate.Struct(in); err != nil {
		return nil, c.fail(errors.Join(ErrInvalidInput, err))
	}
	c.progress(StepSubmitting, "")
	var out RegisterResponse
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodPost, Path: "/register", Body: in}, &out); err != nil {
		return nil, c.fail(err)
	}
	c.progress(StepDone, "")
	return &out, nil
}

// CancelStatusResponse mirrors GET /cancel.
type CancelStatusResponse struct {
	Cancelled   bool    `json:"cancelled"`
	CancelledAt *string `json:"cancelledAt"`
}

// CancelStatus looks a token up without cancelling.
func (c *Client) CancelStatus(ctx context.Context, token string) (*CancelStatusResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("cancel token is required"))
	}
	var out CancelStatusResponse
	q := url.Values{"token": {token}}
	if err := c.transport.Do(ctx, transport.Request{Path: "/cancel", Query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelResponse mirrors POST /cancel.
type CancelResponse struct {
	Cancelled        bool   `json:"cancelled"`
	AlreadyCancelled bool   `json:"alreadyCancelled"`
	CancelledAt      string `json:"cancelledAt"`
}

// Cancel cancels by token.
func (c *Client) Cancel(ctx context.Context, token string) (*CancelResponse, error) {
	c.progress(StepValidating, "")
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, c.fail(errors.Join(ErrInvalidInput, errors.New("cancel token is required")))
	}
	c.progress(StepSubmitting, "")
	var out CancelResponse
	body := map[string]string{"token": token}
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodPost, Path: "/cancel", Body: body}, &out); err != nil {
		return nil, c.fail(err)
	}
	c.progress(StepDone, "")
	return &out, nil
}

// SeatStatus reads GET /seat-status.
func (c *Client) SeatStatus(ctx context.Context) (*seats.Status, error) {
	var out seats.Status
	if err := c.transport.Do(ctx, transport.Request{Path: "/seat-status"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRegistrations reads GET /registrations. limit <= 0 uses the server default.
func (c *Client) ListRegistrations(ctx context.Context, limit int) ([]models.Registration, error) {
	req := transport.Request{Path: "/registrations", Header: c.adminHeader()}
	if limit > 0 {
		req.Query = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out struct {
		Registrations []models.Registration `json:"registrations"`
	}
	if err := c.transport.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out.Registrations, nil
}

// Summary reads GET /registrations/summary.
func (c *Client) Summary(ctx context.Context) (*dashboard.Summary, error) {
	var out struct {
		Summary dashboard.Summary `json:"summary"`
	}
	if err := c.transport.Do(ctx, transport.Request{Path: "/registrations/summary", Header: c.adminHeader()}, &out); err != nil {
		return nil, err
	}
	return &out.Summary, nil
}

// EmailLogs reads GET /email-logs.
func (c *Client) EmailLogs(ctx context.Context, limit int) ([]models.EmailLog, error) {
	req := transport.Request{Path: "/email-logs", Header: c.adminHeader()}
	if limit > 0 {
		req.Query = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out struct {
		EmailLogs []models.EmailLog `json:"emailLogs"`
	}
	if err := c.transport.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out.EmailLogs, nil
}

// DeleteResponse mirrors DELETE /registrations.
type DeleteResponse struct {
	DeletedIDs []string `json:"deletedIds"`
	InvalidIDs []string `json:"invalidIds,omitempty"`
}

// DeleteRegistrations deletes ids in one request. When the server rejects the
// multi-id shape (400 or 405), each id is sent on its own. A failed request
// that still reports deleted ids returns them together with the error.
func (c *Client) DeleteRegistrations(ctx context.Context, ids []string) (*DeleteResponse, error) {
	seen := make(map[string]bool, len(ids))
	var clean []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		clean = append(clean, id)
	}
	if len(clean) == 0 {
		return &DeleteResponse{}, nil
	}

	var body any = map[string]any{"ids": clean}
	if len(clean) == 1 {
		body = map[string]string{"id": clean[0]}
	}
	var out DeleteResponse
	err := c.transport.Do(ctx, transport.Request{Method: http.MethodDelete, Path: "/registrations", Header: c.adminHeader(), Body: body}, &out)
	if err == nil {
		return &out, nil
	}
	var te *transport.Error
	if !errors.As(err, &te) {
		return nil, err
	}
	switch {
	case len(clean) > 1 && (te.StatusCode == http.StatusBadRequest || te.StatusCode == http.StatusMethodNotAllowed):
		return c.deleteEach(ctx, clean)
	case len(te.Body) > 0:
		// A partial failure still lists the ids the server removed.
		var partial DeleteResponse
		if json.Unmarshal(te.Body, &partial) == nil && (len(partial.DeletedIDs) > 0 || len(partial.InvalidIDs) > 0) {
			return &partial, err
		}
	}
	return nil, err
}

func (c *Client) deleteEach(ctx context.Context, ids []string) (*DeleteResponse, error) {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		out  DeleteResponse
		errs error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			var one DeleteResponse
			err := c.transport.Do(ctx, transport.Request{
				Method: http.MethodDelete,
				Path:   "/registrations",
				Header: c.adminHeader(),
				Body:   map[string]string{"id": id},
			}, &one)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
				return
			}
			out.DeletedIDs = append(out.DeletedIDs, one.DeletedIDs...)
			out.InvalidIDs = append(out.InvalidIDs, one.InvalidIDs...)
		}(id)
	}
	wg.Wait()
	return &out, errs
}
