package registrations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/internal/metrics"
	"github.com/assiworks/opening-registration/internal/models"
	"github.com/assiworks/opening-registration/internal/notify"
	"github.com/assiworks/opening-registration/internal/store"
	apperrors "github.com/assiworks/opening-registration/pkg/errors"
	"github.com/assiworks/opening-registration/pkg/queue"
	"github.com/assiworks/opening-registration/pkg/utils"
)

const (
	// DefaultStoreTimeout bounds each store call made by the service.
	DefaultStoreTimeout = 5 * time.Second
	maxTokenAttempts    = 3
	emailLogTimeout     = 2 * time.Second
)

// EmailQueue accepts email retry jobs.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Options configures a Service.
type Options struct {
	Event        notify.Event
	StoreTimeout time.Duration
	// OnChange runs after a registration is created or cancelled.
	OnChange func()
	Now      func() time.Time
}

// Service implements registration and cancellation.
type Service struct {
	store    store.Store
	notifier notify.Notifier
	queue    EmailQueue
	opts     Options
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates a registration service. queue may be nil to disable
// email retries.
func NewService(st store.Store, notifier notify.Notifier, q EmailQueue, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnChange == nil {
		opts.OnChange = func() {}
	}
	return &Service{
		store:    st,
		notifier: notifier,
		queue:    q,
		opts:     opts,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Affiliation string `json:"affiliation" validate:"max=200"`
	Position    string `json:"position" validate:"max=200"`
	Note        string `json:"note" validate:"max=500"`
}

func (in *RegisterInput) normalize() {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Affiliation = strings.TrimSpace(in.Affiliation)
	in.Position = strings.TrimSpace(in.Position)
	in.Note = strings.TrimSpace(in.Note)
}

// EmailResult reports the notification outcome separately from the
// registration, which is durable either way.
type EmailResult struct {
	Success  bool                     `json:"success"`
	Endpoint string                   `json:"endpoint,omitempty"`
	Sender   string                   `json:"sender,omitempty"`
	Results  []notify.RecipientResult `json:"results,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Queued   bool                     `json:"queued,omitempty"`
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	Registration *models.Registration
	CancelLink   string
	Email        EmailResult
}

// Register validates and persists a registration, then notifies the
// registrant. baseURL is the public origin used for the cancel link.
func (s *Service) Register(ctx context.Context, in RegisterInput, baseURL string) (*RegisterResult, error) {
	in.normalize()
	if err := s.validate.Struct(in); err != nil {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return nil, apperrors.Validation(validationMessage(err))
	}

	reg := &models.Registration{
		Email:       in.Email,
		Name:        in.Name,
		Affiliation: in.Affiliation,
		Position:    in.Position,
		Note:        in.Note,
	}
	if err := s.insert(ctx, reg); err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		s.logger.Error("create registration failed", zap.Error(err))
		return nil, apperrors.Upstream(err, "failed to save registration")
	}
	metrics.Registrations.WithLabelValues("created").Inc()
	s.opts.OnChange()
	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID.String()),
		zap.String("token", utils.RedactToken(reg.CancelToken)),
	)

	link := CancelLink(baseURL, reg.CancelToken)
	email := s.notifyInline(ctx, reg, link)
	return &RegisterResult{Registration: reg, CancelLink: link, Email: email}, nil
}

func (s *Service) insert(ctx context.Context, reg *models.Registration) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	for i := 0; i < maxTokenAttempts; i++ {
		token, err := utils.NewCancelToken()
		if err != nil {
			return fmt.Errorf("generate cancel token: %w", err)
		}
		reg.CancelToken = token
		err = s.store.Create(ctx, reg)
		if errors.Is(err, store.ErrDuplicateToken) {
			s.logger.Warn("cancel token collision, regenerating", zap.Int("attempt", i+1))
			continue
		}
		return err
	}
	return store.ErrDuplicateToken
}

func (s *Service) notifyInline(ctx context.Context, reg *models.Registration, link string) EmailResult {
	result := s.deliver(ctx, reg, link, 0, "inline")
	if result.Success || s.queue == nil {
		return result
	}
	payload := queue.EmailPayload{
		RegistrationID: reg.ID,
		RecipientEmail: reg.Email,
		Name:           reg.Name,
		CancelLink:     link,
	}
	if err := s.queue.EnqueueEmail(ctx, payload); err != nil {
		s.logger.Error("enqueue email retry failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		return result
	}
	metrics.EmailDeliveries.WithLabelValues("inline", models.EmailLogStatusQueued).Inc()
	result.Queued = true
	return result
}

// deliver sends one cancellation-link email and records the attempt.
func (s *Service) deliver(ctx context.Context, reg *models.Registration, link string, attempt int, source string) EmailResult {
	msg := notify.Message{
		To:      []string{reg.Email},
		Subject: s.opts.Event.Subject(),
		Body:    s.opts.Event.RegistrationBody(reg.Name, link),
	}
	delivery, err := s.notifier.Send(ctx, msg)

	el := &models.EmailLog{
		RegistrationID: &reg.ID,
		RecipientEmail: reg.Email,
		Subject:        msg.Subject,
		Attempt:        attempt,
	}
	var result EmailResult
	if err != nil {
		metrics.EmailDeliveries.WithLabelValues(source, models.EmailLogStatusFailed).Inc()
		s.logger.Warn("registration email failed", zap.Error(err), zap.String("registration_id", reg.ID.String()), zap.Int("attempt", attempt))
		el.Status = models.EmailLogStatusFailed
		el.Endpoint = notify.Endpoint(err)
		el.ErrorMessage = err.Error()
		result = EmailResult{
			Success:  false,
			Endpoint: el.Endpoint,
			Results:  notify.Results(err),
			Error:    "the confirmation email could not be sent",
		}
	} else {
		metrics.EmailDeliveries.WithLabelValues(source, models.EmailLogStatusSent).Inc()
		el.Status = models.EmailLogStatusSent
		el.Endpoint = delivery.Endpoint
		el.Sender = delivery.Sender
		result = EmailResult{
			Success:  true,
			Endpoint: delivery.Endpoint,
			Sender:   delivery.Sender,
			Results:  delivery.Results,
		}
	}
	s.recordEmail(el)
	return result
}

// recordEmail writes the log row on its own deadline so a cancelled request
// still leaves a trace of the attempt.
func (s *Service) recordEmail(el *models.EmailLog) {
	ctx, cancel := context.WithTimeout(context.Background(), emailLogTimeout)
	defer cancel()
	if err := s.store.CreateEmailLog(ctx, el); err != nil {
		s.logger.Warn("write email log failed", zap.Error(err))
	}
}

// ResendEmail retries the cancellation-link email for a queued job. It
// reports skipped=true when the registration was deleted or cancelled since
// the job was queued.
func (s *Service) ResendEmail(ctx context.Context, payload queue.EmailPayload, attempt int) (skipped bool, err error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	reg, err := s.store.GetByID(storeCtx, payload.RegistrationID)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load registration: %w", err)
	}
	if reg.Cancelled() {
		return true, nil
	}
	result := s.deliver(ctx, reg, payload.CancelLink, attempt, "worker")
	if !result.Success {
		return false, errors.New(result.Error)
	}
	return false, nil
}

// Resend re-sends the cancellation link for an active registration, queueing
// a retry when the inline attempt fails.
func (s *Service) Resend(ctx context.Context, id uuid.UUID, baseURL string) (*EmailResult, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	reg, err := s.store.GetByID(storeCtx, id)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("registration not found")
	}
	if err != nil {
		return nil, apperrors.Upstream(err, "failed to load registration")
	}
	if reg.Cancelled() {
		return nil, apperrors.Validation("registration is cancelled")
	}
	result := s.notifyInline(ctx, reg, CancelLink(baseURL, reg.CancelToken))
	return &result, nil
}

// CancelStatus is the read-only view of a registration's state.
type CancelStatus struct {
	Cancelled   bool       `json:"cancelled"`
	CancelledAt *time.Time `json:"cancelledAt"`
}

// Status looks a token up without changing anything.
func (s *Service) Status(ctx context.Context, token string) (*CancelStatus, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.Validation("cancel token is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	reg, err := s.store.GetByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("registration not found for this cancel link")
	}
	if err != nil {
		s.logger.Error("cancel status lookup failed", zap.Error(err))
		return nil, apperrors.Upstream(err, "failed to look up registration")
	}
	return &CancelStatus{Cancelled: reg.Cancelled(), CancelledAt: reg.CancelledAt}, nil
}

// CancelResult is returned by Cancel.
type CancelResult struct {
	AlreadyCancelled bool      `json:"alreadyCancelled"`
	CancelledAt      time.Time `json:"cancelledAt"`
}

// Cancel transitions ACTIVE to CANCELLED. The store performs a conditional
// update; when it changes nothing the token is looked up to tell an earlier
// cancellation from an unknown token.
func (s *Service) Cancel(ctx context.Context, token string) (*CancelResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.Validation("cancel token is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	now := s.opts.Now().UTC().Truncate(time.Millisecond)
	changed, err := s.store.CancelByToken(ctx, token, now)
	if err != nil {
		metrics.Cancellations.WithLabelValues("error").Inc()
		s.logger.Error("cancel update failed", zap.Error(err))
		return nil, apperrors.Upstream(err, "failed to cancel registration")
	}
	if changed {
		metrics.Cancellations.WithLabelValues("cancelled").Inc()
		s.opts.OnChange()
		s.logger.Info("registration cancelled", zap.String("token", utils.RedactToken(token)))
		return &CancelResult{AlreadyCancelled: false, CancelledAt: now}, nil
	}

	reg, err := s.store.GetByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		metrics.Cancellations.WithLabelValues("not_found").Inc()
		return nil, apperrors.NotFound("registration not found for this cancel link")
	}
	if err != nil {
		metrics.Cancellations.WithLabelValues("error").Inc()
		return nil, apperrors.Upstream(err, "failed to cancel registration")
	}
	if reg.CancelledAt == nil {
		metrics.Cancellations.WithLabelValues("error").Inc()
		return nil, apperrors.Upstream(errors.New("conditional cancel changed no row for an active registration"), "failed to cancel registration")
	}
	metrics.Cancellations.WithLabelValues("already_cancelled").Inc()
	return &CancelResult{AlreadyCancelled: true, CancelledAt: *reg.CancelledAt}, nil
}

// CancelLink builds the absolute cancellation URL for a token.
func CancelLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/cancel?token=" + url.QueryEscape(token)
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid registration"
	}
	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "email must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
