// Package notify delivers cancellation-link emails through an HTTP mail API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds one HTTP attempt.
	DefaultTimeout = 10 * time.Second

	unverifiedSenderMarker = "Email address is not verified"
	maxResponseBody        = 64 << 10
)

// DefaultPaths are the provider send paths, tried in order.
var DefaultPaths = []string{"/email/aws-send", "/emails/aws-send", "/api/v1/emails/aws-send"}

// Attempt is one {endpoint, sender} pair of the failover policy.
type Attempt struct {
	Endpoint string
	Sender   string
}

// Policy is the ordered failover list. Attempts sharing a sender are
// contiguous; moving to the next sender only happens after an
// unverified-sender error.
type Policy []Attempt

// BuildPolicy expands base URL × paths × senders. Senders are deduplicated
// and blank ones dropped, keeping the first occurrence order.
func BuildPolicy(baseURL string, paths, senders []string) Policy {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	seen := make(map[string]struct{}, len(senders))
	var policy Policy
	for _, sender := range senders {
		sender = strings.TrimSpace(sender)
		if sender == "" {
			continue
		}
		if _, dup := seen[sender]; dup {
			continue
		}
		seen[sender] = struct{}{}
		for _, p := range paths {
			policy = append(policy, Attempt{Endpoint: base + p, Sender: sender})
		}
	}
	return policy
}

// Message is a notification to one or more recipients.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// RecipientResult is the provider's per-recipient outcome.
type RecipientResult struct {
	Email        string `json:"email"`
	IsSuccess    bool   `json:"isSuccess"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// UnmarshalJSON reads an entry without isSuccess as a success. Only an
// explicit false marks the recipient as failed.
func (r *RecipientResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Email        string `json:"email"`
		IsSuccess    *bool  `json:"isSuccess"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = RecipientResult{
		Email:        wire.Email,
		IsSuccess:    wire.IsSuccess == nil || *wire.IsSuccess,
		ErrorMessage: wire.ErrorMessage,
	}
	return nil
}

// Delivery describes a successful send.
type Delivery struct {
	Endpoint string            `json:"endpoint"`
	Sender   string            `json:"sender"`
	Results  []RecipientResult `json:"results,omitempty"`
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if body == "" {
		body = "empty response body"
	}
	return fmt.Sprintf("mail api %s returned %d: %s", e.Endpoint, e.StatusCode, body)
}

// PartialFailureError is a 2xx response where some recipients failed.
type PartialFailureError struct {
	Endpoint string
	Sender   string
	Results  []RecipientResult
}

func (e *PartialFailureError) Error() string {
	var parts []string
	for _, r := range e.Results {
		if r.IsSuccess {
			continue
		}
		email := r.Email
		if email == "" {
			email = "unknown"
		}
		msg := r.ErrorMessage
		if msg == "" {
			msg = "unknown error"
		}
		parts = append(parts, email+":"+msg)
	}
	return "mail api recipient failures: " + strings.Join(parts, ", ")
}

// ErrNoPolicy is returned when no endpoint/sender pair is configured.
var ErrNoPolicy = errors.New("notify: no mail endpoint configured")

// Notifier sends a message.
type Notifier interface {
	Send(ctx context.Context, msg Message) (*Delivery, error)
}

// HTTPSender posts messages to the mail API following a Policy.
type HTTPSender struct {
	policy  Policy
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewHTTPSender builds a sender. A nil client uses http.DefaultClient.
func NewHTTPSender(policy Policy, client *http.Client, timeout time.Duration, logger *zap.Logger) *HTTPSender {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSender{policy: policy, client: client, timeout: timeout, logger: logger}
}

type sendPayload struct {
	SenderEmail     string   `json:"senderEmail"`
	RecipientEmails []string `json:"recipientEmails"`
	Subject         string   `json:"subject"`
	Body            string   `json:"body"`
}

// Send walks the policy one sender at a time. A 404 moves to the next path
// of the same sender; any other failure stops that sender. Only an
// unverified-sender failure moves on to the next sender, everything else is
// returned to the caller.
func (s *HTTPSender) Send(ctx context.Context, msg Message) (*Delivery, error) {
	if len(s.policy) == 0 {
		return nil, ErrNoPolicy
	}
	var attemptErrs, lastErr error
	for _, group := range s.policy.bySender() {
		for _, attempt := range group {
			delivery, err := s.post(ctx, attempt, msg)
			if err == nil {
				return delivery, nil
			}
			attemptErrs = multierr.Append(attemptErrs, err)
			lastErr = err
			if !isNotFound(err) {
				break
			}
		}
		if ctx.Err() != nil || !isUnverifiedSender(lastErr) {
			break
		}
	}
	s.logger.Warn("mail delivery failed",
		zap.Int("attempts", len(multierr.Errors(attemptErrs))),
		zap.Error(attemptErrs),
	)
	return nil, lastErr
}

// bySender splits the policy into contiguous runs sharing a sender.
func (p Policy) bySender() [][]Attempt {
	var groups [][]Attempt
	for i, a := range p {
		if i == 0 || p[i-1].Sender != a.Sender {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], a)
	}
	return groups
}

func (s *HTTPSender) post(ctx context.Context, attempt Attempt, msg Message) (*Delivery, error) {
	raw, err := json.Marshal(sendPayload{
		SenderEmail:     attempt.Sender,
		RecipientEmails: msg.To,
		Subject:         msg.Subject,
		Body:            msg.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal mail payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, attempt.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mail api %s: %w", attempt.Endpoint, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Endpoint: attempt.Endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var results []RecipientResult
	if len(bytes.TrimSpace(body)) > 0 && bytes.TrimSpace(body)[0] == '[' {
		if err := json.Unmarshal(body, &results); err != nil {
			results = nil
		}
	}
	for _, r := range results {
		if !r.IsSuccess {
			return nil, &PartialFailureError{Endpoint: attempt.Endpoint, Sender: attempt.Sender, Results: results}
		}
	}
	s.logger.Debug("mail delivered", zap.String("endpoint", attempt.Endpoint), zap.String("sender", attempt.Sender))
	return &Delivery{Endpoint: attempt.Endpoint, Sender: attempt.Sender, Results: results}, nil
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func isUnverifiedSender(err error) bool {
	return err != nil && strings.Contains(err.Error(), unverifiedSenderMarker)
}

// Endpoint returns the endpoint a failure was reported by, if known.
func Endpoint(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Endpoint
	}
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		return pf.Endpoint
	}
	return ""
}

// Results returns per-recipient results carried by a partial failure.
func Results(err error) []RecipientResult {
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		return pf.Results
	}
	return nil
}
