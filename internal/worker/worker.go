package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/pkg/queue"
)

// JobQueue is the subset of pkg/queue.Queue the processor needs.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// Resender re-sends a cancellation-link email and records the attempt.
type Resender interface {
	ResendEmail(ctx context.Context, payload queue.EmailPayload, attempt int) (skipped bool, err error)
}

// Options tunes the loop timings.
type Options struct {
	DequeueTimeout time.Duration
	RetryBackoff   time.Duration
}

// EmailProcessor retries cancellation-link emails that failed inline.
type EmailProcessor struct {
	queue    JobQueue
	resender Resender
	opts     Options
	logger   *zap.Logger
}

// NewEmailProcessor creates an email retry processor.
func NewEmailProcessor(q JobQueue, resender Resender, opts Options, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DequeueTimeout <= 0 {
		opts.DequeueTimeout = queue.DequeueTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = queue.RetryBackoff
	}
	return &EmailProcessor{queue: q, resender: resender, opts: opts, logger: logger}
}

// Process executes one email job. Registrations deleted or cancelled since
// the job was queued are skipped.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := job.EmailPayload()
	if err != nil {
		return err
	}
	skipped, err := p.resender.ResendEmail(ctx, payload, job.Attempt+1)
	if err != nil {
		return fmt.Errorf("resend email: %w", err)
	}
	if skipped {
		p.logger.Info("email job skipped, registration no longer active",
			zap.String("job_id", job.ID), zap.String("registration_id", payload.RegistrationID.String()))
		return nil
	}
	p.logger.Info("email job delivered", zap.String("job_id", job.ID), zap.String("registration_id", payload.RegistrationID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns
// when ctx is cancelled.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			// Retry on a fresh context so a shutdown mid-job still requeues it.
			retryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_, reErr := p.queue.Retry(retryCtx, job)
			cancel()
			if reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.opts.RetryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
