package lms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bohemiyan/LMS/internal/queue"
)

// CertificateData is what a renderer needs to produce a certificate document.
type CertificateData struct {
	EnrollmentID uint      `json:"enrollment_id"`
	UserID       uint      `json:"user_id"`
	UserName     string    `json:"user_name"`
	ModuleID     uint      `json:"module_id"`
	ModuleTitle  string    `json:"module_title"`
	Score        float64   `json:"score"`
	CompletedAt  time.Time `json:"completed_at"`
}

// CertificateRenderer produces the certificate document, e.g. a PDF, and returns a reference to it.
type CertificateRenderer interface {
	Render(ctx context.Context, data CertificateData) (string, error)
}

// CertificateWorker issues certificates in the background once a training is completed.
type CertificateWorker struct {
	lms      *LMS
	queue    *queue.Queue
	renderer CertificateRenderer
	policy   queue.RetryPolicy
}

// NewCertificateWorker wires a worker to the queue it enqueues on.
func NewCertificateWorker(l *LMS, q *queue.Queue, r CertificateRenderer, policy queue.RetryPolicy) *CertificateWorker {
	if policy.MaxAttempts <= 0 {
		policy = queue.DefaultRetryPolicy()
	}
	return &CertificateWorker{lms: l, queue: q, renderer: r, policy: policy}
}

// Register subscribes the worker to TrainingCompleted.
func (w *CertificateWorker) Register(bus *EventBus) {
	bus.Subscribe(TopicTrainingCompleted, func(ctx context.Context, e Event) error {
		ev, ok := e.(TrainingCompleted)
		if !ok {
			return fmt.Errorf("unexpected event %T", e)
		}
		_, err := w.Enqueue(ctx, ev.EnrollmentID)
		return err
	})
}

// Enqueue schedules certificate generation for an enrollment and returns the job id.
func (w *CertificateWorker) Enqueue(ctx context.Context, enrollmentID uint) (string, error) {
	return w.queue.Enqueue(ctx, queue.Job{
		Name:   "issue_certificate",
		Policy: w.policy,
		Run: func(ctx context.Context) error {
			return w.generate(ctx, enrollmentID)
		},
		OnFailure: func(err error) {
			w.lms.log.Errorw("certificate generation abandoned", "enrollment_id", enrollmentID, "error", err)
		},
	})
}

// generate renders and issues one certificate. Business-rule failures are permanent,
// renderer and storage failures are retried.
func (w *CertificateWorker) generate(ctx context.Context, enrollmentID uint) error {
	ut, err := w.lms.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return queue.Permanent(err)
		}
		return err
	}
	if ut.IsCertified {
		return nil
	}
	if ut.Status != StatusCompleted || !ut.Passed() || !ut.PrerequisitesMet {
		return queue.Permanent(invalidOp("enrollment %d is not eligible for a certificate", enrollmentID))
	}

	user, err := w.lms.GetUser(ctx, ut.UserID)
	if err != nil {
		return queue.Permanent(err)
	}
	module, err := w.lms.GetModule(ctx, ut.ModuleID)
	if err != nil {
		return queue.Permanent(err)
	}

	ref, err := w.renderer.Render(ctx, CertificateData{
		EnrollmentID: ut.ID,
		UserID:       user.ID,
		UserName:     user.Name,
		ModuleID:     module.ID,
		ModuleTitle:  module.Title,
		Score:        *ut.FinalScore,
		CompletedAt:  ut.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to render certificate: %w", err)
	}

	_, err = w.lms.IssueCertificate(ctx, enrollmentID, 0)
	switch {
	case err == nil, errors.Is(err, ErrConflict) && !errors.Is(err, ErrConcurrentModification):
		w.lms.log.Infow("certificate generated", "enrollment_id", enrollmentID, "document", ref)
		return nil
	case errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrNotFound):
		return queue.Permanent(err)
	default:
		return err
	}
}
