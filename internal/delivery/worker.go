package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-notify-api/internal/domain"
	"github.com/go-notify-api/internal/ics"
	"github.com/go-notify-api/internal/infrastructure/smtp"
	"github.com/go-notify-api/internal/pkg/id"
	"github.com/go-notify-api/internal/render"
)

// Outcome summarizes how an attempt ended.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeRetrying Outcome = "retrying"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeMissing  Outcome = "missing"
)

// NotificationStore is the minimal record access the worker needs.
type NotificationStore interface {
	Get(ctx context.Context, notificationID string) (*domain.ScheduledNotification, error)
	ClaimAttempt(ctx context.Context, notificationID string, expected domain.State, expectedAttempts int) error
	CompareAndUpdate(ctx context.Context, notificationID string, expected domain.State, updates map[string]interface{}) error
}

// TemplateStore resolves template keys to their current content.
type TemplateStore interface {
	GetByKey(ctx context.Context, key string) (*domain.NotificationTemplate, error)
}

// AttemptLogStore records per-attempt audit rows.
type AttemptLogStore interface {
	Put(ctx context.Context, l *domain.AttemptLog) error
	Update(ctx context.Context, logID string, updates map[string]interface{}) error
}

// Enqueuer schedules future worker invocations.
type Enqueuer interface {
	RunNow(notificationID string)
	RunAt(notificationID string, at time.Time)
}

// WorkerConfig is the retry/delivery policy, fixed at process start.
type WorkerConfig struct {
	MaxAttempts    int
	RetryBackoff   time.Duration
	SendTimeout    time.Duration
	ICSDurationMin int
}

// Worker executes single delivery attempts. It is stateless between attempts;
// everything it decides on is read from and written back to the store, so any
// number of workers can run concurrently.
type Worker struct {
	notifications NotificationStore
	templates     TemplateStore
	logs          AttemptLogStore
	mailer        smtp.Mailer
	queue         Enqueuer
	cfg           WorkerConfig
	now           func() time.Time
}

func NewWorker(notifications NotificationStore, templates TemplateStore, logs AttemptLogStore, mailer smtp.Mailer, queue Enqueuer, cfg WorkerConfig) *Worker {
	return &Worker{
		notifications: notifications,
		templates:     templates,
		logs:          logs,
		mailer:        mailer,
		queue:         queue,
		cfg:           cfg,
		now:           time.Now,
	}
}

// Attempt runs one delivery attempt for the record. Duplicate invocations for
// the same record are safe: an ineligible or concurrently claimed record is a
// silent skip. Errors are returned only for store failures that prevented the
// attempt from being recorded at all.
func (w *Worker) Attempt(ctx context.Context, notificationID string) (Outcome, error) {
	rec, err := w.notifications.Get(ctx, notificationID)
	if errors.Is(err, domain.ErrNotFound) {
		// Already resolved elsewhere; nothing to do.
		return OutcomeMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("load notification: %w", err)
	}

	if rec.Canceled || !rec.State.AttemptEligible() {
		log.Printf("notification %s in state %s, skipping", notificationID, rec.State)
		return OutcomeSkipped, nil
	}

	// Claim the record: the conditional write (state + attempts counter)
	// serializes concurrent attempts, so exactly one invocation proceeds past
	// this point per observed record version.
	attempt := rec.Attempts + 1
	err = w.notifications.ClaimAttempt(ctx, notificationID, rec.State, rec.Attempts)
	if errors.Is(err, domain.ErrConflict) {
		log.Printf("notification %s claimed concurrently, skipping", notificationID)
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("claim notification: %w", err)
	}

	entry := &domain.AttemptLog{
		LogID:          id.New(),
		NotificationID: rec.NotificationID,
		AttemptNo:      attempt,
		Status:         domain.AttemptStarted,
		ToEmail:        rec.ToEmail,
		StartedAt:      w.now().UTC(),
	}
	if err := w.logs.Put(ctx, entry); err != nil {
		log.Printf("failed to write attempt log for %s: %v", notificationID, err)
	}

	tmpl, err := w.templates.GetByKey(ctx, rec.TemplateKey)
	if err != nil {
		return w.fail(ctx, rec, entry, attempt, fmt.Errorf("load template %s: %w", rec.TemplateKey, err))
	}

	subject := render.Render(tmpl.Subject, rec.Context)
	body := render.Render(tmpl.Body, rec.Context)
	if err := w.logs.Update(ctx, entry.LogID, map[string]interface{}{
		"subject_snapshot": subject,
	}); err != nil {
		log.Printf("failed to snapshot subject for %s: %v", notificationID, err)
	}

	// Cancellation is cooperative: re-read immediately before the send so an
	// admin cancel that raced our claim still wins.
	if fresh, err := w.notifications.Get(ctx, notificationID); err == nil {
		if fresh.Canceled || fresh.State.Terminal() {
			return w.abortCanceled(ctx, fresh, entry)
		}
	}

	var attachments []smtp.Attachment
	if rec.AttachICS {
		invite := ics.Build(subject, rec.EffectiveSendAt, w.cfg.ICSDurationMin, body, rec.Context["location"])
		attachments = append(attachments, smtp.Attachment{
			Filename:    ics.Filename,
			ContentType: ics.ContentType,
			Data:        invite,
		})
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	defer cancel()
	messageID, err := w.mailer.SendEmail(sendCtx, rec.ToEmail, subject, body, attachments)
	if err != nil {
		return w.fail(ctx, rec, entry, attempt, err)
	}

	if err := w.notifications.CompareAndUpdate(ctx, notificationID, domain.StateQueued, map[string]interface{}{
		"state":               domain.StateSent,
		"last_error":          "",
		"provider_message_id": messageID,
	}); err != nil {
		return "", fmt.Errorf("record send result: %w", err)
	}
	w.finishLog(ctx, entry, map[string]interface{}{
		"status":              domain.AttemptSent,
		"provider_message_id": messageID,
	})
	log.Printf("notification %s sent (attempt %d)", notificationID, attempt)
	return OutcomeSent, nil
}

// fail records a transient failure and schedules a retry, or finalizes the
// record as FAILED when the budget is spent. The final transition happens
// here, synchronously, not on a later attempt.
func (w *Worker) fail(ctx context.Context, rec *domain.ScheduledNotification, entry *domain.AttemptLog, attempt int, sendErr error) (Outcome, error) {
	if attempt >= w.cfg.MaxAttempts {
		if err := w.notifications.CompareAndUpdate(ctx, rec.NotificationID, domain.StateQueued, map[string]interface{}{
			"state":      domain.StateFailed,
			"last_error": sendErr.Error(),
		}); err != nil {
			return "", fmt.Errorf("record failure: %w", err)
		}
		w.finishLog(ctx, entry, map[string]interface{}{
			"status":        domain.AttemptFailed,
			"error_message": sendErr.Error(),
		})
		log.Printf("notification %s failed after %d attempts: %v", rec.NotificationID, attempt, sendErr)
		return OutcomeFailed, nil
	}

	if err := w.notifications.CompareAndUpdate(ctx, rec.NotificationID, domain.StateQueued, map[string]interface{}{
		"state":      domain.StateRetrying,
		"last_error": sendErr.Error(),
	}); err != nil {
		return "", fmt.Errorf("record retry: %w", err)
	}
	w.finishLog(ctx, entry, map[string]interface{}{
		"status":        domain.AttemptRetrying,
		"error_message": sendErr.Error(),
	})
	w.queue.RunAt(rec.NotificationID, w.now().Add(w.cfg.RetryBackoff))
	log.Printf("notification %s attempt %d/%d failed, retrying in %s: %v",
		rec.NotificationID, attempt, w.cfg.MaxAttempts, w.cfg.RetryBackoff, sendErr)
	return OutcomeRetrying, nil
}

// abortCanceled closes out an attempt whose record was canceled between the
// claim and the send. No email goes out.
func (w *Worker) abortCanceled(ctx context.Context, rec *domain.ScheduledNotification, entry *domain.AttemptLog) (Outcome, error) {
	if !rec.State.Terminal() {
		if err := w.notifications.CompareAndUpdate(ctx, rec.NotificationID, rec.State, map[string]interface{}{
			"state":    domain.StateCanceled,
			"canceled": true,
		}); err != nil && !errors.Is(err, domain.ErrConflict) {
			log.Printf("failed to finalize canceled notification %s: %v", rec.NotificationID, err)
		}
	}
	w.finishLog(ctx, entry, map[string]interface{}{
		"status": domain.AttemptCanceled,
	})
	log.Printf("notification %s canceled before send", rec.NotificationID)
	return OutcomeCanceled, nil
}

func (w *Worker) finishLog(ctx context.Context, entry *domain.AttemptLog, updates map[string]interface{}) {
	updates["finished_at"] = w.now().UTC()
	if err := w.logs.Update(ctx, entry.LogID, updates); err != nil {
		log.Printf("failed to finalize attempt log %s: %v", entry.LogID, err)
	}
}
