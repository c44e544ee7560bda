package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-notify-api/internal/domain"
	"github.com/go-notify-api/internal/pkg/id"
	"github.com/go-notify-api/internal/schedule"
)

const cancelRetries = 3

type Service interface {
	// Create resolves the request's schedule, persists the record and hands it
	// to the dispatcher. When an identical request was already accepted it
	// returns the existing record and duplicate=true instead of a new one.
	Create(ctx context.Context, req domain.CreateNotificationRequest) (n *domain.ScheduledNotification, duplicate bool, err error)
	Get(ctx context.Context, notificationID string) (*domain.ScheduledNotification, error)
	List(ctx context.Context, limit int, cursor string) ([]domain.ScheduledNotification, string, error)
	// Cancel marks the record canceled. changed is false when the record was
	// already finalized (sent, failed or previously canceled).
	Cancel(ctx context.Context, notificationID string) (n *domain.ScheduledNotification, changed bool, err error)
	Logs(ctx context.Context, notificationID string) ([]domain.AttemptLog, error)
}

type notificationStore interface {
	Create(ctx context.Context, n *domain.ScheduledNotification) error
	Get(ctx context.Context, notificationID string) (*domain.ScheduledNotification, error)
	CompareAndUpdate(ctx context.Context, notificationID string, expected domain.State, updates map[string]interface{}) error
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.ScheduledNotification, error)
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.ScheduledNotification, string, error)
}

type templateStore interface {
	GetByKey(ctx context.Context, key string) (*domain.NotificationTemplate, error)
}

type logStore interface {
	ListByNotification(ctx context.Context, notificationID string) ([]domain.AttemptLog, error)
}

// Scheduler hands accepted records to the delivery queue.
type Scheduler interface {
	Schedule(n *domain.ScheduledNotification)
}

type service struct {
	repo       notificationStore
	templates  templateStore
	logs       logStore
	resolver   *schedule.Resolver
	dispatcher Scheduler
	now        func() time.Time
}

type ServiceDeps struct {
	NotificationRepo notificationStore
	TemplateRepo     templateStore
	LogRepo          logStore
	Resolver         *schedule.Resolver
	Dispatcher       Scheduler
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:       deps.NotificationRepo,
		templates:  deps.TemplateRepo,
		logs:       deps.LogRepo,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		now:        time.Now,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.ScheduledNotification, bool, error) {
	date, err := parseDatePtr(req.ScheduledDate)
	if err != nil {
		return nil, false, err
	}
	timeOfDay, err := parseTimePtr(req.ScheduledTime)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.templates.GetByKey(ctx, req.TemplateKey); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("unknown template_key %q: %w", req.TemplateKey, domain.ErrBadRequest)
		}
		return nil, false, err
	}

	now := s.now().UTC()
	mode, sendAt, resolvedTZ := s.resolver.Resolve(date, timeOfDay, req.Timezone, now)

	// IMMEDIATE requests collide on content alone, regardless of when they
	// arrive; scheduled requests additionally collide on the resolved instant.
	fingerprintAt := &sendAt
	if mode == domain.ModeImmediate {
		fingerprintAt = nil
	}
	key := schedule.Fingerprint(req.TemplateKey, req.ToEmail, fingerprintAt, mode, resolvedTZ, req.Context, req.AttachICS)

	rec := &domain.ScheduledNotification{
		NotificationID:   id.New(),
		ScheduledDate:    req.ScheduledDate,
		ScheduledTime:    req.ScheduledTime,
		UserTimezone:     req.Timezone,
		SchedulingMode:   mode,
		EffectiveSendAt:  sendAt,
		ResolvedTimezone: resolvedTZ,
		TemplateKey:      req.TemplateKey,
		ToEmail:          req.ToEmail,
		Context:          req.Context,
		AttachICS:        req.AttachICS,
		State:            domain.InitialState(sendAt, now),
		IdempotencyKey:   key,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			existing, lookupErr := s.repo.FindByIdempotencyKey(ctx, key)
			if lookupErr != nil {
				return nil, false, fmt.Errorf("duplicate notification lookup: %w", lookupErr)
			}
			return existing, true, nil
		}
		return nil, false, err
	}

	s.dispatcher.Schedule(rec)
	return rec, false, nil
}

func (s *service) Get(ctx context.Context, notificationID string) (*domain.ScheduledNotification, error) {
	return s.repo.Get(ctx, notificationID)
}

func (s *service) List(ctx context.Context, limit int, cursor string) ([]domain.ScheduledNotification, string, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ScanPage(ctx, int32(limit), cursor)
}

func (s *service) Cancel(ctx context.Context, notificationID string) (*domain.ScheduledNotification, bool, error) {
	// The conditional update can lose to a worker claiming the record; re-read
	// and retry a few times before giving up. A record that reached a terminal
	// state meanwhile is reported as unchanged, not an error.
	for i := 0; i < cancelRetries; i++ {
		rec, err := s.repo.Get(ctx, notificationID)
		if err != nil {
			return nil, false, err
		}
		if rec.Canceled || rec.State.Terminal() {
			return rec, false, nil
		}
		err = s.repo.CompareAndUpdate(ctx, notificationID, rec.State, map[string]interface{}{
			"state":    domain.StateCanceled,
			"canceled": true,
		})
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		rec.State = domain.StateCanceled
		rec.Canceled = true
		return rec, true, nil
	}
	return nil, false, fmt.Errorf("notification is being delivered right now: %w", domain.ErrConflict)
}

func (s *service) Logs(ctx context.Context, notificationID string) ([]domain.AttemptLog, error) {
	if _, err := s.repo.Get(ctx, notificationID); err != nil {
		return nil, err
	}
	return s.logs.ListByNotification(ctx, notificationID)
}

func parseDatePtr(v *string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *v)
	if err != nil {
		return nil, fmt.Errorf("scheduled_date must be in YYYY-MM-DD format: %w", domain.ErrBadRequest)
	}
	return &t, nil
}

func parseTimePtr(v *string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := time.Parse("15:04", *v)
	if err != nil {
		return nil, fmt.Errorf("scheduled_time must be in HH:MM format: %w", domain.ErrBadRequest)
	}
	return &t, nil
}
