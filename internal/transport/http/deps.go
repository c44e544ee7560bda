package http

import (
	"context"

	"github.com/go-notify-api/internal/domain"
)

// TemplateRepository is the minimal interface the router requires from a template store.
type TemplateRepository interface {
	Scan(ctx context.Context) ([]domain.NotificationTemplate, error)
	GetByKey(ctx context.Context, key string) (*domain.NotificationTemplate, error)
	// GetBySubject resolves a template by its subject via the `subject-index` GSI.
	GetBySubject(ctx context.Context, subject string) (*domain.NotificationTemplate, error)
	Put(ctx context.Context, t *domain.NotificationTemplate) error
	Update(ctx context.Context, key string, updates map[string]interface{}) error
	HardDelete(ctx context.Context, key string) error
}

// NotificationRepository is the minimal interface the router requires from a notification store.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.ScheduledNotification) error
	Get(ctx context.Context, notificationID string) (*domain.ScheduledNotification, error)
	CompareAndUpdate(ctx context.Context, notificationID string, expected domain.State, updates map[string]interface{}) error
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.ScheduledNotification, error)
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.ScheduledNotification, string, error)
}

// AttemptLogRepository is the minimal interface the router requires from an attempt-log store.
type AttemptLogRepository interface {
	ListByNotification(ctx context.Context, notificationID string) ([]domain.AttemptLog, error)
}
