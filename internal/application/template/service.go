package template

import (
	"context"
	"fmt"
	"time"

	"github.com/go-notify-api/internal/domain"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldSubject = "subject"
	fieldBody    = "body"
)

type Service interface {
	List(ctx context.Context) ([]domain.NotificationTemplate, error)
	Get(ctx context.Context, key string) (*domain.NotificationTemplate, error)
	Create(ctx context.Context, req domain.CreateTemplateRequest) (*domain.NotificationTemplate, error)
	Update(ctx context.Context, key string, req domain.UpdateTemplateRequest) (*domain.NotificationTemplate, error)
	Delete(ctx context.Context, key string) error // hard delete
}

type templateStore interface {
	Scan(ctx context.Context) ([]domain.NotificationTemplate, error)
	GetByKey(ctx context.Context, key string) (*domain.NotificationTemplate, error)
	GetBySubject(ctx context.Context, subject string) (*domain.NotificationTemplate, error)
	Put(ctx context.Context, t *domain.NotificationTemplate) error
	Update(ctx context.Context, key string, updates map[string]interface{}) error
	HardDelete(ctx context.Context, key string) error
}

type service struct {
	repo templateStore
}

func NewService(repo templateStore) Service {
	return &service{repo: repo}
}

func (s *service) List(ctx context.Context) ([]domain.NotificationTemplate, error) {
	return s.repo.Scan(ctx)
}

func (s *service) Get(ctx context.Context, key string) (*domain.NotificationTemplate, error) {
	return s.repo.GetByKey(ctx, key)
}

func (s *service) Create(ctx context.Context, req domain.CreateTemplateRequest) (*domain.NotificationTemplate, error) {
	if _, err := s.repo.GetByKey(ctx, req.Key); err == nil {
		return nil, fmt.Errorf("template key already exists: %w", domain.ErrConflict)
	}
	if _, err := s.repo.GetBySubject(ctx, req.Subject); err == nil {
		return nil, fmt.Errorf("template subject already in use: %w", domain.ErrConflict)
	}
	now := time.Now().UTC()
	t := &domain.NotificationTemplate{
		TemplateKey: req.Key,
		Subject:     req.Subject,
		Body:        req.Body,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *service) Update(ctx context.Context, key string, req domain.UpdateTemplateRequest) (*domain.NotificationTemplate, error) {
	updates := map[string]interface{}{}
	if req.Subject != nil {
		if other, err := s.repo.GetBySubject(ctx, *req.Subject); err == nil && other.TemplateKey != key {
			return nil, fmt.Errorf("template subject already in use: %w", domain.ErrConflict)
		}
		updates[fieldSubject] = *req.Subject
	}
	if req.Body != nil {
		updates[fieldBody] = *req.Body
	}
	if len(updates) == 0 {
		return s.repo.GetByKey(ctx, key)
	}
	if err := s.repo.Update(ctx, key, updates); err != nil {
		return nil, err
	}
	return s.repo.GetByKey(ctx, key)
}

func (s *service) Delete(ctx context.Context, key string) error {
	if _, err := s.repo.GetByKey(ctx, key); err != nil {
		return err
	}
	return s.repo.HardDelete(ctx, key)
}
