package domain

import "time"

// NotificationTemplate is an operator-authored message template. Subject and
// body may contain {{placeholder}} markers substituted from a notification's
// context at delivery time. Templates are read-only to the delivery path.
type NotificationTemplate struct {
	TemplateKey string    `json:"key" dynamodbav:"template_key"`
	Subject     string    `json:"subject" dynamodbav:"subject"`
	Body        string    `json:"body" dynamodbav:"body"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
}

type CreateTemplateRequest struct {
	Key     string `json:"key" validate:"required,slug,max=64"`
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required"`
}

type UpdateTemplateRequest struct {
	Subject *string `json:"subject" validate:"omitempty,max=200"`
	Body    *string `json:"body"`
}
