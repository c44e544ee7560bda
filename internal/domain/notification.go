package domain

import "time"

// SchedulingMode classifies which combination of date/time the user supplied.
type SchedulingMode string

const (
	ModeImmediate     SchedulingMode = "IMMEDIATE"      // no date, no time
	ModeAllDayDate    SchedulingMode = "ALL_DAY_DATE"   // date only, sent at the default hour
	ModeTodayAtTime   SchedulingMode = "TODAY_AT_TIME"  // time only, today or rolled to tomorrow
	ModeExactDatetime SchedulingMode = "EXACT_DATETIME" // both date and time
)

// ScheduledNotification is the central entity: one user request to email a
// rendered template at a resolved instant. Intent fields hold the raw user
// input; resolved fields are computed once at creation and never recomputed.
type ScheduledNotification struct {
	NotificationID string `json:"id" dynamodbav:"notification_id"`

	// Intent (user input, each independently optional).
	ScheduledDate *string `json:"scheduled_date,omitempty" dynamodbav:"scheduled_date"` // YYYY-MM-DD
	ScheduledTime *string `json:"scheduled_time,omitempty" dynamodbav:"scheduled_time"` // HH:MM
	UserTimezone  string  `json:"user_timezone" dynamodbav:"user_timezone"`

	// Resolved at creation, immutable afterwards.
	SchedulingMode   SchedulingMode `json:"scheduling_mode" dynamodbav:"scheduling_mode"`
	EffectiveSendAt  time.Time      `json:"effective_send_at" dynamodbav:"effective_send_at"`
	ResolvedTimezone string         `json:"resolved_timezone" dynamodbav:"resolved_timezone"`

	// Delivery payload.
	TemplateKey string            `json:"template_key" dynamodbav:"template_key"`
	ToEmail     string            `json:"to_email" dynamodbav:"to_email"`
	Context     map[string]string `json:"context" dynamodbav:"context"`
	AttachICS   bool              `json:"attach_ics" dynamodbav:"attach_ics"`

	// Lifecycle.
	State             State  `json:"state" dynamodbav:"state"`
	Attempts          int    `json:"attempts" dynamodbav:"attempts"`
	LastError         string `json:"last_error,omitempty" dynamodbav:"last_error"`
	Canceled          bool   `json:"canceled" dynamodbav:"canceled"`
	IdempotencyKey    string `json:"idempotency_key" dynamodbav:"idempotency_key"`
	ProviderMessageID string `json:"provider_message_id,omitempty" dynamodbav:"provider_message_id"`

	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}

type CreateNotificationRequest struct {
	TemplateKey   string            `json:"template_key" validate:"required,slug"`
	ToEmail       string            `json:"to_email" validate:"required,email"`
	ScheduledDate *string           `json:"scheduled_date"` // expected format: YYYY-MM-DD
	ScheduledTime *string           `json:"scheduled_time"` // expected format: HH:MM
	Timezone      string            `json:"timezone"`       // IANA name, optional
	Context       map[string]string `json:"context"`
	AttachICS     bool              `json:"attach_ics"`
}
