package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-notify-api/internal/domain"
	"github.com/go-notify-api/internal/infrastructure/smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockNotificationStore struct{ mock.Mock }

func (m *mockNotificationStore) Get(ctx context.Context, notificationID string) (*domain.ScheduledNotification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.ScheduledNotification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockNotificationStore) ClaimAttempt(ctx context.Context, notificationID string, expected domain.State, expectedAttempts int) error {
	return m.Called(ctx, notificationID, expected, expectedAttempts).Error(0)
}
func (m *mockNotificationStore) CompareAndUpdate(ctx context.Context, notificationID string, expected domain.State, updates map[string]interface{}) error {
	return m.Called(ctx, notificationID, expected, updates).Error(0)
}

type mockTemplateStore struct{ mock.Mock }

func (m *mockTemplateStore) GetByKey(ctx context.Context, key string) (*domain.NotificationTemplate, error) {
	args := m.Called(ctx, key)
	if t, _ := args.Get(0).(*domain.NotificationTemplate); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLogStore struct{ mock.Mock }

func (m *mockLogStore) Put(ctx context.Context, l *domain.AttemptLog) error {
	return m.Called(ctx, l).Error(0)
}
func (m *mockLogStore) Update(ctx context.Context, logID string, updates map[string]interface{}) error {
	return m.Called(ctx, logID, updates).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(ctx context.Context, to, subject, body string, attachments []smtp.Attachment) (string, error) {
	args := m.Called(ctx, to, subject, body, attachments)
	return args.String(0), args.Error(1)
}

type mockEnqueuer struct{ mock.Mock }

func (m *mockEnqueuer) RunNow(notificationID string)              { m.Called(notificationID) }
func (m *mockEnqueuer) RunAt(notificationID string, at time.Time) { m.Called(notificationID, at) }

// --- helpers ---

func testConfig() WorkerConfig {
	return WorkerConfig{
		MaxAttempts:    3,
		RetryBackoff:   time.Minute,
		SendTimeout:    5 * time.Second,
		ICSDurationMin: 30,
	}
}

func eligibleRecord() *domain.ScheduledNotification {
	return &domain.ScheduledNotification{
		NotificationID:  "n1",
		TemplateKey:     "welcome_email",
		ToEmail:         "user@example.com",
		Context:         map[string]string{"name": "Ana"},
		State:           domain.StatePending,
		EffectiveSendAt: time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC),
	}
}

func welcomeTemplate() *domain.NotificationTemplate {
	return &domain.NotificationTemplate{
		TemplateKey: "welcome_email",
		Subject:     "Welcome {{name}}",
		Body:        "Hello {{name}}!",
	}
}

func newTestWorker(ns *mockNotificationStore, ts *mockTemplateStore, ls *mockLogStore, ml *mockMailer, q *mockEnqueuer) *Worker {
	return NewWorker(ns, ts, ls, ml, q, testConfig())
}

func statusUpdate(status domain.AttemptStatus) interface{} {
	return mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == status
	})
}

// --- tests ---

func TestAttempt_MissingRecord(t *testing.T) {
	ns := &mockNotificationStore{}
	ns.On("Get", mock.Anything, "n1").Return(nil, domain.ErrNotFound)

	w := newTestWorker(ns, &mockTemplateStore{}, &mockLogStore{}, &mockMailer{}, &mockEnqueuer{})
	out, err := w.Attempt(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeMissing, out)
	ns.AssertNotCalled(t, "ClaimAttempt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAttempt_CanceledRecordSkipsWithoutSideEffects(t *testing.T) {
	rec := eligibleRecord()
	rec.Canceled = true
	rec.State = domain.StateCanceled

	ns := &mockNotificationStore{}
	ns.On("Get", mock.Anything, "n1").Return(rec, nil)
	ml := &mockMailer{}

	w := newTestWorker(ns, &mockTemplateStore{}, &mockLogStore{}, ml, &mockEnqueuer{})
	out, err := w.Attempt(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
	ml.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ns.AssertNotCalled(t, "ClaimAttempt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAttempt_TerminalStateSkips(t *testing.T) {
	rec := eligibleRecord()
	rec.State = domain.StateSent

	ns := &mockNotificationStore{}
	ns.On("Get", mock.Anything, "n1").Return(rec, nil)

	w := newTestWorker(ns, &mockTemplateStore{}, &mockLogStore{}, &mockMailer{}, &mockEnqueuer{})
	out, err := w.Attempt(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
}

func TestAttempt_LostClaimSkips(t *testing.T) {
	// Two invocations race: the one that loses the conditional update must
	// back off without sending anything.
	rec := eligibleRecord()

	ns := &mockNotificationStore{}
	ns.On("Get", mock.Anything, "n1").Return(rec, nil)
	ns.On("ClaimAttempt", mock.Anything, "n1", domain.StatePending, 0).
		Return(domain.ErrConflict)
	ml := &mockMailer{}

	w := newTestWorker(ns, &mockTemplateStore{}, &mockLogStore{}, ml, &mockEnqueuer{})
	out, err := w.Attempt(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
	ml.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ns.AssertExpectations(t)
}

func TestAttempt_HappyPath(t *testing.T) {
	rec := eligibleRecord()
	fresh := eligibleRecord()
	fresh.State = domain.StateQueued
	fresh.Attempts = 1

	ns := &mockNotificationStore{}
	ns.On("Get", mock.Anything, "n1").Return(rec, nil).Once()
	ns.On("ClaimAttempt", mock.Anything, "n1", domain.StatePending, 0).Return(nil).Once()
	ns.On("Get", mock.Anything, "n1").Return(fresh, nil).Once()
	ns.On("CompareAndUpdate", mock.Anything, "n1", domain.StateQueued, map[string]interface{}{
		"state":               domain.StateSent,
		"last_error":          "",
		"provider_message_id": "mid-123",
	}).Return(nil).Once()

	ts := &mockTemplateStore{}
	ts.On("GetByKey", mock.Anything, "welcome_email").Return(welcomeTemplate(), nil)

	ls := &mockLogStore{}
	ls.On("Put", mock.Anything, mock.MatchedBy(func(l *domain.AttemptLog) bool {
		return l.AttemptNo == 1 && l.Status == domain.AttemptStarted && l.ToEmail == "user@example.com"
	})).Return(nil)
	ls.On("Update", mock.Anything, mock.Anything, map[string]interface{}{
		"subject_snapshot": "Welcome Ana",
	}).Return(nil).Once()
	ls.On("Update", mock.Anything, mock.Anything, statusUpdate(domain.AttemptSent)).Return(nil).Once()

	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, "user@example.com", "Welcome Ana", "Hello Ana!", []smtp.Attachment(nil)).
		Return("mid-123", nil)

	w := newTestWorker(ns, ts, ls, ml, &mockEnqueuer{})
	out, err := w.Attempt(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, out)
	ns.AssertExpectations(t)
	ts.AssertExpectations(t)
	ls.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestAttempt_AttachesCalendarInvite(t *testing.T) {
	rec := eligibleRecord()
	rec.AttachICS = true
	rec.Context["location"] = "Room 4"
	fresh := eligibleRecord()
	fresh.State = domain.StateQueued

	ns := &mockNotificationStore{}
	ns.On("Get", mock.Anything, "n1").Return(rec, nil).Once()
	ns.On("ClaimAttempt", mock.Anything, "n1", domain.StatePending, 0).Return(nil).Once()
	ns.On("Get", mock.Anything, "n1").Return(fresh, nil).Once()
	ns.On("CompareAndUpdate", mock.Anything, "n1", domain.StateQueued, mock.Anything).Return(nil).Once()

	ts := &mockTemplateStore{}
	ts.On("GetByKey", mock.Anything, "welcome_email").Return(welcomeTemplate(), nil)

	ls := &mockLogStore{}
	ls.On("Put", mock.Anything, mock.Anything).Return(nil)
	ls.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, "user@example.com", "Welcome Ana", "Hello Ana!",
		mock.MatchedBy(func(atts []smtp.Attachment) bool {
			return len(atts) == 1 &&
				atts[0].Filename == "invite.ics" &&
				atts[0].ContentType == "text/calendar" &&
				len(atts[0].Data) > 0
		})).Return("mid-123", nil)

	w := newTestWorker(ns, ts, ls, ml, &mockEnqueuer{})
	out, err := w.Attempt(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, out)
	ml.AssertExpectations(t)
}

func TestAttempt_TransientFailureSchedulesRetry(t *testing.T) {
	rec := eligibleRecord()
	fresh := eligibleRecord()
	fresh.State = domain.StateQueued

	ns := &mockNotificationStore{}
	ns.On("Get", mock.Anything, "n1").Return(rec, nil).Once()
	ns.On("ClaimAttempt", mock.Anything, "n1", domain.StatePending, 0).Return(nil).Once()
	ns.On("Get", mock.Anything, "n1").Return(fresh, nil).Once()
	ns.On("CompareAndUpdate", mock.Anything, "n1", domain.StateQueued, mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["state"] == domain.StateRetrying && u["last_error"] != ""
	})).Return(nil).Once()

	ts := &mockTemplateStore{}
	ts.On("GetByKey", mock.Anything, "welcome_email").Return(welcomeTemplate(), nil)

	ls := &mockLogStore{}
	ls.On("Put", mock.Anything, mock.Anything).Return(nil)
	ls.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("smtp unavailable"))

	q := &mockEnqueuer{}
	q.On("RunAt", "n1", mock.Anything).Return()

	w := newTestWorker(ns, ts, ls, ml, q)
	out, err := w.Attempt(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeRetrying, out)
	q.AssertExpectations(t)
	ns.AssertExpectations(t)
}

func TestAttempt_RetryBudgetExhaustedFails(t *testing.T) {
	// Third failure with MaxAttempts=3: FAILED, not a fourth RETRYING.
	rec := eligibleRecord()
	rec.State = domain.StateRetrying
	rec.Attempts = 2
	fresh := eligibleRecord()
	fresh.State = domain.StateQueued

	ns := &mockNotificationStore{}
	ns.On("Get", mock.Anything, "n1").Return(rec, nil).Once()
	ns.On("ClaimAttempt", mock.Anything, "n1", domain.StateRetrying, 2).Return(nil).Once()
	ns.On("Get", mock.Anything, "n1").Return(fresh, nil).Once()
	ns.On("CompareAndUpdate", mock.Anything, "n1", domain.StateQueued, mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["state"] == domain.StateFailed
	})).Return(nil).Once()

	ts := &mockTemplateStore{}
	ts.On("GetByKey", mock.Anything, "welcome_email").Return(welcomeTemplate(), nil)

	ls := &mockLogStore{}
	ls.On("Put", mock.Anything, mock.Anything).Return(nil)
	ls.On("Update", mock.Anything, mock.Anything, map[string]interface{}{
		"subject_snapshot": "Welcome Ana",
	}).Return(nil).Once()
	ls.On("Update", mock.Anything, mock.Anything, statusUpdate(domain.AttemptFailed)).Return(nil).Once()

	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("smtp unavailable"))

	q := &mockEnqueuer{}

	w := newTestWorker(ns, ts, ls, ml, q)
	out, err := w.Attempt(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out)
	q.AssertNotCalled(t, "RunAt", mock.Anything, mock.Anything)
	ns.AssertExpectations(t)
	ls.AssertExpectations(t)
}

func TestAttempt_CancelAfterClaimAbortsSend(t *testing.T) {
	// The record is eligible when loaded but canceled by the time the worker
	// re-checks right before sending: no email, CANCELED log entry.
	rec := eligibleRecord()
	fresh := eligibleRecord()
	fresh.State = domain.StateCanceled
	fresh.Canceled = true

	ns := &mockNotificationStore{}
	ns.On("Get", mock.Anything, "n1").Return(rec, nil).Once()
	ns.On("ClaimAttempt", mock.Anything, "n1", domain.StatePending, 0).Return(nil).Once()
	ns.On("Get", mock.Anything, "n1").Return(fresh, nil).Once()

	ts := &mockTemplateStore{}
	ts.On("GetByKey", mock.Anything, "welcome_email").Return(welcomeTemplate(), nil)

	ls := &mockLogStore{}
	ls.On("Put", mock.Anything, mock.Anything).Return(nil)
	ls.On("Update", mock.Anything, mock.Anything, map[string]interface{}{
		"subject_snapshot": "Welcome Ana",
	}).Return(nil).Once()
	ls.On("Update", mock.Anything, mock.Anything, statusUpdate(domain.AttemptCanceled)).Return(nil).Once()

	ml := &mockMailer{}

	w := newTestWorker(ns, ts, ls, ml, &mockEnqueuer{})
	out, err := w.Attempt(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeCanceled, out)
	ml.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ls.AssertExpectations(t)
}

// casStore reproduces the repository's conditional-write semantics over an
// in-memory record: the claim compares state and the attempts counter
// atomically, result transitions compare state. The first two Gets rendezvous
// so both workers observe the same record version before either claims it.
type casStore struct {
	mu      sync.Mutex
	rec     domain.ScheduledNotification
	loads   int32
	barrier chan struct{}
}

func (s *casStore) Get(_ context.Context, _ string) (*domain.ScheduledNotification, error) {
	n := atomic.AddInt32(&s.loads, 1)
	if n == 2 {
		close(s.barrier)
	}
	if n <= 2 {
		<-s.barrier
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.rec
	return &rec, nil
}

func (s *casStore) ClaimAttempt(_ context.Context, _ string, expected domain.State, expectedAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec.State != expected || s.rec.Attempts != expectedAttempts {
		return domain.ErrConflict
	}
	s.rec.State = domain.StateQueued
	s.rec.Attempts = expectedAttempts + 1
	return nil
}

func (s *casStore) CompareAndUpdate(_ context.Context, _ string, expected domain.State, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec.State != expected {
		return domain.ErrConflict
	}
	if v, ok := updates["state"].(domain.State); ok {
		s.rec.State = v
	}
	return nil
}

type countingMailer struct{ sends int32 }

func (m *countingMailer) SendEmail(_ context.Context, _, _, _ string, _ []smtp.Attachment) (string, error) {
	atomic.AddInt32(&m.sends, 1)
	return "mid-123", nil
}

func TestAttempt_ConcurrentStuckReclaimSendsOnce(t *testing.T) {
	// A stuck QUEUED record requeued twice (two sweeper passes can do this)
	// races two workers. QUEUED -> QUEUED leaves the state unchanged, so the
	// claim must also compare the attempts counter: exactly one worker may
	// proceed to the send.
	store := &casStore{rec: *eligibleRecord(), barrier: make(chan struct{})}
	store.rec.State = domain.StateQueued
	store.rec.Attempts = 1

	ts := &mockTemplateStore{}
	ts.On("GetByKey", mock.Anything, "welcome_email").Return(welcomeTemplate(), nil)
	ls := &mockLogStore{}
	ls.On("Put", mock.Anything, mock.Anything).Return(nil)
	ls.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ml := &countingMailer{}

	w := NewWorker(store, ts, ls, ml, &mockEnqueuer{}, testConfig())

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = w.Attempt(context.Background(), "n1")
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.EqualValues(t, 1, atomic.LoadInt32(&ml.sends))
	assert.ElementsMatch(t, []Outcome{OutcomeSent, OutcomeSkipped}, outcomes)
	assert.Equal(t, domain.StateSent, store.rec.State)
	assert.Equal(t, 2, store.rec.Attempts)
}
