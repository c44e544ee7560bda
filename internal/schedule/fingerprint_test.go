package schedule

import (
	"testing"
	"time"

	"github.com/go-notify-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fpAt = time.Date(2025, 8, 22, 4, 0, 0, 0, time.UTC)

func baseFingerprint() string {
	return Fingerprint("welcome_email", "user@example.com", &fpAt,
		domain.ModeAllDayDate, "Asia/Karachi", map[string]string{"name": "Ana"}, false)
}

func TestFingerprint_Format(t *testing.T) {
	fp := baseFingerprint()
	require.Len(t, fp, 64)
	assert.Equal(t, fp, baseFingerprint(), "must be deterministic")
}

func TestFingerprint_EmailNormalization(t *testing.T) {
	fp := Fingerprint("welcome_email", "  USER@Example.COM ", &fpAt,
		domain.ModeAllDayDate, "Asia/Karachi", map[string]string{"name": "Ana"}, false)
	assert.Equal(t, baseFingerprint(), fp)
}

func TestFingerprint_ContextKeyOrderIrrelevant(t *testing.T) {
	a := map[string]string{"name": "Ana", "city": "Lahore", "dept": "ops"}
	b := map[string]string{"dept": "ops", "city": "Lahore", "name": "Ana"}

	fpA := Fingerprint("k", "a@b.com", nil, domain.ModeImmediate, "UTC", a, false)
	fpB := Fingerprint("k", "a@b.com", nil, domain.ModeImmediate, "UTC", b, false)
	assert.Equal(t, fpA, fpB)
}

func TestFingerprint_NilAndEmptyContextEquivalent(t *testing.T) {
	fpNil := Fingerprint("k", "a@b.com", nil, domain.ModeImmediate, "UTC", nil, false)
	fpEmpty := Fingerprint("k", "a@b.com", nil, domain.ModeImmediate, "UTC", map[string]string{}, false)
	assert.Equal(t, fpNil, fpEmpty)
}

func TestFingerprint_EachFieldChangesDigest(t *testing.T) {
	base := baseFingerprint()
	other := fpAt.Add(time.Minute)

	variants := map[string]string{
		"template": Fingerprint("other_key", "user@example.com", &fpAt,
			domain.ModeAllDayDate, "Asia/Karachi", map[string]string{"name": "Ana"}, false),
		"email": Fingerprint("welcome_email", "other@example.com", &fpAt,
			domain.ModeAllDayDate, "Asia/Karachi", map[string]string{"name": "Ana"}, false),
		"instant": Fingerprint("welcome_email", "user@example.com", &other,
			domain.ModeAllDayDate, "Asia/Karachi", map[string]string{"name": "Ana"}, false),
		"no instant": Fingerprint("welcome_email", "user@example.com", nil,
			domain.ModeAllDayDate, "Asia/Karachi", map[string]string{"name": "Ana"}, false),
		"mode": Fingerprint("welcome_email", "user@example.com", &fpAt,
			domain.ModeExactDatetime, "Asia/Karachi", map[string]string{"name": "Ana"}, false),
		"timezone": Fingerprint("welcome_email", "user@example.com", &fpAt,
			domain.ModeAllDayDate, "Europe/Berlin", map[string]string{"name": "Ana"}, false),
		"context": Fingerprint("welcome_email", "user@example.com", &fpAt,
			domain.ModeAllDayDate, "Asia/Karachi", map[string]string{"name": "Bob"}, false),
		"ics flag": Fingerprint("welcome_email", "user@example.com", &fpAt,
			domain.ModeAllDayDate, "Asia/Karachi", map[string]string{"name": "Ana"}, true),
	}
	for field, fp := range variants {
		assert.NotEqual(t, base, fp, "changing %s must change the fingerprint", field)
	}
}

func TestFingerprint_FieldBoundariesAreUnambiguous(t *testing.T) {
	// Bytes cannot migrate between adjacent fields: a template key containing
	// an arbitrary byte must never collide with an email absorbing that byte.
	a := Fingerprint("a\x1fb", "c@d.com", nil, domain.ModeImmediate, "UTC", nil, false)
	b := Fingerprint("a", "\x1fb@c@d.com", nil, domain.ModeImmediate, "UTC", nil, false)
	assert.NotEqual(t, a, b)

	c := Fingerprint("key1", "23@d.com", nil, domain.ModeImmediate, "UTC", nil, false)
	d := Fingerprint("key12", "3@d.com", nil, domain.ModeImmediate, "UTC", nil, false)
	assert.NotEqual(t, c, d)
}

func TestFingerprint_ImmediateRequestsCollideAcrossTime(t *testing.T) {
	// Two "send now" submissions of the same logical request must produce the
	// same key no matter when they are made; the instant is not part of it.
	fp1 := Fingerprint("k", "a@b.com", nil, domain.ModeImmediate, "UTC", nil, false)
	fp2 := Fingerprint("k", "a@b.com", nil, domain.ModeImmediate, "UTC", nil, false)
	assert.Equal(t, fp1, fp2)
}
