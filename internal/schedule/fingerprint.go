package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-notify-api/internal/domain"
)

// immediateToken stands in for the send instant when the request has none,
// so two identical "send now" requests collide regardless of when they were
// submitted.
const immediateToken = "immediate"

// Fingerprint builds the idempotency key for a scheduling request: a
// deterministic sha256 over the canonical form of every field that changes
// the resulting email. Returns a 64-character lowercase hex string.
//
// Each field is length-prefixed before hashing, so no field value can shift
// bytes into a neighbouring field and two distinct requests never produce the
// same digest input.
//
// sendAtUTC must be nil for immediate requests and the resolved instant
// otherwise. Context maps hash identically regardless of key order because
// encoding/json emits map keys sorted.
func Fingerprint(templateKey, toEmail string, sendAtUTC *time.Time, mode domain.SchedulingMode, timezone string, context map[string]string, attachICS bool) string {
	email := strings.ToLower(strings.TrimSpace(toEmail))

	when := immediateToken
	if sendAtUTC != nil {
		when = sendAtUTC.UTC().Format(time.RFC3339)
	}

	if context == nil {
		context = map[string]string{}
	}
	payload, _ := json.Marshal(context)

	ics := "no-ics"
	if attachICS {
		ics = "ics"
	}

	var raw strings.Builder
	for _, field := range []string{
		templateKey,
		email,
		when,
		string(mode),
		timezone,
		string(payload),
		ics,
	} {
		fmt.Fprintf(&raw, "%d:%s", len(field), field)
	}

	sum := sha256.Sum256([]byte(raw.String()))
	return hex.EncodeToString(sum[:])
}
