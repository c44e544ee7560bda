package schedule

import (
	"time"

	"github.com/go-notify-api/internal/domain"
)

// ResolverConfig carries the scheduling defaults. It is fixed at process
// start; the resolver itself holds no other state.
type ResolverConfig struct {
	DefaultTimezone   string // fallback IANA name
	DefaultSendHour   int    // local send hour for date-only requests
	DefaultSendMinute int
}

// Resolver turns ambiguous user scheduling intent (optional date, optional
// time, a timezone name) into a scheduling mode and a single canonical UTC
// instant. Resolve is pure: identical inputs and nowUTC always produce
// identical output, which is what makes fingerprinting and tests work.
type Resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve maps the four input shapes to a mode and an effective UTC send
// instant. date carries only its year/month/day; timeOfDay only its
// hour/minute.
//
//   - neither  -> IMMEDIATE, send at nowUTC
//   - date     -> ALL_DAY_DATE, that date at the default hour (local),
//     past dates are kept as-is and become immediately due
//   - time     -> TODAY_AT_TIME, today at that time (local); rolled forward
//     one day when not strictly after now (equal to now counts as past)
//   - both     -> EXACT_DATETIME, the exact local wall-clock time, never rolled
func (r *Resolver) Resolve(date, timeOfDay *time.Time, timezoneName string, nowUTC time.Time) (domain.SchedulingMode, time.Time, string) {
	loc, tzName := r.resolveLocation(timezoneName)

	switch {
	case date == nil && timeOfDay == nil:
		return domain.ModeImmediate, nowUTC, tzName

	case date != nil && timeOfDay == nil:
		local := time.Date(date.Year(), date.Month(), date.Day(),
			r.cfg.DefaultSendHour, r.cfg.DefaultSendMinute, 0, 0, loc)
		return domain.ModeAllDayDate, local.UTC(), tzName

	case date == nil && timeOfDay != nil:
		now := nowUTC.In(loc)
		local := time.Date(now.Year(), now.Month(), now.Day(),
			timeOfDay.Hour(), timeOfDay.Minute(), 0, 0, loc)
		if !local.After(now) {
			local = time.Date(now.Year(), now.Month(), now.Day()+1,
				timeOfDay.Hour(), timeOfDay.Minute(), 0, 0, loc)
		}
		return domain.ModeTodayAtTime, local.UTC(), tzName

	default:
		local := time.Date(date.Year(), date.Month(), date.Day(),
			timeOfDay.Hour(), timeOfDay.Minute(), 0, 0, loc)
		return domain.ModeExactDatetime, local.UTC(), tzName
	}
}

// resolveLocation tries the user-supplied name, then the configured default,
// then UTC. Unknown names are skipped silently rather than rejected.
func (r *Resolver) resolveLocation(name string) (*time.Location, string) {
	for _, cand := range []string{name, r.cfg.DefaultTimezone} {
		if cand == "" {
			continue
		}
		if loc, err := time.LoadLocation(cand); err == nil {
			return loc, cand
		}
	}
	return time.UTC, "UTC"
}
