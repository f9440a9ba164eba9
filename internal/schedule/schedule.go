package schedule

import (
	"time"

	"github.com/conorfennell/leitnerbox/internal/domain"
)

// MaxBucket is the terminal mastery level. A card that reaches it leaves
// the review pool until it is manually reset.
const MaxBucket = 6

// IntervalDays returns how many days after a successful review a card in
// the given bucket should come back. The second return value is false for
// mastered buckets, which have no interval at all.
func IntervalDays(bucket int) (int, bool) {
	switch {
	case bucket <= 0:
		return 0, true
	case bucket <= 3:
		return 1, true
	case bucket < MaxBucket:
		return 2, true
	default:
		return 0, false
	}
}

// Mastered reports whether the bucket has reached the terminal level.
func Mastered(bucket int) bool {
	return bucket >= MaxBucket
}

// Pass advances the card one bucket and reschedules it. The new due date
// is anchored at whichever is later, the old due date or today, so a
// review done late never schedules the next one in the past.
func Pass(st *domain.ScheduleState, today time.Time) {
	if st.Bucket < MaxBucket {
		st.Bucket++
	}
	if Mastered(st.Bucket) {
		st.NextDate = nil
		return
	}
	days, _ := IntervalDays(st.Bucket)
	anchor := DateOnly(today)
	if st.NextDate != nil {
		if prev := DateOnly(*st.NextDate); prev.After(anchor) {
			anchor = prev
		}
	}
	next := anchor.AddDate(0, 0, days)
	st.NextDate = &next
}

// Fail drops the card one bucket, floored at 1, and makes it due again
// today. Failing never resets a card all the way back to the start.
func Fail(st *domain.ScheduleState, today time.Time) {
	if st.Bucket > 1 {
		st.Bucket--
	}
	due := DateOnly(today)
	st.NextDate = &due
}

// DateOnly truncates a time to midnight of its day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59 of the given day. Due-pool queries cut off
// here so a card due "today" stays selectable at any hour of that day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
