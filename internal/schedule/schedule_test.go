package schedule

import (
	"testing"
	"time"

	"github.com/conorfennell/leitnerbox/internal/domain"
)

var today = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func datePtr(t time.Time) *time.Time { return &t }

func TestIntervalDays(t *testing.T) {
	testCases := []struct {
		bucket  int
		days    int
		hasDays bool
	}{
		{bucket: -1, days: 0, hasDays: true},
		{bucket: 0, days: 0, hasDays: true},
		{bucket: 1, days: 1, hasDays: true},
		{bucket: 2, days: 1, hasDays: true},
		{bucket: 3, days: 1, hasDays: true},
		{bucket: 4, days: 2, hasDays: true},
		{bucket: 5, days: 2, hasDays: true},
		{bucket: 6, days: 0, hasDays: false},
		{bucket: 7, days: 0, hasDays: false},
	}

	for _, tc := range testCases {
		days, ok := IntervalDays(tc.bucket)
		if ok != tc.hasDays {
			t.Errorf("IntervalDays(%d): expected hasDays=%v, got %v", tc.bucket, tc.hasDays, ok)
		}
		if days != tc.days {
			t.Errorf("IntervalDays(%d): expected %d days, got %d", tc.bucket, tc.days, days)
		}
	}
}

func TestPassAdvancesEveryBucket(t *testing.T) {
	for bucket := 1; bucket <= MaxBucket; bucket++ {
		st := &domain.ScheduleState{Bucket: bucket, NextDate: datePtr(DateOnly(today))}
		Pass(st, today)

		expected := bucket + 1
		if expected > MaxBucket {
			expected = MaxBucket
		}
		if st.Bucket != expected {
			t.Errorf("Pass from bucket %d: expected bucket %d, got %d", bucket, expected, st.Bucket)
		}

		if Mastered(expected) {
			if st.NextDate != nil {
				t.Errorf("Pass from bucket %d: expected next date cleared on mastery, got %v", bucket, st.NextDate)
			}
			continue
		}
		days, _ := IntervalDays(expected)
		want := DateOnly(today).AddDate(0, 0, days)
		if st.NextDate == nil || !st.NextDate.Equal(want) {
			t.Errorf("Pass from bucket %d: expected next date %v, got %v", bucket, want, st.NextDate)
		}
	}
}

func TestPassAnchorsOverdueCardsAtToday(t *testing.T) {
	// A card ten days overdue must not be rescheduled from its stale due
	// date; the next review counts from today.
	overdue := DateOnly(today).AddDate(0, 0, -10)
	st := &domain.ScheduleState{Bucket: 1, NextDate: &overdue}
	Pass(st, today)

	want := DateOnly(today).AddDate(0, 0, 1)
	if st.NextDate == nil || !st.NextDate.Equal(want) {
		t.Errorf("expected overdue card rescheduled to %v, got %v", want, st.NextDate)
	}
}

func TestPassAnchorsAtFutureDueDate(t *testing.T) {
	future := DateOnly(today).AddDate(0, 0, 3)
	st := &domain.ScheduleState{Bucket: 3, NextDate: &future}
	Pass(st, today)

	// Bucket 4 has a 2-day interval counted from the later anchor.
	want := future.AddDate(0, 0, 2)
	if st.NextDate == nil || !st.NextDate.Equal(want) {
		t.Errorf("expected next date %v, got %v", want, st.NextDate)
	}
}

func TestPassNeverSchedulesInThePast(t *testing.T) {
	for daysOverdue := 0; daysOverdue < 30; daysOverdue++ {
		stale := DateOnly(today).AddDate(0, 0, -daysOverdue)
		st := &domain.ScheduleState{Bucket: 2, NextDate: &stale}
		Pass(st, today)
		if st.NextDate.Before(DateOnly(today)) {
			t.Fatalf("card %d days overdue was scheduled in the past: %v", daysOverdue, st.NextDate)
		}
	}
}

func TestFailDecrementsWithFloor(t *testing.T) {
	for bucket := 1; bucket <= MaxBucket; bucket++ {
		st := &domain.ScheduleState{Bucket: bucket, NextDate: datePtr(DateOnly(today))}
		Fail(st, today)

		expected := bucket - 1
		if expected < 1 {
			expected = 1
		}
		if st.Bucket != expected {
			t.Errorf("Fail from bucket %d: expected bucket %d, got %d", bucket, expected, st.Bucket)
		}
		if st.NextDate == nil || !st.NextDate.Equal(DateOnly(today)) {
			t.Errorf("Fail from bucket %d: expected card due today, got %v", bucket, st.NextDate)
		}
	}
}

func TestMastered(t *testing.T) {
	if Mastered(5) {
		t.Error("bucket 5 should not be mastered")
	}
	if !Mastered(6) {
		t.Error("bucket 6 should be mastered")
	}
	if !Mastered(7) {
		t.Error("bucket 7 should be mastered")
	}
}

func TestEndOfDay(t *testing.T) {
	cutoff := EndOfDay(today)
	if cutoff.Hour() != 23 || cutoff.Minute() != 59 || cutoff.Second() != 59 {
		t.Errorf("expected 23:59:59, got %v", cutoff)
	}
	if cutoff.Day() != today.Day() {
		t.Errorf("expected same day, got %v", cutoff)
	}
}
