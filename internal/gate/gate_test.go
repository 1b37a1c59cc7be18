package gate

import (
	"errors"
	"testing"
	"time"
)

func fixedGate(t *testing.T, now time.Time) *Gate {
	t.Helper()
	g := New(nil)
	g.now = func() time.Time { return now }
	g.sleep = func(time.Duration) {}
	return g
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("12:37")
	if err != nil {
		t.Fatalf("ParseTimeOfDay returned error: %v", err)
	}
	if tod.Hour != 12 || tod.Minute != 37 {
		t.Errorf("unexpected result: %+v", tod)
	}

	for _, bad := range []string{"", "12", "25:00", "12:65", "ab:cd"} {
		if _, err := ParseTimeOfDay(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestAssertNotExpired_WithinMarginFails(t *testing.T) {
	// 11:59:50 加 20 秒余量已越过 12:00
	now := time.Date(2024, 3, 15, 11, 59, 50, 0, time.Local)
	g := fixedGate(t, now)

	err := g.AssertNotExpired(TimeOfDay{Hour: 12, Minute: 0}, 20*time.Second)
	if !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}
}

func TestAssertNotExpired_EarlyEnoughSucceeds(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)
	g := fixedGate(t, now)

	if err := g.AssertNotExpired(TimeOfDay{Hour: 12, Minute: 0}, 20*time.Second); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestAssertNotExpired_NoDayRollover(t *testing.T) {
	// 已过当日截止时刻时直接判定过期，不顺延到次日
	now := time.Date(2024, 3, 15, 13, 0, 0, 0, time.Local)
	g := fixedGate(t, now)

	err := g.AssertNotExpired(TimeOfDay{Hour: 12, Minute: 0}, time.Second)
	if !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}
}

func TestAwaitDeadline_SleepsUntilDeadline(t *testing.T) {
	now := time.Date(2024, 3, 15, 11, 0, 0, 0, time.Local)
	g := New(nil)
	g.now = func() time.Time { return now }

	var slept time.Duration
	g.sleep = func(d time.Duration) { slept = d }

	if !g.AwaitDeadline(TimeOfDay{Hour: 12, Minute: 0}, time.Second) {
		t.Fatal("expected AwaitDeadline to report true")
	}
	if slept != time.Hour {
		t.Errorf("expected 1h sleep, got %s", slept)
	}
}

func TestAwaitDeadline_ExpiredReturnsImmediately(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 30, 0, 0, time.Local)
	g := New(nil)
	g.now = func() time.Time { return now }

	slept := false
	g.sleep = func(time.Duration) { slept = true }

	if g.AwaitDeadline(TimeOfDay{Hour: 12, Minute: 0}, time.Second) {
		t.Fatal("expected AwaitDeadline to report false")
	}
	if slept {
		t.Error("expected no sleep when deadline already passed")
	}
}
