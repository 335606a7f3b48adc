package idle

import (
	"testing"
	"time"
)

func TestTickTransitionsThroughTiers(t *testing.T) {
	start := time.Now()
	m := New(80, 20, 5*time.Second, 10*time.Second)
	m.lastActivity = start

	if got := m.Tick(start.Add(1 * time.Second)); got != Normal {
		t.Fatalf("expected Normal, got %v", got)
	}
	if got := m.Tick(start.Add(6 * time.Second)); got != Dim {
		t.Fatalf("expected Dim, got %v", got)
	}
	if got := m.Tick(start.Add(11 * time.Second)); got != Sleep {
		t.Fatalf("expected Sleep, got %v", got)
	}
}

func TestTickDisabledTiersNeverFire(t *testing.T) {
	start := time.Now()
	m := New(80, 20, 0, 0)
	m.lastActivity = start
	if got := m.Tick(start.Add(time.Hour)); got != Normal {
		t.Fatalf("expected Normal forever when both timeouts disabled, got %v", got)
	}
}

func TestOnButtonEventWakeFromSleepSwallowsAction(t *testing.T) {
	start := time.Now()
	m := New(80, 20, 5*time.Second, 10*time.Second)
	m.lastActivity = start
	m.Tick(start.Add(11 * time.Second))
	if m.State() != Sleep {
		t.Fatalf("expected Sleep before wake, got %v", m.State())
	}

	wake := m.OnButtonEvent(start.Add(12 * time.Second))
	if !wake.WasAsleepOrDim || !wake.SwallowAction {
		t.Fatalf("expected wake-without-action from SLEEP, got %+v", wake)
	}
	if m.State() != Normal {
		t.Fatalf("expected Normal after wake, got %v", m.State())
	}
}

func TestOnButtonEventWakeFromDimDoesNotSwallow(t *testing.T) {
	start := time.Now()
	m := New(80, 20, 5*time.Second, 0)
	m.lastActivity = start
	m.Tick(start.Add(6 * time.Second))
	if m.State() != Dim {
		t.Fatalf("expected Dim, got %v", m.State())
	}

	wake := m.OnButtonEvent(start.Add(7 * time.Second))
	if !wake.WasAsleepOrDim || wake.SwallowAction {
		t.Fatalf("expected wake from DIM without swallowing action, got %+v", wake)
	}
}

func TestOnButtonEventWhileNormalIsANoop(t *testing.T) {
	m := New(80, 20, 5*time.Second, 10*time.Second)
	wake := m.OnButtonEvent(time.Now())
	if wake.WasAsleepOrDim || wake.SwallowAction {
		t.Fatalf("expected no-op wake event while already NORMAL, got %+v", wake)
	}
}

func TestBrightnessRetryBackoff(t *testing.T) {
	m := New(80, 20, 0, 0)
	now := time.Now()
	m.RecordBrightnessAttempt(now)
	if m.NeedsBrightnessRetry(now.Add(500*time.Millisecond), true) {
		t.Error("expected no retry before 1s elapsed")
	}
	if !m.NeedsBrightnessRetry(now.Add(time.Second), true) {
		t.Error("expected retry allowed after 1s elapsed")
	}
	if m.NeedsBrightnessRetry(now.Add(time.Second), false) {
		t.Error("expected no retry when last attempt did not fail")
	}
}
