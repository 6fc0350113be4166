package models

import (
	"testing"
	"time"
)

func newTestOrder() *Order {
	key := InstrumentKey{Ticker: "QQQ", Strike: 613, Kind: Put}
	return NewOrder(key, "2/10/26", 0.69, time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC))
}

func TestTransition_OpenToClosed(t *testing.T) {
	o := newTestOrder()
	at := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

	if err := o.Transition(StatusClosed, "close_signal", at); err != nil {
		t.Fatalf("valid transition failed: %v", err)
	}
	if o.Status != StatusClosed {
		t.Errorf("status = %s, want %s", o.Status, StatusClosed)
	}
	if !o.ExitTime.Equal(at) {
		t.Errorf("exit time = %v, want %v", o.ExitTime, at)
	}
}

func TestTransition_OpenSelfUpdate(t *testing.T) {
	o := newTestOrder()

	if err := o.Transition(StatusOpen, "position_update", time.Now()); err != nil {
		t.Fatalf("open -> open update failed: %v", err)
	}
	if !o.ExitTime.IsZero() {
		t.Error("self-transition must not stamp an exit time")
	}
}

func TestTransition_PendingToOpen(t *testing.T) {
	o := newTestOrder()
	o.Status = StatusPending

	if err := o.Transition(StatusOpen, "entry_confirmed", time.Now()); err != nil {
		t.Fatalf("pending -> open failed: %v", err)
	}
	if o.Status != StatusOpen {
		t.Errorf("status = %s, want %s", o.Status, StatusOpen)
	}
}

func TestTransition_InvalidTransitions(t *testing.T) {
	at := time.Now()

	// Closed is terminal.
	o := newTestOrder()
	if err := o.Transition(StatusClosed, "close_signal", at); err != nil {
		t.Fatalf("setup close failed: %v", err)
	}
	if err := o.Transition(StatusOpen, "position_update", at); err == nil {
		t.Error("closed -> open should fail")
	}
	if err := o.Transition(StatusExpired, "expiry_sweep", at); err == nil {
		t.Error("closed -> expired should fail")
	}

	// Pending cannot close directly.
	o = newTestOrder()
	o.Status = StatusPending
	if err := o.Transition(StatusClosed, "close_signal", at); err == nil {
		t.Error("pending -> closed should fail")
	}
	if o.Status != StatusPending {
		t.Errorf("status changed after failed transition, got %s", o.Status)
	}
}

func TestTransition_ExpirySweep(t *testing.T) {
	o := newTestOrder()
	at := time.Date(2026, 2, 11, 21, 0, 0, 0, time.UTC)

	if err := o.Transition(StatusExpired, "expiry_sweep", at); err != nil {
		t.Fatalf("open -> expired failed: %v", err)
	}
	if o.Status != StatusExpired {
		t.Errorf("status = %s, want %s", o.Status, StatusExpired)
	}
	if !o.ExitTime.Equal(at) {
		t.Errorf("exit time = %v, want %v", o.ExitTime, at)
	}
}

func TestTransition_PreservesExistingExitTime(t *testing.T) {
	o := newTestOrder()
	earlier := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	o.ExitTime = earlier

	if err := o.Transition(StatusClosed, "close_signal", earlier.Add(time.Hour)); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if !o.ExitTime.Equal(earlier) {
		t.Errorf("exit time overwritten: %v, want %v", o.ExitTime, earlier)
	}
}
