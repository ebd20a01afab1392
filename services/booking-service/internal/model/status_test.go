package model

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestTerminalAndActive(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if !s.IsTerminal() || s.IsActive() {
			t.Errorf("%s should be terminal and inactive", s)
		}
	}
	for _, s := range ActiveStatuses {
		if s.IsTerminal() || !s.IsActive() {
			t.Errorf("%s should be active", s)
		}
	}
	if _, err := ParseStatus("booked"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestOriginInitialStatus(t *testing.T) {
	if OriginCustomer.InitialStatus() != StatusPending {
		t.Fatal("customer bookings start pending")
	}
	if OriginProvider.InitialStatus() != StatusConfirmed {
		t.Fatal("provider bookings start confirmed")
	}
}
