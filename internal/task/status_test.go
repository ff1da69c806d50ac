package task

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from  Status
		to    Status
		valid bool
	}{
		{StatusWaiting, StatusReady, true},
		{StatusWaiting, StatusRunning, false},
		{StatusReady, StatusRunning, true},
		{StatusRunning, StatusDeveloped, true},
		{StatusRunning, StatusReviewing, false},
		{StatusDeveloped, StatusReviewing, true},
		{StatusReviewing, StatusMerging, true},
		{StatusReviewing, StatusRunning, true}, // revision requested
		{StatusMerging, StatusMerged, true},
		{StatusMerging, StatusRunning, true}, // conflict resolution re-enters development
		{StatusMerged, StatusFailed, false},
		{StatusFailed, StatusReady, false},
		{StatusWaiting, StatusFailed, true},
		{StatusMerging, StatusFailed, true},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.valid {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusMerged, StatusFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(ValidTransitions[s]) != 0 {
			t.Errorf("%s should have no outgoing transitions", s)
		}
	}

	active := []Status{StatusRunning, StatusDeveloped, StatusReviewing, StatusMerging}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if !s.IsActive() {
			t.Errorf("%s should be active", s)
		}
	}

	for _, s := range []Status{StatusWaiting, StatusReady} {
		if s.IsActive() || s.IsTerminal() {
			t.Errorf("%s should be neither active nor terminal", s)
		}
	}
}

func TestVerdictApproved(t *testing.T) {
	if !VerdictApproved.Approved() {
		t.Error("APPROVED must pass")
	}
	if !VerdictCommented.Approved() {
		t.Error("COMMENTED counts as approval with remarks")
	}
	if VerdictChangesRequested.Approved() {
		t.Error("CHANGES_REQUESTED must not pass")
	}
	if VerdictError.Approved() {
		t.Error("ERROR must not pass")
	}
}
