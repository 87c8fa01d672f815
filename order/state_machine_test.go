package order

import "testing"

func TestHappyPathTransitions(t *testing.T) {
	sm := NewStateMachine()
	path := []Status{StatusPending, StatusRouting, StatusBuilding, StatusSubmitted, StatusConfirmed}
	for i := 0; i < len(path)-1; i++ {
		if err := sm.ValidateTransition(path[i], path[i+1]); err != nil {
			t.Fatalf("expected %s -> %s to be legal: %v", path[i], path[i+1], err)
		}
	}
}

func TestFailFromAnyActiveState(t *testing.T) {
	sm := NewStateMachine()
	for _, from := range []Status{StatusPending, StatusRouting, StatusBuilding, StatusSubmitted} {
		if err := sm.ValidateTransition(from, StatusFailed); err != nil {
			t.Fatalf("expected %s -> failed to be legal: %v", from, err)
		}
	}
}

func TestBackwardTransitionRejected(t *testing.T) {
	sm := NewStateMachine()
	if err := sm.ValidateTransition(StatusSubmitted, StatusRouting); err == nil {
		t.Fatalf("expected submitted -> routing to be rejected")
	}
	if err := sm.ValidateTransition(StatusBuilding, StatusPending); err == nil {
		t.Fatalf("expected building -> pending to be rejected")
	}
}

func TestTerminalStatesFrozen(t *testing.T) {
	sm := NewStateMachine()
	for _, from := range []Status{StatusConfirmed, StatusFailed} {
		for _, to := range []Status{StatusPending, StatusRouting, StatusSubmitted, StatusConfirmed, StatusFailed} {
			if err := sm.ValidateTransition(from, to); err == nil {
				t.Fatalf("expected %s -> %s to be rejected", from, to)
			}
		}
	}
}

func TestSameStateReentryAllowedWhileActive(t *testing.T) {
	sm := NewStateMachine()
	// limit 单目标价未到时停留在 routing，下次调度重新进入 routing
	if err := sm.ValidateTransition(StatusRouting, StatusRouting); err != nil {
		t.Fatalf("expected routing re-entry to be legal: %v", err)
	}
}

func TestPriorityByType(t *testing.T) {
	if TypeSniper.Priority() <= TypeLimit.Priority() {
		t.Fatalf("sniper should outrank limit")
	}
	if TypeLimit.Priority() <= TypeMarket.Priority() {
		t.Fatalf("limit should outrank market")
	}
}
