package domain

import (
	"testing"
	"time"
)

func TestInvocationStateString(t *testing.T) {
	tests := []struct {
		state InvocationState
		want  string
	}{
		{StatePending, "pending"},
		{StateRunning, "running"},
		{StateSucceeded, "succeeded"},
		{StateFailed, "failed"},
		{StateTimedOut, "timed_out"},
		{InvocationState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestInvocationStateTerminal(t *testing.T) {
	for _, s := range []InvocationState{StateSucceeded, StateFailed, StateTimedOut} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []InvocationState{StatePending, StateRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestSessionContextAppendBounded(t *testing.T) {
	sc := &SessionContext{SessionID: "s1"}
	for i := 0; i < 10; i++ {
		sc.Append(Exchange{RequestText: "q", ResponseText: "a", Status: StatusComplete, At: time.Now()}, 4)
	}
	if len(sc.History) != 4 {
		t.Errorf("history length = %d, want 4", len(sc.History))
	}
}

func TestSessionContextAppendUnbounded(t *testing.T) {
	sc := &SessionContext{SessionID: "s1"}
	for i := 0; i < 10; i++ {
		sc.Append(Exchange{At: time.Now()}, 0)
	}
	if len(sc.History) != 10 {
		t.Errorf("history length = %d, want 10", len(sc.History))
	}
}
