package playback

import "testing"

func TestNewStateMachine_InitialStateIsIdle(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StateIdle {
		t.Fatalf("expected initial state Idle, got %s", sm.Current())
	}
}

func TestStateMachine_ValidTransitions(t *testing.T) {
	tests := []struct {
		path []State
	}{
		{[]State{StateLoadingAudio}},
		{[]State{StatePlaying}},
		{[]State{StateLoadingAudio, StatePlaying}},
		{[]State{StateLoadingAudio, StateError}},
		{[]State{StatePlaying, StateError}},
		{[]State{StateLoadingAudio, StatePlaying, StateError, StateIdle}},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		for _, to := range tt.path {
			if !sm.Transition(to) {
				t.Errorf("path %v: transition to %s should be valid", tt.path, to)
			}
			if sm.Current() != to {
				t.Errorf("path %v: expected state %s, got %s", tt.path, to, sm.Current())
			}
		}
	}
}

func TestStateMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{StateIdle, StateError},
		{StateLoadingAudio, StateLoadingAudio},
		{StatePlaying, StateLoadingAudio},
		{StatePlaying, StatePlaying},
		{StateError, StateLoadingAudio},
		{StateError, StatePlaying},
		{StateError, StateError},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		advanceTo(t, sm, tt.from)

		if sm.Transition(tt.to) {
			t.Errorf("transition %s → %s should be invalid", tt.from, tt.to)
		}
		if sm.Current() != tt.from {
			t.Errorf("state should remain %s after invalid transition, got %s", tt.from, sm.Current())
		}
	}
}

func TestStateMachine_AnyStateToIdle(t *testing.T) {
	states := []State{StateIdle, StateLoadingAudio, StatePlaying, StateError}

	for _, s := range states {
		sm := NewStateMachine()
		advanceTo(t, sm, s)

		if !sm.Transition(StateIdle) {
			t.Errorf("transition %s → Idle should always be valid", s)
		}
		if sm.Current() != StateIdle {
			t.Errorf("expected Idle, got %s", sm.Current())
		}
	}
}

func TestStateMachine_ForceIdle(t *testing.T) {
	states := []State{StateIdle, StateLoadingAudio, StatePlaying, StateError}

	for _, s := range states {
		sm := NewStateMachine()
		advanceTo(t, sm, s)

		sm.ForceIdle()
		if sm.Current() != StateIdle {
			t.Errorf("ForceIdle from %s: expected Idle, got %s", s, sm.Current())
		}
	}
}

func TestStateMachine_OnChangeCallback(t *testing.T) {
	sm := NewStateMachine()

	var calledFrom, calledTo State
	callCount := 0
	sm.SetOnChange(func(from, to State) {
		calledFrom = from
		calledTo = to
		callCount++
		// 回调中读取状态不会死锁
		if sm.Current() != to {
			t.Errorf("Current() inside callback = %s, want %s", sm.Current(), to)
		}
	})

	sm.Transition(StateLoadingAudio)
	if callCount != 1 {
		t.Fatalf("expected onChange called once, got %d", callCount)
	}
	if calledFrom != StateIdle || calledTo != StateLoadingAudio {
		t.Errorf("expected callback with Idle→LoadingAudio, got %s→%s", calledFrom, calledTo)
	}
}

func TestStateMachine_OnChangeNotCalledOnInvalidOrNoop(t *testing.T) {
	sm := NewStateMachine()

	callCount := 0
	sm.SetOnChange(func(from, to State) {
		callCount++
	})

	sm.Transition(StateError) // invalid from Idle
	sm.Transition(StateIdle)  // already Idle
	if callCount != 0 {
		t.Errorf("expected onChange not called, got %d calls", callCount)
	}
}

func TestStateMachine_ForceIdleOnChangeCallback(t *testing.T) {
	sm := NewStateMachine()
	sm.Transition(StatePlaying)

	var calledFrom, calledTo State
	callCount := 0
	sm.SetOnChange(func(from, to State) {
		calledFrom = from
		calledTo = to
		callCount++
	})

	sm.ForceIdle()
	if callCount != 1 {
		t.Fatalf("expected onChange called once on ForceIdle, got %d", callCount)
	}
	if calledFrom != StatePlaying || calledTo != StateIdle {
		t.Errorf("expected Playing→Idle, got %s→%s", calledFrom, calledTo)
	}

	sm.ForceIdle()
	if callCount != 1 {
		t.Errorf("expected no onChange when ForceIdle from Idle, got %d calls", callCount)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "Idle"},
		{StateLoadingAudio, "LoadingAudio"},
		{StatePlaying, "Playing"},
		{StateError, "Error"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

// advanceTo transitions the state machine from Idle to the target state
// through valid intermediate transitions.
func advanceTo(t *testing.T, sm *StateMachine, target State) {
	t.Helper()
	paths := map[State][]State{
		StateIdle:         nil,
		StateLoadingAudio: {StateLoadingAudio},
		StatePlaying:      {StatePlaying},
		StateError:        {StateLoadingAudio, StateError},
	}
	for _, s := range paths[target] {
		if !sm.Transition(s) {
			t.Fatalf("failed to advance to %s", s)
		}
	}
}
