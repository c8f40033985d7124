package sm

import "testing"

const (
	stateA State = iota
	stateB
	stateC
)

func testTable() Table {
	return Table{
		stateA: {Name: "a", Flags: Initial, Allowed: Bit(stateB)},
		stateB: {Name: "b", Allowed: Bit(stateA) | Bit(stateC)},
		stateC: {Name: "c", Flags: Final},
	}
}

func TestInitRequiresInitialFlag(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic initializing from a non-initial state")
		}
	}()
	Init(testTable(), nil, stateB)
}

func TestMoveFollowsAllowedTransitions(t *testing.T) {
	m := Init(testTable(), nil, stateA)
	m.Move(stateB)
	if m.State() != stateB {
		t.Fatalf("got state %d, want %d", m.State(), stateB)
	}
	m.Move(stateC)
	if !m.Final() {
		t.Fatal("expected final state after moving to stateC")
	}
}

func TestMoveRejectsDisallowedTransition(t *testing.T) {
	m := Init(testTable(), nil, stateA)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on disallowed transition a -> c")
		}
	}()
	m.Move(stateC)
}

func TestMoveFromFinalPanics(t *testing.T) {
	m := Init(testTable(), nil, stateA)
	m.Move(stateB)
	m.Move(stateC)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic moving out of a final state")
		}
	}()
	m.Move(stateA)
}

func TestInvariantViolationPanics(t *testing.T) {
	alwaysFalse := func(m *Machine, prev State) bool { return false }
	m := Init(testTable(), alwaysFalse, stateA)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when invariant returns false")
		}
	}()
	m.Move(stateB)
}

func TestInvariantSeesPreviousState(t *testing.T) {
	var seenPrev State = -1
	capture := func(m *Machine, prev State) bool {
		seenPrev = prev
		return true
	}
	m := Init(testTable(), capture, stateA)
	m.Move(stateB)
	if seenPrev != stateA {
		t.Fatalf("invariant saw prev=%d, want %d", seenPrev, stateA)
	}
}
