// Package sm is a small declarative state-machine harness: a table of
// states with allowed-transition bitsets, an invariant predicate checked
// after every move, and initial/final flags.
//
// It generalizes the teacher's router dispatch table (one map entry per
// named state, validated up front) into a table that also encodes legal
// transitions between states and a caller-supplied invariant.
package sm

import (
	"fmt"

	"github.com/rs/zerolog"
)

// State identifies one row of a Table. Callers define their own typed
// constants (see internal/pool's plannerState) starting at 0.
type State int

// Flag marks a state as initial, final, or neither.
type Flag uint8

const (
	// Initial marks the state sm_init must start from.
	Initial Flag = 1 << iota
	// Final marks a state from which no further Move is allowed.
	Final
)

// Conf describes one state: its display name, its flags, and the set of
// states Move may transition to from it.
type Conf struct {
	Name    string
	Flags   Flag
	Allowed Bits
}

// Bits is a transition bitset; Bit(s) sets the bit for state s.
type Bits uint64

// Bit returns the bitset containing exactly state s.
func Bit(s State) Bits { return Bits(1) << uint(s) }

// Has reports whether s is a member of b.
func (b Bits) Has(s State) bool { return b&Bit(s) != 0 }

// Invariant is evaluated with the machine and the state it just left,
// after every successful Move. A false return is treated as a violation
// of the state machine's contract and is always a programmer error, not a
// runtime condition to recover from — callers should treat a violation as
// fatal, mirroring the source's use of assertions for SM invariants.
type Invariant func(m *Machine, prev State) bool

// Table maps a State to its Conf; states unused by a machine may be left
// at their zero Conf.
type Table map[State]Conf

// Machine is one instance of a state table plus its current state.
type Machine struct {
	table     Table
	state     State
	invariant Invariant
	log       zerolog.Logger
}

// Init constructs a Machine starting at initial. initial must carry the
// Initial flag in table. The machine logs nothing until WithLogger
// attaches a logger.
func Init(table Table, invariant Invariant, initial State) *Machine {
	conf, ok := table[initial]
	if !ok || conf.Flags&Initial == 0 {
		panic(fmt.Sprintf("sm: state %d is not a valid initial state", initial))
	}
	return &Machine{table: table, state: initial, invariant: invariant, log: zerolog.Nop()}
}

// WithLogger attaches log so a Move invariant violation is logged at
// .Fatal() immediately before the panic that follows it. Returns m for
// chaining at construction time.
func (m *Machine) WithLogger(log zerolog.Logger) *Machine {
	m.log = log
	return m
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// Name returns the current state's configured name, or "?" if unset.
func (m *Machine) Name() string {
	if conf, ok := m.table[m.state]; ok && conf.Name != "" {
		return conf.Name
	}
	return "?"
}

// Move transitions the machine to "to", after checking that the current
// state allows it and that the configured invariant holds afterward. Both
// a disallowed transition and a failed invariant panic: per the source
// this spec generalizes, "SM invariant violations" are always fatal —
// there is no return-code path for them.
func (m *Machine) Move(to State) {
	cur, ok := m.table[m.state]
	if !ok {
		msg := fmt.Sprintf("sm: unknown current state %d", m.state)
		m.log.Fatal().Msg(msg)
		panic(msg)
	}
	if cur.Flags&Final != 0 {
		msg := fmt.Sprintf("sm: machine in final state %q cannot move", cur.Name)
		m.log.Fatal().Msg(msg)
		panic(msg)
	}
	if !cur.Allowed.Has(to) {
		msg := fmt.Sprintf("sm: illegal transition %q -> %d", cur.Name, to)
		m.log.Fatal().Msg(msg)
		panic(msg)
	}
	prev := m.state
	m.state = to
	if m.invariant != nil && !m.invariant(m, prev) {
		msg := fmt.Sprintf("sm: invariant violated after %q -> %q", m.table[prev].Name, m.Name())
		m.log.Fatal().Msg(msg)
		panic(msg)
	}
}

// Final reports whether the current state is marked Final.
func (m *Machine) Final() bool {
	return m.table[m.state].Flags&Final != 0
}
