// Package validation sequences phone edits into at most one reachability
// check per distinct number and gates form submission on a confirmed number.
//
// Edits arrive from the UI in order; check results arrive in completion
// order, which may differ. Every state-invalidating action bumps a
// generation counter, and a completion is applied only while its generation
// is still current — a stale result is discarded without any transition, so
// an out-of-order completion can never confirm or reject a newer number.
package validation

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/meunomeok/leadtrack/internal/phone"
	"github.com/meunomeok/leadtrack/pkg/whatsapp"
)

// State is the machine's current position.
type State string

const (
	StateIdle       State = "idle"
	StateIncomplete State = "incomplete"
	StateValidating State = "validating"
	StateConfirmed  State = "confirmed"
	StateRejected   State = "rejected"
)

// Status messages shown next to the phone field.
const (
	msgIncomplete = "Informe seu WhatsApp com 11 dígitos (DDD + número)."
	msgValidating = "Validando WhatsApp..."
	msgConfirmed  = "WhatsApp válido! Já podemos prosseguir."
	msgRejected   = "Não encontramos WhatsApp nesse número. Informe outro com WhatsApp ativo."
)

// Snapshot is the externally visible machine state after a transition.
type Snapshot struct {
	State     State
	Message   string
	CanSubmit bool
}

// Options configures a Machine.
type Options struct {
	// RequiredDigits is the full national number length. Zero means the
	// package default.
	RequiredDigits int
	// OnTransition, when set, observes every state change. Presentation
	// plumbing: it drives the submit gate and the status region.
	OnTransition func(Snapshot)
	// OnRejected, when set, receives the provider response of each
	// rejection so a diagnostic event can be dispatched.
	OnRejected func(raw json.RawMessage)
}

// Machine is safe for concurrent use; edits and completions serialize on one
// mutex and the generation counter arbitrates between them.
type Machine struct {
	checker whatsapp.Checker
	opts    Options

	mu         sync.Mutex
	generation uint64
	state      State
	message    string
	current    string // digits currently displayed
	pending    string // digits of the in-flight check, "" when none
	inFlight   bool
	confirmed  string // last confirmed digits, "" when none
}

// NewMachine creates an idle machine over the given checker.
func NewMachine(checker whatsapp.Checker, opts Options) *Machine {
	if opts.RequiredDigits <= 0 {
		opts.RequiredDigits = phone.NationalDigits
	}
	return &Machine{checker: checker, opts: opts, state: StateIdle}
}

// Input feeds one edit of the raw phone field into the machine.
func (m *Machine) Input(ctx context.Context, raw string) {
	digits := phone.Sanitize(raw)

	m.mu.Lock()
	m.current = digits

	if len(digits) < m.opts.RequiredDigits {
		m.invalidateLocked()
		if len(digits) == 0 {
			m.state = StateIdle
			m.message = ""
		} else {
			m.state = StateIncomplete
			m.message = msgIncomplete
		}
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		return
	}

	// Full-length number. An unchanged confirmed number short-circuits
	// without a new check.
	if m.confirmed != "" && digits == m.confirmed {
		m.state = StateConfirmed
		m.message = msgConfirmed
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		return
	}

	// Already checking this exact number: no duplicate call.
	if m.inFlight && m.pending == digits {
		m.mu.Unlock()
		return
	}

	m.generation++
	gen := m.generation
	m.inFlight = true
	m.pending = digits
	m.confirmed = ""
	m.state = StateValidating
	m.message = msgValidating
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	go m.check(ctx, gen, digits)
}

func (m *Machine) check(ctx context.Context, gen uint64, digits string) {
	verdict := m.checker.Check(ctx, digits)

	m.mu.Lock()
	if gen != m.generation {
		// Superseded by a later edit; the result is dropped whole.
		m.mu.Unlock()
		return
	}
	m.inFlight = false
	m.pending = ""

	if verdict.OK {
		m.state = StateConfirmed
		m.confirmed = digits
		m.message = msgConfirmed
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		return
	}

	m.state = StateRejected
	m.confirmed = ""
	if verdict.Message != "" {
		m.message = verdict.Message
	} else {
		m.message = msgRejected
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	if m.opts.OnRejected != nil {
		m.opts.OnRejected(verdict.Raw)
	}
}

// invalidateLocked clears confirmation and discards any in-flight result.
func (m *Machine) invalidateLocked() {
	m.generation++
	m.inFlight = false
	m.pending = ""
	m.confirmed = ""
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		State:     m.state,
		Message:   m.message,
		CanSubmit: m.state == StateConfirmed && m.confirmed != "" && m.confirmed == m.current,
	}
}

func (m *Machine) notify(snap Snapshot) {
	if m.opts.OnTransition != nil {
		m.opts.OnTransition(snap)
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StatusMessage returns the current user-facing status line.
func (m *Machine) StatusMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.message
}

// CanSubmit reports whether submission is permitted: confirmed, and the
// confirmed number still matches what the field shows.
func (m *Machine) CanSubmit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked().CanSubmit
}

// ConfirmedNumber returns the confirmed digits, or "" when unconfirmed.
func (m *Machine) ConfirmedNumber() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmed
}

// Reset returns the machine to idle, discarding any in-flight result.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.invalidateLocked()
	m.state = StateIdle
	m.message = ""
	m.current = ""
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
}
