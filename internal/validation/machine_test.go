package validation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meunomeok/leadtrack/pkg/whatsapp"
)

// stepChecker hands out one pre-programmed verdict per call and can hold a
// call open until released, which lets tests interleave edits with slow
// completions.
type stepChecker struct {
	mu       sync.Mutex
	verdicts []whatsapp.Verdict
	gates    []chan struct{}
	calls    []string
}

func (c *stepChecker) expect(v whatsapp.Verdict) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	gate := make(chan struct{})
	c.verdicts = append(c.verdicts, v)
	c.gates = append(c.gates, gate)
	return gate
}

func (c *stepChecker) Check(_ context.Context, number string) whatsapp.Verdict {
	c.mu.Lock()
	i := len(c.calls)
	c.calls = append(c.calls, number)
	var v whatsapp.Verdict
	var gate chan struct{}
	if i < len(c.verdicts) {
		v = c.verdicts[i]
		gate = c.gates[i]
	}
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return v
}

func (c *stepChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

const (
	numberA = "11987654321"
	numberB = "11912345678"
)

func waitState(t *testing.T, m *Machine, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, time.Second, time.Millisecond)
}

func TestMachine_ConfirmFlow(t *testing.T) {
	t.Parallel()

	c := &stepChecker{}
	close(c.expect(whatsapp.Verdict{OK: true}))

	m := NewMachine(c, Options{})
	assert.Equal(t, StateIdle, m.State())

	m.Input(context.Background(), "(11) 98765-4321")
	waitState(t, m, StateConfirmed)

	assert.True(t, m.CanSubmit())
	assert.Equal(t, numberA, m.ConfirmedNumber())
	assert.Equal(t, msgConfirmed, m.StatusMessage())
}

func TestMachine_IncompleteAndIdle(t *testing.T) {
	t.Parallel()

	m := NewMachine(&stepChecker{}, Options{})

	m.Input(context.Background(), "119")
	assert.Equal(t, StateIncomplete, m.State())
	assert.Equal(t, msgIncomplete, m.StatusMessage())
	assert.False(t, m.CanSubmit())

	m.Input(context.Background(), "")
	assert.Equal(t, StateIdle, m.State())
	assert.Empty(t, m.StatusMessage())
}

func TestMachine_Rejection(t *testing.T) {
	t.Parallel()

	c := &stepChecker{}
	close(c.expect(whatsapp.Verdict{OK: false, Message: "sem WhatsApp", Raw: json.RawMessage(`{"exists":false}`)}))

	var rejectedRaw json.RawMessage
	var mu sync.Mutex
	m := NewMachine(c, Options{OnRejected: func(raw json.RawMessage) {
		mu.Lock()
		rejectedRaw = raw
		mu.Unlock()
	}})

	m.Input(context.Background(), numberA)
	waitState(t, m, StateRejected)

	assert.False(t, m.CanSubmit())
	assert.Equal(t, "sem WhatsApp", m.StatusMessage())
	assert.Empty(t, m.ConfirmedNumber())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return rejectedRaw != nil
	}, time.Second, time.Millisecond)
}

func TestMachine_StaleResultDiscarded(t *testing.T) {
	t.Parallel()

	c := &stepChecker{}
	gateA := c.expect(whatsapp.Verdict{OK: true}) // slow check for number A
	close(c.expect(whatsapp.Verdict{OK: false, Message: "sem WhatsApp"}))

	rejections := 0
	m := NewMachine(c, Options{OnRejected: func(json.RawMessage) { rejections++ }})

	// Start checking A, then edit to B before A's result lands.
	m.Input(context.Background(), numberA)
	assert.Equal(t, StateValidating, m.State())
	m.Input(context.Background(), numberB)

	// A's (positive!) result arrives late and must not confirm B.
	close(gateA)
	waitState(t, m, StateRejected)

	assert.False(t, m.CanSubmit())
	assert.Empty(t, m.ConfirmedNumber())
	assert.Equal(t, 2, c.callCount())
}

func TestMachine_EditBelowLengthDiscardsInFlight(t *testing.T) {
	t.Parallel()

	c := &stepChecker{}
	gate := c.expect(whatsapp.Verdict{OK: true})

	m := NewMachine(c, Options{})
	m.Input(context.Background(), numberA)
	m.Input(context.Background(), numberA[:10]) // user deleted a digit

	assert.Equal(t, StateIncomplete, m.State())

	close(gate)
	// The stale confirmation never lands.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIncomplete, m.State())
	assert.False(t, m.CanSubmit())
}

func TestMachine_DeduplicatesInFlightNumber(t *testing.T) {
	t.Parallel()

	c := &stepChecker{}
	gate := c.expect(whatsapp.Verdict{OK: true})

	m := NewMachine(c, Options{})
	m.Input(context.Background(), numberA)
	m.Input(context.Background(), numberA) // same number while validating
	m.Input(context.Background(), numberA)

	close(gate)
	waitState(t, m, StateConfirmed)
	assert.Equal(t, 1, c.callCount())
}

func TestMachine_ConfirmedNumberShortCircuits(t *testing.T) {
	t.Parallel()

	c := &stepChecker{}
	close(c.expect(whatsapp.Verdict{OK: true}))

	m := NewMachine(c, Options{})
	m.Input(context.Background(), numberA)
	waitState(t, m, StateConfirmed)

	// Re-entering the same number issues no new call.
	m.Input(context.Background(), numberA)
	assert.Equal(t, StateConfirmed, m.State())
	assert.True(t, m.CanSubmit())
	assert.Equal(t, 1, c.callCount())
}

func TestMachine_EditAfterConfirmationInvalidates(t *testing.T) {
	t.Parallel()

	c := &stepChecker{}
	close(c.expect(whatsapp.Verdict{OK: true}))

	m := NewMachine(c, Options{})
	m.Input(context.Background(), numberA)
	waitState(t, m, StateConfirmed)

	m.Input(context.Background(), numberA[:10])
	assert.Equal(t, StateIncomplete, m.State())
	assert.False(t, m.CanSubmit())
	assert.Empty(t, m.ConfirmedNumber())
}

func TestMachine_TransitionHookDrivesSubmitGate(t *testing.T) {
	t.Parallel()

	c := &stepChecker{}
	close(c.expect(whatsapp.Verdict{OK: true}))

	var mu sync.Mutex
	var gates []bool
	m := NewMachine(c, Options{OnTransition: func(s Snapshot) {
		mu.Lock()
		gates = append(gates, s.CanSubmit)
		mu.Unlock()
	}})

	m.Input(context.Background(), numberA)
	waitState(t, m, StateConfirmed)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, gates)
	assert.False(t, gates[0])             // validating
	assert.True(t, gates[len(gates)-1])   // confirmed
}

func TestMachine_Reset(t *testing.T) {
	t.Parallel()

	c := &stepChecker{}
	close(c.expect(whatsapp.Verdict{OK: true}))

	m := NewMachine(c, Options{})
	m.Input(context.Background(), numberA)
	waitState(t, m, StateConfirmed)

	m.Reset()
	assert.Equal(t, StateIdle, m.State())
	assert.False(t, m.CanSubmit())
}
