package session

import (
	"context"
	"errors"
	"sync"
)

// DeletePhase is the state of a two-step delete.
type DeletePhase int

const (
	DeleteIdle DeletePhase = iota
	DeletePending
	DeleteRunning
)

func (p DeletePhase) String() string {
	switch p {
	case DeletePending:
		return "pending_confirm"
	case DeleteRunning:
		return "deleting"
	}
	return "idle"
}

// ErrDeleteInProgress is returned when a delete is requested or confirmed
// from the wrong phase.
var ErrDeleteInProgress = errors.New("another delete is in progress")

// ErrNothingToConfirm is returned by Confirm outside the pending phase.
var ErrNothingToConfirm = errors.New("no delete awaiting confirmation")

// DeleteMachine drives Idle -> PendingConfirm -> (Idle | Deleting -> Idle).
// Only the Deleting step can fail, and failure returns the machine to Idle.
type DeleteMachine struct {
	mu     sync.Mutex
	phase  DeletePhase
	target string
}

// Phase returns the current phase.
func (m *DeleteMachine) Phase() DeletePhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Target returns the id awaiting confirmation or being deleted.
func (m *DeleteMachine) Target() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Request asks to delete id. A pending request for another id is replaced.
func (m *DeleteMachine) Request(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == DeleteRunning {
		return ErrDeleteInProgress
	}
	m.phase = DeletePending
	m.target = id
	return nil
}

// Cancel abandons a pending request.
func (m *DeleteMachine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == DeletePending {
		m.phase = DeleteIdle
		m.target = ""
	}
}

// Confirm runs del for the pending id. id must match the pending target.
// The machine is Idle afterwards whether or not del succeeded.
func (m *DeleteMachine) Confirm(ctx context.Context, id string, del func(ctx context.Context, id string) error) error {
	m.mu.Lock()
	if m.phase != DeletePending || m.target != id {
		m.mu.Unlock()
		return ErrNothingToConfirm
	}
	m.phase = DeleteRunning
	m.mu.Unlock()

	err := del(ctx, id)

	m.mu.Lock()
	m.phase = DeleteIdle
	m.target = ""
	m.mu.Unlock()
	return err
}
