package session

import (
	"sync"

	"github.com/hpungsan/ccpro/internal/budget"
	"github.com/hpungsan/ccpro/internal/catalog"
)

// Session is one live session: its state store plus pending deletes.
type Session struct {
	ID    string
	Store *Store

	mu      sync.Mutex
	deletes map[string]*DeleteMachine

	// budgetMu serializes read-modify-write cycles on the budget.
	budgetMu sync.Mutex
}

// Deletes returns the delete machine for a collection.
func (s *Session) Deletes(collection string) *DeleteMachine {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.deletes[collection]
	if !ok {
		m = &DeleteMachine{}
		s.deletes[collection] = m
	}
	return m
}

// Manager keeps live sessions in memory and mirrors the durable parts of
// their state (principal and budget) into the scratch store.
type Manager struct {
	scratch *Scratch

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager backed by scratch.
func NewManager(scratch *Scratch) *Manager {
	return &Manager{scratch: scratch, sessions: make(map[string]*Session)}
}

// Scratch returns the backing scratch store.
func (m *Manager) Scratch() *Scratch {
	return m.scratch
}

// Get returns the live session for id, restoring it from the scratch store
// on first access.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}

	initial := State{Budget: m.scratch.LoadBudget(id)}
	if p, err := m.scratch.LoadPrincipal(id); err == nil && p != nil {
		initial.Principal = p
	}
	s := &Session{ID: id, Store: NewStore(initial), deletes: make(map[string]*DeleteMachine)}
	m.sessions[id] = s
	return s
}

// SignIn records the principal for a session.
func (m *Manager) SignIn(s *Session, p catalog.Principal) error {
	if err := m.scratch.SavePrincipal(s.ID, p); err != nil {
		return err
	}
	s.Store.Dispatch(SignedIn{Principal: p})
	return nil
}

// SignOut clears the principal of a session.
func (m *Manager) SignOut(s *Session) error {
	if err := m.scratch.Delete(s.ID, KeyPrincipal); err != nil {
		return err
	}
	s.Store.Dispatch(SignedOut{})
	return nil
}

// SetBudget persists items and then publishes them to the session state.
func (m *Manager) SetBudget(s *Session, items []budget.LineItem) error {
	if err := m.scratch.SaveBudget(s.ID, items); err != nil {
		return err
	}
	s.Store.Dispatch(BudgetChanged{Items: items})
	return nil
}

// Forget drops a session from memory and the scratch store.
func (m *Manager) Forget(id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return m.scratch.DropSession(id)
}

// LoadBudget returns the live budget of session id.
func (m *Manager) LoadBudget(id string) []budget.LineItem {
	return m.Get(id).Store.State().Budget
}

// SaveBudget replaces the budget of session id. See SetBudget.
func (m *Manager) SaveBudget(id string, items []budget.LineItem) error {
	s := m.Get(id)
	s.budgetMu.Lock()
	defer s.budgetMu.Unlock()
	return m.SetBudget(s, items)
}

// UpdateBudget applies fn to the live budget of session id and persists the
// result. Concurrent updates of one session run one at a time.
func (m *Manager) UpdateBudget(id string, fn func([]budget.LineItem) ([]budget.LineItem, error)) ([]budget.LineItem, error) {
	s := m.Get(id)
	s.budgetMu.Lock()
	defer s.budgetMu.Unlock()

	updated, err := fn(s.Store.State().Budget)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = []budget.LineItem{}
	}
	if err := m.SetBudget(s, updated); err != nil {
		return nil, err
	}
	return updated, nil
}
