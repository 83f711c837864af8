package session

import (
	"sync"

	"github.com/hpungsan/ccpro/internal/budget"
	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/search"
)

// Tab is the active section of the UI.
type Tab string

const (
	TabSearch Tab = "search"
	TabNotes  Tab = "notes"
	TabBudget Tab = "budget"
	TabAdmin  Tab = "admin"
)

// Notice levels.
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
	NoticeInfo    = "info"
)

// Notice is a dismissible message shown to the user.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// State is the application state of one session. It is only changed through
// Store.Dispatch.
type State struct {
	Principal *catalog.Principal
	Tab       Tab
	Query     string
	SearchGen uint64
	Searching bool
	Results   []search.Bucket[catalog.Promotion]
	Budget    []budget.LineItem
	Notice    *Notice
}

// SignedIn returns whether a principal is present.
func (s State) SignedIn() bool {
	return s.Principal != nil
}

// Action is a state transition.
type Action interface {
	apply(State) State
}

// SignedIn records a successful sign-in.
type SignedIn struct{ Principal catalog.Principal }

func (a SignedIn) apply(s State) State {
	p := a.Principal
	s.Principal = &p
	s.Tab = TabSearch
	return s
}

// SignedOut clears the principal and everything derived from it.
// The budget survives; it belongs to the session, not the user.
type SignedOut struct{}

func (SignedOut) apply(s State) State {
	return State{Tab: TabSearch, Budget: s.Budget}
}

// TabChanged switches the active section.
type TabChanged struct{ Tab Tab }

func (a TabChanged) apply(s State) State {
	s.Tab = a.Tab
	return s
}

// SearchStarted marks a search in flight. Gen supersedes earlier searches.
type SearchStarted struct {
	Gen   uint64
	Query string
}

func (a SearchStarted) apply(s State) State {
	if a.Gen < s.SearchGen {
		return s
	}
	s.SearchGen = a.Gen
	s.Query = a.Query
	s.Searching = true
	return s
}

// SearchResolved delivers results. Results of a superseded search are dropped.
type SearchResolved struct {
	Gen     uint64
	Results []search.Bucket[catalog.Promotion]
}

func (a SearchResolved) apply(s State) State {
	if a.Gen != s.SearchGen {
		return s
	}
	s.Results = a.Results
	s.Searching = false
	return s
}

// SearchFailed ends a search with an error notice. Stale failures are dropped.
type SearchFailed struct {
	Gen uint64
	Err error
}

func (a SearchFailed) apply(s State) State {
	if a.Gen != s.SearchGen {
		return s
	}
	s.Searching = false
	s.Notice = &Notice{Level: NoticeError, Message: a.Err.Error()}
	return s
}

// BudgetChanged replaces the budget.
type BudgetChanged struct{ Items []budget.LineItem }

func (a BudgetChanged) apply(s State) State {
	s.Budget = a.Items
	return s
}

// Notified shows a notice, replacing any current one.
type Notified struct{ Notice Notice }

func (a Notified) apply(s State) State {
	n := a.Notice
	s.Notice = &n
	return s
}

// NoticeDismissed clears the notice.
type NoticeDismissed struct{}

func (NoticeDismissed) apply(s State) State {
	s.Notice = nil
	return s
}

// Store serializes state transitions and fans out new states to subscribers.
type Store struct {
	mu    sync.Mutex
	state State
	subs  map[int]chan State
	next  int
}

// NewStore creates a store holding initial.
func NewStore(initial State) *Store {
	if initial.Tab == "" {
		initial.Tab = TabSearch
	}
	if initial.Budget == nil {
		initial.Budget = []budget.LineItem{}
	}
	return &Store{state: initial, subs: make(map[int]chan State)}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a and returns the resulting state.
// Subscribers receive the latest state; a slow subscriber only misses
// intermediate states.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = a.apply(s.state)
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.state
	}
	return s.state
}

// Subscribe returns a channel receiving states after each dispatch and a
// function that ends the subscription.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan State, 1)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}
