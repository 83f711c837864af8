package session

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ccpro/internal/budget"
	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/search"
)

func openScratch(t *testing.T) *Scratch {
	t.Helper()
	s, err := OpenScratch(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func lineItems() []budget.LineItem {
	return []budget.LineItem{
		{Name: "Plan Premium - Mensual", UnitPrice: decimal.NewFromInt(5000), Quantity: 1, SourceID: "p1", PlanName: "Mensual"},
		{Name: "Instalación", UnitPrice: decimal.RequireFromString("1500.50"), Quantity: 2},
	}
}

func TestNewID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, NewID())
}

func TestScratch_GetSetDelete(t *testing.T) {
	s := openScratch(t)

	_, ok, err := s.Get("s1", "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("s1", "k", "v"))
	v, ok, err := s.Get("s1", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, err = s.Get("s2", "k")
	require.NoError(t, err)
	assert.False(t, ok, "keys are scoped by session")

	require.NoError(t, s.Delete("s1", "k"))
	_, ok, _ = s.Get("s1", "k")
	assert.False(t, ok)

	require.NoError(t, s.Delete("missing", "k"))
}

func TestScratch_BudgetRoundTrip(t *testing.T) {
	s := openScratch(t)

	assert.Empty(t, s.LoadBudget("s1"))

	require.NoError(t, s.SaveBudget("s1", lineItems()))
	got := s.LoadBudget("s1")
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].SourceID)
	assert.True(t, got[1].UnitPrice.Equal(decimal.RequireFromString("1500.5")))
	assert.Equal(t, "8001", budget.Total(got).String())
}

func TestScratch_MalformedBudgetIsEmpty(t *testing.T) {
	s := openScratch(t)

	require.NoError(t, s.Set("s1", KeyBudget, "{not json"))
	got := s.LoadBudget("s1")
	assert.NotNil(t, got)
	assert.Empty(t, got)

	require.NoError(t, s.Set("s1", KeyBudget, "null"))
	assert.NotNil(t, s.LoadBudget("s1"))
}

func TestScratch_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenScratch(dir)
	require.NoError(t, err)
	require.NoError(t, s.SaveBudget("s1", lineItems()))
	require.NoError(t, s.Close())

	s, err = OpenScratch(dir)
	require.NoError(t, err)
	defer s.Close()
	assert.Len(t, s.LoadBudget("s1"), 2)
}

func TestScratch_Principal(t *testing.T) {
	s := openScratch(t)

	p, err := s.LoadPrincipal("s1")
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, s.SavePrincipal("s1", catalog.Principal{ID: "u1", Email: "a@x.com"}))
	p, err = s.LoadPrincipal("s1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.ID)
}

func TestScratch_CurrentSession(t *testing.T) {
	s := openScratch(t)

	id, err := s.CurrentSession()
	require.NoError(t, err)
	again, err := s.CurrentSession()
	require.NoError(t, err)
	assert.Equal(t, id, again)

	require.NoError(t, s.Set(id, "k", "v"))
	require.NoError(t, s.ResetCurrentSession())

	fresh, err := s.CurrentSession()
	require.NoError(t, err)
	assert.NotEqual(t, id, fresh)
	_, ok, _ := s.Get(id, "k")
	assert.False(t, ok)
}

func TestStore_SignInOut(t *testing.T) {
	st := NewStore(State{})
	assert.Equal(t, TabSearch, st.State().Tab)
	assert.False(t, st.State().SignedIn())

	st.Dispatch(BudgetChanged{Items: lineItems()})
	st.Dispatch(TabChanged{Tab: TabNotes})
	s := st.Dispatch(SignedIn{Principal: catalog.Principal{ID: "u1"}})
	assert.True(t, s.SignedIn())
	assert.Equal(t, TabSearch, s.Tab)

	s = st.Dispatch(SignedOut{})
	assert.False(t, s.SignedIn())
	assert.Len(t, s.Budget, 2, "budget belongs to the session")
}

func TestStore_StaleSearchResultsDropped(t *testing.T) {
	st := NewStore(State{})
	first := []search.Bucket[catalog.Promotion]{{Kind: "plan"}}
	second := []search.Bucket[catalog.Promotion]{{Kind: "text"}}

	st.Dispatch(SearchStarted{Gen: 1, Query: "pla"})
	st.Dispatch(SearchStarted{Gen: 2, Query: "plan"})

	s := st.Dispatch(SearchResolved{Gen: 1, Results: first})
	assert.Nil(t, s.Results)
	assert.True(t, s.Searching)

	s = st.Dispatch(SearchResolved{Gen: 2, Results: second})
	assert.Equal(t, second, s.Results)
	assert.False(t, s.Searching)
	assert.Equal(t, "plan", s.Query)

	// A late start for an older generation does not rewind the query.
	s = st.Dispatch(SearchStarted{Gen: 1, Query: "pla"})
	assert.Equal(t, "plan", s.Query)
}

func TestStore_SearchFailed(t *testing.T) {
	st := NewStore(State{})
	st.Dispatch(SearchStarted{Gen: 3, Query: "x"})

	s := st.Dispatch(SearchFailed{Gen: 2, Err: stderrors.New("old")})
	assert.Nil(t, s.Notice)

	s = st.Dispatch(SearchFailed{Gen: 3, Err: stderrors.New("offline")})
	require.NotNil(t, s.Notice)
	assert.Equal(t, NoticeError, s.Notice.Level)
	assert.False(t, s.Searching)

	s = st.Dispatch(NoticeDismissed{})
	assert.Nil(t, s.Notice)
}

func TestStore_Subscribe(t *testing.T) {
	st := NewStore(State{})
	ch, unsubscribe := st.Subscribe()

	st.Dispatch(Notified{Notice: Notice{Level: NoticeInfo, Message: "one"}})
	st.Dispatch(Notified{Notice: Notice{Level: NoticeInfo, Message: "two"}})

	select {
	case s := <-ch:
		assert.Equal(t, "two", s.Notice.Message, "only the latest state is kept")
	case <-time.After(time.Second):
		t.Fatal("no state received")
	}

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	// Dispatch after unsubscribe must not block or panic.
	st.Dispatch(NoticeDismissed{})
}

func TestDeleteMachine_ConfirmSuccess(t *testing.T) {
	var m DeleteMachine
	assert.Equal(t, DeleteIdle, m.Phase())

	require.NoError(t, m.Request("n1"))
	assert.Equal(t, DeletePending, m.Phase())
	assert.Equal(t, "n1", m.Target())

	var deleted string
	err := m.Confirm(context.Background(), "n1", func(_ context.Context, id string) error {
		assert.Equal(t, DeleteRunning, m.Phase())
		deleted = id
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "n1", deleted)
	assert.Equal(t, DeleteIdle, m.Phase())
}

func TestDeleteMachine_Cancel(t *testing.T) {
	var m DeleteMachine
	require.NoError(t, m.Request("n1"))
	m.Cancel()
	assert.Equal(t, DeleteIdle, m.Phase())
	assert.Empty(t, m.Target())

	err := m.Confirm(context.Background(), "n1", func(context.Context, string) error {
		t.Fatal("delete must not run after cancel")
		return nil
	})
	assert.ErrorIs(t, err, ErrNothingToConfirm)
}

func TestDeleteMachine_FailureRevertsToIdle(t *testing.T) {
	var m DeleteMachine
	require.NoError(t, m.Request("n1"))

	boom := stderrors.New("unavailable")
	err := m.Confirm(context.Background(), "n1", func(context.Context, string) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, DeleteIdle, m.Phase())
}

func TestDeleteMachine_ConfirmWrongTarget(t *testing.T) {
	var m DeleteMachine
	require.NoError(t, m.Request("n1"))

	err := m.Confirm(context.Background(), "n2", func(context.Context, string) error { return nil })
	assert.ErrorIs(t, err, ErrNothingToConfirm)
	assert.Equal(t, DeletePending, m.Phase())
}

func TestDeleteMachine_RequestWhileDeleting(t *testing.T) {
	var m DeleteMachine
	require.NoError(t, m.Request("n1"))

	err := m.Confirm(context.Background(), "n1", func(context.Context, string) error {
		assert.ErrorIs(t, m.Request("n2"), ErrDeleteInProgress)
		return nil
	})
	require.NoError(t, err)
}

func TestDeletePhase_String(t *testing.T) {
	assert.Equal(t, "idle", DeleteIdle.String())
	assert.Equal(t, "pending_confirm", DeletePending.String())
	assert.Equal(t, "deleting", DeleteRunning.String())
}

func TestManager_RestoresFromScratch(t *testing.T) {
	scratch := openScratch(t)
	m := NewManager(scratch)

	s := m.Get("web-1")
	require.NoError(t, m.SignIn(s, catalog.Principal{ID: "u1", Email: "a@x.com"}))
	require.NoError(t, m.SetBudget(s, lineItems()))
	assert.Same(t, s, m.Get("web-1"))

	// A fresh manager over the same scratch store sees the persisted state.
	restored := NewManager(scratch).Get("web-1")
	state := restored.Store.State()
	require.NotNil(t, state.Principal)
	assert.Equal(t, "u1", state.Principal.ID)
	assert.Len(t, state.Budget, 2)

	require.NoError(t, m.SignOut(s))
	assert.False(t, s.Store.State().SignedIn())
	p, err := scratch.LoadPrincipal("web-1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestManager_DeletesPerCollection(t *testing.T) {
	m := NewManager(openScratch(t))
	s := m.Get("web-1")

	assert.Same(t, s.Deletes("notes"), s.Deletes("notes"))
	assert.NotSame(t, s.Deletes("notes"), s.Deletes("budgets"))
}

func TestManager_Forget(t *testing.T) {
	scratch := openScratch(t)
	m := NewManager(scratch)
	s := m.Get("web-1")
	require.NoError(t, m.SetBudget(s, lineItems()))

	require.NoError(t, m.Forget("web-1"))
	assert.Empty(t, scratch.LoadBudget("web-1"))
	assert.NotSame(t, s, m.Get("web-1"))
}

func TestScratch_UpdateBudget(t *testing.T) {
	s := openScratch(t)
	require.NoError(t, s.SaveBudget("a", lineItems()))

	got, err := s.UpdateBudget("a", func(items []budget.LineItem) ([]budget.LineItem, error) {
		return items[:1], nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, s.LoadBudget("a"), 1)

	boom := stderrors.New("boom")
	_, err = s.UpdateBudget("a", func([]budget.LineItem) ([]budget.LineItem, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.LoadBudget("a"), 1, "failed update leaves the budget as it was")
}

func TestManager_UpdateBudget(t *testing.T) {
	scratch := openScratch(t)
	m := NewManager(scratch)

	got, err := m.UpdateBudget("web-3", func(items []budget.LineItem) ([]budget.LineItem, error) {
		assert.Empty(t, items)
		return lineItems(), nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, m.Get("web-3").Store.State().Budget, 2)
	assert.Len(t, scratch.LoadBudget("web-3"), 2)

	_, err = m.UpdateBudget("web-3", func([]budget.LineItem) ([]budget.LineItem, error) {
		return nil, budget.ErrIndexOutOfRange
	})
	assert.ErrorIs(t, err, budget.ErrIndexOutOfRange)
	assert.Len(t, m.LoadBudget("web-3"), 2)
}

func TestManager_BudgetStore(t *testing.T) {
	scratch := openScratch(t)
	m := NewManager(scratch)

	assert.Empty(t, m.LoadBudget("web-2"))
	require.NoError(t, m.SaveBudget("web-2", lineItems()))

	assert.Len(t, m.LoadBudget("web-2"), 2)
	assert.Len(t, m.Get("web-2").Store.State().Budget, 2)
	assert.Len(t, scratch.LoadBudget("web-2"), 2)
}
