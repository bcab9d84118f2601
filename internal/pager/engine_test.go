package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusty-ci/rusty-tui/internal/metrics"
	"github.com/rusty-ci/rusty-tui/internal/model"
)

type item struct {
	ID string
}

// fakeServer serves numbered items for a filter; total is fixed per test.
type fakeServer struct {
	mu    sync.Mutex
	total int
	size  int
	calls []Query
	fail  error
	shift int // simulated inserts ahead of the cursor
}

func (s *fakeServer) fetch(_ context.Context, q Query) (model.Page[item], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, q)
	if s.fail != nil {
		return model.Page[item]{}, s.fail
	}
	start := (q.Page-1)*s.size - s.shift
	if start < 0 {
		start = 0
	}
	var entries []item
	for i := start; i < start+s.size && i < s.total; i++ {
		entries = append(entries, item{ID: fmt.Sprintf("%s%s-%d", q.Scope, q.Filter, i)})
	}
	return model.Page[item]{Total: s.total, Number: q.Page, Size: s.size, Entries: entries}, nil
}

func run[T any](t *testing.T, e *Engine[T], req Request) (bool, error) {
	t.Helper()
	return e.Apply(e.Execute(context.Background(), req))
}

func TestInitialLoadReplacesEntries(t *testing.T) {
	srv := &fakeServer{total: 45, size: 20}
	e := New("items", srv.fetch)

	req, ok := e.SetFilterOrScope("", "")
	require.True(t, ok)
	assert.Equal(t, 1, req.Page)
	assert.True(t, req.Replace)
	assert.True(t, e.State().InFlight)

	applied, err := run(t, e, req)
	require.NoError(t, err)
	require.True(t, applied)

	st := e.State()
	assert.Equal(t, 45, st.Total)
	assert.Equal(t, 1, st.Page)
	assert.Equal(t, 20, st.Entries)
	assert.False(t, st.InFlight)
	assert.True(t, st.Loaded)
}

func TestSetFilterOrScopeNoopWhenUnchanged(t *testing.T) {
	srv := &fakeServer{total: 5, size: 20}
	e := New("items", srv.fetch)
	req, _ := e.SetFilterOrScope("a", "g1")
	_, err := run(t, e, req)
	require.NoError(t, err)

	_, ok := e.SetFilterOrScope("a", "g1")
	assert.False(t, ok)

	req, ok = e.SetFilterOrScope("ab", "g1")
	require.True(t, ok)
	_, ok = e.SetFilterOrScope("ab", "g1")
	assert.False(t, ok, "identical request already pending")
	_, err = run(t, e, req)
	require.NoError(t, err)
	assert.Equal(t, "ab", e.State().Filter)
}

func TestLoadMoreAppendsAndStopsAtEnd(t *testing.T) {
	srv := &fakeServer{total: 45, size: 20}
	e := New("items", srv.fetch)
	req, _ := e.SetFilterOrScope("", "")
	_, err := run(t, e, req)
	require.NoError(t, err)

	_, ok := e.LoadMoreIfNearEnd(0, 10, 20)
	assert.False(t, ok, "not near the end")

	req, ok = e.LoadMoreIfNearEnd(10, 10, 20)
	require.True(t, ok)
	assert.Equal(t, 2, req.Page)
	assert.False(t, req.Replace)

	_, ok = e.LoadMoreIfNearEnd(10, 10, 20)
	assert.False(t, ok, "only one request in flight")

	_, err = run(t, e, req)
	require.NoError(t, err)
	assert.Equal(t, 40, e.State().Entries)

	req, ok = e.LoadMoreIfNearEnd(30, 10, 40)
	require.True(t, ok)
	assert.Equal(t, 3, req.Page)
	_, err = run(t, e, req)
	require.NoError(t, err)

	st := e.State()
	assert.Equal(t, 45, st.Entries)
	assert.True(t, st.Exhausted())
	_, ok = e.LoadMoreIfNearEnd(40, 10, 45)
	assert.False(t, ok, "exhausted")

	ids := map[string]bool{}
	for _, it := range e.Entries() {
		assert.False(t, ids[it.ID], "duplicate %s", it.ID)
		ids[it.ID] = true
	}
}

func TestLoadMoreBeforeFirstPage(t *testing.T) {
	srv := &fakeServer{total: 45, size: 20}
	e := New("items", srv.fetch)
	_, ok := e.LoadMoreIfNearEnd(0, 10, 0)
	assert.False(t, ok)
}

func TestLoadMoreFailureKeepsState(t *testing.T) {
	srv := &fakeServer{total: 45, size: 20}
	e := New("items", srv.fetch)
	req, _ := e.SetFilterOrScope("", "")
	_, err := run(t, e, req)
	require.NoError(t, err)
	before := e.Entries()

	boom := errors.New("network down")
	srv.fail = boom
	req, ok := e.LoadMoreIfNearEnd(20, 10, 20)
	require.True(t, ok)
	applied, err := run(t, e, req)
	assert.False(t, applied)
	assert.ErrorIs(t, err, boom)

	st := e.State()
	assert.False(t, st.InFlight)
	assert.Equal(t, 1, st.Page)
	assert.Equal(t, before, e.Entries())

	srv.fail = nil
	_, ok = e.LoadMoreIfNearEnd(20, 10, 20)
	assert.True(t, ok, "retry allowed after failure")
}

func TestFilterFailureKeepsPreviousFilter(t *testing.T) {
	srv := &fakeServer{total: 3, size: 20}
	e := New("items", srv.fetch)
	req, _ := e.SetFilterOrScope("old", "")
	_, err := run(t, e, req)
	require.NoError(t, err)

	srv.fail = &FetchError{Messages: []string{"denied"}}
	req, _ = e.SetFilterOrScope("new", "")
	_, err = run(t, e, req)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"denied"}, fe.Messages)

	st := e.State()
	assert.Equal(t, "old", st.Filter)
	assert.Equal(t, 3, st.Entries)
	assert.False(t, st.InFlight)
}

func TestStaleResultDiscarded(t *testing.T) {
	srv := &fakeServer{total: 3, size: 20}
	e := New("stale-test", srv.fetch)
	staleBefore := testutil.ToFloat64(metrics.FetchesTotal.WithLabelValues("stale-test", metrics.OutcomeStale))

	reqA, _ := e.SetFilterOrScope("a", "")
	reqB, ok := e.SetFilterOrScope("b", "")
	require.True(t, ok)

	resA := e.Execute(context.Background(), reqA)
	resB := e.Execute(context.Background(), reqB)

	applied, err := e.Apply(resA)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.True(t, e.State().InFlight)

	applied, err = e.Apply(resB)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "b", e.State().Filter)
	assert.Equal(t, "b-0", e.Entries()[0].ID)

	assert.Equal(t, staleBefore+1, testutil.ToFloat64(metrics.FetchesTotal.WithLabelValues("stale-test", metrics.OutcomeStale)))
}

func TestScopeChangeDuringLoadMore(t *testing.T) {
	srv := &fakeServer{total: 45, size: 20}
	e := New("items", srv.fetch)
	req, _ := e.SetFilterOrScope("", "g1")
	_, err := run(t, e, req)
	require.NoError(t, err)

	more, ok := e.LoadMoreIfNearEnd(20, 5, 20)
	require.True(t, ok)
	scope, ok := e.SetFilterOrScope("", "g2")
	require.True(t, ok)

	applied, _ := run(t, e, more)
	assert.False(t, applied, "page 2 of the old scope must not append")
	_, err = run(t, e, scope)
	require.NoError(t, err)
	assert.Equal(t, "g2", e.State().Scope)
	assert.Equal(t, 20, e.State().Entries)
}

func TestKeyDedupesShiftedPages(t *testing.T) {
	srv := &fakeServer{total: 45, size: 20}
	e := New("items", srv.fetch, WithKey(func(it item) string { return it.ID }))
	req, _ := e.SetFilterOrScope("", "")
	_, err := run(t, e, req)
	require.NoError(t, err)

	srv.shift = 2
	req, _ = e.LoadMoreIfNearEnd(20, 0, 20)
	_, err = run(t, e, req)
	require.NoError(t, err)
	assert.Equal(t, 38, e.State().Entries)
}

func TestUpsertAndPrepend(t *testing.T) {
	srv := &fakeServer{total: 2, size: 20}
	e := New("items", srv.fetch, WithKey(func(it item) string { return it.ID }))
	req, _ := e.SetFilterOrScope("", "")
	_, err := run(t, e, req)
	require.NoError(t, err)

	assert.True(t, e.Upsert(item{ID: "-1"}))
	assert.False(t, e.Upsert(item{ID: "new"}))

	e.Prepend(item{ID: "new"})
	assert.Equal(t, "new", e.Entries()[0].ID)
	assert.Equal(t, 3, e.State().Total)

	e.Prepend(item{ID: "new"})
	assert.Equal(t, 3, e.State().Entries)
}

func TestReloadSupersedesPending(t *testing.T) {
	srv := &fakeServer{total: 45, size: 20}
	e := New("items", srv.fetch)
	req, _ := e.SetFilterOrScope("x", "")
	_, err := run(t, e, req)
	require.NoError(t, err)
	more, _ := e.LoadMoreIfNearEnd(20, 0, 20)

	reload := e.Reload()
	assert.Equal(t, Query{Filter: "x", Page: 1}, reload.Query)
	applied, _ := run(t, e, more)
	assert.False(t, applied)
	applied, err = run(t, e, reload)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestConcurrentExecute(t *testing.T) {
	srv := &fakeServer{total: 100, size: 10}
	e := New("items", srv.fetch)

	var wg sync.WaitGroup
	results := make(chan Result[item], 8)
	for i := 0; i < 8; i++ {
		req, _ := e.SetFilterOrScope(fmt.Sprint(i), "")
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- e.Execute(context.Background(), req)
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for res := range results {
		ok, err := e.Apply(res)
		require.NoError(t, err)
		if ok {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, "7", e.State().Filter)
}
