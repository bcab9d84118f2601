// Package pager keeps a server-paged, filterable collection consistent while
// the user scrolls, filters or switches scope.
//
// The engine never performs I/O under its lock. A state change yields a
// Request; the caller runs it with Execute, typically from a tea.Cmd, and
// hands the Result back to Apply on the event loop. Results belonging to a
// superseded request are discarded.
package pager

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rusty-ci/rusty-tui/internal/metrics"
	"github.com/rusty-ci/rusty-tui/internal/model"
)

// Query identifies one page of a collection.
type Query struct {
	Filter string
	Scope  string
	Page   int
}

// Fetcher loads one page. Credentials are bound by the caller.
type Fetcher[T any] func(ctx context.Context, q Query) (model.Page[T], error)

// Request is a fetch issued by the engine. Replace requests load page 1 and
// swap the entry list; the others append.
type Request struct {
	Query
	Generation uint64
	Replace    bool
}

type Result[T any] struct {
	Request
	Page model.Page[T]
	Err  error
}

// State is a snapshot of the collection bookkeeping.
type State struct {
	Filter   string
	Scope    string
	Total    int
	Page     int
	PageSize int
	Loaded   bool
	InFlight bool
	Entries  int
}

// Exhausted reports whether every entry matching the current query has been
// loaded.
func (s State) Exhausted() bool {
	return s.Page*s.PageSize >= s.Total
}

type Option[T any] func(*Engine[T])

// WithKey enables identity-based merging: appended entries whose key is
// already present are skipped, and Upsert/Prepend become available.
func WithKey[T any](key func(T) string) Option[T] {
	return func(e *Engine[T]) { e.key = key }
}

func WithLogger[T any](log zerolog.Logger) Option[T] {
	return func(e *Engine[T]) { e.log = log }
}

type Engine[T any] struct {
	name  string
	fetch Fetcher[T]
	key   func(T) string
	log   zerolog.Logger

	mu       sync.Mutex
	filter   string
	scope    string
	total    int
	number   int
	size     int
	entries  []T
	loaded   bool
	inFlight bool
	pending  Request
	gen      uint64
}

// New creates an engine for the named collection. The name labels metrics
// and log lines.
func New[T any](name string, fetch Fetcher[T], opts ...Option[T]) *Engine[T] {
	e := &Engine[T]{
		name:   name,
		fetch:  fetch,
		log:    zerolog.Nop(),
		number: model.DefaultPageNumber,
		size:   model.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("collection", name).Logger()
	return e
}

func (e *Engine[T]) Name() string { return e.name }

// SetFilterOrScope requests page 1 for a new filter or scope. Nothing is
// requested when both match the loaded state and no request is pending, or
// when an identical replace request is already in flight. Any other pending
// request is superseded.
func (e *Engine[T]) SetFilterOrScope(filter, scope string) (Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight {
		if e.pending.Replace && e.pending.Filter == filter && e.pending.Scope == scope {
			return Request{}, false
		}
	} else if e.loaded && e.filter == filter && e.scope == scope {
		return Request{}, false
	}
	return e.issueLocked(Query{Filter: filter, Scope: scope, Page: 1}, true), true
}

// Reload requests page 1 of the current filter and scope, superseding any
// pending request.
func (e *Engine[T]) Reload() Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.issueLocked(Query{Filter: e.filter, Scope: e.scope, Page: 1}, true)
}

// LoadMoreIfNearEnd requests the next page when the visible window touches
// the end of the loaded content. It does nothing while a request is in
// flight, before the first page has loaded, or once the collection is
// exhausted.
func (e *Engine[T]) LoadMoreIfNearEnd(position, viewport, content int) (Request, bool) {
	if position+viewport < content {
		return Request{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight || !e.loaded {
		return Request{}, false
	}
	if e.number*e.size >= e.total {
		return Request{}, false
	}
	return e.issueLocked(Query{Filter: e.filter, Scope: e.scope, Page: e.number + 1}, false), true
}

func (e *Engine[T]) issueLocked(q Query, replace bool) Request {
	e.gen++
	e.inFlight = true
	e.pending = Request{Query: q, Generation: e.gen, Replace: replace}
	e.log.Debug().
		Str("filter", q.Filter).
		Str("scope", q.Scope).
		Int("page", q.Page).
		Uint64("generation", e.gen).
		Msg("page requested")
	return e.pending
}

// Execute runs the fetch for req. It does not touch engine state and may be
// called from any goroutine.
func (e *Engine[T]) Execute(ctx context.Context, req Request) Result[T] {
	page, err := e.fetch(ctx, req.Query)
	if err != nil {
		return Result[T]{Request: req, Err: err}
	}
	return Result[T]{Request: req, Page: page.Normalize()}
}

// Apply merges a fetch result. It reports false for results of superseded
// requests, which leave state untouched. A failed fetch clears only the
// in-flight flag and its error is returned.
func (e *Engine[T]) Apply(res Result[T]) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inFlight || res.Generation != e.gen {
		metrics.FetchesTotal.WithLabelValues(e.name, metrics.OutcomeStale).Inc()
		e.log.Debug().Uint64("generation", res.Generation).Uint64("current", e.gen).Msg("stale page discarded")
		return false, nil
	}
	e.inFlight = false
	e.pending = Request{}

	if res.Err != nil {
		metrics.FetchesTotal.WithLabelValues(e.name, metrics.OutcomeError).Inc()
		e.log.Warn().Err(res.Err).Int("page", res.Query.Page).Msg("page fetch failed")
		return false, res.Err
	}
	metrics.FetchesTotal.WithLabelValues(e.name, metrics.OutcomeOK).Inc()

	page := res.Page.Normalize()
	if res.Replace {
		e.filter = res.Filter
		e.scope = res.Scope
		e.entries = append([]T(nil), page.Entries...)
		e.loaded = true
	} else {
		e.entries = e.appendUnique(e.entries, page.Entries)
	}
	e.number = res.Query.Page
	e.total = page.Total
	e.size = page.Size
	return true, nil
}

func (e *Engine[T]) appendUnique(dst, src []T) []T {
	if e.key == nil {
		return append(dst, src...)
	}
	seen := make(map[string]struct{}, len(dst))
	for _, item := range dst {
		seen[e.key(item)] = struct{}{}
	}
	for _, item := range src {
		k := e.key(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}

// Upsert replaces the entry with the same key as item. It reports whether
// an entry was replaced. Without WithKey it is a no-op.
func (e *Engine[T]) Upsert(item T) bool {
	if e.key == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	k := e.key(item)
	for i := range e.entries {
		if e.key(e.entries[i]) == k {
			e.entries[i] = item
			return true
		}
	}
	return false
}

// Prepend inserts a newly created item at the front and counts it in the
// total. An item already present is replaced in place instead.
func (e *Engine[T]) Prepend(item T) {
	if e.Upsert(item) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append([]T{item}, e.entries...)
	e.total++
}

// Entries returns a copy of the loaded entries in server order.
func (e *Engine[T]) Entries() []T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]T(nil), e.entries...)
}

func (e *Engine[T]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Filter:   e.filter,
		Scope:    e.scope,
		Total:    e.total,
		Page:     e.number,
		PageSize: e.size,
		Loaded:   e.loaded,
		InFlight: e.inFlight,
		Entries:  len(e.entries),
	}
}
