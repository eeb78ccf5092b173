package feed

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a cached feed stays fresh without a refresh.
	DefaultTTL = 5 * time.Minute
	// DefaultItemTimeout is the per-source budget during item collection.
	DefaultItemTimeout = 10 * time.Second

	// minTTL guards against a zero or negative TTL spinning the re-arm timer.
	minTTL = time.Second
)

// Options configures an Engine.
type Options struct {
	// TTL bounds cache freshness and paces the periodic refresh. Clamped to
	// a one-second floor; zero means DefaultTTL.
	TTL time.Duration
	// ItemTimeout is the per-source budget for item collection. Zero means
	// DefaultItemTimeout.
	ItemTimeout time.Duration
	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

type cacheEntry struct {
	result   *Result
	cachedAt time.Time
}

type subscriber struct {
	id int
	fn func(*Result)
}

// Engine owns one user's feed: the source registry, the dependency graph,
// the accumulated context, the post-processor pipeline, and the result
// cache. One engine per user; instances are never shared across users.
type Engine struct {
	now         func() time.Time
	ttl         time.Duration
	itemTimeout time.Duration

	// runMu serializes refresh flows (pull, reactive, periodic) so each one
	// observes a consistent context and cache transition.
	runMu sync.Mutex

	mu       sync.Mutex
	sources  map[string]Source
	order    []string
	graph    *graph // memoized; nil when registration changed
	pipeline pipeline
	live     Context
	cache    *cacheEntry
	timer    *time.Timer
	subs     []subscriber
	nextSub  int
	unsubs   []func()
	started  bool
}

// NewEngine creates a stopped engine with no sources registered.
func NewEngine(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < minTTL {
		ttl = minTTL
	}
	itemTimeout := opts.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = DefaultItemTimeout
	}
	return &Engine{
		now:         now,
		ttl:         ttl,
		itemTimeout: itemTimeout,
		sources:     make(map[string]Source),
		live:        NewContext(now()),
	}
}

// Register adds src to the registry. Registering an id twice replaces the
// earlier source in place (last write wins, original position kept). Any
// cached graph is invalidated; the next refresh rebuilds it lazily.
func (e *Engine) Register(src Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := src.ID()
	if _, exists := e.sources[id]; !exists {
		e.order = append(e.order, id)
	}
	e.sources[id] = src
	e.graph = nil
}

// Unregister removes the source with the given id. An in-progress refresh is
// not cancelled; it completes against the graph it started with.
func (e *Engine) Unregister(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.sources[id]; !exists {
		return
	}
	delete(e.sources, id)
	e.order = slices.DeleteFunc(e.order, func(o string) bool { return o == id })
	e.graph = nil
}

// AddProcessor appends a post-processor to the pipeline. Processors run in
// registration order on every refresh. An empty name is recorded as
// "anonymous" when the processor fails.
func (e *Engine) AddProcessor(name string, fn ProcessorFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipeline.add(name, fn)
}

// Subscribe registers fn to receive every delivered result while the engine
// is started. Subscribers are invoked synchronously in subscription order; a
// panicking subscriber does not block the others. The returned disposer is
// idempotent.
func (e *Engine) Subscribe(fn func(*Result)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.subs = slices.DeleteFunc(e.subs, func(s subscriber) bool { return s.id == id })
	}
}

// CurrentContext returns the latest accumulated context snapshot.
func (e *Engine) CurrentContext() Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

// LastFeed returns the cached result while it is younger than the TTL.
// Callers seeing ok == false are expected to force a pull refresh.
func (e *Engine) LastFeed() (*Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cache == nil || e.now().Sub(e.cache.cachedAt) > e.ttl {
		return nil, false
	}
	return e.cache.result, true
}

// Start subscribes to every push-capable source and arms the periodic
// refresh timer. Calling Start on a started engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.live = NewContext(e.now())
	srcs := e.sourcesInOrder()
	e.mu.Unlock()

	var unsubs []func()
	for _, src := range srcs {
		id := src.ID()
		if pusher, ok := src.(ContextPusher); ok {
			unsubs = append(unsubs, pusher.OnContextUpdate(func(p Partial) {
				e.handleContextPush(id, p)
			}, e.CurrentContext))
		}
		if pusher, ok := src.(ItemsPusher); ok {
			unsubs = append(unsubs, pusher.OnItemsUpdate(func() {
				e.handleItemsPush(id)
			}))
		}
	}

	e.mu.Lock()
	e.unsubs = unsubs
	e.rearmLocked()
	e.mu.Unlock()
	log.Printf("[engine] started: %d sources, ttl %s", len(srcs), e.ttl)
}

// Stop cancels the periodic timer and disposes every push subscription
// exactly once. Pushes that race past Stop are ignored. A stopped engine can
// be started again and resubscribes cleanly.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	log.Printf("[engine] stopped")
}

// Refresh runs the pull path: rebuild the graph if needed, accumulate
// context in topological order, collect items from every source, run the
// pipeline, cache the result, and deliver it to subscribers if the engine is
// started. Per-source failures are recorded in the result; only a graph
// validation failure fails the call itself.
func (e *Engine) Refresh(ctx context.Context) (*Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	g, err := e.currentGraph()
	if err != nil {
		return nil, err
	}

	snap := NewContext(e.now())
	var errs []SourceError
	for _, src := range g.sorted {
		producer, ok := src.(ContextProducer)
		if !ok {
			continue
		}
		partial, err := fetchContext(ctx, producer, snap)
		if err != nil {
			errs = append(errs, SourceError{SourceID: src.ID(), Err: err})
			continue
		}
		if len(partial) > 0 {
			snap = snap.With(partial, snap.Time)
		}
	}

	items, errs := e.collectItems(ctx, g, snap, errs)
	return e.finish(snap, items, errs), nil
}

// handleContextPush is the reactive path for a context update from sourceID:
// merge the pushed entries, re-run context production for the transitive
// dependents only, then re-collect items from every source. Item lists are
// not diffed incrementally, so re-deriving all of them is the simpler and
// correct move.
func (e *Engine) handleContextPush(sourceID string, partial Partial) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	g, err := e.currentGraphLocked()
	if err != nil {
		e.mu.Unlock()
		log.Printf("[engine] context push from %s dropped: %v", sourceID, err)
		return
	}
	snap := e.live.With(partial, e.now())
	e.mu.Unlock()

	ctx := context.Background()
	var errs []SourceError
	for _, src := range g.transitiveDependents(sourceID) {
		producer, ok := src.(ContextProducer)
		if !ok {
			continue
		}
		p, err := fetchContext(ctx, producer, snap)
		if err != nil {
			errs = append(errs, SourceError{SourceID: src.ID(), Err: err})
			continue
		}
		if len(p) > 0 {
			snap = snap.With(p, snap.Time)
		}
	}

	items, errs := e.collectItems(ctx, g, snap, errs)
	e.finish(snap, items, errs)
}

// handleItemsPush is the reactive path for an items-only update: the context
// stays as is and every source's items are re-collected against it.
func (e *Engine) handleItemsPush(sourceID string) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	g, err := e.currentGraphLocked()
	if err != nil {
		e.mu.Unlock()
		log.Printf("[engine] items push from %s dropped: %v", sourceID, err)
		return
	}
	snap := e.live
	e.mu.Unlock()

	items, errs := e.collectItems(context.Background(), g, snap, nil)
	e.finish(snap, items, errs)
}

// collectItems fans item production out concurrently, each source racing the
// per-source budget, and concatenates results in topological order so the
// output is deterministic regardless of completion order.
func (e *Engine) collectItems(ctx context.Context, g *graph, snap Context, errs []SourceError) ([]Item, []SourceError) {
	type slot struct {
		items []Item
		err   error
	}
	slots := make([]slot, len(g.sorted))

	var wg sync.WaitGroup
	for i, src := range g.sorted {
		producer, ok := src.(ItemProducer)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, producer ItemProducer) {
			defer wg.Done()
			slots[i].items, slots[i].err = e.fetchItemsWithBudget(ctx, producer, snap)
		}(i, producer)
	}
	wg.Wait()

	var items []Item
	for i, src := range g.sorted {
		if slots[i].err != nil {
			errs = append(errs, SourceError{SourceID: src.ID(), Err: slots[i].err})
			continue
		}
		items = append(items, slots[i].items...)
	}
	return items, errs
}

// fetchItemsWithBudget races one source's item fetch against the budget. A
// stalled source surfaces as its own timeout error instead of holding the
// whole refresh; its goroutine is abandoned with a cancelled context.
func (e *Engine) fetchItemsWithBudget(ctx context.Context, producer ItemProducer, snap Context) ([]Item, error) {
	tctx, cancel := context.WithTimeout(ctx, e.itemTimeout)
	defer cancel()

	type outcome struct {
		items []Item
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		items, err := fetchItems(tctx, producer, snap)
		done <- outcome{items: items, err: err}
	}()

	select {
	case o := <-done:
		return o.items, o.err
	case <-tctx.Done():
		return nil, fmt.Errorf("items fetch: %w", tctx.Err())
	}
}

// finish runs the pipeline, caches the result, advances the live context,
// re-arms the periodic timer, and notifies subscribers when started.
func (e *Engine) finish(snap Context, raw []Item, errs []SourceError) *Result {
	e.mu.Lock()
	pl := pipeline{procs: slices.Clone(e.pipeline.procs)}
	e.mu.Unlock()

	// Processors are untrusted; run them outside the engine lock.
	items, groups, errs := pl.run(raw, errs)
	result := &Result{Context: snap, Items: items, Errors: errs, Groups: groups}

	e.mu.Lock()
	e.live = snap
	e.cache = &cacheEntry{result: result, cachedAt: e.now()}
	started := e.started
	if started {
		e.rearmLocked()
	}
	subs := slices.Clone(e.subs)
	e.mu.Unlock()

	if started {
		for _, sub := range subs {
			notifySubscriber(sub.fn, result)
		}
	}
	return result
}

// rearmLocked schedules the next periodic refresh one TTL from now. Caller
// holds e.mu.
func (e *Engine) rearmLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.ttl, e.periodicRefresh)
}

// periodicRefresh keeps the feed fresh when no source pushes. Failures are
// logged and the timer chain continues; a stale cache is the only
// user-visible effect.
func (e *Engine) periodicRefresh() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if _, err := e.Refresh(context.Background()); err != nil {
		log.Printf("[engine] periodic refresh: %v", err)
		e.mu.Lock()
		if e.started {
			e.rearmLocked()
		}
		e.mu.Unlock()
	}
	// The success path re-arms through finish.
}

func (e *Engine) currentGraph() (*graph, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentGraphLocked()
}

func (e *Engine) currentGraphLocked() (*graph, error) {
	if e.graph == nil {
		g, err := buildGraph(slices.Clone(e.order), e.sources)
		if err != nil {
			return nil, err
		}
		e.graph = g
	}
	return e.graph, nil
}

// sourcesInOrder returns registered sources in registration order. Caller
// holds e.mu.
func (e *Engine) sourcesInOrder() []Source {
	srcs := make([]Source, 0, len(e.order))
	for _, id := range e.order {
		srcs = append(srcs, e.sources[id])
	}
	return srcs
}

// fetchContext converts a panicking source into a per-source error.
func fetchContext(ctx context.Context, producer ContextProducer, snap Context) (p Partial, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("context fetch panic: %v", r)
		}
	}()
	return producer.FetchContext(ctx, snap)
}

// fetchItems converts a panicking source into a per-source error.
func fetchItems(ctx context.Context, producer ItemProducer, snap Context) (items []Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("items fetch panic: %v", r)
		}
	}()
	return producer.FetchItems(ctx, snap)
}

// notifySubscriber isolates a panicking subscriber from the rest.
func notifySubscriber(fn func(*Result), result *Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[engine] subscriber panic: %v", r)
		}
	}()
	fn(result)
}
