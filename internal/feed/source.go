package feed

import "context"

// Source is the unit of registration. The base interface carries identity
// only; a source adds behavior by implementing any subset of the capability
// interfaces below. The engine discovers capabilities by type assertion.
type Source interface {
	// ID uniquely identifies the source. Reverse-domain style
	// ("dayfeed.weather") by convention.
	ID() string
}

// Dependent is implemented by sources whose context production must run
// after other sources have contributed theirs.
type Dependent interface {
	Source
	Dependencies() []string
}

// ContextProducer contributes entries to the shared context. Returning a nil
// or empty Partial with a nil error means "no contribution" and is not an
// error. The snapshot passed in contains the entries of all sources ordered
// before this one, never the full final context.
type ContextProducer interface {
	Source
	FetchContext(ctx context.Context, snap Context) (Partial, error)
}

// ItemProducer emits feed items. Unlike FetchContext, FetchItems always
// receives the fully accumulated context of the current refresh.
type ItemProducer interface {
	Source
	FetchItems(ctx context.Context, snap Context) ([]Item, error)
}

// ContextAccessor reads the engine's current accumulated context.
type ContextAccessor func() Context

// ContextPusher is implemented by sources that can push context changes
// between refreshes. The engine subscribes once on Start; the returned
// disposer must be safe to call exactly once. Pushes arriving after the
// engine stopped are ignored, so implementations need not fence them.
type ContextPusher interface {
	Source
	OnContextUpdate(push func(Partial), current ContextAccessor) (unsubscribe func())
}

// ItemsPusher signals that the source's item list changed. The push callback
// carries no payload; the engine re-collects items from every source.
type ItemsPusher interface {
	Source
	OnItemsUpdate(push func()) (unsubscribe func())
}

// ActionDefinition describes one imperative command a source handles.
type ActionDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// ActionProvider handles imperative commands routed by the engine. Actions
// run outside the refresh cycle; a source that wants the feed to reflect an
// action's effect pushes a context or item update afterwards.
type ActionProvider interface {
	Source
	// Actions maps action id to definition. Each key must equal its
	// definition's ID field.
	Actions() map[string]ActionDefinition
	ExecuteAction(ctx context.Context, actionID string, params map[string]any) (any, error)
}

// dependenciesOf returns the declared dependencies of s, if any.
func dependenciesOf(s Source) []string {
	if d, ok := s.(Dependent); ok {
		return d.Dependencies()
	}
	return nil
}
