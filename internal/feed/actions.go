package feed

import (
	"context"
	"fmt"
)

// ListActions returns the validated action map of the given source. It fails
// for an unregistered source, for a source without the action capability,
// and for a map whose key disagrees with its definition's own id — the last
// is a source configuration bug, and dispatching on it would route commands
// to the wrong handler.
func (e *Engine) ListActions(sourceID string) (map[string]ActionDefinition, error) {
	provider, err := e.actionProvider(sourceID)
	if err != nil {
		return nil, err
	}
	actions := provider.Actions()
	for key, def := range actions {
		if key != def.ID {
			return nil, fmt.Errorf("source %q action key %q does not match definition id %q", sourceID, key, def.ID)
		}
	}
	return actions, nil
}

// ExecuteAction routes an imperative command to its owning source,
// independent of the refresh cycle. The action may mutate source-held state;
// whether the feed reflects that immediately depends on the source pushing
// an update (reactive) or the caller refreshing explicitly (pull-only).
func (e *Engine) ExecuteAction(ctx context.Context, sourceID, actionID string, params map[string]any) (any, error) {
	actions, err := e.ListActions(sourceID)
	if err != nil {
		return nil, err
	}
	if _, ok := actions[actionID]; !ok {
		return nil, fmt.Errorf("source %q has no action %q", sourceID, actionID)
	}
	provider, err := e.actionProvider(sourceID)
	if err != nil {
		return nil, err
	}
	return provider.ExecuteAction(ctx, actionID, params)
}

func (e *Engine) actionProvider(sourceID string) (ActionProvider, error) {
	e.mu.Lock()
	src, ok := e.sources[sourceID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("source %q is not registered", sourceID)
	}
	provider, ok := src.(ActionProvider)
	if !ok {
		return nil, fmt.Errorf("source %q exposes no actions", sourceID)
	}
	return provider, nil
}
