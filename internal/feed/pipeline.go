package feed

import (
	"fmt"
	"slices"
)

// Enhancement is the directive set a post-processor returns: items to inject,
// item ids to suppress, and groups to surface. A processor never edits the
// list directly; the pipeline applies directives so a failed processor leaves
// no trace.
type Enhancement struct {
	AdditionalItems []Item
	Suppress        []string
	Groups          []Group
}

// ProcessorFunc transforms the running item list into an Enhancement. The
// list it receives reflects all prior processors in the same pass.
type ProcessorFunc func(items []Item) (Enhancement, error)

type processor struct {
	name string
	fn   ProcessorFunc
}

type pipeline struct {
	procs []processor
}

func (p *pipeline) add(name string, fn ProcessorFunc) {
	p.procs = append(p.procs, processor{name: name, fn: fn})
}

// run applies every processor in registration order. A processor that fails
// is recorded under its name (or "anonymous") and its directives are
// discarded; the pass continues with the next processor.
func (p *pipeline) run(items []Item, errs []SourceError) ([]Item, []Group, []SourceError) {
	running := slices.Clone(items)
	var groups []Group

	for _, proc := range p.procs {
		name := proc.name
		if name == "" {
			name = "anonymous"
		}
		enh, err := applyProcessor(proc.fn, running)
		if err != nil {
			errs = append(errs, SourceError{SourceID: name, Err: err})
			continue
		}
		running = append(running, enh.AdditionalItems...)
		if len(enh.Suppress) > 0 {
			drop := make(map[string]bool, len(enh.Suppress))
			for _, id := range enh.Suppress {
				drop[id] = true
			}
			kept := running[:0]
			for _, it := range running {
				if !drop[it.ID] {
					kept = append(kept, it)
				}
			}
			running = kept
		}
		groups = append(groups, enh.Groups...)
	}

	return running, sanitizeGroups(groups, running), errs
}

// applyProcessor shields the pipeline from a panicking processor.
func applyProcessor(fn ProcessorFunc, items []Item) (enh Enhancement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return fn(slices.Clone(items))
}

// sanitizeGroups drops group references to items no longer in the final list
// and discards groups left empty. Returns nil when nothing survives.
func sanitizeGroups(groups []Group, items []Item) []Group {
	if len(groups) == 0 {
		return nil
	}
	present := make(map[string]bool, len(items))
	for _, it := range items {
		present[it.ID] = true
	}
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		ids := make([]string, 0, len(g.ItemIDs))
		for _, id := range g.ItemIDs {
			if present[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			out = append(out, Group{ItemIDs: ids, Summary: g.Summary})
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
