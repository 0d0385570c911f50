package handle

import (
	"fmt"
	"time"
)

// DeriveParams is the input to Factory.Derive.
type DeriveParams struct {
	// ParentToken identifies the entry the subset comes from.
	ParentToken string

	// IDs is the subset to capture. Every id must be present in the
	// parent's ordered list; parent order is reimposed on the result so
	// derived handles keep index selection meaningful. Each id appears
	// at most once in the derived entry.
	IDs []int

	// Label describes the partition ("high risk", "stale"), recorded in
	// the derived entry's scope metadata.
	Label string

	// AnalysisMetadata is attached to the derived entry (bucket counts
	// and the like).
	AnalysisMetadata map[string]any

	// ContextPatch replaces the inherited context snapshot for the
	// given ids. Analysis tools use it to fold freshly computed
	// daysInactive values into the derived entry without mutating the
	// parent.
	ContextPatch map[int]ItemContext

	// TTL follows the same clamp-to-ceiling policy as Create. A derived
	// handle does not inherit the parent's remaining lifetime — it is a
	// fresh result set from the agent's point of view.
	TTL time.Duration
}

// Factory mints new handles from subsets of existing ones. Analysis
// tools use it to split a result set into buckets, each addressable as
// its own handle.
type Factory struct {
	registry *Registry
}

// NewFactory creates a derived-handle factory bound to a registry.
func NewFactory(reg *Registry) *Factory {
	return &Factory{registry: reg}
}

// Derive creates a brand-new entry from a subset of an existing one.
// Ids absent from the parent are rejected — a derived handle must never
// widen the parent's scope. Returns the new token.
func (f *Factory) Derive(p DeriveParams) (string, error) {
	parent, err := f.registry.Get(p.ParentToken)
	if err != nil {
		return "", err
	}

	inParent := make(map[int]bool, len(parent.OrderedIDs))
	for _, id := range parent.OrderedIDs {
		inParent[id] = true
	}
	requested := make(map[int]bool, len(p.IDs))
	for _, id := range p.IDs {
		if !inParent[id] {
			return "", fmt.Errorf("derive from %s: item %d is not in the parent handle", p.ParentToken, id)
		}
		requested[id] = true
	}

	// Reimpose parent order and carry context for surviving ids only.
	// An id duplicated in the parent appears once, at its first
	// occurrence — a derived handle never holds more entries than were
	// requested.
	var ids []int
	itemCtx := make(map[int]ItemContext)
	for _, id := range parent.OrderedIDs {
		if !requested[id] {
			continue
		}
		requested[id] = false
		ids = append(ids, id)
		if ctx, ok := p.ContextPatch[id]; ok {
			itemCtx[id] = ctx
		} else if ctx, ok := parent.ContextFor(id); ok {
			itemCtx[id] = ctx
		}
	}

	scope := make(map[string]string, len(parent.ScopeMetadata)+2)
	for k, v := range parent.ScopeMetadata {
		scope[k] = v
	}
	scope["derivedFrom"] = parent.Token
	if p.Label != "" {
		scope["partition"] = p.Label
	}

	source := parent.SourceQuery
	if p.Label != "" {
		source = fmt.Sprintf("%s [partition: %s]", parent.SourceQuery, p.Label)
	}

	token := f.registry.Create(CreateParams{
		OrderedIDs:       ids,
		SourceQuery:      source,
		ScopeMetadata:    scope,
		ItemContext:      itemCtx,
		AnalysisMetadata: p.AnalysisMetadata,
		TTL:              p.TTL,
	})
	return token, nil
}
