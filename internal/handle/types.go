// Package handle implements the query-handle indirection layer.
//
// AI agents are prone to fabricating work item IDs, so mutating tools
// never accept raw IDs. Instead, a query's result set is captured once
// into an opaque server-held handle, and every later read or mutation
// addresses items through that handle plus a declarative selector.
//
// Design principles follow the rest of the server:
// - A handle entry is immutable data, written once at creation
// - New requirements mint new entries (see Derive), never edit old ones
// - An expired or purged token is indistinguishable from one that
//   never existed
package handle

import (
	"time"
)

// ItemContext is a lightweight per-item snapshot captured at query time.
// It is never re-fetched lazily — it reflects the item as last observed
// by the query that created the handle.
type ItemContext struct {
	Title      string   `json:"title"`
	State      string   `json:"state"`
	Type       string   `json:"type"`
	Tags       []string `json:"tags,omitempty"`
	AssignedTo string   `json:"assignedTo,omitempty"`

	// ChangedDate is the item's last modification as reported by the
	// work tracking service, not the last substantive change.
	ChangedDate *time.Time `json:"changedDate,omitempty"`

	// DaysInactive is populated only when a staleness analysis was
	// requested at capture time. nil means "not computed", which must
	// never be read as "zero days inactive".
	DaysInactive *int `json:"daysInactive,omitempty"`
}

// Entry is one captured result set: an ordered id list plus per-item
// context, addressed by an opaque token. Entries are immutable after
// creation — callers must not modify the slices or maps they expose.
type Entry struct {
	Token string

	// OrderedIDs preserves the originating query's order, duplicates
	// included. Index selectors address this sequence.
	OrderedIDs []int

	// SourceQuery is provenance only; it is never re-executed.
	SourceQuery string

	// ScopeMetadata holds descriptive fields (project, entry subtype).
	// Informational — selection logic never reads it.
	ScopeMetadata map[string]string

	// ItemContext maps a subset of OrderedIDs to their snapshots. An id
	// with no entry simply had no context supplied.
	ItemContext map[int]ItemContext

	// AnalysisMetadata carries optional summary statistics attached at
	// creation (bucket counts and the like). Immutable after creation.
	AnalysisMetadata map[string]any

	CreatedAt time.Time
	ExpiresAt time.Time
}

// ContextFor returns the context snapshot for an id, if one was captured.
func (e *Entry) ContextFor(id int) (ItemContext, bool) {
	ctx, ok := e.ItemContext[id]
	return ctx, ok
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// CreateParams is the input to Registry.Create.
type CreateParams struct {
	OrderedIDs       []int
	SourceQuery      string
	ScopeMetadata    map[string]string
	ItemContext      map[int]ItemContext
	AnalysisMetadata map[string]any

	// TTL requests a shorter lifetime than the default. Zero means
	// "use the default"; anything above the ceiling is clamped, never
	// rejected.
	TTL time.Duration
}
