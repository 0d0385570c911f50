package handle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSelector is returned when a selector is neither "all", an
// index list, nor a criteria object.
var ErrInvalidSelector = errors.New("invalid selector: expected \"all\", an index array, or a criteria object")

// --- Selector variants ---

// SelectorKind tags which variant of the selector union is active.
type SelectorKind string

const (
	KindAll      SelectorKind = "all"
	KindIndices  SelectorKind = "indices"
	KindCriteria SelectorKind = "criteria"
)

// Criteria is an AND of independent predicates evaluated against each
// item's captured context. Omitted (zero-value) fields impose no
// constraint. An item with no context snapshot matches no criteria
// selector — there is nothing to test against.
type Criteria struct {
	// States: the item's state must be one of these.
	States []string `json:"states,omitempty"`

	// Tags: the item's tag set must share at least one tag with these.
	Tags []string `json:"tags,omitempty"`

	// TitleContains: the title must contain at least one substring.
	TitleContains []string `json:"titleContains,omitempty"`

	// DaysInactiveMin/Max bound the item's daysInactive inclusively.
	// An item without a computed daysInactive fails these predicates.
	DaysInactiveMin *int `json:"daysInactiveMin,omitempty"`
	DaysInactiveMax *int `json:"daysInactiveMax,omitempty"`
}

// Empty reports whether no predicate is set. An empty criteria object
// constrains nothing and matches every item that has a context.
func (c Criteria) Empty() bool {
	return len(c.States) == 0 && len(c.Tags) == 0 && len(c.TitleContains) == 0 &&
		c.DaysInactiveMin == nil && c.DaysInactiveMax == nil
}

// Selector is a tagged union: exactly one variant is active.
// Construct via SelectAll, SelectIndices, or SelectCriteria.
type Selector struct {
	Kind     SelectorKind
	Indices  []int
	Criteria Criteria
}

// SelectAll selects every id in the handle, in order.
func SelectAll() Selector {
	return Selector{Kind: KindAll}
}

// SelectIndices selects by zero-based position into the handle's
// ordered id list.
func SelectIndices(indices []int) Selector {
	return Selector{Kind: KindIndices, Indices: indices}
}

// SelectCriteria selects ids whose captured context passes every
// supplied predicate.
func SelectCriteria(c Criteria) Selector {
	return Selector{Kind: KindCriteria, Criteria: c}
}

// Describe returns a short human-readable summary for diagnostics.
func (s Selector) Describe() string {
	switch s.Kind {
	case KindAll:
		return "all"
	case KindIndices:
		return fmt.Sprintf("indices(%d)", len(s.Indices))
	case KindCriteria:
		var parts []string
		if len(s.Criteria.States) > 0 {
			parts = append(parts, "states="+strings.Join(s.Criteria.States, "|"))
		}
		if len(s.Criteria.Tags) > 0 {
			parts = append(parts, "tags="+strings.Join(s.Criteria.Tags, "|"))
		}
		if len(s.Criteria.TitleContains) > 0 {
			parts = append(parts, fmt.Sprintf("titleContains(%d)", len(s.Criteria.TitleContains)))
		}
		if s.Criteria.DaysInactiveMin != nil {
			parts = append(parts, fmt.Sprintf("daysInactive>=%d", *s.Criteria.DaysInactiveMin))
		}
		if s.Criteria.DaysInactiveMax != nil {
			parts = append(parts, fmt.Sprintf("daysInactive<=%d", *s.Criteria.DaysInactiveMax))
		}
		if len(parts) == 0 {
			return "criteria(empty)"
		}
		return "criteria(" + strings.Join(parts, ", ") + ")"
	default:
		return "unknown"
	}
}

// --- Parsing the wire shape ---

// ParseSelector maps the duck-typed wire value an agent sends into the
// tagged union. Accepted shapes:
//
//   - the string "all"
//   - a JSON array of zero-based indices
//   - a JSON object of criteria fields
//   - a string containing the JSON encoding of either of the above
//     (some hosts stringify structured tool arguments)
//
// Anything else is ErrInvalidSelector.
func ParseSelector(raw any) (Selector, error) {
	switch v := raw.(type) {
	case nil:
		return Selector{}, fmt.Errorf("%w: selector is missing", ErrInvalidSelector)
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.EqualFold(trimmed, "all") {
			return SelectAll(), nil
		}
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			var decoded any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
				return Selector{}, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
			}
			return ParseSelector(decoded)
		}
		return Selector{}, fmt.Errorf("%w: got string %q", ErrInvalidSelector, v)
	case []any:
		indices := make([]int, 0, len(v))
		for _, el := range v {
			n, ok := el.(float64)
			if !ok || n != float64(int(n)) {
				return Selector{}, fmt.Errorf("%w: index list must contain whole numbers", ErrInvalidSelector)
			}
			indices = append(indices, int(n))
		}
		return SelectIndices(indices), nil
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return Selector{}, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
		}
		var c Criteria
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return Selector{}, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
		}
		return SelectCriteria(c), nil
	default:
		return Selector{}, fmt.Errorf("%w: got %T", ErrInvalidSelector, raw)
	}
}

// --- Resolution ---

// Selection is a successful resolution: the matched ids in handle order
// plus non-fatal diagnostics. A zero-id selection is a success with a
// warning, never an error.
type Selection struct {
	Token string

	// IDs is an ordered subsequence of the entry's OrderedIDs.
	IDs []int

	// TotalInHandle is how many ids the handle holds overall.
	TotalInHandle int

	// InvalidIndices counts out-of-range or negative positions that an
	// index selector silently dropped.
	InvalidIndices int

	// Warnings are human-readable non-fatal diagnostics.
	Warnings []string
}

// MatchPolicy controls string comparison in criteria selectors. The
// source of truth for states/tags is a remote service whose casing
// conventions vary by process template, so matching is case-insensitive
// unless an operator opts out.
type MatchPolicy struct {
	CaseSensitive bool
}

// Resolver resolves selectors against registry entries.
type Resolver struct {
	registry *Registry
	policy   MatchPolicy
}

// NewResolver creates a resolver bound to a registry.
func NewResolver(reg *Registry, policy MatchPolicy) *Resolver {
	return &Resolver{registry: reg, policy: policy}
}

// Resolve looks the token up and applies the selector. ErrNotFound is
// the only error path besides an unrecognized selector kind; an empty
// match is a normal Selection carrying a warning.
func (r *Resolver) Resolve(token string, sel Selector) (Selection, error) {
	entry, err := r.registry.Get(token)
	if err != nil {
		return Selection{}, err
	}
	return r.ResolveEntry(entry, sel)
}

// ResolveEntry applies a selector to an already-fetched entry. Useful
// when a caller needs both the entry and the selection without a double
// lookup racing the sweep.
func (r *Resolver) ResolveEntry(entry *Entry, sel Selector) (Selection, error) {
	out := Selection{Token: entry.Token, TotalInHandle: len(entry.OrderedIDs)}

	switch sel.Kind {
	case KindAll:
		out.IDs = append([]int(nil), entry.OrderedIDs...)
	case KindIndices:
		out.IDs, out.InvalidIndices = selectByIndex(entry.OrderedIDs, sel.Indices)
		if out.InvalidIndices > 0 {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("dropped %d invalid index position(s) (valid range 0..%d)",
					out.InvalidIndices, len(entry.OrderedIDs)-1))
		}
	case KindCriteria:
		out.IDs = r.selectByCriteria(entry, sel.Criteria)
	default:
		return Selection{}, fmt.Errorf("%w: kind %q", ErrInvalidSelector, sel.Kind)
	}

	if len(out.IDs) == 0 {
		out.Warnings = append(out.Warnings, "selector matched zero items")
	}
	return out, nil
}

// selectByIndex picks positions out of ids, dropping invalid positions
// and collapsing duplicates while preserving first-occurrence order.
func selectByIndex(ids []int, indices []int) (selected []int, invalid int) {
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(ids) {
			invalid++
			continue
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		selected = append(selected, ids[i])
	}
	return selected, invalid
}

// selectByCriteria filters the entry's ids, preserving handle order.
func (r *Resolver) selectByCriteria(entry *Entry, c Criteria) []int {
	var selected []int
	for _, id := range entry.OrderedIDs {
		ctx, ok := entry.ContextFor(id)
		if !ok {
			continue
		}
		if r.matches(ctx, c) {
			selected = append(selected, id)
		}
	}
	return selected
}

func (r *Resolver) matches(ctx ItemContext, c Criteria) bool {
	if len(c.States) > 0 && !r.stringIn(ctx.State, c.States) {
		return false
	}
	if len(c.Tags) > 0 && !r.anyTagShared(ctx.Tags, c.Tags) {
		return false
	}
	if len(c.TitleContains) > 0 && !r.anySubstring(ctx.Title, c.TitleContains) {
		return false
	}
	if c.DaysInactiveMin != nil || c.DaysInactiveMax != nil {
		if ctx.DaysInactive == nil {
			return false
		}
		if c.DaysInactiveMin != nil && *ctx.DaysInactive < *c.DaysInactiveMin {
			return false
		}
		if c.DaysInactiveMax != nil && *ctx.DaysInactive > *c.DaysInactiveMax {
			return false
		}
	}
	return true
}

func (r *Resolver) equal(a, b string) bool {
	if r.policy.CaseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func (r *Resolver) stringIn(s string, set []string) bool {
	for _, candidate := range set {
		if r.equal(s, candidate) {
			return true
		}
	}
	return false
}

func (r *Resolver) anyTagShared(have, want []string) bool {
	for _, tag := range have {
		if r.stringIn(tag, want) {
			return true
		}
	}
	return false
}

func (r *Resolver) anySubstring(title string, subs []string) bool {
	probe := title
	if !r.policy.CaseSensitive {
		probe = strings.ToLower(title)
	}
	for _, sub := range subs {
		if !r.policy.CaseSensitive {
			sub = strings.ToLower(sub)
		}
		if strings.Contains(probe, sub) {
			return true
		}
	}
	return false
}
