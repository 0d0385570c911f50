// Package staleness computes, per work item, the last substantive
// (non-automated) modification by walking the item's revision history.
//
// Bulk iteration moves, backlog re-filing, and similar field churn make
// the service's ChangedDate useless as a signal of real work. The
// classifier separates revisions that touched substantive fields
// (title, description, state, assignee...) from churn on automation
// fields (iteration path, area path, stack rank...), and the analyzer
// folds the walk into a single freshness verdict.
package staleness

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Revision is one historical field snapshot of a work item, as returned
// by the revision-history collaborator.
type Revision struct {
	// Rev is the revision number (1 is the creation revision).
	Rev int

	// ChangedDate is when the revision was written. nil on a malformed
	// revision, which contributes no detectable change.
	ChangedDate *time.Time

	// Fields holds the tracked field values at this revision, keyed by
	// reference name (e.g. "System.Title").
	Fields map[string]string
}

// ChangeClass says whether a revision represents real work.
type ChangeClass int

const (
	// ClassAutomated covers automation-field churn, no-op revisions,
	// and malformed revisions.
	ClassAutomated ChangeClass = iota
	// ClassSubstantive covers revisions that changed at least one
	// substantive field, and the creation revision itself.
	ClassSubstantive
)

// FieldPolicy partitions tracked fields into substantive and automated
// sets. A field in neither set is untracked and ignored by the diff.
type FieldPolicy struct {
	Substantive []string
	Automated   []string
}

// DefaultFieldPolicy reflects how Azure DevOps process templates churn
// in practice: planning/filing fields move in bulk sweeps, content
// fields move when someone does work.
func DefaultFieldPolicy() FieldPolicy {
	return FieldPolicy{
		Substantive: []string{
			"System.Title",
			"System.Description",
			"System.State",
			"System.AssignedTo",
			"Microsoft.VSTS.Common.AcceptanceCriteria",
			"Microsoft.VSTS.TCM.ReproSteps",
		},
		Automated: []string{
			"System.IterationPath",
			"System.AreaPath",
			"Microsoft.VSTS.Common.StackRank",
			"Microsoft.VSTS.Common.BacklogPriority",
			"System.Parent",
			"System.Tags",
		},
	}
}

// Classification is the verdict for a single revision.
type Classification struct {
	Class  ChangeClass
	Reason string
}

// ClassifyRevision diffs a revision against its immediately older
// predecessor. prev == nil means rev is the oldest revision in the
// window: it is substantive only if it is the creation revision itself.
func ClassifyRevision(rev Revision, prev *Revision, policy FieldPolicy) Classification {
	if prev == nil {
		if rev.Rev == 1 {
			return Classification{Class: ClassSubstantive, Reason: "creation"}
		}
		// Oldest revision in a truncated window — nothing to diff against.
		return Classification{Class: ClassAutomated, Reason: "no detectable change"}
	}
	if rev.ChangedDate == nil || rev.Fields == nil {
		return Classification{Class: ClassAutomated, Reason: "no detectable change"}
	}

	if changed := diffFields(rev, *prev, policy.Substantive); len(changed) > 0 {
		return Classification{
			Class:  ClassSubstantive,
			Reason: "changed: " + strings.Join(changed, ", "),
		}
	}
	if changed := diffFields(rev, *prev, policy.Automated); len(changed) > 0 {
		return Classification{
			Class:  ClassAutomated,
			Reason: "automated: " + strings.Join(changed, ", "),
		}
	}
	return Classification{Class: ClassAutomated, Reason: "no detectable change"}
}

// diffFields returns the names from tracked whose values differ between
// rev and prev, in tracked order.
func diffFields(rev, prev Revision, tracked []string) []string {
	var changed []string
	for _, field := range tracked {
		if rev.Fields[field] != prev.Fields[field] {
			changed = append(changed, shortFieldName(field))
		}
	}
	return changed
}

// shortFieldName trims the reference-name prefix for readable reasons:
// "System.Title" → "Title".
func shortFieldName(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		return field[i+1:]
	}
	return field
}

// sortNewestFirst orders revisions newest-first; revisions without a
// timestamp sink to the end so they are examined (and skipped) last.
// The input slice is not modified.
func sortNewestFirst(revs []Revision) []Revision {
	sorted := append([]Revision(nil), revs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].ChangedDate, sorted[j].ChangedDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return sorted
}

// describeFallback is the reason used when the walk finds nothing
// substantive and falls back to the creation date.
const describeFallback = "no substantive change since creation"

// Verdict is the analyzer's output for one item.
type Verdict struct {
	ItemID int `json:"itemId"`

	// LastSubstantiveChangeDate is nil only when the item had no
	// history at all.
	LastSubstantiveChangeDate *time.Time `json:"lastSubstantiveChangeDate"`

	// DaysInactive is the whole-day gap between now and the last
	// substantive change. nil when there was no history.
	DaysInactive *int `json:"daysInactive"`

	// LastChangeReason describes which fields changed, or "creation",
	// or the no-substantive-change fallback.
	LastChangeReason string `json:"lastChangeReason"`

	// AutomatedRevisionsSkipped counts revisions walked past before the
	// first substantive one.
	AutomatedRevisionsSkipped int `json:"automatedRevisionsSkipped"`

	// AllChangesAutomated is true when every examined revision was
	// classified automated.
	AllChangesAutomated bool `json:"allChangesAutomated"`
}

// Summary renders the verdict as a one-line human description.
func (v Verdict) Summary() string {
	if v.DaysInactive == nil {
		return fmt.Sprintf("#%d: no history", v.ItemID)
	}
	return fmt.Sprintf("#%d: %d day(s) inactive (%s, %d automated revision(s) skipped)",
		v.ItemID, *v.DaysInactive, v.LastChangeReason, v.AutomatedRevisionsSkipped)
}
