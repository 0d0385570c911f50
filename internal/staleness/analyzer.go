package staleness

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// timeNow is a package-level variable for testability.
// Tests can replace this to control time in assertions.
var timeNow = time.Now

// History is an item's fetched revision history plus its creation date.
type History struct {
	CreatedDate time.Time
	Revisions   []Revision
}

// HistorySource fetches revision history for a work item. The azdo
// client implements it; tests use fakes. A failed fetch is a transient
// upstream error and is propagated, never masked.
type HistorySource interface {
	History(ctx context.Context, itemID int) (History, error)
}

// FetchError marks an upstream history fetch failure, carrying the item
// id so batch callers can report which item failed.
type FetchError struct {
	ItemID int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching revision history for item %d: %v", e.ItemID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Analyzer turns revision histories into freshness verdicts.
type Analyzer struct {
	source HistorySource
	policy FieldPolicy
}

// NewAnalyzer creates an analyzer with the given history source and
// field policy.
func NewAnalyzer(source HistorySource, policy FieldPolicy) *Analyzer {
	return &Analyzer{source: source, policy: policy}
}

// Analyze fetches an item's history and computes its verdict.
func (a *Analyzer) Analyze(ctx context.Context, itemID int) (Verdict, error) {
	hist, err := a.source.History(ctx, itemID)
	if err != nil {
		return Verdict{}, &FetchError{ItemID: itemID, Err: err}
	}
	return Classify(itemID, hist.CreatedDate, hist.Revisions, a.policy), nil
}

// BatchResult pairs per-item verdicts with per-item failures. One item
// failing to fetch never poisons the rest of the batch.
type BatchResult struct {
	Verdicts map[int]Verdict
	Failures []*FetchError
}

// AnalyzeAll analyzes every id, continuing past per-item fetch
// failures. The context cancels the whole batch between items.
func (a *Analyzer) AnalyzeAll(ctx context.Context, itemIDs []int) (BatchResult, error) {
	result := BatchResult{Verdicts: make(map[int]Verdict, len(itemIDs))}
	for _, id := range itemIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		verdict, err := a.Analyze(ctx, id)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) {
				result.Failures = append(result.Failures, fe)
				continue
			}
			return result, err
		}
		result.Verdicts[id] = verdict
	}
	return result, nil
}

// Classify is the pure core: walk revisions newest to oldest, stop at
// the first substantive one, fall back to the creation date when every
// revision was automated churn.
func Classify(itemID int, createdDate time.Time, revisions []Revision, policy FieldPolicy) Verdict {
	if len(revisions) == 0 {
		return Verdict{ItemID: itemID, LastChangeReason: "no history"}
	}

	sorted := sortNewestFirst(revisions)
	now := timeNow()

	skipped := 0
	for i, rev := range sorted {
		var prev *Revision
		if i+1 < len(sorted) {
			prev = &sorted[i+1]
		}

		cls := ClassifyRevision(rev, prev, policy)
		if cls.Class != ClassSubstantive {
			skipped++
			continue
		}

		ts := rev.ChangedDate
		if ts == nil {
			// Creation revision without a timestamp; the item's
			// creation date is the best available anchor.
			ts = &createdDate
		}
		days := wholeDays(now, *ts)
		return Verdict{
			ItemID:                    itemID,
			LastSubstantiveChangeDate: ts,
			DaysInactive:              &days,
			LastChangeReason:          cls.Reason,
			AutomatedRevisionsSkipped: skipped,
			AllChangesAutomated:       false,
		}
	}

	// Nothing substantive in the window: anchor on creation.
	created := createdDate
	days := wholeDays(now, created)
	return Verdict{
		ItemID:                    itemID,
		LastSubstantiveChangeDate: &created,
		DaysInactive:              &days,
		LastChangeReason:          describeFallback,
		AutomatedRevisionsSkipped: skipped,
		AllChangesAutomated:       skipped == len(sorted),
	}
}

// wholeDays is the whole-day difference between now and then, floored
// at zero for clock skew.
func wholeDays(now, then time.Time) int {
	d := int(now.Sub(then).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
