package staleness

import (
	"strings"
	"testing"
	"time"
)

func tp(t time.Time) *time.Time { return &t }

var (
	base = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
)

func rev(n int, at time.Time, fields map[string]string) Revision {
	return Revision{Rev: n, ChangedDate: tp(at), Fields: fields}
}

// --- ClassifyRevision ---

func TestClassifyRevision_Creation(t *testing.T) {
	cls := ClassifyRevision(rev(1, base, map[string]string{"System.Title": "A"}), nil, DefaultFieldPolicy())
	if cls.Class != ClassSubstantive {
		t.Errorf("creation revision class = %v, want substantive", cls.Class)
	}
	if cls.Reason != "creation" {
		t.Errorf("reason = %q, want creation", cls.Reason)
	}
}

func TestClassifyRevision_TruncatedWindowOldest(t *testing.T) {
	// Oldest revision in a truncated window is not the creation revision;
	// with nothing to diff against it cannot claim a change.
	cls := ClassifyRevision(rev(7, base, map[string]string{"System.Title": "A"}), nil, DefaultFieldPolicy())
	if cls.Class != ClassAutomated {
		t.Errorf("class = %v, want automated", cls.Class)
	}
}

func TestClassifyRevision_SubstantiveFieldChange(t *testing.T) {
	prev := rev(1, base, map[string]string{"System.Title": "Old title", "System.State": "New"})
	cur := rev(2, base.Add(time.Hour), map[string]string{"System.Title": "New title", "System.State": "New"})

	cls := ClassifyRevision(cur, &prev, DefaultFieldPolicy())
	if cls.Class != ClassSubstantive {
		t.Fatalf("class = %v, want substantive", cls.Class)
	}
	if !strings.Contains(cls.Reason, "Title") {
		t.Errorf("reason = %q, want it to name Title", cls.Reason)
	}
}

func TestClassifyRevision_AutomatedFieldChange(t *testing.T) {
	prev := rev(1, base, map[string]string{"System.IterationPath": "Sprint 1", "System.Title": "A"})
	cur := rev(2, base.Add(time.Hour), map[string]string{"System.IterationPath": "Sprint 2", "System.Title": "A"})

	cls := ClassifyRevision(cur, &prev, DefaultFieldPolicy())
	if cls.Class != ClassAutomated {
		t.Fatalf("class = %v, want automated", cls.Class)
	}
	if !strings.Contains(cls.Reason, "IterationPath") {
		t.Errorf("reason = %q, want it to name IterationPath", cls.Reason)
	}
}

func TestClassifyRevision_SubstantiveWinsOverAutomated(t *testing.T) {
	// A revision touching both a substantive and an automated field is
	// substantive.
	prev := rev(1, base, map[string]string{"System.State": "New", "System.IterationPath": "Sprint 1"})
	cur := rev(2, base.Add(time.Hour), map[string]string{"System.State": "Active", "System.IterationPath": "Sprint 2"})

	cls := ClassifyRevision(cur, &prev, DefaultFieldPolicy())
	if cls.Class != ClassSubstantive {
		t.Errorf("class = %v, want substantive", cls.Class)
	}
}

func TestClassifyRevision_NoTrackedChange(t *testing.T) {
	prev := rev(1, base, map[string]string{"System.Title": "A", "Custom.Whatever": "1"})
	cur := rev(2, base.Add(time.Hour), map[string]string{"System.Title": "A", "Custom.Whatever": "2"})

	cls := ClassifyRevision(cur, &prev, DefaultFieldPolicy())
	if cls.Class != ClassAutomated {
		t.Errorf("untracked-field churn class = %v, want automated", cls.Class)
	}
	if cls.Reason != "no detectable change" {
		t.Errorf("reason = %q", cls.Reason)
	}
}

func TestClassifyRevision_MalformedRevision(t *testing.T) {
	prev := rev(1, base, map[string]string{"System.Title": "A"})

	noDate := Revision{Rev: 2, Fields: map[string]string{"System.Title": "B"}}
	if cls := ClassifyRevision(noDate, &prev, DefaultFieldPolicy()); cls.Class != ClassAutomated {
		t.Errorf("revision without timestamp: class = %v, want automated", cls.Class)
	}

	noFields := Revision{Rev: 2, ChangedDate: tp(base.Add(time.Hour))}
	if cls := ClassifyRevision(noFields, &prev, DefaultFieldPolicy()); cls.Class != ClassAutomated {
		t.Errorf("revision without fields: class = %v, want automated", cls.Class)
	}
}

// --- Classify ---

func frozenClassifyNow(t *testing.T) time.Time {
	t.Helper()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })
	return now
}

func TestClassify_StopsAtFirstSubstantive(t *testing.T) {
	frozenClassifyNow(t)
	// Title changed at rev 2 (July 3), then two automated sweeps after.
	revs := []Revision{
		rev(1, base, map[string]string{"System.Title": "A", "System.IterationPath": "S1"}),
		rev(2, base.AddDate(0, 0, 2), map[string]string{"System.Title": "B", "System.IterationPath": "S1"}),
		rev(3, base.AddDate(0, 0, 10), map[string]string{"System.Title": "B", "System.IterationPath": "S2"}),
		rev(4, base.AddDate(0, 0, 20), map[string]string{"System.Title": "B", "System.IterationPath": "S3"}),
	}

	v := Classify(42, base, revs, DefaultFieldPolicy())
	if v.LastSubstantiveChangeDate == nil || !v.LastSubstantiveChangeDate.Equal(base.AddDate(0, 0, 2)) {
		t.Errorf("LastSubstantiveChangeDate = %v, want rev 2's date", v.LastSubstantiveChangeDate)
	}
	if v.AutomatedRevisionsSkipped != 2 {
		t.Errorf("AutomatedRevisionsSkipped = %d, want 2", v.AutomatedRevisionsSkipped)
	}
	if !strings.Contains(v.LastChangeReason, "Title") {
		t.Errorf("reason = %q, want it to name Title", v.LastChangeReason)
	}
	if v.AllChangesAutomated {
		t.Error("AllChangesAutomated should be false")
	}
	// 2026-07-03 → 2026-08-01 is 29 whole days.
	if v.DaysInactive == nil || *v.DaysInactive != 29 {
		t.Errorf("DaysInactive = %v, want 29", v.DaysInactive)
	}
}

func TestClassify_NewestSubstantiveWinsWithoutSkips(t *testing.T) {
	frozenClassifyNow(t)
	revs := []Revision{
		rev(1, base, map[string]string{"System.Title": "A"}),
		rev(2, base.AddDate(0, 0, 5), map[string]string{"System.Title": "B"}),
	}

	v := Classify(1, base, revs, DefaultFieldPolicy())
	if v.AutomatedRevisionsSkipped != 0 {
		t.Errorf("AutomatedRevisionsSkipped = %d, want 0", v.AutomatedRevisionsSkipped)
	}
	if !v.LastSubstantiveChangeDate.Equal(base.AddDate(0, 0, 5)) {
		t.Errorf("LastSubstantiveChangeDate = %v", v.LastSubstantiveChangeDate)
	}
}

func TestClassify_AllAutomatedFallsBackToCreation(t *testing.T) {
	frozenClassifyNow(t)
	created := base.AddDate(0, -1, 0) // June 1
	// Window truncated: oldest revision is rev 5, every diff is churn.
	revs := []Revision{
		rev(5, base, map[string]string{"System.IterationPath": "S1", "System.Title": "A"}),
		rev(6, base.AddDate(0, 0, 3), map[string]string{"System.IterationPath": "S2", "System.Title": "A"}),
		rev(7, base.AddDate(0, 0, 6), map[string]string{"System.IterationPath": "S3", "System.Title": "A"}),
	}

	v := Classify(9, created, revs, DefaultFieldPolicy())
	if v.LastSubstantiveChangeDate == nil || !v.LastSubstantiveChangeDate.Equal(created) {
		t.Errorf("LastSubstantiveChangeDate = %v, want creation date %v", v.LastSubstantiveChangeDate, created)
	}
	if !v.AllChangesAutomated {
		t.Error("AllChangesAutomated should be true")
	}
	if v.AutomatedRevisionsSkipped != 3 {
		t.Errorf("AutomatedRevisionsSkipped = %d, want 3", v.AutomatedRevisionsSkipped)
	}
	if v.LastChangeReason != "no substantive change since creation" {
		t.Errorf("reason = %q", v.LastChangeReason)
	}
	// June 1 → August 1 is 61 whole days.
	if v.DaysInactive == nil || *v.DaysInactive != 61 {
		t.Errorf("DaysInactive = %v, want 61", v.DaysInactive)
	}
}

func TestClassify_CreationRevisionAnchors(t *testing.T) {
	frozenClassifyNow(t)
	revs := []Revision{
		rev(1, base, map[string]string{"System.Title": "A"}),
	}

	v := Classify(3, base, revs, DefaultFieldPolicy())
	if v.LastChangeReason != "creation" {
		t.Errorf("reason = %q, want creation", v.LastChangeReason)
	}
	if !v.LastSubstantiveChangeDate.Equal(base) {
		t.Errorf("LastSubstantiveChangeDate = %v, want %v", v.LastSubstantiveChangeDate, base)
	}
}

func TestClassify_EmptyHistory(t *testing.T) {
	v := Classify(8, base, nil, DefaultFieldPolicy())
	if v.LastSubstantiveChangeDate != nil || v.DaysInactive != nil {
		t.Errorf("empty history verdict should carry nils: %+v", v)
	}
	if v.LastChangeReason != "no history" {
		t.Errorf("reason = %q", v.LastChangeReason)
	}
	if got := v.Summary(); !strings.Contains(got, "no history") {
		t.Errorf("Summary() = %q", got)
	}
}

func TestClassify_InputOrderIrrelevant(t *testing.T) {
	frozenClassifyNow(t)
	revs := []Revision{
		rev(3, base.AddDate(0, 0, 10), map[string]string{"System.Title": "C"}),
		rev(1, base, map[string]string{"System.Title": "A"}),
		rev(2, base.AddDate(0, 0, 5), map[string]string{"System.Title": "B"}),
	}

	v := Classify(2, base, revs, DefaultFieldPolicy())
	if !v.LastSubstantiveChangeDate.Equal(base.AddDate(0, 0, 10)) {
		t.Errorf("LastSubstantiveChangeDate = %v, want newest revision's date", v.LastSubstantiveChangeDate)
	}
}

func TestClassify_ClockSkewFloorsAtZero(t *testing.T) {
	now := frozenClassifyNow(t)
	revs := []Revision{
		rev(1, now.Add(time.Hour), map[string]string{"System.Title": "A"}),
	}

	v := Classify(4, now.Add(time.Hour), revs, DefaultFieldPolicy())
	if v.DaysInactive == nil || *v.DaysInactive != 0 {
		t.Errorf("DaysInactive = %v, want 0 for a future timestamp", v.DaysInactive)
	}
}

func TestVerdictSummary(t *testing.T) {
	days := 12
	v := Verdict{
		ItemID:                    7,
		DaysInactive:              &days,
		LastChangeReason:          "changed: State",
		AutomatedRevisionsSkipped: 3,
	}
	got := v.Summary()
	for _, want := range []string{"#7", "12 day(s)", "changed: State", "3 automated"} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() = %q, missing %q", got, want)
		}
	}
}
