package staleness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fakeSource serves canned histories and records which items were asked
// for.
type fakeSource struct {
	histories map[int]History
	errs      map[int]error
	asked     []int
}

func (f *fakeSource) History(ctx context.Context, itemID int) (History, error) {
	f.asked = append(f.asked, itemID)
	if err, ok := f.errs[itemID]; ok {
		return History{}, err
	}
	return f.histories[itemID], nil
}

// --- Analyze ---

func TestAnalyze_Verdict(t *testing.T) {
	frozenClassifyNow(t)
	src := &fakeSource{histories: map[int]History{
		5: {
			CreatedDate: base,
			Revisions: []Revision{
				rev(1, base, map[string]string{"System.Title": "A"}),
				rev(2, base.AddDate(0, 0, 4), map[string]string{"System.Title": "B"}),
			},
		},
	}}
	a := NewAnalyzer(src, DefaultFieldPolicy())

	v, err := a.Analyze(context.Background(), 5)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if v.ItemID != 5 {
		t.Errorf("ItemID = %d, want 5", v.ItemID)
	}
	if !v.LastSubstantiveChangeDate.Equal(base.AddDate(0, 0, 4)) {
		t.Errorf("LastSubstantiveChangeDate = %v", v.LastSubstantiveChangeDate)
	}
}

func TestAnalyze_FetchFailureWrapped(t *testing.T) {
	boom := errors.New("upstream 503")
	src := &fakeSource{errs: map[int]error{9: boom}}
	a := NewAnalyzer(src, DefaultFieldPolicy())

	_, err := a.Analyze(context.Background(), 9)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.ItemID != 9 {
		t.Errorf("FetchError.ItemID = %d, want 9", fe.ItemID)
	}
	if !errors.Is(err, boom) {
		t.Error("FetchError should unwrap to the upstream error")
	}
	if !strings.Contains(err.Error(), "item 9") {
		t.Errorf("error text = %q", err.Error())
	}
}

// --- AnalyzeAll ---

func TestAnalyzeAll_IsolatesPerItemFailures(t *testing.T) {
	frozenClassifyNow(t)
	src := &fakeSource{
		histories: map[int]History{
			1: {CreatedDate: base, Revisions: []Revision{rev(1, base, map[string]string{"System.Title": "A"})}},
			3: {CreatedDate: base, Revisions: []Revision{rev(1, base, map[string]string{"System.Title": "C"})}},
		},
		errs: map[int]error{2: fmt.Errorf("timeout")},
	}
	a := NewAnalyzer(src, DefaultFieldPolicy())

	result, err := a.AnalyzeAll(context.Background(), []int{1, 2, 3})
	if err != nil {
		t.Fatalf("AnalyzeAll failed: %v", err)
	}
	if len(result.Verdicts) != 2 {
		t.Errorf("Verdicts = %d, want 2", len(result.Verdicts))
	}
	if _, ok := result.Verdicts[3]; !ok {
		t.Error("item after the failing one should still be analyzed")
	}
	if len(result.Failures) != 1 || result.Failures[0].ItemID != 2 {
		t.Errorf("Failures = %v, want one failure for item 2", result.Failures)
	}
}

func TestAnalyzeAll_ContextCancelStopsBatch(t *testing.T) {
	src := &fakeSource{histories: map[int]History{}}
	a := NewAnalyzer(src, DefaultFieldPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.AnalyzeAll(ctx, []int{1, 2, 3})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(src.asked) != 0 {
		t.Errorf("no fetches should run after cancellation, got %v", src.asked)
	}
}

func TestAnalyzeAll_EmptyInput(t *testing.T) {
	a := NewAnalyzer(&fakeSource{}, DefaultFieldPolicy())

	result, err := a.AnalyzeAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("AnalyzeAll failed: %v", err)
	}
	if len(result.Verdicts) != 0 || len(result.Failures) != 0 {
		t.Errorf("empty input should yield empty result: %+v", result)
	}
}

func TestAnalyzeAll_NoHistoryItem(t *testing.T) {
	src := &fakeSource{histories: map[int]History{
		4: {CreatedDate: time.Time{}, Revisions: nil},
	}}
	a := NewAnalyzer(src, DefaultFieldPolicy())

	result, err := a.AnalyzeAll(context.Background(), []int{4})
	if err != nil {
		t.Fatalf("AnalyzeAll failed: %v", err)
	}
	v := result.Verdicts[4]
	if v.DaysInactive != nil {
		t.Errorf("no-history verdict should carry nil DaysInactive: %+v", v)
	}
}
