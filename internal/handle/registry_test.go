package handle

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// withFrozenTime pins timeNow to a fixed instant for the duration of
// the test and returns it.
func withFrozenTime(t *testing.T) time.Time {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })
	return now
}

// advanceTime moves the frozen clock forward.
func advanceTime(t *testing.T, base time.Time, by time.Duration) {
	t.Helper()
	moved := base.Add(by)
	timeNow = func() time.Time { return moved }
}

func newTestRegistry() *Registry {
	return NewRegistry(Options{})
}

// --- Token format ---

func TestNewToken_PrefixAndLength(t *testing.T) {
	token := newToken()
	if !strings.HasPrefix(token, tokenPrefix) {
		t.Errorf("token %q should start with %q", token, tokenPrefix)
	}
	suffix := strings.TrimPrefix(token, tokenPrefix)
	if len(suffix) != 32 {
		t.Errorf("token suffix length = %d, want 32", len(suffix))
	}
	for _, r := range suffix {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("token suffix contains non-hex rune %q", r)
		}
	}
}

func TestNewToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token := newToken()
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}

// --- Create / Get ---

func TestCreateGet_RoundTrip(t *testing.T) {
	withFrozenTime(t)
	reg := newTestRegistry()

	ids := []int{101, 102, 103}
	token := reg.Create(CreateParams{
		OrderedIDs:    ids,
		SourceQuery:   "SELECT [System.Id] FROM WorkItems",
		ScopeMetadata: map[string]string{"project": "Contoso"},
	})

	entry, err := reg.Get(token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(entry.OrderedIDs) != 3 {
		t.Fatalf("OrderedIDs length = %d, want 3", len(entry.OrderedIDs))
	}
	for i, id := range ids {
		if entry.OrderedIDs[i] != id {
			t.Errorf("OrderedIDs[%d] = %d, want %d", i, entry.OrderedIDs[i], id)
		}
	}
	if entry.SourceQuery != "SELECT [System.Id] FROM WorkItems" {
		t.Errorf("SourceQuery = %q", entry.SourceQuery)
	}
	if !entry.ExpiresAt.After(entry.CreatedAt) {
		t.Error("ExpiresAt should be after CreatedAt")
	}
}

func TestCreate_CopiesOrderedIDs(t *testing.T) {
	reg := newTestRegistry()

	ids := []int{1, 2, 3}
	token := reg.Create(CreateParams{OrderedIDs: ids})
	ids[0] = 999

	entry, err := reg.Get(token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.OrderedIDs[0] != 1 {
		t.Errorf("entry should hold its own copy of ids, got %d", entry.OrderedIDs[0])
	}
}

func TestCreate_PreservesDuplicates(t *testing.T) {
	reg := newTestRegistry()

	token := reg.Create(CreateParams{OrderedIDs: []int{7, 7, 8}})
	entry, err := reg.Get(token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(entry.OrderedIDs) != 3 {
		t.Errorf("duplicates must be preserved, got %v", entry.OrderedIDs)
	}
}

func TestCreate_EmptyIDsIsValid(t *testing.T) {
	reg := newTestRegistry()

	token := reg.Create(CreateParams{OrderedIDs: nil})
	entry, err := reg.Get(token)
	if err != nil {
		t.Fatalf("an empty handle must still be resolvable: %v", err)
	}
	if len(entry.OrderedIDs) != 0 {
		t.Errorf("OrderedIDs = %v, want empty", entry.OrderedIDs)
	}
}

func TestGet_UnknownToken(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.Get("qh-00000000000000000000000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// --- TTL ---

func TestCreate_TTLClampedToCeiling(t *testing.T) {
	now := withFrozenTime(t)
	reg := newTestRegistry()

	token := reg.Create(CreateParams{OrderedIDs: []int{1}, TTL: 500 * time.Hour})
	entry, err := reg.Get(token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := now.Add(MaxTTL)
	if !entry.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want clamped to %v", entry.ExpiresAt, want)
	}
}

func TestCreate_ShorterTTLHonored(t *testing.T) {
	now := withFrozenTime(t)
	reg := newTestRegistry()

	token := reg.Create(CreateParams{OrderedIDs: []int{1}, TTL: time.Hour})
	entry, err := reg.Get(token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !entry.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", entry.ExpiresAt, now.Add(time.Hour))
	}
}

func TestGet_ExpiredBeforeSweepIsNotFound(t *testing.T) {
	now := withFrozenTime(t)
	reg := newTestRegistry()

	token := reg.Create(CreateParams{OrderedIDs: []int{1}, TTL: time.Minute})
	advanceTime(t, now, 2*time.Minute)

	if _, err := reg.Get(token); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired handle: err = %v, want ErrNotFound", err)
	}
	// Still physically present until the sweep runs.
	if reg.Count() != 1 {
		t.Errorf("Count = %d, want 1 until swept", reg.Count())
	}
}

// --- Purge ---

func TestPurgeExpired_RemovesOnlyExpired(t *testing.T) {
	now := withFrozenTime(t)
	reg := newTestRegistry()

	short := reg.Create(CreateParams{OrderedIDs: []int{1}, TTL: time.Minute})
	long := reg.Create(CreateParams{OrderedIDs: []int{2}, TTL: time.Hour})

	advanceTime(t, now, 10*time.Minute)

	if removed := reg.PurgeExpired(); removed != 1 {
		t.Errorf("PurgeExpired removed %d, want 1", removed)
	}
	if _, err := reg.Get(short); !errors.Is(err, ErrNotFound) {
		t.Error("short-lived handle should be gone")
	}
	if _, err := reg.Get(long); err != nil {
		t.Errorf("long-lived handle should survive: %v", err)
	}
	if reg.Count() != 1 {
		t.Errorf("Count = %d, want 1", reg.Count())
	}
}

func TestPurge_Idempotent(t *testing.T) {
	reg := newTestRegistry()

	token := reg.Create(CreateParams{OrderedIDs: []int{1}})
	reg.Purge(token)
	reg.Purge(token) // second purge must not panic or error

	if _, err := reg.Get(token); !errors.Is(err, ErrNotFound) {
		t.Error("purged handle should be not-found")
	}
	reg.Purge("qh-never-existed")
}

// --- Concurrency ---

func TestRegistry_ConcurrentCreateGetPurge(t *testing.T) {
	reg := newTestRegistry()

	var wg sync.WaitGroup
	tokens := make([]string, 50)
	for i := range tokens {
		tokens[i] = reg.Create(CreateParams{OrderedIDs: []int{i}})
	}

	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			reg.Create(CreateParams{OrderedIDs: []int{i}})
		}(i)
		go func(i int) {
			defer wg.Done()
			// Either a full entry or not-found — never a partial view.
			if entry, err := reg.Get(tokens[i]); err == nil {
				if len(entry.OrderedIDs) != 1 || entry.OrderedIDs[0] != i {
					t.Errorf("torn read: %v", entry.OrderedIDs)
				}
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				reg.Purge(tokens[i])
			} else {
				reg.PurgeExpired()
			}
		}(i)
	}
	wg.Wait()
}

func TestRegistry_SweeperLifecycle(t *testing.T) {
	reg := NewRegistry(Options{SweepInterval: 10 * time.Millisecond})
	reg.Start()
	reg.Stop()

	// Stop blocks until the loop has exited, so done must already be
	// closed here.
	select {
	case <-reg.done:
	default:
		t.Fatal("Stop returned before the sweeper exited")
	}

	reg.Stop() // idempotent
}

func TestRegistry_StopWithoutStart(t *testing.T) {
	reg := NewRegistry(Options{})
	reg.Stop() // must return: there is no sweeper to wait for
}

// --- Options ---

func TestNewRegistry_DefaultClampsDefaultTTL(t *testing.T) {
	now := withFrozenTime(t)
	reg := NewRegistry(Options{DefaultTTL: 100 * time.Hour, MaxTTL: 10 * time.Hour})

	token := reg.Create(CreateParams{OrderedIDs: []int{1}})
	entry, err := reg.Get(token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !entry.ExpiresAt.Equal(now.Add(10 * time.Hour)) {
		t.Errorf("default TTL should be clamped to the ceiling, got %v", entry.ExpiresAt)
	}
}
