package handle

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// tokenPrefix is the fixed prefix on every handle token. The suffix is
// random hex; nothing anywhere parses a token beyond equality checks.
const tokenPrefix = "qh-"

const (
	// DefaultTTL is how long a handle lives when the caller doesn't ask
	// for less.
	DefaultTTL = 24 * time.Hour

	// MaxTTL is the hard ceiling. Requests above it are clamped.
	MaxTTL = 48 * time.Hour

	// DefaultSweepInterval is how often the background sweep removes
	// expired entries.
	DefaultSweepInterval = 5 * time.Minute
)

// ErrNotFound is returned for a token that never existed, has expired,
// or was purged. The three cases are deliberately indistinguishable.
var ErrNotFound = errors.New("query handle not found or expired")

// timeNow is a package-level variable for testability.
// Tests can replace this to control time in assertions.
var timeNow = time.Now

// Options configures a Registry. Zero values fall back to the package
// defaults above.
type Options struct {
	DefaultTTL    time.Duration
	MaxTTL        time.Duration
	SweepInterval time.Duration
}

// Registry is the in-memory handle store. It is safe for concurrent
// use: entries are immutable and published atomically under the lock,
// so readers never observe a half-written entry.
//
// The registry owns a background sweeper; call Start after construction
// and Stop on shutdown.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	defaultTTL    time.Duration
	maxTTL        time.Duration
	sweepInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  bool
}

// NewRegistry creates a registry with the given options.
func NewRegistry(opts Options) *Registry {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.MaxTTL <= 0 {
		opts.MaxTTL = MaxTTL
	}
	if opts.DefaultTTL > opts.MaxTTL {
		opts.DefaultTTL = opts.MaxTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	return &Registry{
		entries:       make(map[string]*Entry),
		defaultTTL:    opts.DefaultTTL,
		maxTTL:        opts.MaxTTL,
		sweepInterval: opts.SweepInterval,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// newToken mints an unguessable opaque token: a fixed prefix plus the
// 32 hex chars of a random v4 UUID.
func newToken() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return tokenPrefix + raw
}

// Create captures a result set into a new entry and returns its token.
// An empty id list is valid — "the query matched nothing" must stay
// distinguishable from "bad token". Create cannot fail; a TTL above the
// ceiling is clamped rather than rejected.
func (r *Registry) Create(p CreateParams) string {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if ttl > r.maxTTL {
		ttl = r.maxTTL
	}

	now := timeNow()
	e := &Entry{
		Token:            newToken(),
		OrderedIDs:       append([]int(nil), p.OrderedIDs...),
		SourceQuery:      p.SourceQuery,
		ScopeMetadata:    p.ScopeMetadata,
		ItemContext:      p.ItemContext,
		AnalysisMetadata: p.AnalysisMetadata,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}

	r.mu.Lock()
	r.entries[e.Token] = e
	r.mu.Unlock()

	return e.Token
}

// Get returns the entry for a token, or ErrNotFound. An entry past its
// expiry is reported not-found even before the sweep removes it — there
// is no soft-expired-but-readable state. Get never mutates the store.
func (r *Registry) Get(token string) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[token]
	r.mu.RUnlock()

	if !ok || e.Expired(timeNow()) {
		return nil, ErrNotFound
	}
	return e, nil
}

// Purge removes a token immediately. Removing a missing token is not
// an error — purge is idempotent cleanup tooling.
func (r *Registry) Purge(token string) {
	r.mu.Lock()
	delete(r.entries, token)
	r.mu.Unlock()
}

// PurgeExpired scans all entries and removes those past their expiry,
// returning how many were removed.
func (r *Registry) PurgeExpired() int {
	now := timeNow()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for token, e := range r.entries {
		if e.Expired(now) {
			delete(r.entries, token)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored entries, expired or not.
// Diagnostic only.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Start launches the background sweeper. Call at most once, before any
// Stop.
func (r *Registry) Start() {
	r.started = true
	go r.sweepLoop()
}

// Stop shuts the sweeper down and waits for it to exit. Safe to call
// more than once, and safe even if Start was never called (there is no
// loop to wait for then).
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	if r.started {
		<-r.done
	}
}

func (r *Registry) sweepLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.PurgeExpired(); n > 0 {
				log.Printf("handle registry: swept %d expired handle(s), %d remaining", n, r.Count())
			}
		case <-r.stopCh:
			return
		}
	}
}

// Describe returns a one-line human summary of an entry for tool output.
func Describe(e *Entry) string {
	return fmt.Sprintf("%s: %d item(s), created %s, expires %s",
		e.Token, len(e.OrderedIDs),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.ExpiresAt.UTC().Format(time.RFC3339))
}
