// Package azdo talks to the Azure DevOps work item tracking REST API.
//
// The rest of the server depends only on the small interfaces below
// (QueryExecutor, RevisionSource, Mutator); Client is the default HTTP
// implementation. Keeping the boundary narrow lets tools and the
// staleness analyzer run against fakes in tests.
package azdo

import (
	"context"
	"time"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/staleness"
)

// QueryResult is what a WIQL run produces: the ordered ids and a
// context snapshot for each id that could be hydrated.
type QueryResult struct {
	// IDs preserves the query's own ordering.
	IDs []int

	// Context maps a subset of IDs to their captured snapshots.
	Context map[int]handle.ItemContext
}

// QueryExecutor runs a WIQL query downstream. The query text is never
// parsed locally — Azure DevOps executes it and reports the ordered
// result set.
type QueryExecutor interface {
	RunQuery(ctx context.Context, wiql string) (QueryResult, error)
}

// RevisionSource fetches an item's full revision history and creation
// date. It satisfies staleness.HistorySource.
type RevisionSource interface {
	History(ctx context.Context, itemID int) (staleness.History, error)
}

// FieldUpdate is one field assignment in a bulk update.
type FieldUpdate struct {
	// Field is the reference name, e.g. "System.Priority".
	Field string
	// Value is the new value, serialized as the API expects.
	Value string
}

// ItemError reports a per-item failure inside a bulk operation.
type ItemError struct {
	ItemID int
	Err    error
}

// BulkOutcome summarizes a bulk mutation. The downstream service's own
// concurrency control is authoritative — Succeeded only means the API
// accepted each write.
type BulkOutcome struct {
	// OperationID correlates log lines for one bulk run.
	OperationID string
	Succeeded   []int
	Failed      []ItemError
}

// Mutator performs writes against the work tracking service. Every
// method takes the already-resolved id subsequence — raw agent-supplied
// ids never reach this interface.
type Mutator interface {
	AddComments(ctx context.Context, itemIDs []int, comment string) (BulkOutcome, error)
	UpdateFields(ctx context.Context, itemIDs []int, updates []FieldUpdate) (BulkOutcome, error)
	TransitionState(ctx context.Context, itemIDs []int, state string) (BulkOutcome, error)
}

// contextFields are the work item fields hydrated into ItemContext on
// query capture.
var contextFields = []string{
	"System.Title",
	"System.State",
	"System.WorkItemType",
	"System.Tags",
	"System.AssignedTo",
	"System.ChangedDate",
}

// apiVersion is the Azure DevOps REST API version used throughout.
const apiVersion = "7.1"

// requestTimeout bounds any single REST call.
const requestTimeout = 30 * time.Second
