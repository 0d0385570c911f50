package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/azdo"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/staleness"
)

// maxQueryPreview is how many items the capture summary lists.
const maxQueryPreview = 25

// QueryTool handles the wit_query MCP tool. It runs a WIQL query
// downstream, captures the ordered result set into a fresh handle, and
// hands the agent a token — never raw ids.
type QueryTool struct {
	executor azdo.QueryExecutor
	registry *handle.Registry
	analyzer *staleness.Analyzer
	project  string
}

// NewQueryTool creates a QueryTool with its dependencies.
func NewQueryTool(executor azdo.QueryExecutor, registry *handle.Registry, analyzer *staleness.Analyzer, project string) *QueryTool {
	return &QueryTool{executor: executor, registry: registry, analyzer: analyzer, project: project}
}

// Definition returns the MCP tool definition for wit_query.
func (t *QueryTool) Definition() mcp.Tool {
	return mcp.NewTool("wit_query",
		mcp.WithDescription(
			"Run a WIQL query against the backlog and capture the result set into an "+
				"opaque query handle. The response contains the handle token; pass that "+
				"token plus a selector to the wit_bulk_* tools. NEVER type work item ids "+
				"by hand — always address items through a handle.",
		),
		mcp.WithString("wiql",
			mcp.Required(),
			mcp.Description("The WIQL query text, e.g. \"SELECT [System.Id] FROM WorkItems WHERE [System.State] = 'Active' ORDER BY [System.ChangedDate] DESC\"."),
		),
		mcp.WithBoolean("analyze_staleness",
			mcp.Description("Also compute days-inactive for every item (walks revision "+
				"histories — slower on large result sets). Enables daysInactiveMin/Max "+
				"criteria selectors on the handle."),
		),
		mcp.WithString("ttl",
			mcp.Description("Optional handle lifetime as a duration (\"2h\", \"30m\"). "+
				"Shorter than the server default only; longer requests are clamped."),
		),
	)
}

// Handle processes the wit_query tool call.
func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wiql := strings.TrimSpace(req.GetString("wiql", ""))
	if wiql == "" {
		return mcp.NewToolResultError("'wiql' is required — provide the query to run"), nil
	}
	ttl, err := ttlArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.executor.RunQuery(ctx, wiql)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	var analysisMeta map[string]any
	var fetchFailures []*staleness.FetchError
	if boolArg(req, "analyze_staleness", false) && len(result.IDs) > 0 {
		batch, err := t.analyzer.AnalyzeAll(ctx, result.IDs)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("staleness analysis aborted: %v", err)), nil
		}
		fetchFailures = batch.Failures
		analyzed := 0
		for id, verdict := range batch.Verdicts {
			if verdict.DaysInactive == nil {
				continue
			}
			ctx := result.Context[id]
			ctx.DaysInactive = verdict.DaysInactive
			result.Context[id] = ctx
			analyzed++
		}
		analysisMeta = map[string]any{
			"stalenessAnalyzed": analyzed,
			"stalenessFailures": len(batch.Failures),
		}
	}

	token := t.registry.Create(handle.CreateParams{
		OrderedIDs:  result.IDs,
		SourceQuery: wiql,
		ScopeMetadata: map[string]string{
			"project":   t.project,
			"entryType": "query-result",
		},
		ItemContext:      result.Context,
		AnalysisMetadata: analysisMeta,
		TTL:              ttl,
	})

	entry, err := t.registry.Get(token)
	if err != nil {
		return nil, fmt.Errorf("reading back handle %s: %w", token, err)
	}

	var sb strings.Builder
	sb.WriteString("## Query Captured\n\n")
	fmt.Fprintf(&sb, "- **Handle**: `%s`\n", token)
	fmt.Fprintf(&sb, "- **Items**: %d\n", len(entry.OrderedIDs))
	fmt.Fprintf(&sb, "- **Expires**: %s\n\n", entry.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))

	if len(entry.OrderedIDs) == 0 {
		sb.WriteString("⚠️ The query matched zero items. The handle is still valid — a later selector resolution will report an empty match, not a missing handle.\n")
		return mcp.NewToolResultText(sb.String()), nil
	}

	for _, fe := range fetchFailures {
		fmt.Fprintf(&sb, "⚠️ staleness skipped for #%d: %v\n", fe.ItemID, fe.Err)
	}
	if len(fetchFailures) > 0 {
		sb.WriteString("\n")
	}

	sb.WriteString("| # | ID | Title | State | Type |\n|---|----|-------|-------|------|\n")
	for i, id := range entry.OrderedIDs {
		if i >= maxQueryPreview {
			fmt.Fprintf(&sb, "\n📊 Showing %d of %d items — use wit_inspect_handle for the rest.\n", maxQueryPreview, len(entry.OrderedIDs))
			break
		}
		ctx, ok := entry.ContextFor(id)
		if !ok {
			fmt.Fprintf(&sb, "| %d | #%d | _(no context)_ | | |\n", i, id)
			continue
		}
		fmt.Fprintf(&sb, "| %d | #%d | %s | %s | %s |\n", i, id, ctx.Title, ctx.State, ctx.Type)
	}

	sb.WriteString("\nUse the index column (zero-based) or a criteria object as the selector in later tool calls.\n")
	return mcp.NewToolResultText(sb.String()), nil
}
