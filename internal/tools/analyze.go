package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/staleness"
)

// defaultStaleAfterDays is the threshold separating the stale bucket
// from the fresh one when the agent doesn't supply one.
const defaultStaleAfterDays = 30

// AnalyzeTool handles the wit_analyze_staleness MCP tool. It walks
// revision histories for a handle's items, reports per-item freshness
// verdicts, and splits the result into two derived handles (stale and
// fresh) so follow-up mutations can target either bucket directly.
type AnalyzeTool struct {
	registry *handle.Registry
	resolver *handle.Resolver
	factory  *handle.Factory
	analyzer *staleness.Analyzer
}

// NewAnalyzeTool creates an AnalyzeTool with its dependencies.
func NewAnalyzeTool(registry *handle.Registry, resolver *handle.Resolver, factory *handle.Factory, analyzer *staleness.Analyzer) *AnalyzeTool {
	return &AnalyzeTool{registry: registry, resolver: resolver, factory: factory, analyzer: analyzer}
}

// Definition returns the MCP tool definition for wit_analyze_staleness.
func (t *AnalyzeTool) Definition() mcp.Tool {
	return mcp.NewTool("wit_analyze_staleness",
		mcp.WithDescription(
			"Compute each item's last substantive (non-automated) change by walking its "+
				"revision history, then split the handle into two derived handles: one for "+
				"stale items, one for fresh items. Bulk iteration moves and similar field "+
				"churn are not counted as activity. Use the returned derived handle tokens "+
				"for follow-up mutations.",
		),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("The handle token returned by wit_query or a derived handle."),
		),
		selectorParam(false),
		mcp.WithNumber("stale_after_days",
			mcp.Description(fmt.Sprintf("Items inactive at least this many days land in the stale bucket (default %d).", defaultStaleAfterDays)),
		),
	)
}

// Handle processes the wit_analyze_staleness tool call.
func (t *AnalyzeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token := strings.TrimSpace(req.GetString("handle", ""))
	if token == "" {
		return mcp.NewToolResultError("'handle' is required"), nil
	}
	staleAfter := intArg(req, "stale_after_days", defaultStaleAfterDays)
	if staleAfter < 0 {
		return mcp.NewToolResultError("'stale_after_days' must not be negative"), nil
	}

	// Selector is optional here; default to the whole handle.
	sel := handle.SelectAll()
	if _, present := req.GetArguments()["selector"]; present {
		parsed, err := selectorArg(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sel = parsed
	}

	entry, err := t.registry.Get(token)
	if err != nil {
		return mcp.NewToolResultError(notFoundMessage(token)), nil
	}
	selection, err := t.resolver.ResolveEntry(entry, sel)
	if err != nil {
		if errors.Is(err, handle.ErrInvalidSelector) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("## Staleness Analysis\n\n")
	writeSelection(&sb, selection, sel.Describe())
	if len(selection.IDs) == 0 {
		sb.WriteString("No items to analyze.\n")
		return mcp.NewToolResultText(sb.String()), nil
	}

	batch, err := t.analyzer.AnalyzeAll(ctx, selection.IDs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("staleness analysis aborted: %v", err)), nil
	}

	var stale, fresh []int
	contextPatch := make(map[int]handle.ItemContext)
	for _, id := range selection.IDs {
		verdict, ok := batch.Verdicts[id]
		if !ok || verdict.DaysInactive == nil {
			continue
		}
		itemCtx, _ := entry.ContextFor(id)
		itemCtx.DaysInactive = verdict.DaysInactive
		contextPatch[id] = itemCtx
		if *verdict.DaysInactive >= staleAfter {
			stale = append(stale, id)
		} else {
			fresh = append(fresh, id)
		}
	}

	fmt.Fprintf(&sb, "Threshold: **%d day(s)** without a substantive change.\n\n", staleAfter)
	sb.WriteString("| ID | Days inactive | Last substantive change | Automated revs skipped |\n")
	sb.WriteString("|----|---------------|-------------------------|------------------------|\n")
	for _, id := range selection.IDs {
		verdict, ok := batch.Verdicts[id]
		if !ok {
			continue
		}
		if verdict.DaysInactive == nil {
			fmt.Fprintf(&sb, "| #%d | — | no history | — |\n", id)
			continue
		}
		fmt.Fprintf(&sb, "| #%d | %d | %s | %d |\n",
			id, *verdict.DaysInactive, verdict.LastChangeReason, verdict.AutomatedRevisionsSkipped)
	}
	sb.WriteString("\n")

	for _, fe := range batch.Failures {
		fmt.Fprintf(&sb, "⚠️ #%d skipped: %v\n", fe.ItemID, fe.Err)
	}
	if len(batch.Failures) > 0 {
		sb.WriteString("\n")
	}

	staleToken, err := t.factory.Derive(handle.DeriveParams{
		ParentToken: token,
		IDs:         stale,
		Label:       fmt.Sprintf("stale ≥%dd", staleAfter),
		ContextPatch: contextPatch,
		AnalysisMetadata: map[string]any{
			"bucket":         "stale",
			"thresholdDays":  staleAfter,
			"itemCount":      len(stale),
			"analysisErrors": len(batch.Failures),
		},
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("deriving stale handle: %v", err)), nil
	}
	freshToken, err := t.factory.Derive(handle.DeriveParams{
		ParentToken: token,
		IDs:         fresh,
		Label:       fmt.Sprintf("fresh <%dd", staleAfter),
		ContextPatch: contextPatch,
		AnalysisMetadata: map[string]any{
			"bucket":         "fresh",
			"thresholdDays":  staleAfter,
			"itemCount":      len(fresh),
			"analysisErrors": len(batch.Failures),
		},
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("deriving fresh handle: %v", err)), nil
	}

	sb.WriteString("### Derived Handles\n\n")
	fmt.Fprintf(&sb, "- **Stale** (%d item(s)): `%s`\n", len(stale), staleToken)
	fmt.Fprintf(&sb, "- **Fresh** (%d item(s)): `%s`\n", len(fresh), freshToken)
	sb.WriteString("\nPass either token (with a selector) to the wit_bulk_* tools.\n")
	return mcp.NewToolResultText(sb.String()), nil
}
