package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
)

// InspectTool handles the wit_inspect_handle MCP tool.
type InspectTool struct {
	registry *handle.Registry
}

// NewInspectTool creates an InspectTool bound to the registry.
func NewInspectTool(registry *handle.Registry) *InspectTool {
	return &InspectTool{registry: registry}
}

// Definition returns the MCP tool definition for wit_inspect_handle.
func (t *InspectTool) Definition() mcp.Tool {
	return mcp.NewTool("wit_inspect_handle",
		mcp.WithDescription(
			"Show a query handle's contents: ordered items with their captured context, "+
				"provenance, and expiry. Read-only. Use this to find the index positions "+
				"or criteria values for a selector.",
		),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("The handle token returned by wit_query or a derived handle."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum items to list (default 50)."),
		),
	)
}

// Handle processes the wit_inspect_handle tool call.
func (t *InspectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token := strings.TrimSpace(req.GetString("handle", ""))
	if token == "" {
		return mcp.NewToolResultError("'handle' is required"), nil
	}
	limit := intArg(req, "limit", 50)

	entry, err := t.registry.Get(token)
	if err != nil {
		return mcp.NewToolResultError(notFoundMessage(token)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Query Handle\n\n")
	fmt.Fprintf(&sb, "- **Token**: `%s`\n", entry.Token)
	fmt.Fprintf(&sb, "- **Source query**: %s\n", entry.SourceQuery)
	fmt.Fprintf(&sb, "- **Items**: %d\n", len(entry.OrderedIDs))
	fmt.Fprintf(&sb, "- **Created**: %s\n", entry.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&sb, "- **Expires**: %s\n", entry.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))

	if len(entry.ScopeMetadata) > 0 {
		keys := make([]string, 0, len(entry.ScopeMetadata))
		for k := range entry.ScopeMetadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("- **Scope**: ")
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%s", k, entry.ScopeMetadata[k])
		}
		sb.WriteString(strings.Join(parts, ", ") + "\n")
	}
	if len(entry.AnalysisMetadata) > 0 {
		keys := make([]string, 0, len(entry.AnalysisMetadata))
		for k := range entry.AnalysisMetadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("- **Analysis**: ")
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, entry.AnalysisMetadata[k])
		}
		sb.WriteString(strings.Join(parts, ", ") + "\n")
	}
	sb.WriteString("\n")

	if len(entry.OrderedIDs) == 0 {
		sb.WriteString("_The handle holds zero items._\n")
		return mcp.NewToolResultText(sb.String()), nil
	}

	sb.WriteString("| # | ID | Title | State | Type | Tags | Assigned | Days inactive |\n")
	sb.WriteString("|---|----|-------|-------|------|------|----------|---------------|\n")
	for i, id := range entry.OrderedIDs {
		if i >= limit {
			fmt.Fprintf(&sb, "\n📊 Showing %d of %d items — raise 'limit' to see more.\n", limit, len(entry.OrderedIDs))
			break
		}
		itemCtx, ok := entry.ContextFor(id)
		if !ok {
			fmt.Fprintf(&sb, "| %d | #%d | _(no context)_ | | | | | |\n", i, id)
			continue
		}
		inactive := "—"
		if itemCtx.DaysInactive != nil {
			inactive = fmt.Sprintf("%d", *itemCtx.DaysInactive)
		}
		fmt.Fprintf(&sb, "| %d | #%d | %s | %s | %s | %s | %s | %s |\n",
			i, id, itemCtx.Title, itemCtx.State, itemCtx.Type,
			strings.Join(itemCtx.Tags, "; "), itemCtx.AssignedTo, inactive)
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// notFoundMessage is the uniform response for a token that never
// existed, expired, or was purged — the caller can't tell which, and
// the fix is the same: re-run the query for a fresh handle.
func notFoundMessage(token string) string {
	return fmt.Sprintf("query handle %q not found or expired — re-run wit_query to get a fresh handle", token)
}
