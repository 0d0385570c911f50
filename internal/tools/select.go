package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
)

// SelectTool handles the wit_select_items MCP tool: a dry-run that
// shows what a selector would resolve to, without touching anything.
type SelectTool struct {
	resolver *handle.Resolver
	registry *handle.Registry
}

// NewSelectTool creates a SelectTool with its dependencies.
func NewSelectTool(resolver *handle.Resolver, registry *handle.Registry) *SelectTool {
	return &SelectTool{resolver: resolver, registry: registry}
}

// Definition returns the MCP tool definition for wit_select_items.
func (t *SelectTool) Definition() mcp.Tool {
	return mcp.NewTool("wit_select_items",
		mcp.WithDescription(
			"Preview which items a selector resolves to within a query handle. "+
				"Always preview before a bulk mutation so the user can confirm the "+
				"exact target set. Read-only.",
		),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("The handle token returned by wit_query or a derived handle."),
		),
		selectorParam(true),
	)
}

// Handle processes the wit_select_items tool call.
func (t *SelectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token := strings.TrimSpace(req.GetString("handle", ""))
	if token == "" {
		return mcp.NewToolResultError("'handle' is required"), nil
	}
	sel, err := selectorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
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
	sb.WriteString("## Selection Preview\n\n")
	writeSelection(&sb, selection, sel.Describe())

	if len(selection.IDs) == 0 {
		sb.WriteString("No mutation would touch any item with this selector.\n")
		return mcp.NewToolResultText(sb.String()), nil
	}

	sb.WriteString("| ID | Title | State |\n|----|-------|-------|\n")
	for _, id := range selection.IDs {
		itemCtx, ok := entry.ContextFor(id)
		if !ok {
			fmt.Fprintf(&sb, "| #%d | _(no context)_ | |\n", id)
			continue
		}
		fmt.Fprintf(&sb, "| #%d | %s | %s |\n", id, itemCtx.Title, itemCtx.State)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
