package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/azdo"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
)

// BulkTransitionTool handles the wit_bulk_transition MCP tool.
type BulkTransitionTool struct {
	resolver *handle.Resolver
	mutator  azdo.Mutator
}

// NewBulkTransitionTool creates a BulkTransitionTool with its dependencies.
func NewBulkTransitionTool(resolver *handle.Resolver, mutator azdo.Mutator) *BulkTransitionTool {
	return &BulkTransitionTool{resolver: resolver, mutator: mutator}
}

// Definition returns the MCP tool definition for wit_bulk_transition.
func (t *BulkTransitionTool) Definition() mcp.Tool {
	return mcp.NewTool("wit_bulk_transition",
		mcp.WithDescription(
			"Move every item a selector resolves to within a query handle into the "+
				"given state. The downstream service enforces its own state model — "+
				"invalid transitions fail per item. Preview with wit_select_items first.",
		),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("The handle token returned by wit_query or a derived handle."),
		),
		selectorParam(true),
		mcp.WithString("state",
			mcp.Required(),
			mcp.Description("The target state, e.g. \"Closed\" or \"Removed\"."),
		),
	)
}

// Handle processes the wit_bulk_transition tool call.
func (t *BulkTransitionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := strings.TrimSpace(req.GetString("state", ""))
	if state == "" {
		return mcp.NewToolResultError("'state' is required"), nil
	}

	selection, desc, errResult := resolveForMutation(t.resolver, req)
	if errResult != nil {
		return errResult, nil
	}

	var sb strings.Builder
	sb.WriteString("## Bulk Transition\n\n")
	writeSelection(&sb, selection, desc)
	if len(selection.IDs) == 0 {
		sb.WriteString("Nothing to transition — no mutation was sent.\n")
		return mcp.NewToolResultText(sb.String()), nil
	}

	fmt.Fprintf(&sb, "Target state: **%s**\n\n", state)

	outcome, err := t.mutator.TransitionState(ctx, selection.IDs, state)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("bulk transition aborted: %v", err)), nil
	}
	writeOutcome(&sb, outcome)
	return mcp.NewToolResultText(sb.String()), nil
}
