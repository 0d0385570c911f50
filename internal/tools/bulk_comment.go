package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/azdo"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
)

// BulkCommentTool handles the wit_bulk_comment MCP tool.
type BulkCommentTool struct {
	resolver *handle.Resolver
	mutator  azdo.Mutator
}

// NewBulkCommentTool creates a BulkCommentTool with its dependencies.
func NewBulkCommentTool(resolver *handle.Resolver, mutator azdo.Mutator) *BulkCommentTool {
	return &BulkCommentTool{resolver: resolver, mutator: mutator}
}

// Definition returns the MCP tool definition for wit_bulk_comment.
func (t *BulkCommentTool) Definition() mcp.Tool {
	return mcp.NewTool("wit_bulk_comment",
		mcp.WithDescription(
			"Add the same comment to every item a selector resolves to within a "+
				"query handle. Preview with wit_select_items first.",
		),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("The handle token returned by wit_query or a derived handle."),
		),
		selectorParam(true),
		mcp.WithString("comment",
			mcp.Required(),
			mcp.Description("The comment text to add to each selected item."),
		),
	)
}

// Handle processes the wit_bulk_comment tool call.
func (t *BulkCommentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	comment := strings.TrimSpace(req.GetString("comment", ""))
	if comment == "" {
		return mcp.NewToolResultError("'comment' is required"), nil
	}

	selection, desc, errResult := resolveForMutation(t.resolver, req)
	if errResult != nil {
		return errResult, nil
	}

	var sb strings.Builder
	sb.WriteString("## Bulk Comment\n\n")
	writeSelection(&sb, selection, desc)
	if len(selection.IDs) == 0 {
		sb.WriteString("Nothing to comment on — no mutation was sent.\n")
		return mcp.NewToolResultText(sb.String()), nil
	}

	outcome, err := t.mutator.AddComments(ctx, selection.IDs, comment)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("bulk comment aborted: %v", err)), nil
	}
	writeOutcome(&sb, outcome)
	return mcp.NewToolResultText(sb.String()), nil
}
