package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
)

// PurgeTool handles the wit_purge_handle MCP tool.
type PurgeTool struct {
	registry *handle.Registry
}

// NewPurgeTool creates a PurgeTool bound to the registry.
func NewPurgeTool(registry *handle.Registry) *PurgeTool {
	return &PurgeTool{registry: registry}
}

// Definition returns the MCP tool definition for wit_purge_handle.
func (t *PurgeTool) Definition() mcp.Tool {
	return mcp.NewTool("wit_purge_handle",
		mcp.WithDescription(
			"Discard a query handle immediately instead of waiting for it to expire. "+
				"Idempotent — purging an unknown or already-purged token succeeds. "+
				"Pass expired_only to sweep every expired handle instead of one token.",
		),
		mcp.WithString("handle",
			mcp.Description("The handle token to discard."),
		),
		mcp.WithBoolean("expired_only",
			mcp.Description("When true, sweep all expired handles and ignore 'handle'."),
		),
	)
}

// Handle processes the wit_purge_handle tool call.
func (t *PurgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if boolArg(req, "expired_only", false) {
		removed := t.registry.PurgeExpired()
		return mcp.NewToolResultText(fmt.Sprintf(
			"Swept %d expired handle(s); %d handle(s) remain.", removed, t.registry.Count())), nil
	}

	token := strings.TrimSpace(req.GetString("handle", ""))
	if token == "" {
		return mcp.NewToolResultError("'handle' is required unless expired_only is true"), nil
	}
	t.registry.Purge(token)
	return mcp.NewToolResultText(fmt.Sprintf(
		"Handle %s discarded. Any later use of it will report not-found.", token)), nil
}
