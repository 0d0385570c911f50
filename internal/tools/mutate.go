package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/azdo"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
)

// resolveForMutation is the shared front half of every bulk tool:
// parse the selector, resolve it against the handle, and convert the
// semantic failures to tool-result errors. A nil result with a non-nil
// errResult means "return errResult to the agent".
func resolveForMutation(resolver *handle.Resolver, req mcp.CallToolRequest) (sel handle.Selection, desc string, errResult *mcp.CallToolResult) {
	token := strings.TrimSpace(req.GetString("handle", ""))
	if token == "" {
		return handle.Selection{}, "", mcp.NewToolResultError("'handle' is required")
	}
	parsed, err := selectorArg(req)
	if err != nil {
		return handle.Selection{}, "", mcp.NewToolResultError(err.Error())
	}

	selection, err := resolver.Resolve(token, parsed)
	switch {
	case errors.Is(err, handle.ErrNotFound):
		return handle.Selection{}, "", mcp.NewToolResultError(notFoundMessage(token))
	case errors.Is(err, handle.ErrInvalidSelector):
		return handle.Selection{}, "", mcp.NewToolResultError(err.Error())
	case err != nil:
		return handle.Selection{}, "", mcp.NewToolResultError(fmt.Sprintf("resolving selector: %v", err))
	}
	return selection, parsed.Describe(), nil
}

// writeOutcome renders a bulk mutation outcome. The downstream service
// is authoritative about each write — this only reports what the API
// accepted.
func writeOutcome(sb *strings.Builder, outcome azdo.BulkOutcome) {
	fmt.Fprintf(sb, "- **Succeeded**: %d — %s\n", len(outcome.Succeeded), summarizeIDs(outcome.Succeeded, 20))
	fmt.Fprintf(sb, "- **Failed**: %d\n", len(outcome.Failed))
	fmt.Fprintf(sb, "- **Operation id**: %s\n", outcome.OperationID)
	for _, f := range outcome.Failed {
		fmt.Fprintf(sb, "  - ❌ #%d: %v\n", f.ItemID, f.Err)
	}
}
