package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/azdo"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
)

// BulkUpdateTool handles the wit_bulk_update MCP tool.
type BulkUpdateTool struct {
	resolver *handle.Resolver
	mutator  azdo.Mutator
}

// NewBulkUpdateTool creates a BulkUpdateTool with its dependencies.
func NewBulkUpdateTool(resolver *handle.Resolver, mutator azdo.Mutator) *BulkUpdateTool {
	return &BulkUpdateTool{resolver: resolver, mutator: mutator}
}

// Definition returns the MCP tool definition for wit_bulk_update.
func (t *BulkUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("wit_bulk_update",
		mcp.WithDescription(
			"Apply the same field updates to every item a selector resolves to within "+
				"a query handle. Preview with wit_select_items first.",
		),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("The handle token returned by wit_query or a derived handle."),
		),
		selectorParam(true),
		mcp.WithString("updates",
			mcp.Required(),
			mcp.Description("JSON array of field assignments, e.g. "+
				"\"[{\\\"field\\\":\\\"System.Priority\\\",\\\"value\\\":\\\"2\\\"}]\". "+
				"Fields use reference names."),
		),
	)
}

// parseUpdates decodes the updates argument, tolerating both a JSON
// string and an already-structured array.
func parseUpdates(raw any) ([]azdo.FieldUpdate, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = encoded
	default:
		return nil, fmt.Errorf("'updates' must be a JSON array of {field, value} objects")
	}

	var decoded []struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("parsing 'updates': %w", err)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("'updates' must contain at least one {field, value} object")
	}

	updates := make([]azdo.FieldUpdate, len(decoded))
	for i, u := range decoded {
		if strings.TrimSpace(u.Field) == "" {
			return nil, fmt.Errorf("'updates'[%d] is missing 'field'", i)
		}
		updates[i] = azdo.FieldUpdate{Field: u.Field, Value: u.Value}
	}
	return updates, nil
}

// Handle processes the wit_bulk_update tool call.
func (t *BulkUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	updates, err := parseUpdates(req.GetArguments()["updates"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	selection, desc, errResult := resolveForMutation(t.resolver, req)
	if errResult != nil {
		return errResult, nil
	}

	var sb strings.Builder
	sb.WriteString("## Bulk Update\n\n")
	writeSelection(&sb, selection, desc)
	if len(selection.IDs) == 0 {
		sb.WriteString("Nothing to update — no mutation was sent.\n")
		return mcp.NewToolResultText(sb.String()), nil
	}

	fields := make([]string, len(updates))
	for i, u := range updates {
		fields[i] = u.Field
	}
	fmt.Fprintf(&sb, "Updating field(s): %s\n\n", strings.Join(fields, ", "))

	outcome, err := t.mutator.UpdateFields(ctx, selection.IDs, updates)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("bulk update aborted: %v", err)), nil
	}
	writeOutcome(&sb, outcome)
	return mcp.NewToolResultText(sb.String()), nil
}
