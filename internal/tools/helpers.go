// Package tools implements the MCP tool handlers for the backlog
// surface.
//
// Every mutating tool addresses work items through a query handle plus
// a selector — raw item ids are never accepted from the agent. Each
// tool follows the same pattern as the rest of the server:
// - A struct with dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
)

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// ttlArg parses an optional "ttl" argument like "2h" or "90m". Zero
// means "use the registry default"; the registry clamps anything above
// its ceiling.
func ttlArg(req mcp.CallToolRequest) (time.Duration, error) {
	raw := strings.TrimSpace(req.GetString("ttl", ""))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: use a duration like \"2h\" or \"30m\"", raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid ttl %q: must be positive", raw)
	}
	return d, nil
}

// selectorArg parses the polymorphic "selector" argument into the
// tagged union.
func selectorArg(req mcp.CallToolRequest) (handle.Selector, error) {
	return handle.ParseSelector(req.GetArguments()["selector"])
}

// selectorParam declares the shared selector parameter. The value is
// duck-typed on the wire: the string "all", a JSON array of zero-based
// indices, or a JSON criteria object — either inline or stringified.
func selectorParam(required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{
		mcp.Description(
			"Which items in the handle to act on. Either the string \"all\", " +
				"a JSON array of zero-based indices into the handle's ordered list " +
				"(e.g. \"[0,2,5]\"), or a JSON criteria object with any of: " +
				"states (array), tags (array), titleContains (array), " +
				"daysInactiveMin (number), daysInactiveMax (number). " +
				"Criteria are ANDed; items without a captured context never match criteria.",
		),
	}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString("selector", opts...)
}

// writeWarnings appends selector warnings to a response, if any.
func writeWarnings(sb *strings.Builder, warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(sb, "⚠️ %s\n", w)
	}
	if len(warnings) > 0 {
		sb.WriteString("\n")
	}
}

// writeSelection renders a resolved selection header.
func writeSelection(sb *strings.Builder, sel handle.Selection, selDesc string) {
	fmt.Fprintf(sb, "Selector `%s` matched **%d of %d** item(s) in %s.\n\n",
		selDesc, len(sel.IDs), sel.TotalInHandle, sel.Token)
	writeWarnings(sb, sel.Warnings)
}

// summarizeIDs renders up to limit ids as a compact list.
func summarizeIDs(ids []int, limit int) string {
	if len(ids) == 0 {
		return "(none)"
	}
	shown := ids
	truncated := false
	if limit > 0 && len(ids) > limit {
		shown = ids[:limit]
		truncated = true
	}
	parts := make([]string, len(shown))
	for i, id := range shown {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	s := strings.Join(parts, ", ")
	if truncated {
		s += fmt.Sprintf(", … (%d more)", len(ids)-limit)
	}
	return s
}
