// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it loads configuration, builds the
// Azure DevOps client, the handle registry with its sweeper, the
// staleness analyzer (with its revision cache), and registers every
// tool. No business logic lives here — only wiring.
package server

import (
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/azdo"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/config"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/revcache"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/staleness"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools registered.
// This is the single place where all dependencies are resolved.
//
// The returned cleanup function stops the registry sweeper and closes
// the revision cache; call it on shutdown (typically via defer). It is
// always non-nil.
func New() (*server.MCPServer, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, noop, fmt.Errorf("loading configuration: %w", err)
	}

	// --- Create shared dependencies ---

	client := azdo.NewClient(cfg.Organization, cfg.Project, cfg.PAT, cfg.RequestsPerSecond)

	registry := handle.NewRegistry(handle.Options{
		DefaultTTL:    cfg.Handles.DefaultTTL.Std(),
		MaxTTL:        cfg.Handles.MaxTTL.Std(),
		SweepInterval: cfg.Handles.SweepInterval.Std(),
	})
	registry.Start()

	resolver := handle.NewResolver(registry, handle.MatchPolicy{
		CaseSensitive: cfg.Selection.CaseSensitive,
	})
	factory := handle.NewFactory(registry)

	// The revision cache is an optimization: if it fails to open, the
	// analyzer reads the live API on every call. Warn and continue.
	cacheCfg := revcache.DefaultConfig()
	if cfg.Staleness.CacheDir != "" {
		cacheCfg.DataDir = cfg.Staleness.CacheDir
	}
	if cfg.Staleness.CacheMaxAge.Std() > 0 {
		cacheCfg.MaxAge = cfg.Staleness.CacheMaxAge.Std()
	}
	cache, cacheErr := revcache.New(cacheCfg)
	if cacheErr != nil {
		log.Printf("WARNING: revision cache disabled: %v", cacheErr)
		cache = nil
	}

	policy := staleness.DefaultFieldPolicy()
	if len(cfg.Staleness.SubstantiveFields) > 0 {
		policy.Substantive = cfg.Staleness.SubstantiveFields
	}
	if len(cfg.Staleness.AutomatedFields) > 0 {
		policy.Automated = cfg.Staleness.AutomatedFields
	}
	analyzer := staleness.NewAnalyzer(revcache.NewCachingSource(cache, client), policy)

	cleanup := func() {
		registry.Stop()
		if cache != nil {
			if err := cache.Close(); err != nil {
				log.Printf("WARNING: revision cache close: %v", err)
			}
		}
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"enhanced-ado-mcp",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register work item tools ---

	queryTool := tools.NewQueryTool(client, registry, analyzer, cfg.Project)
	s.AddTool(queryTool.Definition(), queryTool.Handle)

	inspectTool := tools.NewInspectTool(registry)
	s.AddTool(inspectTool.Definition(), inspectTool.Handle)

	selectTool := tools.NewSelectTool(resolver, registry)
	s.AddTool(selectTool.Definition(), selectTool.Handle)

	commentTool := tools.NewBulkCommentTool(resolver, client)
	s.AddTool(commentTool.Definition(), commentTool.Handle)

	updateTool := tools.NewBulkUpdateTool(resolver, client)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	transitionTool := tools.NewBulkTransitionTool(resolver, client)
	s.AddTool(transitionTool.Definition(), transitionTool.Handle)

	analyzeTool := tools.NewAnalyzeTool(registry, resolver, factory, analyzer)
	s.AddTool(analyzeTool.Definition(), analyzeTool.Handle)

	purgeTool := tools.NewPurgeTool(registry)
	s.AddTool(purgeTool.Definition(), purgeTool.Handle)

	return s, cleanup, nil
}

// noop is a no-op cleanup function used when initialization fails
// before any resources were acquired.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use the backlog tools safely.
func serverInstructions() string {
	return `You have access to enhanced-ado-mcp, a backlog management server
for Azure DevOps work items.

## THE ONE RULE: NEVER TYPE WORK ITEM IDS

You must never pass raw work item ids to a mutating tool, and no
mutating tool accepts them. The workflow is always:

1. wit_query — run a WIQL query; the result set is captured server-side
   and you receive an opaque handle token (qh-...).
2. wit_select_items — preview which items a selector resolves to.
   ALWAYS preview before mutating and show the user what will change.
3. wit_bulk_comment / wit_bulk_update / wit_bulk_transition — act on
   the handle plus the confirmed selector.

Handles expire after about a day. If any tool reports "handle not found
or expired", re-run the original query for a fresh token — never guess
or reconstruct a token.

## SELECTORS

A selector picks items WITHIN a handle:
- "all" — every item, in query order.
- [0, 2, 5] — zero-based index positions from wit_inspect_handle /
  wit_query output. Invalid positions are dropped with a warning.
- {"states": ["Active"], "tags": ["tech-debt"]} — criteria ANDed
  together. Available: states, tags, titleContains, daysInactiveMin,
  daysInactiveMax.

A selector matching zero items is a warning, not an error — nothing is
mutated.

## STALENESS

wit_analyze_staleness computes each item's last SUBSTANTIVE change by
walking its revision history and skipping automated churn (iteration
re-filing, area moves, stack rank shuffles). It returns two derived
handles — stale and fresh buckets — each usable like any query handle.
daysInactiveMin/Max criteria only work when staleness was computed
(wit_query with analyze_staleness, or on a derived handle from
wit_analyze_staleness).

## SAFETY

- Preview (wit_select_items) and get user confirmation before any bulk
  mutation; state the exact item count.
- Bulk results list per-item failures — report them, never retry
  blindly.
- Use wit_purge_handle when the user abandons a workflow mid-way.`
}
