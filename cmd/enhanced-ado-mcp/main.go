// enhanced-ado-mcp: Azure DevOps backlog MCP server.
//
// Exposes backlog queries and bulk mutations to AI agents over the MCP
// stdio transport. Mutations are addressed through opaque query handles
// plus declarative selectors, never raw work item ids — the server-held
// handle is the antidote to agents fabricating identifiers.
//
// Usage:
//
//	enhanced-ado-mcp serve     # Start MCP server (stdio transport)
//	enhanced-ado-mcp version   # Print version
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/config"
	adoserver "github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/server"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("enhanced-ado-mcp v%s\n", adoserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	s, cleanup, err := adoserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Release resources on interrupt too — ServeStdio returns when
	// stdin closes, but a signal may arrive first.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()

	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `enhanced-ado-mcp v%s — Azure DevOps backlog MCP server

Usage:
  enhanced-ado-mcp serve     Start the MCP server (stdio transport)
  enhanced-ado-mcp version   Print version

Configuration:
  Set AZURE_DEVOPS_ORG, AZURE_DEVOPS_PROJECT, and AZURE_DEVOPS_PAT,
  or write %s.

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "ado": {
        "command": "enhanced-ado-mcp",
        "args": ["serve"]
      }
    }
  }
`, adoserver.Version, config.DefaultPath())
}
