package cli

import (
	"github.com/spf13/cobra"

	"research-agent/internal/mcpserver"
)

func newMCPCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the research search tool over MCP",
		Long: `Starts a Model Context Protocol server on stdio exposing the
search_investment_research tool, for use by MCP-compatible assistants.

Logs go to stderr; stdout carries the protocol.

Example configuration:
  {
    "mcpServers": {
      "research": {
        "command": "/path/to/research",
        "args": ["mcp"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := r.get(ctx)
			if err != nil {
				return err
			}
			server, err := mcpserver.NewServer(b.Retriever, b.Policy)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}
}
