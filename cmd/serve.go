package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd(state *rootState) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve exposes the crawl modes over HTTP until interrupted:

  POST /v1/crawl    {"urls": [...]}
  POST /v1/site     {"url": "...", "depth": 1}
  POST /v1/sitemap  {"base_url": "...", "sitemap_url": "..."}
  POST /v1/menu     {"base_url": "...", "menu_selector": "...", "crawl_pages": true}

plus /healthz, /readyz and /metrics. Set server.api_key to require an
X-API-Key header.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				state.cfg.Server.Port = port
			}
			return state.withRuntime(cmd.Context(), func(rt Runtime) error {
				return rt.Serve(cmd.Context())
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port")
	return cmd
}

func newMCPCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the crawl tools over the Model Context Protocol (stdio)",
		Long: `MCP registers single_url_crawler, multi_url_crawler, sitemap_crawler and
menu_crawler and serves them on stdin/stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.withRuntime(cmd.Context(), func(rt Runtime) error {
				return rt.ServeMCP(cmd.Context())
			})
		},
	}
}
