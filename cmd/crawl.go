package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/docs-crawler/internal/app"
	"github.com/JakeFAU/docs-crawler/internal/crawler"
	"github.com/JakeFAU/docs-crawler/internal/input"
)

func newCrawlCmd(state *rootState) *cobra.Command {
	var urlsFile string
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl an explicit list of URLs",
		Long: `Crawl fetches every URL given as an argument or listed in --urls-file and
writes the successful pages to one Markdown document.

--urls-file accepts a text file with one URL per line (blank lines and lines
starting with # are ignored) or a JSON file holding an array of URLs or the
export written by the menu command.

Examples:
  docs-crawler crawl https://docs.example.com/intro https://docs.example.com/setup
  docs-crawler crawl --urls-file scraped_docs/example_docs_menu_links_20240101_120000.json`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := append([]string(nil), args...)
			if urlsFile != "" {
				fromFile, err := input.LoadURLs(urlsFile)
				if err != nil {
					return err
				}
				urls = append(urls, fromFile...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs given; pass them as arguments or with --urls-file: %w", crawler.ErrConfig)
			}
			return state.withRuntime(cmd.Context(), func(rt Runtime) error {
				rep, err := rt.Service().CrawlURLs(cmd.Context(), urls, app.Overrides{})
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&urlsFile, "urls-file", "f", "", "file listing URLs to crawl")
	return cmd
}

func newSiteCmd(state *rootState) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "site <url>",
		Short: "Crawl a page and follow its same-host links",
		Long: `Site fetches one page and, with --depth above zero, follows the same-host
links found in its content level by level.

Example:
  docs-crawler site https://docs.example.com/guide --depth 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth < 0 {
				return fmt.Errorf("--depth must be >= 0: %w", crawler.ErrConfig)
			}
			return state.withRuntime(cmd.Context(), func(rt Runtime) error {
				rep, err := rt.Service().CrawlSite(cmd.Context(), args[0], depth, app.Overrides{})
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "levels of links to follow")
	return cmd
}

func newSitemapCmd(state *rootState) *cobra.Command {
	var sitemapURL string
	cmd := &cobra.Command{
		Use:   "sitemap <base-url>",
		Short: "Crawl every page listed in a site's sitemap",
		Long: `Sitemap resolves the site's sitemap, following nested sitemap indexes, and
crawls every page it lists. Without --sitemap-url the sitemaps advertised in
robots.txt are used, falling back to <base-url>/sitemap.xml.

Example:
  docs-crawler sitemap https://docs.example.com --exclude '/blog/'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withRuntime(cmd.Context(), func(rt Runtime) error {
				rep, err := rt.Service().CrawlSitemap(cmd.Context(), args[0], sitemapURL, app.Overrides{})
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sitemapURL, "sitemap-url", "", "explicit sitemap URL")
	return cmd
}

func newMenuCmd(state *rootState) *cobra.Command {
	var (
		selectors  []string
		crawlPages bool
	)
	cmd := &cobra.Command{
		Use:   "menu <base-url>",
		Short: "Discover pages through a site's navigation menu",
		Long: `Menu collects the navigation links reachable from the base URL within
--max-depth expansions and writes them to a JSON export that crawl
--urls-file accepts. With --crawl-pages the discovered pages are crawled too.

Example:
  docs-crawler menu https://docs.example.com --selector 'nav.sidebar a' --crawl-pages`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ov := app.Overrides{MenuSelectors: selectors}
			return state.withRuntime(cmd.Context(), func(rt Runtime) error {
				rep, err := rt.Service().CrawlMenu(cmd.Context(), args[0], ov, crawlPages)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&selectors, "selector", "s", nil, "CSS selector for navigation links (repeatable)")
	cmd.Flags().BoolVar(&crawlPages, "crawl-pages", false, "also crawl every discovered page")
	return cmd
}

func printReport(w io.Writer, rep *app.Report) {
	fmt.Fprintf(w, "run %s (%s): %s\n", rep.RunID, rep.Mode, rep.Status)
	if rep.Mode == app.ModeMenu {
		fmt.Fprintf(w, "menu links: %d\n", len(rep.MenuLinks))
	}
	if rep.Requested > 0 {
		fmt.Fprintf(w, "pages: %d requested, %d written, %d failed\n", rep.Requested, rep.Succeeded, rep.Failed)
	}
	for _, r := range rep.Results {
		if !r.Success {
			fmt.Fprintf(w, "  failed %s: %s\n", r.URL, r.Error)
		}
	}
	if rep.DocumentURI != "" {
		fmt.Fprintf(w, "document: %s\n", rep.DocumentURI)
	}
	if rep.ExportURI != "" {
		fmt.Fprintf(w, "menu export: %s\n", rep.ExportURI)
	}
	for _, e := range rep.SinkErrors {
		fmt.Fprintf(w, "warning: %s\n", e)
	}
}
