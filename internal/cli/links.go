package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/sourcecheck/internal/agent"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/session"
	"github.com/spf13/cobra"
)

var (
	linksSelect  string
	linksPageURL string
	linksJSON    bool
)

// linksCmd represents the links command
var linksCmd = &cobra.Command{
	Use:   "links <page-url-or-file>",
	Short: "Show the candidate sources found on a page",
	Long: `Links runs the page agent on a page without verifying anything. Search pages
with an overview report the overview's links. With --select, the links closest
to the selected text are listed in priority order, with the surrounding text.

Example:
  sourcecheck links https://en.wikipedia.org/wiki/Eiffel_Tower --select "completed in 1889"
  sourcecheck links saved.html --page-url "https://www.google.com/search?q=eiffel"`,
	Args: cobra.ExactArgs(1),
	RunE: runLinks,
}

func init() {
	rootCmd.AddCommand(linksCmd)

	linksCmd.Flags().StringVar(&linksSelect, "select", "", "text to select on the page")
	linksCmd.Flags().StringVar(&linksPageURL, "page-url", "", "address of a saved page file")
	linksCmd.Flags().BoolVar(&linksJSON, "json", false, "print as JSON")
}

// captureSender keeps the agent's last events instead of sending them
type captureSender struct {
	detection *session.Detection
	selection *session.Selection
}

func (c *captureSender) Detect(_ context.Context, d session.Detection) error {
	c.detection = &d
	return nil
}

func (c *captureSender) Select(_ context.Context, sel session.Selection) error {
	c.selection = &sel
	return nil
}

func (c *captureSender) ActivateGeneric(context.Context, string) error {
	return nil
}

func runLinks(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.Timeout)
	defer cancel()

	sender := &captureSender{}
	pageAgent := agent.New(sender, cfg.Selection, logger)

	var out any
	if linksSelect != "" {
		if err := selectOnPage(ctx, cfg, pageAgent, logger, args[0], linksPageURL, linksSelect); err != nil {
			return err
		}
		out = sender.selection
	} else {
		mode, err := loadPage(ctx, cfg, pageAgent, args[0], linksPageURL)
		if err != nil {
			return err
		}
		if mode != model.PageModeAIOverview || sender.detection == nil {
			fmt.Fprintf(os.Stderr, "No overview detected; use --select to pick links around a passage\n")
			return nil
		}
		out = sender.detection
	}

	if linksJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal links: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	switch v := out.(type) {
	case *session.Selection:
		if v.Context != "" {
			fmt.Fprintf(os.Stderr, "Context: %s\n\n", v.Context)
		}
		printURLs(v.URLs)
	case *session.Detection:
		fmt.Fprintf(os.Stderr, "Overview detected on %s\n\n", v.PageURL)
		printURLs(v.URLs)
	}
	return nil
}

func printURLs(urls []string) {
	if len(urls) == 0 {
		fmt.Fprintf(os.Stderr, "No candidate sources found\n")
		return
	}
	for i, u := range urls {
		fmt.Printf("%2d. %s\n", i+1, u)
	}
}
