package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/sourcecheck/internal/agent"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	sourceURLs  []string
	claimCtx    string
	pageSource  string
	pageAddress string
	outJSON     string
	outMD       string
	timeout     time.Duration
	noCache     bool
	noRewrite   bool
	insecureTLS bool
	llmProvider string
	llmModel    string
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <claim>",
	Short: "Check a claim against candidate source URLs",
	Long: `Verify fetches every candidate source, rewrites the claim so it stands on
its own when context is given, and asks the configured model whether the fetched
sources support it.

Sources come either from --url flags, or from a page: with --page the claim is
located on the page and the links closest to it are used, along with the
surrounding text as context.

Example:
  sourcecheck verify "The tower opened in 1889" --url https://en.wikipedia.org/wiki/Eiffel_Tower
  sourcecheck verify "completed in 1889" --page saved.html --page-url https://www.google.com/search?q=eiffel
  sourcecheck verify "..." --url https://a.example --json report.json --md report.md`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	// Input flags
	verifyCmd.Flags().StringSliceVar(&sourceURLs, "url", nil, "candidate source URL (repeatable)")
	verifyCmd.Flags().StringVar(&claimCtx, "context", "", "text surrounding the claim")
	verifyCmd.Flags().StringVar(&pageSource, "page", "", "page URL or saved HTML file to take sources and context from")
	verifyCmd.Flags().StringVar(&pageAddress, "page-url", "", "address of a saved --page file")

	// Output flags
	verifyCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (- for stdout)")
	verifyCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")

	// Run flags
	verifyCmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "overall timeout")
	verifyCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetch)")
	verifyCmd.Flags().BoolVar(&noRewrite, "no-rewrite", false, "verify the claim as given, without decontextualization")
	verifyCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification")

	// LLM flags
	verifyCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama, gemini)")
	verifyCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

// applyRunFlags overlays the shared run flags onto cfg
func applyRunFlags(cfg *model.Config) {
	if noCache {
		cfg.Cache.Enabled = false
	}
	if noRewrite {
		cfg.LLM.Decontextualize = false
	}
	if insecureTLS {
		cfg.HTTP.InsecureTLS = true
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	claimText := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	applyRunFlags(cfg)

	if pageSource == "" && len(sourceURLs) == 0 {
		return errors.New("no sources: pass --url or --page")
	}

	var observer pipeline.Observer
	if verbose {
		observer = progressPrinter(os.Stderr)
	}

	a, err := newApp(cfg, logger, observer)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if verbose {
		fmt.Fprintf(os.Stderr, "Claim: %s\n", claimText)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "Cache: %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
	}

	var report *model.RunReport
	if pageSource != "" {
		report, err = a.verifyOnPage(ctx, pageSource, pageAddress, claimText)
	} else {
		report, err = a.pipeline.Verify(ctx, model.NewClaim(claimText, claimCtx), sourceURLs)
	}

	if report != nil {
		if rErr := writeReport(report); rErr != nil {
			return rErr
		}
	}
	if err != nil {
		var cfgErr *pipeline.ConfigError
		if errors.As(err, &cfgErr) {
			return err
		}
		return fmt.Errorf("verify failed: %w", err)
	}
	return nil
}

// verifyOnPage selects text on a page through the agent and verifies the
// selection. Missing credentials fail before the page is fetched.
func (a *app) verifyOnPage(ctx context.Context, source, pageURL, text string) (*model.RunReport, error) {
	if err := a.preflight(); err != nil {
		return nil, err
	}
	pageAgent := agent.New(a.client, a.cfg.Selection, a.logger)
	if err := selectOnPage(ctx, a.cfg, pageAgent, a.logger, source, pageURL, text); err != nil {
		return nil, err
	}
	return a.pipeline.VerifySelection(ctx)
}

// writeReport prints the summary and writes the requested outputs
func writeReport(report *model.RunReport) error {
	renderer := pipeline.NewRenderer()
	renderer.RenderSummary(os.Stderr, report)

	switch outJSON {
	case "":
	case "-":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Println(string(data))
	default:
		if err := renderer.RenderJSON(report, outJSON); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ JSON report: %s\n", outJSON)
	}

	if outMD != "" {
		if err := renderer.RenderMarkdown(report, outMD); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Markdown report: %s\n", outMD)
	}
	return nil
}
