package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/sourcecheck/internal/pipeline"
	"github.com/ppiankov/sourcecheck/internal/worker"
	"github.com/spf13/cobra"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <claims.yaml>",
	Short: "Verify many claims from a YAML file in parallel",
	Long: `Batch verifies every claim listed in a YAML file:
- Each entry has a claim, optional context and its candidate URLs
- Top-level urls are added to every entry
- Claims run in parallel with a configurable worker count
- Each claim gets its own JSON and Markdown report

Claims file:
  urls: [https://shared.example/]
  claims:
    - claim: The tower opened in 1889.
      context: The Eiffel Tower was built for the World's Fair.
      urls: [https://en.wikipedia.org/wiki/Eiffel_Tower]

Example:
  sourcecheck batch claims.yaml
  sourcecheck batch claims.yaml --concurrency 4 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Concurrency flags
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of claims verified at once (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./sourcecheck-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 15*time.Minute, "total timeout for batch processing")

	// Shared run flags
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetch)")
	batchCmd.Flags().BoolVar(&noRewrite, "no-rewrite", false, "verify claims as given, without decontextualization")
	batchCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama, gemini)")
	batchCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	applyRunFlags(cfg)
	if concurrency <= 0 {
		concurrency = cfg.Concurrency.BatchWorkers
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  sourcecheck Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  LLM:          %s\n", cfg.LLM.Provider)
	fmt.Fprintf(os.Stderr, "\n")

	// Create output directory
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	a, err := newApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// Fail once up front rather than once per claim
	if err := a.preflight(); err != nil {
		return err
	}

	processor := worker.NewBatchProcessor(a.pipeline, concurrency)

	fmt.Fprintf(os.Stderr, "⚙️  Verifying claims with %d workers...\n\n", concurrency)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount := 0
	failureCount := 0
	verdicts := make(map[string]int)
	renderer := pipeline.NewRenderer()

	for i, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", truncate(result.Claim, 60), result.Error)
			continue
		}

		successCount++
		verdicts[string(result.Report.Result.Status)]++

		// Generate output file names
		slug := fmt.Sprintf("%03d-%s", i+1, sanitizeFilename(result.Claim))
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")

		if err := renderer.RenderJSON(result.Report, jsonPath); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", slug, err)
			continue
		}
		if err := renderer.RenderMarkdown(result.Report, mdPath); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", slug, err)
			continue
		}

		fmt.Fprintf(os.Stderr, "✓ %s: %s (%s)\n", truncate(result.Claim, 60), result.Report.Result.Status, result.Report.FetchSummary())
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	for status, n := range verdicts {
		fmt.Fprintf(os.Stderr, "  %-10s %d\n", status+":", n)
	}
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// sanitizeFilename turns a claim into a short file name
func sanitizeFilename(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 60 {
			break
		}
	}
	name := strings.TrimSuffix(b.String(), "-")
	if name == "" {
		return "claim"
	}
	return name
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
