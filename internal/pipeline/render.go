package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// Renderer writes run reports
type Renderer struct{}

// NewRenderer creates a renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(report *model.RunReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the report as Markdown
func (r *Renderer) RenderMarkdown(report *model.RunReport, path string) error {
	return writeFile(path, []byte(r.Markdown(report)))
}

// Markdown formats the report for humans
func (r *Renderer) Markdown(report *model.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Claim check: %s\n\n", strings.ToUpper(string(report.Result.Status)))
	fmt.Fprintf(&b, "> %s\n\n", report.Claim.Text)
	if report.Claim.WasModified {
		fmt.Fprintf(&b, "Checked as: _%s_\n\n", report.Claim.Decontextualized)
	}

	if report.Result.Explanation != "" {
		fmt.Fprintf(&b, "%s\n\n", report.Result.Explanation)
	}

	b.WriteString("## Evidence\n\n")
	if len(report.Result.Evidence) == 0 {
		b.WriteString("No supporting quotes were found.\n\n")
	}
	for _, e := range report.Result.Evidence {
		fmt.Fprintf(&b, "- \"%s\" ([%s](%s))\n", e.Quote, model.TitleFromURL(e.SourceURL), e.HighlightURL())
	}
	if len(report.Result.Evidence) > 0 {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Sources (%s)\n\n", report.FetchSummary())
	for _, s := range report.Sources {
		if s.Authority != "" {
			fmt.Fprintf(&b, "- [%s](%s) (%s): %s\n", s.Title, s.URL, s.Authority, s.Summary())
		} else {
			fmt.Fprintf(&b, "- [%s](%s): %s\n", s.Title, s.URL, s.Summary())
		}
	}
	b.WriteString("\n")

	if len(report.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\nRun %s, %s, took %s\n", report.RunID, report.StartedAt.Format("2006-01-02 15:04:05 MST"), report.Duration)
	return b.String()
}

// RenderSummary prints a short verdict to w
func (r *Renderer) RenderSummary(w io.Writer, report *model.RunReport) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Verdict: %s\n", strings.ToUpper(string(report.Result.Status)))
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Claim:     %s\n", report.Claim.Text)
	if report.Claim.WasModified {
		fmt.Fprintf(w, "  Checked:   %s\n", report.Claim.Decontextualized)
	}
	fmt.Fprintf(w, "  Sources:   %s\n", report.FetchSummary())
	fmt.Fprintf(w, "  Evidence:  %d quotes\n", len(report.Result.Evidence))
	fmt.Fprintf(w, "\n")

	if report.Result.Explanation != "" {
		fmt.Fprintf(w, "  %s\n\n", report.Result.Explanation)
	}
	for i, e := range report.Result.Evidence {
		fmt.Fprintf(w, "  [%d] \"%s\"\n      %s\n", i+1, e.Quote, e.HighlightURL())
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "  ⚠️  %s\n", warning)
	}
	fmt.Fprintf(w, "\n")
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
