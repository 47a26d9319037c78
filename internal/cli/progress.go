package cli

import (
	"fmt"
	"io"

	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/pipeline"
)

// progressPrinter reports stage changes and settled sources to w
func progressPrinter(w io.Writer) pipeline.Observer {
	return func(e pipeline.Event) {
		switch e.Type {
		case pipeline.EventStage:
			switch e.Stage {
			case pipeline.StageAcquiring:
				fmt.Fprintf(w, "⚙️  Fetching sources...\n")
			case pipeline.StageDecontextualizing:
				fmt.Fprintf(w, "⚙️  Rewriting claim...\n")
			case pipeline.StageVerifying:
				fmt.Fprintf(w, "⚙️  Verifying...\n")
			case pipeline.StageErrored:
				fmt.Fprintf(w, "✗ Run failed\n")
			}
		case pipeline.EventSource:
			if e.Source == nil {
				return
			}
			switch e.Source.Status {
			case model.SourceFetched:
				fmt.Fprintf(w, "✓ [%d] %s (%d chars)\n", e.Index+1, e.Source.URL, len([]rune(e.Source.Content)))
			case model.SourceError:
				fmt.Fprintf(w, "✗ [%d] %s: %s\n", e.Index+1, e.Source.URL, e.Source.Error)
			}
		}
	}
}
