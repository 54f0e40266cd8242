package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIngestCmd(r *runner) *cobra.Command {
	var (
		dir        string
		force      bool
		watch      bool
		clearFirst bool
		debounce   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest reports into the index",
		Long: `Loads PDF, Markdown and text reports from the reports directory, splits
them into chunks, embeds them and stores them in the index. Unchanged files
are skipped unless --force is given.

With --watch the command keeps running and re-ingests reports as they are
added, changed or removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := r.get(ctx)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = b.ReportsDir
			}

			if clearFirst {
				if err := b.Ingester.ClearAll(ctx); err != nil {
					return fmt.Errorf("failed to clear index: %w", err)
				}
				cmd.Println("Cleared existing index.")
			}

			summary, err := b.Ingester.IngestDir(ctx, dir, force)
			cmd.Printf("Files: %d  ingested: %d  skipped: %d  failed: %d  chunks: %d\n",
				summary.Files, summary.Ingested, summary.Skipped, summary.Failed, summary.Chunks)
			if err != nil && !watch {
				return err
			}

			if watch {
				cmd.Printf("Watching %s for changes (Ctrl+C to stop)...\n", dir)
				return b.Ingester.Watch(ctx, dir, debounce)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "reports directory (default REPORTS_DIR)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-ingest unchanged files")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep watching the directory for changes")
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "remove every indexed document first")
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "quiet period before a changed file is re-ingested")
	return cmd
}
