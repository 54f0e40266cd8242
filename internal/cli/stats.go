package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatsCmd(r *runner) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := r.get(ctx)
			if err != nil {
				return err
			}
			stats, err := b.Ingester.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to compute stats: %w", err)
			}

			if asJSON {
				data, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal stats: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}

			cmd.Printf("Collection:     %s\n", stats.Collection)
			cmd.Printf("Documents:      %d (%d without chunks)\n", stats.Documents, stats.DocsWithoutChunks)
			cmd.Printf("Chunks:         %d\n", stats.Chunks)
			cmd.Printf("Vectors:        %d\n", stats.Vectors)
			cmd.Printf("Chunk tokens:   min %d, mean %.1f, p95 %d, max %d\n",
				stats.ChunkTokenStats.Min, stats.ChunkTokenStats.Mean, stats.ChunkTokenStats.P95, stats.ChunkTokenStats.Max)
			cmd.Printf("Index version:  %s (%s)\n", stats.IndexVersion, stats.SplitterVersion)

			if len(stats.SourceTypes) > 0 {
				types := make([]string, 0, len(stats.SourceTypes))
				for t := range stats.SourceTypes {
					types = append(types, t)
				}
				sort.Strings(types)
				cmd.Println("Source types:")
				for _, t := range types {
					cmd.Printf("  %-16s %d\n", t, stats.SourceTypes[t])
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output statistics as JSON")
	return cmd
}
