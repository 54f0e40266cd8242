package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"research-agent/internal/rag"
	"research-agent/internal/service"
)

// askOutput is the --json shape of an answer.
type askOutput struct {
	Answer              string                   `json:"answer"`
	Citations           []string                 `json:"citations"`
	Sources             []rag.Result             `json:"sources"`
	ToolCalls           []service.ToolCallRecord `json:"tool_calls"`
	ResponseTimeSeconds float64                  `json:"response_time_seconds"`
}

func newAskCmd(r *runner) *cobra.Command {
	var (
		asJSON   bool
		nResults int
		source   string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question",
		Long: `Answers a single question from the indexed reports and prints the answer
followed by its sources. Each invocation starts a fresh conversation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := r.get(ctx)
			if err != nil {
				return err
			}

			reply, err := b.Chat.Query(ctx, service.QueryRequest{
				Query:    strings.Join(args, " "),
				NResults: nResults,
				Filters:  rag.Filters{SourceDocument: source},
			})
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			if asJSON {
				calls := reply.ToolCalls
				if calls == nil {
					calls = []service.ToolCallRecord{}
				}
				data, err := json.MarshalIndent(askOutput{
					Answer:              reply.Answer,
					Citations:           reply.Citations,
					Sources:             reply.Sources,
					ToolCalls:           calls,
					ResponseTimeSeconds: reply.Duration.Seconds(),
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal answer: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}

			printReply(cmd, reply)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output the answer as JSON")
	cmd.Flags().IntVarP(&nResults, "n-results", "n", 0, "excerpts per search (default RETRIEVAL_TOP_K)")
	cmd.Flags().StringVar(&source, "source", "", "restrict the search to one report file name")
	return cmd
}

func printReply(cmd *cobra.Command, reply service.Reply) {
	cmd.Println(reply.Answer)
	if len(reply.Citations) == 0 {
		return
	}
	cmd.Println()
	cmd.Println("Sources:")
	for _, c := range reply.Citations {
		cmd.Printf("  - %s\n", c)
	}
}
