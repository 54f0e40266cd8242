package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"research-agent/internal/service"
)

func newChatCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Starts a multi-turn conversation. Follow-up questions can refer to earlier turns.

Commands:
  clear    forget the conversation so far
  history  print the conversation so far
  quit     leave (also exit or Ctrl+D)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := r.get(ctx)
			if err != nil {
				return err
			}

			var sessionID string
			scanner := bufio.NewScanner(cmd.InOrStdin())
			cmd.Println("Ask about the research reports. Type 'quit' to leave.")

			for {
				cmd.Print("> ")
				if !scanner.Scan() {
					cmd.Println()
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())

				switch strings.ToLower(line) {
				case "":
					continue
				case "quit", "exit":
					return nil
				case "clear":
					if sessionID != "" {
						if err := b.Chat.Reset(ctx, sessionID); err != nil && !errors.Is(err, service.ErrNotFound) {
							return err
						}
					}
					cmd.Println("Conversation cleared.")
					continue
				case "history":
					printHistory(cmd, b.Chat, sessionID)
					continue
				}

				reply, err := b.Chat.Chat(ctx, sessionID, line)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					cmd.PrintErrln(userMessage(err))
					continue
				}
				sessionID = reply.SessionID
				printReply(cmd, reply)
				cmd.Println()
			}
		},
	}
}

func printHistory(cmd *cobra.Command, chat service.ChatService, sessionID string) {
	if sessionID == "" {
		cmd.Println("No conversation yet.")
		return
	}
	turns, err := chat.History(cmd.Context(), sessionID)
	if err != nil {
		cmd.PrintErrln(userMessage(err))
		return
	}
	for _, t := range turns {
		switch {
		case t.Role == service.RoleUser:
			cmd.Printf("You: %s\n", t.Content)
		case t.Role == service.RoleAssistant && t.Content != "":
			cmd.Printf("Assistant: %s\n", t.Content)
		}
	}
}

// userMessage hides transport details behind a short explanation.
func userMessage(err error) string {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Error()
	case errors.Is(err, service.ErrGenerationFailed):
		return "The language model is unavailable, please try again."
	case errors.Is(err, service.ErrNotFound):
		return "Conversation not found."
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}
