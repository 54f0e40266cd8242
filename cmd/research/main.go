// Command research is the command line for the investment research agent.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"research-agent/internal/app"
	"research-agent/internal/cli"
	"research-agent/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(open)
	root.SetOut(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// open builds the backend from the environment. Logs go to stderr so stdout
// stays clean for answers, JSON output and the MCP protocol.
func open(ctx context.Context) (*cli.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(app.NewLogger(cfg, os.Stderr))

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Prepare(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	return &cli.Backend{
		Chat:       a.Chat,
		Retriever:  a.Retriever,
		Ingester:   a.Pipeline,
		Policy:     a.Policy,
		ReportsDir: cfg.ReportsDir,
		Close:      a.Close,
	}, nil
}
