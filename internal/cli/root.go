// Package cli implements the research command line.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"research-agent/internal/ingest"
	"research-agent/internal/policy"
	"research-agent/internal/service"
)

// Ingester loads and watches reports.
type Ingester interface {
	IngestDir(ctx context.Context, dir string, force bool) (ingest.Summary, error)
	Watch(ctx context.Context, dir string, debounce time.Duration) error
	ClearAll(ctx context.Context) error
	Stats(ctx context.Context) (*ingest.Stats, error)
}

// Backend is what the commands operate on.
type Backend struct {
	Chat       service.ChatService
	Retriever  service.Retriever
	Ingester   Ingester
	Policy     *policy.Policy
	ReportsDir string
	// Close releases the backend. May be nil.
	Close func() error
}

// Opener builds the backend on first use so --help works without configuration.
type Opener func(ctx context.Context) (*Backend, error)

var errNoBackend = errors.New("backend not configured")

type runner struct {
	open    Opener
	backend *Backend
}

func (r *runner) get(ctx context.Context) (*Backend, error) {
	if r.backend != nil {
		return r.backend, nil
	}
	if r.open == nil {
		return nil, errNoBackend
	}
	b, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	r.backend = b
	return b, nil
}

func (r *runner) close() error {
	if r.backend == nil || r.backend.Close == nil {
		return nil
	}
	err := r.backend.Close()
	r.backend = nil
	return err
}

// NewRootCmd returns the research command tree.
func NewRootCmd(open Opener) *cobra.Command {
	r := &runner{open: open}

	root := &cobra.Command{
		Use:   "research",
		Short: "Question answering over investment research reports",
		Long: `research answers questions about a corpus of investment research reports
(house views, SEC filings, FOMC minutes, bank outlooks) with cited sources.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newIngestCmd(r),
		newAskCmd(r),
		newChatCmd(r),
		newStatsCmd(r),
		newMCPCmd(r),
	)

	// cobra skips post-run hooks when RunE fails, so the close is tied to RunE itself.
	for _, cmd := range root.Commands() {
		run := cmd.RunE
		cmd.RunE = func(c *cobra.Command, args []string) error {
			return errors.Join(run(c, args), r.close())
		}
	}
	return root
}
