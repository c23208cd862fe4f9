// Package app provides the finrouter application.
package app

import (
	"context"
	"fmt"

	"github.com/kart-io/finrouter/cmd/finrouter/app/options"
	"github.com/kart-io/finrouter/pkg/infra/app"
)

const (
	Name = "finrouter"

	commandDesc = `finrouter - financial query router

Routes each natural-language question to the handler that can answer it:
  - SQL Database: generated SQL over the financial database, narrated
  - Policy Documents (RAG): retrieval over the company policy documents,
    with per-session conversation memory
  - Web Search: current market information via Tavily

Run with --mode=serve for the HTTP API or --mode=chat for an interactive session.`
)

// NewApp returns the finrouter root command.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run builds the server from the validated options and blocks until ctx is
// cancelled or chat mode ends.
func run(opts *options.ServerOptions) app.RunFunc {
	return func(ctx context.Context) error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return server.Run(ctx)
	}
}
