// Package cli wires the helpdesk binary's cobra commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

// NewRootCommand builds the command tree. Running the binary without a subcommand serves HTTP.
func NewRootCommand() *cobra.Command {
	serve := newServeCommand()
	root := &cobra.Command{
		Use:          "helpdesk",
		Short:        "Helpdesk ticketing service",
		Long:         `Helpdesk exposes the ticketing REST API and the tools to manage its database and accounts.`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}

	root.AddCommand(
		serve,
		newMigrateCommand(),
		newUserCommand(),
	)
	return root
}

// environment is the shared bootstrap state of every command.
type environment struct {
	cfg    *config.Config
	logger *zap.Logger
	pg     *persistence.Postgres
}

func (e *environment) close() {
	e.pg.Close()
	_ = e.logger.Sync()
}

func bootstrap(ctx context.Context) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &environment{cfg: cfg, logger: logger, pg: pg}, nil
}
