package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/wiredberlin/boxoffice/internal/config"
	"github.com/wiredberlin/boxoffice/internal/domain"
	"github.com/wiredberlin/boxoffice/internal/postgres"
	postgresrepo "github.com/wiredberlin/boxoffice/internal/repository/postgres"
	"github.com/wiredberlin/boxoffice/internal/service/orders"
)

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	pgCfg, err := config.LoadPostgres()
	if err != nil {
		return nil, err
	}

	return postgres.New(ctx, postgres.Config{DSN: pgCfg.DSN(), MaxConns: 2})
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Apply the embedded schema to the database named by the POSTGRES_*
environment variables. Every statement is idempotent, so running it
twice is safe.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			pool, err := openPool(ctx)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func ordersCmd() *cobra.Command {
	var event string

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Print order counts by status for an event",
		Example: `  boxofficectl orders --event wired-002`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			pool, err := openPool(ctx)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			counts, err := orders.New(postgresrepo.NewStore(pool)).Counts(ctx, event)
			if err != nil {
				return err
			}

			statuses := make([]string, 0, len(counts))
			for s := range counts {
				statuses = append(statuses, string(s))
			}
			sort.Strings(statuses)

			out := cmd.OutOrStdout()
			for _, s := range statuses {
				fmt.Fprintf(out, "%-10s %d\n", s, counts[domain.OrderStatus(s)])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "event slug")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}
