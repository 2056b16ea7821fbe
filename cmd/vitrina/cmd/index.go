package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitrina-search/vitrina/internal/output"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage project indexes",
	}

	cmd.AddCommand(newIndexRestoreCmd())
	cmd.AddCommand(newIndexClearCmd())

	return cmd
}

type indexRestoreOptions struct {
	project string
}

func newIndexRestoreCmd() *cobra.Command {
	opts := &indexRestoreOptions{}

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Rebuild a project's index from the PostgreSQL backup",
		Long: `Rebuilds the Redis index from the last product backup. Use this
after a Redis flush or migration instead of re-downloading the feed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexRestore(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project ID (required)")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runIndexRestore(ctx context.Context, cmd *cobra.Command, opts *indexRestoreOptions) error {
	pipe, err := openFeedPipeline(ctx)
	if err != nil {
		return err
	}
	defer pipe.Close()

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📦", "Loading backup for project %s...", opts.project)

	products, err := pipe.registry.ProductsBackup(ctx, opts.project)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	if len(products) == 0 {
		return fmt.Errorf("no backup found for project %s", opts.project)
	}

	start := time.Now()
	indexed, err := pipe.indexer.IndexProducts(ctx, opts.project, products)
	if err != nil {
		return err
	}
	pipe.recordProductsCount(ctx, opts.project, indexed)

	out.Successf("Restored %d products in %s", indexed, time.Since(start).Round(10*time.Millisecond))

	return nil
}

type indexClearOptions struct {
	project string
	yes     bool
}

func newIndexClearCmd() *cobra.Command {
	opts := &indexClearOptions{}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete a project's index from Redis",
		Long: `Removes every product, token and suggest key of a project from
Redis. The PostgreSQL backup is kept, so 'vitrina index restore' can
bring the index back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexClear(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project ID (required)")
	cmd.Flags().BoolVar(&opts.yes, "yes", false, "Skip the confirmation check")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runIndexClear(ctx context.Context, cmd *cobra.Command, opts *indexClearOptions) error {
	if !opts.yes {
		return fmt.Errorf("clearing project %s deletes its live index; re-run with --yes", opts.project)
	}

	pipe, err := openFeedPipeline(ctx)
	if err != nil {
		return err
	}
	defer pipe.Close()

	out := output.New(cmd.OutOrStdout())

	if err := pipe.indexer.ClearProject(ctx, opts.project); err != nil {
		return err
	}
	pipe.recordProductsCount(ctx, opts.project, 0)

	out.Successf("Cleared index for project %s", opts.project)

	return nil
}
