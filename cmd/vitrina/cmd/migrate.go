package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitrina-search/vitrina/internal/auth"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/internal/output"
	"github.com/vitrina-search/vitrina/internal/store"
)

const (
	demoEmail     = "demo@vitrina.local"
	demoProjectID = "demo"
)

type migrateOptions struct {
	skipDemo bool
}

func newMigrateCmd() *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		Long: `Applies the schema to the configured PostgreSQL database and seeds
a demo project when none exists. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.skipDemo, "skip-demo", false, "Skip seeding the demo project")

	return cmd
}

func runMigrate(ctx context.Context, cmd *cobra.Command, opts *migrateOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())

	registry, err := store.New(ctx, cfg.DB.URL(),
		store.WithPoolSize(cfg.DB.PoolSize))
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer registry.Close()

	out.Statusf("🔧", "Applying schema to %s...", cfg.DB.Host)
	if err := registry.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	out.Success("Schema is up to date")

	if opts.skipDemo {
		return nil
	}

	return seedDemo(ctx, registry, out, cfg.Auth.APIKeyPrefix)
}

// seedDemo creates the demo account and project on first run. Existing
// rows are left untouched, so the printed API key appears only once.
func seedDemo(ctx context.Context, registry *store.Store, out *output.Writer, keyPrefix string) error {
	user, err := registry.UserByEmail(ctx, demoEmail)
	switch {
	case err == nil:
	case verrors.GetCode(err) == verrors.ErrCodeNotFound:
		// The demo account is never logged into, so the password is
		// random and discarded.
		user, err = registry.CreateUser(ctx, store.User{
			ID:           auth.GenerateUserID(),
			Email:        demoEmail,
			Name:         "Demo",
			PasswordHash: auth.HashPassword(auth.GenerateAPIKey("pw_")),
		})
		if err != nil {
			return fmt.Errorf("failed to create demo user: %w", err)
		}
		out.Success("Created demo user " + demoEmail)
	default:
		return err
	}

	_, err = registry.ProjectByID(ctx, demoProjectID)
	if err == nil {
		out.Status("", "Demo project already exists")
		return nil
	}
	if verrors.GetCode(err) != verrors.ErrCodeNotFound {
		return err
	}

	apiKey := auth.GenerateAPIKey(keyPrefix)
	project, err := registry.CreateProject(ctx, demoProjectID, user.ID, "Demo Shop", "", "", apiKey)
	if err != nil {
		return fmt.Errorf("failed to create demo project: %w", err)
	}

	out.Success("Created demo project")
	out.Field("Project", project.ID)
	out.Field("API key", apiKey)
	out.Status("", "Load a feed with: vitrina feed load <url> --project demo")

	return nil
}
