package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/billingcat/smartbill/controller"
	"github.com/billingcat/smartbill/migrations"
	"github.com/billingcat/smartbill/model"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smartbill",
		Short:         "Extract, store and export invoice data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "config.toml", "configuration file (.toml or .yaml)")
	root.AddCommand(newServeCmd(), newMigrateCmd(), newMaintenanceCmd(), newClientCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*model.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return model.LoadConfig(path)
}

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web application",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}
			logger := controller.NewLogger(cfg.Mode)
			slog.SetDefault(logger)

			store, err := model.InitDatabase(cfg)
			if err != nil {
				return err
			}
			logger.Info("starting server", "port", cfg.Port, "mode", cfg.Mode)
			return controller.NewController(cmd.Context(), store, controller.Options{Logger: logger})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides the configuration)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply the SQL schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dsn, err := migrateDSN(cfg)
			if err != nil {
				return err
			}
			src, err := iofs.New(migrations.FS, migrationsDir())
			if err != nil {
				return fmt.Errorf("cannot read migrations: %w", err)
			}
			m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
			if err != nil {
				return fmt.Errorf("cannot start migration: %w", err)
			}
			defer m.Close()

			if len(args) == 1 && args[0] == "down" {
				err = m.Down()
			} else {
				err = m.Up()
			}
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Fprintln(cmd.OutOrStdout(), "no change")
				return nil
			}
			return err
		},
	}
}

func newMaintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintenance",
		Short: "Prune old uploads and compact the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := controller.NewLogger(cfg.Mode)
			store, err := model.InitDatabase(cfg)
			if err != nil {
				return err
			}
			return model.RunMaintenance(cmd.Context(), store, logger)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal(err)
	}
}
