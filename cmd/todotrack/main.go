package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/hqnguyen/todotrack/internal/model"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "todotrack",
		Short:         "Multi-tenant task tracker with mail-to-task reconciliation",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(
		&configPath, "config", model.DefaultConfigPath(), "path to the configuration file",
	)

	cmd.AddCommand(
		newWorkerCmd(&configPath),
		newImportCSVCmd(&configPath),
		newMigrateCmd(&configPath),
		newCredentialCmd(),
	)

	return cmd
}
