package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// newRootCmd creates the command tree. Flags are bound per invocation so tests
// can build fresh trees in parallel.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogexporter",
		Short: "Exports catalog item details to CSV using a pool of browser sessions.",
		Long: `catalogexporter reads item identifiers, checks each one against the catalog's
client-rendered detail view, and writes the name, description, specifications,
shipping information and image URL of every listed item to a CSV file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadDotEnv(".env")
		},
	}
	cmd.AddCommand(newExportCmd())
	return cmd
}

// loadDotEnv applies path to the process environment. A missing file is not
// an error; variables already set win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "catalogexporter: %v\n", err)
		return 1
	}
	return 0
}
