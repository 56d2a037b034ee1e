package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-exporter/internal/app"
	"github.com/JakeFAU/catalog-exporter/internal/catalog"
	"github.com/JakeFAU/catalog-exporter/internal/config"
	"github.com/JakeFAU/catalog-exporter/internal/input"
	"github.com/JakeFAU/catalog-exporter/internal/logging"
)

const shutdownTimeout = 10 * time.Second

type exportOptions struct {
	configPath string
	inputPath  string
	outputPath string
	workers    int
}

func newExportCmd() *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Runs one export",
		Long: `Reads identifiers from --input (stdin when empty or "-"), exports every listed
item to --output and exits non-zero if the run did not complete cleanly.
Items that are not listed or fail individually do not fail the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&opts.inputPath, "input", "", `identifier list, one per line ("-" for stdin)`)
	flags.StringVar(&opts.outputPath, "output", "", "CSV output path (overrides output.path)")
	flags.IntVar(&opts.workers, "workers", 0, "concurrent sessions (overrides pool.width)")
	return cmd
}

func loadConfig(cmd *cobra.Command, opts *exportOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Input.Path = opts.inputPath
	}
	if flags.Changed("output") {
		cfg.Output.Path = opts.outputPath
	}
	if flags.Changed("workers") {
		cfg.Pool.Width = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func readIdentifiers(cmd *cobra.Command, path string) ([]catalog.Identifier, error) {
	if path == "" || path == "-" {
		ids, err := input.Read(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return ids, nil
	}
	return input.ReadFile(path)
}

func runExport(cmd *cobra.Command, opts *exportOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ids, err := readIdentifiers(cmd, cfg.Input.Path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	exporter, err := app.Build(ctx, &cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize exporter: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if cerr := exporter.Close(closeCtx); cerr != nil {
			logger.Warn("exporter shutdown failed", zap.Error(cerr))
		}
	}()

	summary, err := exporter.Run(ctx, ids)
	fmt.Fprintf(cmd.OutOrStdout(),
		"submitted=%d found=%d not_listed=%d failed=%d duplicates=%d degraded_fields=%d output=%s\n",
		summary.Submitted, summary.Found, summary.NotListed, summary.Failed,
		summary.Duplicates, summary.DegradedFields, cfg.Output.Path,
	)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
