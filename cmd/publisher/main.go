package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netflows/internal/config"
	"netflows/internal/logging"
	"netflows/internal/normalize"
	"netflows/internal/pipeline"
	"netflows/internal/store/sqlite"
)

var (
	configPath string
	outDir     string
	verbose    bool
	only       []string
)

var rootCmd = &cobra.Command{
	Use:          "publisher",
	Short:        "Build the net flows tables, charts and key numbers",
	SilenceUsage: true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the analysis steps over the cached raw data",
	Long: `Runs the analysis steps in order and writes every artifact to the
output directory. With --only, the selected steps run and read the outputs
of earlier steps back from the output directory.

Steps: full_flows, net_flows, negative_flows, projections, scatter,
repayments, charts, key_numbers`,
	RunE: build,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults plus environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	buildCmd.Flags().StringVar(&outDir, "out", "", "output directory (default paths.output)")
	buildCmd.Flags().StringSliceVar(&only, "only", nil, "comma-separated steps to run")
	rootCmd.AddCommand(buildCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "publisher:", err)
		os.Exit(1)
	}
}

func build(cmd *cobra.Command, args []string) error {
	if _, err := pipeline.Select(only); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if outDir != "" {
		cfg.Paths.Output = outDir
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	base, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	logger, _ := logging.ForRun(base, "build")
	defer func() { _ = logger.Sync() }()

	names, err := normalize.Default()
	if err != nil {
		return err
	}
	st, err := sqlite.New(cfg.Paths.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runner, err := pipeline.New(cfg, st, names, logger)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := runner.Run(cmd.Context(), only...); err != nil {
		logger.Error("build failed", zap.Error(err))
		return err
	}
	logger.Info("build complete",
		zap.String("output", cfg.Paths.Output),
		zap.String("entities_version", names.Version()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
