package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netflows/internal/config"
	"netflows/internal/logging"
	"netflows/internal/population"
	"netflows/internal/store"
	"netflows/internal/store/sqlite"
)

var (
	configPath string
	verbose    bool
	fromYear   int
	toYear     int
	refresh    bool
	indicator  int
	dryRun     bool

	allowUnresolved bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "collector",
	Short: "Download and cache the raw data behind the net flows analysis",
	Long: `collector fetches creditor-level debt statistics, DAC2a grants,
GDP and deflator series and UN population estimates, and caches them in
the raw data directory for the publisher.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		base, err := logging.New(loaded.Logging)
		if err != nil {
			return err
		}
		cfg = loaded
		logger, _ = logging.ForRun(base, cmd.Name())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch debt inflows, debt service and grants into the cache",
	Long: `Fetches the debt statistics and DAC2a grants for the analysis years.
Years already cached are skipped unless --refresh is given. Debt service is
fetched through the last contracted year. A dataset with country or creditor
names missing from the entity table is not cached unless --allow-unresolved
is given.`,
	RunE: runCollect,
}

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Fetch the GDP and GDP deflator series into the cache",
	RunE:  runReference,
}

var populationCmd = &cobra.Command{
	Use:   "population",
	Short: "Download UN population estimates to the raw data directory",
	RunE:  runPopulation,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults plus environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "fetch but do not write to the cache")

	runCmd.Flags().IntVar(&fromYear, "from", 0, "first year (default analysis.start_year)")
	runCmd.Flags().IntVar(&toYear, "to", 0, "last year (default analysis.end_year)")
	runCmd.Flags().BoolVar(&refresh, "refresh", false, "refetch years that are already cached")
	runCmd.Flags().BoolVar(&allowUnresolved, "allow-unresolved", false, "cache rows whose names did not resolve")

	populationCmd.Flags().IntVar(&indicator, "indicator", population.DefaultIndicator, "UN population indicator id")

	rootCmd.AddCommand(runCmd, referenceCmd, populationCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "collector:", err)
		os.Exit(1)
	}
}

func openStore() (store.Store, error) {
	if dryRun {
		logger.Info("dry run, cache writes disabled")
		return &store.NopStore{}, nil
	}
	return sqlite.New(cfg.Paths.Database)
}
