package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netflows/internal/extract"
	"netflows/internal/logging"
	"netflows/internal/normalize"
	"netflows/internal/population"
	"netflows/internal/providers/oecd"
	"netflows/internal/providers/unpop"
	"netflows/internal/providers/worldbank"
	"netflows/internal/store"
)

func runCollect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	from, to := cfg.Analysis.StartYear, cfg.Analysis.EndYear
	if fromYear > 0 {
		from = fromYear
	}
	if toYear > 0 {
		to = toYear
	}
	if to < from {
		return fmt.Errorf("invalid year range %d-%d", from, to)
	}
	serviceTo := cfg.Analysis.DebtServiceTo
	if serviceTo < to {
		serviceTo = to
	}

	names, err := normalize.Default()
	if err != nil {
		return err
	}
	wb, err := worldbank.NewWithConfig(worldbank.ConfigFromSettings(cfg.Providers.WorldBank), logger)
	if err != nil {
		return err
	}
	dac, err := oecd.NewDAC2a(oecd.Config{Path: cfg.RawPath(cfg.Providers.DAC2aFile), AidType: cfg.Providers.GrantsAid})
	if err != nil {
		return err
	}
	ex, err := extract.New(wb, dac, names, logger)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	datasets := []dataset{
		{store.DatasetDebtInflows, from, to, ex.DebtInflows},
		{store.DatasetDebtService, from, serviceTo, ex.DebtService},
		{store.DatasetGrants, from, to, ex.Grants},
	}
	return collect(ctx, st, datasets, collectOptions{refresh: refresh, allowUnresolved: allowUnresolved}, logger)
}

// dataset is one cached table and the extraction that fills it.
type dataset struct {
	name     string
	from, to int
	fetch    func(context.Context, int, int) (extract.Result, error)
}

type collectOptions struct {
	refresh         bool
	allowUnresolved bool
}

// collect fetches the uncached years of each dataset into st. A dataset with
// unresolved entity names fails before anything of it is written, unless
// allowUnresolved is set.
func collect(ctx context.Context, st store.Store, datasets []dataset, opts collectOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	stored, skipped, unresolved := 0, 0, 0
	for _, ds := range datasets {
		log := logging.Stage(logger, ds.name)
		start, end, err := missingRange(ctx, st, ds.name, ds.from, ds.to, opts.refresh)
		if err != nil {
			return err
		}
		if start == 0 {
			skipped++
			log.Info("already cached", zap.Int("from", ds.from), zap.Int("to", ds.to))
			continue
		}

		res, err := ds.fetch(ctx, start, end)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("fetch %s: %w", ds.name, err)
		}
		if err := res.Err(); err != nil {
			if !opts.allowUnresolved {
				return fmt.Errorf("%s: %d unresolved names, add them to the entity table or pass --allow-unresolved: %w",
					ds.name, len(res.Unresolved), err)
			}
			log.Warn("storing rows with unresolved names", zap.Int("unresolved", len(res.Unresolved)))
		}
		if err := st.UpsertFlows(ctx, ds.name, res.Records); err != nil {
			return err
		}
		stored += len(res.Records)
		unresolved += len(res.Unresolved)
		log.Info("cached", zap.Int("from", start), zap.Int("to", end), zap.Int("rows", len(res.Records)))
	}

	logger.Info("collector run complete",
		zap.Int("rows", stored),
		zap.Int("skipped_datasets", skipped),
		zap.Int("unresolved", unresolved))
	return nil
}

// missingRange returns the smallest year range covering every year in
// from..to that the cache lacks. A zero start means nothing is missing.
func missingRange(ctx context.Context, st store.Store, dataset string, from, to int, refresh bool) (int, int, error) {
	if refresh {
		return from, to, nil
	}
	years, err := st.ListFlowYears(ctx, dataset)
	if err != nil {
		return 0, 0, err
	}
	existing := make(map[int]struct{}, len(years))
	for _, y := range years {
		existing[y] = struct{}{}
	}

	start, end := 0, 0
	for y := from; y <= to; y++ {
		if _, ok := existing[y]; ok {
			continue
		}
		if start == 0 {
			start = y
		}
		end = y
	}
	return start, end, nil
}

func runReference(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	wb, err := worldbank.NewWithConfig(worldbank.ConfigFromSettings(cfg.Providers.WorldBank), logger)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	for _, series := range []string{cfg.Analysis.GDPSeries, cfg.Analysis.DeflatorSeries} {
		values, err := wb.FetchIndicator(ctx, series, cfg.Analysis.StartYear, cfg.Analysis.DebtServiceTo)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", series, err)
		}
		if err := st.UpsertSeries(ctx, values); err != nil {
			return err
		}
		logger.Info("series cached", zap.String("series", series), zap.Int("values", len(values)))
	}
	return nil
}

func runPopulation(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	source, err := unpop.NewWithConfig(unpop.ConfigFromSettings(cfg.Providers.UNPopulation), logger)
	if err != nil {
		return err
	}
	records, err := population.NewDownloader(source, logger).Download(ctx, indicator, population.DefaultYear)
	if err != nil {
		return err
	}
	path := cfg.RawPath(population.RawFileName(indicator))
	if dryRun {
		logger.Info("dry run, population file not written", zap.Int("rows", len(records)))
		return nil
	}
	if err := population.WriteRaw(path, records); err != nil {
		return err
	}
	logger.Info("population written", zap.String("path", path), zap.Int("rows", len(records)))
	return nil
}
