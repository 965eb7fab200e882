package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"netflows/internal/model"
	"netflows/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) UpsertFlows(ctx context.Context, dataset string, records []model.FlowRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	if strings.TrimSpace(dataset) == "" {
		return fmt.Errorf("sqlite: dataset is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flow_records (
			dataset, year, country, iso_code, continent, income_level,
			counterpart_area, counterpart_iso_code, counterpart_type,
			indicator, indicator_type, prices, value, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset, year, iso_code, counterpart_area, indicator, prices)
		DO UPDATE SET
			country = excluded.country,
			continent = excluded.continent,
			income_level = excluded.income_level,
			counterpart_iso_code = excluded.counterpart_iso_code,
			counterpart_type = excluded.counterpart_type,
			indicator_type = excluded.indicator_type,
			value = excluded.value,
			ingested_at = excluded.ingested_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range records {
		_, err = stmt.ExecContext(ctx,
			dataset,
			r.Year,
			r.Country,
			r.ISOCode,
			r.Continent,
			r.IncomeLevel,
			r.CounterpartArea,
			r.CounterpartISOCode,
			r.CounterpartType,
			r.Indicator,
			string(r.IndicatorType),
			string(r.Prices),
			r.Value,
			now,
		)
		if err != nil {
			return fmt.Errorf("sqlite: upsert flow %d %s/%s: %w", r.Year, r.ISOCode, r.CounterpartArea, err)
		}
	}

	return tx.Commit()
}

func (s *Store) ListFlows(ctx context.Context, filter store.FlowFilter) ([]model.FlowRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Dataset != "" {
		where = append(where, "dataset = ?")
		args = append(args, filter.Dataset)
	}
	if filter.FromYear > 0 {
		where = append(where, "year >= ?")
		args = append(args, filter.FromYear)
	}
	if filter.ToYear > 0 {
		where = append(where, "year <= ?")
		args = append(args, filter.ToYear)
	}
	if filter.Prices != "" {
		where = append(where, "prices = ?")
		args = append(args, string(filter.Prices))
	}

	query := `SELECT year, country, iso_code, continent, income_level,
			counterpart_area, counterpart_iso_code, counterpart_type,
			indicator, indicator_type, prices, value
		FROM flow_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY dataset, year, iso_code, counterpart_area, indicator, prices"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FlowRecord
	for rows.Next() {
		var (
			r             model.FlowRecord
			indicatorType string
			prices        string
		)
		if err := rows.Scan(
			&r.Year, &r.Country, &r.ISOCode, &r.Continent, &r.IncomeLevel,
			&r.CounterpartArea, &r.CounterpartISOCode, &r.CounterpartType,
			&r.Indicator, &indicatorType, &prices, &r.Value,
		); err != nil {
			return nil, err
		}
		r.IndicatorType = model.IndicatorType(indicatorType)
		r.Prices = model.Prices(prices)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListFlowYears(ctx context.Context, dataset string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT year FROM flow_records WHERE dataset = ? ORDER BY year`, dataset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var year int
		if err := rows.Scan(&year); err != nil {
			return nil, err
		}
		years = append(years, year)
	}
	return years, rows.Err()
}

func (s *Store) UpsertSeries(ctx context.Context, values []model.SeriesValue) (err error) {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO series_values (series, iso_code, year, value, ingested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(series, iso_code, year)
		DO UPDATE SET value = excluded.value, ingested_at = excluded.ingested_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, v := range values {
		if _, err = stmt.ExecContext(ctx, v.Series, v.ISOCode, v.Year, v.Value, now); err != nil {
			return fmt.Errorf("sqlite: upsert series %s %s %d: %w", v.Series, v.ISOCode, v.Year, err)
		}
	}

	return tx.Commit()
}

func (s *Store) ListSeries(ctx context.Context, series string) ([]model.SeriesValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT series, iso_code, year, value FROM series_values WHERE series = ? ORDER BY iso_code, year`, series)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SeriesValue
	for rows.Next() {
		var v model.SeriesValue
		if err := rows.Scan(&v.Series, &v.ISOCode, &v.Year, &v.Value); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS flow_records (
			dataset TEXT NOT NULL,
			year INTEGER NOT NULL,
			country TEXT NOT NULL,
			iso_code TEXT NOT NULL,
			continent TEXT NOT NULL,
			income_level TEXT NOT NULL,
			counterpart_area TEXT NOT NULL,
			counterpart_iso_code TEXT NOT NULL,
			counterpart_type TEXT NOT NULL,
			indicator TEXT NOT NULL,
			indicator_type TEXT NOT NULL,
			prices TEXT NOT NULL,
			value REAL NOT NULL,
			ingested_at TEXT NOT NULL,
			PRIMARY KEY (dataset, year, iso_code, counterpart_area, indicator, prices)
		);`,
		`CREATE INDEX IF NOT EXISTS flow_records_year ON flow_records (dataset, year);`,
		`CREATE TABLE IF NOT EXISTS series_values (
			series TEXT NOT NULL,
			iso_code TEXT NOT NULL,
			year INTEGER NOT NULL,
			value REAL NOT NULL,
			ingested_at TEXT NOT NULL,
			PRIMARY KEY (series, iso_code, year)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)
