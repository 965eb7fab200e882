package artifact

import (
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"netflows/internal/model"
)

const rowGroupSize = 128 * 1024 * 1024

// FlowRow is the on-disk shape of full_flows_*.parquet.
type FlowRow struct {
	Year            int32   `parquet:"name=year, type=INT32"`
	Country         string  `parquet:"name=country, type=BYTE_ARRAY, convertedtype=UTF8"`
	Continent       string  `parquet:"name=continent, type=BYTE_ARRAY, convertedtype=UTF8"`
	IncomeLevel     string  `parquet:"name=income_level, type=BYTE_ARRAY, convertedtype=UTF8"`
	CounterpartArea string  `parquet:"name=counterpart_area, type=BYTE_ARRAY, convertedtype=UTF8"`
	CounterpartType string  `parquet:"name=counterpart_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Indicator       string  `parquet:"name=indicator, type=BYTE_ARRAY, convertedtype=UTF8"`
	IndicatorType   string  `parquet:"name=indicator_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Prices          string  `parquet:"name=prices, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value           float64 `parquet:"name=value, type=DOUBLE"`
}

// NetFlowRow is the on-disk shape of net_flows_*.parquet and
// net_negative_flows_*.parquet.
type NetFlowRow struct {
	Year          int32   `parquet:"name=year, type=INT32"`
	Country       string  `parquet:"name=country, type=BYTE_ARRAY, convertedtype=UTF8"`
	Continent     string  `parquet:"name=continent, type=BYTE_ARRAY, convertedtype=UTF8"`
	IncomeLevel   string  `parquet:"name=income_level, type=BYTE_ARRAY, convertedtype=UTF8"`
	IndicatorType string  `parquet:"name=indicator_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Prices        string  `parquet:"name=prices, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value         float64 `parquet:"name=value, type=DOUBLE"`
}

// ProjectionRow is the on-disk shape of net_flow_projections_*.parquet.
type ProjectionRow struct {
	Year        int32   `parquet:"name=year, type=INT32"`
	Country     string  `parquet:"name=country, type=BYTE_ARRAY, convertedtype=UTF8"`
	Continent   string  `parquet:"name=continent, type=BYTE_ARRAY, convertedtype=UTF8"`
	IncomeLevel string  `parquet:"name=income_level, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value       float64 `parquet:"name=value, type=DOUBLE"`
}

var (
	FlowColumns       = []string{"year", "country", "continent", "income_level", "counterpart_area", "counterpart_type", "indicator", "indicator_type", "prices", "value"}
	NetFlowColumns    = []string{"year", "country", "continent", "income_level", "indicator_type", "prices", "value"}
	ProjectionColumns = []string{"year", "country", "continent", "income_level", "value"}
)

func WriteFlows(path string, records []model.FlowRecord) error {
	rows := make([]FlowRow, len(records))
	for i, r := range records {
		rows[i] = FlowRow{
			Year:            int32(r.Year),
			Country:         r.Country,
			Continent:       r.Continent,
			IncomeLevel:     r.IncomeLevel,
			CounterpartArea: r.CounterpartArea,
			CounterpartType: r.CounterpartType,
			Indicator:       r.Indicator,
			IndicatorType:   string(r.IndicatorType),
			Prices:          string(r.Prices),
			Value:           r.Value,
		}
	}
	return writeParquet(path, rows)
}

func ReadFlows(path string) ([]model.FlowRecord, error) {
	rows, err := readParquet[FlowRow](path, FlowColumns)
	if err != nil {
		return nil, err
	}
	out := make([]model.FlowRecord, len(rows))
	for i, r := range rows {
		out[i] = model.FlowRecord{
			FlowKey: model.FlowKey{
				Year:            int(r.Year),
				Country:         r.Country,
				Continent:       r.Continent,
				IncomeLevel:     r.IncomeLevel,
				CounterpartArea: r.CounterpartArea,
				CounterpartType: r.CounterpartType,
				Indicator:       r.Indicator,
				IndicatorType:   model.IndicatorType(r.IndicatorType),
				Prices:          model.Prices(r.Prices),
			},
			Value: r.Value,
		}
	}
	return out, nil
}

func WriteNetFlows(path string, records []model.FlowRecord) error {
	rows := make([]NetFlowRow, len(records))
	for i, r := range records {
		rows[i] = NetFlowRow{
			Year:          int32(r.Year),
			Country:       r.Country,
			Continent:     r.Continent,
			IncomeLevel:   r.IncomeLevel,
			IndicatorType: string(r.IndicatorType),
			Prices:        string(r.Prices),
			Value:         r.Value,
		}
	}
	return writeParquet(path, rows)
}

func ReadNetFlows(path string) ([]model.FlowRecord, error) {
	rows, err := readParquet[NetFlowRow](path, NetFlowColumns)
	if err != nil {
		return nil, err
	}
	out := make([]model.FlowRecord, len(rows))
	for i, r := range rows {
		out[i] = model.FlowRecord{
			FlowKey: model.FlowKey{
				Year:          int(r.Year),
				Country:       r.Country,
				Continent:     r.Continent,
				IncomeLevel:   r.IncomeLevel,
				IndicatorType: model.IndicatorType(r.IndicatorType),
				Prices:        model.Prices(r.Prices),
			},
			Value: r.Value,
		}
	}
	return out, nil
}

func WriteProjections(path string, records []model.FlowRecord) error {
	rows := make([]ProjectionRow, len(records))
	for i, r := range records {
		rows[i] = ProjectionRow{
			Year:        int32(r.Year),
			Country:     r.Country,
			Continent:   r.Continent,
			IncomeLevel: r.IncomeLevel,
			Value:       r.Value,
		}
	}
	return writeParquet(path, rows)
}

// ReadProjections loads projected net flows. The rows come back tagged as
// net flows.
func ReadProjections(path string) ([]model.FlowRecord, error) {
	rows, err := readParquet[ProjectionRow](path, ProjectionColumns)
	if err != nil {
		return nil, err
	}
	out := make([]model.FlowRecord, len(rows))
	for i, r := range rows {
		out[i] = model.FlowRecord{
			FlowKey: model.FlowKey{
				Year:          int(r.Year),
				Country:       r.Country,
				Continent:     r.Continent,
				IncomeLevel:   r.IncomeLevel,
				IndicatorType: model.IndicatorNetFlow,
			},
			Value: r.Value,
		}
	}
	return out, nil
}

func writeParquet[T any](path string, rows []T) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("artifact: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(T), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("artifact: parquet schema: %w", err)
	}
	pw.RowGroupSize = rowGroupSize
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(&rows[i]); err != nil {
			file.Close()
			return fmt.Errorf("artifact: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("artifact: finish parquet: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("artifact: close parquet: %w", err)
	}
	return nil
}

// ParquetColumns lists the column names stored in a parquet file's footer.
func ParquetColumns(path string) ([]string, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: open parquet: %w", err)
	}
	defer fr.Close()

	// Without a target struct the schema comes from the footer as written.
	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("artifact: read parquet footer: %w", err)
	}
	defer pr.ReadStop()

	columns := make([]string, 0, len(pr.SchemaHandler.Infos))
	for _, info := range pr.SchemaHandler.Infos {
		columns = append(columns, info.ExName)
	}
	return columns, nil
}

func readParquet[T any](path string, required []string) ([]T, error) {
	columns, err := ParquetColumns(path)
	if err != nil {
		return nil, err
	}
	if err := requireColumns(path, columns, required); err != nil {
		return nil, err
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: open parquet: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(T), 1)
	if err != nil {
		return nil, fmt.Errorf("artifact: read parquet schema: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]T, int(pr.GetNumRows()))
	if len(rows) == 0 {
		return rows, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("artifact: read parquet rows: %w", err)
	}
	return rows, nil
}
