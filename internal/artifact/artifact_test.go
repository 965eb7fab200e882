package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"netflows/internal/model"
)

func TestCSVRoundTrip(t *testing.T) {
	table := NewTable("chart_2_2", "year", "binned", "count", "x_values")
	table.Append(2022, "-5 to -4", 3, -4.5)
	table.Append(2022, "20+", 1, ">20")

	path := filepath.Join(t.TempDir(), "out", "chart_2_2.csv")
	require.NoError(t, WriteCSV(path, table))

	got, err := ReadCSV(path, "year", "count")
	require.NoError(t, err)
	if diff := cmp.Diff(table, got); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, err := DecodeCSV(bytes.NewBufferString("year,country\n2022,Kenya\n"), "x", "year", "value")
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "value")
}

func TestCell(t *testing.T) {
	assert.Equal(t, "0.1", Cell(0.1))
	assert.Equal(t, "2022", Cell(2022))
	assert.Equal(t, "", Cell(nil))
	assert.Equal(t, "inflow", Cell(model.IndicatorInflow))
}

func TestFlowsParquetRoundTrip(t *testing.T) {
	records := []model.FlowRecord{
		{FlowKey: model.FlowKey{
			Year: 2021, Country: "Kenya", ISOCode: "KEN", Continent: "Africa", IncomeLevel: "Lower middle income",
			CounterpartArea: "France", CounterpartType: model.CounterpartBilateral, Indicator: "Bilateral Grants",
			IndicatorType: model.IndicatorInflow, Prices: model.PricesCurrent,
		}, Value: 12.5},
		{FlowKey: model.FlowKey{
			Year: 2022, Country: "Kenya", Continent: "Africa", IncomeLevel: "Lower middle income",
			CounterpartArea: "China", CounterpartType: model.CounterpartBilateral, Indicator: "All bilateral",
			IndicatorType: model.IndicatorOutflow, Prices: model.PricesConstant,
		}, Value: -3},
	}
	path := filepath.Join(t.TempDir(), "full_flows_country.parquet")
	require.NoError(t, WriteFlows(path, records))

	got, err := ReadFlows(path)
	require.NoError(t, err)

	// the debtor ISO code is not part of the file contract
	records[0].ISOCode = ""
	if diff := cmp.Diff(records, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectionParquetRejectsWrongSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projections.parquet")
	require.NoError(t, WriteProjections(path, []model.FlowRecord{
		{FlowKey: model.FlowKey{Year: 2023, Country: "Kenya"}, Value: 1},
	}))

	got, err := ReadProjections(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.IndicatorNetFlow, got[0].IndicatorType)

	columns, err := ParquetColumns(path)
	require.NoError(t, err)
	assert.Subset(t, columns, ProjectionColumns)

	_, err = ReadFlows(path)
	require.ErrorIs(t, err, ErrMissingColumn)
}

func TestNetFlowsParquetEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.parquet")
	require.NoError(t, WriteNetFlows(path, nil))
	got, err := ReadNetFlows(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWorkbook(t *testing.T) {
	first := NewTable("chart_1_1", "country", "year", "data")
	first.Append("Kenya", 2022, 1.5)
	second := NewTable("a_sheet_name_longer_than_thirty_one_characters", "year")
	second.Append(2023)

	path := filepath.Join(t.TempDir(), "net_flows_download.xlsx")
	require.NoError(t, WriteWorkbook(path, first, second))

	book, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer book.Close()
	sheets := book.GetSheetList()
	require.Len(t, sheets, 2)
	assert.Equal(t, "chart_1_1", sheets[0])
	assert.Len(t, sheets[1], maxSheetName)

	rows, err := book.GetRows("chart_1_1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"country", "year", "data"}, {"Kenya", "2022", "1.5"}}, rows)
	assert.False(t, isText(t, book, "chart_1_1", "C2"))

	require.Error(t, WriteWorkbook(path))
}

func TestWorkbookKeepsNonFiniteTextAsText(t *testing.T) {
	table := NewTable("chart_2_3", "country", "gdp_share")
	table.Append("Kenya", "NaN")
	table.Append("Ghana", "+Inf")
	table.Append("Zambia", "-2.5")

	path := filepath.Join(t.TempDir(), "net_flows_download.xlsx")
	require.NoError(t, WriteWorkbook(path, table))

	book, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("chart_2_3")
	require.NoError(t, err)
	assert.Equal(t, []string{"Kenya", "NaN"}, rows[1])
	assert.Equal(t, []string{"Ghana", "+Inf"}, rows[2])
	assert.True(t, isText(t, book, "chart_2_3", "B2"))
	assert.True(t, isText(t, book, "chart_2_3", "B3"))
	assert.False(t, isText(t, book, "chart_2_3", "B4"))
}

func isText(t *testing.T, book *excelize.File, sheet, cell string) bool {
	t.Helper()
	kind, err := book.GetCellType(sheet, cell)
	require.NoError(t, err)
	return kind == excelize.CellTypeSharedString || kind == excelize.CellTypeInlineString
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key_numbers.json")
	require.NoError(t, WriteJSON(path, map[string]any{"nnt_count_2022": "3 out of 10 countries"}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nnt_count_2022": "3 out of 10 countries"}`, string(data))
}
