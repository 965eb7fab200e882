package artifact

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrMissingColumn = errors.New("artifact: missing column")

// Table is a rectangular chart dataset with named columns.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

func NewTable(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: columns}
}

// Append adds one row. Values are formatted with Cell.
func (t *Table) Append(values ...any) {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = Cell(v)
	}
	t.Rows = append(t.Rows, row)
}

// Column returns the index of a named column, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell formats a value the way every text artifact stores it. Floats use the
// shortest representation that round-trips.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		if x == 0 {
			// no negative zero in artifacts
			x = 0
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("artifact: create dir: %w", err)
		}
	}
	return nil
}

func WriteCSV(path string, t *Table) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("artifact: create csv: %w", err)
	}
	defer file.Close()

	if err := EncodeCSV(file, t); err != nil {
		return err
	}
	return file.Close()
}

func EncodeCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("artifact: write csv header: %w", err)
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("artifact: write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("artifact: flush csv: %w", err)
	}
	return nil
}

// ReadCSV loads a CSV artifact and checks that the required columns are
// present in its header.
func ReadCSV(path string, required ...string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: open csv: %w", err)
	}
	defer file.Close()
	return DecodeCSV(file, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), required...)
}

func DecodeCSV(r io.Reader, name string, required ...string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("artifact: read csv %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("artifact: %s: empty file", name)
	}
	t := &Table{Name: name, Columns: records[0], Rows: records[1:]}
	if err := requireColumns(name, t.Columns, required); err != nil {
		return nil, err
	}
	return t, nil
}

func requireColumns(name string, have, required []string) error {
	present := make(map[string]bool, len(have))
	for _, c := range have {
		present[c] = true
	}
	var missing []string
	for _, c := range required {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s lacks %s", ErrMissingColumn, name, strings.Join(missing, ", "))
	}
	return nil
}

func WriteJSON(path string, value any) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("artifact: create json: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("artifact: encode json: %w", err)
	}
	return file.Close()
}
