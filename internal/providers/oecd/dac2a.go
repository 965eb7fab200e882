package oecd

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"netflows/internal/model"
	"netflows/internal/providers"
)

const (
	defaultAidType     = "240"
	defaultPart        = "1"
	valueMultiplier    = 1e6
	aggregateDonorFrom = 20000
	privateDonorFrom   = 1600
	privateDonorTo     = 1699
	multilateralFrom   = 900
)

var ErrMissingColumn = errors.New("oecd: missing column")

type Config struct {
	Path    string
	AidType string
	Part    string
}

// DAC2a reads the OECD DAC Table 2a bulk download.
type DAC2a struct {
	config Config
}

func NewDAC2a(cfg Config) (*DAC2a, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("oecd: dac2a path is required")
	}
	if cfg.AidType == "" {
		cfg.AidType = defaultAidType
	}
	if cfg.Part == "" {
		cfg.Part = defaultPart
	}
	return &DAC2a{config: cfg}, nil
}

func (d *DAC2a) Name() string {
	return "oecd"
}

func (d *DAC2a) FetchGrants(ctx context.Context, from, to int) ([]model.GrantObservation, error) {
	f, err := os.Open(d.config.Path)
	if err != nil {
		return nil, fmt.Errorf("oecd: open %s: %w", d.config.Path, err)
	}
	defer f.Close()
	return d.Read(ctx, f, from, to)
}

// Read parses a DAC2a CSV stream. Only official donors, the configured aid
// type and part, and years within [from, to] are returned. Values are
// converted from USD millions to USD.
func (d *DAC2a) Read(ctx context.Context, r io.Reader, from, to int) ([]model.GrantObservation, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("oecd: read header: %w", err)
	}
	cols, err := columnIndex(header, "RECIPIENT", "Recipient", "DONOR", "Donor", "AIDTYPE", "DATATYPE", "Year", "Value")
	if err != nil {
		return nil, err
	}
	partCol, hasPart := lookup(header, "PART")

	var out []model.GrantObservation
	for line := 2; ; line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("oecd: line %d: %w", line, err)
		}
		field := func(name string) string {
			i := cols[name]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		if field("AIDTYPE") != d.config.AidType {
			continue
		}
		if hasPart && partCol < len(record) && strings.TrimSpace(record[partCol]) != d.config.Part {
			continue
		}
		if !OfficialDonor(field("DONOR")) {
			continue
		}
		prices, ok := pricesFor(field("DATATYPE"))
		if !ok {
			continue
		}
		year, err := strconv.Atoi(field("Year"))
		if err != nil || year < from || year > to {
			continue
		}
		raw := field("Value")
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("oecd: line %d: bad value %q", line, raw)
		}
		out = append(out, model.GrantObservation{
			Year:          year,
			DonorCode:     field("DONOR"),
			Donor:         field("Donor"),
			RecipientCode: field("RECIPIENT"),
			Recipient:     field("Recipient"),
			Prices:        prices,
			Value:         value * valueMultiplier,
		})
	}
	return out, nil
}

// OfficialDonor reports whether a DAC donor code is an official bilateral or
// multilateral donor. Codes from 20000 up are donor totals and the 1600
// block holds private philanthropy.
func OfficialDonor(code string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return false
	}
	if n >= aggregateDonorFrom {
		return false
	}
	return n < privateDonorFrom || n > privateDonorTo
}

// BilateralDonor reports whether a donor code belongs to a government
// donor. Multilateral agencies are numbered from 900.
func BilateralDonor(code string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return false
	}
	return n < multilateralFrom
}

func pricesFor(datatype string) (model.Prices, bool) {
	switch strings.ToUpper(datatype) {
	case "A":
		return model.PricesCurrent, true
	case "D":
		return model.PricesConstant, true
	default:
		return "", false
	}
}

func columnIndex(header []string, names ...string) (map[string]int, error) {
	out := make(map[string]int, len(names))
	var missing []string
	for _, name := range names {
		i, ok := lookup(header, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		out[name] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return out, nil
}

// lookup prefers an exact match so "DONOR" and "Donor" stay distinct, then
// falls back to a case-insensitive one.
func lookup(header []string, name string) (int, bool) {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i, true
		}
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, true
		}
	}
	return 0, false
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	return br
}

var _ providers.GrantsSource = (*DAC2a)(nil)
