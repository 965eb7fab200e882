package oecd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netflows/internal/model"
)

const sample = "\xEF\xBB\xBF" + `"RECIPIENT","Recipient","DONOR","Donor","PART","Part","AIDTYPE","Aid type","DATATYPE","Amount type","TIME","Year","Value","Flags"
"248","Kenya","301","Canada","1","1 : Developing Countries","240","Grants, Total","A","Current Prices (USD millions)","2021","2021","12.5",""
"248","Kenya","301","Canada","1","1 : Developing Countries","240","Grants, Total","D","Constant Prices (2021 USD millions)","2021","2021","12.0",""
"248","Kenya","20001","DAC Countries, Total","1","1 : Developing Countries","240","Grants, Total","A","Current Prices","2021","2021","99",""
"248","Kenya","1601","Bill & Melinda Gates Foundation","1","1 : Developing Countries","240","Grants, Total","A","Current Prices","2021","2021","3",""
"248","Kenya","905","International Development Association [IDA]","1","1 : Developing Countries","240","Grants, Total","A","Current Prices","2021","2021","40",""
"248","Kenya","301","Canada","1","1 : Developing Countries","206","Total net","A","Current Prices","2021","2021","30",""
"248","Kenya","301","Canada","1","1 : Developing Countries","240","Grants, Total","A","Current Prices","2009","2009","1",""
"248","Kenya","301","Canada","2","2 : Part II","240","Grants, Total","A","Current Prices","2021","2021","1",""
"248","Kenya","302","United States","1","1 : Developing Countries","240","Grants, Total","A","Current Prices","2021","2021","",""
`

func TestReadFiltersAndScales(t *testing.T) {
	d, err := NewDAC2a(Config{Path: "unused.csv"})
	require.NoError(t, err)

	rows, err := d.Read(context.Background(), strings.NewReader(sample), 2010, 2022)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, model.GrantObservation{
		Year: 2021, DonorCode: "301", Donor: "Canada", RecipientCode: "248", Recipient: "Kenya",
		Prices: model.PricesCurrent, Value: 12.5e6,
	}, rows[0])
	assert.Equal(t, model.PricesConstant, rows[1].Prices)
	assert.Equal(t, "International Development Association [IDA]", rows[2].Donor)
	assert.InDelta(t, 40e6, rows[2].Value, 1e-6)
}

func TestReadMissingColumns(t *testing.T) {
	d, err := NewDAC2a(Config{Path: "unused.csv"})
	require.NoError(t, err)
	_, err = d.Read(context.Background(), strings.NewReader("RECIPIENT,DONOR\n1,2\n"), 2010, 2022)
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestFetchGrantsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Table2a_Data.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	d, err := NewDAC2a(Config{Path: path})
	require.NoError(t, err)
	rows, err := d.FetchGrants(context.Background(), 2021, 2021)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, err = NewDAC2a(Config{})
	require.Error(t, err)
}

func TestOfficialDonor(t *testing.T) {
	assert.True(t, OfficialDonor("301"))
	assert.True(t, OfficialDonor("905"))
	assert.False(t, OfficialDonor("1601"))
	assert.False(t, OfficialDonor("20001"))
	assert.False(t, OfficialDonor("n/a"))
}

func TestBilateralDonor(t *testing.T) {
	assert.True(t, BilateralDonor("301"))
	assert.False(t, BilateralDonor("905"))
	assert.False(t, BilateralDonor(""))
}
