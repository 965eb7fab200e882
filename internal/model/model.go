package model

type IndicatorType string

const (
	IndicatorInflow  IndicatorType = "inflow"
	IndicatorOutflow IndicatorType = "outflow"
	IndicatorNetFlow IndicatorType = "net_flow"
)

type Prices string

const (
	PricesCurrent  Prices = "current"
	PricesConstant Prices = "constant"
)

const (
	CounterpartBilateral    = "Bilateral"
	CounterpartMultilateral = "Multilateral"
	CounterpartPrivate      = "Private"
	CounterpartChina        = "China"
)

// FlowKey holds every dimension of a flow observation. It is comparable, so
// grouping works by zeroing the dropped dimensions and using the key in a map.
type FlowKey struct {
	Year               int
	Country            string
	ISOCode            string
	Continent          string
	IncomeLevel        string
	CounterpartArea    string
	CounterpartISOCode string
	CounterpartType    string
	Indicator          string
	IndicatorType      IndicatorType
	Prices             Prices
}

type FlowRecord struct {
	FlowKey
	Value float64
}

// Dim names one FlowKey column.
type Dim int

const (
	DimYear Dim = iota
	DimCountry
	DimISOCode
	DimContinent
	DimIncomeLevel
	DimCounterpartArea
	DimCounterpartISOCode
	DimCounterpartType
	DimIndicator
	DimIndicatorType
	DimPrices
)

var dimNames = [...]string{
	"year",
	"country",
	"iso_code",
	"continent",
	"income_level",
	"counterpart_area",
	"counterpart_iso_code",
	"counterpart_type",
	"indicator",
	"indicator_type",
	"prices",
}

func (d Dim) String() string {
	if d < 0 || int(d) >= len(dimNames) {
		return "unknown"
	}
	return dimNames[d]
}

// Without returns a copy of the key with the given dimensions cleared.
func (k FlowKey) Without(dims ...Dim) FlowKey {
	for _, dim := range dims {
		switch dim {
		case DimYear:
			k.Year = 0
		case DimCountry:
			k.Country = ""
		case DimISOCode:
			k.ISOCode = ""
		case DimContinent:
			k.Continent = ""
		case DimIncomeLevel:
			k.IncomeLevel = ""
		case DimCounterpartArea:
			k.CounterpartArea = ""
		case DimCounterpartISOCode:
			k.CounterpartISOCode = ""
		case DimCounterpartType:
			k.CounterpartType = ""
		case DimIndicator:
			k.Indicator = ""
		case DimIndicatorType:
			k.IndicatorType = ""
		case DimPrices:
			k.Prices = ""
		}
	}
	return k
}

// Only returns a copy of the key keeping just the given dimensions.
func (k FlowKey) Only(dims ...Dim) FlowKey {
	keep := make(map[Dim]bool, len(dims))
	for _, dim := range dims {
		keep[dim] = true
	}
	drop := make([]Dim, 0, len(dimNames))
	for i := range dimNames {
		if !keep[Dim(i)] {
			drop = append(drop, Dim(i))
		}
	}
	return k.Without(drop...)
}

// Get returns the string form of one dimension.
func (k FlowKey) Get(dim Dim) string {
	switch dim {
	case DimCountry:
		return k.Country
	case DimISOCode:
		return k.ISOCode
	case DimContinent:
		return k.Continent
	case DimIncomeLevel:
		return k.IncomeLevel
	case DimCounterpartArea:
		return k.CounterpartArea
	case DimCounterpartISOCode:
		return k.CounterpartISOCode
	case DimCounterpartType:
		return k.CounterpartType
	case DimIndicator:
		return k.Indicator
	case DimIndicatorType:
		return string(k.IndicatorType)
	case DimPrices:
		return string(k.Prices)
	default:
		return ""
	}
}

// SeriesValue is one point of a country-level reference series (GDP, deflator).
type SeriesValue struct {
	Series  string
	ISOCode string
	Year    int
	Value   float64
}

// DebtObservation is one raw row of the debt statistics source before any
// cleaning: names are still the provider's labels.
type DebtObservation struct {
	Series          string
	CountryCode     string
	Country         string
	CounterpartCode string
	CounterpartArea string
	Year            int
	Value           float64
}

// GrantObservation is one raw DAC2a row.
type GrantObservation struct {
	Year          int
	DonorCode     string
	Donor         string
	RecipientCode string
	Recipient     string
	Prices        Prices
	Value         float64
}

type PopulationRecord struct {
	LocationID   int
	Location     string
	ISO3         string
	IndicatorID  int
	Indicator    string
	Variant      string
	VariantLabel string
	TimeLabel    string
	Sex          string
	AgeStart     int
	AgeEnd       int
	Value        float64
}

type Location struct {
	ID   int
	Name string
	ISO3 string
}
