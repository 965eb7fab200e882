package deflate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netflows/internal/model"
)

func TestConstantRebasesOnBaseYear(t *testing.T) {
	idx, err := NewIndex([]model.SeriesValue{
		{ISOCode: "KEN", Year: 2021, Value: 80},
		{ISOCode: "KEN", Year: 2022, Value: 100},
		{ISOCode: "GHA", Year: 2021, Value: 50},
	}, 2022)
	require.NoError(t, err)

	out, dropped := idx.Constant([]model.FlowRecord{
		{FlowKey: model.FlowKey{ISOCode: "KEN", Year: 2021, Prices: model.PricesCurrent}, Value: 40},
		{FlowKey: model.FlowKey{ISOCode: "KEN", Year: 2022, Prices: model.PricesCurrent}, Value: 10},
		{FlowKey: model.FlowKey{ISOCode: "GHA", Year: 2021, Prices: model.PricesCurrent}, Value: 1},
		{FlowKey: model.FlowKey{ISOCode: "KEN", Year: 2021, Prices: model.PricesConstant}, Value: 7},
	})
	assert.Equal(t, 1, dropped)
	require.Len(t, out, 3)
	assert.Equal(t, 50.0, out[0].Value)
	assert.Equal(t, model.PricesConstant, out[0].Prices)
	assert.Equal(t, 10.0, out[1].Value)
	assert.Equal(t, 7.0, out[2].Value)
}

func TestNewIndexRequiresBaseYear(t *testing.T) {
	_, err := NewIndex([]model.SeriesValue{{ISOCode: "KEN", Year: 2021, Value: 80}}, 2022)
	assert.True(t, errors.Is(err, ErrNoBaseYear))
}
