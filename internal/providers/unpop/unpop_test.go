package unpop

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netflows/internal/providers"
)

func TestSplitBatches(t *testing.T) {
	got := SplitBatches([]int{1, 2, 3, 4, 5, 6, 7}, 3)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5}, {6, 7}}, got)

	got = SplitBatches([]int{1}, 3)
	assert.Equal(t, [][]int{{1}, {}, {}}, got)
}

func TestExtractJSON(t *testing.T) {
	raw, err := ExtractJSON([]byte(` {"data":[]} `))
	require.NoError(t, err)
	assert.Equal(t, `{"data":[]}`, string(raw))

	html := `<html><head></head><body><pre>{"data":[{"id":4}],"nextPage":null}</pre></body></html>`
	raw, err = ExtractJSON([]byte(html))
	require.NoError(t, err)
	assert.Equal(t, `{"data":[{"id":4}],"nextPage":null}`, string(raw))

	_, err = ExtractJSON([]byte(`<html><body>maintenance</body></html>`))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestListLocationsFollowsNextPage(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageNumber") == "2" {
			_, _ = w.Write([]byte(`<html><body><pre>{"data":[{"id":404,"name":"Kenya","iso3":"KEN"}],"nextPage":null}</pre></body></html>`))
			return
		}
		assert.Equal(t, "/locations/", r.URL.Path)
		fmt.Fprintf(w, `{"data":[{"id":4,"name":"Afghanistan","iso3":"AFG"}],"nextPage":"%s/locations/?pageNumber=2"}`, srv.URL)
	}))
	defer srv.Close()

	p, err := NewWithConfig(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	locations, err := p.ListLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, 404, locations[1].ID)
	assert.Equal(t, "KEN", locations[1].ISO3)
}

func TestFetchPopulationBatchesLocations(t *testing.T) {
	var calls int32
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		seen = append(seen, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2023", q.Get("startYear"))
		assert.Equal(t, "18", q.Get("endAge"))
		assert.Equal(t, "100", q.Get("pageSize"))
		_, _ = w.Write([]byte(`{"data":[{"locationId":404,"location":"Kenya","iso3":"KEN","indicatorId":49,"indicator":"Total population","variant":"Median","variantLabel":"Median","timeLabel":"2023","sex":"Both sexes","ageStart":0,"ageEnd":4,"value":1234.5}],"nextPage":null}`))
	}))
	defer srv.Close()

	p, err := NewWithConfig(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	rows, err := p.FetchPopulation(context.Background(), providers.PopulationQuery{
		Indicator: 49,
		Locations: []int{4, 8, 12, 404},
		StartYear: 2023,
		EndYear:   2023,
		EndAge:    18,
		Sexes:     3,
		Variants:  4,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Len(t, rows, 3)
	assert.Equal(t, "/data/indicators/49/locations/4,8", seen[0])
	assert.True(t, strings.HasSuffix(seen[2], "/404"))
	assert.Equal(t, 1234.5, rows[0].Value)
	assert.Equal(t, 4, rows[0].AgeEnd)
}

func TestFetchPopulationRequiresLocations(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)
	_, err = p.FetchPopulation(context.Background(), providers.PopulationQuery{Indicator: 49})
	require.Error(t, err)
}
