package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float64Ptr(f float64) *float64 { return &f }

func cfg(endpoint string) Config {
	return Config{
		Endpoint:  endpoint,
		APIKey:    "key",
		Latitude:  40.7,
		Longitude: -74.0,
		Units:     "standard",
	}
}

func TestFetchItemsSplitsOneRecordPerDay(t *testing.T) {
	resp := forecastResponse{}
	resp.ForecastDaily.ReadTime = "2025-01-15T06:00:00Z"
	resp.ForecastDaily.ReportedTime = "2025-01-15T05:00:00Z"
	resp.ForecastDaily.Days = []dayForecast{
		{ForecastStart: "2025-01-15T00:00:00Z", ConditionCode: "Clear", TemperatureMax: float64Ptr(10), TemperatureMin: float64Ptr(0)},
		{ForecastStart: "2025-01-16T00:00:00Z", ConditionCode: "Cloudy", TemperatureMax: float64Ptr(5), TemperatureMin: float64Ptr(-5)},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := New(cfg(srv.Listener.Addr().String()))
	a.baseURL = srv.URL

	stream, err := a.FetchItems(context.Background(), nil, 0)
	require.NoError(t, err)

	var got []string
	var maxTemps []*float64
	for {
		r, ok, err := stream.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, r.ID)
		maxTemps = append(maxTemps, r.Metadata["temperature_max"].(*float64))
	}

	require.Len(t, got, 2)
	assert.Equal(t, "weather:weather_2025-01-15", got[0])
	assert.Equal(t, "weather:weather_2025-01-16", got[1])

	// units=standard converts Celsius source to Fahrenheit
	assert.InDelta(t, 50.0, *maxTemps[0], 0.01)
	assert.InDelta(t, 41.0, *maxTemps[1], 0.01)
}

func TestFetchItemsSkipsDayMissingForecastStart(t *testing.T) {
	resp := forecastResponse{}
	resp.ForecastDaily.Days = []dayForecast{
		{ForecastStart: "", ConditionCode: "Clear"},
		{ForecastStart: "2025-01-16T00:00:00Z", ConditionCode: "Cloudy"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := New(cfg(srv.Listener.Addr().String()))
	a.baseURL = srv.URL

	stream, err := a.FetchItems(context.Background(), nil, 0)
	require.NoError(t, err)

	var got []string
	for {
		r, ok, err := stream.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, r.ID)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "weather:weather_2025-01-16", got[0])
}

func TestFetchItemsNoConversionForMetricUnits(t *testing.T) {
	resp := forecastResponse{}
	resp.ForecastDaily.Days = []dayForecast{
		{ForecastStart: "2025-01-15T00:00:00Z", ConditionCode: "Clear", TemperatureMax: float64Ptr(10)},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := cfg(srv.Listener.Addr().String())
	c.Units = "metric"
	a := New(c)
	a.baseURL = srv.URL

	stream, err := a.FetchItems(context.Background(), nil, 0)
	require.NoError(t, err)

	r, ok, err := stream.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 10.0, *r.Metadata["temperature_max"].(*float64), 0.01)
}

func TestFetchItemsSkippedWhenUnconfigured(t *testing.T) {
	a := New(Config{})
	stream, err := a.FetchItems(context.Background(), nil, 0)
	require.NoError(t, err)
	_, ok, err := stream.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSourceIDFormatsDateOnly(t *testing.T) {
	start, err := time.Parse(time.RFC3339, "2025-01-15T09:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "weather_2025-01-15", SourceID(start))
}
