// Package weather implements the WeatherAdapter: a single-GET daily
// forecast source that splits the response into one record per
// forecast day, grounded on original_source/sources/weather.py.
//
// This is a deliberate redesign relative to the original, which stored
// the entire forecastDaily payload as a single blob keyed by readTime.
// Per-day records let each day flow through the same days_date pipeline
// as every other namespace instead of requiring bespoke lookup queries.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"daylog/internal/adapter"
	perr "daylog/internal/platform/errors"
	"daylog/internal/platform/logger"
	"daylog/internal/platform/retry"
	"daylog/internal/record"
)

const namespace = "weather"

// Config configures a WeatherAdapter instance
type Config struct {
	Endpoint   string // RapidAPI host, e.g. "weatherapi-com.p.rapidapi.com"
	APIKey     string
	Latitude   float64
	Longitude  float64
	Units      string // "standard" (Celsius source converted to Fahrenheit) or "metric"
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Adapter implements adapter.Adapter for the RapidAPI daily forecast source
type Adapter struct {
	cfg     Config
	baseURL string
	http    *adapter.HTTPClientLifecycle
	clock   func() time.Time
}

// New constructs a WeatherAdapter
func New(cfg Config) *Adapter {
	retryCfg := retry.DefaultConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		retryCfg.BaseDelay = cfg.RetryDelay
	}
	retryCfg.MaxDelay = 60 * time.Second

	return &Adapter{
		cfg:     cfg,
		baseURL: "https://" + cfg.Endpoint,
		http: adapter.NewHTTPClientLifecycle(adapter.HTTPClientConfig{
			BaseURL: "https://" + cfg.Endpoint,
			Headers: map[string]string{
				"x-rapidapi-key":  cfg.APIKey,
				"x-rapidapi-host": cfg.Endpoint,
			},
			Timeout: cfg.Timeout,
			Retry:   retryCfg,
		}),
		clock: time.Now,
	}
}

func (a *Adapter) configured() bool {
	return strings.TrimSpace(a.cfg.APIKey) != "" && strings.TrimSpace(a.cfg.Endpoint) != ""
}

func (a *Adapter) params() url.Values {
	return url.Values{
		"latitude":  {strconv.FormatFloat(a.cfg.Latitude, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(a.cfg.Longitude, 'f', -1, 64)},
		"units":     {a.cfg.Units},
	}
}

// TestConnection implements adapter.Adapter
func (a *Adapter) TestConnection(ctx context.Context) bool {
	if !a.configured() {
		logger.C(ctx).Warn().Msg("rapidapi key not configured for weather, connection test skipped")
		return false
	}
	resp, err := a.get(ctx)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// Close implements adapter.Adapter
func (a *Adapter) Close() error { return a.http.Close() }

type forecastResponse struct {
	ForecastDaily struct {
		ReportedTime string        `json:"reportedTime"`
		ReadTime     string        `json:"readTime"`
		Days         []dayForecast `json:"days"`
	} `json:"forecastDaily"`
}

type dayForecast struct {
	ForecastStart   string   `json:"forecastStart"`
	ConditionCode   string   `json:"conditionCode"`
	TemperatureMax  *float64 `json:"temperatureMax"`
	TemperatureMin  *float64 `json:"temperatureMin"`
	DaytimeForecast struct {
		ConditionCode string `json:"conditionCode"`
	} `json:"daytimeForecast"`
}

// FetchItems implements adapter.Adapter. since/limit are ignored: the
// upstream API always returns the full current forecast window, and the
// redesign yields one record per day it contains
func (a *Adapter) FetchItems(ctx context.Context, since *time.Time, limit int) (adapter.RecordStream, error) {
	if !a.configured() {
		logger.C(ctx).Warn().Msg("rapidapi key not configured for weather, skipping fetch")
		return adapter.NewSliceStream(nil), nil
	}

	resp, err := a.get(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeParse, "weather: decode forecastDaily response")
	}

	now := a.clock()
	out := make([]record.Record, 0, len(payload.ForecastDaily.Days))
	for _, day := range payload.ForecastDaily.Days {
		r, ok := transformDay(day, payload.ForecastDaily.ReadTime, payload.ForecastDaily.ReportedTime, a.cfg.Units, now)
		if !ok {
			logger.C(ctx).Warn().Msg("skipping weather day forecast missing forecastStart")
			continue
		}
		out = append(out, r)
	}
	return adapter.NewSliceStream(out), nil
}

func (a *Adapter) get(ctx context.Context) (*http.Response, error) {
	reqURL := a.baseURL + "?" + a.params().Encode()

	resp, _, err := a.http.Executor().Do(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		a.http.ApplyHeaders(req)
		return a.http.Client().Do(req)
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "weather: request forecastDaily")
	}
	return resp, nil
}

// SourceID returns the stable "weather_YYYY-MM-DD" ID for a forecastStart
// timestamp, exported so callers can precompute expected IDs for dedup
func SourceID(forecastStart time.Time) string {
	return fmt.Sprintf("weather_%s", forecastStart.UTC().Format("2006-01-02"))
}

func celsiusToFahrenheit(c float64) float64 {
	return (c * 9 / 5) + 32
}

func transformDay(day dayForecast, readTime, reportedTime, units string, now time.Time) (record.Record, bool) {
	start, err := time.Parse(time.RFC3339, day.ForecastStart)
	if err != nil {
		return record.Record{}, false
	}

	tempMax, tempMin := day.TemperatureMax, day.TemperatureMin
	if units == "standard" {
		tempMax = convertPtr(tempMax)
		tempMin = convertPtr(tempMin)
	}

	content := fmt.Sprintf("%s, high %s, low %s", day.ConditionCode, formatPtr(tempMax), formatPtr(tempMin))

	metadata := map[string]any{
		"forecast_start":         day.ForecastStart,
		"condition_code":         day.ConditionCode,
		"temperature_max":        tempMax,
		"temperature_min":        tempMin,
		"daytime_condition_code": day.DaytimeForecast.ConditionCode,
		"units":                  units,
		"read_time":              readTime,
		"reported_time":          reportedTime,
		"source_type":            "weather_api",
		"raw":                    day,
	}

	r := record.New(namespace, SourceID(start), content, metadata, start)
	r.UpdatedAt = now
	return r, true
}

func convertPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := celsiusToFahrenheit(*v)
	return &f
}

func formatPtr(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
