// Package baseline implements the baseline engine: computing and
// caching a per-monitor, per-hour-of-day baseline from historical
// metric samples.
package baseline

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/cache"
	"github.com/sentinel-ops/incident-pilot/internal/models"
)

// SampleFetcher fetches a window of metric samples for a monitor. The
// baseline engine uses it to pull one hour of history per day,
// anchored at hourOfDay, for each of the last 7 days.
type SampleFetcher interface {
	QueryMetrics(ctx context.Context, query string, fromUnix, toUnix int64) ([]models.MetricSample, error)
}

const lookbackDays = 7

// Engine computes and caches baselines.
type Engine struct {
	fetcher SampleFetcher
	cache   cache.Cache
	ttl     time.Duration
	logger  zerolog.Logger
}

// New creates a baseline engine backed by the given sample fetcher and cache.
func New(fetcher SampleFetcher, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Engine {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Engine{fetcher: fetcher, cache: c, ttl: ttl, logger: logger.With().Str("component", "baseline").Logger()}
}

// GetBaseline looks up baseline:{monitorId}:{hour} in the cache; on a
// miss it computes the baseline and stores it back with the configured
// TTL.
func (e *Engine) GetBaseline(ctx context.Context, monitor models.Monitor, hourOfDay int, now time.Time) (models.Baseline, error) {
	key := cache.BaselineKey(monitor.ID, hourOfDay)

	if raw, found, err := e.cache.Get(ctx, key); err == nil && found {
		var b models.Baseline
		if jsonErr := json.Unmarshal([]byte(raw), &b); jsonErr == nil {
			return b, nil
		}
	}

	baseline := e.compute(ctx, monitor, hourOfDay, now)

	if encoded, err := json.Marshal(baseline); err == nil {
		_ = e.cache.SetEx(ctx, key, e.ttl, string(encoded))
	}
	return baseline, nil
}

// compute fetches, for d in [1..7], a 1h window anchored on hourOfDay
// d days in the past; the per-day
// representative is the mean of that hour's samples; the baseline's
// AverageValue is the mean of per-day representatives and
// StandardDeviation is the sample stddev of the same set.
// Partial-day failure is tolerated -- the loop continues and counts
// what it got. Time handling is UTC throughout.
func (e *Engine) compute(ctx context.Context, monitor models.Monitor, hourOfDay int, now time.Time) models.Baseline {
	nowUTC := now.UTC()
	anchor := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), hourOfDay, 0, 0, 0, time.UTC)

	var dailyMeans []float64
	for d := 1; d <= lookbackDays; d++ {
		windowStart := anchor.AddDate(0, 0, -d)
		windowEnd := windowStart.Add(time.Hour)

		samples, err := e.fetcher.QueryMetrics(ctx, monitor.Queries.Metric, windowStart.Unix(), windowEnd.Unix())
		if err != nil {
			e.logger.Warn().Err(err).Str("monitor", monitor.ID).Int("day", d).Msg("baseline window fetch failed, continuing")
			continue
		}
		if len(samples) == 0 {
			continue
		}
		dailyMeans = append(dailyMeans, mean(samplesToValues(samples)))
	}

	if len(dailyMeans) == 0 {
		e.logger.Warn().Str("monitor", monitor.ID).Int("hour", hourOfDay).Msg("no baseline samples across lookback window")
		return models.Baseline{
			MonitorID:   monitor.ID,
			HourOfDay:   hourOfDay,
			SampleCount: 0,
			ComputedAt:  now,
		}
	}

	return models.Baseline{
		MonitorID:         monitor.ID,
		HourOfDay:         hourOfDay,
		AverageValue:      mean(dailyMeans),
		StandardDeviation: sampleStdDev(dailyMeans),
		SampleCount:       len(dailyMeans),
		ComputedAt:        now,
	}
}

func samplesToValues(samples []models.MetricSample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return values
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev computes the sample standard deviation (n-1 denominator).
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		diff := v - m
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
