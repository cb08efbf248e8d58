package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/incident-pilot/internal/models"
)

// dayFetcher returns a fixed per-day sample set keyed by the window's
// start timestamp.
type dayFetcher struct {
	perDay map[int64][]float64
}

func (f *dayFetcher) QueryMetrics(ctx context.Context, query string, fromUnix, toUnix int64) ([]models.MetricSample, error) {
	values, ok := f.perDay[fromUnix]
	if !ok {
		return nil, nil
	}
	samples := make([]models.MetricSample, len(values))
	for i, v := range values {
		samples[i] = models.MetricSample{Value: v}
	}
	return samples, nil
}

type nopCache struct{}

func (nopCache) Get(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (nopCache) SetEx(ctx context.Context, key string, ttl time.Duration, value string) error {
	return nil
}

func TestCompute_MeanAndSampleStdDevAcrossDays(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	hourOfDay := 9
	anchor := time.Date(2026, 7, 31, hourOfDay, 0, 0, 0, time.UTC)

	perDay := map[int64][]float64{}
	expectedMeans := []float64{10, 20, 30, 10, 20, 30, 10}
	for d := 1; d <= 7; d++ {
		start := anchor.AddDate(0, 0, -d)
		perDay[start.Unix()] = []float64{expectedMeans[d-1] - 2, expectedMeans[d-1] + 2}
	}

	monitor := models.Monitor{ID: "checkout-api", Queries: models.Queries{Metric: "errors"}}
	engine := New(&dayFetcher{perDay: perDay}, nopCache{}, time.Hour, zerolog.Nop())

	b := engine.compute(context.Background(), monitor, hourOfDay, now)

	assert.Equal(t, 7, b.SampleCount)
	assert.InDelta(t, mean(expectedMeans), b.AverageValue, 0.0001)
	assert.InDelta(t, sampleStdDev(expectedMeans), b.StandardDeviation, 0.0001)
}

func TestCompute_PartialDayFailureIsTolerated(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	hourOfDay := 9
	anchor := time.Date(2026, 7, 31, hourOfDay, 0, 0, 0, time.UTC)

	perDay := map[int64][]float64{}
	// Only populate 3 of the 7 lookback days; the rest return no samples.
	for _, d := range []int{1, 3, 5} {
		start := anchor.AddDate(0, 0, -d)
		perDay[start.Unix()] = []float64{42}
	}

	monitor := models.Monitor{ID: "checkout-api", Queries: models.Queries{Metric: "errors"}}
	engine := New(&dayFetcher{perDay: perDay}, nopCache{}, time.Hour, zerolog.Nop())

	b := engine.compute(context.Background(), monitor, hourOfDay, now)

	assert.Equal(t, 3, b.SampleCount)
	assert.Equal(t, 42.0, b.AverageValue)
	assert.Equal(t, 0.0, b.StandardDeviation)
}

func TestCompute_NoSamplesAnyDayYieldsZeroBaseline(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	monitor := models.Monitor{ID: "checkout-api", Queries: models.Queries{Metric: "errors"}}
	engine := New(&dayFetcher{perDay: map[int64][]float64{}}, nopCache{}, time.Hour, zerolog.Nop())

	b := engine.compute(context.Background(), monitor, 9, now)

	assert.Equal(t, 0, b.SampleCount)
	assert.Equal(t, 0.0, b.AverageValue)
}

// Identical per-day samples must yield an identical computed baseline.
func TestCompute_IsDeterministicGivenIdenticalSamples(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	hourOfDay := 14
	anchor := time.Date(2026, 7, 31, hourOfDay, 0, 0, 0, time.UTC)

	perDay := map[int64][]float64{}
	for d := 1; d <= 7; d++ {
		start := anchor.AddDate(0, 0, -d)
		perDay[start.Unix()] = []float64{5, 15}
	}

	monitor := models.Monitor{ID: "checkout-api", Queries: models.Queries{Metric: "errors"}}
	engine := New(&dayFetcher{perDay: perDay}, nopCache{}, time.Hour, zerolog.Nop())

	first := engine.compute(context.Background(), monitor, hourOfDay, now)
	second := engine.compute(context.Background(), monitor, hourOfDay, now)

	require.Equal(t, first.AverageValue, second.AverageValue)
	assert.Equal(t, first.StandardDeviation, second.StandardDeviation)
	assert.Equal(t, first.SampleCount, second.SampleCount)
}
