package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCacheCounters_Increment(t *testing.T) {
	before := counterValue(t, CacheHits)
	CacheHits.Inc()
	assert.Equal(t, before+1, counterValue(t, CacheHits))

	beforeMiss := counterValue(t, CacheMisses)
	CacheMisses.Inc()
	assert.Equal(t, beforeMiss+1, counterValue(t, CacheMisses))
}

func TestTierUsage_LabelsPerTier(t *testing.T) {
	before := counterValue(t, TierUsage.WithLabelValues("T3"))
	TierUsage.WithLabelValues("T3").Inc()
	assert.Equal(t, before+1, counterValue(t, TierUsage.WithLabelValues("T3")))
}

func TestBreakerStateGauge_Set(t *testing.T) {
	BreakerState.WithLabelValues("llm-analysis").Set(1)
	var m dto.Metric
	require.NoError(t, BreakerState.WithLabelValues("llm-analysis").Write(&m))
	assert.Equal(t, 1.0, m.GetGauge().GetValue())
}
