package store

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/incident-pilot/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetRecentIncidents(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	now := time.Now().UTC()
	inc := models.Incident{
		ID:                "inc-1",
		MonitorID:         "mon-1",
		Severity:          models.SeverityCritical,
		Status:            models.IncidentActive,
		InvestigationTier: models.TierT1,
		DetectedAt:        now,
		CreatedAt:         now,
		UpdatedAt:         now,
		Tags:              []string{"payments"},
	}
	require.NoError(t, s.CreateIncident(ctx, inc))

	recent, err := s.GetRecentIncidents(ctx, "mon-1", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "inc-1", recent[0].ID)
	assert.Equal(t, []string{"payments"}, recent[0].Tags)

	none, err := s.GetRecentIncidents(ctx, "mon-2", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetActiveIncidentCount(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	require.NoError(t, s.CreateIncident(ctx, models.Incident{
		ID: "a", MonitorID: "m", Status: models.IncidentActive, InvestigationTier: models.TierT1,
		DetectedAt: now, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.CreateIncident(ctx, models.Incident{
		ID: "b", MonitorID: "m", Status: models.IncidentResolved, InvestigationTier: models.TierT1,
		DetectedAt: now, CreatedAt: now, UpdatedAt: now,
	}))

	count, err := s.GetActiveIncidentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStoreLLMUsage(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	err := s.StoreLLMUsage(ctx, LLMUsageRecord{
		IncidentID: "inc-1",
		ModelUsed:  "claude-sonnet-4-5",
		Input:      100,
		Output:     50,
		Total:      150,
		RecordedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}
