package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `{
  "monitors": [
    {
      "id": "checkout-api",
      "name": "Checkout API",
      "description": "primary checkout path",
      "enabled": true,
      "queries": {"metric": "checkout.latency"},
      "checkIntervalSeconds": 30,
      "threshold": {"type": "absolute", "warning": 50, "critical": 100},
      "timeWindow": "5m",
      "gitlabRepositories": ["org/checkout"],
      "enableDatabaseInvestigation": false,
      "teamsNotification": {"channelWebhookUrl": "https://example.invalid/hook"},
      "severity": "high"
    },
    {
      "id": "disabled-monitor",
      "name": "Disabled",
      "description": "not currently enabled",
      "enabled": false,
      "queries": {"metric": "disabled.metric"},
      "checkIntervalSeconds": 60,
      "threshold": {"type": "percentage", "warning": 20, "critical": 50},
      "timeWindow": "1h",
      "teamsNotification": {"channelWebhookUrl": "https://example.invalid/hook2"},
      "severity": "low"
    }
  ]
}`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "monitors.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRegistry_LoadListEnabled(t *testing.T) {
	path := writeTemp(t, validDoc)
	r := New(path, zerolog.Nop())
	require.NoError(t, r.Load())

	assert.Len(t, r.List(), 2)
	enabled := r.ListEnabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "checkout-api", enabled[0].ID)

	m, ok := r.Get("disabled-monitor")
	require.True(t, ok)
	assert.False(t, m.Enabled)
}

func TestRegistry_LoadFailsAtomicallyOnInvalidCriticalWarning(t *testing.T) {
	bad := `{"monitors": [{
		"id": "x", "name": "x", "enabled": true,
		"queries": {"metric": "m"}, "checkIntervalSeconds": 30,
		"threshold": {"type": "absolute", "warning": 100, "critical": 50},
		"timeWindow": "5m",
		"teamsNotification": {"channelWebhookUrl": "https://example.invalid/h"},
		"severity": "high"
	}]}`
	path := writeTemp(t, bad)
	r := New(path, zerolog.Nop())
	require.Error(t, r.Load())
	assert.Empty(t, r.List(), "previous (empty) snapshot must remain after failed load")
}

func TestRegistry_ReloadPreservesPriorSnapshotOnFailure(t *testing.T) {
	path := writeTemp(t, validDoc)
	r := New(path, zerolog.Nop())
	require.NoError(t, r.Load())
	require.Len(t, r.List(), 2)

	require.NoError(t, os.WriteFile(path, []byte(`{"monitors": [{"id": "broken"}]}`), 0o600))
	require.Error(t, r.Reload())
	assert.Len(t, r.List(), 2, "failed reload must not mutate the live snapshot")
}

func TestRegistry_RepeatedReloadSameContentIsIdempotent(t *testing.T) {
	path := writeTemp(t, validDoc)
	r := New(path, zerolog.Nop())
	require.NoError(t, r.Load())
	first := r.List()

	require.NoError(t, r.Reload())
	second := r.List()

	assert.Equal(t, first, second)
}

func TestRegistry_RejectsBadTimeWindow(t *testing.T) {
	bad := `{"monitors": [{
		"id": "x", "name": "x", "enabled": true,
		"queries": {"metric": "m"}, "checkIntervalSeconds": 30,
		"threshold": {"type": "absolute", "warning": 10, "critical": 50},
		"timeWindow": "5 minutes",
		"teamsNotification": {"channelWebhookUrl": "https://example.invalid/h"},
		"severity": "high"
	}]}`
	path := writeTemp(t, bad)
	r := New(path, zerolog.Nop())
	require.Error(t, r.Load())
}
