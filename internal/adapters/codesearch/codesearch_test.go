package codesearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/incident-pilot/internal/models"
)

func TestPatternFromErrorMessage(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    string
	}{
		{"typed error", "NullPointerError: failed to load user", "NullPointerError"},
		{"at class method", "at PaymentService.charge (payments.go:42)", "PaymentService"},
		{"function keyword", "panic in function processOrder", "processOrder"},
		{"fallback long word", "something broke spectacularly", "something"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := PatternFromErrorMessage(tc.message)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSearch_FiltersByFilePatterns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{
			TotalMatchCount: 2,
			Matches: []models.CodeMatch{
				{FilePath: "internal/payments/charge.go"},
				{FilePath: "internal/payments/charge_test.go"},
			},
		})
	}))
	defer srv.Close()

	a := New(srv.URL, "", 5*time.Second, nil, time.Minute, zerolog.Nop())
	result, err := a.Search(t.Context(), Params{Pattern: "charge", FilePatterns: []string{"internal/payments/charge.go"}})
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "internal/payments/charge.go", result.Matches[0].FilePath)
}

type mapCache struct {
	data map[string]string
}

func (m *mapCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) SetEx(ctx context.Context, key string, ttl time.Duration, value string) error {
	m.data[key] = value
	return nil
}

func TestSearch_ServesRepeatQueriesFromCache(t *testing.T) {
	var backendCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendCalls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{TotalMatchCount: 1, Matches: []models.CodeMatch{{FilePath: "a.go"}}})
	}))
	defer srv.Close()

	c := &mapCache{data: map[string]string{}}
	a := New(srv.URL, "", 5*time.Second, c, time.Minute, zerolog.Nop())

	for i := 0; i < 2; i++ {
		result, err := a.Search(t.Context(), Params{Pattern: "NullPointerError", Repositories: []string{"org/repo"}})
		require.NoError(t, err)
		assert.Equal(t, 1, result.TotalMatchCount)
	}
	assert.Equal(t, 1, backendCalls, "second identical search must come from the cache")
}
