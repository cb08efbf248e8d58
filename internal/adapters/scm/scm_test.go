package scm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func TestGetCommits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]commitWire{
			{ID: "abc123", Message: "fix bug", AuthorName: "dev", CommittedDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		})
	}))
	defer srv.Close()

	a := New(srv.URL, "tok", 5*time.Second, nil, time.Hour, zerolog.Nop())
	commits, err := a.GetCommits(t.Context(), CommitsParams{Repository: "org/repo"})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "abc123", commits[0].SHA)
	assert.Equal(t, "org/repo", commits[0].Repository)
}

func TestGetPipelineForCommit_BestEffortReturnsNilOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := New(srv.URL, "tok", 5*time.Second, nil, time.Hour, zerolog.Nop())
	pipeline := a.GetPipelineForCommit(t.Context(), "org/repo", "abc123")
	assert.Nil(t, pipeline)
}

func TestGetCommits_CachesProjectMetadata(t *testing.T) {
	var metaLookups int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/projects/org%2Frepo" || r.URL.Path == "/projects/org/repo":
			metaLookups++
			_ = json.NewEncoder(w).Encode(projectMeta{ID: 7, DefaultBranch: "main"})
		case strings.HasSuffix(r.URL.Path, "/repository/commits"):
			assert.Contains(t, r.URL.Path, "/projects/7/")
			_ = json.NewEncoder(w).Encode([]commitWire{{ID: "abc123"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := &mapCache{data: map[string]string{}}
	a := New(srv.URL, "tok", 5*time.Second, c, time.Hour, zerolog.Nop())

	for i := 0; i < 2; i++ {
		commits, err := a.GetCommits(t.Context(), CommitsParams{Repository: "org/repo"})
		require.NoError(t, err)
		require.Len(t, commits, 1)
	}
	assert.Equal(t, 1, metaLookups, "second call must resolve the project from the cache")
}

func TestCountDiffLines(t *testing.T) {
	diff := "--- a/f.go\n+++ b/f.go\n@@ -1,2 +1,3 @@\n-old line\n+new line\n+another new line\n"
	additions, deletions := countDiffLines(diff)
	assert.Equal(t, 2, additions)
	assert.Equal(t, 1, deletions)
}
