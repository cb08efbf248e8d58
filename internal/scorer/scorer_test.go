package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/incident-pilot/internal/models"
)

// Two commits, both 30 minutes before the incident, identical
// files/sizes/messages, one matching the deployment event's commitSha.
// The matching commit's combined score must be strictly greater.
func TestScoreCommits_DeploymentMatchWinsOnTie(t *testing.T) {
	detectedAt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	commitTime := detectedAt.Add(-30 * time.Minute)

	base := models.ScoredCommit{
		Message:      "fix payment timeout handling",
		Timestamp:    commitTime,
		FilesChanged: []string{"internal/payments/config.go"},
		Additions:    20,
		Deletions:    5,
	}
	matching := base
	matching.SHA = "deadbeef"
	other := base
	other.SHA = "c0ffee"

	ctx := Context{IncidentDetectedAt: detectedAt, DeploymentCommitSHA: "deadbeef"}
	scored := ScoreCommits([]models.ScoredCommit{other, matching}, ctx)

	require.Len(t, scored, 2)
	var matchingScore, otherScore float64
	for _, c := range scored {
		if c.SHA == "deadbeef" {
			matchingScore = c.Score.Combined
		} else {
			otherScore = c.Score.Combined
		}
	}
	assert.Greater(t, matchingScore, otherScore)
}

func TestScoreCommits_SortedDescending(t *testing.T) {
	detectedAt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	commits := []models.ScoredCommit{
		{SHA: "a", Message: "docs update", Timestamp: detectedAt.Add(-2 * time.Hour), FilesChanged: []string{"README.md"}},
		{SHA: "b", Message: "hotfix critical bug in migration", Timestamp: detectedAt.Add(-5 * time.Minute), FilesChanged: []string{"db/migration/001.sql"}, Additions: 600},
	}
	scored := ScoreCommits(commits, Context{IncidentDetectedAt: detectedAt})

	require.Len(t, scored, 2)
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].Score.Combined, scored[i].Score.Combined)
	}
}

// All scores lie in [0, 1] even when every signal fires at once.
func TestScoreCommits_ScoresAreBounded(t *testing.T) {
	detectedAt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	commits := []models.ScoredCommit{
		{SHA: "x", Message: "hotfix urgent critical revert bug", Timestamp: detectedAt.Add(-1 * time.Minute), FilesChanged: []string{"config/auth/security.go", "db/schema/migration.sql"}, Additions: 10000},
	}
	scored := ScoreCommits(commits, Context{IncidentDetectedAt: detectedAt, StackTraceFilePaths: []string{"config/auth/security.go"}})

	require.Len(t, scored, 1)
	assert.GreaterOrEqual(t, scored[0].Score.Temporal, 0.0)
	assert.LessOrEqual(t, scored[0].Score.Temporal, 1.0)
	assert.GreaterOrEqual(t, scored[0].Score.Risk, 0.0)
	assert.LessOrEqual(t, scored[0].Score.Risk, 1.0)
	assert.GreaterOrEqual(t, scored[0].Score.Combined, 0.0)
	assert.LessOrEqual(t, scored[0].Score.Combined, 1.0)
}

func TestScoreCommits_AfterIncidentIsNeverCause(t *testing.T) {
	detectedAt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	commits := []models.ScoredCommit{
		{SHA: "future", Message: "fix", Timestamp: detectedAt.Add(5 * time.Minute)},
	}
	scored := ScoreCommits(commits, Context{IncidentDetectedAt: detectedAt})

	require.Len(t, scored, 1)
	assert.Equal(t, 0.0, scored[0].Score.Temporal)
}
