package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentinel-ops/incident-pilot/internal/models"
)

// A critical incident with a stack trace against a monitor carrying
// git and DB configuration selects T3 outright, with maxCommits=20,
// diffs requested, and all three collectors enabled.
func TestSelect_CriticalWithStackTraceAndDB(t *testing.T) {
	monitor := models.Monitor{
		GitLabRepositories:          []string{"o/r"},
		EnableDatabaseInvestigation: true,
		DatabaseContext:             &models.DatabaseContext{RelevantTables: []string{"t"}},
	}
	criteria := Criteria{
		HasStackTrace: true,
		Severity:      models.SeverityCritical,
		HasGitConfig:  true,
		HasDBConfig:   true,
	}

	got := Select(criteria)
	assert.Equal(t, models.TierT3, got)

	strategy := StrategyFor(got, monitor)
	assert.Equal(t, 20, strategy.MaxCommitsToAnalyze)
	assert.True(t, strategy.IncludeCommitDiffs)
	assert.True(t, strategy.CollectGit)
	assert.True(t, strategy.CollectDB)
	assert.True(t, strategy.CollectCrossRepo)
}

func TestSelect_DefaultIsT1(t *testing.T) {
	assert.Equal(t, models.TierT1, Select(Criteria{Severity: models.SeverityLow}))
}

func TestSelect_IsDeterministic(t *testing.T) {
	criteria := Criteria{HasStackTrace: true, HasGitConfig: true, Severity: models.SeverityMedium}
	a := Select(criteria)
	b := Select(criteria)
	assert.Equal(t, a, b)
}

func TestRefine_NeverDowngradesAndNeverExceedsT3(t *testing.T) {
	monitor := models.Monitor{
		GitLabRepositories:          []string{"o/r"},
		EnableDatabaseInvestigation: true,
		DatabaseContext:             &models.DatabaseContext{RelevantTables: []string{"t"}},
	}

	got := Refine(models.TierT3, true, monitor)
	assert.Equal(t, models.TierT3, got, "T3 never downgrades")
}

func TestRefine_T1UpgradesToT2WithDeploymentAndGit(t *testing.T) {
	monitor := models.Monitor{GitLabRepositories: []string{"o/r"}}
	got := Refine(models.TierT1, true, monitor)
	assert.Equal(t, models.TierT2, got)
}

func TestRefine_T1StaysWithoutGitConfig(t *testing.T) {
	monitor := models.Monitor{}
	got := Refine(models.TierT1, true, monitor)
	assert.Equal(t, models.TierT1, got)
}

func TestRefine_RankIsMonotone(t *testing.T) {
	monitor := models.Monitor{
		GitLabRepositories:          []string{"o/r"},
		EnableDatabaseInvestigation: true,
		DatabaseContext:             &models.DatabaseContext{RelevantTables: []string{"t"}},
	}
	for _, start := range []models.InvestigationTier{models.TierT1, models.TierT2, models.TierT3} {
		refined := Refine(start, true, monitor)
		assert.GreaterOrEqual(t, refined.Rank(), start.Rank())
	}
}
