// Package tier implements the tier selector: choosing investigation
// depth (T1/T2/T3) and data sources from incident and monitor signals.
package tier

import "github.com/sentinel-ops/incident-pilot/internal/models"

// Criteria are the inputs the selection rules evaluate.
type Criteria struct {
	HasStackTrace      bool
	HasDeploymentEvent bool
	Severity           models.Severity
	HasGitConfig       bool
	HasDBConfig        bool
}

// Strategy controls what the investigation orchestrator does for a tier.
type Strategy struct {
	CollectGit          bool
	CollectDB           bool
	CollectCrossRepo    bool
	MaxCommitsToAnalyze int
	IncludeCommitDiffs  bool
}

// Select applies the ordered rule list, first match wins.
func Select(c Criteria) models.InvestigationTier {
	switch {
	case c.Severity == models.SeverityCritical && c.HasStackTrace && c.HasDBConfig:
		return models.TierT3
	case c.Severity == models.SeverityHigh && c.HasDeploymentEvent && c.HasGitConfig:
		return models.TierT3
	case (c.HasStackTrace || c.HasDeploymentEvent) && c.HasGitConfig:
		return models.TierT2
	case (c.Severity == models.SeverityHigh || c.Severity == models.SeverityCritical) && c.HasGitConfig:
		return models.TierT2
	default:
		return models.TierT1
	}
}

// Refine upgrades a tier once new information (a deployment event
// discovered during metrics collection) is available. T1->T2 requires
// git config; T2->T3 requires DB config. T3 never downgrades, and a
// refinement never produces a lower rank than its input.
func Refine(current models.InvestigationTier, hasDeploymentEvent bool, monitor models.Monitor) models.InvestigationTier {
	hasGitConfig := len(monitor.GitLabRepositories) > 0
	hasDBConfig := monitor.EnableDatabaseInvestigation && monitor.DatabaseContext != nil && len(monitor.DatabaseContext.RelevantTables) > 0

	switch current {
	case models.TierT1:
		if hasDeploymentEvent && hasGitConfig {
			return models.TierT2
		}
		return models.TierT1
	case models.TierT2:
		if hasDeploymentEvent && hasDBConfig {
			return models.TierT3
		}
		return models.TierT2
	default:
		return models.TierT3
	}
}

// StrategyFor returns the collection strategy for a tier.
func StrategyFor(t models.InvestigationTier, monitor models.Monitor) Strategy {
	hasGitConfig := len(monitor.GitLabRepositories) > 0
	hasDBConfig := monitor.EnableDatabaseInvestigation && monitor.DatabaseContext != nil && len(monitor.DatabaseContext.RelevantTables) > 0

	switch t {
	case models.TierT1:
		return Strategy{MaxCommitsToAnalyze: 0}
	case models.TierT2:
		return Strategy{
			CollectGit:          hasGitConfig,
			MaxCommitsToAnalyze: 10,
			IncludeCommitDiffs:  true,
		}
	case models.TierT3:
		return Strategy{
			CollectGit:          hasGitConfig,
			CollectDB:           hasDBConfig,
			CollectCrossRepo:    true,
			MaxCommitsToAnalyze: 20,
			IncludeCommitDiffs:  true,
		}
	default:
		return Strategy{}
	}
}
