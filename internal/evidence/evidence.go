// Package evidence implements the evidence aggregator: combining an
// investigation's partial collector results into a single
// completeness-scored EvidenceBundle.
package evidence

import (
	"fmt"
	"regexp"
	"time"

	"github.com/sentinel-ops/incident-pilot/internal/models"
)

// tierWeights is the per-tier completeness weight table.
var tierWeights = map[models.InvestigationTier]struct {
	metrics, git, db, crossRepo float64
}{
	models.TierT1: {metrics: 1.0, git: 0, db: 0, crossRepo: 0},
	models.TierT2: {metrics: 0.4, git: 0.6, db: 0, crossRepo: 0},
	models.TierT3: {metrics: 0.25, git: 0.35, db: 0.25, crossRepo: 0.15},
}

// locationPatterns extracts a file path and line number from a stack
// trace or error message, tried in order, first match wins.
var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`at .* \((.+?):(\d+):\d+\)`),
	regexp.MustCompile(`at (.+?):(\d+):\d+`),
	regexp.MustCompile(`File "(.+?)", line (\d+)`),
	regexp.MustCompile(`(\S+\.(?:ts|js|py|java|go|rb)):(\d+)`),
}

// Partials carries everything the investigation orchestrator collected
// before aggregation.
type Partials struct {
	Incident        models.Incident
	Tier            models.InvestigationTier
	MetricHistory   []models.MetricSample
	DeploymentEvent *models.DeploymentEvent
	GitCommits      []models.ScoredCommit
	DatabaseContext *models.DatabaseContextEvidence
	CrossRepo       *models.CrossRepoContext
	CollectorErrors []models.CollectorError
}

// Build assembles the bundle from partials, computing completeness
// from the tier's weight table.
func Build(p Partials, now time.Time) models.EvidenceBundle {
	bundle := models.EvidenceBundle{
		IncidentID:        p.Incident.ID,
		InvestigationTier: p.Tier,
		CollectedAt:       now,
		MetricsContext:    buildMetricsContext(p),
	}

	if len(p.GitCommits) > 0 {
		bundle.GitLabContext = &models.GitLabContext{
			Commits:       p.GitCommits,
			ScoringMethod: scoringMethodFor(p),
		}
	}

	if p.DatabaseContext != nil {
		dbCtx := *p.DatabaseContext
		dbCtx.Relevance = relevanceFor(dbCtx)
		bundle.DatabaseContext = &dbCtx
	}

	if p.CrossRepo != nil && len(p.CrossRepo.Matches) > 0 {
		bundle.CrossRepoContext = p.CrossRepo
	}

	for _, e := range p.CollectorErrors {
		if e.Recoverable {
			bundle.Warnings = append(bundle.Warnings, fmt.Sprintf("%s: %s", e.Source, e.Message))
		}
	}

	bundle.Completeness = completeness(p, bundle)
	return bundle
}

// buildMetricsContext always populates the metrics context with the
// collected deployment event and metric history; ErrorDetails is taken
// from the incident's own error message, or its stack trace when the
// message is empty.
func buildMetricsContext(p Partials) models.MetricsContext {
	ctx := models.MetricsContext{
		DeploymentEvent: p.DeploymentEvent,
		MetricHistory:   p.MetricHistory,
	}
	if p.Incident.ErrorMessage != "" {
		ctx.ErrorDetails = p.Incident.ErrorMessage
	} else if p.Incident.StackTrace != "" {
		ctx.ErrorDetails = p.Incident.StackTrace
	}
	return ctx
}

func scoringMethodFor(p Partials) models.ScoringMethod {
	if p.DeploymentEvent != nil {
		return models.ScoringDeployment
	}
	if p.Incident.StackTrace != "" {
		return models.ScoringStackTrace
	}
	return models.ScoringTemporal
}

// relevanceFor grades the database evidence: any high-severity finding
// wins outright; else >3 total findings is medium; else low (including
// zero findings).
func relevanceFor(ctx models.DatabaseContextEvidence) models.Relevance {
	all := append(append(append([]models.DBFinding{}, ctx.SchemaFindings...), ctx.DataFindings...), ctx.PerformanceFindings...)

	for _, f := range all {
		if f.Severity == models.FindingHigh {
			return models.RelevanceHigh
		}
	}
	if len(all) > 3 {
		return models.RelevanceMedium
	}
	return models.RelevanceLow
}

// completeness sums the tier weight of each present source, with a
// +20% bonus on the metrics weight
// if errorDetails is present and a +20% bonus on the git weight if any
// commit carries a diff (FilesChanged non-empty). Final value is
// min(1, Σ/Σweights).
func completeness(p Partials, bundle models.EvidenceBundle) float64 {
	w, ok := tierWeights[p.Tier]
	if !ok {
		return 0
	}
	total := w.metrics + w.git + w.db + w.crossRepo
	if total == 0 {
		return 0
	}

	sum := 0.0

	metricsWeight := w.metrics
	if bundle.MetricsContext.ErrorDetails != "" {
		metricsWeight *= 1.2
	}
	sum += metricsWeight

	if bundle.GitLabContext != nil {
		gitWeight := w.git
		if anyCommitHasDiff(bundle.GitLabContext.Commits) {
			gitWeight *= 1.2
		}
		sum += gitWeight
	}

	if bundle.DatabaseContext != nil {
		sum += w.db
	}

	if bundle.CrossRepoContext != nil {
		sum += w.crossRepo
	}

	result := sum / total
	if result > 1 {
		result = 1
	}
	return result
}

func anyCommitHasDiff(commits []models.ScoredCommit) bool {
	for _, c := range commits {
		if len(c.FilesChanged) > 0 {
			return true
		}
	}
	return false
}

// ExtractLocation tries each location regex in order and returns the
// first matching (filePath, line).
func ExtractLocation(text string) (filePath string, line int, found bool) {
	for _, pattern := range locationPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		var ln int
		if _, err := fmt.Sscanf(m[2], "%d", &ln); err != nil {
			continue
		}
		return m[1], ln, true
	}
	return "", 0, false
}
