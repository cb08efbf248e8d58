// Package scorer ranks candidate commits by how likely each is to be
// the cause of an incident, combining a temporal-proximity score with
// a risk score. Every contribution is recorded as a
// models.ScoringFactor so callers get a per-factor breakdown alongside
// the final numbers.
package scorer

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sentinel-ops/incident-pilot/internal/models"
)

const (
	temporalWeight = 0.4
	riskWeight     = 0.6

	defaultTemporalWindow = 24 * time.Hour

	stackTraceWeight = 0.35
	changeSizeWeight = 0.2
	riskyPathWeight  = 0.25
	messageWeight    = 0.2
	deploymentBoost  = 0.3
)

// riskyPathGroups maps a set of equivalent path-fragment keywords to
// the weight they contribute if any is found in a changed file's path.
// The maximum weight across all matches wins.
var riskyPathGroups = []struct {
	keywords []string
	weight   float64
}{
	{[]string{"config"}, 0.7},
	{[]string{"migration"}, 0.9},
	{[]string{"schema"}, 0.8},
	{[]string{"env"}, 0.7},
	{[]string{"database", "db"}, 0.8},
	{[]string{"api", "route", "endpoint"}, 0.6},
	{[]string{"auth", "security"}, 0.8},
}

var messageBumpKeywords = []struct {
	keywords []string
	delta    float64
}{
	{[]string{"fix", "hotfix", "patch"}, 0.2},
	{[]string{"urgent", "critical", "emergency"}, 0.3},
	{[]string{"quick", "temp", "hack"}, 0.25},
	{[]string{"revert"}, 0.15},
}

var messagePenaltyKeywords = []struct {
	keywords []string
	delta    float64
}{
	{[]string{"test", "spec"}, -0.3},
	{[]string{"doc", "readme", "comment"}, -0.4},
	{[]string{"lint", "format", "style"}, -0.35},
	{[]string{"typo", "spelling"}, -0.3},
}

// Context carries the signals the scorer needs beyond the raw commits.
type Context struct {
	IncidentDetectedAt  time.Time
	TemporalWindow      time.Duration
	DeploymentCommitSHA string
	StackTraceFilePaths []string
}

// ScoreCommits scores every commit and returns them sorted by
// Combined score, descending.
func ScoreCommits(commits []models.ScoredCommit, ctx Context) []models.ScoredCommit {
	if ctx.TemporalWindow <= 0 {
		ctx.TemporalWindow = defaultTemporalWindow
	}

	scored := make([]models.ScoredCommit, len(commits))
	for i, c := range commits {
		scored[i] = scoreOne(c, ctx)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score.Combined > scored[j].Score.Combined
	})
	return scored
}

func scoreOne(c models.ScoredCommit, ctx Context) models.ScoredCommit {
	var factors []models.ScoringFactor

	temporal := temporalScore(c, ctx, &factors)
	risk := riskScore(c, ctx, &factors)

	combined := round2(temporal*temporalWeight + risk*riskWeight)

	c.Score = models.CommitScore{
		Temporal: round2(temporal),
		Risk:     round2(risk),
		Combined: combined,
	}
	c.ScoringFactors = factors
	return c
}

// temporalScore is zero (recording after_incident) for commits after
// detection; otherwise max(0, 1 - dt/window), with a deployment-match
// boost of +0.3 capped at 1.0.
func temporalScore(c models.ScoredCommit, ctx Context, factors *[]models.ScoringFactor) float64 {
	if c.Timestamp.After(ctx.IncidentDetectedAt) {
		*factors = append(*factors, models.ScoringFactor{
			Name: "after_incident", Contribution: 0,
			Detail: "commit occurred after the incident was detected",
		})
		return 0
	}

	delta := ctx.IncidentDetectedAt.Sub(c.Timestamp)
	proximity := math.Max(0, 1-float64(delta)/float64(ctx.TemporalWindow))
	*factors = append(*factors, models.ScoringFactor{
		Name: "proximity", Contribution: proximity,
		Detail: "recency relative to incident detection time",
	})

	if ctx.DeploymentCommitSHA != "" && c.SHA == ctx.DeploymentCommitSHA {
		boosted := math.Min(1, proximity+deploymentBoost)
		*factors = append(*factors, models.ScoringFactor{
			Name: "deployment_match", Contribution: boosted - proximity,
			Detail: "commit matches the deployment event's commitSha",
		})
		return boosted
	}
	return proximity
}

// riskScore accumulates the weighted risk contributions, clamped to
// [0, 1] once every contribution is added.
func riskScore(c models.ScoredCommit, ctx Context, factors *[]models.ScoringFactor) float64 {
	score := 0.0

	if matchesStackTrace(c.FilesChanged, ctx.StackTraceFilePaths) {
		score += stackTraceWeight
		*factors = append(*factors, models.ScoringFactor{
			Name: "stack_trace_match", Contribution: stackTraceWeight,
			Detail: "a changed file matches the incident stack trace",
		})
	}

	sizeBucket := changeSizeScore(c.Additions + c.Deletions)
	if sizeBucket > 0 {
		contribution := changeSizeWeight * sizeBucket
		score += contribution
		*factors = append(*factors, models.ScoringFactor{
			Name: "change_size", Contribution: contribution,
			Detail: "diff size bucket",
		})
	}

	if pathWeight := maxRiskyPathWeight(c.FilesChanged); pathWeight > 0 {
		contribution := riskyPathWeight * pathWeight
		score += contribution
		*factors = append(*factors, models.ScoringFactor{
			Name: "risky_path", Contribution: contribution,
			Detail: "a changed file matches a risky path keyword",
		})
	}

	msgBucket, msgDetail := messageScoreBucket(c.Message)
	msgContribution := messageWeight * msgBucket
	score += msgContribution
	*factors = append(*factors, models.ScoringFactor{
		Name: "message", Contribution: msgContribution,
		Detail: msgDetail,
	})

	return clamp01(score)
}

// matchesStackTrace checks exact, suffix, or basename equality,
// case-insensitive with backslashes normalized to forward slashes.
func matchesStackTrace(filesChanged, stackTracePaths []string) bool {
	for _, f := range filesChanged {
		nf := normalizePath(f)
		for _, s := range stackTracePaths {
			ns := normalizePath(s)
			if nf == ns || strings.HasSuffix(ns, nf) || strings.HasSuffix(nf, ns) {
				return true
			}
			if filepath.Base(nf) == filepath.Base(ns) {
				return true
			}
		}
	}
	return false
}

func normalizePath(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
}

// changeSizeScore buckets total changed lines. The table is not
// monotonic: very large diffs score lower than
// medium ones, on the theory that sprawling changes are more likely
// bulk formatting than a targeted regression.
func changeSizeScore(totalLines int) float64 {
	switch {
	case totalLines < 10:
		return 0.2
	case totalLines < 50:
		return 0.5
	case totalLines < 200:
		return 0.8
	case totalLines < 500:
		return 0.6
	default:
		return 0.3
	}
}

func maxRiskyPathWeight(filesChanged []string) float64 {
	max := 0.0
	for _, f := range filesChanged {
		lower := normalizePath(f)
		for _, group := range riskyPathGroups {
			for _, keyword := range group.keywords {
				if strings.Contains(lower, keyword) && group.weight > max {
					max = group.weight
				}
			}
		}
	}
	return max
}

// messageScoreBucket starts at 0.3 and applies every matching bump or
// penalty keyword, clamped to [0, 1].
func messageScoreBucket(message string) (float64, string) {
	lower := strings.ToLower(message)
	score := 0.3
	var matched []string

	for _, bump := range messageBumpKeywords {
		for _, keyword := range bump.keywords {
			if strings.Contains(lower, keyword) {
				score += bump.delta
				matched = append(matched, keyword)
				break
			}
		}
	}
	for _, penalty := range messagePenaltyKeywords {
		for _, keyword := range penalty.keywords {
			if strings.Contains(lower, keyword) {
				score += penalty.delta
				matched = append(matched, keyword)
				break
			}
		}
	}

	detail := "commit message keyword analysis"
	if len(matched) > 0 {
		detail = "matched: " + strings.Join(matched, ", ")
	}
	return clamp01(score), detail
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
