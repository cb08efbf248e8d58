// Package analysis implements the analysis engine: building a
// deterministic root-cause prompt from an evidence bundle, invoking
// the LLM adapter behind a circuit breaker with a response cache,
// validating the result, and falling back to a deterministic template
// on any failure.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/adapters/llm"
	"github.com/sentinel-ops/incident-pilot/internal/cache"
	"github.com/sentinel-ops/incident-pilot/internal/errkind"
	pilotmetrics "github.com/sentinel-ops/incident-pilot/internal/metrics"
	"github.com/sentinel-ops/incident-pilot/internal/models"
	"github.com/sentinel-ops/incident-pilot/internal/resilience/breaker"
	"github.com/sentinel-ops/incident-pilot/internal/store"
)

const (
	stackTraceBudget    = 2000
	diffBudget          = 1200
	middleEllipsis      = "\n... [truncated] ...\n"
	topCommitsExpanded  = 3
	minSummaryLength    = 20
	minHypothesisLength = 10
)

const jsonInstruction = `
## Response format
Respond with *only* a single JSON object, no surrounding prose and no
Markdown code fences, matching this shape:
{
  "summary": string,
  "rootCause": {"hypothesis": string, "confidence": "high"|"medium"|"low", "evidence": [string, ...]},
  "mechanism": string,
  "contributingFactors": [string, ...],
  "recommendedActions": [{"priority": number, "action": string, "reasoning": string, "estimatedImpact": string}, ...],
  "estimatedComplexity": "low"|"medium"|"high"
}
`

// LLMCaller is the subset of the LLM adapter the engine invokes.
type LLMCaller interface {
	GenerateAnalysis(ctx context.Context, prompt string) (llm.Result, error)
}

// UsageRecorder is the subset of the persistence layer used to
// best-effort record token usage.
type UsageRecorder interface {
	StoreLLMUsage(ctx context.Context, rec store.LLMUsageRecord) error
}

// Engine produces root-cause analyses from evidence bundles.
type Engine struct {
	llm             LLMCaller
	breaker         *breaker.Breaker
	cache           cache.Cache
	cacheTTL        time.Duration
	costInputPer1K  float64
	costOutputPer1K float64
	usage           UsageRecorder
	logger          zerolog.Logger
}

// New builds an analysis engine. cache and usage may be nil, in which
// case the response cache and usage persistence are both skipped.
func New(caller LLMCaller, c cache.Cache, cacheTTL time.Duration, costInputPer1K, costOutputPer1K float64, usage UsageRecorder, logger zerolog.Logger) *Engine {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Engine{
		llm:             caller,
		breaker:         breaker.New("llm-analysis", breaker.DefaultConfig(), logger),
		cache:           c,
		cacheTTL:        cacheTTL,
		costInputPer1K:  costInputPer1K,
		costOutputPer1K: costOutputPer1K,
		usage:           usage,
		logger:          logger.With().Str("component", "analysis").Logger(),
	}
}

// Analyze builds the prompt, consults the cache, calls the LLM behind
// the breaker, validates the result, and falls back to the
// deterministic template on any failure along the way.
func (e *Engine) Analyze(ctx context.Context, incident models.Incident, bundle models.EvidenceBundle) models.Analysis {
	prompt := buildPrompt(incident, bundle)
	cacheKey := cache.LLMResponseKey(sha256Hex(prompt))

	if e.cache != nil {
		if raw, found, err := e.cache.Get(ctx, cacheKey); err == nil && found {
			var cached models.Analysis
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				pilotmetrics.LLMCacheHits.Inc()
				return cached
			}
		}
	}

	start := time.Now()
	var result llm.Result
	callErr := e.breaker.Execute(func() error {
		var innerErr error
		result, innerErr = e.llm.GenerateAnalysis(ctx, prompt)
		return innerErr
	})
	duration := time.Since(start)
	pilotmetrics.BreakerState.WithLabelValues("llm-analysis").Set(float64(e.breaker.State()))

	if callErr != nil {
		e.logger.Warn().Err(callErr).Str("incident_id", incident.ID).Msg("llm call failed or circuit open, using fallback")
		pilotmetrics.AnalysisFallbacks.Inc()
		return fallback(incident, bundle, duration)
	}

	analysisResult, responseBytes, parseErr := parseResponse(result.Content)
	if parseErr != nil {
		e.logger.Warn().Err(parseErr).Str("incident_id", incident.ID).Msg("llm response failed validation, using fallback")
		pilotmetrics.AnalysisFallbacks.Inc()
		return fallback(incident, bundle, duration)
	}

	inputTokens := estimateTokens(prompt)
	outputTokens := estimateTokens(string(responseBytes))
	analysisResult.Metadata = models.AnalysisMetadata{
		AnalyzedAt: time.Now().UTC(),
		ModelUsed:  result.ModelUsed,
		TokensUsed: models.TokenUsage{Input: inputTokens, Output: outputTokens, Total: inputTokens + outputTokens},
		DurationMs: duration.Milliseconds(),
	}
	analysisResult.IncidentID = incident.ID

	if e.cache != nil {
		if raw, jsonErr := json.Marshal(analysisResult); jsonErr == nil {
			if err := e.cache.SetEx(ctx, cacheKey, e.cacheTTL, string(raw)); err != nil {
				e.logger.Warn().Err(err).Msg("failed to cache llm response")
			}
		}
	}

	if e.usage != nil {
		cost := e.estimateCost(inputTokens, outputTokens)
		rec := store.LLMUsageRecord{
			IncidentID: incident.ID,
			ModelUsed:  analysisResult.Metadata.ModelUsed,
			Input:      inputTokens,
			Output:     outputTokens,
			Total:      inputTokens + outputTokens,
			CostUSD:    cost,
			DurationMs: duration.Milliseconds(),
			RecordedAt: time.Now().UTC(),
		}
		if err := e.usage.StoreLLMUsage(ctx, rec); err != nil {
			e.logger.Warn().Err(err).Msg("failed to persist llm usage record")
		}
	}

	return analysisResult
}

func (e *Engine) estimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*e.costInputPer1K + float64(outputTokens)/1000*e.costOutputPer1K
}

// estimateTokens approximates usage as ceil(len/4).
func estimateTokens(s string) int {
	return int(math.Ceil(float64(len(s)) / 4))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// parseResponse marshals the LLM adapter's decoded content map back to
// JSON (so its byte length can be used for the output token estimate),
// unmarshals it into an Analysis, and validates the required fields.
func parseResponse(content map[string]any) (models.Analysis, []byte, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return models.Analysis{}, nil, errkind.NewLLMValidation("failed to re-marshal llm content", err)
	}

	var a models.Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return models.Analysis{}, raw, errkind.NewLLMValidation("llm content does not match analysis schema", err)
	}

	if err := validate(a); err != nil {
		return models.Analysis{}, raw, errkind.NewLLMValidation("llm content failed validation", err)
	}

	return a, raw, nil
}

var validConfidences = map[models.Confidence]bool{
	models.ConfidenceHigh:   true,
	models.ConfidenceMedium: true,
	models.ConfidenceLow:    true,
}

func validate(a models.Analysis) error {
	if len(a.Summary) < minSummaryLength {
		return fmt.Errorf("summary shorter than %d characters", minSummaryLength)
	}
	if len(a.RootCause.Hypothesis) < minHypothesisLength {
		return fmt.Errorf("rootCause.hypothesis shorter than %d characters", minHypothesisLength)
	}
	if !validConfidences[a.RootCause.Confidence] {
		return fmt.Errorf("rootCause.confidence %q is not a valid enum member", a.RootCause.Confidence)
	}
	if len(a.RootCause.Evidence) == 0 {
		return fmt.Errorf("rootCause.evidence must be non-empty")
	}
	if len(a.RecommendedActions) == 0 {
		return fmt.Errorf("recommendedActions must be non-empty")
	}
	return nil
}

// fallback builds the deterministic template analysis used whenever
// the LLM path fails.
func fallback(incident models.Incident, bundle models.EvidenceBundle, duration time.Duration) models.Analysis {
	var suspected *models.ScoredCommit
	if bundle.GitLabContext != nil && len(bundle.GitLabContext.Commits) > 0 {
		top := bundle.GitLabContext.Commits[0]
		suspected = &top
	}

	return models.Analysis{
		IncidentID: incident.ID,
		Summary: fmt.Sprintf(
			"Automated root-cause analysis was unavailable for incident %s: %s deviated %.2f%% from its baseline.",
			incident.ID, incident.MetricName, incident.DeviationPercentage,
		),
		RootCause: models.RootCause{
			Hypothesis:      "Root cause could not be determined automatically; manual investigation is required.",
			Confidence:      models.ConfidenceLow,
			Evidence:        []string{fmt.Sprintf("%s measured %.4f against a baseline of %.4f", incident.MetricName, incident.MetricValue, incident.BaselineValue)},
			SuspectedCommit: suspected,
		},
		Mechanism:           "unknown",
		ContributingFactors: nil,
		RecommendedActions: []models.RecommendedAction{{
			Priority:        1,
			Action:          "Escalate to the on-call engineer for manual investigation.",
			Reasoning:       "automated analysis was unavailable for this incident",
			EstimatedImpact: "unknown",
		}},
		EstimatedComplexity: "unknown",
		RequiresHumanReview: true,
		Metadata: models.AnalysisMetadata{
			AnalyzedAt: time.Now().UTC(),
			ModelUsed:  models.FallbackModelName,
			TokensUsed: models.TokenUsage{},
			DurationMs: duration.Milliseconds(),
		},
	}
}

func truncateMiddle(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	half := (budget - len(middleEllipsis)) / 2
	if half <= 0 {
		return s[:budget]
	}
	return s[:half] + middleEllipsis + s[len(s)-half:]
}

// buildPrompt assembles the deterministic, order-stable prompt:
// incident header, metrics context, then optional git/db/cross-repo
// sections, then the JSON-schema instruction. Determinism keeps the
// cache key stable for identical evidence.
func buildPrompt(incident models.Incident, bundle models.EvidenceBundle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Incident %s\nMonitor: %s\nService: %s\nSeverity: %s\nTier: %s\nMetric: %s = %.4f (baseline %.4f, threshold %.4f, deviation %.2f%%)\nDetected at: %s\n\n",
		incident.ID, incident.MonitorID, incident.ServiceName, incident.Severity, bundle.InvestigationTier,
		incident.MetricName, incident.MetricValue, incident.BaselineValue, incident.ThresholdValue, incident.DeviationPercentage,
		incident.DetectedAt.Format(time.RFC3339))

	if incident.StackTrace != "" {
		fmt.Fprintf(&b, "## Stack trace\n%s\n\n", truncateMiddle(incident.StackTrace, stackTraceBudget))
	}

	b.WriteString("## Metrics context\n")
	if bundle.MetricsContext.ErrorDetails != "" {
		fmt.Fprintf(&b, "Error details: %s\n", truncateMiddle(bundle.MetricsContext.ErrorDetails, stackTraceBudget))
	}
	if bundle.MetricsContext.DeploymentEvent != nil {
		d := bundle.MetricsContext.DeploymentEvent
		fmt.Fprintf(&b, "Deployment event: commit=%s at %s (%s)\n", d.CommitSHA, d.Timestamp.Format(time.RFC3339), d.Description)
	}
	fmt.Fprintf(&b, "Metric history samples: %d\n\n", len(bundle.MetricsContext.MetricHistory))

	if bundle.GitLabContext != nil {
		fmt.Fprintf(&b, "## Source control (scoring method: %s)\n", bundle.GitLabContext.ScoringMethod)
		for i, c := range bundle.GitLabContext.Commits {
			if i >= topCommitsExpanded {
				fmt.Fprintf(&b, "- %s %q (combined score %.2f)\n", c.SHA, c.Message, c.Score.Combined)
				continue
			}
			fmt.Fprintf(&b, "### Commit %s\nAuthor: %s\nMessage: %s\nScore: combined=%.2f temporal=%.2f risk=%.2f\nFiles changed: %s\n",
				c.SHA, c.Author, c.Message, c.Score.Combined, c.Score.Temporal, c.Score.Risk, strings.Join(c.FilesChanged, ", "))
			if len(c.FilesChanged) > 0 {
				fmt.Fprintf(&b, "Diff summary: +%d/-%d %s\n", c.Additions, c.Deletions, truncateMiddle(strings.Join(c.FilesChanged, ", "), diffBudget))
			}
		}
		b.WriteString("\n")
	}

	if bundle.DatabaseContext != nil {
		fmt.Fprintf(&b, "## Database findings (relevance: %s)\n", bundle.DatabaseContext.Relevance)
		all := append(append(append([]models.DBFinding{}, bundle.DatabaseContext.SchemaFindings...), bundle.DatabaseContext.DataFindings...), bundle.DatabaseContext.PerformanceFindings...)
		for _, f := range all {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", f.Severity, f.Kind, f.Detail)
		}
		b.WriteString("\n")
	}

	if bundle.CrossRepoContext != nil {
		fmt.Fprintf(&b, "## Cross-repository matches\nTotal matches: %d across: %s\n", bundle.CrossRepoContext.TotalMatchCount, strings.Join(bundle.CrossRepoContext.AffectedRepositories, ", "))
		for _, m := range bundle.CrossRepoContext.Matches {
			fmt.Fprintf(&b, "- %s:%d %s\n", m.FilePath, m.Line, m.Snippet)
		}
		b.WriteString("\n")
	}

	if len(bundle.Warnings) > 0 {
		fmt.Fprintf(&b, "## Warnings\n%s\n\n", strings.Join(bundle.Warnings, "\n"))
	}

	b.WriteString(jsonInstruction)
	return b.String()
}
