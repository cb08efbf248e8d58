// Package models holds the shared data types that flow through the
// detect -> investigate -> analyze pipeline.
package models

import "time"

// ThresholdType selects how an anomaly detector compares a current
// value against a baseline.
type ThresholdType string

const (
	ThresholdAbsolute   ThresholdType = "absolute"
	ThresholdPercentage ThresholdType = "percentage"
	ThresholdMultiplier ThresholdType = "multiplier"
)

// Severity is the declared or derived severity of a monitor or incident.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Threshold carries the warning/critical levels for a monitor.
type Threshold struct {
	Type     ThresholdType `json:"type"`
	Warning  float64       `json:"warning"`
	Critical float64       `json:"critical"`
}

// Queries names the metric, optional error-tracking, and optional
// deployment-event queries a monitor polls.
type Queries struct {
	Metric        string `json:"metric"`
	ErrorTracking string `json:"errorTracking,omitempty"`
	Deployment    string `json:"deployment,omitempty"`
}

// DatabaseContext scopes the tables/schemas the DB investigation
// adapter is allowed to inspect for a monitor.
type DatabaseContext struct {
	RelevantTables  []string `json:"relevantTables,omitempty"`
	RelevantSchemas []string `json:"relevantSchemas,omitempty"`
}

// URLPatterns optionally overrides how notification links are built.
type URLPatterns struct {
	Datadog  string `json:"datadog,omitempty"`
	GitLab   string `json:"gitlab,omitempty"`
	Incident string `json:"incident,omitempty"`
}

// TeamsNotification is the notification channel reference for a monitor.
type TeamsNotification struct {
	ChannelWebhookURL string      `json:"channelWebhookUrl"`
	MentionUsers      []string    `json:"mentionUsers,omitempty"`
	URLPatterns       URLPatterns `json:"urlPatterns,omitempty"`
}

// Monitor is the static configuration for a single polled service.
//
// Invariant: Critical >= Warning and CheckIntervalSeconds > 0; both are
// enforced at load time (internal/monitor).
type Monitor struct {
	ID                          string            `json:"id" validate:"required"`
	Name                        string            `json:"name" validate:"required"`
	Description                 string            `json:"description"`
	Enabled                     bool              `json:"enabled"`
	Queries                     Queries           `json:"queries" validate:"required"`
	CheckIntervalSeconds        int               `json:"checkIntervalSeconds" validate:"required,min=30"`
	Threshold                   Threshold         `json:"threshold" validate:"required"`
	TimeWindow                  string            `json:"timeWindow" validate:"required"`
	GitLabRepositories          []string          `json:"gitlabRepositories,omitempty"`
	EnableDatabaseInvestigation bool              `json:"enableDatabaseInvestigation"`
	DatabaseContext             *DatabaseContext  `json:"databaseContext,omitempty"`
	TeamsNotification           TeamsNotification `json:"teamsNotification" validate:"required"`
	Tags                        []string          `json:"tags,omitempty"`
	Severity                    Severity          `json:"severity" validate:"required,oneof=critical high medium low"`
}

// Baseline is the learned per-(monitor, hour-of-day) expectation for a metric.
type Baseline struct {
	MonitorID         string    `json:"monitorId"`
	HourOfDay         int       `json:"hourOfDay"`
	AverageValue      float64   `json:"averageValue"`
	StandardDeviation float64   `json:"standardDeviation"`
	SampleCount       int       `json:"sampleCount"`
	ComputedAt        time.Time `json:"computedAt"`
}

// MetricSample is a single (timestamp, value) pair as returned by the
// metrics adapter.
type MetricSample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// IncidentStatus is the lifecycle state of an Incident.
type IncidentStatus string

const (
	IncidentActive        IncidentStatus = "active"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentFalsePositive IncidentStatus = "false_positive"
)

// InvestigationTier names the depth of an investigation.
type InvestigationTier string

const (
	TierT1 InvestigationTier = "T1"
	TierT2 InvestigationTier = "T2"
	TierT3 InvestigationTier = "T3"
)

// Rank returns an ordinal for tier comparisons (T1 < T2 < T3), used to
// enforce the "refinement never downgrades" invariant.
func (t InvestigationTier) Rank() int {
	switch t {
	case TierT1:
		return 1
	case TierT2:
		return 2
	case TierT3:
		return 3
	default:
		return 0
	}
}

// Incident is a single fired anomaly, identified by a server-assigned UUID.
//
// Invariants: DetectedAt is immutable once set; ResolvedAt is set iff
// Status == IncidentResolved; DeviationPercentage is always derived as
// (MetricValue - BaselineValue) / BaselineValue * 100.
type Incident struct {
	ID                  string            `json:"id"`
	ExternalID          string            `json:"externalId,omitempty"`
	MonitorID           string            `json:"monitorId"`
	ServiceName         string            `json:"serviceName"`
	Severity            Severity          `json:"severity"`
	Status              IncidentStatus    `json:"status"`
	InvestigationTier   InvestigationTier `json:"investigationTier"`
	MetricName          string            `json:"metricName"`
	MetricValue         float64           `json:"metricValue"`
	BaselineValue       float64           `json:"baselineValue"`
	ThresholdValue      float64           `json:"thresholdValue"`
	DeviationPercentage float64           `json:"deviationPercentage"`
	ErrorMessage        string            `json:"errorMessage,omitempty"`
	StackTrace          string            `json:"stackTrace,omitempty"`
	DetectedAt          time.Time         `json:"detectedAt"`
	ResolvedAt          *time.Time        `json:"resolvedAt,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	Tags                []string          `json:"tags,omitempty"`
}

// ScoringFactor is one diagnostic contribution to a ScoredCommit's score.
type ScoringFactor struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail,omitempty"`
}

// CommitScore holds the temporal/risk/combined scores for a commit.
type CommitScore struct {
	Temporal float64 `json:"temporal"`
	Risk     float64 `json:"risk"`
	Combined float64 `json:"combined"`
}

// ScoredCommit is a commit ranked by the commit scorer.
type ScoredCommit struct {
	SHA             string          `json:"sha"`
	Message         string          `json:"message"`
	Author          string          `json:"author"`
	Timestamp       time.Time       `json:"timestamp"`
	Repository      string          `json:"repository"`
	FilesChanged    []string        `json:"filesChanged"`
	Additions       int             `json:"additions"`
	Deletions       int             `json:"deletions"`
	Score           CommitScore     `json:"score"`
	ScoringFactors  []ScoringFactor `json:"scoringFactors"`
	PipelineStatus  string          `json:"pipelineStatus,omitempty"`
	MergeRequestURL string          `json:"mergeRequestUrl,omitempty"`
}

// DeploymentEvent is an optional deployment marker returned by the
// metrics adapter's queryDeploymentEvents.
type DeploymentEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	CommitSHA   string    `json:"commitSha,omitempty"`
	Description string    `json:"description,omitempty"`
}

// MetricsContext is the evidence always present in a bundle, either
// collected from the metrics adapter or synthesized from the incident.
type MetricsContext struct {
	ErrorDetails    string           `json:"errorDetails,omitempty"`
	DeploymentEvent *DeploymentEvent `json:"deploymentEvent,omitempty"`
	MetricHistory   []MetricSample   `json:"metricHistory,omitempty"`
}

// ScoringMethod records which signal the git collector used to rank commits.
type ScoringMethod string

const (
	ScoringDeployment ScoringMethod = "deployment"
	ScoringStackTrace ScoringMethod = "stack-trace"
	ScoringTemporal   ScoringMethod = "temporal"
)

// GitLabContext is the optional evidence from the source-control collector.
type GitLabContext struct {
	Commits       []ScoredCommit `json:"commits"`
	ScoringMethod ScoringMethod  `json:"scoringMethod"`
}

// FindingSeverity grades a single database finding.
type FindingSeverity string

const (
	FindingHigh   FindingSeverity = "high"
	FindingMedium FindingSeverity = "medium"
	FindingLow    FindingSeverity = "low"
)

// Relevance grades how relevant the overall database evidence is.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// DBFinding is a single schema/data/performance observation.
type DBFinding struct {
	Kind     string          `json:"kind"`
	Detail   string          `json:"detail"`
	Severity FindingSeverity `json:"severity"`
}

// DatabaseContextEvidence is the optional evidence from the DB investigation collector.
type DatabaseContextEvidence struct {
	SchemaFindings      []DBFinding `json:"schemaFindings"`
	DataFindings        []DBFinding `json:"dataFindings"`
	PerformanceFindings []DBFinding `json:"performanceFindings"`
	Relevance           Relevance   `json:"relevance"`
}

// CodeMatch is a single cross-repo search hit.
type CodeMatch struct {
	Repository string `json:"repository"`
	FilePath   string `json:"filePath"`
	Line       int    `json:"line"`
	Snippet    string `json:"snippet"`
}

// CrossRepoContext is the optional evidence from the code-search collector.
type CrossRepoContext struct {
	AffectedRepositories []string    `json:"affectedRepositories"`
	TotalMatchCount      int         `json:"totalMatchCount"`
	CriticalPaths        []string    `json:"criticalPaths"`
	Matches              []CodeMatch `json:"matches"`
}

// CollectorError records a non-fatal failure from one investigation source.
type CollectorError struct {
	Source      string `json:"source"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// EvidenceBundle is the aggregated, completeness-scored view of
// everything the investigation orchestrator learned.
//
// Invariant: absent contexts are never invented; Completeness is a
// monotonic function of which contexts are populated for the given tier.
type EvidenceBundle struct {
	IncidentID        string                   `json:"incidentId"`
	InvestigationTier InvestigationTier        `json:"investigationTier"`
	Completeness      float64                  `json:"completeness"`
	CollectedAt       time.Time                `json:"collectedAt"`
	MetricsContext    MetricsContext           `json:"metricsContext"`
	GitLabContext     *GitLabContext           `json:"gitlabContext,omitempty"`
	DatabaseContext   *DatabaseContextEvidence `json:"databaseContext,omitempty"`
	CrossRepoContext  *CrossRepoContext        `json:"crossRepoContext,omitempty"`
	Warnings          []string                 `json:"warnings,omitempty"`
}

// Confidence grades how sure the analysis engine is in its root-cause hypothesis.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RootCause is the core hypothesis produced by the analysis engine.
type RootCause struct {
	Hypothesis      string        `json:"hypothesis"`
	Confidence      Confidence    `json:"confidence"`
	Evidence        []string      `json:"evidence"`
	SuspectedCommit *ScoredCommit `json:"suspectedCommit,omitempty"`
}

// RecommendedAction is one actionable remediation step.
type RecommendedAction struct {
	Priority        int    `json:"priority"`
	Action          string `json:"action"`
	Reasoning       string `json:"reasoning"`
	EstimatedImpact string `json:"estimatedImpact"`
}

// TokenUsage records the estimated input/output/total token counts for an LLM call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// AnalysisMetadata carries provenance about how an Analysis was produced.
type AnalysisMetadata struct {
	AnalyzedAt time.Time  `json:"analyzedAt"`
	ModelUsed  string     `json:"modelUsed"`
	TokensUsed TokenUsage `json:"tokensUsed"`
	DurationMs int64      `json:"durationMs"`
}

// Analysis is the synthesized root-cause report for an incident.
//
// Validation: Summary and RootCause.Hypothesis must satisfy minimum
// lengths, Evidence must be non-empty, and all enum fields must take a
// member of their declared set -- enforced by internal/analysis before
// an Analysis is accepted as valid (else the fallback template is used).
type Analysis struct {
	IncidentID          string              `json:"incidentId"`
	Summary             string              `json:"summary"`
	RootCause           RootCause           `json:"rootCause"`
	Mechanism           string              `json:"mechanism"`
	DatabaseFindings    []DBFinding         `json:"databaseFindings,omitempty"`
	CrossRepoFindings   []string            `json:"crossRepoFindings,omitempty"`
	ContributingFactors []string            `json:"contributingFactors"`
	RecommendedActions  []RecommendedAction `json:"recommendedActions"`
	EstimatedComplexity string              `json:"estimatedComplexity"`
	RequiresHumanReview bool                `json:"requiresHumanReview"`
	RequiresRollback    *bool               `json:"requiresRollback,omitempty"`
	Metadata            AnalysisMetadata    `json:"metadata"`
}

const FallbackModelName = "fallback-template"
