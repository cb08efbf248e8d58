// Package investigation implements the investigation orchestrator:
// running the tier-selected set of per-source collectors in parallel,
// tolerating any individual collector's failure, and handing the
// partial results to the evidence aggregator. Each collector closure
// swallows its own error into a CollectorError rather than letting it
// cancel the group, so one slow or broken source never takes down the
// others.
package investigation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sentinel-ops/incident-pilot/internal/adapters/codesearch"
	"github.com/sentinel-ops/incident-pilot/internal/adapters/dbinvestigate"
	"github.com/sentinel-ops/incident-pilot/internal/adapters/scm"
	"github.com/sentinel-ops/incident-pilot/internal/evidence"
	pilotmetrics "github.com/sentinel-ops/incident-pilot/internal/metrics"
	"github.com/sentinel-ops/incident-pilot/internal/models"
	"github.com/sentinel-ops/incident-pilot/internal/scorer"
	"github.com/sentinel-ops/incident-pilot/internal/tier"
)

// topCommitsForBestEffort is how many of the highest-scored commits
// per repository get a best-effort pipeline/merge-request lookup.
const topCommitsForBestEffort = 5

// diffFetchLimit is how many commits per repo get a diff fetched when
// the strategy requests diffs.
const diffFetchLimit = 10

// MetricsCollector is the subset of the metrics adapter the
// orchestrator's base-context step needs.
type MetricsCollector interface {
	QueryMetrics(ctx context.Context, query string, fromUnix, toUnix int64) ([]models.MetricSample, error)
	QueryDeploymentEvents(ctx context.Context, tags []string, fromUnix, toUnix int64) []models.DeploymentEvent
}

// GitCollector is the subset of the source-control adapter the git
// collector needs.
type GitCollector interface {
	GetCommits(ctx context.Context, p scm.CommitsParams) ([]models.ScoredCommit, error)
	GetCommitDiff(ctx context.Context, repository, sha string) ([]string, int, int, error)
	GetPipelineForCommit(ctx context.Context, repository, sha string) *scm.Pipeline
	GetMergeRequestForCommit(ctx context.Context, repository, sha string) *scm.MergeRequest
}

// DBCollector is the subset of the DB investigation adapter the
// orchestrator's db collector needs.
type DBCollector interface {
	Investigate(ctx context.Context, req dbinvestigate.Request) (dbinvestigate.Result, error)
}

// CrossRepoCollector is the subset of the code-search adapter the
// orchestrator's cross-repo collector needs.
type CrossRepoCollector interface {
	Search(ctx context.Context, p codesearch.Params) (codesearch.Result, error)
}

// Orchestrator runs the tier-selected collection plan for a single incident.
type Orchestrator struct {
	metrics           MetricsCollector
	git               GitCollector
	db                DBCollector
	crossRepo         CrossRepoCollector
	collectorTimeout  time.Duration
	dbTimeout         time.Duration
	gitLookbackWindow time.Duration
	deploymentWindow  time.Duration
	logger            zerolog.Logger
}

// New builds an orchestrator. git, db, and crossRepo may be nil: a nil
// collaborator means that source is never collected, regardless of
// what the tier strategy requests.
func New(metricsSrc MetricsCollector, git GitCollector, db DBCollector, crossRepo CrossRepoCollector, collectorTimeout, dbTimeout, gitLookbackWindow, deploymentWindow time.Duration, logger zerolog.Logger) *Orchestrator {
	if collectorTimeout <= 0 {
		collectorTimeout = 30 * time.Second
	}
	if dbTimeout <= 0 {
		dbTimeout = 10 * time.Second
	}
	if gitLookbackWindow <= 0 {
		gitLookbackWindow = 24 * time.Hour
	}
	if deploymentWindow <= 0 {
		deploymentWindow = 2 * time.Hour
	}
	return &Orchestrator{
		metrics:           metricsSrc,
		git:               git,
		db:                db,
		crossRepo:         crossRepo,
		collectorTimeout:  collectorTimeout,
		dbTimeout:         dbTimeout,
		gitLookbackWindow: gitLookbackWindow,
		deploymentWindow:  deploymentWindow,
		logger:            logger.With().Str("component", "investigation").Logger(),
	}
}

// Investigate selects the tier, collects the base metrics context
// (including any deployment event), refines the tier, runs the enabled
// collectors concurrently, and aggregates whatever they produced. The
// returned error is always nil: when no collector is able to run at
// all, the result is a T1 bundle with a non-recoverable collector error
// recorded and completeness 0.
func (o *Orchestrator) Investigate(ctx context.Context, incident models.Incident, monitor models.Monitor) (models.EvidenceBundle, time.Duration, error) {
	start := time.Now()

	initialTier := tier.Select(tier.Criteria{
		HasStackTrace: incident.StackTrace != "",
		Severity:      incident.Severity,
		HasGitConfig:  len(monitor.GitLabRepositories) > 0,
		HasDBConfig:   monitor.EnableDatabaseInvestigation && monitor.DatabaseContext != nil && len(monitor.DatabaseContext.RelevantTables) > 0,
	})

	var collectorErrors []models.CollectorError
	var metricHistory []models.MetricSample
	var deploymentEvent *models.DeploymentEvent

	if o.metrics != nil {
		metricCtx, cancel := context.WithTimeout(ctx, o.collectorTimeout)
		history, err := o.metrics.QueryMetrics(metricCtx, monitor.Queries.Metric, incident.DetectedAt.Add(-time.Hour).Unix(), incident.DetectedAt.Unix())
		cancel()
		if err != nil {
			collectorErrors = append(collectorErrors, models.CollectorError{Source: "metrics", Message: err.Error(), Recoverable: true})
		} else {
			metricHistory = history
		}

		deployCtx, cancel2 := context.WithTimeout(ctx, o.collectorTimeout)
		events := o.metrics.QueryDeploymentEvents(deployCtx, monitor.Tags, incident.DetectedAt.Add(-o.deploymentWindow).Unix(), incident.DetectedAt.Unix())
		cancel2()
		if len(events) > 0 {
			deploymentEvent = &events[0]
		}
	} else {
		collectorErrors = append(collectorErrors, models.CollectorError{Source: "metrics", Message: "no metrics collaborator configured", Recoverable: true})
	}

	refinedTier := tier.Refine(initialTier, deploymentEvent != nil, monitor)
	strategy := tier.StrategyFor(refinedTier, monitor)

	if o.metrics == nil && !strategy.CollectGit && !strategy.CollectDB && !strategy.CollectCrossRepo {
		bundle := evidence.Build(evidence.Partials{
			Incident:        incident,
			Tier:            models.TierT1,
			CollectorErrors: append(collectorErrors, models.CollectorError{Source: "investigation", Message: "no collectors could run", Recoverable: false}),
		}, time.Now())
		bundle.Completeness = 0
		return bundle, time.Since(start), nil
	}

	var (
		mu         sync.Mutex
		gitCommits []models.ScoredCommit
		dbContext  *models.DatabaseContextEvidence
		crossRepo  *models.CrossRepoContext
	)

	g := errgroup.Group{}

	if strategy.CollectGit && o.git != nil {
		g.Go(func() error {
			commits, err := o.collectGit(ctx, incident, monitor, strategy, deploymentEvent)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				collectorErrors = append(collectorErrors, models.CollectorError{Source: "git", Message: err.Error(), Recoverable: true})
				return nil
			}
			gitCommits = commits
			return nil
		})
	}

	if strategy.CollectDB && o.db != nil {
		g.Go(func() error {
			result, err := o.collectDB(ctx, incident, monitor)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				collectorErrors = append(collectorErrors, models.CollectorError{Source: "db", Message: err.Error(), Recoverable: true})
				return nil
			}
			dbContext = result
			return nil
		})
	}

	if strategy.CollectCrossRepo && o.crossRepo != nil {
		g.Go(func() error {
			result, err := o.collectCrossRepo(ctx, incident, monitor)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				collectorErrors = append(collectorErrors, models.CollectorError{Source: "cross_repo", Message: err.Error(), Recoverable: true})
				return nil
			}
			crossRepo = result
			return nil
		})
	}

	_ = g.Wait()

	bundle := evidence.Build(evidence.Partials{
		Incident:        incident,
		Tier:            refinedTier,
		MetricHistory:   metricHistory,
		DeploymentEvent: deploymentEvent,
		GitCommits:      gitCommits,
		DatabaseContext: dbContext,
		CrossRepo:       crossRepo,
		CollectorErrors: collectorErrors,
	}, time.Now())

	duration := time.Since(start)
	pilotmetrics.InvestigationDuration.WithLabelValues(string(refinedTier)).Observe(duration.Seconds())
	pilotmetrics.TierUsage.WithLabelValues(string(refinedTier)).Inc()
	pilotmetrics.EvidenceCompleteness.Observe(bundle.Completeness)

	return bundle, duration, nil
}

func (o *Orchestrator) collectGit(ctx context.Context, incident models.Incident, monitor models.Monitor, strategy tier.Strategy, deploymentEvent *models.DeploymentEvent) ([]models.ScoredCommit, error) {
	var stackTracePaths []string
	if path, _, found := evidence.ExtractLocation(incident.StackTrace); found {
		stackTracePaths = append(stackTracePaths, path)
	}

	scoreCtx := scorer.Context{
		IncidentDetectedAt:  incident.DetectedAt,
		StackTraceFilePaths: stackTracePaths,
	}
	if deploymentEvent != nil {
		scoreCtx.DeploymentCommitSHA = deploymentEvent.CommitSHA
	}

	var all []models.ScoredCommit
	var lastErr error

	for _, repo := range monitor.GitLabRepositories {
		repoCtx, cancel := context.WithTimeout(ctx, o.collectorTimeout)
		commits, err := o.git.GetCommits(repoCtx, scm.CommitsParams{
			Repository: repo,
			Since:      incident.DetectedAt.Add(-o.gitLookbackWindow),
			Until:      incident.DetectedAt,
			PerPage:    strategy.MaxCommitsToAnalyze,
		})
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		if strategy.IncludeCommitDiffs {
			for i := range commits {
				if i >= diffFetchLimit {
					break
				}
				diffCtx, diffCancel := context.WithTimeout(ctx, o.collectorTimeout)
				files, additions, deletions, diffErr := o.git.GetCommitDiff(diffCtx, repo, commits[i].SHA)
				diffCancel()
				if diffErr == nil {
					commits[i].FilesChanged = files
					commits[i].Additions = additions
					commits[i].Deletions = deletions
				}
			}
		}

		scored := scorer.ScoreCommits(commits, scoreCtx)

		top := scored
		if len(top) > topCommitsForBestEffort {
			top = top[:topCommitsForBestEffort]
		}
		for i := range top {
			pipelineCtx, pipelineCancel := context.WithTimeout(ctx, o.collectorTimeout)
			if p := o.git.GetPipelineForCommit(pipelineCtx, repo, top[i].SHA); p != nil {
				top[i].PipelineStatus = p.Status
			}
			pipelineCancel()

			mrCtx, mrCancel := context.WithTimeout(ctx, o.collectorTimeout)
			if mr := o.git.GetMergeRequestForCommit(mrCtx, repo, top[i].SHA); mr != nil {
				top[i].MergeRequestURL = mr.WebURL
			}
			mrCancel()
		}

		all = append(all, scored...)
	}

	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}

	return scorer.ScoreCommits(all, scoreCtx), nil
}

func (o *Orchestrator) collectDB(ctx context.Context, incident models.Incident, monitor models.Monitor) (*models.DatabaseContextEvidence, error) {
	dbCtx, cancel := context.WithTimeout(ctx, o.dbTimeout)
	defer cancel()

	result, err := o.db.Investigate(dbCtx, dbinvestigate.Request{
		Tables:       monitor.DatabaseContext.RelevantTables,
		Schemas:      monitor.DatabaseContext.RelevantSchemas,
		ErrorContext: incident.ErrorMessage,
	})
	if err != nil {
		return nil, err
	}

	return &models.DatabaseContextEvidence{
		SchemaFindings:      result.SchemaFindings,
		DataFindings:        result.DataFindings,
		PerformanceFindings: result.PerformanceFindings,
	}, nil
}

func (o *Orchestrator) collectCrossRepo(ctx context.Context, incident models.Incident, monitor models.Monitor) (*models.CrossRepoContext, error) {
	pattern, ok := codesearch.PatternFromErrorMessage(incident.ErrorMessage)
	if !ok {
		pattern, ok = codesearch.PatternFromErrorMessage(incident.StackTrace)
	}
	if !ok {
		return nil, nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, o.collectorTimeout)
	defer cancel()

	result, err := o.crossRepo.Search(searchCtx, codesearch.Params{
		Pattern:      pattern,
		Repositories: monitor.GitLabRepositories,
		ExcludeTests: true,
	})
	if err != nil {
		return nil, err
	}

	return &models.CrossRepoContext{
		AffectedRepositories: result.AffectedRepositories,
		TotalMatchCount:      result.TotalMatchCount,
		CriticalPaths:        result.CriticalPaths,
		Matches:              result.Matches,
	}, nil
}
