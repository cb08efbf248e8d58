// Package scheduler implements the detection scheduler: one goroutine
// per enabled monitor, ticking at the monitor's configured interval,
// querying metrics, evaluating the anomaly detector, deduplicating
// against recently-fired incidents, and handing any new incident off
// to the workflow.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/adapters/metrics"
	"github.com/sentinel-ops/incident-pilot/internal/anomaly"
	"github.com/sentinel-ops/incident-pilot/internal/models"
	"github.com/sentinel-ops/incident-pilot/internal/monitor"
)

// dedupWindowMinutes is the lookback window for duplicate suppression:
// a monitor that already fired within it stays silent.
const dedupWindowMinutes = 5

// MetricsSource is the subset of the metrics adapter the scheduler needs.
type MetricsSource interface {
	QueryMetrics(ctx context.Context, query string, fromUnix, toUnix int64) ([]models.MetricSample, error)
	QueryErrorTracking(ctx context.Context, query string, fromUnix, toUnix int64) ([]metrics.ErrorSample, error)
}

// BaselineSource computes or retrieves the baseline for a monitor/hour.
type BaselineSource interface {
	GetBaseline(ctx context.Context, monitor models.Monitor, hourOfDay int, now time.Time) (models.Baseline, error)
}

// IncidentStore is the dedup lookup the scheduler performs before
// emitting a new incident.
type IncidentStore interface {
	GetRecentIncidents(ctx context.Context, monitorID string, withinMinutes int) ([]models.Incident, error)
}

// IncidentHandler is the workflow entrypoint a detected incident is
// handed off to. Implementations own everything from investigation
// through notification.
type IncidentHandler interface {
	Handle(ctx context.Context, incident models.Incident)
}

// Scheduler drives per-monitor polling loops.
type Scheduler struct {
	registry  *monitor.Registry
	metrics   MetricsSource
	baselines BaselineSource
	store     IncidentStore
	handler   IncidentHandler
	logger    zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New builds a scheduler over the given collaborators.
func New(registry *monitor.Registry, ms MetricsSource, bs BaselineSource, store IncidentStore, handler IncidentHandler, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		registry:  registry,
		metrics:   ms,
		baselines: bs,
		store:     store,
		handler:   handler,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches one task per currently-enabled monitor. Calling Start
// while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, m := range s.registry.ListEnabled() {
		s.wg.Add(1)
		go s.runMonitorLoop(runCtx, m)
	}
	s.logger.Info().Int("monitors", len(s.registry.ListEnabled())).Msg("scheduler started")
}

// Stop cancels all per-monitor tasks and awaits their termination.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// Reload stops all tasks, lets the caller's registry reload happen
// (the registry is the single writer; this method only restarts the
// scheduler's own tasks against whatever the registry now reports),
// then restarts against the refreshed enabled set.
func (s *Scheduler) Reload(ctx context.Context) {
	s.Stop()
	s.Start(ctx)
}

func (s *Scheduler) runMonitorLoop(ctx context.Context, m models.Monitor) {
	defer s.wg.Done()

	interval := time.Duration(m.CheckIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var busy sync.Mutex

	tick := func() {
		if !busy.TryLock() {
			s.logger.Warn().Str("monitor_id", m.ID).Msg("skipping tick, previous run still in flight")
			return
		}
		defer busy.Unlock()
		s.runOnce(ctx, m)
	}

	tick()
	for {
		select {
		case <-ticker.C:
			tick()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, m models.Monitor) {
	logger := s.logger.With().Str("monitor_id", m.ID).Logger()

	window, err := monitor.ParseTimeWindow(m.TimeWindow)
	if err != nil {
		logger.Error().Err(err).Msg("invalid time window, skipping tick")
		return
	}

	now := time.Now().UTC()
	samples, err := s.metrics.QueryMetrics(ctx, m.Queries.Metric, now.Add(-window).Unix(), now.Unix())
	if err != nil {
		logger.Warn().Err(err).Msg("metric query failed, skipping tick")
		return
	}
	if len(samples) == 0 {
		return
	}
	currentValue := windowMean(samples)

	baseline, err := s.baselines.GetBaseline(ctx, m, now.Hour(), now)
	if err != nil {
		logger.Warn().Err(err).Msg("baseline lookup failed, skipping tick")
		return
	}

	result, fired := anomaly.Detect(m.Threshold, currentValue, baseline)
	if !fired {
		return
	}

	recent, err := s.store.GetRecentIncidents(ctx, m.ID, dedupWindowMinutes)
	if err != nil {
		logger.Warn().Err(err).Msg("dedup lookup failed, proceeding without it")
	} else if len(recent) > 0 {
		logger.Debug().Msg("suppressing duplicate incident within dedup window")
		return
	}

	// The server-assigned identity is a UUID; the external id is a ULID
	// so incidents sort lexicographically by detection time in any
	// downstream system that only sees the external reference.
	incident := models.Incident{
		ID:                  uuid.NewString(),
		ExternalID:          ulid.Make().String(),
		MonitorID:           m.ID,
		ServiceName:         m.Name,
		Severity:            result.Severity,
		Status:              models.IncidentActive,
		InvestigationTier:   models.TierT1,
		MetricName:          m.Queries.Metric,
		MetricValue:         currentValue,
		BaselineValue:       baseline.AverageValue,
		ThresholdValue:      result.ThresholdValue,
		DeviationPercentage: result.DeviationPercentage,
		DetectedAt:          now,
		CreatedAt:           now,
		UpdatedAt:           now,
		Tags:                m.Tags,
	}

	if m.Queries.ErrorTracking != "" {
		if errs, err := s.metrics.QueryErrorTracking(ctx, m.Queries.ErrorTracking, now.Add(-window).Unix(), now.Unix()); err == nil && len(errs) > 0 {
			incident.ErrorMessage = errs[0].Message
			incident.StackTrace = errs[0].StackTrace
		}
	}

	logger.Info().Str("incident_id", incident.ID).Str("severity", string(incident.Severity)).Msg("incident detected")
	s.handler.Handle(ctx, incident)
}

func windowMean(samples []models.MetricSample) float64 {
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples))
}
