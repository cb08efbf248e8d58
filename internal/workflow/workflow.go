// Package workflow glues an incident fired by the detection scheduler
// to the investigation, analysis, and notification collaborators. It
// runs four sequential stages per incident -- fetchContext,
// investigate, analyze, notify. fetchContext (unknown monitor) and
// investigate may set a terminal error that skips the remaining stages,
// returning whatever partial state was produced; a failed notification
// is logged and leaves Result.Notified false.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/adapters/notify"
	"github.com/sentinel-ops/incident-pilot/internal/errkind"
	"github.com/sentinel-ops/incident-pilot/internal/models"
)

// MonitorSource resolves a monitor by id for the fetchContext stage.
type MonitorSource interface {
	Get(id string) (models.Monitor, bool)
}

// Investigator runs the investigation orchestrator.
type Investigator interface {
	Investigate(ctx context.Context, incident models.Incident, monitor models.Monitor) (models.EvidenceBundle, time.Duration, error)
}

// Analyzer runs the analysis engine.
type Analyzer interface {
	Analyze(ctx context.Context, incident models.Incident, bundle models.EvidenceBundle) models.Analysis
}

// IncidentRecorder persists a fired incident.
type IncidentRecorder interface {
	CreateIncident(ctx context.Context, inc models.Incident) error
}

// Notifier sends the final analysis summary to the configured channel.
type Notifier interface {
	SendMessage(ctx context.Context, msg notify.Message) (notify.SendResult, error)
}

// Result is the durable outcome of running the workflow for one
// incident: whatever partial artifacts were produced, plus the
// terminal error (if any) and the total wall-clock duration.
type Result struct {
	Incident models.Incident
	Monitor  models.Monitor
	Evidence *models.EvidenceBundle
	Analysis *models.Analysis
	Notified bool
	Err      error
	Duration time.Duration
}

// Engine wires the context-fetch, investigate, analyze, and notify
// stages together for a single incident at a time -- different
// incidents proceed independently.
type Engine struct {
	monitors     MonitorSource
	investigator Investigator
	analyzer     Analyzer
	incidents    IncidentRecorder
	notifier     Notifier
	logger       zerolog.Logger
}

// New builds a workflow engine. incidents may be nil to skip
// persistence (e.g. in tests); notifier may be nil to skip the
// notify stage.
func New(monitors MonitorSource, investigator Investigator, analyzer Analyzer, incidents IncidentRecorder, notifier Notifier, logger zerolog.Logger) *Engine {
	return &Engine{
		monitors:     monitors,
		investigator: investigator,
		analyzer:     analyzer,
		incidents:    incidents,
		notifier:     notifier,
		logger:       logger.With().Str("component", "workflow").Logger(),
	}
}

// Handle implements the scheduler's IncidentHandler contract: run the
// workflow to completion and log the outcome. Callers that need the
// full Result (tests, the CLI's synchronous paths) should call Run
// directly instead.
func (e *Engine) Handle(ctx context.Context, incident models.Incident) {
	result := e.Run(ctx, incident)
	if result.Err != nil {
		e.logger.Error().Err(result.Err).Str("incident_id", incident.ID).Msg("workflow terminated with error")
		return
	}
	e.logger.Info().
		Str("incident_id", incident.ID).
		Dur("duration", result.Duration).
		Bool("notified", result.Notified).
		Msg("workflow completed")
}

// Run executes the four sequential stages for incident, short-circuiting
// downstream stages on the first terminal error. Notification failures
// are not terminal.
func (e *Engine) Run(ctx context.Context, incident models.Incident) Result {
	start := time.Now()
	result := Result{Incident: incident}

	if e.incidents != nil {
		if err := e.incidents.CreateIncident(ctx, incident); err != nil {
			e.logger.Warn().Err(err).Str("incident_id", incident.ID).Msg("failed to persist incident, continuing")
		}
	}

	monitor, ok := e.monitors.Get(incident.MonitorID)
	if !ok {
		result.Err = errkind.NewConfiguration(fmt.Sprintf("unknown monitor id %q", incident.MonitorID), nil)
		result.Duration = time.Since(start)
		return result
	}
	result.Monitor = monitor

	bundle, _, err := e.investigator.Investigate(ctx, incident, monitor)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}
	result.Evidence = &bundle

	analysis := e.analyzer.Analyze(ctx, incident, bundle)
	result.Analysis = &analysis

	if e.notifier != nil {
		msg := notify.Message{
			Content:    notificationBody(incident, monitor, analysis),
			WebhookURL: monitor.TeamsNotification.ChannelWebhookURL,
		}
		if _, err := e.notifier.SendMessage(ctx, msg); err != nil {
			e.logger.Warn().Err(err).Str("incident_id", incident.ID).Msg("notification delivery failed")
		} else {
			result.Notified = true
		}
	}

	result.Duration = time.Since(start)
	return result
}

func notificationBody(incident models.Incident, monitor models.Monitor, analysis models.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s\n", strings.ToUpper(string(incident.Severity)), monitor.Name, analysis.Summary)
	fmt.Fprintf(&b, "Root cause (%s confidence): %s\n", analysis.RootCause.Confidence, analysis.RootCause.Hypothesis)
	if len(analysis.RecommendedActions) > 0 {
		fmt.Fprintf(&b, "Top action: %s\n", analysis.RecommendedActions[0].Action)
	}
	if analysis.RequiresHumanReview {
		b.WriteString("Requires human review.\n")
	}
	return b.String()
}
