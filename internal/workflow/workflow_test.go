package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/incident-pilot/internal/adapters/notify"
	"github.com/sentinel-ops/incident-pilot/internal/models"
)

type fakeMonitors struct {
	monitors map[string]models.Monitor
}

func (f *fakeMonitors) Get(id string) (models.Monitor, bool) {
	m, ok := f.monitors[id]
	return m, ok
}

type fakeInvestigator struct {
	bundle models.EvidenceBundle
	err    error
}

func (f *fakeInvestigator) Investigate(ctx context.Context, incident models.Incident, monitor models.Monitor) (models.EvidenceBundle, time.Duration, error) {
	return f.bundle, time.Millisecond, f.err
}

type fakeAnalyzer struct {
	analysis models.Analysis
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, incident models.Incident, bundle models.EvidenceBundle) models.Analysis {
	return f.analysis
}

type fakeRecorder struct {
	stored []models.Incident
	err    error
}

func (f *fakeRecorder) CreateIncident(ctx context.Context, inc models.Incident) error {
	f.stored = append(f.stored, inc)
	return f.err
}

type fakeNotifier struct {
	sent []notify.Message
	err  error
}

func (f *fakeNotifier) SendMessage(ctx context.Context, msg notify.Message) (notify.SendResult, error) {
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return notify.SendResult{}, f.err
	}
	return notify.SendResult{Success: true}, nil
}

func baseMonitor() models.Monitor {
	return models.Monitor{
		ID:                "mon-1",
		Name:              "payments-service",
		Severity:          models.SeverityCritical,
		TeamsNotification: models.TeamsNotification{ChannelWebhookURL: "https://example.invalid/hook"},
	}
}

func baseIncident() models.Incident {
	return models.Incident{ID: "inc-1", MonitorID: "mon-1", Severity: models.SeverityCritical}
}

func baseAnalysis() models.Analysis {
	return models.Analysis{
		IncidentID: "inc-1",
		Summary:    "pool exhaustion",
		RootCause:  models.RootCause{Hypothesis: "leaked connections", Confidence: models.ConfidenceHigh},
	}
}

func TestRun_HappyPathNotifies(t *testing.T) {
	monitors := &fakeMonitors{monitors: map[string]models.Monitor{"mon-1": baseMonitor()}}
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	investigator := &fakeInvestigator{bundle: models.EvidenceBundle{InvestigationTier: models.TierT2}}
	analyzer := &fakeAnalyzer{analysis: baseAnalysis()}

	e := New(monitors, investigator, analyzer, recorder, notifier, zerolog.Nop())
	result := e.Run(t.Context(), baseIncident())

	require.NoError(t, result.Err)
	require.NotNil(t, result.Evidence)
	require.NotNil(t, result.Analysis)
	assert.True(t, result.Notified)
	require.Len(t, recorder.stored, 1)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "https://example.invalid/hook", notifier.sent[0].WebhookURL)
	assert.Contains(t, notifier.sent[0].Content, "pool exhaustion")
}

func TestRun_UnknownMonitorIsTerminal(t *testing.T) {
	monitors := &fakeMonitors{monitors: map[string]models.Monitor{}}
	investigator := &fakeInvestigator{}
	analyzer := &fakeAnalyzer{}

	e := New(monitors, investigator, analyzer, nil, nil, zerolog.Nop())
	result := e.Run(t.Context(), baseIncident())

	require.Error(t, result.Err)
	assert.Nil(t, result.Evidence)
	assert.Nil(t, result.Analysis)
}

func TestRun_InvestigationFailureIsTerminal(t *testing.T) {
	monitors := &fakeMonitors{monitors: map[string]models.Monitor{"mon-1": baseMonitor()}}
	investigator := &fakeInvestigator{err: errors.New("all collectors down")}
	analyzer := &fakeAnalyzer{analysis: baseAnalysis()}

	e := New(monitors, investigator, analyzer, nil, nil, zerolog.Nop())
	result := e.Run(t.Context(), baseIncident())

	require.Error(t, result.Err)
	assert.Nil(t, result.Analysis)
}

func TestRun_NotifyFailureDoesNotErasePartialResult(t *testing.T) {
	monitors := &fakeMonitors{monitors: map[string]models.Monitor{"mon-1": baseMonitor()}}
	investigator := &fakeInvestigator{bundle: models.EvidenceBundle{InvestigationTier: models.TierT1}}
	analyzer := &fakeAnalyzer{analysis: baseAnalysis()}
	notifier := &fakeNotifier{err: errors.New("webhook unreachable")}

	e := New(monitors, investigator, analyzer, nil, notifier, zerolog.Nop())
	result := e.Run(t.Context(), baseIncident())

	require.NoError(t, result.Err)
	require.NotNil(t, result.Analysis)
	assert.False(t, result.Notified)
}

func TestRun_RecorderFailureIsNonTerminal(t *testing.T) {
	monitors := &fakeMonitors{monitors: map[string]models.Monitor{"mon-1": baseMonitor()}}
	investigator := &fakeInvestigator{bundle: models.EvidenceBundle{InvestigationTier: models.TierT1}}
	analyzer := &fakeAnalyzer{analysis: baseAnalysis()}
	recorder := &fakeRecorder{err: errors.New("disk full")}

	e := New(monitors, investigator, analyzer, recorder, nil, zerolog.Nop())
	result := e.Run(t.Context(), baseIncident())

	require.NoError(t, result.Err)
	require.NotNil(t, result.Analysis)
}

func TestHandle_DoesNotPanicOnError(t *testing.T) {
	monitors := &fakeMonitors{monitors: map[string]models.Monitor{}}
	e := New(monitors, &fakeInvestigator{}, &fakeAnalyzer{}, nil, nil, zerolog.Nop())
	e.Handle(t.Context(), baseIncident())
}
