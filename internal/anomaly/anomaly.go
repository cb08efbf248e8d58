// Package anomaly implements the anomaly detector: applying a
// monitor's threshold policy (absolute / percentage / multiplier)
// against a baseline to yield a severity, or no anomaly at all.
package anomaly

import "github.com/sentinel-ops/incident-pilot/internal/models"

// Result is the outcome of a successful anomaly detection.
type Result struct {
	Severity            models.Severity
	ThresholdValue      float64
	DeviationPercentage float64
}

// Detect evaluates currentValue against baseline per the monitor's
// threshold policy. Returns (nil, false) if no anomaly fired.
//
// Division-by-zero baselines are treated as "no anomaly" unless the
// mode is absolute, since percentage/multiplier modes are undefined
// against a zero baseline.
func Detect(threshold models.Threshold, currentValue float64, baseline models.Baseline) (*Result, bool) {
	deviationPct := deviationPercentage(currentValue, baseline.AverageValue)

	switch threshold.Type {
	case models.ThresholdAbsolute:
		return detectAbsolute(threshold, currentValue, deviationPct)
	case models.ThresholdPercentage:
		if baseline.AverageValue == 0 {
			return nil, false
		}
		return detectPercentage(threshold, baseline.AverageValue, deviationPct)
	case models.ThresholdMultiplier:
		if baseline.AverageValue == 0 {
			return nil, false
		}
		return detectMultiplier(threshold, currentValue, baseline.AverageValue, deviationPct)
	default:
		return nil, false
	}
}

func deviationPercentage(current, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (current - baseline) / baseline * 100
}

func detectAbsolute(t models.Threshold, current, deviationPct float64) (*Result, bool) {
	if current > t.Critical {
		return &Result{Severity: models.SeverityCritical, ThresholdValue: t.Critical, DeviationPercentage: deviationPct}, true
	}
	if current > t.Warning {
		return &Result{Severity: models.SeverityHigh, ThresholdValue: t.Warning, DeviationPercentage: deviationPct}, true
	}
	return nil, false
}

func detectPercentage(t models.Threshold, baselineAvg, deviationPct float64) (*Result, bool) {
	abs := deviationPct
	if abs < 0 {
		abs = -abs
	}
	thresholdValue := baselineAvg * (1 + t.Critical/100)
	switch {
	case abs > t.Critical:
		return &Result{Severity: models.SeverityCritical, ThresholdValue: thresholdValue, DeviationPercentage: deviationPct}, true
	case abs > t.Warning:
		return &Result{Severity: models.SeverityHigh, ThresholdValue: thresholdValue, DeviationPercentage: deviationPct}, true
	default:
		return nil, false
	}
}

func detectMultiplier(t models.Threshold, current, baselineAvg, deviationPct float64) (*Result, bool) {
	ratio := current / baselineAvg
	switch {
	case ratio > t.Critical:
		return &Result{Severity: models.SeverityCritical, ThresholdValue: baselineAvg * t.Critical, DeviationPercentage: deviationPct}, true
	case ratio > t.Warning:
		return &Result{Severity: models.SeverityHigh, ThresholdValue: baselineAvg * t.Critical, DeviationPercentage: deviationPct}, true
	default:
		return nil, false
	}
}
