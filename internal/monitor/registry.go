// Package monitor implements the monitor registry: loading,
// validating, and serving the set of enabled monitor configurations,
// with hot reload on file change.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/errkind"
	"github.com/sentinel-ops/incident-pilot/internal/models"
)

var timeWindowPattern = regexp.MustCompile(`^(\d+)([mh])$`)

// ParseTimeWindow parses a monitor's timeWindow string (already
// validated by Load) into a duration. Only called with strings that
// matched timeWindowPattern at load time.
func ParseTimeWindow(s string) (time.Duration, error) {
	m := timeWindowPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("timeWindow %q does not match ^\\d+[mh]$", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, err
	}
	unit := time.Minute
	if m[2] == "h" {
		unit = time.Hour
	}
	return time.Duration(n) * unit, nil
}

// document is the top-level shape of the monitor configuration file.
type document struct {
	Monitors []models.Monitor `json:"monitors"`
}

// Registry loads, validates, and serves monitor configurations. The
// loader is the single writer; Get/List/ListEnabled are safe for
// concurrent readers, and reloads swap the snapshot atomically so
// readers never see a torn set.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]models.Monitor
	ordered  []models.Monitor
	path     string
	validate *validator.Validate
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onReload func(count int)
}

// New creates a registry bound to a monitor configuration file path.
// Load() must be called before first use.
func New(path string, logger zerolog.Logger) *Registry {
	return &Registry{
		path:     path,
		validate: validator.New(),
		logger:   logger.With().Str("component", "monitor_registry").Logger(),
	}
}

// OnReload registers a callback invoked after every successful load,
// receiving the number of monitors loaded.
func (r *Registry) OnReload(fn func(count int)) {
	r.onReload = fn
}

// Load parses the configuration document, validating every entry. On
// any validation error the load fails atomically: the previous
// snapshot (if any) remains in effect.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return errkind.NewConfiguration("failed to read monitor config", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return errkind.NewConfiguration("failed to parse monitor config", err)
	}

	byID := make(map[string]models.Monitor, len(doc.Monitors))
	for _, m := range doc.Monitors {
		if err := r.validateMonitor(m); err != nil {
			return errkind.NewConfiguration(fmt.Sprintf("monitor %q invalid", m.ID), err)
		}
		if _, dup := byID[m.ID]; dup {
			return errkind.NewConfiguration(fmt.Sprintf("duplicate monitor id %q", m.ID), nil)
		}
		byID[m.ID] = m
	}

	r.mu.Lock()
	r.byID = byID
	r.ordered = doc.Monitors
	r.mu.Unlock()

	r.logger.Info().Int("count", len(doc.Monitors)).Msg("monitors reloaded")
	if r.onReload != nil {
		r.onReload(len(doc.Monitors))
	}
	return nil
}

// Reload has the same no-partial-application contract as Load.
func (r *Registry) Reload() error {
	return r.Load()
}

func (r *Registry) validateMonitor(m models.Monitor) error {
	if err := r.validate.Struct(m); err != nil {
		return err
	}
	if m.Threshold.Critical < m.Threshold.Warning {
		return fmt.Errorf("threshold.critical (%v) must be >= threshold.warning (%v)", m.Threshold.Critical, m.Threshold.Warning)
	}
	if m.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("checkIntervalSeconds must be > 0")
	}
	if !timeWindowPattern.MatchString(m.TimeWindow) {
		return fmt.Errorf("timeWindow %q does not match ^\\d+[mh]$", m.TimeWindow)
	}
	return nil
}

// Get returns the monitor with the given id, or (zero, false) if absent.
func (r *Registry) Get(id string) (models.Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	return m, ok
}

// List returns every loaded monitor, enabled or not.
func (r *Registry) List() []models.Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Monitor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ListEnabled returns only monitors with Enabled == true.
func (r *Registry) ListEnabled() []models.Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Monitor, 0, len(r.ordered))
	for _, m := range r.ordered {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// Watch starts an fsnotify watch on the configuration file's directory,
// calling Reload whenever the file is written. The caller should defer
// Close. Watch failures are logged, not fatal -- hot reload is a
// convenience, not a correctness requirement.
func (r *Registry) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errkind.NewConfiguration("failed to create config watcher", err)
	}
	r.watcher = w

	dir := filepath.Dir(r.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return errkind.NewConfiguration("failed to watch config directory", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name != r.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.Reload(); err != nil {
					r.logger.Warn().Err(err).Msg("hot reload failed, keeping previous monitor set")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn().Err(err).Msg("monitor config watcher error")
			}
		}
	}()
	return nil
}

// Close stops the hot-reload watcher, if running.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
