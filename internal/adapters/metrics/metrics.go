// Package metrics implements the metrics adapter: HTTP queries against
// the metrics/error-tracking/deployment-event backend. The transport
// caches DNS lookups, since repeated polling of the same few hosts
// should not re-resolve every tick.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/errkind"
	"github.com/sentinel-ops/incident-pilot/internal/models"
	"github.com/sentinel-ops/incident-pilot/internal/retry"
)

// Adapter queries the metrics backend over HTTP.
type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// New builds a metrics adapter with a DNS-cached HTTP transport.
func New(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Adapter {
	resolver := &dnscache.Resolver{}
	go refreshDNSCachePeriodically(resolver, 5*time.Minute)

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return dialer.DialContext(ctx, network, addr)
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil || len(ips) == 0 {
				return dialer.DialContext(ctx, network, addr)
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		},
	}

	return &Adapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout, Transport: transport},
		logger:  logger.With().Str("component", "adapters.metrics").Logger(),
	}
}

func refreshDNSCachePeriodically(resolver *dnscache.Resolver, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		resolver.Refresh(true)
	}
}

// QueryMetrics implements the required `queryMetrics` collaborator.
func (a *Adapter) QueryMetrics(ctx context.Context, query string, fromUnix, toUnix int64) ([]models.MetricSample, error) {
	var samples []models.MetricSample
	if err := a.get(ctx, "/query", url.Values{
		"q":    {query},
		"from": {strconv.FormatInt(fromUnix, 10)},
		"to":   {strconv.FormatInt(toUnix, 10)},
	}, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// ErrorSample is the wire shape for a single error-tracking event.
type ErrorSample struct {
	Message    string `json:"message"`
	StackTrace string `json:"stackTrace"`
}

// QueryErrorTracking implements the required `queryErrorTracking` collaborator.
func (a *Adapter) QueryErrorTracking(ctx context.Context, query string, fromUnix, toUnix int64) ([]ErrorSample, error) {
	var errs []ErrorSample
	if err := a.get(ctx, "/errors", url.Values{
		"q":    {query},
		"from": {strconv.FormatInt(fromUnix, 10)},
		"to":   {strconv.FormatInt(toUnix, 10)},
	}, &errs); err != nil {
		return nil, err
	}
	return errs, nil
}

// QueryDeploymentEvents implements the optional `queryDeploymentEvents`
// collaborator: it returns an empty slice, not an error, on failure.
func (a *Adapter) QueryDeploymentEvents(ctx context.Context, tags []string, fromUnix, toUnix int64) []models.DeploymentEvent {
	values := url.Values{"from": {strconv.FormatInt(fromUnix, 10)}, "to": {strconv.FormatInt(toUnix, 10)}}
	for _, t := range tags {
		values.Add("tag", t)
	}

	var events []models.DeploymentEvent
	if err := a.get(ctx, "/deployments", values, &events); err != nil {
		a.logger.Warn().Err(err).Msg("deployment event query failed, returning empty")
		return nil
	}
	return events
}

// get issues a GET request under the shared transient-error retry
// policy; 4xx responses are degraded, not retried.
func (a *Adapter) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := a.baseURL + path + "?" + query.Encode()

	return retry.Do(ctx, retry.DefaultPolicy(), isTransient, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errkind.NewProgrammer("build metrics request", err)
		}
		if a.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.apiKey)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return errkind.NewTransientExternal("metrics request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return errkind.NewTransientExternal(fmt.Sprintf("metrics backend returned %d", resp.StatusCode), nil)
		}
		if resp.StatusCode >= 400 {
			return errkind.NewDegradedExternal(fmt.Sprintf("metrics backend returned %d", resp.StatusCode), nil)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errkind.NewDegradedExternal("decode metrics response", err)
		}
		return nil
	})
}

// isTransient reports whether err should be retried: only
// errkind.TransientExternal qualifies.
func isTransient(err error) bool {
	ek, ok := errkind.Of(err)
	return ok && ek.Kind == errkind.TransientExternal
}
