// Package codesearch implements the code-search adapter: a single
// search call against a code-search backend, with client-side
// filePatterns glob filtering via github.com/IGLOU-EU/go-wildcard/v2
// and per-query result caching.
package codesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/cache"
	"github.com/sentinel-ops/incident-pilot/internal/errkind"
	"github.com/sentinel-ops/incident-pilot/internal/models"
	"github.com/sentinel-ops/incident-pilot/internal/retry"
)

// patternExtractors are the ordered regexes for deriving a search
// pattern from an error message, tried in order.
var patternExtractors = []*regexp.Regexp{
	regexp.MustCompile(`(\w+Error):`),
	regexp.MustCompile(`at (\w+)\.`),
	regexp.MustCompile(`function (\w+)`),
	regexp.MustCompile(`class (\w+)`),
	regexp.MustCompile(`method (\w+)`),
}

// PatternFromErrorMessage tries each ordered regex in turn, falling
// back to the first word longer than 5 characters.
func PatternFromErrorMessage(message string) (string, bool) {
	for _, re := range patternExtractors {
		if m := re.FindStringSubmatch(message); m != nil {
			return m[1], true
		}
	}
	for _, word := range strings.Fields(message) {
		trimmed := strings.Trim(word, ".,:;()[]{}\"'")
		if len(trimmed) > 5 {
			return trimmed, true
		}
	}
	return "", false
}

// Params scopes a search request.
type Params struct {
	Pattern      string
	Repositories []string
	ExcludeTests bool
	FilePatterns []string
	MaxResults   int
}

// Result is the normalized search response.
type Result struct {
	AffectedRepositories []string           `json:"affectedRepositories"`
	TotalMatchCount      int                `json:"totalMatchCount"`
	CriticalPaths        []string           `json:"criticalPaths"`
	Matches              []models.CodeMatch `json:"matches"`
}

// Adapter queries a code-search backend over HTTP.
type Adapter struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	cache     cache.Cache
	resultTTL time.Duration
	logger    zerolog.Logger
}

// New builds a code-search adapter. c may be nil to disable result
// caching.
func New(baseURL, apiKey string, timeout time.Duration, c cache.Cache, resultTTL time.Duration, logger zerolog.Logger) *Adapter {
	if resultTTL <= 0 {
		resultTTL = 15 * time.Minute
	}
	return &Adapter{
		baseURL:   baseURL,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: timeout},
		cache:     c,
		resultTTL: resultTTL,
		logger:    logger.With().Str("component", "adapters.codesearch").Logger(),
	}
}

// Search issues the search request, then narrows the match set
// client-side by FilePatterns (glob, via go-wildcard) when provided --
// the upstream backend is not assumed to support glob filtering itself.
// The unfiltered backend result is cached per (pattern, repositories)
// so repeated incidents with the same error signature don't re-query
// the search backend within the TTL window.
func (a *Adapter) Search(ctx context.Context, p Params) (Result, error) {
	var result Result

	key := cache.CodeSearchKey(p.Pattern, p.Repositories)
	cached := false
	if a.cache != nil {
		if raw, found, err := a.cache.Get(ctx, key); err == nil && found {
			if json.Unmarshal([]byte(raw), &result) == nil {
				cached = true
			}
		}
	}

	if !cached {
		values := url.Values{"pattern": {p.Pattern}}
		for _, r := range p.Repositories {
			values.Add("repository", r)
		}
		if p.ExcludeTests {
			values.Set("exclude_tests", "true")
		}
		if p.MaxResults > 0 {
			values.Set("max_results", fmt.Sprintf("%d", p.MaxResults))
		}

		if err := a.get(ctx, "/search", values, &result); err != nil {
			return Result{}, err
		}
		if a.cache != nil {
			if raw, err := json.Marshal(result); err == nil {
				_ = a.cache.SetEx(ctx, key, a.resultTTL, string(raw))
			}
		}
	}

	if len(p.FilePatterns) > 0 {
		result.Matches = filterByFilePatterns(result.Matches, p.FilePatterns)
		result.TotalMatchCount = len(result.Matches)
	}
	return result, nil
}

func filterByFilePatterns(matches []models.CodeMatch, patterns []string) []models.CodeMatch {
	out := make([]models.CodeMatch, 0, len(matches))
	for _, m := range matches {
		for _, pattern := range patterns {
			if wildcard.Match(pattern, m.FilePath) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func (a *Adapter) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := a.baseURL + path + "?" + query.Encode()

	return retry.Do(ctx, retry.DefaultPolicy(), isTransient, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errkind.NewProgrammer("build codesearch request", err)
		}
		if a.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.apiKey)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return errkind.NewTransientExternal("codesearch request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return errkind.NewTransientExternal(fmt.Sprintf("codesearch backend returned %d", resp.StatusCode), nil)
		}
		if resp.StatusCode >= 400 {
			return errkind.NewDegradedExternal(fmt.Sprintf("codesearch backend returned %d", resp.StatusCode), nil)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errkind.NewDegradedExternal("decode codesearch response", err)
		}
		return nil
	})
}

func isTransient(err error) bool {
	ek, ok := errkind.Of(err)
	return ok && ek.Kind == errkind.TransientExternal
}
