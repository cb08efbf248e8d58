// Package scm implements the source-control adapter: a GitLab REST
// client providing commit listing, diffs, pipeline status, and merge
// request lookup for the investigation orchestrator's git collector.
// Authenticated via golang.org/x/oauth2's StaticTokenSource wrapping a
// configured personal-access-token as a bearer credential.
package scm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/cache"
	"github.com/sentinel-ops/incident-pilot/internal/errkind"
	"github.com/sentinel-ops/incident-pilot/internal/models"
	"github.com/sentinel-ops/incident-pilot/internal/retry"
)

// CommitsParams scopes a commit listing request.
type CommitsParams struct {
	Repository string
	Since      time.Time
	Until      time.Time
	PerPage    int
}

// Pipeline is the best-effort pipeline status for a commit.
type Pipeline struct {
	Status string `json:"status"`
	WebURL string `json:"web_url"`
}

// MergeRequest is the best-effort merge request associated with a commit.
type MergeRequest struct {
	Title  string `json:"title"`
	WebURL string `json:"web_url"`
	State  string `json:"state"`
}

// Adapter queries a GitLab-compatible REST API.
type Adapter struct {
	baseURL     string
	client      *http.Client
	cache       cache.Cache
	repoMetaTTL time.Duration
	logger      zerolog.Logger
}

// New builds a source-control adapter authenticated with a static
// personal-access-token bearer credential. c may be nil, in which case
// repository metadata is not cached and every call addresses projects
// by their URL-escaped path.
func New(baseURL, token string, timeout time.Duration, c cache.Cache, repoMetaTTL time.Duration, logger zerolog.Logger) *Adapter {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = timeout

	if repoMetaTTL <= 0 {
		repoMetaTTL = time.Hour
	}
	return &Adapter{
		baseURL:     baseURL,
		client:      httpClient,
		cache:       c,
		repoMetaTTL: repoMetaTTL,
		logger:      logger.With().Str("component", "adapters.scm").Logger(),
	}
}

// projectMeta is the subset of GitLab project metadata worth caching.
type projectMeta struct {
	ID            int    `json:"id"`
	DefaultBranch string `json:"default_branch"`
	WebURL        string `json:"web_url"`
}

// projectRef resolves a repository path to the identifier used in API
// URLs. With a cache configured, the project's metadata is fetched once
// per TTL window and later calls address the project by numeric id;
// any metadata failure falls back to the escaped path form.
func (a *Adapter) projectRef(ctx context.Context, repository string) string {
	escaped := url.PathEscape(repository)
	if a.cache == nil {
		return escaped
	}

	key := cache.RepoMetaKey(repository)
	if raw, found, err := a.cache.Get(ctx, key); err == nil && found {
		var m projectMeta
		if json.Unmarshal([]byte(raw), &m) == nil && m.ID != 0 {
			return strconv.Itoa(m.ID)
		}
	}

	var m projectMeta
	if err := a.get(ctx, "/projects/"+escaped, nil, &m); err != nil || m.ID == 0 {
		return escaped
	}
	if raw, err := json.Marshal(m); err == nil {
		_ = a.cache.SetEx(ctx, key, a.repoMetaTTL, string(raw))
	}
	return strconv.Itoa(m.ID)
}

// commitWire is the GitLab commit wire shape, reduced to the fields the
// scorer needs; FilesChanged/Additions/Deletions are populated
// separately via GetCommitDiff when diffs are requested.
type commitWire struct {
	ID            string    `json:"id"`
	Message       string    `json:"message"`
	AuthorName    string    `json:"author_name"`
	CommittedDate time.Time `json:"committed_date"`
}

// GetCommits lists commits in [since, until] for a repository, newest first.
func (a *Adapter) GetCommits(ctx context.Context, p CommitsParams) ([]models.ScoredCommit, error) {
	perPage := p.PerPage
	if perPage <= 0 {
		perPage = 20
	}

	var wire []commitWire
	path := fmt.Sprintf("/projects/%s/repository/commits", a.projectRef(ctx, p.Repository))
	if err := a.get(ctx, path, url.Values{
		"since":    {p.Since.UTC().Format(time.RFC3339)},
		"until":    {p.Until.UTC().Format(time.RFC3339)},
		"per_page": {strconv.Itoa(perPage)},
	}, &wire); err != nil {
		return nil, err
	}

	commits := make([]models.ScoredCommit, len(wire))
	for i, c := range wire {
		commits[i] = models.ScoredCommit{
			SHA:        c.ID,
			Message:    c.Message,
			Author:     c.AuthorName,
			Timestamp:  c.CommittedDate,
			Repository: p.Repository,
		}
	}
	return commits, nil
}

// diffWire is one file entry in a GitLab commit diff response.
type diffWire struct {
	NewPath     string `json:"new_path"`
	OldPath     string `json:"old_path"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"new_file"`
	DeletedFile bool   `json:"deleted_file"`
}

// GetCommitDiff fetches the changed files and approximate
// additions/deletions for a single commit.
func (a *Adapter) GetCommitDiff(ctx context.Context, repository, sha string) ([]string, int, int, error) {
	var wire []diffWire
	path := fmt.Sprintf("/projects/%s/repository/commits/%s/diff", a.projectRef(ctx, repository), url.PathEscape(sha))
	if err := a.get(ctx, path, nil, &wire); err != nil {
		return nil, 0, 0, err
	}

	files := make([]string, 0, len(wire))
	additions, deletions := 0, 0
	for _, d := range wire {
		filePath := d.NewPath
		if filePath == "" {
			filePath = d.OldPath
		}
		files = append(files, filePath)
		adds, dels := countDiffLines(d.Diff)
		additions += adds
		deletions += dels
	}
	return files, additions, deletions, nil
}

// countDiffLines approximates added/removed line counts from a unified
// diff body by counting '+'/'-' prefixed lines, excluding the file
// headers ("+++"/"---").
func countDiffLines(diff string) (additions, deletions int) {
	lines := splitLines(diff)
	for _, l := range lines {
		switch {
		case len(l) == 0:
			continue
		case l[0] == '+' && (len(l) < 2 || l[1] != '+'):
			additions++
		case l[0] == '-' && (len(l) < 2 || l[1] != '-'):
			deletions++
		}
	}
	return additions, deletions
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// GetPipelineForCommit is best-effort: it returns nil on any failure
// rather than an error.
func (a *Adapter) GetPipelineForCommit(ctx context.Context, repository, sha string) *Pipeline {
	var wire []Pipeline
	path := fmt.Sprintf("/projects/%s/repository/commits/%s/statuses", a.projectRef(ctx, repository), url.PathEscape(sha))
	if err := a.get(ctx, path, nil, &wire); err != nil || len(wire) == 0 {
		return nil
	}
	return &wire[0]
}

// GetMergeRequestForCommit is best-effort: it returns nil on any
// failure rather than an error.
func (a *Adapter) GetMergeRequestForCommit(ctx context.Context, repository, sha string) *MergeRequest {
	var wire []MergeRequest
	path := fmt.Sprintf("/projects/%s/repository/commits/%s/merge_requests", a.projectRef(ctx, repository), url.PathEscape(sha))
	if err := a.get(ctx, path, nil, &wire); err != nil || len(wire) == 0 {
		return nil
	}
	return &wire[0]
}

func (a *Adapter) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := a.baseURL + path
	if query != nil {
		endpoint += "?" + query.Encode()
	}

	return retry.Do(ctx, retry.DefaultPolicy(), isTransient, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errkind.NewProgrammer("build scm request", err)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return errkind.NewTransientExternal("scm request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return errkind.NewTransientExternal(fmt.Sprintf("scm backend returned %d", resp.StatusCode), nil)
		}
		if resp.StatusCode >= 400 {
			return errkind.NewDegradedExternal(fmt.Sprintf("scm backend returned %d", resp.StatusCode), nil)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errkind.NewDegradedExternal("decode scm response", err)
		}
		return nil
	})
}

func isTransient(err error) bool {
	ek, ok := errkind.Of(err)
	return ok && ek.Kind == errkind.TransientExternal
}
