// Package github adapts the GitHub REST API to the backup.Provider
// interface. All GitHub-specific status codes are translated into the
// backup error taxonomy here; nothing provider-specific leaks past
// this package.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/kebairia/ghbackup/internal/backup"
)

const defaultPerPage = 100

// Option overrides a Client default.
type Option func(*Client)

// WithPerPage sets the page size for listing calls.
func WithPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.perPage = n
		}
	}
}

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.api.BaseURL = u
		}
	}
}

// Client implements backup.Provider against the GitHub REST API. It is
// stateless per call and safe for concurrent use.
type Client struct {
	api     *gh.Client
	perPage int
}

var _ backup.Provider = (*Client)(nil)

// NewClient returns a provider authenticated with a personal access
// token.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty GitHub token", backup.ErrAuth)
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	c := &Client{
		api:     gh.NewClient(httpClient),
		perPage: defaultPerPage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// mapError translates go-github failures into the backup taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		// Quota exhaustion is transient: it heals at the reset time.
		return fmt.Errorf("%w: %v", backup.ErrNetwork, err)
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch code := ghErr.Response.StatusCode; {
		case code == 401 || code == 403:
			return fmt.Errorf("%w: %v", backup.ErrAuth, err)
		case code == 404 || code == 410:
			return fmt.Errorf("%w: %v", backup.ErrSourceUnavailable, err)
		case code == 422:
			return fmt.Errorf("%w: %v", backup.ErrInvalidIdentifier, err)
		case code >= 500:
			return fmt.Errorf("%w: %v", backup.ErrNetwork, err)
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", backup.ErrNetwork, err)
	}
	return err
}

// GetRepository fetches one repository descriptor.
func (c *Client) GetRepository(ctx context.Context, ref backup.RepositoryRef) (*backup.RepoDescriptor, error) {
	repo, _, err := c.api.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, mapError(err)
	}
	desc := toDescriptor(repo)
	return &desc, nil
}

// ListRepositories lists every repository of a user or organization,
// paginating to exhaustion.
func (c *Client) ListRepositories(ctx context.Context, owner string, isOrg bool) ([]backup.RepoDescriptor, error) {
	var descs []backup.RepoDescriptor
	page := 1
	for {
		var (
			repos []*gh.Repository
			resp  *gh.Response
			err   error
		)
		if isOrg {
			opts := &gh.RepositoryListByOrgOptions{
				ListOptions: gh.ListOptions{Page: page, PerPage: c.perPage},
			}
			repos, resp, err = c.api.Repositories.ListByOrg(ctx, owner, opts)
		} else {
			opts := &gh.RepositoryListByUserOptions{
				ListOptions: gh.ListOptions{Page: page, PerPage: c.perPage},
			}
			repos, resp, err = c.api.Repositories.ListByUser(ctx, owner, opts)
		}
		if err != nil {
			return nil, mapError(err)
		}
		for _, repo := range repos {
			descs = append(descs, toDescriptor(repo))
		}
		if resp.NextPage == 0 {
			return descs, nil
		}
		page = resp.NextPage
	}
}

// ListIssues returns one page of issues. Pull requests surfaced
// through the issues API are filtered out; they have their own class.
func (c *Client) ListIssues(ctx context.Context, ref backup.RepositoryRef, page int) ([]backup.Issue, int, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		ListOptions: gh.ListOptions{Page: page, PerPage: c.perPage},
	}
	issues, resp, err := c.api.Issues.ListByRepo(ctx, ref.Owner, ref.Name, opts)
	if err != nil {
		return nil, 0, mapError(err)
	}

	out := make([]backup.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		out = append(out, toIssue(issue))
	}
	return out, resp.NextPage, nil
}

// ListPullRequests returns one page of pull requests.
func (c *Client) ListPullRequests(ctx context.Context, ref backup.RepositoryRef, page int) ([]backup.PullRequest, int, error) {
	opts := &gh.PullRequestListOptions{
		State:       "all",
		ListOptions: gh.ListOptions{Page: page, PerPage: c.perPage},
	}
	prs, resp, err := c.api.PullRequests.List(ctx, ref.Owner, ref.Name, opts)
	if err != nil {
		return nil, 0, mapError(err)
	}

	out := make([]backup.PullRequest, 0, len(prs))
	for _, pr := range prs {
		out = append(out, toPullRequest(pr))
	}
	return out, resp.NextPage, nil
}

// ListReleases returns one page of releases.
func (c *Client) ListReleases(ctx context.Context, ref backup.RepositoryRef, page int) ([]backup.Release, int, error) {
	opts := &gh.ListOptions{Page: page, PerPage: c.perPage}
	releases, resp, err := c.api.Repositories.ListReleases(ctx, ref.Owner, ref.Name, opts)
	if err != nil {
		return nil, 0, mapError(err)
	}

	out := make([]backup.Release, 0, len(releases))
	for _, release := range releases {
		out = append(out, toRelease(release))
	}
	return out, resp.NextPage, nil
}

// CreateIssue recreates one issue during metadata replay. Issue
// numbers cannot be preserved; the original number is prepended to the
// body for traceability.
func (c *Client) CreateIssue(ctx context.Context, ref backup.RepositoryRef, issue backup.Issue) error {
	body := fmt.Sprintf("_Restored from backup, originally #%d._\n\n%s", issue.Number, issue.Body)
	req := &gh.IssueRequest{
		Title:  gh.String(issue.Title),
		Body:   gh.String(body),
		Labels: &issue.Labels,
	}
	_, _, err := c.api.Issues.Create(ctx, ref.Owner, ref.Name, req)
	return mapError(err)
}

// CreateLabel recreates one label; an already-existing label is not an
// error.
func (c *Client) CreateLabel(ctx context.Context, ref backup.RepositoryRef, label backup.Label) error {
	ghLabel := &gh.Label{
		Name:        gh.String(label.Name),
		Description: gh.String(label.Description),
	}
	if label.Color != "" {
		ghLabel.Color = gh.String(label.Color)
	}
	_, _, err := c.api.Issues.CreateLabel(ctx, ref.Owner, ref.Name, ghLabel)
	if err != nil && errors.Is(mapError(err), backup.ErrInvalidIdentifier) {
		return nil // 422 already_exists
	}
	return mapError(err)
}

// CreateRelease recreates one release (without binary assets).
func (c *Client) CreateRelease(ctx context.Context, ref backup.RepositoryRef, release backup.Release) error {
	req := &gh.RepositoryRelease{
		TagName:    gh.String(release.TagName),
		Name:       gh.String(release.Name),
		Body:       gh.String(release.Body),
		Draft:      gh.Bool(release.Draft),
		Prerelease: gh.Bool(release.Prerelease),
	}
	_, _, err := c.api.Repositories.CreateRelease(ctx, ref.Owner, ref.Name, req)
	return mapError(err)
}

// RateLimit returns the core API quota state.
func (c *Client) RateLimit(ctx context.Context) (backup.RateLimit, error) {
	limits, _, err := c.api.RateLimit.Get(ctx)
	if err != nil {
		return backup.RateLimit{}, mapError(err)
	}
	core := limits.GetCore()
	return backup.RateLimit{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
	}, nil
}
