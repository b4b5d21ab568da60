package backup

import (
	"context"
	"time"
)

// Entity class names, also used as metadata artifact file stems.
const (
	ClassRepository   = "repository"
	ClassIssues       = "issues"
	ClassPullRequests = "pull_requests"
	ClassReleases     = "releases"
)

// EntityClasses lists every metadata class a snapshot records, in the
// order they are fetched.
var EntityClasses = []string{ClassRepository, ClassIssues, ClassPullRequests, ClassReleases}

// RepoDescriptor is the provider-neutral view of a remote repository.
type RepoDescriptor struct {
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description,omitempty"`
	URL           string    `json:"url"`
	CloneURL      string    `json:"clone_url"`
	SSHURL        string    `json:"ssh_url"`
	DefaultBranch string    `json:"default_branch"`
	Language      string    `json:"language,omitempty"`
	SizeKB        int       `json:"size_kb"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	Watchers      int       `json:"watchers"`
	OpenIssues    int       `json:"open_issues"`
	Topics        []string  `json:"topics,omitempty"`
	Private       bool      `json:"private"`
	Archived      bool      `json:"archived"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	PushedAt      time.Time `json:"pushed_at"`
}

// Issue is one issue record. Pull requests surfaced through the issue
// listing are filtered out by the provider.
type Issue struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	State     string     `json:"state"`
	User      string     `json:"user"`
	Labels    []string   `json:"labels,omitempty"`
	Assignees []string   `json:"assignees,omitempty"`
	Comments  int        `json:"comments"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// PullRequest is one pull request record.
type PullRequest struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	State     string     `json:"state"`
	User      string     `json:"user"`
	Head      string     `json:"head"`
	Base      string     `json:"base"`
	Merged    bool       `json:"merged"`
	Comments  int        `json:"comments"`
	Commits   int        `json:"commits"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
}

// Release is one release record with its assets.
type Release struct {
	TagName     string         `json:"tag_name"`
	Name        string         `json:"name,omitempty"`
	Body        string         `json:"body,omitempty"`
	Draft       bool           `json:"draft"`
	Prerelease  bool           `json:"prerelease"`
	Author      string         `json:"author,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	Assets      []ReleaseAsset `json:"assets,omitempty"`
}

// ReleaseAsset is one downloadable artifact attached to a release.
type ReleaseAsset struct {
	Name          string `json:"name"`
	SizeBytes     int64  `json:"size_bytes"`
	DownloadCount int    `json:"download_count"`
	URL           string `json:"url"`
}

// Label is a repository label, replayed during restore.
type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// RateLimit is the provider's API quota state.
type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Provider is the narrow remote-repository interface the engine
// consumes. Implementations must map their own failure modes onto the
// taxonomy in errors.go and must be safe for concurrent use.
//
// Listing calls take a 1-based page and return the next page number,
// with 0 meaning exhausted.
type Provider interface {
	GetRepository(ctx context.Context, ref RepositoryRef) (*RepoDescriptor, error)
	ListRepositories(ctx context.Context, owner string, isOrg bool) ([]RepoDescriptor, error)
	ListIssues(ctx context.Context, ref RepositoryRef, page int) ([]Issue, int, error)
	ListPullRequests(ctx context.Context, ref RepositoryRef, page int) ([]PullRequest, int, error)
	ListReleases(ctx context.Context, ref RepositoryRef, page int) ([]Release, int, error)

	CreateIssue(ctx context.Context, ref RepositoryRef, issue Issue) error
	CreateLabel(ctx context.Context, ref RepositoryRef, label Label) error
	CreateRelease(ctx context.Context, ref RepositoryRef, release Release) error

	RateLimit(ctx context.Context) (RateLimit, error)
}

// Ref is one version-control reference in a repository.
type Ref struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// Workspace is the narrow local version-control interface: mirror
// cloning for backup, checkout materialization and inspection for
// restore.
type Workspace interface {
	MirrorClone(ctx context.Context, url, dest string) error
	CloneFromMirror(ctx context.Context, mirrorPath, dest string) error
	Fetch(ctx context.Context, path string) error
	ListRefs(ctx context.Context, path string) ([]Ref, error)
	IsDirty(ctx context.Context, path string) (bool, error)
	ActiveBranch(ctx context.Context, path string) (string, error)
}
