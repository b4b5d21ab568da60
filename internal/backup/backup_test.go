package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// fakeProvider implements Provider with overridable function fields.
// The zero value serves a single healthy repository with a couple of
// entities per class.
type fakeProvider struct {
	getRepository    func(ctx context.Context, ref RepositoryRef) (*RepoDescriptor, error)
	listRepositories func(ctx context.Context, owner string, isOrg bool) ([]RepoDescriptor, error)
	listIssues       func(ctx context.Context, ref RepositoryRef, page int) ([]Issue, int, error)
	listPullRequests func(ctx context.Context, ref RepositoryRef, page int) ([]PullRequest, int, error)
	listReleases     func(ctx context.Context, ref RepositoryRef, page int) ([]Release, int, error)
	createIssue      func(ctx context.Context, ref RepositoryRef, issue Issue) error
	createLabel      func(ctx context.Context, ref RepositoryRef, label Label) error
	createRelease    func(ctx context.Context, ref RepositoryRef, release Release) error
}

func (p *fakeProvider) GetRepository(ctx context.Context, ref RepositoryRef) (*RepoDescriptor, error) {
	if p.getRepository != nil {
		return p.getRepository(ctx, ref)
	}
	return &RepoDescriptor{
		Owner:         ref.Owner,
		Name:          ref.Name,
		FullName:      ref.String(),
		CloneURL:      "https://example.invalid/" + ref.String() + ".git",
		DefaultBranch: "main",
	}, nil
}

func (p *fakeProvider) ListRepositories(ctx context.Context, owner string, isOrg bool) ([]RepoDescriptor, error) {
	if p.listRepositories != nil {
		return p.listRepositories(ctx, owner, isOrg)
	}
	return []RepoDescriptor{{Owner: owner, Name: "widgets"}}, nil
}

func (p *fakeProvider) ListIssues(ctx context.Context, ref RepositoryRef, page int) ([]Issue, int, error) {
	if p.listIssues != nil {
		return p.listIssues(ctx, ref, page)
	}
	return []Issue{
		{Number: 2, Title: "second", Labels: []string{"bug"}},
		{Number: 1, Title: "first", Labels: []string{"bug", "help wanted"}},
	}, 0, nil
}

func (p *fakeProvider) ListPullRequests(ctx context.Context, ref RepositoryRef, page int) ([]PullRequest, int, error) {
	if p.listPullRequests != nil {
		return p.listPullRequests(ctx, ref, page)
	}
	return []PullRequest{{Number: 3, Title: "a change", Head: "feature", Base: "main"}}, 0, nil
}

func (p *fakeProvider) ListReleases(ctx context.Context, ref RepositoryRef, page int) ([]Release, int, error) {
	if p.listReleases != nil {
		return p.listReleases(ctx, ref, page)
	}
	return []Release{{TagName: "v1.0.0", Name: "one"}}, 0, nil
}

func (p *fakeProvider) CreateIssue(ctx context.Context, ref RepositoryRef, issue Issue) error {
	if p.createIssue != nil {
		return p.createIssue(ctx, ref, issue)
	}
	return nil
}

func (p *fakeProvider) CreateLabel(ctx context.Context, ref RepositoryRef, label Label) error {
	if p.createLabel != nil {
		return p.createLabel(ctx, ref, label)
	}
	return nil
}

func (p *fakeProvider) CreateRelease(ctx context.Context, ref RepositoryRef, release Release) error {
	if p.createRelease != nil {
		return p.createRelease(ctx, ref, release)
	}
	return nil
}

func (p *fakeProvider) RateLimit(ctx context.Context) (RateLimit, error) {
	return RateLimit{Limit: 5000, Remaining: 4999, ResetAt: time.Now().Add(time.Hour)}, nil
}

// fakeWorkspace implements Workspace on plain directories: a "mirror"
// is a directory with a refs file, a checkout is a copy of it.
type fakeWorkspace struct {
	mirrorErr   error
	checkoutErr error
	refs        []Ref
}

func defaultRefs() []Ref {
	return []Ref{
		{Name: "refs/heads/main", Hash: "aaaa"},
		{Name: "refs/tags/v1.0.0", Hash: "bbbb"},
	}
}

func (w *fakeWorkspace) writeRefs(dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	refs := w.refs
	if refs == nil {
		refs = defaultRefs()
	}
	var content string
	for _, ref := range refs {
		content += fmt.Sprintf("%s %s\n", ref.Hash, ref.Name)
	}
	return os.WriteFile(filepath.Join(dest, "packed-refs"), []byte(content), 0o644)
}

func (w *fakeWorkspace) MirrorClone(ctx context.Context, url, dest string) error {
	if w.mirrorErr != nil {
		return w.mirrorErr
	}
	return w.writeRefs(dest)
}

func (w *fakeWorkspace) CloneFromMirror(ctx context.Context, mirrorPath, dest string) error {
	if w.checkoutErr != nil {
		return w.checkoutErr
	}
	if _, err := os.Stat(mirrorPath); err != nil {
		return fmt.Errorf("%w: mirror missing at %s", ErrSourceUnavailable, mirrorPath)
	}
	// git refuses to clone into a non-empty directory.
	if entries, err := os.ReadDir(dest); err == nil && len(entries) > 0 {
		return fmt.Errorf("destination path %q already exists and is not an empty directory", dest)
	}
	return w.writeRefs(dest)
}

func (w *fakeWorkspace) Fetch(ctx context.Context, path string) error { return nil }

func (w *fakeWorkspace) ListRefs(ctx context.Context, path string) ([]Ref, error) {
	if w.refs != nil {
		return w.refs, nil
	}
	return defaultRefs(), nil
}

func (w *fakeWorkspace) IsDirty(ctx context.Context, path string) (bool, error) { return false, nil }

func (w *fakeWorkspace) ActiveBranch(ctx context.Context, path string) (string, error) {
	return "main", nil
}
