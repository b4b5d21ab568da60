package backup

import (
	"context"
	"fmt"

	"github.com/kebairia/ghbackup/internal/logger"
)

// Snapshotter pulls a bounded, paginated export of one repository's
// metadata from the remote provider, one entity class at a time.
type Snapshotter struct {
	provider Provider
	pageCap  int
	retries  int
	log      logger.Logger
}

// NewSnapshotter returns a metadata snapshotter. pageCap bounds how
// many pages are fetched per entity class; an export cut off by the
// cap is marked truncated, never silently shortened.
func NewSnapshotter(provider Provider, pageCap, retries int, log logger.Logger) *Snapshotter {
	return &Snapshotter{provider: provider, pageCap: pageCap, retries: retries, log: log}
}

// paginate walks a provider listing until exhaustion or the page cap.
// Transient failures retry with backoff; hitting the cap stops cleanly
// with truncated=true.
func paginate[T any](ctx context.Context, pageCap, retries int, list func(page int) ([]T, int, error)) ([]T, bool, error) {
	var all []T
	page := 1
	for fetched := 0; ; fetched++ {
		if pageCap > 0 && fetched >= pageCap {
			return all, true, nil
		}
		var (
			items []T
			next  int
		)
		err := withRetry(ctx, retries, func() error {
			var err error
			items, next, err = list(page)
			return err
		})
		if err != nil {
			return nil, false, err
		}
		all = append(all, items...)
		if next == 0 {
			return all, false, nil
		}
		page = next
	}
}

// SnapshotRepository exports the repository descriptor. The descriptor
// is also what the content snapshotter needs (clone URL, default
// branch), so a class-level failure here cascades further than the
// other classes.
func (s *Snapshotter) SnapshotRepository(ctx context.Context, ref RepositoryRef) (*Artifact, *RepoDescriptor, error) {
	var desc *RepoDescriptor
	err := withRetry(ctx, s.retries, func() error {
		var err error
		desc, err = s.provider.GetRepository(ctx, ref)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch repository descriptor for %s: %w", ref, err)
	}
	return &Artifact{
		EntityClass:  ClassRepository,
		FetchedCount: 1,
		Entities:     []*RepoDescriptor{desc},
	}, desc, nil
}

// SnapshotIssues exports all issues, newest first, in provider-return
// order.
func (s *Snapshotter) SnapshotIssues(ctx context.Context, ref RepositoryRef) (*Artifact, error) {
	issues, truncated, err := paginate(ctx, s.pageCap, s.retries, func(page int) ([]Issue, int, error) {
		return s.provider.ListIssues(ctx, ref, page)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch issues for %s: %w", ref, err)
	}
	s.log.Debug("issues fetched", "repository", ref.String(), "count", len(issues), "truncated", truncated)
	return &Artifact{
		EntityClass:  ClassIssues,
		FetchedCount: len(issues),
		Truncated:    truncated,
		Entities:     issues,
	}, nil
}

// SnapshotPullRequests exports all pull requests.
func (s *Snapshotter) SnapshotPullRequests(ctx context.Context, ref RepositoryRef) (*Artifact, error) {
	prs, truncated, err := paginate(ctx, s.pageCap, s.retries, func(page int) ([]PullRequest, int, error) {
		return s.provider.ListPullRequests(ctx, ref, page)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pull requests for %s: %w", ref, err)
	}
	s.log.Debug("pull requests fetched", "repository", ref.String(), "count", len(prs), "truncated", truncated)
	return &Artifact{
		EntityClass:  ClassPullRequests,
		FetchedCount: len(prs),
		Truncated:    truncated,
		Entities:     prs,
	}, nil
}

// SnapshotReleases exports all releases.
func (s *Snapshotter) SnapshotReleases(ctx context.Context, ref RepositoryRef) (*Artifact, error) {
	releases, truncated, err := paginate(ctx, s.pageCap, s.retries, func(page int) ([]Release, int, error) {
		return s.provider.ListReleases(ctx, ref, page)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch releases for %s: %w", ref, err)
	}
	s.log.Debug("releases fetched", "repository", ref.String(), "count", len(releases), "truncated", truncated)
	return &Artifact{
		EntityClass:  ClassReleases,
		FetchedCount: len(releases),
		Truncated:    truncated,
		Entities:     releases,
	}, nil
}
