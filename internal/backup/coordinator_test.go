package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/ghbackup/internal/logger"
)

func newTestCoordinator(t *testing.T, provider Provider, workspace Workspace, opts Options) (*Coordinator, *PathResolver) {
	t.Helper()
	resolver, err := NewPathResolver(t.TempDir())
	require.NoError(t, err)
	return NewCoordinator(provider, workspace, resolver, opts, logger.Nop()), resolver
}

func TestBackupCommitsCleanSnapshot(t *testing.T) {
	coord, resolver := newTestCoordinator(t, &fakeProvider{}, &fakeWorkspace{}, Options{})
	ref := RepositoryRef{Owner: "acme", Name: "widgets"}

	manifest, err := coord.Backup(context.Background(), ref)
	require.NoError(t, err)
	require.True(t, manifest.Committed())
	assert.True(t, manifest.Clean())
	assert.Equal(t, StateComplete, manifest.ContentState)
	assert.Equal(t, "main", manifest.SourceDefaultBranch)
	assert.Equal(t, 2, manifest.EntityCounts[ClassIssues])
	assert.Equal(t, 1, manifest.EntityCounts[ClassPullRequests])

	dir, err := resolver.SnapshotDir(manifest.ID())
	require.NoError(t, err)
	for _, name := range []string{
		ManifestFilename,
		filepath.Join(ContentDirName, "packed-refs"),
		filepath.Join(MetadataDirName, "repository.json"),
		filepath.Join(MetadataDirName, "issues.json"),
		filepath.Join(MetadataDirName, "pull_requests.json"),
		filepath.Join(MetadataDirName, "releases.json"),
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "expected %s", name)
	}
}

func TestBackupReleasesForbiddenStillCommits(t *testing.T) {
	provider := &fakeProvider{
		listReleases: func(ctx context.Context, ref RepositoryRef, page int) ([]Release, int, error) {
			return nil, 0, fmt.Errorf("%w: 403 forbidden", ErrAuth)
		},
	}
	coord, _ := newTestCoordinator(t, provider, &fakeWorkspace{}, Options{})

	manifest, err := coord.Backup(context.Background(), RepositoryRef{Owner: "acme", Name: "widgets"})
	require.NoError(t, err)
	require.True(t, manifest.Committed())
	assert.False(t, manifest.Clean())
	assert.Equal(t, StateComplete, manifest.ContentState)
	assert.Equal(t, StateComplete, manifest.MetadataStates[ClassIssues])
	assert.Equal(t, StateFailed, manifest.MetadataStates[ClassReleases])
	assert.Contains(t, manifest.Errors[ClassReleases], "403")
}

func TestBackupContentFailureIsIndependent(t *testing.T) {
	workspace := &fakeWorkspace{mirrorErr: fmt.Errorf("%w: clone denied", ErrAuth)}
	coord, _ := newTestCoordinator(t, &fakeProvider{}, workspace, Options{})

	manifest, err := coord.Backup(context.Background(), RepositoryRef{Owner: "acme", Name: "widgets"})
	require.NoError(t, err)
	require.True(t, manifest.Committed())
	assert.Equal(t, StateFailed, manifest.ContentState)
	assert.Equal(t, StateComplete, manifest.MetadataStates[ClassIssues])
	assert.Equal(t, StateComplete, manifest.MetadataStates[ClassReleases])
}

func TestBackupPageCapMarksTruncated(t *testing.T) {
	provider := &fakeProvider{
		listIssues: func(ctx context.Context, ref RepositoryRef, page int) ([]Issue, int, error) {
			// Endless listing; only the cap stops it.
			return []Issue{{Number: page}}, page + 1, nil
		},
	}
	coord, _ := newTestCoordinator(t, provider, &fakeWorkspace{}, Options{PageCap: 3})

	manifest, err := coord.Backup(context.Background(), RepositoryRef{Owner: "acme", Name: "widgets"})
	require.NoError(t, err)
	assert.Equal(t, StateComplete, manifest.MetadataStates[ClassIssues])
	assert.True(t, manifest.Truncated[ClassIssues])
	assert.Equal(t, 3, manifest.EntityCounts[ClassIssues])
}

func TestBackupRejectsConcurrentSameRepo(t *testing.T) {
	blocker := make(chan struct{})
	started := make(chan struct{})
	provider := &fakeProvider{
		getRepository: func(ctx context.Context, ref RepositoryRef) (*RepoDescriptor, error) {
			close(started)
			<-blocker
			return nil, fmt.Errorf("%w: gone", ErrSourceUnavailable)
		},
	}
	coord, _ := newTestCoordinator(t, provider, &fakeWorkspace{}, Options{})
	ref := RepositoryRef{Owner: "acme", Name: "widgets"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = coord.Backup(context.Background(), ref)
	}()

	<-started
	_, err := coord.Backup(context.Background(), ref)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	close(blocker)
	<-done
}

func TestBackupCancelledLeavesNoListableSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := &fakeProvider{
		getRepository: func(ctx context.Context, ref RepositoryRef) (*RepoDescriptor, error) {
			cancel() // cancellation lands mid-pipeline
			return &RepoDescriptor{Owner: ref.Owner, Name: ref.Name, CloneURL: "x", DefaultBranch: "main"}, nil
		},
	}
	coord, resolver := newTestCoordinator(t, provider, &fakeWorkspace{}, Options{})
	ref := RepositoryRef{Owner: "acme", Name: "widgets"}

	_, err := coord.Backup(ctx, ref)
	require.ErrorIs(t, err, ErrAborted)

	catalog := NewCatalog(resolver, logger.Nop())
	manifests, err := catalog.List(ref)
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestBackupAllIsolatesFailures(t *testing.T) {
	provider := &fakeProvider{
		listRepositories: func(ctx context.Context, owner string, isOrg bool) ([]RepoDescriptor, error) {
			return []RepoDescriptor{
				{Owner: owner, Name: "alpha"},
				{Owner: owner, Name: "broken"},
				{Owner: owner, Name: "gamma"},
			}, nil
		},
		getRepository: func(ctx context.Context, ref RepositoryRef) (*RepoDescriptor, error) {
			if ref.Name == "broken" {
				return nil, fmt.Errorf("%w: 404", ErrSourceUnavailable)
			}
			return &RepoDescriptor{
				Owner: ref.Owner, Name: ref.Name,
				CloneURL: "https://example.invalid/" + ref.String() + ".git", DefaultBranch: "main",
			}, nil
		},
	}
	coord, _ := newTestCoordinator(t, provider, &fakeWorkspace{}, Options{Concurrency: 2})

	results, err := coord.BackupAll(context.Background(), "acme", false)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// The broken repository still commits: descriptor failure is a
	// recorded outcome, not an abort.
	for name, result := range results {
		require.NoError(t, result.Err, "repository %s", name)
		require.True(t, result.Manifest.Committed(), "repository %s", name)
	}
	assert.True(t, results["acme/alpha"].Manifest.Clean())
	assert.False(t, results["acme/broken"].Manifest.Clean())
	assert.True(t, results["acme/gamma"].Manifest.Clean())
	assert.False(t, BatchClean(results))
	assert.False(t, BatchAborted(results))
}

func TestBackupAllCatastrophicRepoDoesNotAbortSiblings(t *testing.T) {
	workspace := &fakeWorkspace{}
	provider := &fakeProvider{
		listRepositories: func(ctx context.Context, owner string, isOrg bool) ([]RepoDescriptor, error) {
			return []RepoDescriptor{
				{Owner: owner, Name: "alpha"},
				{Owner: owner, Name: "beta"},
			}, nil
		},
	}
	coord, resolver := newTestCoordinator(t, provider, workspace, Options{Concurrency: 1})

	// Pre-create a file where beta's repo dir should go, so directory
	// creation blows up for beta only.
	betaPath := filepath.Join(resolver.Root(), "acme", "beta")
	require.NoError(t, os.MkdirAll(filepath.Dir(betaPath), 0o755))
	require.NoError(t, os.WriteFile(betaPath, []byte("in the way"), 0o644))

	results, err := coord.BackupAll(context.Background(), "acme", false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NoError(t, results["acme/alpha"].Err)
	assert.True(t, results["acme/alpha"].Manifest.Committed())
	assert.Error(t, results["acme/beta"].Err)
}
