package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kebairia/ghbackup/internal/logger"
)

// Options tune the coordinator. Zero values fall back to defaults.
type Options struct {
	// Concurrency bounds the batch worker pool.
	Concurrency int
	// PageCap bounds pages fetched per metadata entity class; 0 means
	// unbounded.
	PageCap int
	// RetryAttempts bounds retries of transient provider failures.
	RetryAttempts int
	// Compress writes metadata artifacts zstd-compressed.
	Compress bool
}

// DefaultConcurrency is the batch worker pool size when none is
// configured.
const DefaultConcurrency = 3

// Coordinator orchestrates content and metadata snapshotters for one
// repository under the atomicity contract (a backup is fully present
// and manifested, or not listed at all), and fans out across many
// repositories with bounded concurrency.
type Coordinator struct {
	provider Provider
	resolver *PathResolver
	meta     *Snapshotter
	content  *ContentSnapshotter
	opts     Options
	log      logger.Logger

	// inflight enforces the single-writer invariant: concurrent
	// backups of the same repository in one process are rejected.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewCoordinator wires a coordinator from its collaborators. There is
// no hidden global state; everything the pipelines touch comes in
// here.
func NewCoordinator(provider Provider, workspace Workspace, resolver *PathResolver, opts Options, log logger.Logger) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	return &Coordinator{
		provider: provider,
		resolver: resolver,
		meta:     NewSnapshotter(provider, opts.PageCap, opts.RetryAttempts, log),
		content:  NewContentSnapshotter(workspace, log),
		opts:     opts,
		log:      log,
		inflight: make(map[string]struct{}),
	}
}

func (c *Coordinator) acquire(ref RepositoryRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[ref.String()]; busy {
		return fmt.Errorf("%w: backup already in flight for %s", ErrInvalidIdentifier, ref)
	}
	c.inflight[ref.String()] = struct{}{}
	return nil
}

func (c *Coordinator) release(ref RepositoryRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, ref.String())
}

// Backup runs the full snapshot pipeline for one repository, from
// directory creation through content mirroring and metadata capture to
// the manifest commit. Content and metadata are independent failure
// domains; a
// failed component is recorded in the manifest, never hidden, and the
// manifest still commits. Only cancellation and catastrophic local
// failures abort, leaving the directory unmanifested (and removed) so
// the catalog never lists it.
func (c *Coordinator) Backup(ctx context.Context, ref RepositoryRef) (*SnapshotManifest, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if err := c.acquire(ref); err != nil {
		return nil, err
	}
	defer c.release(ref)

	// Created: allocate the snapshot ID and its directory. No
	// manifest exists yet, so a crash past this point leaves a
	// directory the catalog ignores.
	id, err := c.resolver.NewSnapshotID(ref, time.Now())
	if err != nil {
		return nil, err
	}
	dir, err := c.resolver.SnapshotDir(id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory %q: %w", dir, err)
	}

	manifest := NewManifest(id, time.Now().UTC())
	c.log.Info("snapshot started", "repository", ref.String(), "snapshot", id.Timestamp)

	abort := func(cause error) (*SnapshotManifest, error) {
		c.log.Warn("snapshot aborted", "repository", ref.String(), "error", cause.Error())
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			c.log.Error("could not remove aborted snapshot directory", "path", dir, "error", rmErr.Error())
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrAborted, ref, cause)
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}

	// The repository descriptor doubles as metadata and as the source
	// of the clone URL, so it is fetched first.
	descArtifact, desc, descErr := c.meta.SnapshotRepository(ctx, ref)
	if descErr != nil {
		c.recordFailure(manifest, ClassRepository, descErr)
	} else {
		manifest.SourceDefaultBranch = desc.DefaultBranch
		if err := c.writeArtifact(dir, manifest, descArtifact); err != nil {
			return abort(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}

	// ContentInFlight. A repository whose descriptor is unreadable has
	// no clone URL, so content fails with the same cause; metadata
	// classes still get their chance below.
	if descErr != nil {
		manifest.ContentState = StateFailed
		manifest.Errors[ContentDirName] = descErr.Error()
	} else if _, err := c.content.MirrorClone(ctx, ref, desc.CloneURL, dir); err != nil {
		c.log.Error("content mirror failed", "repository", ref.String(), "error", err.Error())
		manifest.ContentState = StateFailed
		manifest.Errors[ContentDirName] = err.Error()
	} else {
		manifest.ContentState = StateComplete
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}

	// MetadataInFlight: classes are independent, failures isolated per
	// class.
	type classFetch struct {
		class string
		fetch func(context.Context, RepositoryRef) (*Artifact, error)
	}
	for _, cf := range []classFetch{
		{ClassIssues, c.meta.SnapshotIssues},
		{ClassPullRequests, c.meta.SnapshotPullRequests},
		{ClassReleases, c.meta.SnapshotReleases},
	} {
		artifact, err := cf.fetch(ctx, ref)
		if err != nil {
			c.recordFailure(manifest, cf.class, err)
			continue
		}
		if err := c.writeArtifact(dir, manifest, artifact); err != nil {
			return abort(err)
		}
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
	}

	// Finalizing: the manifest write is the commit point.
	manifest.CompletedAt = time.Now().UTC()
	if err := manifest.Write(dir); err != nil {
		return abort(err)
	}

	c.log.Info("snapshot committed",
		"repository", ref.String(),
		"snapshot", id.Timestamp,
		"content", string(manifest.ContentState),
		"clean", manifest.Clean(),
	)
	return manifest, nil
}

func (c *Coordinator) recordFailure(m *SnapshotManifest, class string, err error) {
	c.log.Error("metadata class failed", "repository", m.Ref.String(), "class", class, "error", err.Error())
	m.MetadataStates[class] = StateFailed
	m.Errors[class] = err.Error()
}

func (c *Coordinator) writeArtifact(dir string, m *SnapshotManifest, a *Artifact) error {
	if err := WriteArtifact(dir, a, c.opts.Compress); err != nil {
		return err
	}
	m.MetadataStates[a.EntityClass] = StateComplete
	m.EntityCounts[a.EntityClass] = a.FetchedCount
	if a.Truncated {
		m.Truncated[a.EntityClass] = true
	}
	return nil
}

// RepoResult is one repository's outcome inside a batch. Exactly one
// of Manifest or Err is meaningful; results are matched back by
// repository identifier, never by position.
type RepoResult struct {
	Ref      RepositoryRef
	Manifest *SnapshotManifest
	Err      error
}

// BackupAll snapshots every repository of a user or organization with
// a bounded worker pool. One repository's failure or abort never
// touches its siblings; the result is a per-repository status map.
func (c *Coordinator) BackupAll(ctx context.Context, owner string, isOrg bool) (map[string]RepoResult, error) {
	if limit, err := c.provider.RateLimit(ctx); err == nil {
		c.log.Info("provider rate limit",
			"remaining", limit.Remaining,
			"limit", limit.Limit,
			"reset_at", limit.ResetAt.Format(time.RFC3339),
		)
	}

	var repos []RepoDescriptor
	err := withRetry(ctx, c.opts.RetryAttempts, func() error {
		var err error
		repos, err = c.provider.ListRepositories(ctx, owner, isOrg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list repositories for %q: %w", owner, err)
	}

	var (
		mu      sync.Mutex
		results = make(map[string]RepoResult, len(repos))
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.opts.Concurrency)

	for _, repo := range repos {
		ref := RepositoryRef{Owner: repo.Owner, Name: repo.Name}
		group.Go(func() error {
			var result RepoResult
			// Pipelines not yet started when cancellation lands are
			// skipped outright; in-flight ones abort at their next
			// step boundary inside Backup.
			if err := groupCtx.Err(); err != nil {
				result = RepoResult{Ref: ref, Err: fmt.Errorf("%w: %v", ErrAborted, err)}
			} else {
				manifest, err := c.Backup(groupCtx, ref)
				result = RepoResult{Ref: ref, Manifest: manifest, Err: err}
			}
			mu.Lock()
			results[ref.String()] = result
			mu.Unlock()
			// Errors stay inside the result map; returning one here
			// would cancel sibling pipelines.
			return nil
		})
	}
	_ = group.Wait()

	var committed, failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			committed++
		}
	}
	c.log.Info("batch backup finished", "owner", owner, "committed", committed, "aborted", failed)
	return results, nil
}

// BatchClean reports whether every repository in a batch committed
// without partial failures.
func BatchClean(results map[string]RepoResult) bool {
	for _, r := range results {
		if r.Err != nil || !r.Manifest.Clean() {
			return false
		}
	}
	return true
}

// BatchAborted reports whether any repository in a batch aborted
// without committing.
func BatchAborted(results map[string]RepoResult) bool {
	for _, r := range results {
		if r.Err != nil && errors.Is(r.Err, ErrAborted) {
			return true
		}
	}
	return false
}
