package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kebairia/ghbackup/internal/logger"
)

// Catalog enumerates committed snapshots on disk. Directories without
// a committed manifest (crash leftovers, partial writes) are excluded
// from listings but never deleted; destructive cleanup is a manual
// concern.
type Catalog struct {
	resolver *PathResolver
	log      logger.Logger
}

// NewCatalog returns a catalog over the resolver's backup root.
func NewCatalog(resolver *PathResolver, log logger.Logger) *Catalog {
	return &Catalog{resolver: resolver, log: log}
}

// List returns the committed snapshots of one repository, newest
// first.
func (c *Catalog) List(ref RepositoryRef) ([]*SnapshotManifest, error) {
	repoDir, err := c.resolver.RepoDir(ref)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(repoDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // no snapshots yet, not an error
		}
		return nil, fmt.Errorf("read snapshot directory %q: %w", repoDir, err)
	}

	var manifests []*SnapshotManifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifest, err := LoadManifest(filepath.Join(repoDir, entry.Name()))
		if err != nil {
			// Missing or unreadable manifest means the snapshot never
			// committed. Skip it, keep it on disk for inspection.
			c.log.Debug("skipping unmanifested snapshot directory",
				"repository", ref.String(), "dir", entry.Name())
			continue
		}
		if !manifest.Committed() {
			c.log.Debug("skipping non-terminal manifest",
				"repository", ref.String(), "dir", entry.Name())
			continue
		}
		manifests = append(manifests, manifest)
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].Timestamp > manifests[j].Timestamp
	})
	return manifests, nil
}

// ListRepositories returns every owner/name pair that has at least one
// committed snapshot under the backup root, for the unfiltered list
// command.
func (c *Catalog) ListRepositories() ([]RepositoryRef, error) {
	owners, err := os.ReadDir(c.resolver.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup root: %w", err)
	}

	var refs []RepositoryRef
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		names, err := os.ReadDir(filepath.Join(c.resolver.Root(), owner.Name()))
		if err != nil {
			continue
		}
		for _, name := range names {
			if !name.IsDir() {
				continue
			}
			ref := RepositoryRef{Owner: owner.Name(), Name: name.Name()}
			if snaps, err := c.List(ref); err == nil && len(snaps) > 0 {
				refs = append(refs, ref)
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs, nil
}

// Get returns the manifest for one snapshot, or ErrNotFound if the
// snapshot does not exist or never committed.
func (c *Catalog) Get(id SnapshotID) (*SnapshotManifest, error) {
	dir, err := c.resolver.SnapshotDir(id)
	if err != nil {
		return nil, err
	}
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !manifest.Committed() {
		return nil, fmt.Errorf("%w: %s never committed", ErrNotFound, id)
	}
	return manifest, nil
}
