package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kebairia/ghbackup/internal/logger"
)

// ContentDirName holds the mirror clone inside a snapshot directory.
const ContentDirName = "content"

// ContentSnapshotter produces a full mirror (all refs, all history) of
// a repository's version-control content.
type ContentSnapshotter struct {
	workspace Workspace
	log       logger.Logger
}

// NewContentSnapshotter returns a content snapshotter driving the
// given workspace.
func NewContentSnapshotter(workspace Workspace, log logger.Logger) *ContentSnapshotter {
	return &ContentSnapshotter{workspace: workspace, log: log}
}

// MirrorClone mirrors cloneURL into snapshotDir/content. The manifest
// is written after content resolves, so a leftover content directory
// can only come from an earlier crashed attempt. Any existing
// directory is discarded and the clone starts from empty; unmanifested
// state is never trusted incrementally.
func (c *ContentSnapshotter) MirrorClone(ctx context.Context, ref RepositoryRef, cloneURL, snapshotDir string) (string, error) {
	dest := filepath.Join(snapshotDir, ContentDirName)

	if _, err := os.Stat(dest); err == nil {
		c.log.Warn("discarding unmanifested content from a previous attempt",
			"repository", ref.String(),
			"path", dest,
		)
		if err := os.RemoveAll(dest); err != nil {
			return "", fmt.Errorf("remove stale content dir %q: %w", dest, err)
		}
	}

	if err := c.workspace.MirrorClone(ctx, cloneURL, dest); err != nil {
		return "", fmt.Errorf("mirror clone %s: %w", ref, err)
	}
	return dest, nil
}
