package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kebairia/ghbackup/internal/logger"
)

// RestoreOptions select which restore steps run and how conflicts with
// pre-existing state are handled.
type RestoreOptions struct {
	// Overwrite allows restoring into a non-empty target directory.
	Overwrite bool
	// ReplayMetadata re-creates issues, labels and releases on the
	// remote provider.
	ReplayMetadata bool
	// DryRun reports what would be replayed without mutating the
	// remote provider.
	DryRun bool
}

// StepReport is one restore step's outcome.
type StepReport struct {
	Name   string `json:"name"`
	State  State  `json:"state"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RestoreReport describes exactly what a restore did: which steps ran,
// what was replayed, and which entities failed. Per-entity replay
// failures never abort the remaining entities.
type RestoreReport struct {
	Snapshot SnapshotID   `json:"snapshot"`
	Target   string       `json:"target,omitempty"`
	DryRun   bool         `json:"dry_run"`
	Steps    []StepReport `json:"steps"`
	Refs     []Ref        `json:"refs,omitempty"`
	Skipped  []SkipRecord `json:"skipped,omitempty"`
}

// Failed reports whether any step ended in failure.
func (r *RestoreReport) Failed() bool {
	for _, s := range r.Steps {
		if s.State == StateFailed {
			return true
		}
	}
	return false
}

func (r *RestoreReport) step(name string, state State, detail, errMsg string) {
	r.Steps = append(r.Steps, StepReport{Name: name, State: state, Detail: detail, Error: errMsg})
}

// RestoreEngine reconstructs a working checkout from a committed
// snapshot and optionally replays its metadata into the remote
// provider.
type RestoreEngine struct {
	catalog   *Catalog
	resolver  *PathResolver
	workspace Workspace
	provider  Provider
	log       logger.Logger
}

// NewRestoreEngine wires a restore engine.
func NewRestoreEngine(catalog *Catalog, resolver *PathResolver, workspace Workspace, provider Provider, log logger.Logger) *RestoreEngine {
	return &RestoreEngine{catalog: catalog, resolver: resolver, workspace: workspace, provider: provider, log: log}
}

// Restore materializes the snapshot into targetPath. The target is
// checked before anything is touched: with Overwrite unset, a
// non-empty target fails with ErrTargetNotEmpty and zero writes. With
// Overwrite set, the target's contents are removed before the clone,
// since a clone into a non-empty directory is refused.
func (e *RestoreEngine) Restore(ctx context.Context, id SnapshotID, targetPath string, opts RestoreOptions) (*RestoreReport, error) {
	manifest, err := e.catalog.Get(id)
	if err != nil {
		return nil, err
	}
	snapshotDir, err := e.resolver.SnapshotDir(id)
	if err != nil {
		return nil, err
	}

	report := &RestoreReport{Snapshot: id, Target: targetPath, DryRun: opts.DryRun}

	if targetPath != "" {
		if err := e.preflight(targetPath, opts.Overwrite); err != nil {
			return nil, err
		}
	}

	e.restoreContent(ctx, manifest, snapshotDir, targetPath, opts, report)

	if opts.ReplayMetadata || opts.DryRun {
		e.replayMetadata(ctx, manifest, snapshotDir, opts.DryRun, report)
	} else {
		report.step("metadata", StateSkipped, "replay not requested", "")
	}

	e.log.Info("restore finished",
		"snapshot", id.String(),
		"target", targetPath,
		"failed", report.Failed(),
	)
	return report, nil
}

// preflight rejects a non-empty target before any filesystem write.
func (e *RestoreEngine) preflight(targetPath string, overwrite bool) error {
	entries, err := os.ReadDir(targetPath)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return fmt.Errorf("inspect restore target %q: %w", targetPath, err)
	case len(entries) > 0 && !overwrite:
		return fmt.Errorf("%w: %q", ErrTargetNotEmpty, targetPath)
	}
	return nil
}

func (e *RestoreEngine) restoreContent(ctx context.Context, manifest *SnapshotManifest, snapshotDir, targetPath string, opts RestoreOptions, report *RestoreReport) {
	switch {
	case targetPath == "":
		report.step(ContentDirName, StateSkipped, "no target path given", "")
		return
	case manifest.ContentState != StateComplete:
		report.step(ContentDirName, StateSkipped, "snapshot has no complete content mirror", "")
		return
	case opts.DryRun:
		report.step(ContentDirName, StateSkipped, "dry run", "")
		return
	}

	if opts.Overwrite {
		if err := clearDir(targetPath); err != nil {
			report.step(ContentDirName, StateFailed, "", err.Error())
			return
		}
	}

	mirror := filepath.Join(snapshotDir, ContentDirName)
	if err := e.workspace.CloneFromMirror(ctx, mirror, targetPath); err != nil {
		report.step(ContentDirName, StateFailed, "", err.Error())
		return
	}

	detail := ""
	if refs, err := e.workspace.ListRefs(ctx, targetPath); err == nil {
		report.Refs = refs
		detail = fmt.Sprintf("%d refs restored", len(refs))
	}
	if branch, err := e.workspace.ActiveBranch(ctx, targetPath); err == nil && branch != "" {
		detail += ", on branch " + branch
	}
	report.step(ContentDirName, StateComplete, detail, "")
}

func (e *RestoreEngine) replayMetadata(ctx context.Context, manifest *SnapshotManifest, snapshotDir string, dryRun bool, report *RestoreReport) {
	ref := manifest.Ref

	if manifest.MetadataStates[ClassIssues] == StateComplete {
		e.replayIssues(ctx, ref, snapshotDir, dryRun, report)
	} else {
		report.step(ClassIssues, StateSkipped, "class missing from snapshot", "")
	}

	if manifest.MetadataStates[ClassReleases] == StateComplete {
		e.replayReleases(ctx, ref, snapshotDir, dryRun, report)
	} else {
		report.step(ClassReleases, StateSkipped, "class missing from snapshot", "")
	}

	// A pull request needs live head and base branches on the remote,
	// so replay is reported but never attempted.
	report.step(ClassPullRequests, StateSkipped, "pull requests are never recreated", "")
}

func (e *RestoreEngine) replayIssues(ctx context.Context, ref RepositoryRef, snapshotDir string, dryRun bool, report *RestoreReport) {
	_, raw, err := ReadArtifact(snapshotDir, ClassIssues)
	if err != nil {
		report.step(ClassIssues, StateFailed, "", err.Error())
		return
	}
	var issues []Issue
	if err := json.Unmarshal(raw, &issues); err != nil {
		report.step(ClassIssues, StateFailed, "", fmt.Sprintf("decode issues: %v", err))
		return
	}

	if dryRun {
		report.step(ClassIssues, StateSkipped, fmt.Sprintf("would recreate %d issues", len(issues)), "")
		return
	}

	// Labels come back first so issue creation can reference them.
	for _, label := range distinctLabels(issues) {
		if err := e.provider.CreateLabel(ctx, ref, label); err != nil {
			report.Skipped = append(report.Skipped, SkipRecord{
				Entity: "label " + label.Name,
				Reason: err.Error(),
			})
		}
	}

	created := 0
	for _, issue := range issues {
		if err := e.provider.CreateIssue(ctx, ref, issue); err != nil {
			report.Skipped = append(report.Skipped, SkipRecord{
				Entity: fmt.Sprintf("issue #%d", issue.Number),
				Reason: err.Error(),
			})
			continue
		}
		created++
	}
	report.step(ClassIssues, StateComplete, fmt.Sprintf("%d of %d issues recreated", created, len(issues)), "")
}

func (e *RestoreEngine) replayReleases(ctx context.Context, ref RepositoryRef, snapshotDir string, dryRun bool, report *RestoreReport) {
	_, raw, err := ReadArtifact(snapshotDir, ClassReleases)
	if err != nil {
		report.step(ClassReleases, StateFailed, "", err.Error())
		return
	}
	var releases []Release
	if err := json.Unmarshal(raw, &releases); err != nil {
		report.step(ClassReleases, StateFailed, "", fmt.Sprintf("decode releases: %v", err))
		return
	}

	if dryRun {
		report.step(ClassReleases, StateSkipped, fmt.Sprintf("would recreate %d releases", len(releases)), "")
		return
	}

	created := 0
	for _, release := range releases {
		if err := e.provider.CreateRelease(ctx, ref, release); err != nil {
			report.Skipped = append(report.Skipped, SkipRecord{
				Entity: "release " + release.TagName,
				Reason: err.Error(),
			})
			continue
		}
		created++
	}
	report.step(ClassReleases, StateComplete, fmt.Sprintf("%d of %d releases recreated", created, len(releases)), "")
}

// clearDir removes the contents of dir, keeping dir itself, so a
// subsequent clone starts into an empty directory.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clear restore target %q: %w", dir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("clear restore target %q: %w", dir, err)
		}
	}
	return nil
}

func distinctLabels(issues []Issue) []Label {
	seen := make(map[string]struct{})
	var labels []Label
	for _, issue := range issues {
		for _, name := range issue.Labels {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			labels = append(labels, Label{Name: name})
		}
	}
	return labels
}
