// Package gitrepo drives the git binary for mirror cloning, checkout
// materialization and repository inspection.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kebairia/ghbackup/internal/backup"
)

// Workspace implements backup.Workspace on top of the git CLI.
type Workspace struct {
	// GitPath overrides the git binary; empty means "git" from PATH.
	GitPath string
}

var _ backup.Workspace = (*Workspace)(nil)

// New returns a workspace using git from PATH.
func New() *Workspace {
	return &Workspace{}
}

func (w *Workspace) git(ctx context.Context, dir string, args ...string) (string, error) {
	bin := w.GitPath
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", classify(args[0], strings.TrimSpace(stderr.String()), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// classify maps git failures onto the backup error taxonomy by
// inspecting stderr, since git reports everything through exit code
// 128.
func classify(verb, stderr string, err error) error {
	msg := stderr
	if msg == "" {
		msg = err.Error()
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "could not read username"):
		return fmt.Errorf("%w: git %s: %s", backup.ErrAuth, verb, msg)
	case strings.Contains(lower, "repository not found"),
		strings.Contains(lower, "not found"):
		return fmt.Errorf("%w: git %s: %s", backup.ErrSourceUnavailable, verb, msg)
	case strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "connection timed out"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "early eof"),
		strings.Contains(lower, "remote end hung up"):
		return fmt.Errorf("%w: git %s: %s", backup.ErrNetwork, verb, msg)
	default:
		return fmt.Errorf("git %s: %s", verb, msg)
	}
}

// MirrorClone clones url into dest with all refs and full history.
func (w *Workspace) MirrorClone(ctx context.Context, url, dest string) error {
	_, err := w.git(ctx, "", "clone", "--mirror", url, dest)
	return err
}

// CloneFromMirror materializes a working checkout from a local mirror.
func (w *Workspace) CloneFromMirror(ctx context.Context, mirrorPath, dest string) error {
	_, err := w.git(ctx, "", "clone", mirrorPath, dest)
	return err
}

// Fetch updates all refs of an existing mirror or checkout.
func (w *Workspace) Fetch(ctx context.Context, path string) error {
	_, err := w.git(ctx, path, "fetch", "--all", "--prune")
	return err
}

// ListRefs returns every ref and its hash, mirror or checkout alike.
func (w *Workspace) ListRefs(ctx context.Context, path string) ([]backup.Ref, error) {
	out, err := w.git(ctx, path, "show-ref")
	if err != nil {
		return nil, err
	}
	var refs []backup.Ref
	for _, line := range strings.Split(out, "\n") {
		hash, name, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		refs = append(refs, backup.Ref{Name: name, Hash: hash})
	}
	return refs, nil
}

// IsDirty reports whether the working tree has uncommitted changes.
func (w *Workspace) IsDirty(ctx context.Context, path string) (bool, error) {
	out, err := w.git(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// ActiveBranch returns the checked-out branch name.
func (w *Workspace) ActiveBranch(ctx context.Context, path string) (string, error) {
	return w.git(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
}
