package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/ghbackup/internal/backup"
)

// initTestRepo creates a git repository with one commit and one tag.
func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "README.md")
	run("commit", "-m", "initial")
	run("tag", "v1.0.0")
	return dir
}

func TestMirrorCloneAndRestoreRoundTrip(t *testing.T) {
	source := initTestRepo(t)
	ws := New()
	ctx := context.Background()

	mirror := filepath.Join(t.TempDir(), "content")
	require.NoError(t, ws.MirrorClone(ctx, source, mirror))

	mirrorRefs, err := ws.ListRefs(ctx, mirror)
	require.NoError(t, err)
	require.NotEmpty(t, mirrorRefs)

	checkout := filepath.Join(t.TempDir(), "checkout")
	require.NoError(t, ws.CloneFromMirror(ctx, mirror, checkout))

	branch, err := ws.ActiveBranch(ctx, checkout)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	dirty, err := ws.IsDirty(ctx, checkout)
	require.NoError(t, err)
	assert.False(t, dirty)

	// The checkout carries the mirror's branch and tag refs.
	names := make(map[string]bool)
	checkoutRefs, err := ws.ListRefs(ctx, checkout)
	require.NoError(t, err)
	for _, ref := range checkoutRefs {
		names[ref.Name] = true
	}
	assert.True(t, names["refs/heads/main"])
	assert.True(t, names["refs/tags/v1.0.0"])
}

func TestIsDirtyDetectsChanges(t *testing.T) {
	repo := initTestRepo(t)
	ws := New()
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("changed\n"), 0o644))
	dirty, err := ws.IsDirty(ctx, repo)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		stderr string
		want   error
	}{
		{"fatal: Authentication failed for 'https://github.com/x/y.git'", backup.ErrAuth},
		{"git@github.com: Permission denied (publickey).", backup.ErrAuth},
		{"fatal: repository not found", backup.ErrSourceUnavailable},
		{"fatal: unable to access 'x': Could not resolve host: github.com", backup.ErrNetwork},
		{"error: RPC failed; early EOF", backup.ErrNetwork},
	}
	for _, tc := range cases {
		err := classify("clone", tc.stderr, assert.AnError)
		assert.ErrorIs(t, err, tc.want, "stderr %q", tc.stderr)
	}

	err := classify("clone", "fatal: some other failure", assert.AnError)
	assert.NotErrorIs(t, err, backup.ErrNetwork)
	assert.NotErrorIs(t, err, backup.ErrAuth)
}

func TestMirrorCloneMissingSource(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	ws := New()
	err := ws.MirrorClone(context.Background(), filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "dest"))
	require.Error(t, err)
}
