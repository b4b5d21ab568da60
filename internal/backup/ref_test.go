package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme", ref.Owner)
	assert.Equal(t, "widgets", ref.Name)
	assert.Equal(t, "acme/widgets", ref.String())

	for _, bad := range []string{"", "acme", "acme/", "/widgets", "a/b/c", "../x/y"} {
		_, err := ParseRef(bad)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "input %q", bad)
	}
}

func TestResolverRejectsTraversal(t *testing.T) {
	resolver, err := NewPathResolver(t.TempDir())
	require.NoError(t, err)

	hostile := []RepositoryRef{
		{Owner: "..", Name: "widgets"},
		{Owner: "acme", Name: ".."},
		{Owner: "acme", Name: "../../etc"},
		{Owner: "acme", Name: "a/b"},
		{Owner: "acme", Name: `a\b`},
		{Owner: "/abs", Name: "widgets"},
		{Owner: "acme", Name: ""},
		{Owner: ".", Name: "widgets"},
	}
	for _, ref := range hostile {
		_, err := resolver.RepoDir(ref)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "ref %+v", ref)
	}
}

func TestResolverContainsPaths(t *testing.T) {
	root := t.TempDir()
	resolver, err := NewPathResolver(root)
	require.NoError(t, err)

	dir, err := resolver.SnapshotDir(SnapshotID{
		Ref:       RepositoryRef{Owner: "acme", Name: "widgets"},
		Timestamp: "20240101-000000",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dir, root+string(filepath.Separator)))

	_, err = resolver.SnapshotDir(SnapshotID{
		Ref:       RepositoryRef{Owner: "acme", Name: "widgets"},
		Timestamp: "../../20240101",
	})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestNewSnapshotIDDisambiguatesSameSecond(t *testing.T) {
	resolver, err := NewPathResolver(t.TempDir())
	require.NoError(t, err)

	ref := RepositoryRef{Owner: "acme", Name: "widgets"}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := resolver.NewSnapshotID(ref, now)
	require.NoError(t, err)
	dir, err := resolver.SnapshotDir(first)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	second, err := resolver.NewSnapshotID(ref, now)
	require.NoError(t, err)
	assert.NotEqual(t, first.Timestamp, second.Timestamp)
	assert.Equal(t, "20240101-000000", first.Timestamp)
	assert.Equal(t, "20240101-000000-1", second.Timestamp)
}

func TestParseSnapshotID(t *testing.T) {
	id, err := ParseSnapshotID("acme/widgets@20240101-000000")
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets@20240101-000000", id.String())

	for _, bad := range []string{"acme/widgets", "acme/widgets@", "acme@ts", "acme/widgets@../x"} {
		_, err := ParseSnapshotID(bad)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "input %q", bad)
	}
}
