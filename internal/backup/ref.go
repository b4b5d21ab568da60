package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampFormat is the wall-clock token used as a snapshot's
// directory name. It sorts lexicographically in chronological order.
const TimestampFormat = "20060102-150405"

// RepositoryRef uniquely addresses a remote repository and its local
// snapshot namespace.
type RepositoryRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// ParseRef parses an "owner/name" string into a RepositoryRef.
func ParseRef(s string) (RepositoryRef, error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok {
		return RepositoryRef{}, fmt.Errorf("%w: %q is not owner/name", ErrInvalidIdentifier, s)
	}
	ref := RepositoryRef{Owner: owner, Name: name}
	if err := ref.Validate(); err != nil {
		return RepositoryRef{}, err
	}
	return ref, nil
}

// Validate rejects empty components and anything that could escape the
// backup root when used as a path element. Repository names come back
// from the remote provider, so they are treated as untrusted input.
func (r RepositoryRef) Validate() error {
	for _, part := range []string{r.Owner, r.Name} {
		switch {
		case part == "" || part == "." || part == "..":
			return fmt.Errorf("%w: empty or dot component in %q", ErrInvalidIdentifier, r.String())
		case strings.ContainsAny(part, `/\`):
			return fmt.Errorf("%w: separator in %q", ErrInvalidIdentifier, r.String())
		case !filepath.IsLocal(part):
			return fmt.Errorf("%w: non-local component in %q", ErrInvalidIdentifier, r.String())
		}
	}
	return nil
}

// String returns the qualified "owner/name" form.
func (r RepositoryRef) String() string {
	return r.Owner + "/" + r.Name
}

// SnapshotID is the primary key of a backup: a repository plus the
// timestamp token naming its snapshot directory.
type SnapshotID struct {
	Ref       RepositoryRef `json:"ref"`
	Timestamp string        `json:"timestamp"`
}

// ParseSnapshotID parses the "owner/name@timestamp" CLI form.
func ParseSnapshotID(s string) (SnapshotID, error) {
	refPart, ts, ok := strings.Cut(s, "@")
	if !ok || ts == "" {
		return SnapshotID{}, fmt.Errorf("%w: %q is not owner/name@timestamp", ErrInvalidIdentifier, s)
	}
	ref, err := ParseRef(refPart)
	if err != nil {
		return SnapshotID{}, err
	}
	if !filepath.IsLocal(ts) || strings.ContainsAny(ts, `/\`) {
		return SnapshotID{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidIdentifier, ts)
	}
	return SnapshotID{Ref: ref, Timestamp: ts}, nil
}

func (id SnapshotID) String() string {
	return id.Ref.String() + "@" + id.Timestamp
}

// PathResolver maps repository identifiers to directories under a
// single backup root. Every resolved path is guaranteed to be a
// descendant of the root.
type PathResolver struct {
	root string
}

// NewPathResolver returns a resolver rooted at backupRoot. The root is
// made absolute so containment checks are not fooled by relative
// segments.
func NewPathResolver(backupRoot string) (*PathResolver, error) {
	abs, err := filepath.Abs(backupRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve backup root %q: %w", backupRoot, err)
	}
	return &PathResolver{root: abs}, nil
}

// Root returns the absolute backup root.
func (p *PathResolver) Root() string { return p.root }

// RepoDir resolves the directory holding all snapshots of one
// repository.
func (p *PathResolver) RepoDir(ref RepositoryRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return p.contain(filepath.Join(p.root, ref.Owner, ref.Name))
}

// SnapshotDir resolves the directory of a single snapshot.
func (p *PathResolver) SnapshotDir(id SnapshotID) (string, error) {
	repoDir, err := p.RepoDir(id.Ref)
	if err != nil {
		return "", err
	}
	if id.Timestamp == "" || !filepath.IsLocal(id.Timestamp) {
		return "", fmt.Errorf("%w: bad timestamp %q", ErrInvalidIdentifier, id.Timestamp)
	}
	return p.contain(filepath.Join(repoDir, id.Timestamp))
}

// contain verifies path is a strict descendant of the backup root.
func (p *PathResolver) contain(path string) (string, error) {
	rel, err := filepath.Rel(p.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes backup root", ErrInvalidIdentifier, path)
	}
	return path, nil
}

// NewSnapshotID allocates a snapshot identifier for ref at now. If a
// directory for the same wall-clock second already exists, a counter
// suffix disambiguates, so two snapshots requested within one second
// still get distinct IDs.
func (p *PathResolver) NewSnapshotID(ref RepositoryRef, now time.Time) (SnapshotID, error) {
	repoDir, err := p.RepoDir(ref)
	if err != nil {
		return SnapshotID{}, err
	}
	base := now.UTC().Format(TimestampFormat)
	ts := base
	for n := 1; ; n++ {
		// Any stat error means nothing usable exists at that path;
		// MkdirAll reports the real problem later.
		if _, err := os.Stat(filepath.Join(repoDir, ts)); err != nil {
			break
		}
		ts = fmt.Sprintf("%s-%d", base, n)
	}
	return SnapshotID{Ref: ref, Timestamp: ts}, nil
}
