package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// MetadataDirName holds the per-class artifacts inside a snapshot.
const MetadataDirName = "metadata"

// SkipRecord notes one entity that could not be processed, with the
// reason. Backups fetch whole pages, so a listing failure fails the
// entire class and leaves artifact skips empty; restore replay, which
// recreates entities one at a time, records one per entity it could
// not recreate.
type SkipRecord struct {
	Entity string `json:"entity"`
	Reason string `json:"reason"`
}

// Artifact is one entity class's export: the records in
// provider-return order plus the bookkeeping that tells a reader
// whether the export is complete.
type Artifact struct {
	EntityClass  string       `json:"entity_class"`
	FetchedCount int          `json:"fetched_count"`
	Truncated    bool         `json:"truncated"`
	Skipped      []SkipRecord `json:"skipped,omitempty"`
	Entities     any          `json:"entities"`
}

// artifactPath returns the artifact file for class inside a snapshot
// directory, preferring the compressed form when both exist.
func artifactPath(snapshotDir, class string) string {
	base := filepath.Join(snapshotDir, MetadataDirName, class+".json")
	if _, err := os.Stat(base + ".zst"); err == nil {
		return base + ".zst"
	}
	return base
}

// WriteArtifact serializes an artifact into the snapshot's metadata
// directory, zstd-compressed when compress is set.
func WriteArtifact(snapshotDir string, a *Artifact, compress bool) error {
	dir := filepath.Join(snapshotDir, MetadataDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metadata directory %q: %w", dir, err)
	}

	path := filepath.Join(dir, a.EntityClass+".json")
	if compress {
		path += ".zst"
	}
	outFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact file %q: %w", path, err)
	}
	defer outFile.Close()

	var out io.Writer = outFile
	var zw *zstd.Encoder
	if compress {
		zw, err = zstd.NewWriter(outFile)
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		out = zw
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(a); err != nil {
		return fmt.Errorf("encode %s artifact: %w", a.EntityClass, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("flush zstd writer: %w", err)
		}
	}
	return nil
}

// ReadArtifact loads an entity class artifact, transparently handling
// the compressed form. Entities are returned raw; callers decode into
// the concrete type for the class.
func ReadArtifact(snapshotDir, class string) (*Artifact, json.RawMessage, error) {
	path := artifactPath(snapshotDir, class)
	inFile, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact %q: %w", path, err)
	}
	defer inFile.Close()

	var in io.Reader = inFile
	if filepath.Ext(path) == ".zst" {
		zr, err := zstd.NewReader(inFile)
		if err != nil {
			return nil, nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer zr.Close()
		in = zr
	}

	var raw struct {
		EntityClass  string          `json:"entity_class"`
		FetchedCount int             `json:"fetched_count"`
		Truncated    bool            `json:"truncated"`
		Skipped      []SkipRecord    `json:"skipped"`
		Entities     json.RawMessage `json:"entities"`
	}
	if err := json.NewDecoder(in).Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("decode %s artifact: %w", class, err)
	}
	return &Artifact{
		EntityClass:  raw.EntityClass,
		FetchedCount: raw.FetchedCount,
		Truncated:    raw.Truncated,
		Skipped:      raw.Skipped,
	}, raw.Entities, nil
}
