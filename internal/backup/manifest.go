package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestFilename is written last, as the commit point of a snapshot.
const ManifestFilename = "manifest.json"

// State of one snapshot component.
type State string

const (
	StatePending  State = "pending"
	StateComplete State = "complete"
	StateFailed   State = "failed"
	StateSkipped  State = "skipped"
)

// Terminal reports whether the state can appear in a committed
// manifest.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateSkipped
}

// SnapshotManifest is the single committed record of a snapshot. Its
// presence on disk with all states terminal is the sole proof that the
// snapshot directory is valid; anything else is a partial write left
// by a crash and is ignored by the catalog.
type SnapshotManifest struct {
	Ref                 RepositoryRef     `json:"ref"`
	Timestamp           string            `json:"timestamp"`
	StartedAt           time.Time         `json:"started_at"`
	CompletedAt         time.Time         `json:"completed_at"`
	ContentState        State             `json:"content_state"`
	MetadataStates      map[string]State  `json:"metadata_states"`
	SourceDefaultBranch string            `json:"source_default_branch,omitempty"`
	EntityCounts        map[string]int    `json:"entity_counts,omitempty"`
	Truncated           map[string]bool   `json:"truncated,omitempty"`
	Errors              map[string]string `json:"errors,omitempty"`
}

// NewManifest returns a manifest with every component pending.
func NewManifest(id SnapshotID, startedAt time.Time) *SnapshotManifest {
	states := make(map[string]State, len(EntityClasses))
	for _, class := range EntityClasses {
		states[class] = StatePending
	}
	return &SnapshotManifest{
		Ref:            id.Ref,
		Timestamp:      id.Timestamp,
		StartedAt:      startedAt,
		ContentState:   StatePending,
		MetadataStates: states,
		EntityCounts:   make(map[string]int),
		Truncated:      make(map[string]bool),
		Errors:         make(map[string]string),
	}
}

// ID returns the snapshot identifier this manifest belongs to.
func (m *SnapshotManifest) ID() SnapshotID {
	return SnapshotID{Ref: m.Ref, Timestamp: m.Timestamp}
}

// Committed reports whether every component reached a terminal state.
// A manifest with failed components is still committed: partial
// backups are surfaced, not hidden.
func (m *SnapshotManifest) Committed() bool {
	if !m.ContentState.Terminal() {
		return false
	}
	for _, class := range EntityClasses {
		if !m.MetadataStates[class].Terminal() {
			return false
		}
	}
	return true
}

// Clean reports whether the snapshot committed without any failed
// component.
func (m *SnapshotManifest) Clean() bool {
	if m.ContentState != StateComplete {
		return false
	}
	for _, state := range m.MetadataStates {
		if state == StateFailed {
			return false
		}
	}
	return true
}

// Write persists the manifest into dirPath. This is the snapshot's
// commit point; the file is written whole via a rename so a crash
// mid-write never leaves a readable half manifest.
func (m *SnapshotManifest) Write(dirPath string) error {
	path := filepath.Join(dirPath, ManifestFilename)
	tmp := path + ".tmp"

	jsonFile, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create manifest file %q: %w", tmp, err)
	}

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m); err != nil {
		jsonFile.Close()
		return fmt.Errorf("encode manifest JSON: %w", err)
	}
	if err := jsonFile.Close(); err != nil {
		return fmt.Errorf("close manifest file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit manifest %q: %w", path, err)
	}
	return nil
}

// LoadManifest reads a manifest from a snapshot directory.
func LoadManifest(dirPath string) (*SnapshotManifest, error) {
	path := filepath.Join(dirPath, ManifestFilename)
	jsonFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %q: %w", path, err)
	}
	defer jsonFile.Close()

	var m SnapshotManifest
	if err := json.NewDecoder(jsonFile).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest %q: %w", path, err)
	}
	return &m, nil
}
