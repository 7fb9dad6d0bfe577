// Package backup manages point-in-time copies of the persisted data file.
//
// Artifacts are named <base>_<runID><ext> after the data file they copy,
// e.g. goal_tracker_20250101_120000.db, so a directory listing sorts
// chronologically and the retention sweep can parse ages back out of the
// names. Entries that don't match the naming pattern are never touched.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"padeploy/internal/security"
	"padeploy/pkg/fileutil"
)

// RunIDFormat is the timestamp layout used for run identifiers and
// artifact names.
const RunIDFormat = "20060102_150405"

// Artifact is one retained backup of the data file.
type Artifact struct {
	Path      string
	RunID     string
	Timestamp time.Time
	Size      int64
}

// Store manages backup artifacts for one target's data file.
type Store struct {
	// Dir is the backup directory.
	Dir string

	// DataFile is the absolute path of the live data file.
	DataFile string

	base string // data file name without extension
	ext  string // data file extension, including the dot
}

// NewStore creates a store for the given backup directory and data file.
func NewStore(dir, dataFile string) *Store {
	name := filepath.Base(dataFile)
	ext := filepath.Ext(name)
	return &Store{
		Dir:      dir,
		DataFile: dataFile,
		base:     strings.TrimSuffix(name, ext),
		ext:      ext,
	}
}

// ArtifactPath returns the artifact path for a given run identifier.
func (s *Store) ArtifactPath(runID string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%s%s", s.base, runID, s.ext))
}

// Create copies the data file to a new artifact named by runID and
// verifies the copy (existence and size). The artifact must be verified on
// disk before any code or schema mutation is attempted.
func (s *Store) Create(runID string) (string, error) {
	dst := s.ArtifactPath(runID)
	if err := fileutil.CopyFileVerified(s.DataFile, dst); err != nil {
		return "", fmt.Errorf("backup of %s failed: %w", s.DataFile, err)
	}
	return dst, nil
}

// Restore copies an artifact back over the live data file, verifying the
// copy. artifactPath must be inside the backup directory.
func (s *Store) Restore(artifactPath string) error {
	if _, err := security.EnsureWithin(s.Dir, artifactPath); err != nil {
		return fmt.Errorf("refusing to restore from outside the backup directory: %w", err)
	}
	if err := fileutil.CopyFileVerified(artifactPath, s.DataFile); err != nil {
		return fmt.Errorf("restore from %s failed: %w", artifactPath, err)
	}
	return nil
}

// SnapshotEnv copies environment/config files into the backup directory,
// tagged with the run identifier (e.g. .env_20250101_120000). Failures are
// returned as warnings; environment files are convenience copies, not the
// safety-critical artifact.
func (s *Store) SnapshotEnv(runID, appRoot string, files []string) (copied []string, warnings []string) {
	for _, f := range files {
		src := filepath.Join(appRoot, f)
		if !fileutil.FileExists(src) {
			warnings = append(warnings, fmt.Sprintf("env file %s not found, skipping", f))
			continue
		}
		dst := filepath.Join(s.Dir, fmt.Sprintf("%s_%s", filepath.Base(f), runID))
		if _, err := fileutil.CopyFile(src, dst); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to snapshot %s: %v", f, err))
			continue
		}
		copied = append(copied, dst)
	}
	return copied, warnings
}

// List returns data-file artifacts sorted newest first. Files that do not
// match the naming pattern are ignored.
func (s *Store) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		runID, ts, ok := s.parseName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Path:      filepath.Join(s.Dir, entry.Name()),
			RunID:     runID,
			Timestamp: ts,
			Size:      info.Size(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Timestamp.After(artifacts[j].Timestamp)
	})

	return artifacts, nil
}

// Latest returns the most recent artifact, or nil if none exist.
func (s *Store) Latest() (*Artifact, error) {
	artifacts, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, nil
	}
	return &artifacts[0], nil
}

// Sweep deletes artifacts beyond the retain most recent and returns the
// deleted paths. Unparseable entries are skipped, never deleted. A retain
// count below 1 is treated as 1 so the artifact from the current run
// always survives.
func (s *Store) Sweep(retain int) ([]string, error) {
	if retain < 1 {
		retain = 1
	}

	artifacts, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(artifacts) <= retain {
		return nil, nil
	}

	var deleted []string
	for _, artifact := range artifacts[retain:] {
		if _, err := security.EnsureWithin(s.Dir, artifact.Path); err != nil {
			continue
		}
		if err := os.Remove(artifact.Path); err != nil {
			return deleted, fmt.Errorf("failed to delete old backup %s: %w", artifact.Path, err)
		}
		deleted = append(deleted, artifact.Path)
	}

	return deleted, nil
}

// parseName extracts the run identifier from an artifact name.
// Returns ok=false for names that don't match <base>_<runID><ext>.
func (s *Store) parseName(name string) (string, time.Time, bool) {
	prefix := s.base + "_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, s.ext) {
		return "", time.Time{}, false
	}
	runID := strings.TrimSuffix(strings.TrimPrefix(name, prefix), s.ext)
	ts, err := time.ParseInLocation(RunIDFormat, runID, time.Local)
	if err != nil {
		return "", time.Time{}, false
	}
	return runID, ts, true
}
