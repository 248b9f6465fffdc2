package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"receipts/internal/apperr"
	"receipts/internal/models"
)

const maxNameAttempts = 1000

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ArtifactStore writes one JSON document per contribution into a directory.
// Artifacts are never updated after they are written.
type ArtifactStore struct {
	dir    string
	prefix string
}

// NewArtifactStore creates a store writing into dir. Artifact names start
// with prefix.
func NewArtifactStore(dir, prefix string) *ArtifactStore {
	return &ArtifactStore{dir: dir, prefix: prefix}
}

// Init creates the artifact directory.
func (s *ArtifactStore) Init(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "failed to create artifact directory", err)
	}
	return nil
}

// BaseName returns the artifact name for a campaign on a calendar date,
// without extension or collision suffix.
func (s *ArtifactStore) BaseName(campaignName string, date time.Time) string {
	safe := unsafeNameChars.ReplaceAllString(campaignName, "_")
	return fmt.Sprintf("%s_%s_%s", s.prefix, safe, date.Format(time.DateOnly))
}

// Write persists c and returns its reference. When the dated name is already
// taken a numeric suffix is appended, so earlier artifacts are never
// overwritten.
func (s *ArtifactStore) Write(_ context.Context, campaignName string, date time.Time, c models.Contribution) (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", apperr.Wrap(apperr.KindPersistence, "failed to encode artifact", err)
	}

	base := s.BaseName(campaignName, date)
	for n := 1; n <= maxNameAttempts; n++ {
		ref := base + ".json"
		if n > 1 {
			ref = fmt.Sprintf("%s_%d.json", base, n)
		}

		f, err := os.OpenFile(filepath.Join(s.dir, ref), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", apperr.Wrap(apperr.KindPersistence, "failed to create artifact", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", apperr.Wrap(apperr.KindPersistence, "failed to write artifact", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", apperr.Wrap(apperr.KindPersistence, "failed to close artifact", err)
		}
		return ref, nil
	}
	return "", apperr.New(apperr.KindPersistence, fmt.Sprintf("no free artifact name for %s", base))
}

// Read loads the artifact with the given reference.
func (s *ArtifactStore) Read(_ context.Context, ref string) (*models.Contribution, error) {
	path, err := s.pathFor(ref)
	if err != nil {
		return nil, err
	}

	var c models.Contribution
	if err := readJSON(path, &c); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("artifact %s not found", ref))
		}
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to read artifact", err)
	}
	return &c, nil
}

// Delete removes the artifact. Missing artifacts are not an error.
func (s *ArtifactStore) Delete(_ context.Context, ref string) error {
	path, err := s.pathFor(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Wrap(apperr.KindPersistence, fmt.Sprintf("failed to delete artifact %s", ref), err)
	}
	return nil
}

// pathFor only accepts bare file names so references cannot escape dir.
func (s *ArtifactStore) pathFor(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", apperr.New(apperr.KindNotFound, fmt.Sprintf("artifact %q not found", ref))
	}
	return filepath.Join(s.dir, ref), nil
}
