package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/logger"

	"receipts/internal/apperr"
	"receipts/internal/models"
)

// CampaignStore keeps the whole campaign collection in one JSON file.
type CampaignStore struct {
	path string
}

// NewCampaignStore creates a store backed by the JSON file at path.
func NewCampaignStore(path string) *CampaignStore {
	return &CampaignStore{path: path}
}

// Path returns the backing file.
func (s *CampaignStore) Path() string {
	return s.path
}

// Init creates the parent directory and an empty collection if the file
// does not exist yet.
func (s *CampaignStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "failed to create data directory", err)
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return apperr.Wrap(apperr.KindPersistence, "failed to stat campaign file", err)
	}
	return s.SaveAll(ctx, []models.Campaign{})
}

// LoadAll returns every campaign in creation order. A missing file is an
// empty collection; read or parse failures are logged and also yield an
// empty collection.
func (s *CampaignStore) LoadAll(_ context.Context) []models.Campaign {
	var campaigns []models.Campaign
	if err := readJSON(s.path, &campaigns); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Errorf("Failed to load campaigns from %s: %v", s.path, err)
		}
		return []models.Campaign{}
	}
	if campaigns == nil {
		return []models.Campaign{}
	}
	return campaigns
}

// SaveAll replaces the whole collection. A current file that does not
// decode is first moved aside as <path>.corrupt-<timestamp>.
func (s *CampaignStore) SaveAll(_ context.Context, campaigns []models.Campaign) error {
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	if err := s.quarantineMalformed(); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "failed to preserve unreadable campaign file", err)
	}
	if err := writeJSONAtomic(s.path, campaigns); err != nil {
		logger.Errorf("Failed to save campaigns: %v", err)
		return apperr.Wrap(apperr.KindPersistence, fmt.Sprintf("failed to save %d campaign(s)", len(campaigns)), err)
	}
	return nil
}

func (s *CampaignStore) quarantineMalformed() error {
	var current []models.Campaign
	err := readJSON(s.path, &current)
	if err == nil || !errors.Is(err, errMalformed) {
		return nil
	}

	aside := fmt.Sprintf("%s.corrupt-%s", s.path, time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.Rename(s.path, aside); err != nil {
		return err
	}
	logger.Warningf("Moved unreadable campaign file to %s", aside)
	return nil
}
