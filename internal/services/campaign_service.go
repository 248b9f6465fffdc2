package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"

	"receipts/internal/apperr"
	"receipts/internal/extract"
	"receipts/internal/lock"
	"receipts/internal/metrics"
	"receipts/internal/models"
)

// collectionLock guards every read-modify-write of the campaign collection.
const collectionLock = "campaigns"

const defaultPhotoMimeType = "image/jpeg"

// PersonSource supplies the person registry.
type PersonSource interface {
	LoadAll(ctx context.Context) []models.PersonRecord
}

// CampaignRepository loads and saves the whole campaign collection.
type CampaignRepository interface {
	LoadAll(ctx context.Context) []models.Campaign
	SaveAll(ctx context.Context, campaigns []models.Campaign) error
}

// ArtifactRepository persists contribution artifacts.
type ArtifactRepository interface {
	Write(ctx context.Context, campaignName string, date time.Time, c models.Contribution) (string, error)
	Read(ctx context.Context, ref string) (*models.Contribution, error)
	Delete(ctx context.Context, ref string) error
}

// Deps are the collaborators of a CampaignService. Locker, Extractor and
// Metrics fall back to an in-process mutex, a disabled extractor and a fresh
// registry when nil. A zero LockTimeout waits as long as the caller's context.
type Deps struct {
	Persons     PersonSource
	Campaigns   CampaignRepository
	Artifacts   ArtifactRepository
	Extractor   extract.Extractor
	Locker      lock.Locker
	LockTimeout time.Duration
	Metrics     *metrics.Metrics
}

// CampaignService manages campaigns and the person slots they consume.
type CampaignService struct {
	persons   PersonSource
	campaigns CampaignRepository
	artifacts ArtifactRepository
	extractor extract.Extractor
	locker    lock.Locker
	lockWait  time.Duration
	metrics   *metrics.Metrics

	now     func() time.Time
	entryID func() string
}

// NewCampaignService creates and initializes a new CampaignService.
func NewCampaignService(d Deps) *CampaignService {
	s := &CampaignService{
		persons:   d.Persons,
		campaigns: d.Campaigns,
		artifacts: d.Artifacts,
		extractor: d.Extractor,
		locker:    d.Locker,
		lockWait:  d.LockTimeout,
		metrics:   d.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
		entryID:   newEntryID,
	}
	if s.extractor == nil {
		s.extractor = extract.Disabled{}
	}
	if s.locker == nil {
		s.locker = lock.NewKeyedMutex()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s
}

// newEntryID returns a UUIDv7: a millisecond timestamp followed by random bits.
func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// withCollection runs fn while holding the collection lock, on a freshly
// loaded copy of all campaigns.
func (s *CampaignService) withCollection(ctx context.Context, fn func(campaigns []models.Campaign) error) error {
	lockCtx := ctx
	if s.lockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}

	unlock, err := s.locker.Lock(lockCtx, collectionLock)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "failed to acquire campaign lock", err)
	}
	defer unlock()

	return fn(s.campaigns.LoadAll(ctx))
}

func findCampaign(campaigns []models.Campaign, id int64) int {
	for i := range campaigns {
		if campaigns[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound(id int64) error {
	return apperr.New(apperr.KindNotFound, fmt.Sprintf("campaign %d not found", id))
}

// ListCampaigns returns all campaigns in creation order.
func (s *CampaignService) ListCampaigns(ctx context.Context) []models.Campaign {
	return s.campaigns.LoadAll(ctx)
}

// GetCampaign returns a single campaign.
func (s *CampaignService) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	campaigns := s.campaigns.LoadAll(ctx)
	i := findCampaign(campaigns, id)
	if i < 0 {
		return nil, notFound(id)
	}
	return &campaigns[i], nil
}

// CreateCampaign adds a campaign sized to the current registry. Names must
// be unique (exact, case-sensitive match).
func (s *CampaignService) CreateCampaign(ctx context.Context, name, description string) (*models.Campaign, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperr.New(apperr.KindValidation, "name is required")
	}

	var created models.Campaign
	err := s.withCollection(ctx, func(campaigns []models.Campaign) error {
		for _, c := range campaigns {
			if c.Name == name {
				return apperr.New(apperr.KindConflict, fmt.Sprintf("a campaign named %q already exists", name))
			}
		}

		now := s.now()
		created = models.Campaign{
			ID:          nextCampaignID(now, campaigns),
			Name:        name,
			Description: description,
			PersonCount: 0,
			MaxPersons:  len(s.persons.LoadAll(ctx)),
			Entries:     []models.Entry{},
			CreatedAt:   now,
		}
		return s.campaigns.SaveAll(ctx, append(campaigns, created))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CampaignsCreated.Inc()
	logger.Infof("Created campaign %d %q with %d person slots", created.ID, created.Name, created.MaxPersons)
	return &created, nil
}

// nextCampaignID derives the id from the clock in milliseconds and bumps it
// past every existing id, so ids stay unique within one tick.
func nextCampaignID(now time.Time, campaigns []models.Campaign) int64 {
	id := now.UnixMilli()
	for _, c := range campaigns {
		if c.ID >= id {
			id = c.ID + 1
		}
	}
	return id
}

// DeleteCampaign removes a campaign after deleting every artifact its
// entries reference. Artifact deletion is best-effort.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id int64) error {
	var deleted models.Campaign
	err := s.withCollection(ctx, func(campaigns []models.Campaign) error {
		i := findCampaign(campaigns, id)
		if i < 0 {
			return notFound(id)
		}
		deleted = campaigns[i]

		for _, ref := range artifactRefs(deleted.Entries) {
			if err := s.artifacts.Delete(ctx, ref); err != nil {
				logger.Warningf("Failed to delete artifact %s of campaign %d: %v", ref, id, err)
				continue
			}
			logger.Infof("Deleted artifact %s", ref)
		}

		remaining := append(campaigns[:i:i], campaigns[i+1:]...)
		return s.campaigns.SaveAll(ctx, remaining)
	})
	if err != nil {
		return err
	}

	s.metrics.CampaignsDeleted.Inc()
	logger.Infof("Deleted campaign %d %q", deleted.ID, deleted.Name)
	return nil
}

// artifactRefs returns the distinct artifact references in first-seen order.
func artifactRefs(entries []models.Entry) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, e := range entries {
		if e.ArtifactRef == "" || seen[e.ArtifactRef] {
			continue
		}
		seen[e.ArtifactRef] = true
		refs = append(refs, e.ArtifactRef)
	}
	return refs
}

// AvailablePersons returns the person records the campaign has not used.
func (s *CampaignService) AvailablePersons(ctx context.Context, id int64) ([]models.PersonRecord, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return AvailablePersons(c, s.persons.LoadAll(ctx)), nil
}

// NextPerson returns the person record the next contribution would consume.
func (s *CampaignService) NextPerson(ctx context.Context, id int64) (int, models.PersonRecord, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	index, person, ok := NextAvailable(c, s.persons.LoadAll(ctx))
	if !ok {
		return 0, nil, apperr.New(apperr.KindNotFound, "no available person records")
	}
	return index, person, nil
}

// ExtractLineItems runs the external extraction. It holds no lock.
func (s *CampaignService) ExtractLineItems(ctx context.Context, image []byte, mimeType string) (extract.Result, error) {
	res, err := s.extractor.Extract(ctx, image, mimeType)
	if err != nil {
		s.metrics.ExtractionFailures.Inc()
		logger.Errorf("Image extraction failed: %v", err)
		return res, err
	}
	logger.Infof("Extracted %d line item(s)", len(res.Items))
	return res, nil
}

// Photo returns the photo embedded in an artifact and its MIME type.
func (s *CampaignService) Photo(ctx context.Context, ref string) ([]byte, string, error) {
	a, err := s.artifacts.Read(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if a.Photo == "" {
		return nil, "", apperr.New(apperr.KindNotFound, fmt.Sprintf("artifact %s has no photo", ref))
	}

	data, err := base64.StdEncoding.DecodeString(a.Photo)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindPersistence, fmt.Sprintf("artifact %s has a corrupt photo", ref), err)
	}
	mimeType := a.PhotoMimeType
	if mimeType == "" {
		mimeType = defaultPhotoMimeType
	}
	return data, mimeType, nil
}
