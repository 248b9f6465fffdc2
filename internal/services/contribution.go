package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"maps"
	"time"

	"github.com/google/logger"

	"receipts/internal/apperr"
	"receipts/internal/models"
)

const unknownProduct = "Unknown product"

// ContributionRequest is one submission of accepted line items.
type ContributionRequest struct {
	CampaignID     int64
	Items          []models.LineItem
	Photo          []byte
	PhotoMimeType  string
	SourceFileName string
}

// Record consumes the next free person slot of the campaign for the given
// line items. It writes the artifact, appends one entry per item and saves
// the collection, all under the collection lock.
//
// If the collection save fails after the artifact was written, the artifact
// stays on disk without a referencing entry.
func (s *CampaignService) Record(ctx context.Context, req ContributionRequest) (*models.ContributionResult, error) {
	if len(req.Items) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no products selected")
	}

	var result models.ContributionResult
	err := s.withCollection(ctx, func(campaigns []models.Campaign) error {
		i := findCampaign(campaigns, req.CampaignID)
		if i < 0 {
			return notFound(req.CampaignID)
		}
		c := &campaigns[i]

		personIndex, person, err := Admit(c, s.persons.LoadAll(ctx))
		if err != nil {
			return err
		}

		now := s.now()
		artifact := models.Contribution{
			Timestamp:        now,
			Campaign:         *c,
			OriginalFile:     req.SourceFileName,
			SelectedProducts: req.Items,
			SavedOnServer:    true,
		}
		if len(req.Photo) > 0 {
			artifact.Photo = base64.StdEncoding.EncodeToString(req.Photo)
			artifact.PhotoMimeType = req.PhotoMimeType
		}

		ref, err := s.artifacts.Write(ctx, c.Name, now, artifact)
		if err != nil {
			return err
		}

		c.Entries = append(c.Entries, buildEntries(req.Items, personIndex, person, ref, now, s.entryID)...)
		c.PersonCount = min(c.PersonCount+1, c.MaxPersons)

		if err := s.campaigns.SaveAll(ctx, campaigns); err != nil {
			s.metrics.OrphanedArtifacts.Inc()
			logger.Errorf("Artifact %s is orphaned: saving campaign %d failed: %v", ref, c.ID, err)
			return err
		}

		result = models.ContributionResult{
			Message:       fmt.Sprintf("%d product(s) saved", len(req.Items)),
			EntriesAdded:  len(req.Items),
			ArtifactRef:   ref,
			PersonIndex:   personIndex,
			PersonData:    person,
			PhotoIncluded: artifact.Photo != "",
		}
		logger.Infof("Campaign %d: person %d assigned, %d entries, artifact %s (%d/%d used)",
			c.ID, personIndex, len(req.Items), ref, c.PersonCount, c.MaxPersons)
		return nil
	})
	if err != nil {
		s.metrics.Rejections.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}

	s.metrics.Contributions.Inc()
	s.metrics.EntriesAdded.Add(float64(result.EntriesAdded))
	return &result, nil
}

// buildEntries turns accepted items into entries sharing one person slot.
// Missing dates fall back to the processing date.
func buildEntries(items []models.LineItem, personIndex int, person models.PersonRecord, ref string, now time.Time, newID func() string) []models.Entry {
	processingDate := now.Format(time.DateOnly)
	entries := make([]models.Entry, 0, len(items))
	for _, item := range items {
		e := models.Entry{
			ID:          models.EntryID(newID()),
			Product:     item.Name,
			Price:       item.Price,
			Date:        item.Date,
			Shop:        item.Shop,
			PersonIndex: personIndex,
			PersonData:  maps.Clone(person),
			CreatedAt:   now,
			ArtifactRef: ref,
		}
		if e.Product == "" {
			e.Product = unknownProduct
		}
		if e.Date == "" {
			e.Date = processingDate
		}
		entries = append(entries, e)
	}
	return entries
}
