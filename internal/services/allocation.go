package services

import (
	"fmt"

	"receipts/internal/apperr"
	"receipts/internal/models"
)

// UsedIndices returns the set of registry indices referenced by any entry
// of the campaign. Entries without a person slot are skipped.
func UsedIndices(c *models.Campaign) map[int]struct{} {
	used := make(map[int]struct{}, c.PersonCount)
	for _, e := range c.Entries {
		if e.PersonIndex < 0 {
			continue
		}
		used[e.PersonIndex] = struct{}{}
	}
	return used
}

// AvailablePersons returns the registry records not yet consumed by the
// campaign, in registry order.
func AvailablePersons(c *models.Campaign, registry []models.PersonRecord) []models.PersonRecord {
	used := UsedIndices(c)
	available := make([]models.PersonRecord, 0, len(registry))
	for i, p := range registry {
		if _, ok := used[i]; !ok {
			available = append(available, p)
		}
	}
	return available
}

// NextAvailable returns the lowest unused registry index below MaxPersons.
// ok is false when the campaign is full or no index is free.
func NextAvailable(c *models.Campaign, registry []models.PersonRecord) (index int, person models.PersonRecord, ok bool) {
	if c.Full() {
		return 0, nil, false
	}

	used := UsedIndices(c)
	limit := min(c.MaxPersons, len(registry))
	for i := 0; i < limit; i++ {
		if _, taken := used[i]; !taken {
			return i, registry[i], true
		}
	}
	return 0, nil, false
}

// Admit decides whether the campaign can take another contribution and
// returns the person slot it would consume.
func Admit(c *models.Campaign, registry []models.PersonRecord) (int, models.PersonRecord, error) {
	if c.Full() {
		return 0, nil, apperr.New(apperr.KindCapacity,
			fmt.Sprintf("campaign %q is full (%d/%d person records used)", c.Name, c.PersonCount, c.MaxPersons))
	}

	index, person, ok := NextAvailable(c, registry)
	if !ok {
		return 0, nil, apperr.New(apperr.KindInconsistentState,
			fmt.Sprintf("campaign %q reports %d/%d person records used but none is free", c.Name, c.PersonCount, c.MaxPersons))
	}
	return index, person, nil
}
