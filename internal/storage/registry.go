package storage

import (
	"context"

	"github.com/google/logger"

	"receipts/internal/models"
)

// PersonRegistry reads the externally supplied list of person records.
// The file is read on every call and never written.
type PersonRegistry struct {
	path string
}

// NewPersonRegistry creates a registry backed by the JSON array at path.
func NewPersonRegistry(path string) *PersonRegistry {
	return &PersonRegistry{path: path}
}

// LoadAll returns the records in file order. Read or parse failures are
// logged and yield an empty registry.
func (r *PersonRegistry) LoadAll(_ context.Context) []models.PersonRecord {
	var persons []models.PersonRecord
	if err := readJSON(r.path, &persons); err != nil {
		logger.Errorf("Failed to load person records from %s: %v", r.path, err)
		return []models.PersonRecord{}
	}
	if persons == nil {
		return []models.PersonRecord{}
	}
	return persons
}
