package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PersonRecord is one entry of the person registry. Its fields are not
// interpreted; a record is identified only by its position in the registry.
type PersonRecord map[string]any

// Campaign represents one allocation round. MaxPersons is the registry size
// at creation time and never changes afterwards.
type Campaign struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PersonCount int       `json:"personCount"`
	MaxPersons  int       `json:"maxPersons"`
	Entries     []Entry   `json:"entries"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Full reports whether every person slot of the campaign is consumed.
func (c *Campaign) Full() bool {
	return c.PersonCount >= c.MaxPersons
}

// NoPerson marks an entry that references no registry slot.
const NoPerson = -1

// EntryID identifies an entry. Older collections stored numeric ids; they
// are kept as their literal text.
type EntryID string

func (id *EntryID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = EntryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("entry id must be a string or a number: %w", err)
	}
	*id = EntryID(n.String())
	return nil
}

// Entry is one contributed line item. All entries of one contribution share
// the same PersonIndex and ArtifactRef.
type Entry struct {
	ID          EntryID      `json:"id"`
	Product     string       `json:"product"`
	Price       string       `json:"price"`
	Date        string       `json:"date"`
	Shop        string       `json:"shop"`
	PersonIndex int          `json:"personIndex"`
	PersonData  PersonRecord `json:"personData"`
	CreatedAt   time.Time    `json:"createdAt"`
	ArtifactRef string       `json:"jsonFile"`
}

// UnmarshalJSON decodes an entry, leaving PersonIndex at NoPerson when the
// document has no personIndex.
func (e *Entry) UnmarshalJSON(b []byte) error {
	type plain Entry
	p := plain{PersonIndex: NoPerson}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

// LineItem is the canonical shape of a receipt line after normalization.
// Empty fields mean the value was absent in the source.
type LineItem struct {
	Name  string `json:"name"`
	Price string `json:"price"`
	Date  string `json:"date"`
	Shop  string `json:"shop"`
}

// Contribution is the immutable artifact written once per submission.
type Contribution struct {
	Timestamp        time.Time  `json:"timestamp"`
	Campaign         Campaign   `json:"action"`
	OriginalFile     string     `json:"originalFile"`
	SelectedProducts []LineItem `json:"selectedProducts"`
	// Photo is the base64 encoded upload, empty when none was sent.
	Photo         string `json:"photo,omitempty"`
	PhotoMimeType string `json:"photoMimeType,omitempty"`
	SavedOnServer bool   `json:"savedOnServer"`
}

// ContributionResult is returned after a contribution has been recorded.
type ContributionResult struct {
	Message       string       `json:"message"`
	EntriesAdded  int          `json:"entriesAdded"`
	ArtifactRef   string       `json:"dataFile"`
	PersonIndex   int          `json:"personIndex"`
	PersonData    PersonRecord `json:"personData"`
	PhotoIncluded bool         `json:"photoIncluded"`
}
