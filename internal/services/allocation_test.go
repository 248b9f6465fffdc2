package services

import (
	"reflect"
	"testing"

	"receipts/internal/apperr"
	"receipts/internal/models"
)

func registryOf(n int) []models.PersonRecord {
	persons := make([]models.PersonRecord, n)
	for i := range persons {
		persons[i] = models.PersonRecord{"index": float64(i)}
	}
	return persons
}

func campaignUsing(maxPersons int, indices ...int) *models.Campaign {
	c := &models.Campaign{Name: "Test", MaxPersons: maxPersons}
	seen := map[int]bool{}
	for _, i := range indices {
		c.Entries = append(c.Entries, models.Entry{PersonIndex: i})
		if !seen[i] {
			seen[i] = true
			c.PersonCount++
		}
	}
	return c
}

func TestNextAvailable(t *testing.T) {
	t.Run("Returns lowest unused index", func(t *testing.T) {
		registry := registryOf(5)
		c := campaignUsing(5, 0, 2)

		index, person, ok := NextAvailable(c, registry)
		if !ok {
			t.Fatal("Expected a free person, but got none")
		}
		if index != 1 {
			t.Errorf("Expected index 1, but got %d", index)
		}
		if !reflect.DeepEqual(person, registry[1]) {
			t.Errorf("Expected record 1, but got %+v", person)
		}
	})

	t.Run("Independent of entry order", func(t *testing.T) {
		registry := registryOf(5)
		c := campaignUsing(5, 3, 0, 0, 1)

		index, _, _ := NextAvailable(c, registry)
		if index != 2 {
			t.Errorf("Expected index 2, but got %d", index)
		}
	})

	t.Run("Full campaign has none", func(t *testing.T) {
		registry := registryOf(3)
		c := campaignUsing(2, 0, 1)

		if _, _, ok := NextAvailable(c, registry); ok {
			t.Error("Expected no free person for a full campaign")
		}
	})

	t.Run("Entries without a person slot are ignored", func(t *testing.T) {
		c := campaignUsing(3, 1)
		c.Entries = append(c.Entries, models.Entry{PersonIndex: models.NoPerson})

		index, _, ok := NextAvailable(c, registryOf(3))
		if !ok || index != 0 {
			t.Errorf("Expected index 0, but got %d (ok=%v)", index, ok)
		}
		if used := UsedIndices(c); len(used) != 1 {
			t.Errorf("Expected 1 used index, but got %v", used)
		}
	})

	t.Run("Registry growth does not raise capacity", func(t *testing.T) {
		registry := registryOf(4)
		c := campaignUsing(2, 0)

		index, _, ok := NextAvailable(c, registry)
		if !ok || index != 1 {
			t.Errorf("Expected index 1, but got %d (ok=%v)", index, ok)
		}
	})
}

func TestAvailablePersons(t *testing.T) {
	registry := registryOf(3)
	c := campaignUsing(3, 1)

	available := AvailablePersons(c, registry)
	want := []models.PersonRecord{registry[0], registry[2]}
	if !reflect.DeepEqual(available, want) {
		t.Errorf("Expected %+v, but got %+v", want, available)
	}
}

func TestAdmit(t *testing.T) {
	t.Run("Capacity gate", func(t *testing.T) {
		_, _, err := Admit(campaignUsing(2, 0, 1), registryOf(2))
		if !apperr.Is(err, apperr.KindCapacity) {
			t.Errorf("Expected capacity error, but got %v", err)
		}
	})

	t.Run("Count and entries disagree", func(t *testing.T) {
		c := campaignUsing(3, 0, 1, 2)
		c.PersonCount = 1

		_, _, err := Admit(c, registryOf(3))
		if !apperr.Is(err, apperr.KindInconsistentState) {
			t.Errorf("Expected inconsistent state error, but got %v", err)
		}
	})

	t.Run("Admits the next slot", func(t *testing.T) {
		index, _, err := Admit(campaignUsing(3, 0), registryOf(3))
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if index != 1 {
			t.Errorf("Expected index 1, but got %d", index)
		}
	})
}
