package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"receipts/internal/apperr"
	"receipts/internal/models"
)

func TestPersonRegistry(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	t.Run("LoadAll keeps file order", func(t *testing.T) {
		path := filepath.Join(dir, "persons.json")
		data := `[{"name":"Anna","city":"Bonn"},{"name":"Ben"},{"name":"Cleo","age":41}]`
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("Failed to write registry: %v", err)
		}

		persons := NewPersonRegistry(path).LoadAll(ctx)
		if len(persons) != 3 {
			t.Fatalf("Expected 3 persons, but got %d", len(persons))
		}
		if persons[0]["name"] != "Anna" || persons[2]["name"] != "Cleo" {
			t.Errorf("Unexpected order: %+v", persons)
		}
	})

	t.Run("LoadAll degrades to empty on missing file", func(t *testing.T) {
		persons := NewPersonRegistry(filepath.Join(dir, "missing.json")).LoadAll(ctx)
		if persons == nil || len(persons) != 0 {
			t.Errorf("Expected empty registry, but got %+v", persons)
		}
	})

	t.Run("LoadAll degrades to empty on garbage", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
			t.Fatalf("Failed to write registry: %v", err)
		}
		if persons := NewPersonRegistry(path).LoadAll(ctx); len(persons) != 0 {
			t.Errorf("Expected empty registry, but got %+v", persons)
		}
	})
}

func TestCampaignStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := NewCampaignStore(filepath.Join(dir, "data", "actions.json"))

	t.Run("Init creates empty collection", func(t *testing.T) {
		if err := store.Init(ctx); err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		data, err := os.ReadFile(store.Path())
		if err != nil {
			t.Fatalf("Expected collection file, got %v", err)
		}
		if string(data) != "[]" {
			t.Errorf("Expected empty array, but got %q", data)
		}
	})

	t.Run("SaveAll then LoadAll round-trips", func(t *testing.T) {
		created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
		original := []models.Campaign{
			{
				ID:          1709285400000,
				Name:        "Spring2024",
				Description: "Spring drive",
				PersonCount: 1,
				MaxPersons:  3,
				CreatedAt:   created,
				Entries: []models.Entry{
					{
						ID:          "0190a1b2-0000-7000-8000-000000000001",
						Product:     "Milch",
						Price:       "1,19",
						Date:        "2024-03-01",
						Shop:        "Rewe",
						PersonIndex: 0,
						PersonData:  models.PersonRecord{"name": "Anna", "age": float64(30)},
						CreatedAt:   created.Add(time.Hour),
						ArtifactRef: "gzg_Spring2024_2024-03-01.json",
					},
				},
			},
			{
				ID:         1709285400001,
				Name:       "Summer",
				MaxPersons: 3,
				Entries:    []models.Entry{},
				CreatedAt:  created.Add(time.Minute),
			},
		}

		if err := store.SaveAll(ctx, original); err != nil {
			t.Fatalf("SaveAll failed: %v", err)
		}
		loaded := store.LoadAll(ctx)

		if !reflect.DeepEqual(original, loaded) {
			t.Errorf("Round-trip mismatch:\nwant %+v\ngot  %+v", original, loaded)
		}
	})

	t.Run("LoadAll degrades to empty on garbage", func(t *testing.T) {
		broken := NewCampaignStore(filepath.Join(dir, "broken.json"))
		if err := os.WriteFile(broken.Path(), []byte("{"), 0o644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
		if got := broken.LoadAll(ctx); len(got) != 0 {
			t.Errorf("Expected empty collection, but got %+v", got)
		}
	})

	t.Run("LoadAll reads collections with numeric entry ids", func(t *testing.T) {
		legacy := NewCampaignStore(filepath.Join(dir, "legacy.json"))
		data := `[{"id":1717000000000,"name":"Alt","description":"","personCount":1,"maxPersons":2,
			"entries":[
				{"id":1717000000001.4242,"product":"Brot","price":"2,49","date":"2024-05-29","shop":"Aldi",
				 "personIndex":0,"personData":{"name":"Anna"},"createdAt":"2024-05-29T10:00:00.000Z","jsonFile":"gzg_Alt_2024-05-29.json"},
				{"id":1717000000002.5,"product":"Kaffee","price":"5,99","date":"2024-05-29","shop":"Aldi",
				 "createdAt":"2024-05-29T10:00:00.000Z"}
			],"createdAt":"2024-05-29T09:00:00.000Z"}]`
		if err := os.WriteFile(legacy.Path(), []byte(data), 0o644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}

		got := legacy.LoadAll(ctx)
		if len(got) != 1 || len(got[0].Entries) != 2 {
			t.Fatalf("Expected 1 campaign with 2 entries, but got %+v", got)
		}
		first, second := got[0].Entries[0], got[0].Entries[1]
		if first.ID != "1717000000001.4242" || first.PersonIndex != 0 {
			t.Errorf("Unexpected first entry %+v", first)
		}
		if second.PersonIndex != models.NoPerson {
			t.Errorf("Expected entry without personIndex to use no slot, but got %d", second.PersonIndex)
		}

		if err := legacy.SaveAll(ctx, append(got, models.Campaign{ID: 1717000000001, Name: "Neu"})); err != nil {
			t.Fatalf("SaveAll failed: %v", err)
		}
		if again := legacy.LoadAll(ctx); len(again) != 2 || again[0].Name != "Alt" {
			t.Errorf("Expected both campaigns after save, but got %+v", again)
		}
	})

	t.Run("SaveAll moves an unreadable file aside", func(t *testing.T) {
		sub := t.TempDir()
		broken := NewCampaignStore(filepath.Join(sub, "actions.json"))
		if err := os.WriteFile(broken.Path(), []byte(`[{"id":"oops"`), 0o644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}

		if err := broken.SaveAll(ctx, []models.Campaign{{ID: 1, Name: "Neu"}}); err != nil {
			t.Fatalf("SaveAll failed: %v", err)
		}

		matches, _ := filepath.Glob(broken.Path() + ".corrupt-*")
		if len(matches) != 1 {
			t.Fatalf("Expected one preserved copy, but got %v", matches)
		}
		kept, _ := os.ReadFile(matches[0])
		if string(kept) != `[{"id":"oops"` {
			t.Errorf("Preserved copy differs: %q", kept)
		}
		if got := broken.LoadAll(ctx); len(got) != 1 || got[0].Name != "Neu" {
			t.Errorf("Expected new collection, but got %+v", got)
		}
	})

	t.Run("SaveAll reports persistence errors", func(t *testing.T) {
		bad := NewCampaignStore(filepath.Join(dir, "no-such-dir", "actions.json"))
		err := bad.SaveAll(ctx, nil)
		if !apperr.Is(err, apperr.KindPersistence) {
			t.Errorf("Expected persistence error, but got %v", err)
		}
	})
}

func TestArtifactStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := NewArtifactStore(dir, "gzg")
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	day := time.Date(2024, 5, 17, 15, 0, 0, 0, time.UTC)

	t.Run("BaseName normalizes campaign name", func(t *testing.T) {
		if got := store.BaseName("Früh jahr/24", day); got != "gzg_Fr_h_jahr_24_2024-05-17" {
			t.Errorf("Unexpected base name %q", got)
		}
	})

	t.Run("Same-day writes keep separate artifacts", func(t *testing.T) {
		first, err := store.Write(ctx, "Spring 2024", day, models.Contribution{OriginalFile: "a.jpg", SavedOnServer: true})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		second, err := store.Write(ctx, "Spring 2024", day, models.Contribution{OriginalFile: "b.jpg", SavedOnServer: true})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		if first != "gzg_Spring_2024_2024-05-17.json" {
			t.Errorf("Unexpected first ref %q", first)
		}
		if second != "gzg_Spring_2024_2024-05-17_2.json" {
			t.Errorf("Unexpected second ref %q", second)
		}

		a, err := store.Read(ctx, first)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if a.OriginalFile != "a.jpg" || !a.SavedOnServer {
			t.Errorf("First artifact was overwritten: %+v", a)
		}
	})

	t.Run("Read rejects unknown and unsafe refs", func(t *testing.T) {
		for _, ref := range []string{"missing.json", "../actions.json", "", ".hidden"} {
			if _, err := store.Read(ctx, ref); !apperr.Is(err, apperr.KindNotFound) {
				t.Errorf("%q: expected not found, but got %v", ref, err)
			}
		}
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		ref, err := store.Write(ctx, "Gone", day, models.Contribution{})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := store.Delete(ctx, ref); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := store.Delete(ctx, ref); err != nil {
			t.Errorf("Second delete should succeed, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, ref)); !os.IsNotExist(err) {
			t.Errorf("Expected artifact file to be removed")
		}
	})
}
