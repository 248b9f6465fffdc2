package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"receipts/internal/apperr"
	"receipts/internal/models"
)

// Accepted spellings per field, in lookup order.
var (
	nameKeys  = []string{"Produkt", "name", "product", "Name", "Product"}
	priceKeys = []string{"Preis", "price", "Price"}
	dateKeys  = []string{"Datum", "date", "Date"}
	shopKeys  = []string{"Supermarkt/Shop", "shop", "Shop", "Supermarkt", "store"}
)

// ParseLineItems pulls a JSON array out of a model response. It parses the
// span from the first '[' to the last ']', or the whole text when there is
// no such span. Failures carry the raw response.
func ParseLineItems(raw string) ([]models.LineItem, error) {
	text := raw
	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			text = raw[start : end+1]
		}
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, &apperr.Error{
			Kind:    apperr.KindExternalService,
			Message: "failed to parse extraction response",
			Raw:     raw,
			Err:     err,
		}
	}
	return NormalizeLineItems(items), nil
}

// DecodeSelected decodes line items submitted by a client.
func DecodeSelected(data []byte) ([]models.LineItem, error) {
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "selectedProducts must be a JSON array", err)
	}
	return NormalizeLineItems(items), nil
}

// NormalizeLineItems maps loosely shaped objects onto LineItem. Numbers are
// rendered as strings; missing fields stay empty.
func NormalizeLineItems(raw []map[string]any) []models.LineItem {
	items := make([]models.LineItem, 0, len(raw))
	for _, m := range raw {
		items = append(items, models.LineItem{
			Name:  lookup(m, nameKeys),
			Price: lookup(m, priceKeys),
			Date:  lookup(m, dateKeys),
			Shop:  lookup(m, shopKeys),
		})
	}
	return items
}

func lookup(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s := stringify(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
