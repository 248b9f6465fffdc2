// Package extract turns receipt photos into line items using an external
// image-understanding model.
package extract

import (
	"context"

	"receipts/internal/apperr"
	"receipts/internal/models"
)

// Result holds the parsed items together with the unparsed model output.
type Result struct {
	Items []models.LineItem
	Raw   string
}

// Extractor extracts line items from an image.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (Result, error)
}

// Disabled is used when no model credentials are configured.
type Disabled struct{}

func (Disabled) Extract(context.Context, []byte, string) (Result, error) {
	return Result{}, apperr.New(apperr.KindExternalService, "image extraction is not configured")
}
