package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/google/logger"
	"google.golang.org/genai"

	"receipts/internal/apperr"
	"receipts/internal/config"
)

const receiptPrompt = `
Analysiere dieses Bild eines Einkaufsbelegs/Quittung und extrahiere alle Produkte mit folgenden Informationen:
- Produktname
- Preis
- Datum (falls sichtbar)
- Supermarkt/Shop (falls sichtbar)

Antworte NUR mit einem JSON-Array im folgenden Format:
[
  {
    "Produkt": "Produktname",
    "Preis": "Preis in Euro",
    "Datum": "Datum (falls sichtbar)",
    "Supermarkt/Shop": "Shop-Name (falls sichtbar)"
  }
]

Falls keine Produkte erkennbar sind, gib ein leeres Array zurück: []

Wichtig: Antworte nur mit dem JSON, keine zusätzlichen Erklärungen.
`

// Gemini extracts line items with the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

var _ Extractor = (*Gemini)(nil)

// NewGemini creates a Gemini extractor.
func NewGemini(ctx context.Context, cfg config.GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Extract sends the image with the receipt prompt and parses the reply.
func (g *Gemini) Extract(ctx context.Context, image []byte, mimeType string) (Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	parts := []*genai.Part{
		genai.NewPartFromText(receiptPrompt),
		genai.NewPartFromBytes(image, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindExternalService, "image extraction failed", err)
	}

	raw := resp.Text()
	items, err := ParseLineItems(raw)
	if err != nil {
		logger.Warningf("Unparseable extraction response: %s", raw)
		return Result{Raw: raw}, err
	}
	return Result{Items: items, Raw: raw}, nil
}
