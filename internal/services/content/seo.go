package content

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/models"
)

const descriptionLength = 150

// SEOWriter stores search metadata on the content record
type SEOWriter struct {
	store  interfaces.ContentStore
	logger arbor.ILogger
}

func NewSEOWriter(store interfaces.ContentStore, logger arbor.ILogger) *SEOWriter {
	return &SEOWriter{store: store, logger: logger}
}

// WriteMetadata sets the meta title, description, focus keyword and JSON-LD
func (w *SEOWriter) WriteMetadata(ctx context.Context, record *models.ContentRecord, detail *models.GrantDetail) error {
	structured, err := StructuredData(record.Title, detail)
	if err != nil {
		return err
	}

	meta := map[string]string{
		models.MetaSEOTitle:        MetaTitle(record.Title, detail.SubsidyMaxLimit),
		models.MetaSEODescription:  MetaDescription(detail.Detail, record.Excerpt),
		models.MetaSEOFocusKeyword: FocusKeyword(record),
		models.MetaStructuredData:  structured,
	}

	if err := w.store.Update(ctx, record.ID, &models.ContentFields{Meta: meta}); err != nil {
		return fmt.Errorf("failed to store seo metadata on %s: %w", record.ID, err)
	}

	w.logger.Debug().Str("record_ref", record.ID).Str("seo_title", meta[models.MetaSEOTitle]).Msg("SEO metadata written")
	return nil
}

// MetaTitle is "<title> | 最大<amount>" using whole 億 for large amounts
func MetaTitle(title string, amount int64) string {
	return title + " | 最大" + headlineAmount(amount)
}

func headlineAmount(amount int64) string {
	if amount >= 100_000_000 {
		return fmt.Sprintf("%d億円", amount/100_000_000)
	}
	return FormatAmount(amount)
}

// MetaDescription is the first 150 characters of the description text
func MetaDescription(detail, fallback string) string {
	text := PlainText(detail)
	if text == "" {
		text = PlainText(fallback)
	}
	return Truncate(text, descriptionLength) + "..."
}

// FocusKeyword prefers the keyword the grant was found by
func FocusKeyword(record *models.ContentRecord) string {
	if keyword := record.Meta[models.MetaSourceKeyword]; keyword != "" {
		return keyword
	}
	return record.Title
}

// StructuredData returns schema.org GovernmentService JSON-LD
func StructuredData(title string, detail *models.GrantDetail) (string, error) {
	audience := detail.TargetNumberOfEmployees
	if audience == "" {
		audience = "事業者"
	}
	area := detail.TargetAreaSearch
	if area == "" {
		area = "日本"
	}

	data := map[string]any{
		"@context":    "https://schema.org",
		"@type":       "GovernmentService",
		"name":        title,
		"description": PlainText(detail.Detail),
		"provider": map[string]string{
			"@type": "GovernmentOrganization",
			"name":  "日本政府",
		},
		"audience": map[string]string{
			"@type":        "Audience",
			"audienceType": audience,
		},
		"areaServed": area,
	}
	if detail.DetailPageURL != "" {
		data["url"] = detail.DetailPageURL
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode structured data: %w", err)
	}
	return string(encoded), nil
}

// NoopMetadataWriter discards metadata
type NoopMetadataWriter struct{}

func (NoopMetadataWriter) WriteMetadata(ctx context.Context, record *models.ContentRecord, detail *models.GrantDetail) error {
	return nil
}
