package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/models"
)

var (
	contentSectionRe = regexp.MustCompile(`(?s)\[CONTENT\](.+?)\[/CONTENT\]`)
	excerptSectionRe = regexp.MustCompile(`(?s)\[EXCERPT\](.+?)\[/EXCERPT\]`)
	summarySectionRe = regexp.MustCompile(`(?s)\[SUMMARY\](.+?)\[/SUMMARY\]`)
)

// Enhancement is the parsed generator response
type Enhancement struct {
	Content string
	Excerpt string
	Summary string
}

// Empty reports whether no section was found
func (e Enhancement) Empty() bool {
	return e.Content == "" && e.Excerpt == "" && e.Summary == ""
}

// Processor enriches queued records with generated copy and SEO metadata
type Processor struct {
	store     interfaces.ContentStore
	generator interfaces.TextGenerator
	writer    interfaces.MetadataWriter
	logger    arbor.ILogger
	now       func() time.Time
}

// NewProcessor creates the enrichment processor. Use llm.NoopGenerator
// and NoopMetadataWriter for collaborators that are not configured.
func NewProcessor(store interfaces.ContentStore, generator interfaces.TextGenerator, writer interfaces.MetadataWriter, logger arbor.ILogger) *Processor {
	return &Processor{
		store:     store,
		generator: generator,
		writer:    writer,
		logger:    logger,
		now:       time.Now,
	}
}

// Enrich rewrites the record's copy when a generator is available, then
// writes SEO metadata. Every step runs; failures are joined.
func (p *Processor) Enrich(ctx context.Context, item *models.QueueItem) error {
	record, err := p.store.Get(ctx, item.RecordRef)
	if err != nil {
		return fmt.Errorf("failed to load record %s: %w", item.RecordRef, err)
	}

	detail, err := DetailFromRecord(record)
	if err != nil {
		return err
	}

	if err := p.setProcessingStatus(ctx, record.ID, ProcessingInProgress); err != nil {
		return err
	}

	var errs []error
	if p.generator.Available() {
		if err := p.enhance(ctx, record, detail); err != nil {
			errs = append(errs, err)
		}
	}

	refreshed, err := p.store.Get(ctx, record.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to reload record %s: %w", record.ID, err))
	} else if err := p.writer.WriteMetadata(ctx, refreshed, detail); err != nil {
		errs = append(errs, fmt.Errorf("failed to write metadata: %w", err))
	}

	if err := p.setProcessingStatus(ctx, record.ID, ProcessingCompleted); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (p *Processor) enhance(ctx context.Context, record *models.ContentRecord, detail *models.GrantDetail) error {
	response, err := p.generator.Generate(ctx, BuildPrompt(detail))
	if err != nil {
		return fmt.Errorf("%s generation failed for %s: %w", p.generator.Name(), detail.ID, err)
	}

	enhancement := ParseResponse(response)
	if enhancement.Empty() {
		return fmt.Errorf("%s returned no recognisable sections for %s", p.generator.Name(), detail.ID)
	}

	fields := &models.ContentFields{
		Excerpt: enhancement.Excerpt,
		Meta: map[string]string{
			models.MetaEnhancedAt: p.now().UTC().Format(time.RFC3339),
		},
	}
	if enhancement.Content != "" {
		rendered, err := RenderMarkdown(enhancement.Content)
		if err != nil {
			return fmt.Errorf("failed to render generated content: %w", err)
		}
		fields.Body = rendered
	}
	if enhancement.Summary != "" {
		fields.Meta[models.MetaAISummary] = enhancement.Summary
	}

	if err := p.store.Update(ctx, record.ID, fields); err != nil {
		return fmt.Errorf("failed to store generated content: %w", err)
	}

	p.logger.Debug().
		Str("grant_id", detail.ID).
		Str("generator", p.generator.Name()).
		Int("content_length", len(fields.Body)).
		Msg("Record enhanced")
	return nil
}

func (p *Processor) setProcessingStatus(ctx context.Context, recordRef, status string) error {
	err := p.store.Update(ctx, recordRef, &models.ContentFields{
		Meta: map[string]string{models.MetaProcessingStatus: status},
	})
	if err != nil {
		return fmt.Errorf("failed to set processing status on %s: %w", recordRef, err)
	}
	return nil
}

// DetailFromRecord decodes the grant stored on a content record
func DetailFromRecord(record *models.ContentRecord) (*models.GrantDetail, error) {
	raw := record.Meta[models.MetaRawJSON]
	if raw == "" {
		return nil, fmt.Errorf("record %s has no stored grant data", record.ID)
	}
	var detail models.GrantDetail
	if err := json.Unmarshal([]byte(raw), &detail); err != nil {
		return nil, fmt.Errorf("record %s has invalid grant data: %w", record.ID, err)
	}
	detail.Raw = json.RawMessage(raw)
	return &detail, nil
}

// BuildPrompt asks for an article in [CONTENT]/[EXCERPT]/[SUMMARY] sections
func BuildPrompt(detail *models.GrantDetail) string {
	var b strings.Builder
	b.WriteString("以下の補助金情報を基に、魅力的なSEO最適化記事を生成してください。\n\n")
	fmt.Fprintf(&b, "タイトル: %s\n", detail.Title)
	fmt.Fprintf(&b, "概要: %s\n", PlainText(detail.Detail))
	if detail.SubsidyMaxLimit > 0 {
		fmt.Fprintf(&b, "補助金額: %s\n", FormatAmount(detail.SubsidyMaxLimit))
	} else {
		b.WriteString("補助金額: \n")
	}
	fmt.Fprintf(&b, "対象地域: %s\n", detail.TargetAreaSearch)
	fmt.Fprintf(&b, "対象業種: %s\n\n", detail.Industry)
	b.WriteString("次の形式で出力してください:\n")
	b.WriteString("[CONTENT]\n詳細な記事内容（Markdown）\n[/CONTENT]\n")
	b.WriteString("[EXCERPT]\n短い説明文（50文字以内）\n[/EXCERPT]\n")
	b.WriteString("[SUMMARY]\n箇条書きポイント\n[/SUMMARY]")
	return b.String()
}

// ParseResponse extracts the tagged sections from generator output
func ParseResponse(response string) Enhancement {
	section := func(re *regexp.Regexp) string {
		if m := re.FindStringSubmatch(response); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}
	return Enhancement{
		Content: section(contentSectionRe),
		Excerpt: section(excerptSectionRe),
		Summary: section(summarySectionRe),
	}
}

// NoopEnricher completes items without doing anything
type NoopEnricher struct{}

func (NoopEnricher) Enrich(ctx context.Context, item *models.QueueItem) error {
	return nil
}
