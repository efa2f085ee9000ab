// Package content turns grant details into content records and enriches them.
package content

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ternarybob/grantpost/internal/jgrants"
	"github.com/ternarybob/grantpost/internal/models"
)

// Application status values written to MetaApplicationStatus
const (
	StatusOpen        = "open"
	StatusClosingSoon = "closing_soon"
	StatusClosed      = "closed"
)

// Processing status values written to MetaProcessingStatus
const (
	ProcessingPending    = "pending"
	ProcessingInProgress = "processing"
	ProcessingCompleted  = "completed"
)

const (
	excerptWords     = 50
	closingSoonLimit = 8 * 24 * time.Hour
	yearRound        = "通年"
	nationwide       = "全国"
)

// jst is the display zone for deadlines
var jst = time.FixedZone("JST", 9*60*60)

var prefectureRe = regexp.MustCompile(`北海道|青森県|岩手県|宮城県|秋田県|山形県|福島県|` +
	`茨城県|栃木県|群馬県|埼玉県|千葉県|東京都|神奈川県|` +
	`新潟県|富山県|石川県|福井県|山梨県|長野県|岐阜県|` +
	`静岡県|愛知県|三重県|滋賀県|京都府|大阪府|兵庫県|` +
	`奈良県|和歌山県|鳥取県|島根県|岡山県|広島県|山口県|` +
	`徳島県|香川県|愛媛県|高知県|福岡県|佐賀県|長崎県|` +
	`熊本県|大分県|宮崎県|鹿児島県|沖縄県`)

// Builder maps a grant detail onto content record fields
type Builder struct {
	autoPublish bool
	now         func() time.Time
}

// NewBuilder creates a builder; autoPublish selects publish over draft
func NewBuilder(autoPublish bool) *Builder {
	return &Builder{autoPublish: autoPublish, now: time.Now}
}

// Build returns the fields to create or update the record for detail
func (b *Builder) Build(detail *models.GrantDetail, sourceKeyword string) (*models.ContentFields, error) {
	raw := string(detail.Raw)
	if raw == "" {
		encoded, err := json.Marshal(detail)
		if err != nil {
			return nil, fmt.Errorf("failed to encode grant %s: %w", detail.ID, err)
		}
		raw = string(encoded)
	}

	now := b.now()
	meta := map[string]string{
		models.MetaExternalID:           detail.ID,
		models.MetaRawJSON:              raw,
		models.MetaProcessingStatus:     ProcessingPending,
		models.MetaImportedAt:           now.UTC().Format(time.RFC3339),
		models.MetaApplicationStatus:    ApplicationStatus(detail, now),
		models.MetaDeadlineText:         DeadlineText(detail),
		models.MetaGuidelineCount:       strconv.Itoa(len(detail.ApplicationGuidelines)),
		models.MetaOutlineCount:         strconv.Itoa(len(detail.OutlineOfGrant)),
		models.MetaApplicationFormCount: strconv.Itoa(len(detail.ApplicationForm)),
	}
	if detail.SubsidyMaxLimit > 0 {
		meta[models.MetaFormattedAmount] = FormatAmount(detail.SubsidyMaxLimit)
	}
	if detail.DetailPageURL != "" {
		meta[models.MetaDetailURL] = detail.DetailPageURL
	}
	if sourceKeyword != "" {
		meta[models.MetaSourceKeyword] = sourceKeyword
	}
	setList(meta, models.MetaSummaryPoints, SummaryPoints(detail))
	setList(meta, models.MetaPrefectures, Prefectures(detail.TargetAreaSearch))
	setList(meta, models.MetaCategories, Categories(detail.UsePurpose, detail.Industry))

	status := models.PostStatusDraft
	if b.autoPublish {
		status = models.PostStatusPublish
	}

	return &models.ContentFields{
		ExternalID: detail.ID,
		Title:      detail.DisplayTitle(),
		Body:       body(detail.Detail),
		Excerpt:    Excerpt(detail),
		Status:     status,
		Meta:       meta,
	}, nil
}

// body normalises the upstream HTML through markdown
func body(detail string) string {
	rendered, err := RenderMarkdown(ToMarkdown(detail))
	if err != nil || rendered == "" {
		return detail
	}
	return rendered
}

// Excerpt is the catch phrase, or the opening words of the description
func Excerpt(detail *models.GrantDetail) string {
	if phrase := strings.TrimSpace(detail.CatchPhrase); phrase != "" {
		return phrase
	}
	return TrimWords(PlainText(detail.Detail), excerptWords)
}

// FormatAmount renders yen as X億Y万円, X億円, N万円 or N円
func FormatAmount(amount int64) string {
	const oku, man = 100_000_000, 10_000

	switch {
	case amount >= oku:
		rest := (amount % oku) / man
		if rest > 0 {
			return fmt.Sprintf("%d億%s万円", amount/oku, humanize.Comma(rest))
		}
		return fmt.Sprintf("%d億円", amount/oku)
	case amount >= man:
		return humanize.Comma((amount+man/2)/man) + "万円"
	default:
		return humanize.Comma(amount) + "円"
	}
}

// DeadlineText formats the acceptance end in JST, or 通年 when absent
func DeadlineText(detail *models.GrantDetail) string {
	end, ok := detail.AcceptanceEnd()
	if !ok {
		return yearRound
	}
	return end.In(jst).Format("2006年1月2日")
}

// ApplicationStatus is closed when reception is off or the deadline has
// passed, closing_soon within seven days of it, and open otherwise.
func ApplicationStatus(detail *models.GrantDetail, now time.Time) string {
	if detail.RequestReceptionPresence == "無" {
		return StatusClosed
	}
	end, ok := detail.AcceptanceEnd()
	if !ok {
		return StatusOpen
	}
	if end.Before(now) {
		return StatusClosed
	}
	if end.Sub(now) < closingSoonLimit {
		return StatusClosingSoon
	}
	return StatusOpen
}

// SummaryPoints lists the headline facts shown with the record
func SummaryPoints(detail *models.GrantDetail) []string {
	var points []string
	if detail.SubsidyMaxLimit > 0 {
		points = append(points, "最大"+FormatAmount(detail.SubsidyMaxLimit)+"の支援")
	}
	if detail.TargetNumberOfEmployees != "" {
		points = append(points, detail.TargetNumberOfEmployees+"対象")
	}
	if detail.SubsidyRate != "" {
		points = append(points, "補助率: "+detail.SubsidyRate)
	}
	if _, ok := detail.AcceptanceEnd(); ok {
		points = append(points, "申請期限: "+DeadlineText(detail))
	}
	return points
}

// Prefectures extracts prefecture names from a " / " separated area list.
// 全国 ends the scan.
func Prefectures(area string) []string {
	var result []string
	for _, part := range splitMulti(area) {
		if part == nationwide {
			result = append(result, nationwide)
			break
		}
		result = append(result, prefectureRe.FindAllString(part, -1)...)
	}
	return unique(result)
}

// Categories derives category names from use purposes and industries
func Categories(usePurpose, industry string) []string {
	var result []string
	for _, purpose := range splitMulti(usePurpose) {
		category := strings.ReplaceAll(purpose, "をしたい", "")
		category = strings.ReplaceAll(category, "したい", "")
		if category != "" {
			result = append(result, category)
		}
	}
	for _, ind := range splitMulti(industry) {
		if ind != "その他" {
			result = append(result, ind+"向け")
		}
	}
	return unique(result)
}

func splitMulti(value string) []string {
	var parts []string
	for _, part := range strings.Split(value, jgrants.MultiValueSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

func setList(meta map[string]string, key string, values []string) {
	if len(values) == 0 {
		return
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return
	}
	meta[key] = string(encoded)
}
