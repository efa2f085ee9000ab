package content

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/grantpost/internal/models"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{4_500_000, "450万円"},
		{12_345_678, "1,235万円"},
		{150_000_000, "1億5,000万円"},
		{200_000_000, "2億円"},
		{1_234_560_000, "12億3,456万円"},
		{9_999, "9,999円"},
		{500, "500円"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(tt.amount))
		})
	}
}

func TestDeadlineText(t *testing.T) {
	assert.Equal(t, "通年", DeadlineText(&models.GrantDetail{}))
	assert.Equal(t, "通年", DeadlineText(&models.GrantDetail{AcceptanceEndDatetime: "not a date"}))
	// 2026-03-31T15:00Z is 1 April in JST
	assert.Equal(t, "2026年4月1日", DeadlineText(&models.GrantDetail{AcceptanceEndDatetime: "2026-03-31T15:00:00.000Z"}))
}

func TestApplicationStatus(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) string { return now.Add(d).Format(time.RFC3339) }

	tests := []struct {
		name   string
		detail models.GrantDetail
		want   string
	}{
		{"reception off", models.GrantDetail{RequestReceptionPresence: "無", AcceptanceEndDatetime: at(30 * 24 * time.Hour)}, StatusClosed},
		{"past deadline", models.GrantDetail{AcceptanceEndDatetime: at(-time.Hour)}, StatusClosed},
		{"within a week", models.GrantDetail{AcceptanceEndDatetime: at(7 * 24 * time.Hour)}, StatusClosingSoon},
		{"later", models.GrantDetail{AcceptanceEndDatetime: at(9 * 24 * time.Hour)}, StatusOpen},
		{"year round", models.GrantDetail{RequestReceptionPresence: "有"}, StatusOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplicationStatus(&tt.detail, now))
		})
	}
}

func TestPrefectures(t *testing.T) {
	assert.Equal(t, []string{"東京都", "大阪府"}, Prefectures("東京都 / 大阪府 / 東京都"))
	assert.Equal(t, []string{"北海道", "全国"}, Prefectures("北海道 / 全国 / 沖縄県"))
	assert.Equal(t, []string{"静岡県"}, Prefectures("静岡県浜松市"))
	assert.Empty(t, Prefectures(""))
}

func TestCategories(t *testing.T) {
	got := Categories("設備整備・IT導入をしたい / 販路拡大・海外展開をしたい", "製造業 / その他 / 情報通信業")
	assert.Equal(t, []string{"設備整備・IT導入", "販路拡大・海外展開", "製造業向け", "情報通信業向け"}, got)
}

func TestTrimWords(t *testing.T) {
	assert.Equal(t, "a b…", TrimWords("a b c", 2))
	assert.Equal(t, "a b", TrimWords("  a   b ", 5))
	assert.Equal(t, "補助金…", TrimWords("補助金の概要です", 3))
}

func TestBuilder_Build(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	builder := NewBuilder(false)
	builder.now = func() time.Time { return now }

	detail := &models.GrantDetail{
		ID:                      "a0WJ200000CDR9HMAX",
		Name:                    "IT導入補助金",
		Detail:                  "<p>中小企業の<strong>IT導入</strong>を支援します。</p>",
		SubsidyMaxLimit:         4_500_000,
		SubsidyRate:             "1/2",
		TargetNumberOfEmployees: "20名以下",
		TargetAreaSearch:        "全国",
		UsePurpose:              "設備整備・IT導入をしたい",
		Industry:                "情報通信業",
		AcceptanceEndDatetime:   "2026-05-31T08:00:00.000Z",
		DetailPageURL:           "https://www.jgrants-portal.go.jp/subsidy/a0WJ200000CDR9HMAX",
		ApplicationGuidelines:   []models.Attachment{{Name: "guide.pdf"}},
		Raw:                     json.RawMessage(`{"id":"a0WJ200000CDR9HMAX"}`),
	}

	fields, err := builder.Build(detail, "IT導入")
	require.NoError(t, err)

	assert.Equal(t, "IT導入補助金", fields.Title)
	assert.Equal(t, models.PostStatusDraft, fields.Status)
	assert.Equal(t, "中小企業のIT導入を支援します。", fields.Excerpt)
	assert.Contains(t, fields.Body, "<strong>IT導入</strong>")

	meta := fields.Meta
	assert.Equal(t, `{"id":"a0WJ200000CDR9HMAX"}`, meta[models.MetaRawJSON])
	assert.Equal(t, ProcessingPending, meta[models.MetaProcessingStatus])
	assert.Equal(t, "450万円", meta[models.MetaFormattedAmount])
	assert.Equal(t, "2026年5月31日", meta[models.MetaDeadlineText])
	assert.Equal(t, StatusOpen, meta[models.MetaApplicationStatus])
	assert.Equal(t, "1", meta[models.MetaGuidelineCount])
	assert.Equal(t, "0", meta[models.MetaApplicationFormCount])
	assert.Equal(t, "IT導入", meta[models.MetaSourceKeyword])
	assert.Equal(t, `["全国"]`, meta[models.MetaPrefectures])
	assert.Equal(t, `["設備整備・IT導入","情報通信業向け"]`, meta[models.MetaCategories])

	var points []string
	require.NoError(t, json.Unmarshal([]byte(meta[models.MetaSummaryPoints]), &points))
	assert.Equal(t, []string{"最大450万円の支援", "20名以下対象", "補助率: 1/2", "申請期限: 2026年5月31日"}, points)

	published, err := NewBuilder(true).Build(&models.GrantDetail{ID: "x1", SubsidyMaxLimit: 0}, "")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublish, published.Status)
	assert.Equal(t, models.UntitledGrant, published.Title)
	assert.NotContains(t, published.Meta, models.MetaFormattedAmount)
	assert.Equal(t, "通年", published.Meta[models.MetaDeadlineText])
	assert.Contains(t, published.Meta[models.MetaRawJSON], `"id":"x1"`)
}
