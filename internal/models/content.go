package models

import "time"

// PostStatus is the publication state of a content record
type PostStatus string

const (
	PostStatusDraft   PostStatus = "draft"
	PostStatusPublish PostStatus = "publish"
)

// Meta keys written on content records
const (
	MetaExternalID           = "grant_id"
	MetaRawJSON              = "grant_raw_json"
	MetaProcessingStatus     = "processing_status"
	MetaImportedAt           = "imported_at"
	MetaSourceKeyword        = "source_keyword"
	MetaApplicationStatus    = "application_status"
	MetaFormattedAmount      = "formatted_amount"
	MetaDeadlineText         = "deadline_text"
	MetaSummaryPoints        = "summary_points"
	MetaPrefectures          = "prefectures"
	MetaCategories           = "categories"
	MetaDetailURL            = "detail_url"
	MetaGuidelineCount       = "application_guidelines_count"
	MetaOutlineCount         = "outline_of_grant_count"
	MetaApplicationFormCount = "application_form_count"
	MetaAISummary            = "ai_summary"
	MetaEnhancedAt           = "ai_enhanced_at"
	MetaSEOTitle             = "seo_title"
	MetaSEODescription       = "seo_description"
	MetaSEOFocusKeyword      = "seo_focus_keyword"
	MetaStructuredData       = "structured_data"
)

// ContentFields is the writable part of a content record
type ContentFields struct {
	ExternalID string            `json:"external_id"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Excerpt    string            `json:"excerpt"`
	Status     PostStatus        `json:"status"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// ContentRecord is a stored content item keyed by its record reference
type ContentRecord struct {
	ID         string            `json:"id" badgerhold:"key"`
	ExternalID string            `json:"external_id" badgerhold:"index"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Excerpt    string            `json:"excerpt"`
	Status     PostStatus        `json:"status"`
	Meta       map[string]string `json:"meta,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
