package models

import (
	"encoding/json"
	"strings"
	"time"
)

// MaxExternalIDLength is the longest grant ID the upstream API issues.
const MaxExternalIDLength = 18

// GrantSummary is one item of a subsidy search result list.
// It is produced per search call and is not persisted.
type GrantSummary struct {
	ID                      string    `json:"id"`
	Name                    string    `json:"name"`
	Title                   string    `json:"title"`
	CatchPhrase             string    `json:"subsidy_catch_phrase,omitempty"`
	SubsidyMaxLimit         int64     `json:"subsidy_max_limit,omitempty"`
	AcceptanceStartDatetime string    `json:"acceptance_start_datetime,omitempty"`
	AcceptanceEndDatetime   string    `json:"acceptance_end_datetime,omitempty"`
	TargetNumberOfEmployees string    `json:"target_number_of_employees,omitempty"`
	SourceKeyword           string    `json:"-"`
	FetchedAt               time.Time `json:"-"`
}

// Attachment is a downloadable file attached to a grant detail
type Attachment struct {
	Name string `json:"name"`
	Data string `json:"data,omitempty"`
}

// GrantDetail is the full grant record fetched by external ID
type GrantDetail struct {
	ID                       string       `json:"id"`
	Name                     string       `json:"name"`
	Title                    string       `json:"title"`
	CatchPhrase              string       `json:"subsidy_catch_phrase,omitempty"`
	Detail                   string       `json:"detail,omitempty"`
	UsePurpose               string       `json:"use_purpose,omitempty"`
	Industry                 string       `json:"industry,omitempty"`
	TargetAreaSearch         string       `json:"target_area_search,omitempty"`
	TargetAreaDetail         string       `json:"target_area_detail,omitempty"`
	SubsidyMaxLimit          int64        `json:"subsidy_max_limit,omitempty"`
	SubsidyRate              string       `json:"subsidy_rate,omitempty"`
	TargetNumberOfEmployees  string       `json:"target_number_of_employees,omitempty"`
	AcceptanceStartDatetime  string       `json:"acceptance_start_datetime,omitempty"`
	AcceptanceEndDatetime    string       `json:"acceptance_end_datetime,omitempty"`
	ProjectEndDeadline       string       `json:"project_end_deadline,omitempty"`
	RequestReceptionPresence string       `json:"request_reception_presence,omitempty"`
	DetailPageURL            string       `json:"front_subsidy_detail_page_url,omitempty"`
	ApplicationGuidelines    []Attachment `json:"application_guidelines,omitempty"`
	OutlineOfGrant           []Attachment `json:"outline_of_grant,omitempty"`
	ApplicationForm          []Attachment `json:"application_form,omitempty"`

	// Raw holds the upstream JSON object exactly as received
	Raw json.RawMessage `json:"-"`
}

// DisplayTitle returns the best available human-readable title
func (d *GrantDetail) DisplayTitle() string {
	for _, candidate := range []string{d.Title, d.CatchPhrase, d.Name} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return UntitledGrant
}

// UntitledGrant is used when a detail carries no usable title
const UntitledGrant = "無題の補助金"

// AcceptanceStart parses the acceptance start time. ok is false when absent or malformed.
func (d *GrantDetail) AcceptanceStart() (time.Time, bool) {
	return ParseAPITime(d.AcceptanceStartDatetime)
}

// AcceptanceEnd parses the acceptance end time. ok is false when absent (year-round).
func (d *GrantDetail) AcceptanceEnd() (time.Time, bool) {
	return ParseAPITime(d.AcceptanceEndDatetime)
}

// ExclusionText is the lower-cased text the exclude terms are matched against
func (d *GrantDetail) ExclusionText() string {
	parts := []string{d.Title, d.CatchPhrase, d.Detail, d.UsePurpose, d.Industry}
	return strings.ToLower(strings.Join(parts, " "))
}

var apiTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseAPITime parses the upstream timestamp formats
func ParseAPITime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range apiTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
