// Package jgrants provides a client for the jGrants public subsidy search API.
package jgrants

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Sort keys accepted by the search endpoint.
const (
	SortCreatedDate     = "created_date"
	SortAcceptanceStart = "acceptance_start_datetime"
	SortAcceptanceEnd   = "acceptance_end_datetime"

	OrderAsc  = "ASC"
	OrderDesc = "DESC"

	AcceptanceAll  = "0"
	AcceptanceOpen = "1"

	// MultiValueSeparator joins multi-value optional parameters
	MultiValueSeparator = " / "
)

// EmployeeBrackets are the values accepted for target_number_of_employees
var EmployeeBrackets = []string{
	"従業員数の制約なし",
	"5名以下",
	"20名以下",
	"50名以下",
	"100名以下",
	"300名以下",
	"900名以下",
	"901名以上",
}

// SearchOptions are the search parameters besides the keyword.
// Empty fields mean "use the default" or "omit".
type SearchOptions struct {
	Sort                    string   `json:"sort,omitempty"`
	Order                   string   `json:"order,omitempty"`
	Acceptance              string   `json:"acceptance,omitempty"`
	UsePurpose              []string `json:"use_purpose,omitempty"`
	Industry                []string `json:"industry,omitempty"`
	TargetArea              []string `json:"target_area_search,omitempty"`
	TargetNumberOfEmployees string   `json:"target_number_of_employees,omitempty"`
}

// Merge returns o with every non-empty field of override applied on top
func (o SearchOptions) Merge(override SearchOptions) SearchOptions {
	merged := o
	if override.Sort != "" {
		merged.Sort = override.Sort
	}
	if override.Order != "" {
		merged.Order = override.Order
	}
	if override.Acceptance != "" {
		merged.Acceptance = override.Acceptance
	}
	if len(override.UsePurpose) > 0 {
		merged.UsePurpose = override.UsePurpose
	}
	if len(override.Industry) > 0 {
		merged.Industry = override.Industry
	}
	if len(override.TargetArea) > 0 {
		merged.TargetArea = override.TargetArea
	}
	if override.TargetNumberOfEmployees != "" {
		merged.TargetNumberOfEmployees = override.TargetNumberOfEmployees
	}
	return merged
}

// Normalize replaces unsupported required values with their defaults
// and drops an unknown employee bracket.
func (o SearchOptions) Normalize() SearchOptions {
	n := o
	switch n.Sort {
	case SortCreatedDate, SortAcceptanceStart, SortAcceptanceEnd:
	default:
		n.Sort = SortCreatedDate
	}
	n.Order = strings.ToUpper(n.Order)
	if n.Order != OrderAsc && n.Order != OrderDesc {
		n.Order = OrderDesc
	}
	if n.Acceptance != AcceptanceAll && n.Acceptance != AcceptanceOpen {
		n.Acceptance = AcceptanceAll
	}
	if n.TargetNumberOfEmployees != "" && !slices.Contains(EmployeeBrackets, n.TargetNumberOfEmployees) {
		n.TargetNumberOfEmployees = ""
	}
	return n
}

// KeywordQuery is one keyword search with its resolved options
type KeywordQuery struct {
	Keyword string
	Options SearchOptions
}

// Keyword validation reasons.
const (
	ReasonTooShort      = "too_short"
	ReasonTooLong       = "too_long"
	ReasonContainsSpace = "contains_space"

	MinKeywordLength = 2
	MaxKeywordLength = 255
)

// ErrInvalidKeyword is wrapped by every *ValidationError for keywords
var ErrInvalidKeyword = errors.New("invalid keyword")

// ErrInvalidID is returned for empty or oversized external IDs
var ErrInvalidID = errors.New("invalid grant id")

// ErrInvalidResponse is returned when a response lacks required fields
var ErrInvalidResponse = errors.New("invalid response shape")

// ValidationError explains why a keyword was rejected
type ValidationError struct {
	Keyword string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid keyword %q: %s", e.Keyword, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidKeyword
}

// ValidateKeyword checks a keyword as given: no regular or full-width
// space anywhere, and 2 to 255 code points. Callers trim input first.
func ValidateKeyword(keyword string) error {
	length := utf8.RuneCountInString(keyword)

	switch {
	case strings.ContainsAny(keyword, " 　"):
		return &ValidationError{Keyword: keyword, Reason: ReasonContainsSpace}
	case length < MinKeywordLength:
		return &ValidationError{Keyword: keyword, Reason: ReasonTooShort}
	case length > MaxKeywordLength:
		return &ValidationError{Keyword: keyword, Reason: ReasonTooLong}
	}
	return nil
}
