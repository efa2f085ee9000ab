package keywords

import (
	"strings"

	"github.com/ternarybob/grantpost/internal/jgrants"
)

// Rule sets search options for keywords containing any of its terms
type Rule struct {
	Name    string
	Terms   []string
	Options jgrants.SearchOptions
}

// Matches reports whether keyword contains one of the rule's terms, case-insensitively
func (r Rule) Matches(keyword string) bool {
	lower := strings.ToLower(keyword)
	for _, term := range r.Terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// DefaultRules are evaluated in order; later matches override earlier ones per option
var DefaultRules = []Rule{
	{
		Name:  "digital",
		Terms: []string{"it", "dx", "デジタル"},
		Options: jgrants.SearchOptions{
			UsePurpose: []string{"設備整備・IT導入をしたい"},
			Industry:   []string{"情報通信業"},
		},
	},
	{
		Name:  "manufacturing",
		Terms: []string{"製造", "ものづくり"},
		Options: jgrants.SearchOptions{
			Industry:   []string{"製造業"},
			UsePurpose: []string{"設備整備・IT導入をしたい", "研究開発・実証事業を行いたい"},
		},
	},
	{
		Name:  "small_business",
		Terms: []string{"小規模"},
		Options: jgrants.SearchOptions{
			TargetNumberOfEmployees: "20名以下",
		},
	},
	{
		Name:  "startup",
		Terms: []string{"創業", "スタートアップ"},
		Options: jgrants.SearchOptions{
			UsePurpose: []string{"新たな事業を行いたい"},
		},
	},
	{
		Name:  "sales_expansion",
		Terms: []string{"販路", "海外"},
		Options: jgrants.SearchOptions{
			UsePurpose: []string{"販路拡大・海外展開をしたい"},
		},
	},
}

// Apply folds every matching rule into one set of overrides
func Apply(rules []Rule, keyword string) jgrants.SearchOptions {
	var options jgrants.SearchOptions
	for _, rule := range rules {
		if rule.Matches(keyword) {
			options = options.Merge(rule.Options)
		}
	}
	return options
}
