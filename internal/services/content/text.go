package content

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	codeFenceRe  = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*)\\n```\\s*$")
)

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
		html.WithXHTML(),
	),
)

// PlainText returns the visible text of an HTML fragment with whitespace collapsed
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	return collapse(doc.Text())
}

// ToMarkdown converts an HTML fragment to markdown, falling back to plain text
func ToMarkdown(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	converter := md.NewConverter("", true, nil)
	converted, err := converter.ConvertString(fragment)
	if err != nil || strings.TrimSpace(converted) == "" {
		return PlainText(fragment)
	}
	return strings.TrimSpace(converted)
}

// RenderMarkdown renders markdown to HTML. LLM output wrapped in a code
// fence is unwrapped first.
func RenderMarkdown(markdown string) (string, error) {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return "", nil
	}
	if m := codeFenceRe.FindStringSubmatch(markdown); m != nil {
		markdown = m[1]
	}

	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// TrimWords keeps the first n whitespace-separated words. Text without
// word breaks, as is usual for Japanese, is cut at n characters instead.
func TrimWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		return strings.Join(words[:n], " ") + "…"
	}
	if len(words) <= 1 && utf8.RuneCountInString(text) > n {
		return string([]rune(text)[:n]) + "…"
	}
	return strings.Join(words, " ")
}

// Truncate cuts s to at most n characters
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
