// Package sanitize cleans rich-text event descriptions.
//
// Descriptions arrive as HTML pasted from word processors and browsers. They
// go through a single allow-list pass: basic inline formatting, paragraphs,
// lists and links survive; styles, classes, Office markup, comments and
// everything else are dropped.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	policy = newPolicy()

	blankRun = regexp.MustCompile(`\n{3,}`)
)

// lineEnds are the allowed elements whose end starts a new line.
var lineEnds = map[string]bool{
	"p": true, "li": true, "h3": true, "h4": true, "blockquote": true,
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "b", "strong", "i", "em", "u", "s", "ul", "ol", "li", "blockquote", "h3", "h4")
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Description returns s reduced to the allowed subset, trimmed.
func Description(s string) string {
	return strings.TrimSpace(policy.Sanitize(s))
}

// PlainText strips all markup, keeping paragraph and line breaks as
// newlines. Used where HTML cannot be shown, such as ICS export.
func PlainText(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(policy.Sanitize(s)))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tidyLines(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); lineEnds[string(name)] {
				b.WriteByte('\n')
			}
		}
	}
}

func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
