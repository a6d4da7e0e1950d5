package fetcher

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/qchat-dev/qchat-go/internal/textutil"
)

// removedSelectors are stripped before text extraction.
const removedSelectors = "script, style, nav, footer, aside, header, iframe, noscript, svg, .advertisement, .ad, .sidebar, .menu"

// Auth-wall heuristics.
const (
	minPageText      = 100
	authCheckMaxText = 400
)

var authIndicator = regexp.MustCompile(`(?i)\b(sign in|log in|login|password|single sign-on|sso)\b`)

// ExtractText returns the visible text of doc with boilerplate elements
// removed and whitespace collapsed.
func ExtractText(doc *goquery.Document) string {
	doc.Find(removedSelectors).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	root.Contents().Each(func(_ int, s *goquery.Selection) {
		writeText(&b, s)
	})
	return textutil.CollapseWhitespace(b.String())
}

// writeText appends the text of s, separating element boundaries with a
// space so adjacent blocks do not run together.
func writeText(b *strings.Builder, s *goquery.Selection) {
	if goquery.NodeName(s) == "#text" {
		b.WriteString(s.Text())
		return
	}
	b.WriteByte(' ')
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		writeText(b, c)
	})
	b.WriteByte(' ')
}

// LooksLikeAuthWall reports whether extracted text is too thin to be useful
// or is a short page asking the visitor to sign in.
func LooksLikeAuthWall(text string) bool {
	if len(text) < minPageText {
		return true
	}
	if len(text) >= authCheckMaxText {
		return false
	}
	return authIndicator.MatchString(text)
}
