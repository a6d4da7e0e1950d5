package textutil

import (
	"regexp"
	"strings"
)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

func apply(s string, rules []rewrite) string {
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}

// Ordered: headings first so a bullet glued to a heading can be split after.
var formatRules = []rewrite{
	{regexp.MustCompile(`\s*(\*\*[^*\n]{2,80}\*\*:)\s*`), "\n\n${1}\n"},
	{regexp.MustCompile(`\s+(-\s+)`), "\n- "},
	{regexp.MustCompile(`\s+(•\s+)`), "\n• "},
	{regexp.MustCompile(`\s+(\*\s+)`), "\n* "},
	{regexp.MustCompile(`(\*\*[^*\n]{2,80}\*\*:)\s*-\s*`), "${1}\n- "},
	{regexp.MustCompile(`\s+(\d+\.)\s+`), "\n${1} "},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// FormatReply puts headings, bullets and numbered items on their own lines
// and collapses runs of blank lines.
func FormatReply(text string) string {
	if text == "" {
		return text
	}
	t := strings.TrimSpace(text)
	t = strings.ReplaceAll(t, "\r\n", "\n")
	t = strings.ReplaceAll(t, "\r", "\n")
	return strings.TrimSpace(apply(t, formatRules))
}

var techRefRules = []rewrite{
	{regexp.MustCompile(`(?i)\bFAQ DATABASE\b`), "our information"},
	{regexp.MustCompile(`(?i)\bWEB CONTENT\b`), "university information"},
	{regexp.MustCompile(`(?i)\bUSER PROFILE\b`), "your profile"},
	{regexp.MustCompile(`(?i)Based on (the |our )?our information,?\s*`), ""},
	{regexp.MustCompile(`(?i)According to (the |our )?our information,?\s*`), ""},
	{regexp.MustCompile(`(?i)From (the |our )?university information,?\s*`), ""},
}

// CleanTechnicalReferences rewrites prompt section names the model echoed
// back ("Based on the FAQ DATABASE, ...") into plain language.
func CleanTechnicalReferences(text string) string {
	return apply(text, techRefRules)
}

var linkMarkupRules = []rewrite{
	{regexp.MustCompile(`href=["']https?://[^"'>]*["']`), ""},
	{regexp.MustCompile(`"[^"]*target[^>]*>`), ""},
	{regexp.MustCompile(`'[^']*target[^>]*>`), ""},
	{regexp.MustCompile(`["'][^"'>]{0,50}>`), ""},
	{regexp.MustCompile(`</?a[^>]*>`), ""},
	{regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)]+)\)`), "${2}"},
	{regexp.MustCompile(`(https?://[^\s<>"';]+)["'][^\s<>]*`), "${1}"},
}

// StripLinkMarkup removes anchor tags, stray attributes and markdown link
// syntax so URLs appear as plain text.
func StripLinkMarkup(text string) string {
	return apply(text, linkMarkupRules)
}

var (
	urlQuoteSplit = regexp.MustCompile(`["']`)
	urlJunk       = []*regexp.Regexp{
		regexp.MustCompile(`<[^>]*>`),
		regexp.MustCompile(`target=.*`),
		regexp.MustCompile(`rel=.*`),
		regexp.MustCompile(`href=.*`),
	}
	firstURL = regexp.MustCompile(`https?://[^\s<>"';]+`)
)

// CleanURL extracts the bare URL from a string that may carry HTML
// fragments. Without a URL it returns the trimmed input.
func CleanURL(raw string) string {
	s := urlQuoteSplit.Split(raw, 2)[0]
	for _, re := range urlJunk {
		s = re.ReplaceAllString(s, "")
	}
	if m := firstURL.FindString(s); m != "" {
		return strings.TrimRight(m, `.,;:!?)"'`)
	}
	return strings.TrimSpace(raw)
}
