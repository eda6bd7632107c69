package normalize

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// monthGenitives maps upper-case Russian month names, as they appear in
// dates like "15 ЯНВАРЯ", to their regular form.
var monthGenitives = map[string]string{
	"ЯНВАРЯ":   "января",
	"ФЕВРАЛЯ":  "февраля",
	"МАРТА":    "марта",
	"АПРЕЛЯ":   "апреля",
	"МАЯ":      "мая",
	"ИЮНЯ":     "июня",
	"ИЮЛЯ":     "июля",
	"АВГУСТА":  "августа",
	"СЕНТЯБРЯ": "сентября",
	"ОКТЯБРЯ":  "октября",
	"НОЯБРЯ":   "ноября",
	"ДЕКАБРЯ":  "декабря",
}

var word = regexp.MustCompile(`\p{L}+`)

// NormalizeText lowercases all-caps month names so the classifier reads them
// as dates. Everything else is returned unchanged.
func NormalizeText(s string) string {
	return word.ReplaceAllStringFunc(s, func(w string) string {
		if lower, ok := monthGenitives[w]; ok {
			return lower
		}
		return w
	})
}

var (
	htmlTag     = regexp.MustCompile(`<[^>]+>`)
	htmlLikeTag = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEscape    = regexp.MustCompile(`\\([\\*_\[\]()#+\-.!` + "`" + `>~|])`)
	markupSpans = []*regexp.Regexp{
		regexp.MustCompile(`\*\*\*(.+?)\*\*\*`),
		regexp.MustCompile(`___(.+?)___`),
		regexp.MustCompile(`\*\*(.+?)\*\*`),
		regexp.MustCompile(`__(.+?)__`),
		regexp.MustCompile(`\*([^*\n]+?)\*`),
		regexp.MustCompile("(?s)```(?:[a-zA-Z0-9]*\\n)?(.*?)```"),
		regexp.MustCompile("`([^`\n]+)`"),
	}
	// single underscores only count as italics at word edges, so snake_case
	// handles and URLs survive
	underscoreSpan = regexp.MustCompile(`(^|[^\p{L}\p{N}_])_([^_\n]+)_($|[^\p{L}\p{N}_])`)
)

// CleanMarkup reduces HTML and markdown formatting to plain text. Text that
// contains HTML is converted to markdown first so links and emphasis are
// handled by the same rules.
func CleanMarkup(s string) string {
	if htmlLikeTag.MatchString(s) {
		if md, err := htmltomarkdown.ConvertString(s); err == nil {
			s = mdEscape.ReplaceAllString(stripMarkdown(md), "$1")
		}
		s = htmlTag.ReplaceAllString(s, "")
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(stripMarkdown(s))
}

func stripMarkdown(s string) string {
	s = mdLink.ReplaceAllString(s, "$1")
	for _, re := range markupSpans {
		s = re.ReplaceAllString(s, "$1")
	}
	return underscoreSpan.ReplaceAllString(s, "$1$2$3")
}
