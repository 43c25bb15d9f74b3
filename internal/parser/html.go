package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	blankRunRegex  = regexp.MustCompile(`[^\S\n]+`)
	multiLineRegex = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText reduces an HTML email body to plain text suitable for
// classification and reply prompts. Invalid HTML falls back to the input.
func HTMLToText(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("script, style, head, meta, link").Remove()
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := blankRunRegex.ReplaceAllString(doc.Text(), " ")

	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}

	return strings.TrimSpace(multiLineRegex.ReplaceAllString(strings.Join(kept, "\n"), "\n\n"))
}
