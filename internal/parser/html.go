// Package parser turns raw email content into text suitable for a chat turn.
package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser converts HTML-only email bodies to plain text
type HTMLParser struct {
	whitespaceRegex *regexp.Regexp
	newlineRegex    *regexp.Regexp
	invisibleRegex  *regexp.Regexp
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		whitespaceRegex: regexp.MustCompile(`[^\S\n]+`),
		newlineRegex:    regexp.MustCompile(`\n{3,}`),
		// zero-width and other invisible code points used by mail trackers
		invisibleRegex: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{115F}\x{1160}\x{17B4}\x{17B5}\x{180E}\x{2060}-\x{2064}\x{206A}-\x{206F}\x{FE00}-\x{FE0F}\x{FFF0}-\x{FFF8}]+`),
	}
}

// Parse converts HTML to plain text. Quoted history inside <blockquote> and
// the Gmail/Outlook quote containers is dropped, links keep their target.
func (p *HTMLParser) Parse(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link, title").Remove()
	doc.Find("blockquote, .gmail_quote, #divRplyFwdMsg, #appendonsend").Remove()

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := strings.TrimSpace(s.Text())
		if href == "" || strings.HasPrefix(href, "mailto:") || text == href {
			return
		}
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			s.AppendHtml(" (" + escapeHTML(href) + ")")
		}
	})

	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()
	text = p.invisibleRegex.ReplaceAllString(text, "")
	text = p.whitespaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	cleanLines := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleanLines = append(cleanLines, line)
		}
	}
	text = strings.Join(cleanLines, "\n")
	text = p.newlineRegex.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
