package transform

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/ternarybob/paritas/internal/interfaces"
)

// Service converts captured HTML into markdown for evidence artifacts
// and renders report markdown back into standalone HTML pages.
type Service struct {
	logger arbor.ILogger
	gm     goldmark.Markdown
}

var _ interfaces.TransformService = (*Service)(nil)

// NewService creates a new transform service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
		gm: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

// HTMLToMarkdown converts HTML content to markdown. Conversion failures
// fall back to tag stripping so a capture never loses its text evidence.
func (s *Service) HTMLToMarkdown(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	converter := md.NewConverter("", true, nil)
	converted, err := converter.ConvertString(html)
	if err != nil {
		s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using fallback")
		return stripHTMLTags(html), nil
	}

	if strings.TrimSpace(converted) == "" && strings.TrimSpace(html) != "" {
		s.logger.Warn().
			Int("html_length", len(html)).
			Msg("HTML to markdown conversion produced empty output, applying fallback")
		return stripHTMLTags(html), nil
	}

	return converted, nil
}

// MarkdownToHTML renders markdown as a complete HTML document
func (s *Service) MarkdownToHTML(markdown string) (string, error) {
	var body bytes.Buffer
	if err := s.gm.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	page.WriteString("<style>\n")
	page.WriteString("body{font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;max-width:960px;margin:2rem auto;padding:0 1rem;color:#1f2328;line-height:1.5}\n")
	page.WriteString("table{border-collapse:collapse;margin:1rem 0}\n")
	page.WriteString("th,td{border:1px solid #d1d9e0;padding:6px 13px;text-align:left}\n")
	page.WriteString("th{background:#f6f8fa}\n")
	page.WriteString("code{background:#f6f8fa;padding:2px 4px;border-radius:4px;font-size:85%}\n")
	page.WriteString("h1,h2{border-bottom:1px solid #d1d9e0;padding-bottom:.3em}\n")
	page.WriteString("</style>\n</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("\n</body>\n</html>\n")

	return page.String(), nil
}

// stripHTMLTags removes basic HTML tags for fallback cases
func stripHTMLTags(htmlStr string) string {
	re := regexp.MustCompile(`<[^>]*>`)
	stripped := re.ReplaceAllString(htmlStr, "")

	spaceRe := regexp.MustCompile(`\s+`)
	cleaned := spaceRe.ReplaceAllString(stripped, " ")

	cleaned = strings.ReplaceAll(cleaned, "&amp;", "&")
	cleaned = strings.ReplaceAll(cleaned, "&lt;", "<")
	cleaned = strings.ReplaceAll(cleaned, "&gt;", ">")
	cleaned = strings.ReplaceAll(cleaned, "&quot;", "\"")
	cleaned = strings.ReplaceAll(cleaned, "&#39;", "'")
	cleaned = strings.ReplaceAll(cleaned, "&nbsp;", " ")

	return strings.TrimSpace(cleaned)
}
