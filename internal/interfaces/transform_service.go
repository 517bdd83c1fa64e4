package interfaces

// TransformService converts between content representations
type TransformService interface {
	// HTMLToMarkdown converts captured page HTML into markdown,
	// falling back to tag stripping when conversion fails.
	HTMLToMarkdown(html string) (string, error)

	// MarkdownToHTML renders report markdown as a standalone HTML page.
	MarkdownToHTML(markdown string) (string, error)
}

// PDFService renders report markdown into a PDF document
type PDFService interface {
	RenderMarkdown(markdown, title string) ([]byte, error)
}
