package dataintegrity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ternarybob/paritas/internal/models"
)

// pricingSelectors is the documented selector set scanned for prices.
// Order matters: an element is attributed to the first selector that
// matched it.
var pricingSelectors = []string{
	".price",
	`[class*="price"]`,
	"[data-price]",
	".amount",
	".cost",
}

// amountPattern matches "$1,299.99", "1299 EUR", "£9.50" and the like:
// an optional currency marker before or after a number.
var amountPattern = regexp.MustCompile(`(?i)(USD|EUR|GBP|AUD|CAD|JPY|[$€£¥])?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(USD|EUR|GBP|AUD|CAD|JPY|[$€£¥])?`)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// extractContent pulls everything the data comparison consumes out of a
// page's HTML snapshot.
func extractContent(pageHTML string) (*models.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	content := &models.ExtractedContent{
		VisibleText: visibleText(doc),
		Meta:        extractMeta(doc),
	}

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		level := int(sel.Nodes[0].Data[1] - '0')
		content.Headings = append(content.Headings, models.Heading{Level: level, Text: text})
	})

	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if text := collapseWhitespace(sel.Text()); text != "" {
			content.Paragraphs = append(content.Paragraphs, text)
		}
	})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		content.Anchors = append(content.Anchors, models.Anchor{
			Text: strings.TrimSpace(sel.Text()),
			Href: href,
		})
	})

	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		content.Tables = append(content.Tables, extractTable(sel))
	})

	content.Pricing = extractPricing(doc)

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" || !json.Valid([]byte(raw)) {
			return
		}
		content.StructuredData = append(content.StructuredData, json.RawMessage(raw))
	})

	return content, nil
}

// visibleText walks the DOM collecting text, skipping script and style
// subtrees and anything inline-styled invisible.
func visibleText(doc *goquery.Document) string {
	var sb strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			name := strings.ToLower(n.Data)
			if name == "script" || name == "style" || name == "noscript" {
				return
			}
			if hiddenNode(n) {
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	roots := doc.Find("body").Nodes
	if len(roots) == 0 {
		roots = doc.Selection.Nodes
	}
	for _, root := range roots {
		walk(root)
	}

	return collapseWhitespace(sb.String())
}

func hiddenNode(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch attr.Key {
		case "hidden":
			return true
		case "style":
			style := strings.ReplaceAll(strings.ToLower(attr.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func extractMeta(doc *goquery.Document) models.PageMeta {
	meta := models.PageMeta{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	if v, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		meta.Description = strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`meta[name="keywords"]`).First().Attr("content"); ok {
		meta.Keywords = strings.TrimSpace(v)
	}
	return meta
}

// extractTable reads one table: headers from the first thead row, or the
// first row when no thead exists; everything after feeds the body.
func extractTable(table *goquery.Selection) models.TableData {
	data := models.TableData{}

	headerRow := table.Find("thead tr").First()
	usedFirstRow := false
	if headerRow.Length() == 0 {
		headerRow = table.Find("tr").First()
		usedFirstRow = true
	}
	headerRow.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		data.Headers = append(data.Headers, collapseWhitespace(cell.Text()))
	})

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if row.Closest("thead").Length() > 0 {
			return
		}
		if usedFirstRow && i == 0 {
			return
		}
		var cells []string
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, collapseWhitespace(cell.Text()))
		})
		if len(cells) > 0 {
			data.Rows = append(data.Rows, cells)
		}
	})

	return data
}

// extractPricing scans the selector set, attributing each element to the
// first selector that matched it.
func extractPricing(doc *goquery.Document) []models.PricingItem {
	seen := make(map[*html.Node]bool)
	var items []models.PricingItem

	for _, selector := range pricingSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			node := sel.Nodes[0]
			if seen[node] {
				return
			}
			seen[node] = true

			raw := collapseWhitespace(sel.Text())
			if v, ok := sel.Attr("data-price"); ok && strings.TrimSpace(v) != "" {
				raw = strings.TrimSpace(v)
			}
			if raw == "" {
				return
			}

			amount, currency := parseAmount(raw)
			items = append(items, models.PricingItem{
				Selector: selector,
				Raw:      raw,
				Amount:   amount,
				Currency: currency,
			})
		})
	}

	return items
}

// parseAmount pulls the first currency-ish number out of a string
func parseAmount(raw string) (float64, string) {
	m := amountPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, ""
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil {
		return 0, ""
	}

	currency := m[1]
	if currency == "" {
		currency = m[3]
	}
	if code, ok := currencySymbols[currency]; ok {
		currency = code
	}
	return amount, strings.ToUpper(currency)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
