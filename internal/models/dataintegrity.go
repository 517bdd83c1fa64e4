package models

import "encoding/json"

// Heading is one h1-h6 element with its level and trimmed text
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Anchor is one link with its visible text and href
type Anchor struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// TableData is one HTML table: headers from the first thead row (or the
// first row when no thead exists), then body rows as a 2-D array.
type TableData struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// PricingItem is one element matched by the pricing selector set, with
// the amount parsed from a currency-aware pattern.
type PricingItem struct {
	Selector string  `json:"selector"`
	Raw      string  `json:"raw"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

// PageMeta is the page-level metadata compared across sides
type PageMeta struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
}

// ExtractedContent is everything the data stage pulls from one page
type ExtractedContent struct {
	VisibleText    string            `json:"visibleText"`
	Headings       []Heading         `json:"headings,omitempty"`
	Paragraphs     []string          `json:"paragraphs,omitempty"`
	Anchors        []Anchor          `json:"anchors,omitempty"`
	Meta           PageMeta          `json:"meta"`
	Tables         []TableData       `json:"tables,omitempty"`
	Pricing        []PricingItem     `json:"pricing,omitempty"`
	StructuredData []json.RawMessage `json:"structuredData,omitempty"` // ld+json payloads
}

// SentenceShift records a sentence that moved position between sides
type SentenceShift struct {
	Sentence       string `json:"sentence"`
	BaselineIndex  int    `json:"baselineIndex"`
	CandidateIndex int    `json:"candidateIndex"`
}

// TextComparison is the token-level text diff for one page
type TextComparison struct {
	Similarity     float64         `json:"similarity"` // Jaccard over lowercase word sets
	AddedTokens    []string        `json:"addedTokens,omitempty"`
	RemovedTokens  []string        `json:"removedTokens,omitempty"`
	SentenceShifts []SentenceShift `json:"sentenceShifts,omitempty"`
}

// Field diff statuses shared by table cells and JSON fields
const (
	DiffStatusMatch            = "match"
	DiffStatusMismatch         = "mismatch"
	DiffStatusMissingBaseline  = "missing_baseline"
	DiffStatusMissingCandidate = "missing_candidate"
	DiffStatusChanged          = "changed"
)

// CellDiff is one table cell compared positionally across sides
type CellDiff struct {
	Row       int    `json:"row"` // -1 for header cells
	Column    int    `json:"column"`
	Baseline  string `json:"baseline,omitempty"`
	Candidate string `json:"candidate,omitempty"`
	Status    string `json:"status"`
}

// TableComparison is the positional diff of table N on both sides
type TableComparison struct {
	Index        int        `json:"index"`
	SizeMismatch bool       `json:"sizeMismatch"`
	CellDiffs    []CellDiff `json:"cellDiffs,omitempty"`
}

// PricingDiff compares one pricing item matched by selector
type PricingDiff struct {
	Selector          string  `json:"selector"`
	BaselineRaw       string  `json:"baselineRaw,omitempty"`
	CandidateRaw      string  `json:"candidateRaw,omitempty"`
	BaselineAmount    float64 `json:"baselineAmount"`
	CandidateAmount   float64 `json:"candidateAmount"`
	AmountMatch       bool    `json:"amountMatch"`
	BaselineCurrency  string  `json:"baselineCurrency,omitempty"`
	CandidateCurrency string  `json:"candidateCurrency,omitempty"`
	CurrencyMatch     bool    `json:"currencyMatch"`
	Status            string  `json:"status"`
}

// JSONFieldDiff is one path in the recursive structured-data diff
type JSONFieldDiff struct {
	Path      string `json:"path"`
	Status    string `json:"status"`
	Baseline  string `json:"baseline,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}

// Page-level data integrity statuses
const (
	DataStatusMatch    = "match"
	DataStatusPartial  = "partial"
	DataStatusMismatch = "mismatch"
)

// PageDataResult is the data integrity outcome for one matched page
type PageDataResult struct {
	PagePath     string            `json:"pagePath"`
	Status       string            `json:"status"` // match, partial, mismatch
	Text         TextComparison    `json:"text"`
	Tables       []TableComparison `json:"tables,omitempty"`
	Pricing      []PricingDiff     `json:"pricing,omitempty"`
	JSON         []JSONFieldDiff   `json:"json,omitempty"`
	FieldDiffs   int               `json:"fieldDiffs"`
	MissingData  bool              `json:"missingData"`            // one side produced no extractable content
	ExtractError string            `json:"extractError,omitempty"` // extraction failed on a side
}

// DataSummary is the run-level rollup the reasoner consumes
type DataSummary struct {
	PagesCompared       int `json:"pagesCompared"`
	PagesWithMismatches int `json:"pagesWithMismatches"`
	MissingDataPages    int `json:"missingDataPages"`
	TotalFieldDiffs     int `json:"totalFieldDiffs"`
	CriticalMismatches  int `json:"criticalMismatches"` // pricing or table diffs
}

// DataResult is the data integrity stage output for a run
type DataResult struct {
	Pages   []PageDataResult `json:"pages"`
	Summary DataSummary      `json:"summary"`
}
