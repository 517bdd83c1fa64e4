package models

// ShiftRegion is one grid cell cluster whose pixels moved between sides
type ShiftRegion struct {
	X          int     `json:"x"` // cell origin in pixels
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	DiffPixels int     `json:"diffPixels"`
	Shift      float64 `json:"shift"` // center-of-mass distance from image center
}

// ViewportVisualDiff is the pixel comparison of one matched page at one viewport
type ViewportVisualDiff struct {
	Viewport       string        `json:"viewport"`
	DiffPixels     int           `json:"diffPixels"`
	TotalPixels    int           `json:"totalPixels"`
	DiffRatio      float64       `json:"diffRatio"`
	HasLayoutShift bool          `json:"hasLayoutShift"`
	ShiftMagnitude float64       `json:"shiftMagnitude,omitempty"`
	Regions        []ShiftRegion `json:"regions,omitempty"`
	Severity       Severity      `json:"severity"`
	DiffImagePath  string        `json:"diffImagePath,omitempty"`
	HeatmapPath    string        `json:"heatmapPath,omitempty"`
	Resampled      bool          `json:"resampled,omitempty"` // candidate was scaled to baseline dimensions
	Error          string        `json:"error,omitempty"`
}

// PageVisualResult aggregates one matched page across viewports.
// Severity is the maximum across viewports.
type PageVisualResult struct {
	PagePath  string               `json:"pagePath"`
	Viewports []ViewportVisualDiff `json:"viewports"`
	Severity  Severity             `json:"severity"`
}

// VisualSummary is the run-level rollup the reasoner consumes
type VisualSummary struct {
	PagesCompared   int              `json:"pagesCompared"`
	PagesWithDiffs  int              `json:"pagesWithDiffs"`
	SeverityCounts  map[Severity]int `json:"severityCounts"`
	AverageDiffPct  float64          `json:"averageDiffPct"` // mean diff ratio across pairs, in percent
	CriticalIssues  int              `json:"criticalIssues"`
	HighestSeverity Severity         `json:"highestSeverity"`
}

// VisualResult is the visual diff stage output for a run
type VisualResult struct {
	Pages   []PageVisualResult `json:"pages"`
	Summary VisualSummary      `json:"summary"`
}
