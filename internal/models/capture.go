package models

// Side names the two capture targets. Capture order is always baseline
// first, then candidate, to keep artifact trees stable across re-runs.
type Side string

const (
	SideBaseline  Side = "baseline"
	SideCandidate Side = "candidate"
)

// Viewport is a named browser window size
type Viewport struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DefaultViewports returns the capture sizes used when no override is configured
func DefaultViewports() []Viewport {
	return []Viewport{
		{Name: "desktop", Width: 1920, Height: 1080},
		{Name: "tablet", Width: 768, Height: 1024},
		{Name: "mobile", Width: 375, Height: 667},
	}
}

// ConsoleMessage is one browser console entry observed during capture
type ConsoleMessage struct {
	Type      string `json:"type"` // log, warning, error, ...
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"` // ISO-8601
}

// NetworkEvent records one request and, when it resolved, its response.
// Failure is set for requests that never completed.
type NetworkEvent struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Timestamp  string            `json:"timestamp"` // ISO-8601 request time
	Status     int               `json:"status,omitempty"`
	StatusText string            `json:"statusText,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"` // response headers
	Failure    string            `json:"failure,omitempty"`
}

// PageLoadMetadata describes how the navigation resolved
type PageLoadMetadata struct {
	FinalURL   string `json:"finalUrl"` // after redirects
	Status     int    `json:"status"`
	LoadTimeMs int64  `json:"loadTimeMs"`
}

// ViewportCapture is the evidence gathered for one page at one viewport
// on one side. Screenshot and HTML live on disk; paths are logical
// artifact paths.
type ViewportCapture struct {
	Viewport       Viewport         `json:"viewport"`
	ScreenshotPath string           `json:"screenshotPath"`
	HTMLPath       string           `json:"htmlPath"`
	VisibleText    string           `json:"visibleText,omitempty"`
	Console        []ConsoleMessage `json:"console,omitempty"`
	Network        []NetworkEvent   `json:"network,omitempty"`
	Metadata       PageLoadMetadata `json:"metadata"`
}

// PageCapture is one side of one matched page across all viewports
type PageCapture struct {
	Side          Side              `json:"side"`
	PageURL       string            `json:"pageUrl"`
	SanitizedPath string            `json:"sanitizedPath"`
	Viewports     []ViewportCapture `json:"viewports"`
	Error         string            `json:"error,omitempty"`
}

// CapturedPagePair holds both sides of one matched page
type CapturedPagePair struct {
	Match     MatchedPage  `json:"match"`
	Baseline  *PageCapture `json:"baseline,omitempty"`
	Candidate *PageCapture `json:"candidate,omitempty"`
}

// CaptureResult is the capture stage output for a run
type CaptureResult struct {
	Pages         []CapturedPagePair `json:"pages"`
	PagesCaptured int                `json:"pagesCaptured"`
	PagesFailed   int                `json:"pagesFailed"`
}
