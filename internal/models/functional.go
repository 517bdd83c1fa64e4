package models

// Form submit outcomes
const (
	FormOutcomeSuccess    = "success"
	FormOutcomeNoResponse = "submitted-no-response"
	FormOutcomeError      = "error"
)

// NavigationResult records how a page resolved when visited directly
type NavigationResult struct {
	FinalURL      string   `json:"finalUrl"`
	Status        int      `json:"status"`
	RedirectChain []string `json:"redirectChain,omitempty"`
	LoadTimeMs    int64    `json:"loadTimeMs"`
	Error         string   `json:"error,omitempty"`
}

// FormResult is the outcome of heuristically filling and submitting one form
type FormResult struct {
	FormIndex    int    `json:"formIndex"`
	Action       string `json:"action,omitempty"`
	FieldsFilled int    `json:"fieldsFilled"`
	Outcome      string `json:"outcome"` // success, submitted-no-response, error
	Message      string `json:"message,omitempty"`
}

// BrokenLink is an anchor whose probe returned >= 400 or failed outright
type BrokenLink struct {
	Href   string `json:"href"`
	Text   string `json:"text,omitempty"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// JSError is a console error, uncaught exception, or unhandled rejection
type JSError struct {
	Type      string `json:"type"` // console-error, uncaught, unhandled-rejection
	Message   string `json:"message"`
	Source    string `json:"source,omitempty"`
	Line      int    `json:"line,omitempty"`
	Column    int    `json:"column,omitempty"`
	Stack     string `json:"stack,omitempty"`
	Timestamp string `json:"timestamp"` // ISO-8601
}

// PageFunctionalResult is the functional QA outcome for one page on one side
type PageFunctionalResult struct {
	Side        Side             `json:"side"`
	PagePath    string           `json:"pagePath"`
	PageURL     string           `json:"pageUrl"`
	Navigation  NavigationResult `json:"navigation"`
	Forms       []FormResult     `json:"forms,omitempty"`
	BrokenLinks []BrokenLink     `json:"brokenLinks,omitempty"`
	JSErrors    []JSError        `json:"jsErrors,omitempty"`
	HARPath     string           `json:"harPath,omitempty"`
}

// FunctionalSideSummary counts anomalies across all pages on one side
type FunctionalSideSummary struct {
	PagesChecked       int `json:"pagesChecked"`
	PagesWithNavIssues int `json:"pagesWithNavIssues"`
	PagesWithFormIssue int `json:"pagesWithFormIssues"`
	TotalBrokenLinks   int `json:"totalBrokenLinks"`
	TotalJSErrors      int `json:"totalJsErrors"`
	PagesWithJSErrors  int `json:"pagesWithJsErrors"`
}

// FunctionalResult is the functional QA stage output for a run
type FunctionalResult struct {
	Baseline  FunctionalSideSummary  `json:"baseline"`
	Candidate FunctionalSideSummary  `json:"candidate"`
	Pages     []PageFunctionalResult `json:"pages"`
}
