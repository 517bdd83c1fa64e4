package models

// Reasoning sources
const (
	ReasonerSourceLLM   = "llm"
	ReasonerSourceRules = "rules"
)

// Stage names as they appear in summaries, logs, and artifacts
const (
	StageCrawl      = "crawl"
	StageCapture    = "capture"
	StageVisual     = "visual"
	StageFunctional = "functional"
	StageData       = "data"
	StageReasoning  = "reasoning"
	StageReport     = "report"
)

// DiffSummary is the compact reasoning input assembled from the three
// diff stages. A nil slot means the stage was disabled by the TestMatrix;
// a stage listed in Unavailable ran but failed.
type DiffSummary struct {
	PagesTested int               `json:"pagesTested"`
	Visual      *VisualSummary    `json:"visual,omitempty"`
	Functional  *FunctionalResult `json:"functional,omitempty"`
	Data        *DataSummary      `json:"data,omitempty"`
	Unavailable []string          `json:"unavailable,omitempty"`
}

// CategoryAnalysis is the reasoner's verdict for one diff category
type CategoryAnalysis struct {
	Category        string   `json:"category"` // visual, functional, data
	Severity        Severity `json:"severity"`
	Confidence      float64  `json:"confidence"` // 0..1
	Pass            bool     `json:"pass"`
	Explanation     string   `json:"explanation"`
	KeyFindings     []string `json:"keyFindings,omitempty"`
	FalsePositives  []string `json:"falsePositives,omitempty"`
	ExpectedChanges []string `json:"expectedChanges,omitempty"`
}

// OverallAnalysis is the reasoner's rollup across categories
type OverallAnalysis struct {
	Severity        Severity `json:"severity"`
	Confidence      float64  `json:"confidence"`
	Pass            bool     `json:"pass"`
	Explanation     string   `json:"explanation"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ReasoningAnalysis is the full reasoner output. LLM and rule-based
// implementations both produce this shape; Source records which ran.
type ReasoningAnalysis struct {
	Categories []CategoryAnalysis `json:"categories"`
	Overall    OverallAnalysis    `json:"overall"`
	Source     string             `json:"source"`
}
