package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/paritas/internal/models"
	"github.com/ternarybob/paritas/internal/templates"
)

// assessmentTemplate names the prompt template for the reasoning stage
const assessmentTemplate = "assessment"

const responseShape = `{
  "categories": [
    {
      "category": "visual|functional|data",
      "severity": "none|low|medium|high|critical",
      "confidence": 0.0,
      "pass": true,
      "explanation": "...",
      "keyFindings": ["..."],
      "falsePositives": ["..."],
      "expectedChanges": ["..."]
    }
  ],
  "overall": {
    "severity": "none|low|medium|high|critical",
    "confidence": 0.0,
    "pass": true,
    "explanation": "...",
    "recommendations": ["..."]
  }
}`

// buildPrompt renders the diff summary into the reasoning prompt. The
// persona and guidance come from the assessment template; the response
// shape stays in code because the parser depends on it.
func buildPrompt(tpl *templates.Template, summary *models.DiffSummary) (string, error) {
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode diff summary: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(tpl.System)
	sb.WriteString("\n\nStage summaries (JSON):\n")
	sb.Write(payload)
	sb.WriteString("\n\nRespond with a single JSON object and nothing else, using exactly this shape:\n")
	sb.WriteString(responseShape)
	sb.WriteString("\n\n")
	sb.WriteString(tpl.Instructions)

	return sb.String(), nil
}
