package visualdiff

import "github.com/ternarybob/paritas/internal/models"

// classifySeverity grades one viewport comparison. The table is ordered:
// a layout shift on a heavily changed page is critical, a shift or a
// large diff is high, and smaller ratios step down from there.
func classifySeverity(diffRatio float64, hasLayoutShift bool) models.Severity {
	switch {
	case diffRatio == 0 && !hasLayoutShift:
		return models.SeverityNone
	case hasLayoutShift && diffRatio > 0.5:
		return models.SeverityCritical
	case hasLayoutShift || diffRatio > 0.3:
		return models.SeverityHigh
	case diffRatio > 0.1:
		return models.SeverityMedium
	case diffRatio > 0.05:
		return models.SeverityLow
	default:
		return models.SeverityNone
	}
}
