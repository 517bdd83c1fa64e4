package dataintegrity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ternarybob/paritas/internal/models"
)

var sentencePattern = regexp.MustCompile(`[.!?]+`)

// compareText diffs the visible text of both sides: Jaccard similarity
// over lowercase word sets, token add/remove lists, and sentences that
// appear on both sides at different positions.
func compareText(baseline, candidate string) models.TextComparison {
	baseTokens := tokenSet(baseline)
	candTokens := tokenSet(candidate)

	cmp := models.TextComparison{
		Similarity:    jaccard(baseTokens, candTokens),
		AddedTokens:   setDifference(candTokens, baseTokens),
		RemovedTokens: setDifference(baseTokens, candTokens),
	}

	baseIndex := sentenceIndex(baseline)
	candIndex := sentenceIndex(candidate)
	for sentence, bi := range baseIndex {
		if ci, ok := candIndex[sentence]; ok && ci != bi {
			cmp.SentenceShifts = append(cmp.SentenceShifts, models.SentenceShift{
				Sentence:       sentence,
				BaselineIndex:  bi,
				CandidateIndex: ci,
			})
		}
	}
	sort.Slice(cmp.SentenceShifts, func(i, j int) bool {
		return cmp.SentenceShifts[i].BaselineIndex < cmp.SentenceShifts[j].BaselineIndex
	})

	return cmp
}

func tokenSet(s string) map[string]bool {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// jaccard computes |A∩B| / |A∪B|. Two empty sets count as identical.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func setDifference(a, b map[string]bool) []string {
	var out []string
	for t := range a {
		if !b[t] {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// sentenceIndex maps each sentence to its first position in the text
func sentenceIndex(text string) map[string]int {
	index := make(map[string]int)
	pos := 0
	for _, part := range sentencePattern.Split(text, -1) {
		sentence := collapseWhitespace(part)
		if sentence == "" {
			continue
		}
		if _, seen := index[sentence]; !seen {
			index[sentence] = pos
		}
		pos++
	}
	return index
}

// compareTables diffs tables positionally by document order. Only cells
// that differ are recorded; header cells carry row -1.
func compareTables(baseline, candidate []models.TableData) []models.TableComparison {
	var out []models.TableComparison

	count := max(len(baseline), len(candidate))
	for i := 0; i < count; i++ {
		switch {
		case i >= len(candidate):
			out = append(out, missingTable(i, baseline[i], models.DiffStatusMissingCandidate))
		case i >= len(baseline):
			out = append(out, missingTable(i, candidate[i], models.DiffStatusMissingBaseline))
		default:
			cmp := compareTable(i, baseline[i], candidate[i])
			if cmp.SizeMismatch || len(cmp.CellDiffs) > 0 {
				out = append(out, cmp)
			}
		}
	}

	return out
}

// missingTable marks a table absent on one side: every cell of the
// present side becomes a missing_* diff.
func missingTable(index int, present models.TableData, status string) models.TableComparison {
	cmp := models.TableComparison{Index: index, SizeMismatch: true}
	for col, text := range present.Headers {
		cmp.CellDiffs = append(cmp.CellDiffs, missingCell(-1, col, text, status))
	}
	for row, cells := range present.Rows {
		for col, text := range cells {
			cmp.CellDiffs = append(cmp.CellDiffs, missingCell(row, col, text, status))
		}
	}
	return cmp
}

func missingCell(row, col int, text, status string) models.CellDiff {
	diff := models.CellDiff{Row: row, Column: col, Status: status}
	if status == models.DiffStatusMissingCandidate {
		diff.Baseline = text
	} else {
		diff.Candidate = text
	}
	return diff
}

func compareTable(index int, baseline, candidate models.TableData) models.TableComparison {
	cmp := models.TableComparison{Index: index}

	if len(baseline.Headers) != len(candidate.Headers) || len(baseline.Rows) != len(candidate.Rows) {
		cmp.SizeMismatch = true
	}

	headerCount := max(len(baseline.Headers), len(candidate.Headers))
	for col := 0; col < headerCount; col++ {
		switch {
		case col >= len(candidate.Headers):
			cmp.CellDiffs = append(cmp.CellDiffs, missingCell(-1, col, baseline.Headers[col], models.DiffStatusMissingCandidate))
		case col >= len(baseline.Headers):
			cmp.CellDiffs = append(cmp.CellDiffs, missingCell(-1, col, candidate.Headers[col], models.DiffStatusMissingBaseline))
		case baseline.Headers[col] != candidate.Headers[col]:
			cmp.CellDiffs = append(cmp.CellDiffs, models.CellDiff{
				Row:       -1,
				Column:    col,
				Baseline:  baseline.Headers[col],
				Candidate: candidate.Headers[col],
				Status:    models.DiffStatusMismatch,
			})
		}
	}

	rowCount := max(len(baseline.Rows), len(candidate.Rows))
	for row := 0; row < rowCount; row++ {
		switch {
		case row >= len(candidate.Rows):
			for col, text := range baseline.Rows[row] {
				cmp.CellDiffs = append(cmp.CellDiffs, missingCell(row, col, text, models.DiffStatusMissingCandidate))
			}
		case row >= len(baseline.Rows):
			for col, text := range candidate.Rows[row] {
				cmp.CellDiffs = append(cmp.CellDiffs, missingCell(row, col, text, models.DiffStatusMissingBaseline))
			}
		default:
			cmp.CellDiffs = append(cmp.CellDiffs, compareRow(row, baseline.Rows[row], candidate.Rows[row])...)
		}
	}

	return cmp
}

func compareRow(row int, baseline, candidate []string) []models.CellDiff {
	var diffs []models.CellDiff
	colCount := max(len(baseline), len(candidate))
	for col := 0; col < colCount; col++ {
		switch {
		case col >= len(candidate):
			diffs = append(diffs, missingCell(row, col, baseline[col], models.DiffStatusMissingCandidate))
		case col >= len(baseline):
			diffs = append(diffs, missingCell(row, col, candidate[col], models.DiffStatusMissingBaseline))
		case baseline[col] != candidate[col]:
			diffs = append(diffs, models.CellDiff{
				Row:       row,
				Column:    col,
				Baseline:  baseline[col],
				Candidate: candidate[col],
				Status:    models.DiffStatusChanged,
			})
		}
	}
	return diffs
}

// comparePricing pairs pricing items by selector, positionally within
// each selector group. Matched pairs are recorded too so the report can
// show prices were verified.
func comparePricing(baseline, candidate []models.PricingItem) []models.PricingDiff {
	baseGroups := groupPricing(baseline)
	candGroups := groupPricing(candidate)

	var out []models.PricingDiff
	for _, selector := range pricingSelectors {
		basePrices := baseGroups[selector]
		candPrices := candGroups[selector]
		count := max(len(basePrices), len(candPrices))
		for i := 0; i < count; i++ {
			switch {
			case i >= len(candPrices):
				out = append(out, models.PricingDiff{
					Selector:         selector,
					BaselineRaw:      basePrices[i].Raw,
					BaselineAmount:   basePrices[i].Amount,
					BaselineCurrency: basePrices[i].Currency,
					Status:           models.DiffStatusMissingCandidate,
				})
			case i >= len(basePrices):
				out = append(out, models.PricingDiff{
					Selector:          selector,
					CandidateRaw:      candPrices[i].Raw,
					CandidateAmount:   candPrices[i].Amount,
					CandidateCurrency: candPrices[i].Currency,
					Status:            models.DiffStatusMissingBaseline,
				})
			default:
				out = append(out, comparePricingItem(basePrices[i], candPrices[i]))
			}
		}
	}

	return out
}

func groupPricing(items []models.PricingItem) map[string][]models.PricingItem {
	groups := make(map[string][]models.PricingItem)
	for _, item := range items {
		groups[item.Selector] = append(groups[item.Selector], item)
	}
	return groups
}

func comparePricingItem(baseline, candidate models.PricingItem) models.PricingDiff {
	diff := models.PricingDiff{
		Selector:          baseline.Selector,
		BaselineRaw:       baseline.Raw,
		CandidateRaw:      candidate.Raw,
		BaselineAmount:    baseline.Amount,
		CandidateAmount:   candidate.Amount,
		BaselineCurrency:  baseline.Currency,
		CandidateCurrency: candidate.Currency,
		AmountMatch:       baseline.Amount == candidate.Amount,
		CurrencyMatch:     baseline.Currency == candidate.Currency,
	}
	if diff.AmountMatch && diff.CurrencyMatch {
		diff.Status = models.DiffStatusMatch
	} else {
		diff.Status = models.DiffStatusMismatch
	}
	return diff
}

// compareStructuredData diffs ld+json blocks positionally, walking each
// pair recursively. Paths read like "$[0].offers[2].price".
func compareStructuredData(baseline, candidate []json.RawMessage) []models.JSONFieldDiff {
	var out []models.JSONFieldDiff

	count := max(len(baseline), len(candidate))
	for i := 0; i < count; i++ {
		path := fmt.Sprintf("$[%d]", i)
		switch {
		case i >= len(candidate):
			out = append(out, models.JSONFieldDiff{
				Path:     path,
				Status:   models.DiffStatusMissingCandidate,
				Baseline: string(baseline[i]),
			})
		case i >= len(baseline):
			out = append(out, models.JSONFieldDiff{
				Path:      path,
				Status:    models.DiffStatusMissingBaseline,
				Candidate: string(candidate[i]),
			})
		default:
			var bv, cv interface{}
			if err := json.Unmarshal(baseline[i], &bv); err != nil {
				continue
			}
			if err := json.Unmarshal(candidate[i], &cv); err != nil {
				continue
			}
			diffJSONValue(path, bv, cv, &out)
		}
	}

	return out
}

func diffJSONValue(path string, baseline, candidate interface{}, out *[]models.JSONFieldDiff) {
	baseMap, baseIsMap := baseline.(map[string]interface{})
	candMap, candIsMap := candidate.(map[string]interface{})
	baseArr, baseIsArr := baseline.([]interface{})
	candArr, candIsArr := candidate.([]interface{})

	switch {
	case baseIsMap && candIsMap:
		for _, key := range unionKeys(baseMap, candMap) {
			keyPath := path + "." + key
			bv, inBase := baseMap[key]
			cv, inCand := candMap[key]
			switch {
			case !inCand:
				*out = append(*out, models.JSONFieldDiff{
					Path:     keyPath,
					Status:   models.DiffStatusMissingCandidate,
					Baseline: renderJSON(bv),
				})
			case !inBase:
				*out = append(*out, models.JSONFieldDiff{
					Path:      keyPath,
					Status:    models.DiffStatusMissingBaseline,
					Candidate: renderJSON(cv),
				})
			default:
				diffJSONValue(keyPath, bv, cv, out)
			}
		}

	case baseIsArr && candIsArr:
		count := max(len(baseArr), len(candArr))
		for i := 0; i < count; i++ {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			switch {
			case i >= len(candArr):
				*out = append(*out, models.JSONFieldDiff{
					Path:     itemPath,
					Status:   models.DiffStatusMissingCandidate,
					Baseline: renderJSON(baseArr[i]),
				})
			case i >= len(baseArr):
				*out = append(*out, models.JSONFieldDiff{
					Path:      itemPath,
					Status:    models.DiffStatusMissingBaseline,
					Candidate: renderJSON(candArr[i]),
				})
			default:
				diffJSONValue(itemPath, baseArr[i], candArr[i], out)
			}
		}

	case baseIsMap != candIsMap || baseIsArr != candIsArr:
		*out = append(*out, models.JSONFieldDiff{
			Path:      path,
			Status:    models.DiffStatusMismatch,
			Baseline:  renderJSON(baseline),
			Candidate: renderJSON(candidate),
		})

	default:
		if renderJSON(baseline) != renderJSON(candidate) {
			*out = append(*out, models.JSONFieldDiff{
				Path:      path,
				Status:    models.DiffStatusChanged,
				Baseline:  renderJSON(baseline),
				Candidate: renderJSON(candidate),
			})
		}
	}
}

func unionKeys(a, b map[string]interface{}) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for k := range a {
		seen[k] = true
		keys = append(keys, k)
	}
	for k := range b {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func renderJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
