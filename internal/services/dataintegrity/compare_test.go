package dataintegrity

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ternarybob/paritas/internal/models"
)

func TestJaccard(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"alpha beta", "alpha beta", 1.0},
		{"alpha beta", "gamma delta", 0.0},
		{"alpha beta gamma", "alpha beta delta", 0.5},
		{"Alpha, beta!", "alpha beta", 1.0},
	}
	for _, tc := range cases {
		got := jaccard(tokenSet(tc.a), tokenSet(tc.b))
		if got != tc.want {
			t.Errorf("jaccard(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCompareText(t *testing.T) {
	cmp := compareText(
		"The quick brown fox. It jumps high.",
		"The quick brown fox. It leaps high.",
	)

	if cmp.Similarity != 0.75 {
		t.Errorf("similarity = %v", cmp.Similarity)
	}
	if !reflect.DeepEqual(cmp.AddedTokens, []string{"leaps"}) {
		t.Errorf("added = %v", cmp.AddedTokens)
	}
	if !reflect.DeepEqual(cmp.RemovedTokens, []string{"jumps"}) {
		t.Errorf("removed = %v", cmp.RemovedTokens)
	}
	if len(cmp.SentenceShifts) != 0 {
		t.Errorf("shifts = %v", cmp.SentenceShifts)
	}
}

func TestCompareText_SentenceShifts(t *testing.T) {
	cmp := compareText(
		"Alpha one. Beta two. Gamma three.",
		"Beta two. Alpha one. Gamma three.",
	)

	if cmp.Similarity != 1.0 {
		t.Errorf("similarity = %v", cmp.Similarity)
	}
	want := []models.SentenceShift{
		{Sentence: "Alpha one", BaselineIndex: 0, CandidateIndex: 1},
		{Sentence: "Beta two", BaselineIndex: 1, CandidateIndex: 0},
	}
	if !reflect.DeepEqual(cmp.SentenceShifts, want) {
		t.Errorf("shifts = %+v", cmp.SentenceShifts)
	}
}

func TestCompareTables_Identical(t *testing.T) {
	tables := []models.TableData{{Headers: []string{"A"}, Rows: [][]string{{"1"}}}}
	if diffs := compareTables(tables, tables); len(diffs) != 0 {
		t.Errorf("diffs = %+v", diffs)
	}
}

func TestCompareTables_ChangedCell(t *testing.T) {
	baseline := []models.TableData{{Headers: []string{"Plan", "Price"}, Rows: [][]string{{"Starter", "$29"}}}}
	candidate := []models.TableData{{Headers: []string{"Plan", "Price"}, Rows: [][]string{{"Starter", "$35"}}}}

	diffs := compareTables(baseline, candidate)
	if len(diffs) != 1 || diffs[0].SizeMismatch {
		t.Fatalf("diffs = %+v", diffs)
	}
	want := models.CellDiff{Row: 0, Column: 1, Baseline: "$29", Candidate: "$35", Status: models.DiffStatusChanged}
	if len(diffs[0].CellDiffs) != 1 || diffs[0].CellDiffs[0] != want {
		t.Errorf("cells = %+v", diffs[0].CellDiffs)
	}
}

func TestCompareTables_HeaderMismatch(t *testing.T) {
	baseline := []models.TableData{{Headers: []string{"Plan", "Price"}}}
	candidate := []models.TableData{{Headers: []string{"Plan", "Cost"}}}

	diffs := compareTables(baseline, candidate)
	if len(diffs) != 1 {
		t.Fatalf("diffs = %+v", diffs)
	}
	cell := diffs[0].CellDiffs[0]
	if cell.Row != -1 || cell.Column != 1 || cell.Status != models.DiffStatusMismatch {
		t.Errorf("header diff = %+v", cell)
	}
}

func TestCompareTables_MissingRow(t *testing.T) {
	baseline := []models.TableData{{Headers: []string{"A"}, Rows: [][]string{{"1"}, {"2"}}}}
	candidate := []models.TableData{{Headers: []string{"A"}, Rows: [][]string{{"1"}}}}

	diffs := compareTables(baseline, candidate)
	if len(diffs) != 1 || !diffs[0].SizeMismatch {
		t.Fatalf("diffs = %+v", diffs)
	}
	cell := diffs[0].CellDiffs[0]
	if cell.Row != 1 || cell.Status != models.DiffStatusMissingCandidate || cell.Baseline != "2" {
		t.Errorf("cell = %+v", cell)
	}
}

func TestCompareTables_WholeTableMissing(t *testing.T) {
	baseline := []models.TableData{{Headers: []string{"A", "B"}, Rows: [][]string{{"1", "2"}}}}

	diffs := compareTables(baseline, nil)
	if len(diffs) != 1 || !diffs[0].SizeMismatch {
		t.Fatalf("diffs = %+v", diffs)
	}
	if len(diffs[0].CellDiffs) != 4 {
		t.Fatalf("cells = %+v", diffs[0].CellDiffs)
	}
	for _, cell := range diffs[0].CellDiffs {
		if cell.Status != models.DiffStatusMissingCandidate {
			t.Errorf("cell = %+v", cell)
		}
	}
	if diffs[0].CellDiffs[0].Row != -1 {
		t.Errorf("header cells should come first: %+v", diffs[0].CellDiffs[0])
	}

	added := compareTables(nil, baseline)
	if len(added) != 1 || added[0].CellDiffs[0].Status != models.DiffStatusMissingBaseline {
		t.Errorf("added table = %+v", added)
	}
}

func TestComparePricing(t *testing.T) {
	baseline := []models.PricingItem{
		{Selector: ".price", Raw: "$29", Amount: 29, Currency: "USD"},
		{Selector: ".price", Raw: "$99", Amount: 99, Currency: "USD"},
		{Selector: ".amount", Raw: "$5", Amount: 5, Currency: "USD"},
	}
	candidate := []models.PricingItem{
		{Selector: ".price", Raw: "$29", Amount: 29, Currency: "USD"},
		{Selector: ".price", Raw: "€99", Amount: 99, Currency: "EUR"},
	}

	diffs := comparePricing(baseline, candidate)
	if len(diffs) != 3 {
		t.Fatalf("diffs = %+v", diffs)
	}

	if diffs[0].Status != models.DiffStatusMatch || !diffs[0].AmountMatch || !diffs[0].CurrencyMatch {
		t.Errorf("matched pair = %+v", diffs[0])
	}
	if diffs[1].Status != models.DiffStatusMismatch || !diffs[1].AmountMatch || diffs[1].CurrencyMatch {
		t.Errorf("currency drift = %+v", diffs[1])
	}
	if diffs[2].Selector != ".amount" || diffs[2].Status != models.DiffStatusMissingCandidate {
		t.Errorf("missing item = %+v", diffs[2])
	}

	if got := countPricingDiffs(diffs); got != 2 {
		t.Errorf("countPricingDiffs = %d", got)
	}
}

func rawBlocks(blocks ...string) []json.RawMessage {
	var out []json.RawMessage
	for _, b := range blocks {
		out = append(out, json.RawMessage(b))
	}
	return out
}

func TestCompareStructuredData_Identical(t *testing.T) {
	blocks := rawBlocks(`{"@type":"Product","price":"29"}`)
	if diffs := compareStructuredData(blocks, blocks); len(diffs) != 0 {
		t.Errorf("diffs = %+v", diffs)
	}
}

func TestCompareStructuredData_ChangedValue(t *testing.T) {
	diffs := compareStructuredData(
		rawBlocks(`{"price":"29"}`),
		rawBlocks(`{"price":"35"}`),
	)
	want := models.JSONFieldDiff{Path: "$[0].price", Status: models.DiffStatusChanged, Baseline: `"29"`, Candidate: `"35"`}
	if len(diffs) != 1 || diffs[0] != want {
		t.Errorf("diffs = %+v", diffs)
	}
}

func TestCompareStructuredData_MissingKey(t *testing.T) {
	diffs := compareStructuredData(
		rawBlocks(`{"a":1,"b":2}`),
		rawBlocks(`{"a":1}`),
	)
	if len(diffs) != 1 || diffs[0].Path != "$[0].b" || diffs[0].Status != models.DiffStatusMissingCandidate {
		t.Errorf("diffs = %+v", diffs)
	}
	if diffs[0].Baseline != "2" {
		t.Errorf("baseline = %q", diffs[0].Baseline)
	}
}

func TestCompareStructuredData_NestedArray(t *testing.T) {
	diffs := compareStructuredData(
		rawBlocks(`{"offers":[{"price":1},{"price":2}]}`),
		rawBlocks(`{"offers":[{"price":1}]}`),
	)
	if len(diffs) != 1 || diffs[0].Path != "$[0].offers[1]" || diffs[0].Status != models.DiffStatusMissingCandidate {
		t.Errorf("diffs = %+v", diffs)
	}
}

func TestCompareStructuredData_TypeMismatch(t *testing.T) {
	diffs := compareStructuredData(
		rawBlocks(`{"a":{"x":1}}`),
		rawBlocks(`{"a":[1]}`),
	)
	if len(diffs) != 1 || diffs[0].Path != "$[0].a" || diffs[0].Status != models.DiffStatusMismatch {
		t.Errorf("diffs = %+v", diffs)
	}
}

func TestCompareStructuredData_MissingBlock(t *testing.T) {
	diffs := compareStructuredData(
		rawBlocks(`{"a":1}`, `{"b":2}`),
		rawBlocks(`{"a":1}`),
	)
	if len(diffs) != 1 || diffs[0].Path != "$[1]" || diffs[0].Status != models.DiffStatusMissingCandidate {
		t.Errorf("diffs = %+v", diffs)
	}
}
