// Package scanner finds fillable personal-data fields in one document and
// decides whether it holds an application form.
package scanner

import (
	"sort"

	"github.com/v0xg/formpilot/internal/dom"
	"github.com/v0xg/formpilot/internal/fields"
)

// MinRelevantFields is the relevant-field count at which a document counts
// as an application form.
const MinRelevantFields = 2

var excludedTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
	"file":   true,
}

// Result is one document's scan outcome.
type Result struct {
	HasApplicationForm bool
	// FillableFields holds at most one field per type, highest score first.
	FillableFields      []fields.ScoredField
	TotalRelevantFields int
}

// Types returns the field types in FillableFields order.
func (r Result) Types() []fields.FieldType {
	out := make([]fields.FieldType, len(r.FillableFields))
	for i, f := range r.FillableFields {
		out[i] = f.Type
	}
	return out
}

// Scan classifies every candidate input and textarea in doc.
func Scan(doc dom.Document) Result {
	var (
		candidates []fields.ScoredField
		relevant   int
	)
	for _, el := range Candidates(doc) {
		if sf, ok := fields.Classify(doc, el); ok {
			candidates = append(candidates, sf)
		}
		if fields.IsRelevant(el) {
			relevant++
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	seen := make(map[fields.FieldType]bool, len(candidates))
	fillable := make([]fields.ScoredField, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.Type] {
			continue
		}
		seen[c.Type] = true
		fillable = append(fillable, c)
	}

	return Result{
		HasApplicationForm:  relevant >= MinRelevantFields,
		FillableFields:      fillable,
		TotalRelevantFields: relevant,
	}
}

// Candidates returns the inputs and textareas worth scoring.
func Candidates(doc dom.Document) []dom.Element {
	all := doc.QueryAll("input", "textarea")
	out := all[:0:0]
	for _, el := range all {
		if el.Tag() == "input" && excludedTypes[el.Type()] {
			continue
		}
		out = append(out, el)
	}
	return out
}

// CountInputs counts every input and textarea, regardless of type.
func CountInputs(doc dom.Document) int {
	return len(doc.QueryAll("input", "textarea"))
}
