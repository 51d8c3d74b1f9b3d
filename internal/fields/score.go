package fields

import (
	"regexp"
	"strings"

	"github.com/v0xg/formpilot/internal/dom"
)

// Signal weights. Each signal either fires or it doesn't.
const (
	WeightAutocomplete = 100
	WeightAriaLabel    = 50
	WeightLabel        = 60
	WeightPlaceholder  = 40
	WeightName         = 30
	WeightID           = 20
)

// Threshold is the minimum score for a field to be fillable.
const Threshold = 30

// ScoredField is an element matched to its best field type. It is rebuilt
// on every scan and must not outlive the element's document.
type ScoredField struct {
	Element dom.Element
	Type    FieldType
	Score   int
}

var eligibleTypes = map[string]bool{
	"":      true,
	"text":  true,
	"email": true,
	"tel":   true,
	"url":   true,
}

// autocomplete prefixes that may precede the field token.
var autocompleteModifiers = map[string]bool{
	"shipping": true,
	"billing":  true,
	"home":     true,
	"work":     true,
	"mobile":   true,
	"fax":      true,
	"pager":    true,
}

// Score returns the weighted signal sum of el against the profile for ft.
func Score(doc dom.Document, el dom.Element, ft FieldType) int {
	p, ok := Lookup(ft)
	if !ok {
		return 0
	}
	return score(el, p, LabelText(doc, el))
}

func score(el dom.Element, p Profile, label string) int {
	total := 0
	if matchesAutocomplete(el, p) {
		total += WeightAutocomplete
	}
	if aria := el.Attr("aria-label"); aria != "" && matchAny(p.Label, aria) {
		total += WeightAriaLabel
	}
	if label != "" && matchAny(p.Label, label) {
		total += WeightLabel
	}
	if ph := el.Attr("placeholder"); ph != "" && matchAny(p.Placeholder, ph) {
		total += WeightPlaceholder
	}
	if name := Tokenize(el.Attr("name")); name != "" && matchAny(p.Name, name) {
		total += WeightName
	}
	if id := Tokenize(el.Attr("id")); id != "" && matchAny(p.ID, id) {
		total += WeightID
	}
	return total
}

// Classify picks the best-scoring field type for el. It returns false for
// ineligible or invisible elements and for scores below Threshold.
func Classify(doc dom.Document, el dom.Element) (ScoredField, bool) {
	if !eligible(el) || el.Rect().Empty() {
		return ScoredField{}, false
	}

	label := LabelText(doc, el)
	best := ScoredField{Element: el}
	for _, p := range catalog {
		if s := score(el, p, label); s > best.Score {
			best.Score = s
			best.Type = p.Type
		}
	}
	if best.Score < Threshold {
		return ScoredField{}, false
	}
	return best, true
}

// IsRelevant is the low-confidence predicate used for form detection: any
// autocomplete, placeholder, name or id match against any field type.
func IsRelevant(el dom.Element) bool {
	if el.Disabled() || el.ReadOnly() || el.Type() == "hidden" {
		return false
	}
	ph, name, id := el.Attr("placeholder"), Tokenize(el.Attr("name")), Tokenize(el.Attr("id"))
	for _, p := range catalog {
		if matchesAutocomplete(el, p) {
			return true
		}
		if ph != "" && matchAny(p.Placeholder, ph) {
			return true
		}
		if name != "" && matchAny(p.Name, name) {
			return true
		}
		if id != "" && matchAny(p.ID, id) {
			return true
		}
	}
	return false
}

func eligible(el dom.Element) bool {
	if el.Disabled() || el.ReadOnly() {
		return false
	}
	switch el.Tag() {
	case "textarea":
		return true
	case "input":
		return eligibleTypes[el.Type()]
	default:
		return false
	}
}

// LabelText resolves the label associated with el. Strategies are tried in
// order and the first non-empty result wins: label[for=id], the wrapping
// label (minus the element's own value), aria-labelledby targets, and the
// first label inside the parent.
func LabelText(doc dom.Document, el dom.Element) string {
	if id := el.Attr("id"); id != "" {
		if l := doc.LabelFor(id); l != nil {
			if t := clean(l.Text()); t != "" {
				return t
			}
		}
	}

	if l := el.Closest("label"); l != nil {
		t := l.Text()
		if v := el.Value(); v != "" {
			t = strings.Replace(t, v, "", 1)
		}
		if t = clean(t); t != "" {
			return t
		}
	}

	if ids := strings.Fields(el.Attr("aria-labelledby")); len(ids) > 0 {
		var parts []string
		for _, id := range ids {
			if target := doc.ByID(id); target != nil {
				if t := clean(target.Text()); t != "" {
					parts = append(parts, t)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}

	if parent := el.Parent(); parent != nil {
		if l := parent.First("label"); l != nil {
			if t := clean(l.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

func matchesAutocomplete(el dom.Element, p Profile) bool {
	if len(p.Autocomplete) == 0 {
		return false
	}
	token := autocompleteToken(el.Attr("autocomplete"))
	if token == "" {
		return false
	}
	for _, want := range p.Autocomplete {
		if token == want {
			return true
		}
	}
	return false
}

// autocompleteToken extracts the field-name token from an autocomplete
// attribute, ignoring section-* and address/contact modifiers.
func autocompleteToken(raw string) string {
	tokens := strings.Fields(strings.ToLower(raw))
	var kept []string
	for _, t := range tokens {
		if strings.HasPrefix(t, "section-") || autocompleteModifiers[t] {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return ""
	}
	return kept[len(kept)-1]
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, r := range patterns {
		if r.MatchString(s) {
			return true
		}
	}
	return false
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
