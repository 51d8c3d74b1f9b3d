package fields

import (
	"strings"
	"unicode"
)

// consentTokens mark opt-in and subscription controls that mention a field
// type without collecting it, e.g. emailOptIn.
var consentTokens = map[string]bool{
	"opt":        true,
	"optin":      true,
	"optout":     true,
	"consent":    true,
	"subscribe":  true,
	"newsletter": true,
	"marketing":  true,
	"confirm":    true,
}

// Tokenize lowercases a name or id attribute and splits it into words on
// camelCase humps, letter/digit changes and any non-alphanumeric rune. The
// words are joined and wrapped with underscores so patterns can anchor on
// whole words: "contactEmail" becomes "_contact_email_" and "ethnicity"
// stays "_ethnicity_". It returns "" when the attribute names a consent
// control or has no words.
func Tokenize(s string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			switch {
			case unicode.IsUpper(r) && unicode.IsLower(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				// "URLField" splits before the F.
				flush()
			case unicode.IsDigit(r) != unicode.IsDigit(prev):
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()

	if len(words) == 0 {
		return ""
	}
	for _, w := range words {
		if consentTokens[w] {
			return ""
		}
	}
	return "_" + strings.Join(words, "_") + "_"
}
