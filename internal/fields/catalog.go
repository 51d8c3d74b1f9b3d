// Package fields scores form inputs against a fixed catalog of personal
// data field types.
package fields

import "regexp"

// FieldType names a semantic field.
type FieldType string

const (
	FirstName   FieldType = "first_name"
	LastName    FieldType = "last_name"
	FullName    FieldType = "full_name"
	Email       FieldType = "email"
	Phone       FieldType = "phone"
	City        FieldType = "city"
	Country     FieldType = "country"
	LinkedInURL FieldType = "linkedin_url"
)

// Profile holds the patterns that identify one field type. Name and ID
// patterns run against the attribute's token form (see Tokenize).
type Profile struct {
	Type         FieldType
	Autocomplete []string
	Label        []*regexp.Regexp
	Placeholder  []*regexp.Regexp
	Name         []*regexp.Regexp
	ID           []*regexp.Regexp
}

func re(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// catalog order breaks score ties.
var catalog = []Profile{
	{
		Type:         FirstName,
		Autocomplete: []string{"given-name"},
		Label:        re(`(?i)(first|given|fore)[\s_-]*name`, `(?i)pr[ée]nom`, `(?i)vorname`),
		Placeholder:  re(`(?i)(first|given)[\s_-]*name`, `(?i)pr[ée]nom`),
		Name:         re(`_first_?name_`, `^_fname_$`, `_given_?name_`),
		ID:           re(`_first_?name_`, `^_fname_$`, `_given_?name_`),
	},
	{
		Type:         LastName,
		Autocomplete: []string{"family-name"},
		Label:        re(`(?i)(last|family|sur)[\s_-]*name`, `(?i)nom de famille`, `(?i)nachname`),
		Placeholder:  re(`(?i)(last|family|sur)[\s_-]*name`),
		Name:         re(`_last_?name_`, `^_lname_$`, `_surname_`, `_family_?name_`),
		ID:           re(`_last_?name_`, `^_lname_$`, `_surname_`, `_family_?name_`),
	},
	{
		Type:         FullName,
		Autocomplete: []string{"name"},
		Label:        re(`(?i)^\s*(full\s*)?name\s*\*?\s*:?\s*$`, `(?i)full[\s_-]*name`, `(?i)(your|legal)\s+name`),
		Placeholder:  re(`(?i)full[\s_-]*name`, `(?i)^\s*(your\s+)?name\s*$`),
		Name:         re(`^_((full|your|applicant|candidate)_?)?name_$`),
		ID:           re(`^_((full|your|applicant|candidate)_?)?name_$`),
	},
	{
		Type:         Email,
		Autocomplete: []string{"email"},
		Label:        re(`(?i)e[\s_-]?mail`, `(?i)courriel`),
		Placeholder:  re(`(?i)e[\s_-]?mail`, `@`),
		Name:         re(`_e_?mail_`),
		ID:           re(`_e_?mail_`),
	},
	{
		Type:         Phone,
		Autocomplete: []string{"tel", "tel-national"},
		Label:        re(`(?i)phone`, `(?i)mobile`, `(?i)\btel\b`, `(?i)t[ée]l[ée]phone`, `(?i)\bcell\b`),
		Placeholder:  re(`(?i)phone`, `(?i)mobile`, `^\+?\d[\d\s().-]{6,}$`),
		Name:         re(`_(tele|mobile_?|cell_?)?phone(_?(number|no))?_`, `_mobile_`, `_tel_`, `_cell_`),
		ID:           re(`_(tele|mobile_?|cell_?)?phone(_?(number|no))?_`, `_mobile_`, `_tel_`, `_cell_`),
	},
	{
		Type:         City,
		Autocomplete: []string{"address-level2"},
		Label:        re(`(?i)\bcity\b`, `(?i)\btown\b`, `(?i)\bville\b`, `(?i)\bstadt\b`),
		Placeholder:  re(`(?i)\bcity\b`, `(?i)\btown\b`),
		Name:         re(`_city_`, `_town_`),
		ID:           re(`_city_`, `_town_`),
	},
	{
		Type:         Country,
		Autocomplete: []string{"country", "country-name"},
		Label:        re(`(?i)country`, `(?i)\bpays\b`),
		Placeholder:  re(`(?i)country`),
		Name:         re(`_country_`),
		ID:           re(`_country_`),
	},
	{
		Type:        LinkedInURL,
		Label:       re(`(?i)linked\s*in`),
		Placeholder: re(`(?i)linked\s*in`, `(?i)linkedin\.com`),
		Name:        re(`_linked_?in_`),
		ID:          re(`_linked_?in_`),
	},
}

// Lookup returns the profile for t.
func Lookup(t FieldType) (Profile, bool) {
	for _, p := range catalog {
		if p.Type == t {
			return p, true
		}
	}
	return Profile{}, false
}
