// Package engine composes the scanner and the fill executor for one frame.
package engine

import (
	"strings"

	"github.com/v0xg/formpilot/internal/dom"
	"github.com/v0xg/formpilot/internal/executor"
	"github.com/v0xg/formpilot/internal/fields"
	"github.com/v0xg/formpilot/internal/scanner"
)

// Profile is the user data used for autofill. Nil and empty mean no value.
type Profile struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	City        *string `json:"city"`
	Country     *string `json:"country"`
	LinkedInURL *string `json:"linkedin_url"`
}

// IsEmpty reports whether every field is nil or blank.
func (p Profile) IsEmpty() bool {
	for _, v := range []*string{p.FirstName, p.LastName, p.Email, p.Phone, p.City, p.Country, p.LinkedInURL} {
		if !blank(deref(v)) {
			return false
		}
	}
	return true
}

// Value returns the profile value for a field type as stored, without
// trimming. full_name joins the non-blank first and last names.
func (p Profile) Value(t fields.FieldType) string {
	switch t {
	case fields.FirstName:
		return deref(p.FirstName)
	case fields.LastName:
		return deref(p.LastName)
	case fields.FullName:
		var parts []string
		for _, v := range []string{deref(p.FirstName), deref(p.LastName)} {
			if !blank(v) {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " ")
	case fields.Email:
		return deref(p.Email)
	case fields.Phone:
		return deref(p.Phone)
	case fields.City:
		return deref(p.City)
	case fields.Country:
		return deref(p.Country)
	case fields.LinkedInURL:
		return deref(p.LinkedInURL)
	default:
		return ""
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// Report summarises one fill pass.
type Report struct {
	Filled  int                   `json:"filled"`
	Skipped int                   `json:"skipped"`
	Results []executor.FillResult `json:"results"`
}

// Engine scans and fills one document.
type Engine struct {
	doc  dom.Document
	last scanner.Result
}

// New returns an engine bound to doc.
func New(doc dom.Document) *Engine {
	return &Engine{doc: doc}
}

// Document returns the bound document.
func (e *Engine) Document() dom.Document { return e.doc }

// Scan rescans the document and caches the result.
func (e *Engine) Scan() scanner.Result {
	e.last = scanner.Scan(e.doc)
	return e.last
}

// Last returns the most recent scan result.
func (e *Engine) Last() scanner.Result { return e.last }

// Fill rescans and fills every fillable field from p.
func (e *Engine) Fill(p Profile) Report {
	res := e.Scan()
	report := Report{Results: make([]executor.FillResult, 0, len(res.FillableFields))}
	for _, f := range res.FillableFields {
		r := executor.FillResult{
			Type: f.Type,
			Name: f.Element.Attr("name"),
			ID:   f.Element.Attr("id"),
		}
		value := p.Value(f.Type)
		switch {
		case blank(value):
			r.Reason = executor.ReasonNoValue
		case executor.Fill(f.Element, value):
			r.Filled = true
		default:
			r.Reason = executor.ReasonNotFillable
		}
		if r.Filled {
			report.Filled++
		} else {
			report.Skipped++
		}
		report.Results = append(report.Results, r)
	}
	return report
}
