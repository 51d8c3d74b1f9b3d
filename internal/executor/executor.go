// Package executor writes values into form fields the way a user would,
// so that virtual-DOM frameworks observe the change.
package executor

import (
	"strings"
	"unicode/utf16"

	"github.com/v0xg/formpilot/internal/dom"
)

// Fillable reports whether el can take a value: enabled, writable, empty,
// and with a non-zero box in at least one dimension.
func Fillable(el dom.Element) bool {
	if el.Disabled() || el.ReadOnly() {
		return false
	}
	if strings.TrimSpace(el.Value()) != "" {
		return false
	}
	r := el.Rect()
	return r.Width > 0 || r.Height > 0
}

// Fill writes raw into el. It returns false without touching the element
// when raw is blank or el is not Fillable.
//
// The sequence is focus, native setter, input, change, blur. If a step
// fails the fill still counts when the element ends up holding the value.
func Fill(el dom.Element, raw string) bool {
	if strings.TrimSpace(raw) == "" || !Fillable(el) {
		return false
	}
	value := Truncate(raw, el.MaxLength())

	if err := run(el, value); err != nil {
		return el.Value() == value
	}
	return true
}

func run(el dom.Element, value string) error {
	if err := el.Focus(); err != nil {
		return err
	}
	if err := el.SetNativeValue(value); err != nil {
		return err
	}
	if err := el.Dispatch("input", true); err != nil {
		return err
	}
	if err := el.Dispatch("change", true); err != nil {
		return err
	}
	return el.Blur()
}

// Truncate cuts s to at most max UTF-16 code units, the unit a DOM
// maxLength counts in. A rune is never split, so a surrogate pair that
// would straddle the limit is dropped whole. A max of zero or less is
// unlimited.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > max {
			return s[:i]
		}
		units += n
	}
	return s
}
