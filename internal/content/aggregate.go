// Package content is the top-frame content script: it scans its own
// document, collects reports from iframe agents, and keeps the background
// informed of the page-level form detection state.
package content

import (
	"github.com/v0xg/formpilot/internal/protocol"
	"github.com/v0xg/formpilot/internal/scanner"
)

// Aggregate merges the top frame's scan with iframe reports. The form flag
// is OR'd and fillable counts are summed; fields in different frames are
// different elements even when they share a type.
func Aggregate(local scanner.Result, frames map[string]protocol.IframeScanResult) protocol.FormDetectionUpdate {
	out := protocol.FormDetectionUpdate{
		HasApplicationForm: local.HasApplicationForm,
		FillableFieldCount: len(local.FillableFields),
	}
	for _, r := range frames {
		out.HasApplicationForm = out.HasApplicationForm || r.HasApplicationForm
		out.FillableFieldCount += r.FillableFieldCount
	}
	return out
}
