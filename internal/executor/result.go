package executor

import "github.com/v0xg/formpilot/internal/fields"

// Skip reasons reported in FillResult.Reason.
const (
	ReasonNoValue     = "no_value"
	ReasonNotFillable = "not_fillable"
)

// FillResult records one fill attempt.
type FillResult struct {
	Type   fields.FieldType `json:"type"`
	Name   string           `json:"name,omitempty"`
	ID     string           `json:"id,omitempty"`
	Filled bool             `json:"filled"`
	Reason string           `json:"reason,omitempty"`
}
