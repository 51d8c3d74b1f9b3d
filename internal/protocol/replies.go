package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/v0xg/formpilot/internal/engine"
	"github.com/v0xg/formpilot/internal/fields"
	"github.com/v0xg/formpilot/internal/scanner"
)

// TabStatus is the job-page state of one tab.
type TabStatus struct {
	IsJobPage bool     `json:"is_job_page"`
	Score     int      `json:"score"`
	Signals   []string `json:"signals"`
	URL       string   `json:"url"`
}

// FieldSummary describes one fillable field without the element itself.
type FieldSummary struct {
	Type  fields.FieldType `json:"type"`
	Score int              `json:"score"`
	Name  string           `json:"name,omitempty"`
	ID    string           `json:"id,omitempty"`
}

// ScanSummary is a serialisable scanner.Result.
type ScanSummary struct {
	HasApplicationForm  bool           `json:"has_application_form"`
	FillableFieldCount  int            `json:"fillable_field_count"`
	TotalRelevantFields int            `json:"total_relevant_fields"`
	Fields              []FieldSummary `json:"fields"`
}

// Summarize strips element references from a scan result.
func Summarize(r scanner.Result) ScanSummary {
	s := ScanSummary{
		HasApplicationForm:  r.HasApplicationForm,
		FillableFieldCount:  len(r.FillableFields),
		TotalRelevantFields: r.TotalRelevantFields,
		Fields:              make([]FieldSummary, 0, len(r.FillableFields)),
	}
	for _, f := range r.FillableFields {
		s.Fields = append(s.Fields, FieldSummary{
			Type:  f.Type,
			Score: f.Score,
			Name:  f.Element.Attr("name"),
			ID:    f.Element.Attr("id"),
		})
	}
	return s
}

// ScanFieldsReply answers SCAN_FIELDS.
type ScanFieldsReply struct {
	Local     ScanSummary         `json:"local"`
	Aggregate FormDetectionUpdate `json:"aggregate"`
	Frames    int                 `json:"frames"`
}

// AutofillReply answers AUTOFILL_FORM with the top frame's own report.
type AutofillReply struct {
	engine.Report
	BroadcastFrames int `json:"broadcast_frames"`
}

// Null is the reply for handlers that return nothing.
var Null = json.RawMessage("null")

// EncodeReply serialises a handler reply; nil becomes Null.
func EncodeReply(v any) (json.RawMessage, error) {
	if v == nil {
		return Null, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return b, nil
}

// DecodeReply unmarshals a reply into T. It returns false for a null reply.
func DecodeReply[T any](raw json.RawMessage) (T, bool, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode reply: %w", err)
	}
	return v, true, nil
}
