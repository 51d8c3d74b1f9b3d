// Package protocol defines the message envelopes exchanged between
// execution contexts. Each channel has a closed set of message types; a
// receiver must handle every type it knows and treat anything else as a
// no-op.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/v0xg/formpilot/internal/engine"
)

// ErrMalformed is returned for payloads that are not a JSON object with a
// string type field.
var ErrMalformed = errors.New("malformed message")

// MessageType tags a runtime message.
type MessageType string

const (
	TypeDetectionResult     MessageType = "DETECTION_RESULT"
	TypeFormDetectionUpdate MessageType = "FORM_DETECTION_UPDATE"
	TypeGetTabStatus        MessageType = "GET_TAB_STATUS"
	TypeInjectIntoIframe    MessageType = "INJECT_INTO_IFRAME"
	TypeGetDetection        MessageType = "GET_DETECTION"
	TypeScanFields          MessageType = "SCAN_FIELDS"
	TypeAutofillForm        MessageType = "AUTOFILL_FORM"
)

// RuntimeMessage is a message on the background ↔ content/popup channel.
type RuntimeMessage interface {
	Type() MessageType
	runtimeMessage()
}

// DetectionResult reports job-posting detection for a page.
type DetectionResult struct {
	IsJobPage bool     `json:"is_job_page"`
	Score     int      `json:"score"`
	Signals   []string `json:"signals"`
	URL       string   `json:"url"`
}

// FormDetectionUpdate is the page-level aggregate of form detection.
type FormDetectionUpdate struct {
	HasApplicationForm bool `json:"has_application_form"`
	FillableFieldCount int  `json:"fillable_field_count"`
}

// GetTabStatus asks the background for a tab's status.
type GetTabStatus struct {
	TabID int `json:"tab_id"`
}

// InjectIntoIframe asks the background to inject the agent into a frame the
// content script could not reach.
type InjectIntoIframe struct {
	FrameURL string `json:"frame_url"`
}

// GetDetection asks a content script for its detection result.
type GetDetection struct{}

// ScanFields asks a content script to rescan.
type ScanFields struct{}

// AutofillForm tells a content script to fill the page.
type AutofillForm struct {
	Profile engine.Profile `json:"profile"`
}

// Unknown is any message with an unrecognised type.
type Unknown struct {
	Kind string `json:"-"`
}

func (DetectionResult) Type() MessageType     { return TypeDetectionResult }
func (FormDetectionUpdate) Type() MessageType { return TypeFormDetectionUpdate }
func (GetTabStatus) Type() MessageType        { return TypeGetTabStatus }
func (InjectIntoIframe) Type() MessageType    { return TypeInjectIntoIframe }
func (GetDetection) Type() MessageType        { return TypeGetDetection }
func (ScanFields) Type() MessageType          { return TypeScanFields }
func (AutofillForm) Type() MessageType        { return TypeAutofillForm }
func (u Unknown) Type() MessageType           { return MessageType(u.Kind) }

func (DetectionResult) runtimeMessage()     {}
func (FormDetectionUpdate) runtimeMessage() {}
func (GetTabStatus) runtimeMessage()        {}
func (InjectIntoIframe) runtimeMessage()    {}
func (GetDetection) runtimeMessage()        {}
func (ScanFields) runtimeMessage()          {}
func (AutofillForm) runtimeMessage()        {}
func (Unknown) runtimeMessage()             {}

// EncodeRuntime serialises msg as a flat JSON object with a type field.
func EncodeRuntime(msg RuntimeMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	out, err := sjson.SetBytes(body, "type", string(msg.Type()))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return out, nil
}

// DecodeRuntime parses a runtime message. Unrecognised types decode to
// Unknown rather than failing.
func DecodeRuntime(data []byte) (RuntimeMessage, error) {
	kind, err := peekType(data)
	if err != nil {
		return nil, err
	}

	var msg RuntimeMessage
	switch MessageType(kind) {
	case TypeDetectionResult:
		msg, err = decodeInto[DetectionResult](data)
	case TypeFormDetectionUpdate:
		msg, err = decodeInto[FormDetectionUpdate](data)
	case TypeGetTabStatus:
		msg, err = decodeInto[GetTabStatus](data)
	case TypeInjectIntoIframe:
		msg, err = decodeInto[InjectIntoIframe](data)
	case TypeGetDetection:
		msg = GetDetection{}
	case TypeScanFields:
		msg = ScanFields{}
	case TypeAutofillForm:
		msg, err = decodeInto[AutofillForm](data)
	default:
		msg = Unknown{Kind: kind}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	return msg, nil
}

func peekType(data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return "", fmt.Errorf("%w: not an object", ErrMalformed)
	}
	t := root.Get("type")
	if t.Type != gjson.String {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return t.String(), nil
}

func decodeInto[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
