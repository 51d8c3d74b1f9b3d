package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/v0xg/formpilot/internal/engine"
	"github.com/v0xg/formpilot/internal/executor"
)

// FrameType tags a cross-frame postMessage payload.
type FrameType string

const (
	FrameScanResult  FrameType = "formpilot:scan-result"
	FrameFillCommand FrameType = "formpilot:fill-command"
	FrameFillResult  FrameType = "formpilot:fill-result"
)

// FrameMessage is a message on the top frame ↔ iframe channel.
type FrameMessage interface {
	FrameType() FrameType
	frameMessage()
}

// IframeScanResult is an agent's scan report.
type IframeScanResult struct {
	HasApplicationForm bool           `json:"has_application_form"`
	FillableFieldCount int            `json:"fillable_field_count"`
	Fields             []FieldSummary `json:"fields"`
}

// FillCommand asks an agent to fill its frame.
type FillCommand struct {
	RequestID string         `json:"request_id"`
	Profile   engine.Profile `json:"profile"`
}

// FillResultReport is an agent's answer to a FillCommand.
type FillResultReport struct {
	RequestID string                `json:"request_id"`
	Filled    int                   `json:"filled"`
	Skipped   int                   `json:"skipped"`
	Results   []executor.FillResult `json:"results"`
}

func (IframeScanResult) FrameType() FrameType { return FrameScanResult }
func (FillCommand) FrameType() FrameType      { return FrameFillCommand }
func (FillResultReport) FrameType() FrameType { return FrameFillResult }

func (IframeScanResult) frameMessage() {}
func (FillCommand) frameMessage()      {}
func (FillResultReport) frameMessage() {}

type frameEnvelope struct {
	Type    FrameType `json:"type"`
	Payload any       `json:"payload"`
}

// EncodeFrame serialises msg as {type, payload}.
func EncodeFrame(msg FrameMessage) ([]byte, error) {
	b, err := json.Marshal(frameEnvelope{Type: msg.FrameType(), Payload: msg})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.FrameType(), err)
	}
	return b, nil
}

// DecodeFrame parses a postMessage payload. Foreign messages (anything
// without one of our types) return ErrMalformed; pages post plenty of
// unrelated messages and callers drop them.
func DecodeFrame(data []byte) (FrameMessage, error) {
	kind, err := peekType(data)
	if err != nil {
		return nil, err
	}
	payload := []byte(gjson.GetBytes(data, "payload").Raw)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: %s without payload", ErrMalformed, kind)
	}

	var msg FrameMessage
	switch FrameType(kind) {
	case FrameScanResult:
		msg, err = decodeInto[IframeScanResult](payload)
	case FrameFillCommand:
		msg, err = decodeInto[FillCommand](payload)
	case FrameFillResult:
		msg, err = decodeInto[FillResultReport](payload)
	default:
		return nil, fmt.Errorf("%w: foreign type %q", ErrMalformed, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	return msg, nil
}
