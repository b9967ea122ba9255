// Package message defines the tagged variants exchanged between the page,
// orchestrator and compute contexts, and their JSON envelope.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"adswap/internal/element"
)

type Type string

const (
	TypeCheckElement Type = "checkElement"
	TypePredict      Type = "predict"
	TypePrediction   Type = "prediction"
	TypeReplaceAd    Type = "replaceAd"
	TypeStatusProbe  Type = "statusProbe"
	TypeStatus       Type = "computeStatus"
)

const (
	TargetOrchestrator = "orchestrator"
	TargetCompute      = "compute"
	TargetPage         = "page"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrEmptyBody   = errors.New("empty message body")
)

// Message is implemented by every variant. The unexported method closes the set.
type Message interface {
	Type() Type
	Target() string
	isMessage()
}

// Envelope is the wire form of a Message.
type Envelope struct {
	Type          Type            `json:"type"`
	Target        string          `json:"target,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// CheckElement reports a candidate element (page -> orchestrator).
type CheckElement struct {
	Element   element.Descriptor `json:"element"`
	ContextID string             `json:"contextId"`
	Viewport  *element.Viewport  `json:"viewport,omitempty"`
}

// Predict asks the compute context to score an element (orchestrator -> compute).
type Predict struct {
	RequestID       string `json:"requestId"`
	ReplyTo         string `json:"replyTo"`
	OriginContextID string `json:"originContextId"`
	element.Descriptor
	element.Viewport
}

// Prediction answers a Predict (compute -> orchestrator). Confidence is nil
// when the classifier was unavailable.
type Prediction struct {
	RequestID       string             `json:"requestId"`
	IsAd            bool               `json:"isAd"`
	Confidence      *float64           `json:"confidence,omitempty"`
	Element         element.Descriptor `json:"elementData"`
	OriginContextID string             `json:"originContextId"`
}

// ReplaceAd instructs a page context to replace an element (orchestrator -> page).
type ReplaceAd struct {
	element.Replacement
}

// StatusProbe asks the compute context for its classifier readiness.
type StatusProbe struct {
	RequestID string `json:"requestId"`
	ReplyTo   string `json:"replyTo"`
}

// Status answers a StatusProbe with a terminal (or timed-out) readiness state.
type Status struct {
	RequestID string `json:"requestId"`
	State     string `json:"state"`
}

func (CheckElement) Type() Type { return TypeCheckElement }
func (Predict) Type() Type      { return TypePredict }
func (Prediction) Type() Type   { return TypePrediction }
func (ReplaceAd) Type() Type    { return TypeReplaceAd }
func (StatusProbe) Type() Type  { return TypeStatusProbe }
func (Status) Type() Type       { return TypeStatus }

func (CheckElement) Target() string { return TargetOrchestrator }
func (Predict) Target() string      { return TargetCompute }
func (Prediction) Target() string   { return TargetOrchestrator }
func (ReplaceAd) Target() string    { return TargetPage }
func (StatusProbe) Target() string  { return TargetCompute }
func (Status) Target() string       { return TargetOrchestrator }

func (CheckElement) isMessage() {}
func (Predict) isMessage()      {}
func (Prediction) isMessage()   {}
func (ReplaceAd) isMessage()    {}
func (StatusProbe) isMessage()  {}
func (Status) isMessage()       {}

// Encode wraps m in an envelope tagged with its type and target.
func Encode(m Message, correlationID string) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return json.Marshal(Envelope{
		Type:          m.Type(),
		Target:        m.Target(),
		CorrelationID: correlationID,
		Data:          data,
	})
}

// Decode parses an envelope and its payload into the matching variant.
func Decode(body []byte) (Envelope, Message, error) {
	var env Envelope
	if len(body) == 0 {
		return env, nil, ErrEmptyBody
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, nil, fmt.Errorf("decode envelope: %w", err)
	}

	var m Message
	var err error
	switch env.Type {
	case TypeCheckElement:
		m, err = decodeAs[CheckElement](env.Data)
	case TypePredict:
		m, err = decodeAs[Predict](env.Data)
	case TypePrediction:
		m, err = decodeAs[Prediction](env.Data)
	case TypeReplaceAd:
		m, err = decodeAs[ReplaceAd](env.Data)
	case TypeStatusProbe:
		m, err = decodeAs[StatusProbe](env.Data)
	case TypeStatus:
		m, err = decodeAs[Status](env.Data)
	default:
		return env, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return env, nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return env, m, nil
}

func decodeAs[T Message](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, ErrEmptyBody
	}
	err := json.Unmarshal(data, &v)
	return v, err
}
