// Package protocol is the signaling wire format: JSON text frames that are
// requests, responses or notifications.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrBadFrame = errors.New("bad frame")

var null = json.RawMessage("null")

// Message is any signaling frame. Exactly one of Request, Response and
// Notification is set.
type Message struct {
	Request      bool            `json:"request,omitempty"`
	Response     bool            `json:"response,omitempty"`
	Notification bool            `json:"notification,omitempty"`
	ID           uint64          `json:"id,omitempty"`
	Method       string          `json:"method,omitempty"`
	OK           bool            `json:"ok,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    Code            `json:"errorCode,omitempty"`
	ErrorReason  string          `json:"errorReason,omitempty"`
}

func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	n := 0
	for _, set := range []bool{m.Request, m.Response, m.Notification} {
		if set {
			n++
		}
	}
	if n != 1 {
		return Message{}, fmt.Errorf("%w: frame kind", ErrBadFrame)
	}
	if (m.Request || m.Notification) && m.Method == "" {
		return Message{}, fmt.Errorf("%w: missing method", ErrBadFrame)
	}
	return m, nil
}

// Bind decodes the frame's data into v. Absent data leaves v untouched.
func (m Message) Bind(v any) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return null, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		if len(raw) == 0 {
			return null, nil
		}
		return raw, nil
	}
	return json.Marshal(data)
}

func NewRequest(id uint64, method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Request: true, ID: id, Method: method, Data: raw}, nil
}

// NewResponse builds a successful response. A nil data is sent as null.
func NewResponse(id uint64, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Response: true, ID: id, OK: true, Data: raw}, nil
}

func NewErrorResponse(id uint64, err error) Message {
	return Message{Response: true, ID: id, ErrorCode: CodeOf(err), ErrorReason: err.Error()}
}

func NewNotification(method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Notification: true, Method: method, Data: raw}, nil
}

// MarshalJSON always writes ok on responses, which omitempty would drop
// for failures.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	if !m.Response {
		return json.Marshal(plain(m))
	}
	return json.Marshal(struct {
		plain
		OK bool `json:"ok"`
	}{plain: plain(m), OK: m.OK})
}

// Err turns a failed response into an *Error.
func (m Message) Err() error {
	if !m.Response || m.OK {
		return nil
	}
	return &Error{Code: m.ErrorCode, Reason: m.ErrorReason}
}
