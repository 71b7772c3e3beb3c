package authflow

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/calsync/internal/models"
)

// MessageKind is the closed set of messages an authorization window sends.
type MessageKind int

const (
	// MessageSuccess carries the authorization code and state, and
	// optionally an integration the backend already registered.
	MessageSuccess MessageKind = iota + 1
	// MessageError reports that the user or the provider refused.
	MessageError
	// MessageRefreshHint asks the host to reload its integration list.
	MessageRefreshHint
)

func (k MessageKind) String() string {
	switch k {
	case MessageSuccess:
		return "success"
	case MessageError:
		return "error"
	case MessageRefreshHint:
		return "complete"
	}
	return fmt.Sprintf("MessageKind(%d)", int(k))
}

// Message is one notification from the authorization window.
type Message struct {
	Kind        MessageKind
	Code        string
	State       string
	Integration *models.Integration
	Error       string
}

type wireMessage struct {
	Type        string              `json:"type"`
	Code        string              `json:"code,omitempty"`
	State       string              `json:"state,omitempty"`
	Integration *models.Integration `json:"integration,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// DecodeMessage parses a window message. Anything outside the known
// variants, or a variant missing its required fields, is rejected.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	switch w.Type {
	case "success":
		if w.State == "" || (w.Code == "" && w.Integration == nil) {
			return Message{}, fmt.Errorf("success message needs state and code or integration")
		}
		return Message{Kind: MessageSuccess, Code: w.Code, State: w.State, Integration: w.Integration}, nil
	case "error":
		return Message{Kind: MessageError, State: w.State, Error: w.Message}, nil
	case "complete":
		return Message{Kind: MessageRefreshHint, State: w.State}, nil
	}
	return Message{}, fmt.Errorf("unknown message type %q", w.Type)
}

// EncodeMessage is the inverse of DecodeMessage.
func EncodeMessage(m Message) ([]byte, error) {
	w := wireMessage{
		Type:        m.Kind.String(),
		Code:        m.Code,
		State:       m.State,
		Integration: m.Integration,
		Message:     m.Error,
	}
	return json.Marshal(w)
}
