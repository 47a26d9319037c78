package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownKind is returned for a message type outside the protocol
var ErrUnknownKind = errors.New("unknown message kind")

type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode renders msg as {"type": ..., "payload": ...}
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnknownKind)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return json.Marshal(envelope{Type: msg.Kind(), Payload: payload})
}

// Decode parses an envelope produced by Encode
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case KindDetection:
		return decodeAs[Detection](env)
	case KindSelection:
		return decodeAs[Selection](env)
	case KindGenericPageActivated:
		return decodeAs[GenericPageActivated](env)
	case KindGetState:
		return decodeAs[GetState](env)
	case KindSaveSettings:
		return decodeAs[SaveSettings](env)
	case KindReset:
		return decodeAs[Reset](env)
	case KindFetchPage:
		return decodeAs[FetchPage](env)
	case KindDecontextualize:
		return decodeAs[Decontextualize](env)
	case KindVerifyClaim:
		return decodeAs[VerifyClaim](env)
	case KindAck:
		return decodeAs[Ack](env)
	case KindState:
		return decodeAs[State](env)
	case KindPageContent:
		return decodeAs[PageContent](env)
	case KindDecontextualized:
		return decodeAs[Decontextualized](env)
	case KindVerificationResult:
		return decodeAs[VerificationResult](env)
	case KindError:
		return decodeAs[ErrorReply](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

func decodeAs[T Message](env envelope) (Message, error) {
	var msg T
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return msg, nil
	}
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}
