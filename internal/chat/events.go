package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Client -> server.
const (
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventSendMessage       = "sendMessage"
	EventMarkAsRead        = "markAsRead"
	EventTyping            = "typing"
)

// Server -> client.
const (
	EventReceiveMessage     = "receiveMessage"
	EventMessagesRead       = "messagesRead"
	EventUserTyping         = "userTyping"
	EventJoinedConversation = "joinedConversation"
	EventError              = "error"
)

var errInvalidPayload = errors.New("invalid payload")

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// encodeEvent renders one outbound frame.
func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}

// parseConversationRef accepts either "id" or {"conversationId": "id"}.
func parseConversationRef(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errInvalidPayload
	}

	var id string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", errInvalidPayload
		}
	} else {
		var ref conversationRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			return "", errInvalidPayload
		}
		id = ref.ConversationID
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return "", errInvalidPayload
	}
	return id, nil
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errInvalidPayload
	}
	return nil
}
