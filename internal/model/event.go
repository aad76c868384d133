package model

// Stream frames. Each value marshals to exactly one JSON object carried on
// a single "data: <json>" line of the event stream. Every request ends with
// exactly one of DoneEvent or ErrorEvent.

// ConversationIDEvent binds subsequent requests to a conversation. It is
// the first frame of every stream.
type ConversationIDEvent struct {
	Event string `json:"event"`
	ID    string `json:"id"`
}

// StatusEvent is a human-readable progress update. Any number may be
// emitted, in no guaranteed order.
type StatusEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// TextEvent carries one model output fragment. Fragments concatenated in
// emission order form the full answer.
type TextEvent struct {
	Text string `json:"text"`
}

// DoneEvent is the terminal success marker.
type DoneEvent struct {
	Event string `json:"event"`
}

// ErrorEvent is the terminal failure marker, mutually exclusive with done.
// The message is always generic; internal detail stays in the logs.
type ErrorEvent struct {
	Error string `json:"error"`
}

// NewConversationIDEvent creates a conversation_id frame.
func NewConversationIDEvent(id string) ConversationIDEvent {
	return ConversationIDEvent{Event: "conversation_id", ID: id}
}

// NewStatusEvent creates a status frame.
func NewStatusEvent(message string) StatusEvent {
	return StatusEvent{Event: "status", Message: message}
}

// NewTextEvent creates a text frame.
func NewTextEvent(fragment string) TextEvent {
	return TextEvent{Text: fragment}
}

// NewDoneEvent creates the terminal done frame.
func NewDoneEvent() DoneEvent {
	return DoneEvent{Event: "done"}
}

// NewErrorEvent creates the terminal error frame.
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Error: message}
}
