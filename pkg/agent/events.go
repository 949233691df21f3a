// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT

package agent

// AgentEventType identifies the kind of agent lifecycle event
type AgentEventType int

const (
	// EventSubmitted fires after a user turn was handed to the coordinator
	EventSubmitted AgentEventType = iota
	// EventReplyDelivered fires when an immediate reply is sent to a channel
	EventReplyDelivered
	// EventReflectionDelivered fires when a finished reflection is sent to a channel
	EventReflectionDelivered
	// EventError fires when a turn could not be submitted
	EventError
)

func (t AgentEventType) String() string {
	switch t {
	case EventSubmitted:
		return "submitted"
	case EventReplyDelivered:
		return "reply"
	case EventReflectionDelivered:
		return "reflection"
	case EventError:
		return "error"
	}
	return "unknown"
}

// AgentEvent represents a lifecycle event emitted by the agent loop
type AgentEvent struct {
	Type   AgentEventType
	UserID string
	Data   any
}

// DeliveredData carries the message ID and text sent to the user
type DeliveredData struct {
	MessageID string
	Content   string
}

// ErrorData carries error information from the agent loop
type ErrorData struct {
	Err error
}

// AgentEventListener receives lifecycle events from the agent loop.
// Implementations must be safe for concurrent use, as events fire from
// both the consume goroutine and the poll goroutine.
type AgentEventListener interface {
	OnEvent(event AgentEvent)
}

// ListenerFunc adapts a function to AgentEventListener.
type ListenerFunc func(AgentEvent)

func (f ListenerFunc) OnEvent(e AgentEvent) { f(e) }
