package bus

// InboundMessage is one user turn arriving from a channel. BaseAnswer is an
// optional factual answer the agent should revise instead of writing its
// own.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	BaseAnswer string            `json:"base_answer,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Kinds of outbound message.
const (
	KindReply      = "reply"
	KindReflection = "reflection"
	KindError      = "error"
)

type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	Kind      string `json:"kind"`
	MessageID string `json:"message_id,omitempty"`
	Content   string `json:"content"`
}
