package models

// ChatMessage is the (role, content) projection of a message that is sent to
// the completion gateway.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History projects persisted messages to the gateway payload, keeping order.
func History(messages []Message) []ChatMessage {
	history := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		history = append(history, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return history
}
