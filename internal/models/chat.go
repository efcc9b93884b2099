package models

// Chat roles accepted by the completion endpoint.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of a coach conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
