package chat

import "time"

// SessionRecord binds a chat space to the backend chat that carries its history.
type SessionRecord struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversationId"`
	BackendSessionID string    `json:"backendSessionId"`
	CreatedAt        time.Time `json:"createdAt"`
	LastUsedAt       time.Time `json:"lastUsedAt"`
}
