package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is a single chat line stored in a conversation
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	FromIdentity   string    `json:"from_identity"`
	FromOrigin     string    `json:"from_origin"`
	FromNick       string    `json:"from_nick"`
	SentAt         time.Time `json:"sent_at"`
	Body           string    `json:"body"`
}

// MessageView is a message joined with the sender's participant nickname
type MessageView struct {
	Message
	Nickname string `json:"nickname"`
}

// actionPrefix marks IRC-style action lines
const actionPrefix = "/me"

// IsAction reports whether the message is an action ("/me waves")
func (m Message) IsAction() bool {
	body := strings.TrimSpace(m.Body)
	return strings.TrimSpace(firstN(body, len(actionPrefix)+1)) == actionPrefix
}

// ActionText returns the body without the action prefix
func (m Message) ActionText() string {
	body := strings.TrimSpace(m.Body)
	if len(body) <= len(actionPrefix)+1 {
		return ""
	}
	return body[len(actionPrefix)+1:]
}

func firstN(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
