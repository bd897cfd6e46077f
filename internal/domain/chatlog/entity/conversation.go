package entity

import "time"

// ConversationState tells whether a conversation still owns its messages
type ConversationState string

const (
	ConversationActive ConversationState = "active"
	ConversationMerged ConversationState = "merged"
)

// Conversation is a contiguous run of messages bounded by inactivity gaps
type Conversation struct {
	ID           int64             `json:"id"`
	TimeStart    time.Time         `json:"time_start"`
	TimeEnd      time.Time         `json:"time_end"`
	MessageCount int               `json:"message_count"`
	State        ConversationState `json:"state"`
	MergedInto   *int64            `json:"merged_into,omitempty"`
}

// NewConversation starts a conversation holding a single message sent at t
func NewConversation(id int64, t time.Time) *Conversation {
	return &Conversation{
		ID:           id,
		TimeStart:    t,
		TimeEnd:      t,
		MessageCount: 1,
		State:        ConversationActive,
	}
}

// Extend records one more message sent at t
func (c *Conversation) Extend(t time.Time) {
	if t.After(c.TimeEnd) {
		c.TimeEnd = t
	}
	c.MessageCount++
}

// MergeInto turns the conversation into a tombstone pointing at target
func (c *Conversation) MergeInto(target int64) {
	c.MessageCount = 0
	c.State = ConversationMerged
	c.MergedInto = &target
}

// IsMerged reports whether the conversation was merged away
func (c *Conversation) IsMerged() bool {
	return c.State == ConversationMerged
}

// Duration returns the time between the first and last message
func (c *Conversation) Duration() time.Duration {
	return c.TimeEnd.Sub(c.TimeStart)
}

// ConversationTally pairs a conversation with the number of messages that
// actually reference it
type ConversationTally struct {
	Conversation
	ActualCount int
	LastSentAt  time.Time // zero when no message references the conversation
}

// ConversationSummary is a conversation row enriched for listing
type ConversationSummary struct {
	Conversation
	Participants []string `json:"participants"`
}

// ConversationSort names the columns a listing can be ordered by
type ConversationSort string

const (
	SortByID           ConversationSort = "id"
	SortByMessageCount ConversationSort = "messagecount"
	SortByTimeStart    ConversationSort = "timestart"
	SortByTimeEnd      ConversationSort = "timeend"
)

// ParseConversationSort returns the sort column for s, defaulting to time end
func ParseConversationSort(s string) ConversationSort {
	switch ConversationSort(s) {
	case SortByID, SortByMessageCount, SortByTimeStart, SortByTimeEnd:
		return ConversationSort(s)
	default:
		return SortByTimeEnd
	}
}

// ConversationFilter for listing conversations
type ConversationFilter struct {
	Sort   ConversationSort
	Asc    bool
	Limit  int
	Offset int
}
