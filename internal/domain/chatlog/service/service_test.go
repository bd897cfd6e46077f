package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
)

func browseStore(t *testing.T) *memStore {
	t.Helper()
	store := newMemStore()
	store.seedConversation(t, 1, "alice", 0, 20)
	store.seedConversation(t, 2, "bob", 5000, 5100)
	store.addMessage(2, "alice", 5050)
	store.convs[2].Extend(unix(5050))
	store.seedConversation(t, 3, "bob", 9000)
	store.convs[3].MergeInto(2)
	store.msgs = slices.DeleteFunc(store.msgs, func(m *entity.Message) bool { return m.ConversationID == 3 })
	store.seedConversation(t, 4, "carol", 20000)

	store.parts["alice"] = &entity.Participant{Identity: "alice", Nickname: "Alice"}
	store.parts["bob"] = &entity.Participant{Identity: "bob", Nickname: "Bob"}
	store.parts["carol"] = &entity.Participant{Identity: "carol", Nickname: "Carol"}
	return store
}

func conversationIDs(summaries []entity.ConversationSummary) []int64 {
	ids := make([]int64, len(summaries))
	for i, s := range summaries {
		ids[i] = s.ID
	}
	return ids
}

func TestListConversations(t *testing.T) {
	store := browseStore(t)
	svc := New(store)

	tests := []struct {
		name    string
		in      ListConversationsInput
		want    []int64
		hasMore bool
	}{
		{"defaults to latest first", ListConversationsInput{}, []int64{4, 2, 1}, false},
		{"ascending end time", ListConversationsInput{Asc: true}, []int64{1, 2, 4}, false},
		{"by message count", ListConversationsInput{Sort: entity.SortByMessageCount}, []int64{2, 1, 4}, false},
		{"paged", ListConversationsInput{Limit: 2}, []int64{4, 2}, true},
		{"second page", ListConversationsInput{Limit: 2, Offset: 2}, []int64{1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := svc.ListConversations(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("ListConversations failed: %v", err)
			}
			if got := conversationIDs(out.Conversations); !slices.Equal(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
			if out.Total != 3 {
				t.Errorf("total = %d, want 3", out.Total)
			}
			if out.HasMore != tt.hasMore {
				t.Errorf("has more = %v, want %v", out.HasMore, tt.hasMore)
			}
		})
	}
}

func TestListConversations_Participants(t *testing.T) {
	svc := New(browseStore(t))

	out, err := svc.ListConversations(context.Background(), ListConversationsInput{Sort: entity.SortByID, Asc: true})
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}

	want := map[int64][]string{
		1: {"Alice"},
		2: {"Alice", "Bob"},
		4: {"Carol"},
	}
	for _, c := range out.Conversations {
		if !slices.Equal(c.Participants, want[c.ID]) {
			t.Errorf("conversation %d participants = %v, want %v", c.ID, c.Participants, want[c.ID])
		}
	}
}

func TestGetConversation(t *testing.T) {
	svc := New(browseStore(t))

	page, err := svc.GetConversation(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	if page.Previous == nil || page.Previous.ID != 1 {
		t.Errorf("previous = %+v, want conversation 1", page.Previous)
	}
	if page.Next == nil || page.Next.ID != 4 {
		t.Errorf("next = %+v, want conversation 4 (3 was merged away)", page.Next)
	}

	if len(page.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(page.Messages))
	}
	for i := 1; i < len(page.Messages); i++ {
		if page.Messages[i].SentAt.Before(page.Messages[i-1].SentAt) {
			t.Errorf("messages out of order at %d", i)
		}
	}
	if page.Messages[1].Nickname != "Alice" {
		t.Errorf("middle message nickname = %q, want Alice", page.Messages[1].Nickname)
	}
}

func TestGetConversation_Edges(t *testing.T) {
	svc := New(browseStore(t))

	first, err := svc.GetConversation(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if first.Previous != nil {
		t.Errorf("oldest conversation has previous %d", first.Previous.ID)
	}

	last, err := svc.GetConversation(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if last.Next != nil {
		t.Errorf("newest conversation has next %d", last.Next.ID)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	svc := New(browseStore(t))

	if _, err := svc.GetConversation(context.Background(), 99); !errors.Is(err, entity.ErrConversationNotFound) {
		t.Errorf("GetConversation err = %v, want %v", err, entity.ErrConversationNotFound)
	}
	if _, err := svc.GetMessages(context.Background(), 99); !errors.Is(err, entity.ErrConversationNotFound) {
		t.Errorf("GetMessages err = %v, want %v", err, entity.ErrConversationNotFound)
	}
}

func TestGetMessages_MergedConversationIsEmpty(t *testing.T) {
	svc := New(browseStore(t))

	msgs, err := svc.GetMessages(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("merged conversation returned %d messages", len(msgs))
	}
}

func TestListParticipants(t *testing.T) {
	svc := New(browseStore(t))

	out, err := svc.ListParticipants(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("ListParticipants failed: %v", err)
	}
	if out.Total != 3 || !out.HasMore {
		t.Errorf("total=%d has_more=%v, want 3 and true", out.Total, out.HasMore)
	}
	if len(out.Participants) != 2 || out.Participants[0].Identity != "alice" {
		t.Errorf("participants = %+v", out.Participants)
	}
}

func TestLatestConversationID(t *testing.T) {
	id, err := New(newMemStore()).LatestConversationID(context.Background())
	if err != nil || id != 0 {
		t.Errorf("empty store: id=%d err=%v", id, err)
	}

	id, err = New(browseStore(t)).LatestConversationID(context.Background())
	if err != nil || id != 4 {
		t.Errorf("id=%d err=%v, want 4", id, err)
	}
}
