package entity

import (
	"errors"
	"testing"
	"time"
)

func TestParseSender(t *testing.T) {
	tests := []struct {
		sender       string
		wantIdentity string
		wantOrigin   string
		wantErr      bool
	}{
		{"alice@example.com/home", "alice@example.com", "home", false},
		{"dan@example.com/laptop/work", "dan@example.com", "laptop/work", false},
		{"bob/", "bob", "", false},
		{"nobody", "", "", true},
		{"/home", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.sender, func(t *testing.T) {
			identity, origin, err := ParseSender(tt.sender)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedSender) {
					t.Fatalf("err = %v, want %v", err, ErrMalformedSender)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if identity != tt.wantIdentity || origin != tt.wantOrigin {
				t.Errorf("got %q / %q, want %q / %q", identity, origin, tt.wantIdentity, tt.wantOrigin)
			}
		})
	}
}

func TestSourceRecordIsEmpty(t *testing.T) {
	for body, want := range map[string]bool{
		"":        true,
		"   ":     true,
		"\n\t":    true,
		"hi":      false,
		"  hi  ":  false,
		"/me ...": false,
	} {
		if got := (SourceRecord{Body: body}).IsEmpty(); got != want {
			t.Errorf("IsEmpty(%q) = %v, want %v", body, got, want)
		}
	}
}

func TestConversationLifecycle(t *testing.T) {
	start := time.Unix(1000, 0).UTC()
	c := NewConversation(3, start)

	if c.MessageCount != 1 || c.State != ConversationActive || !c.TimeEnd.Equal(start) {
		t.Fatalf("new conversation = %+v", *c)
	}

	c.Extend(start.Add(10 * time.Minute))
	c.Extend(start.Add(5 * time.Minute))
	if c.MessageCount != 3 {
		t.Errorf("count = %d, want 3", c.MessageCount)
	}
	if want := start.Add(10 * time.Minute); !c.TimeEnd.Equal(want) {
		t.Errorf("end = %v, want %v", c.TimeEnd, want)
	}
	if c.Duration() != 10*time.Minute {
		t.Errorf("duration = %v, want 10m", c.Duration())
	}

	c.MergeInto(2)
	if !c.IsMerged() || c.MessageCount != 0 || c.MergedInto == nil || *c.MergedInto != 2 {
		t.Errorf("merged conversation = %+v", *c)
	}
}

func TestMessageAction(t *testing.T) {
	tests := []struct {
		body     string
		isAction bool
		text     string
	}{
		{"/me waves", true, "waves"},
		{"  /me shrugs", true, "shrugs"},
		{"/me", true, ""},
		{"/meow", false, ""},
		{"hello /me", false, ""},
	}

	for _, tt := range tests {
		m := &Message{Body: tt.body}
		if got := m.IsAction(); got != tt.isAction {
			t.Errorf("IsAction(%q) = %v, want %v", tt.body, got, tt.isAction)
		}
		if tt.isAction {
			if got := m.ActionText(); got != tt.text {
				t.Errorf("ActionText(%q) = %q, want %q", tt.body, got, tt.text)
			}
		}
	}
}

func TestParseConversationSort(t *testing.T) {
	for in, want := range map[string]ConversationSort{
		"":             SortByTimeEnd,
		"id":           SortByID,
		"messagecount": SortByMessageCount,
		"timestart":    SortByTimeStart,
		"timeend":      SortByTimeEnd,
		"body; DROP":   SortByTimeEnd,
	} {
		if got := ParseConversationSort(in); got != want {
			t.Errorf("ParseConversationSort(%q) = %q, want %q", in, got, want)
		}
	}
}
