package main

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/vadim/chatlogs/internal/domain/chatlog/policy"
	"github.com/vadim/chatlogs/internal/domain/chatlog/service"
)

var spaces = regexp.MustCompile(`[ \t]+`)

func TestWriteSyncSummary(t *testing.T) {
	out := &policy.SyncOutput{
		Ingest:               &service.IngestResult{Inserted: 1500, Skipped: 2, NewConversations: 3, NewParticipants: 1},
		Reconcile:            &service.ReconcileResult{Moved: map[int64]int64{12: 11, 9: 8}, Orphaned: 2, MessageCounts: 1},
		LatestConversationID: 14,
		LatestURL:            "https://chat.example.org/conversations/14",
	}

	var buf bytes.Buffer
	if err := writeSyncSummary(&buf, out); err != nil {
		t.Fatalf("writeSyncSummary failed: %v", err)
	}
	// Column widths are tabwriter's business; compare words only.
	got := spaces.ReplaceAllString(buf.String(), " ")

	for _, want := range []string{
		"== Inserted messages: 1,500\n",
		"== Skipped empty messages: 2\n",
		"== New conversations: 3\n",
		" Orphan: 9 => 8\n Orphan: 12 => 11\n",
		"== Orphaned conversations: 2\n",
		"== Updated message counts: 1\n",
		"== Latest conversation: 14 https://chat.example.org/conversations/14\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, buf.String())
		}
	}
}

func TestWriteSyncSummary_NoConversations(t *testing.T) {
	out := &policy.SyncOutput{
		Ingest:    &service.IngestResult{},
		Reconcile: &service.ReconcileResult{Moved: map[int64]int64{}},
	}

	var buf bytes.Buffer
	if err := writeSyncSummary(&buf, out); err != nil {
		t.Fatalf("writeSyncSummary failed: %v", err)
	}
	if strings.Contains(buf.String(), "Latest conversation") {
		t.Error("summary should not link a conversation when there is none")
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3", "17"})
	if err != nil || len(ids) != 2 || ids[0] != 3 || ids[1] != 17 {
		t.Fatalf("parseIDs = %v, %v", ids, err)
	}
	for _, bad := range []string{"0", "-2", "x"} {
		if _, err := parseIDs([]string{bad}); err == nil {
			t.Errorf("parseIDs(%q) should fail", bad)
		}
	}
}
