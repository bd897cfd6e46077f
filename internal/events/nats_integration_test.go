//go:build integration

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	natsURL := skipWithoutNATS(t)

	client, err := NewClient(context.Background(), natsURL, "chatlogs.test", slog.Default())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	err = client.Subscribe(func(subject string, data []byte) {
		var msg map[string]int
		if err := json.Unmarshal(data, &msg); err == nil && msg["inserted"] == 3 {
			received <- subject
		}
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	if err := client.Publish("ingested", map[string]int{"inserted": 3}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case subject := <-received:
		if subject != "chatlogs.test.ingested" {
			t.Errorf("unexpected subject %s", subject)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
