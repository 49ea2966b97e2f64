package journal_test

import (
	"context"
	"testing"
	"time"

	"periscope/internal/journal"
	"periscope/internal/testsupport"
)

func TestRecordAndRecent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	events := []journal.Event{
		{PeerID: "p-1", PeerName: "injector", Role: "producer", Kind: journal.EventRegistered},
		{PeerID: "p-1", Role: "producer", Kind: journal.EventClaimGranted},
		{PeerID: "c-1", PeerName: "overlay", Role: "consumer", Kind: journal.EventRegistered},
	}
	for _, event := range events {
		if err := store.Record(ctx, event); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d events, want 3", len(recent))
	}
	// Most recent first.
	if recent[0].PeerID != "c-1" || recent[0].Kind != journal.EventRegistered {
		t.Fatalf("newest event = %+v", recent[0])
	}
	if recent[2].PeerName != "injector" {
		t.Fatalf("oldest event = %+v", recent[2])
	}
	if recent[0].At.IsZero() {
		t.Fatal("event timestamp not stamped")
	}
}

func TestPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	old := journal.Event{PeerID: "p-old", Kind: journal.EventDisconnected, At: time.Now().Add(-48 * time.Hour)}
	fresh := journal.Event{PeerID: "p-new", Kind: journal.EventRegistered}
	if err := store.Record(ctx, old); err != nil {
		t.Fatalf("Record old: %v", err)
	}
	if err := store.Record(ctx, fresh); err != nil {
		t.Fatalf("Record fresh: %v", err)
	}

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("pruned %d, want 1", removed)
	}
	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].PeerID != "p-new" {
		t.Fatalf("remaining = %+v", recent)
	}
}
