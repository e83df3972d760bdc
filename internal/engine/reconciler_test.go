package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/upvotelabs/upvote-client/internal/track"
)

func TestReconciler_AppliesResultsInCompletionOrder(t *testing.T) {
	store := track.NewSnapshotStore()
	handler := &recordingHandler{}
	reconciler := NewReconciler(track.KindOrder, store, handler, nil)

	events := reconciler.Apply(context.Background(), []FetchResult{
		{ID: "b", Result: track.StatusResult{Status: track.StatusProcessing}},
		{ID: "a", Result: track.StatusResult{Status: track.StatusPending}},
	})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ItemID != "b" || events[1].ItemID != "a" {
		t.Fatalf("events out of completion order: %#v", events)
	}
	if len(handler.batches) != 1 || len(handler.batches[0]) != 2 {
		t.Fatalf("handler should receive one batch of 2, got %#v", handler.batches)
	}
}

func TestReconciler_ErrorResultKeepsPriorSnapshot(t *testing.T) {
	store := track.NewSnapshotStore()
	store.Upsert(track.Item{ID: "a", Kind: track.KindOrder, Status: track.StatusPending})
	handler := &recordingHandler{}
	reconciler := NewReconciler(track.KindOrder, store, handler, nil)

	events := reconciler.Apply(context.Background(), []FetchResult{
		{ID: "a", Err: errors.New("connection refused")},
	})

	if len(events) != 0 {
		t.Fatalf("error result produced events: %#v", events)
	}
	if len(handler.batches) != 0 {
		t.Fatal("handler invoked for a batch with no transitions")
	}
	item, _ := store.Get("a")
	if item.Status != track.StatusPending {
		t.Fatalf("snapshot mutated by failed fetch: %#v", item)
	}
}

func TestReconciler_FirstFetchTerminalEmitsOneEvent(t *testing.T) {
	store := track.NewSnapshotStore()
	handler := &recordingHandler{}
	reconciler := NewReconciler(track.KindPayment, store, handler, nil)

	events := reconciler.Apply(context.Background(), []FetchResult{
		{ID: "pay_1", Result: track.StatusResult{Status: track.StatusExpired}},
	})

	if len(events) != 1 {
		t.Fatalf("expected one event for first terminal observation, got %d", len(events))
	}
	if events[0].PreviousStatus != track.StatusUnknown || events[0].NewStatus != track.StatusExpired {
		t.Fatalf("unexpected event: %#v", events[0])
	}

	// A repeat of the same observation stays silent.
	events = reconciler.Apply(context.Background(), []FetchResult{
		{ID: "pay_1", Result: track.StatusResult{Status: track.StatusExpired}},
	})
	if len(events) != 0 {
		t.Fatalf("duplicate terminal observation emitted events: %#v", events)
	}
}
