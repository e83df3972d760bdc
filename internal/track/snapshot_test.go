package track

import "testing"

func TestSnapshotStore_FirstObservationEmitsEvent(t *testing.T) {
	store := NewSnapshotStore()

	event, changed := store.Upsert(Item{ID: "ord_1", Kind: KindOrder, Status: StatusCompleted})
	if !changed {
		t.Fatal("expected event for first observation")
	}
	if event.PreviousStatus != StatusUnknown || event.NewStatus != StatusCompleted {
		t.Fatalf("unexpected event: %#v", event)
	}
}

func TestSnapshotStore_NoEventWhenUnchanged(t *testing.T) {
	store := NewSnapshotStore()
	store.Upsert(Item{ID: "ord_1", Kind: KindOrder, Status: StatusPending})

	for i := 0; i < 5; i++ {
		if _, changed := store.Upsert(Item{ID: "ord_1", Kind: KindOrder, Status: StatusPending}); changed {
			t.Fatalf("cycle %d: unexpected event for unchanged status", i)
		}
	}
}

func TestSnapshotStore_StatusChangeEmitsEvent(t *testing.T) {
	store := NewSnapshotStore()
	store.Upsert(Item{ID: "ord_1", Kind: KindOrder, Status: StatusPending})

	event, changed := store.Upsert(Item{ID: "ord_1", Kind: KindOrder, Status: StatusCompleted})
	if !changed {
		t.Fatal("expected event for status change")
	}
	if event.PreviousStatus != StatusPending || event.NewStatus != StatusCompleted {
		t.Fatalf("unexpected event: %#v", event)
	}
}

func TestSnapshotStore_ErrorMessageRefinementCountsAsTransition(t *testing.T) {
	store := NewSnapshotStore()
	store.Upsert(Item{ID: "ord_1", Kind: KindOrder, Status: StatusFailed, ErrorMessage: "timeout"})

	event, changed := store.Upsert(Item{ID: "ord_1", Kind: KindOrder, Status: StatusFailed, ErrorMessage: "upstream rejected"})
	if !changed {
		t.Fatal("expected event for error message refinement")
	}
	if event.ErrorMessage != "upstream rejected" {
		t.Fatalf("unexpected event: %#v", event)
	}
}

func TestSnapshotStore_TerminalNeverRegresses(t *testing.T) {
	store := NewSnapshotStore()
	store.Upsert(Item{ID: "pay_1", Kind: KindPayment, Status: StatusCompleted})

	if _, changed := store.Upsert(Item{ID: "pay_1", Kind: KindPayment, Status: StatusPending}); changed {
		t.Fatal("terminal snapshot must not regress")
	}
	item, ok := store.Get("pay_1")
	if !ok || item.Status != StatusCompleted {
		t.Fatalf("snapshot mutated by regressing upsert: %#v", item)
	}
}

func TestSnapshotStore_NonTerminalIDs(t *testing.T) {
	store := NewSnapshotStore()
	store.Upsert(Item{ID: "a", Kind: KindOrder, Status: StatusPending})
	store.Upsert(Item{ID: "b", Kind: KindOrder, Status: StatusCompleted})
	store.Upsert(Item{ID: "c", Kind: KindOrder, Status: StatusProcessing})

	ids := store.NonTerminalIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 non-terminal ids, got %v", ids)
	}
	for _, id := range ids {
		if id == "b" {
			t.Fatal("terminal id listed as non-terminal")
		}
	}

	store.Remove("a")
	if ids := store.NonTerminalIDs(); len(ids) != 1 || ids[0] != "c" {
		t.Fatalf("expected only c after remove, got %v", ids)
	}
}

func TestSnapshotStore_LastObservedAtSet(t *testing.T) {
	store := NewSnapshotStore()
	store.Upsert(Item{ID: "a", Kind: KindOrder, Status: StatusPending})

	item, ok := store.Get("a")
	if !ok || item.LastObservedAt.IsZero() {
		t.Fatalf("expected observation timestamp, got %#v", item)
	}
}
