package store_test

import (
	"strings"
	"testing"
	"time"

	"github.com/pushtray/pushtray/internal/domain"
	"github.com/pushtray/pushtray/internal/store"
)

func draft(msg string) domain.Draft {
	return domain.Draft{Message: msg}
}

func millis(n int64) *int64 {
	return &n
}

// collect subscribes a buffered channel recorder to the store and
// returns the channel plus the unsubscribe function.
func collect(s *store.Store) (chan store.Event, func()) {
	events := make(chan store.Event, 32)
	unsub := s.Subscribe(func(ev store.Event) {
		events <- ev
	})
	return events, unsub
}

func waitEvent(t *testing.T, events chan store.Event) store.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for store event")
		return store.Event{}
	}
}

func TestStore_AddAppliesDefaults(t *testing.T) {
	s := store.New(store.Config{})

	id, err := s.Add(draft("hello"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}
	if !strings.Contains(id, "_") {
		t.Fatalf("generated id %q missing sequence separator", id)
	}

	items := s.Snapshot()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.Kind != domain.KindInfo {
		t.Fatalf("expected default kind info, got %q", it.Kind)
	}
	if it.Duration != domain.DefaultDurationMillis {
		t.Fatalf("expected default duration %d, got %d", domain.DefaultDurationMillis, it.Duration)
	}
	if it.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set by the store")
	}
}

func TestStore_AddPreservesCallerFields(t *testing.T) {
	s := store.New(store.Config{})

	id, err := s.Add(domain.Draft{
		ID:       "trade-42",
		Title:    "Order filled",
		Message:  "AAPL buy order filled",
		Kind:     domain.KindSuccess,
		Duration: millis(0),
		Meta:     map[string]any{"link": "/trades/42"},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id != "trade-42" {
		t.Fatalf("expected caller id preserved, got %q", id)
	}

	it := s.Snapshot()[0]
	if it.Title != "Order filled" || it.Kind != domain.KindSuccess {
		t.Fatalf("caller fields not preserved: %+v", it)
	}
	if !it.Sticky() {
		t.Fatal("explicit zero duration should make the item sticky")
	}
	if it.Link() != "/trades/42" {
		t.Fatalf("meta link not preserved, got %q", it.Link())
	}
}

func TestStore_GeneratedIDsUnique(t *testing.T) {
	s := store.New(store.Config{})

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := s.Add(draft("burst"))
		if err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("duplicate generated id %q", id)
		}
		seen[id] = true
	}
}

func TestStore_AddRejectsInvalidDraft(t *testing.T) {
	s := store.New(store.Config{})

	t.Run("empty message", func(t *testing.T) {
		if _, err := s.Add(draft("")); err != domain.ErrEmptyMessage {
			t.Fatalf("expected ErrEmptyMessage, got %v", err)
		}
		if s.Len() != 0 {
			t.Fatal("invalid draft must never enter the store")
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		d := draft("first")
		d.ID = "dup"
		if _, err := s.Add(d); err != nil {
			t.Fatalf("first Add: %v", err)
		}
		d.Message = "second"
		if _, err := s.Add(d); err != domain.ErrDuplicateID {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}
		if s.Len() != 1 {
			t.Fatalf("expected 1 item after rejected duplicate, got %d", s.Len())
		}
	})

	t.Run("id reusable after remove", func(t *testing.T) {
		if !s.Remove("dup") {
			t.Fatal("expected Remove to report true")
		}
		d := draft("third")
		d.ID = "dup"
		if _, err := s.Add(d); err != nil {
			t.Fatalf("re-add after remove: %v", err)
		}
	})
}

func TestStore_InsertionOrder(t *testing.T) {
	s := store.New(store.Config{})

	for _, msg := range []string{"a", "b", "c"} {
		d := draft(msg)
		d.Duration = millis(0)
		if _, err := s.Add(d); err != nil {
			t.Fatalf("Add %q: %v", msg, err)
		}
	}

	items := s.Snapshot()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, want := range []string{"a", "b", "c"} {
		if items[i].Message != want {
			t.Fatalf("position %d: got %q, want %q", i, items[i].Message, want)
		}
	}
}

// TestStore_Expiry verifies the item is still present halfway through its
// duration and removed (with cause expired) once the timer fires.
func TestStore_Expiry(t *testing.T) {
	s := store.New(store.Config{})
	events, unsub := collect(s)
	defer unsub()

	d := draft("ephemeral")
	d.Duration = millis(100)
	if _, err := s.Add(d); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ev := waitEvent(t, events); ev.Op != store.OpAdd {
		t.Fatalf("expected add event first, got %+v", ev)
	}

	time.Sleep(50 * time.Millisecond)
	if s.Len() != 1 {
		t.Fatal("item should still be present at half its duration")
	}

	ev := waitEvent(t, events)
	if ev.Op != store.OpRemove || ev.Cause != store.CauseExpired {
		t.Fatalf("expected expired remove event, got %+v", ev)
	}
	if s.Len() != 0 {
		t.Fatal("item should be absent after expiry")
	}
}

// TestStore_FarFutureDurationPersists verifies a very large duration
// arms a far-future timer instead of overflowing into an immediate
// expiry.
func TestStore_FarFutureDurationPersists(t *testing.T) {
	s := store.New(store.Config{})
	events, unsub := collect(s)
	defer unsub()

	d := draft("long haul")
	d.Duration = millis(10_000_000_000_000)
	if _, err := s.Add(d); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ev := waitEvent(t, events); ev.Op != store.OpAdd {
		t.Fatalf("expected add event, got %+v", ev)
	}

	time.Sleep(50 * time.Millisecond)

	if s.Len() != 1 {
		t.Fatal("item with a far-future duration must still be present")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}

	it := s.Snapshot()[0]
	if it.Duration != 10_000_000_000_000 {
		t.Fatalf("stored duration = %d, want the caller's value", it.Duration)
	}
	if it.Sticky() {
		t.Fatal("a large positive duration is not sticky")
	}
	if it.TTL() <= 0 {
		t.Fatalf("TTL() = %v, must stay positive", it.TTL())
	}
}

// TestStore_ExpiryNeverPrecedesAdd verifies a minimal-duration item's add
// event always reaches subscribers before its expired remove event.
func TestStore_ExpiryNeverPrecedesAdd(t *testing.T) {
	s := store.New(store.Config{})
	events, unsub := collect(s)
	defer unsub()

	const n = 10
	for i := 0; i < n; i++ {
		d := draft("blink")
		d.Duration = millis(1)
		if _, err := s.Add(d); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}

	firstOp := make(map[string]store.Op)
	removes := 0
	for removes < n {
		ev := waitEvent(t, events)
		if ev.Item == nil {
			t.Fatalf("event without item: %+v", ev)
		}
		if _, seen := firstOp[ev.Item.ID]; !seen {
			firstOp[ev.Item.ID] = ev.Op
		}
		if ev.Op == store.OpRemove {
			if ev.Cause != store.CauseExpired {
				t.Fatalf("expected expired removes only, got %+v", ev)
			}
			removes++
		}
	}

	for id, op := range firstOp {
		if op != store.OpAdd {
			t.Fatalf("item %s: first observed event was %q, want %q", id, op, store.OpAdd)
		}
	}
}

// TestStore_RemoveIdempotent verifies double-remove and unknown-id remove
// are silent no-ops.
func TestStore_RemoveIdempotent(t *testing.T) {
	s := store.New(store.Config{})

	d := draft("x")
	d.ID = "once"
	d.Duration = millis(0)
	if _, err := s.Add(d); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !s.Remove("once") {
		t.Fatal("first remove should report true")
	}
	if s.Remove("once") {
		t.Fatal("second remove should be a no-op")
	}
	if s.Remove("never-existed") {
		t.Fatal("unknown id remove should be a no-op")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d items", s.Len())
	}
}

// TestStore_RemoveCancelsTimer verifies a manual dismiss stops the expiry
// timer, so no second remove event fires when the duration elapses.
func TestStore_RemoveCancelsTimer(t *testing.T) {
	s := store.New(store.Config{})
	events, unsub := collect(s)
	defer unsub()

	d := draft("short-lived")
	d.ID = "r"
	d.Duration = millis(50)
	if _, err := s.Add(d); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Remove("r")

	time.Sleep(120 * time.Millisecond)

	var removes []store.Event
	for {
		select {
		case ev := <-events:
			if ev.Op == store.OpRemove {
				removes = append(removes, ev)
			}
			continue
		default:
		}
		break
	}
	if len(removes) != 1 {
		t.Fatalf("expected exactly 1 remove event, got %d", len(removes))
	}
	if removes[0].Cause != store.CauseDismissed {
		t.Fatalf("expected cause dismissed, got %q", removes[0].Cause)
	}
}

// TestStore_ClearCancelsTimers verifies clear stops every pending expiry
// timer: no remove event may surface after the clear.
func TestStore_ClearCancelsTimers(t *testing.T) {
	s := store.New(store.Config{})
	events, unsub := collect(s)
	defer unsub()

	d := draft("doomed")
	d.Duration = millis(50)
	if _, err := s.Add(d); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Clear()

	time.Sleep(120 * time.Millisecond)

	sawClear := false
	for {
		select {
		case ev := <-events:
			switch ev.Op {
			case store.OpClear:
				sawClear = true
				if ev.Count != 1 {
					t.Fatalf("clear event count = %d, want 1", ev.Count)
				}
			case store.OpRemove:
				t.Fatalf("spurious remove event after clear: %+v", ev)
			}
			continue
		default:
		}
		break
	}
	if !sawClear {
		t.Fatal("expected a clear event")
	}
	if s.Len() != 0 {
		t.Fatal("expected empty store after clear")
	}
}

// TestStore_SynchronousNotify verifies subscribers run before the
// mutating call returns and observe a collection consistent with the
// mutation.
func TestStore_SynchronousNotify(t *testing.T) {
	s := store.New(store.Config{})

	var seen []store.Event
	var lenAtAdd int
	unsub := s.Subscribe(func(ev store.Event) {
		seen = append(seen, ev)
		if ev.Op == store.OpAdd {
			lenAtAdd = s.Len()
		}
	})
	defer unsub()

	d := draft("sync")
	d.Duration = millis(0)
	if _, err := s.Add(d); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if len(seen) != 1 {
		t.Fatalf("expected the add event to be delivered before Add returned, got %d events", len(seen))
	}
	if lenAtAdd != 1 {
		t.Fatalf("subscriber observed Len()=%d during add, want 1", lenAtAdd)
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s := store.New(store.Config{})

	var count int
	unsub := s.Subscribe(func(store.Event) { count++ })

	d := draft("one")
	d.Duration = millis(0)
	if _, err := s.Add(d); err != nil {
		t.Fatalf("Add: %v", err)
	}
	unsub()

	d2 := draft("two")
	d2.Duration = millis(0)
	if _, err := s.Add(d2); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if count != 1 {
		t.Fatalf("expected 1 event after unsubscribe, got %d", count)
	}
}

// TestStore_CapacityEvictsOldest verifies the bounded store drops the
// oldest item, with cause evicted, when an add exceeds capacity.
func TestStore_CapacityEvictsOldest(t *testing.T) {
	s := store.New(store.Config{Capacity: 2})
	events, unsub := collect(s)
	defer unsub()

	for _, id := range []string{"a", "b", "c"} {
		d := draft(id)
		d.ID = id
		d.Duration = millis(0)
		if _, err := s.Add(d); err != nil {
			t.Fatalf("Add %q: %v", id, err)
		}
	}

	items := s.Snapshot()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "b" || items[1].ID != "c" {
		t.Fatalf("expected [b c] after eviction, got [%s %s]", items[0].ID, items[1].ID)
	}

	var evict *store.Event
	for {
		select {
		case ev := <-events:
			if ev.Op == store.OpRemove {
				evict = &ev
			}
			continue
		default:
		}
		break
	}
	if evict == nil {
		t.Fatal("expected an eviction event")
	}
	if evict.Cause != store.CauseEvicted || evict.Item == nil || evict.Item.ID != "a" {
		t.Fatalf("unexpected eviction event: %+v", evict)
	}
}
