package store

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/pushtray/pushtray/internal/domain"
)

// Op names a store mutation.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
)

// Cause names why an item left the store.
type Cause string

const (
	CauseDismissed Cause = "dismissed"
	CauseExpired   Cause = "expired"
	CauseEvicted   Cause = "evicted"
	CauseCleared   Cause = "cleared"
)

// Event describes one mutation. Item is set for add and remove, nil for
// clear. Count is the number of items affected.
type Event struct {
	Op    Op           `json:"op"`
	Item  *domain.Item `json:"item,omitempty"`
	Cause Cause        `json:"cause,omitempty"`
	Count int          `json:"count"`
}

// Config controls store behavior.
//
// Capacity bounds the collection: 0 means unbounded; a positive value
// evicts the oldest item (with cause evicted) when an add would exceed it.
type Config struct {
	Capacity int
}

type entry struct {
	item  domain.Item
	timer *time.Timer
}

type subscription struct {
	id int
	fn func(Event)
}

// Store owns the ordered collection of active notifications and their
// expiry timers. Items are appended in insertion order, which is also
// iteration order. Every mutation is delivered synchronously to all
// subscribers before the mutating call returns; callbacks run on the
// mutating goroutine outside the store lock, so a subscriber may call
// back into the store, and events from concurrent mutations may
// interleave.
type Store struct {
	mu       sync.Mutex
	capacity int
	items    []*entry
	index    map[string]*entry
	subs     []subscription
	nextSub  int
	seq      int64
}

func New(cfg Config) *Store {
	return &Store{
		capacity: cfg.Capacity,
		index:    make(map[string]*entry),
	}
}

// Add validates the draft, applies defaults (kind info, duration 6000 ms),
// assigns CreatedAt and, when absent, a generated id, appends the item,
// and schedules a one-shot expiry timer when the effective duration is
// positive. Returns the (possibly generated) id.
//
// A draft whose id matches an active item is rejected with
// ErrDuplicateID; the prior entry must be removed first.
func (s *Store) Add(d domain.Draft) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if d.ID != "" {
		if _, exists := s.index[d.ID]; exists {
			s.mu.Unlock()
			return "", domain.ErrDuplicateID
		}
	}

	item := domain.Item{
		ID:        d.ID,
		Title:     d.Title,
		Message:   d.Message,
		Kind:      d.Kind,
		Duration:  domain.DefaultDurationMillis,
		Meta:      maps.Clone(d.Meta),
		CreatedAt: time.Now().UTC(),
	}
	if item.Kind == "" {
		item.Kind = domain.KindInfo
	}
	if d.Duration != nil {
		item.Duration = *d.Duration
	}
	if item.ID == "" {
		s.seq++
		item.ID = fmt.Sprintf("%d_%d", item.CreatedAt.UnixMilli(), s.seq)
	}

	e := &entry{item: item}
	s.items = append(s.items, e)
	s.index[item.ID] = e

	var evicted []domain.Item
	if s.capacity > 0 {
		for len(s.items) > s.capacity {
			old := s.items[0]
			s.items = s.items[1:]
			delete(s.index, old.item.ID)
			if old.timer != nil {
				old.timer.Stop()
				old.timer = nil
			}
			evicted = append(evicted, old.item)
		}
	}

	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	for _, old := range evicted {
		notify(subs, Event{Op: OpRemove, Item: &old, Cause: CauseEvicted, Count: 1})
	}
	notify(subs, Event{Op: OpAdd, Item: &item, Count: 1})

	if !item.Sticky() {
		s.armExpiry(item.ID, e, item.TTL())
	}
	return item.ID, nil
}

// armExpiry attaches the one-shot expiry timer to e. Arming happens only
// after the add event has been delivered, so an expiry (however short)
// cannot surface before its own add. The entry may already be gone by
// now (removed, evicted, or cleared by a subscriber or a concurrent
// caller); then no timer is armed.
func (s *Store) armExpiry(id string, e *entry, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.index[id]; !ok || cur != e {
		return
	}
	e.timer = time.AfterFunc(ttl, func() {
		s.remove(id, e, CauseExpired)
	})
}

// Remove dismisses the item with the given id. Unknown ids are a no-op;
// calling Remove twice is safe. The item's pending expiry timer, if any,
// is cancelled before removal so it cannot fire against a reused id.
func (s *Store) Remove(id string) bool {
	return s.remove(id, nil, CauseDismissed)
}

// remove deletes the entry registered under id. A non-nil match pins the
// exact entry: an expiry timer that fired while its item was being
// dismissed must not take out a later item reusing the same id.
func (s *Store) remove(id string, match *entry, cause Cause) bool {
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok || (match != nil && e != match) {
		s.mu.Unlock()
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	delete(s.index, id)
	for i, cand := range s.items {
		if cand == e {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	item := e.item
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	notify(subs, Event{Op: OpRemove, Item: &item, Cause: cause, Count: 1})
	return true
}

// Clear removes every item and cancels every pending timer. One clear
// event carrying the removed count is delivered, even when the store was
// already empty.
func (s *Store) Clear() {
	s.mu.Lock()
	n := len(s.items)
	for _, e := range s.items {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	s.items = nil
	s.index = make(map[string]*entry)
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	notify(subs, Event{Op: OpClear, Cause: CauseCleared, Count: n})
}

// Snapshot returns the active items in insertion order. The slice is a
// copy; items (including their Meta maps) are treated as read-only.
func (s *Store) Snapshot() []domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Item, len(s.items))
	for i, e := range s.items {
		out[i] = e.item
	}
	return out
}

// Len returns the number of active items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Capacity returns the configured bound, 0 when unbounded.
func (s *Store) Capacity() int {
	return s.capacity
}

// Subscribe registers fn for every subsequent mutation and returns its
// unsubscribe function. Subscribers are invoked in registration order.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) snapshotSubsLocked() []subscription {
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

func notify(subs []subscription, ev Event) {
	for _, sub := range subs {
		sub.fn(ev)
	}
}
