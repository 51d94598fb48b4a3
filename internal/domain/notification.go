package domain

import (
	"math"
	"time"
)

// Kind is the visual category of a notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindInfo, KindSuccess, KindWarning, KindError:
		return true
	}
	return false
}

// Defaults and limits applied when a draft omits optional fields.
const (
	DefaultDurationMillis int64 = 6000
	MaxMessageLen               = 4096
)

// MetaLinkKey is the only contractually recognized meta key: a URL the
// presentation layer may offer as a "view details" action.
const MetaLinkKey = "link"

// Draft is a notification as submitted by a caller, before the store
// assigns identity and timing. Duration is a pointer because absent and
// zero mean different things: nil gets the default, a value <= 0 makes
// the item sticky (no auto-expiry).
type Draft struct {
	ID       string         `json:"id,omitempty"`
	Title    string         `json:"title,omitempty"`
	Message  string         `json:"message"`
	Kind     Kind           `json:"kind,omitempty"`
	Duration *int64         `json:"duration,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func (d *Draft) Validate() error {
	if d.Message == "" {
		return ErrEmptyMessage
	}
	if len(d.Message) > MaxMessageLen {
		return ErrMessageTooLong
	}
	if d.Kind != "" && !d.Kind.IsValid() {
		return ErrInvalidKind
	}
	return nil
}

// Item is a stored notification. Items are immutable once created; they
// leave the store only via remove, expiry, or clear.
type Item struct {
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message"`
	Kind      Kind           `json:"kind"`
	Duration  int64          `json:"duration"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Sticky reports whether the item persists until manually dismissed.
func (i Item) Sticky() bool {
	return i.Duration <= 0
}

// TTL returns the display lifetime as a time.Duration. Only meaningful
// when the item is not sticky. Durations too large to express in
// nanoseconds saturate instead of overflowing into a negative value.
func (i Item) TTL() time.Duration {
	if i.Duration > math.MaxInt64/int64(time.Millisecond) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(i.Duration) * time.Millisecond
}

// Link returns the meta "link" value when present and a string.
func (i Item) Link() string {
	if s, ok := i.Meta[MetaLinkKey].(string); ok {
		return s
	}
	return ""
}
