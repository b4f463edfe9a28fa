package cache

import "time"

// Entry is the atomic unit of cached state: a value plus its freshness window.
// Entries are immutable once constructed; stores always build a new Entry on
// write instead of mutating one in place, and hand out copies on read.
type Entry struct {
	Value      interface{} `json:"value"`
	CreatedAt  time.Time   `json:"created_at"`
	FreshUntil time.Time   `json:"fresh_until"` // zero value means the entry never expires
}

// NewEntry builds an Entry created at now. A ttl of zero or less means the
// entry never expires.
func NewEntry(value interface{}, ttl time.Duration, now time.Time) *Entry {
	e := &Entry{Value: value, CreatedAt: now}
	if ttl > 0 {
		e.FreshUntil = now.Add(ttl)
	}
	return e
}

// IsFresh reports whether the entry is still fresh at the supplied time.
// Expiry is inclusive: an entry stops being fresh at exactly FreshUntil.
func (e *Entry) IsFresh(now time.Time) bool {
	return e.FreshUntil.IsZero() || now.Before(e.FreshUntil)
}

// Age returns how long ago the entry was created.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Clone returns a copy of the entry so callers cannot mutate stored state.
func (e *Entry) Clone() *Entry {
	clone := *e
	return &clone
}
