// Package chain implements the priority idle container described in spec
// §4.A: an ordered collection of idle entries keyed by the time they became
// idle, supporting add, pop-most-recent (LIFO on idle time, for warm
// connection reuse) and bulk removal of entries idle longer than a
// threshold (for eviction).
//
// The chain is generic over its payload so the pool manager can store
// *connpool.Proxy without an import cycle. It is deliberately not
// internally synchronized — spec §4.A calls for a single serializer of
// chain mutations, which is the pool manager's lock.
//
// Because every mutation happens under that single external lock, Add
// calls are strictly ordered by wall-clock time of insertion. A plain
// append-ordered slice therefore already satisfies "ordered by idle_since
// ascending" without needing a heap: the tail is always the most-recently
// idled entry (O(1) pop-most-recent) and the head is always the
// longest-idle entry (cheap prefix scan for eviction, which stops at the
// first non-stale entry rather than visiting the whole chain). This is the
// "stamped linked list" alternative spec §4.A explicitly sanctions as
// equivalent to a min-heap.
package chain

import "time"

type entry[T any] struct {
	value     T
	idleSince time.Time
}

// Chain is an ordered container of idle entries of type T.
type Chain[T any] struct {
	entries []entry[T]
}

// New creates an empty Chain with the given initial capacity hint.
func New[T any](capacity int) *Chain[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Chain[T]{entries: make([]entry[T], 0, capacity)}
}

// Len returns the number of entries currently in the chain.
func (c *Chain[T]) Len() int {
	return len(c.entries)
}

// Add inserts v, stamped with idleSince, at the tail of the chain.
func (c *Chain[T]) Add(v T, idleSince time.Time) {
	c.entries = append(c.entries, entry[T]{value: v, idleSince: idleSince})
}

// PopMostRecent removes and returns the youngest-idle entry (LIFO), or the
// zero value and false if the chain is empty.
func (c *Chain[T]) PopMostRecent() (T, bool) {
	n := len(c.entries)
	if n == 0 {
		var zero T
		return zero, false
	}
	e := c.entries[n-1]
	c.entries = c.entries[:n-1]
	return e.value, true
}

// RemoveIdleLongerThan removes and returns every entry whose idleSince
// precedes cutoff, in ascending idle-time order (oldest first). Because
// entries are inserted in non-decreasing idle-time order, this is a simple
// prefix scan: it stops as soon as it finds an entry at or after cutoff.
func (c *Chain[T]) RemoveIdleLongerThan(cutoff time.Time) []T {
	return c.RemovePrefix(c.CountIdleLongerThan(cutoff))
}

// CountIdleLongerThan returns how many entries at the head of the chain
// have an idleSince before cutoff, without removing anything. Used by
// callers (the pool manager's Shrink) that must cap removal by a floor
// before actually popping entries.
func (c *Chain[T]) CountIdleLongerThan(cutoff time.Time) int {
	i := 0
	for i < len(c.entries) && c.entries[i].idleSince.Before(cutoff) {
		i++
	}
	return i
}

// RemovePrefix removes and returns the n oldest-idle entries. n is clamped
// to [0, Len()].
func (c *Chain[T]) RemovePrefix(n int) []T {
	if n <= 0 {
		return nil
	}
	if n > len(c.entries) {
		n = len(c.entries)
	}
	removed := make([]T, n)
	for j := 0; j < n; j++ {
		removed[j] = c.entries[j].value
	}
	c.entries = c.entries[n:]
	return removed
}

// Oldest returns up to n of the longest-idle entries, oldest first, without
// removing them, or nil if n <= 0 or the chain is empty. Used by the
// maintenance scheduler's keepalive sampling.
func (c *Chain[T]) Oldest(n int) []T {
	if n <= 0 || len(c.entries) == 0 {
		return nil
	}
	if n > len(c.entries) {
		n = len(c.entries)
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = c.entries[i].value
	}
	return out
}

// Snapshot returns a copy of every entry currently in the chain, in
// ascending idle-time order, without removing them.
func (c *Chain[T]) Snapshot() []T {
	out := make([]T, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.value
	}
	return out
}

// Clear empties the chain and returns everything it held, in ascending
// idle-time order.
func (c *Chain[T]) Clear() []T {
	out := c.Snapshot()
	c.entries = nil
	return out
}
