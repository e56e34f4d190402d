// Package reftable implements the append-only reference tables used by AMF3
// to replace repeated strings, traits and objects with small indices.
//
// Lookups compare by content, not identity. A table optionally takes a
// fingerprint function; fingerprinted entries are bucketed by the BLAKE2b
// digest of their fingerprint so a lookup only compares entries of the same
// shape. The fingerprint is never trusted for equality: a bucket is always
// confirmed with the equality function, so any key derived from the
// fingerprint would do. The fixed-size digest keeps large byte arrays and
// vectors from being held a second time as map keys. Entries without a
// fingerprint are scanned.
package reftable

import (
	"slices"

	"golang.org/x/crypto/blake2b"

	"github.com/DMA-Software/dma-goamf/internal/u29"
)

// EqualFunc compares two table entries by content
type EqualFunc[T any] func(a, b T) bool

// FingerprintFunc returns a canonical byte form of v, or false when v has
// none and must be found by scanning
type FingerprintFunc[T any] func(v T) ([]byte, bool)

type digest = [blake2b.Size256]byte

// Table is an append-only cache mapping values to their insertion index.
// Index 0 is the first stored entry.
type Table[T any] struct {
	items       []T
	equal       EqualFunc[T]
	fingerprint FingerprintFunc[T]
	buckets     map[digest][]int
	unindexed   []int
	keys        []bucketKey
}

// bucketKey records where an entry was indexed when it was stored
type bucketKey struct {
	sum     digest
	indexed bool
}

// New creates an empty table. fingerprint may be nil.
func New[T any](equal EqualFunc[T], fingerprint FingerprintFunc[T]) *Table[T] {
	return &Table[T]{
		equal:       equal,
		fingerprint: fingerprint,
		buckets:     make(map[digest][]int),
	}
}

// Len returns the number of stored entries
func (t *Table[T]) Len() int {
	return len(t.items)
}

// Get returns the entry at index i
func (t *Table[T]) Get(i int) (T, bool) {
	if i < 0 || i >= len(t.items) {
		var zero T
		return zero, false
	}
	return t.items[i], true
}

// Lookup returns the index of the first entry equal to v. It never mutates
// the table.
func (t *Table[T]) Lookup(v T) (int, bool) {
	if sum, ok := t.digest(v); ok {
		for _, i := range t.buckets[sum] {
			if t.equal(t.items[i], v) {
				return i, true
			}
		}
		return 0, false
	}
	for _, i := range t.unindexed {
		if t.equal(t.items[i], v) {
			return i, true
		}
	}
	return 0, false
}

// Store appends v and returns its index. Store does not check for an
// existing equal entry.
func (t *Table[T]) Store(v T) int {
	i := len(t.items)
	t.items = append(t.items, v)
	sum, ok := t.digest(v)
	if ok {
		t.buckets[sum] = append(t.buckets[sum], i)
	} else {
		t.unindexed = append(t.unindexed, i)
	}
	t.keys = append(t.keys, bucketKey{sum: sum, indexed: ok})
	return i
}

// Set replaces the entry at index i, keeping its position. The entry is
// removed from the bucket it was indexed under, even if it changed since.
func (t *Table[T]) Set(i int, v T) bool {
	if i < 0 || i >= len(t.items) {
		return false
	}
	isI := func(j int) bool { return j == i }
	if old := t.keys[i]; old.indexed {
		t.buckets[old.sum] = slices.DeleteFunc(t.buckets[old.sum], isI)
		if len(t.buckets[old.sum]) == 0 {
			delete(t.buckets, old.sum)
		}
	} else {
		t.unindexed = slices.DeleteFunc(t.unindexed, isI)
	}

	t.items[i] = v
	sum, ok := t.digest(v)
	if ok {
		t.buckets[sum] = insertSorted(t.buckets[sum], i)
	} else {
		t.unindexed = insertSorted(t.unindexed, i)
	}
	t.keys[i] = bucketKey{sum: sum, indexed: ok}
	return true
}

// insertSorted keeps index lists ascending so Lookup returns the first match
func insertSorted(s []int, i int) []int {
	pos, _ := slices.BinarySearch(s, i)
	return slices.Insert(s, pos, i)
}

// ToLength probes for v and returns Reference(index) on a hit, otherwise
// Size(size). The table is not modified; callers Store once they commit to
// the literal form.
func (t *Table[T]) ToLength(v T, size uint32) u29.Length {
	if i, ok := t.Lookup(v); ok {
		return u29.Reference(uint32(i))
	}
	return u29.Size(size)
}

// Reset empties the table
func (t *Table[T]) Reset() {
	clear(t.items)
	t.items = t.items[:0]
	t.buckets = make(map[digest][]int)
	t.unindexed = t.unindexed[:0]
	t.keys = t.keys[:0]
}

func (t *Table[T]) digest(v T) (digest, bool) {
	if t.fingerprint == nil {
		return digest{}, false
	}
	fp, ok := t.fingerprint(v)
	if !ok {
		return digest{}, false
	}
	return blake2b.Sum256(fp), true
}
