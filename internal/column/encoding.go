// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package column

import "sync"

// NullCategory is the encoded value of a null categorical/join-key
// entry; it is always -1 and never occupies a slot in an Encoding.
const NullCategory int32 = -1

// Encoding is an append-only bijection between interned strings and
// non-negative int32 codes, monotone in insertion order. It is shared
// and guarded by a read-write lock: the fast path (a string already
// known) only takes the read lock.
//
// There are two independent Encodings per project, per spec.md §3: one
// for categorical values, one for join-key values. Keeping them
// separate means a join key and a category that happen to be the same
// string never collide in code space.
type Encoding struct {
	mu      sync.RWMutex
	strings []string
	codes   map[string]int32
}

// NewEncoding returns an empty Encoding.
func NewEncoding() *Encoding {
	return &Encoding{codes: make(map[string]int32)}
}

// Lookup returns the existing code for s, or appends s and returns the
// new code. The empty string is a normal value like any other; callers
// that want to represent "no value" use NullCategory directly and never
// call Lookup for it.
func (e *Encoding) Lookup(s string) int32 {
	e.mu.RLock()
	if code, ok := e.codes[s]; ok {
		e.mu.RUnlock()
		return code
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	// Re-check: another goroutine may have inserted s while we waited
	// for the write lock.
	if code, ok := e.codes[s]; ok {
		return code
	}
	code := int32(len(e.strings))
	e.strings = append(e.strings, s)
	e.codes[s] = code
	return code
}

// At returns the string for a previously assigned code. It panics on
// an out-of-range code (a programming error, not a user-facing one),
// matching the teacher's debug_assert-style convention for internal
// invariants described in spec.md §9.
func (e *Encoding) At(code int32) string {
	if code == NullCategory {
		return ""
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if code < 0 || int(code) >= len(e.strings) {
		panic("column: encoding code out of range")
	}
	return e.strings[code]
}

// Len returns the number of distinct strings encoded so far.
func (e *Encoding) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.strings)
}

// Snapshot returns an immutable copy of the strings in insertion
// order, for serialization or for holding a consistent view across a
// transform call while other goroutines keep appending.
func (e *Encoding) Snapshot() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.strings))
	copy(out, e.strings)
	return out
}
