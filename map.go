// Copyright 2026 The Flatmap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package flatmap is a Go implementation of Swiss Tables as described in
// https://abseil.io/about/design/swisstables. See also:
// https://faultlore.com/blah/hashbrown-tldr/.
//
// # Swiss Tables
//
// Swiss tables are hash tables that map keys to values, similar to Go's
// builtin map type. They use open-addressing rather than chaining to handle
// collisions. The key design choice is a metadata array storing 1 "control
// byte" per slot: 7 bits are taken from hash(key) and the remaining bit
// indicates whether the slot is empty, full, or a deletion tombstone. The
// control bytes allow a probe to check an entire group of 16 slots at a time
// using parallel byte comparisons. This implementation uses SWAR (SIMD
// Within A Register) to compare a group as two 8-byte words.
//
// Unlike Abseil's layout, groups here are physical: the table is an array of
// Group values, each holding 16 control bytes followed by 16 slots. Groups
// are aligned and never overlap, so a group scan never crosses into another
// group's storage. Probing starts at group hash>>7 mod the group count and
// walks whole groups linearly, wrapping around, and terminates after every
// group has been visited once. An operation is therefore bounded even on a
// completely full table.
//
// Deletion uses tombstones (ctrlDeleted) with an optimization to mark the
// vacated slot as empty when the slot's own group still contains an empty
// slot: any probe that passed through this group already had a stopping
// point, so no probe chain can be cut short. A fully occupied group must
// keep a tombstone instead.
//
// # Allocation
//
// All allocation is explicit and fallible. The table grows only by building
// a complete replacement buffer; if the allocation fails the error is
// returned and the map is left exactly as it was. Operations that cannot
// allocate (Get, Delete, Retain, Clear, iteration) cannot fail.
//
// A Map is NOT goroutine-safe. Concurrent use must be guarded entirely by
// the caller, excluding readers while a writer is active; the map performs
// no internal locking.
package flatmap

import (
	"errors"
	"fmt"
	"hash/maphash"
	"math/bits"
	"strings"
	"unsafe"
)

const (
	debug = false

	groupSize = 16

	ctrlEmpty   ctrl = 0b10000000
	ctrlDeleted ctrl = 0b11111110

	bitsetLSB = 0x0101010101010101
	bitsetMSB = 0x8080808080808080
)

// ErrAllocation is returned when the buffer backing a Map cannot be
// allocated. It is the only failure a Map reports: every error returned from
// this package wraps ErrAllocation (or, for CloneFunc, the element clone
// error).
var ErrAllocation = errors.New("flatmap: allocation failed")

// Slot holds a key and value.
type Slot[K comparable, V any] struct {
	key   K
	value V
}

// Group is the unit of probing: 16 control bytes followed by the 16 slots
// they describe. The control byte is the single source of truth for whether
// a slot holds a live entry; the slot storage of a non-full slot is zeroed
// only so that it does not retain references.
type Group[K comparable, V any] struct {
	ctrls ctrlGroup
	slots [groupSize]Slot[K, V]
}

// Map is an unordered map from keys to values with Put, Get, Delete, Entry
// and All operations, modeled on Google's Swiss Tables design as implemented
// in Abseil's flat_hash_map. By default a Map[K,V] hashes with
// maphash.Comparable and a per-map seed; a different hash function can be
// specified using the WithHash option.
//
// A Map grows by whole-buffer replacement and never in place. Growth happens
// only when an insert probes the entire table without finding a reusable
// slot, so the table runs at up to 100% load; Reserve ahead of bulk insertion
// to avoid repeated rebuilds.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	// The hash function applied to keys of type K with the map's seed.
	hash func(seed maphash.Seed, key K) uint64
	seed maphash.Seed
	// The allocator for the group buffer.
	allocator Allocator[K, V]
	// The group buffer; holds groupMask+1 groups when capacity > 0.
	groups unsafeSlice[Group[K, V]]
	// groupMask is the group count minus 1. Group counts are powers of two,
	// so a probe computes i%count as i&groupMask. Only valid when
	// capacity > 0.
	groupMask uintptr
	// The total number of slots, always a multiple of groupSize; zero for a
	// map that has never allocated (or has been cleared).
	capacity uintptr
	// The number of filled slots (i.e. the number of elements in the map).
	used int
}

// New constructs an empty Map. No memory is allocated; the first insertion
// allocates. The zero value for a Map is not usable.
func New[K comparable, V any](opts ...Option[K, V]) *Map[K, V] {
	m := &Map[K, V]{
		hash:      maphash.Comparable[K],
		seed:      maphash.MakeSeed(),
		allocator: defaultAllocator[K, V]{},
	}
	for _, op := range opts {
		op.apply(m)
	}
	return m
}

// NewWithCapacity constructs a Map pre-sized to hold at least capacity
// elements without growing. It fails only if the allocation fails.
func NewWithCapacity[K comparable, V any](capacity int, opts ...Option[K, V]) (*Map[K, V], error) {
	m := New[K, V](opts...)
	if capacity > 0 {
		if err := m.Reserve(capacity); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// IsEmpty reports whether the map contains no entries.
func (m *Map[K, V]) IsEmpty() bool {
	return m.used == 0
}

// Capacity returns the number of slots in the map's buffer. It is always a
// multiple of 16, and zero for a map that holds no buffer.
func (m *Map[K, V]) Capacity() int {
	return int(m.capacity)
}

// Get retrieves the value for the specified key, returning ok=false if the
// key is not present. Absence is a normal outcome, not a failure.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	loc, occupied, ok := m.findSlot(key, m.hash(m.seed, key), false)
	if !ok || !occupied {
		return value, false
	}
	return m.groups.At(loc.group).slots[loc.index].value, true
}

// GetPtr returns a pointer to the value for the specified key, or nil if the
// key is not present. The pointer is invalidated by any subsequent mutation
// of the map.
func (m *Map[K, V]) GetPtr(key K) *V {
	loc, occupied, ok := m.findSlot(key, m.hash(m.seed, key), false)
	if !ok || !occupied {
		return nil
	}
	return &m.groups.At(loc.group).slots[loc.index].value
}

// Contains reports whether the map contains the specified key.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Put inserts an entry into the map, overwriting the value if an entry with
// the same key already exists. It returns the previous value when an entry
/// was overwritten. The stored key is not rewritten on overwrite: it compared
// equal to the argument key, and equal keys are interchangeable.
//
// Put fails only when the table is full and the replacement buffer cannot be
// allocated; the map is unmodified in that case.
func (m *Map[K, V]) Put(key K, value V) (prev V, replaced bool, err error) {
	h := m.hash(m.seed, key)
	for {
		loc, occupied, ok := m.findSlot(key, h, true)
		if !ok {
			// No match and no reusable slot along the entire probe
			// sequence. Grow and retry: Reserve(1) leaves capacity strictly
			// greater than used, so the retried (bounded) probe finds an
			// empty slot. The loop cannot spin.
			if err := m.Reserve(1); err != nil {
				return prev, false, err
			}
			continue
		}
		g := m.groups.At(loc.group)
		s := &g.slots[loc.index]
		if occupied {
			prev, s.value = s.value, value
			return prev, true, nil
		}
		if debug {
			fmt.Printf("put(%v): group=%d index=%d h2=%02x\n", key, loc.group, loc.index, h2(h))
		}
		s.key = key
		s.value = value
		g.ctrls.set(loc.index, ctrl(h2(h)))
		m.used++
		m.checkInvariants()
		return prev, false, nil
	}
}

// Delete removes the entry for the specified key, returning its value. It is
// a noop to delete a non-existent key. Delete never allocates and cannot
// fail.
func (m *Map[K, V]) Delete(key K) (value V, ok bool) {
	loc, occupied, found := m.findSlot(key, m.hash(m.seed, key), false)
	if !found || !occupied {
		return value, false
	}
	g := m.groups.At(loc.group)

	// Choose the replacement control byte before mutating the group. If the
	// group still holds an empty slot, any probe for another key had a
	// stopping point in this group already, so the vacated slot may become
	// empty as well. A fully occupied group must keep a tombstone: marking
	// it empty would terminate probes for keys stored beyond this group.
	replacement := ctrlDeleted
	if !g.ctrls.matchEmpty().empty() {
		replacement = ctrlEmpty
	}

	s := &g.slots[loc.index]
	value = s.value
	*s = Slot[K, V]{} // release references held by the slot
	g.ctrls.set(loc.index, replacement)
	m.used--
	if debug {
		fmt.Printf("delete(%v): group=%d index=%d ctrl=%02x used=%d\n",
			key, loc.group, loc.index, replacement, m.used)
	}
	m.checkInvariants()
	return value, true
}

// Retain removes every entry for which keep returns false. The predicate may
// mutate the value through the pointer it is given. Retain never allocates
// and cannot fail.
//
// The empty-versus-tombstone decision is made once per group, from the
// group's control bytes as they were before this pass touched the group. A
// Retain that removes several entries from one group can therefore leave
// tombstones where equivalent sequential Delete calls would have produced
// empties; re-evaluating after each removal would cost a rescan per slot for
// no semantic gain.
func (m *Map[K, V]) Retain(keep func(key K, value *V) bool) {
	if m.capacity == 0 {
		return
	}
	for gi := uintptr(0); gi <= m.groupMask; gi++ {
		g := m.groups.At(gi)
		replacement := ctrlDeleted
		if !g.ctrls.matchEmpty().empty() {
			replacement = ctrlEmpty
		}

		var removeMask uint32
		removed := 0
		for match := g.ctrls.matchFull(); !match.empty(); {
			i := match.next()
			match = match.clear(i)
			s := &g.slots[i]
			if !keep(s.key, &s.value) {
				*s = Slot[K, V]{}
				removeMask |= 1 << i
				removed++
			}
		}
		if removed == 0 {
			continue
		}
		for i := uintptr(0); i < groupSize; i++ {
			if removeMask&(1<<i) != 0 {
				g.ctrls.set(i, replacement)
			}
		}
		m.used -= removed
	}
	m.checkInvariants()
}

// Clear removes all entries from the map and releases its buffer, returning
// the map to the unallocated empty state. Clear never allocates and cannot
// fail.
func (m *Map[K, V]) Clear() {
	m.Retain(func(K, *V) bool { return false })
	m.release()
}

// Close releases the map's buffer back to its allocator. It is unnecessary
// to close a map using the default allocator. Close is idempotent, and the
// map remains usable afterwards (the next insertion allocates).
func (m *Map[K, V]) Close() {
	m.Clear()
}

// Reserve ensures the map can hold additional more entries beyond its
// current length without further allocation. If the current capacity already
// covers them Reserve is a noop; otherwise the buffer is replaced by one of
// the next power-of-two capacity. On allocation failure the map is left
// exactly as it was.
func (m *Map[K, V]) Reserve(additional int) error {
	if additional <= 0 {
		return nil
	}
	need := uintptr(m.used + additional)
	if need <= m.capacity {
		return nil
	}
	newCapacity := nextPowerOfTwo(need)
	if newCapacity < groupSize {
		newCapacity = groupSize
	}
	return m.resize(newCapacity)
}

// resize replaces the buffer with a freshly allocated one of newCapacity
// slots (a power of two, >= groupSize) and re-places every live entry into
// it. The old buffer is released only after every entry has been moved, and
// no field of the map is modified unless the allocation succeeds.
func (m *Map[K, V]) resize(newCapacity uintptr) error {
	newGroupCount := newCapacity / groupSize
	newGroups, err := m.alloc(int(newGroupCount))
	if err != nil {
		return err
	}
	newMask := newGroupCount - 1
	if debug {
		fmt.Printf("resize: capacity=%d->%d used=%d\n", m.capacity, newCapacity, m.used)
	}

	if m.capacity > 0 {
		// Move each live entry. A fresh buffer holds no tombstones, so the
		// first empty-or-deleted slot found by the probe is empty, and the
		// buffer is strictly larger than used so the probe always finds
		// one. Entries are moved by plain assignment; the old buffer is
		// released wholesale without visiting the moved-out slots.
		for gi := uintptr(0); gi <= m.groupMask; gi++ {
			g := m.groups.At(gi)
			for match := g.ctrls.matchFull(); !match.empty(); {
				i := match.next()
				match = match.clear(i)
				s := &g.slots[i]
				h := m.hash(m.seed, s.key)
				uncheckedPut(newGroups, newMask, h, s)
			}
		}
		m.allocator.Free(m.groups.Slice(0, m.groupMask+1))
	}

	m.groups = newGroups
	m.groupMask = newMask
	m.capacity = newCapacity
	m.checkInvariants()
	return nil
}

// uncheckedPut moves slot s into a buffer known to contain an empty slot on
// s's probe sequence. Used only during resize, where that precondition holds
// by construction.
func uncheckedPut[K comparable, V any](groups unsafeSlice[Group[K, V]], mask uintptr, h uint64, s *Slot[K, V]) {
	for seq := makeProbeSeq(h1(h), mask); ; seq = seq.next() {
		g := groups.At(seq.offset)
		if match := g.ctrls.matchEmptyOrDeleted(); !match.empty() {
			i := match.next()
			g.slots[i] = *s
			g.ctrls.set(i, ctrl(h2(h)))
			return
		}
	}
}

// alloc obtains a zeroed buffer of n groups from the allocator and marks
// every slot empty.
func (m *Map[K, V]) alloc(n int) (unsafeSlice[Group[K, V]], error) {
	groups, err := m.allocator.Alloc(n)
	if err != nil {
		return unsafeSlice[Group[K, V]]{}, fmt.Errorf("%w (%d groups): %v", ErrAllocation, n, err)
	}
	if len(groups) < n {
		return unsafeSlice[Group[K, V]]{}, fmt.Errorf("%w (%d groups): allocator returned %d", ErrAllocation, n, len(groups))
	}
	for i := range groups {
		groups[i].ctrls = emptyCtrlGroup
	}
	return makeUnsafeSlice(groups), nil
}

// release frees the buffer and resets the map to the well-formed empty
// state: no buffer, zero capacity, zero length.
func (m *Map[K, V]) release() {
	if m.capacity > 0 {
		m.allocator.Free(m.groups.Slice(0, m.groupMask+1))
	}
	m.groups = unsafeSlice[Group[K, V]]{}
	m.groupMask = 0
	m.capacity = 0
	m.used = 0
}

// All calls yield sequentially for each key and value present in the map,
// sweeping groups in ascending order and occupied slots in ascending
// in-group order. If yield returns false, iteration stops. No ordering
// relationship to insertion order or hash order is guaranteed, and order is
// not preserved across growth.
//
// All is usable with range-over-func:
//
//	for k, v := range m.All {
//		fmt.Println(k, v)
//	}
//
// Mutating the map during an iteration is undefined; an iteration must run
// to completion or be abandoned before any Put, Delete, Reserve or Clear.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	if m.capacity == 0 {
		return
	}
	for gi := uintptr(0); gi <= m.groupMask; gi++ {
		g := m.groups.At(gi)
		for match := g.ctrls.matchFull(); !match.empty(); {
			i := match.next()
			match = match.clear(i)
			s := &g.slots[i]
			if !yield(s.key, s.value) {
				return
			}
		}
	}
}

// String implements fmt.Stringer. Entries appear in iteration order.
func (m *Map[K, V]) String() string {
	var buf strings.Builder
	buf.WriteString("flatmap[")
	first := true
	m.All(func(k K, v V) bool {
		if !first {
			buf.WriteString(" ")
		}
		first = false
		fmt.Fprintf(&buf, "%v:%v", k, v)
		return true
	})
	buf.WriteString("]")
	return buf.String()
}

// location identifies a slot by group index and in-group offset.
type location struct {
	group uintptr
	index uintptr
}

// findSlot locates the slot for key with hash h.
//
// At each probed group, candidates whose control byte matches h2(h) are
// compared for true key equality (the 7-bit tag has a 1/128 false positive
// rate). If no candidate matches, the first unused slot in the group (empty
// only, or empty-or-deleted when tombstone reuse is requested) is reported
// as the insertion point and the search terminates: an unused slot in a
// group proves no key hashing to this group was ever stored beyond it.
//
// Returns ok=false when the key is absent and no probed group offered a
// usable slot, which on a wrapped probe means the whole table is full.
func (m *Map[K, V]) findSlot(key K, h uint64, tombstone bool) (loc location, occupied, ok bool) {
	if m.capacity == 0 {
		return loc, false, false
	}
	for seq := makeProbeSeq(h1(h), m.groupMask); !seq.done(); seq = seq.next() {
		g := m.groups.At(seq.offset)

		for match := g.ctrls.matchH2(h2(h)); !match.empty(); {
			i := match.next()
			if key == g.slots[i].key {
				return location{seq.offset, i}, true, true
			}
			match = match.clear(i)
		}

		var unused groupMask
		if tombstone {
			unused = g.ctrls.matchEmptyOrDeleted()
		} else {
			unused = g.ctrls.matchEmpty()
		}
		if !unused.empty() {
			return location{seq.offset, unused.next()}, false, true
		}
	}
	return loc, false, false
}

// Each slot in the hash table has a control byte which can have one of three
// states: empty, deleted, and full. They have the following bit patterns:
//
//	   empty: 1 0 0 0 0 0 0 0
//	 deleted: 1 1 1 1 1 1 1 0
//	    full: 0 h h h h h h h  // h represents the H2 hash bits
type ctrl uint8

// ctrlGroup is the 16 control bytes of one group, scanned as two 8-byte
// words. The word loads assume a little endian CPU architecture.
type ctrlGroup [groupSize]ctrl

var emptyCtrlGroup = func() ctrlGroup {
	var g ctrlGroup
	for i := range g {
		g[i] = ctrlEmpty
	}
	return g
}()

func (g *ctrlGroup) words() (lo, hi uint64) {
	lo = *(*uint64)(unsafe.Pointer(g))
	hi = *(*uint64)(unsafe.Add(unsafe.Pointer(g), 8))
	return lo, hi
}

func (g *ctrlGroup) set(i uintptr, c ctrl) {
	g[i] = c
}

func (g *ctrlGroup) at(i uintptr) ctrl {
	return g[i]
}

// matchH2 returns a mask of the slots whose control byte equals h.
func (g *ctrlGroup) matchH2(h uintptr) groupMask {
	lo, hi := g.words()
	return groupMask{matchH2Word(lo, h), matchH2Word(hi, h)}
}

// matchH2Word performs matchH2 on 8 control bytes at once.
//
// NB: This generic matching routine produces false positive matches when h
// is 2^N and the control bytes have a sequence of 2^N followed by 2^N+1. For
// example: if ctrls==0x0302 and h=02, we'll compute v as 0x0100. When we
// subtract off 0x0101 the first 2 bytes we'll become 0xffff and both be
// considered matches of h. The false positive matches are not a problem,
// just a rare inefficiency. Note that they only occur if there is a real
// match and never occur on ctrlEmpty or ctrlDeleted. The subsequent key
// comparisons ensure that there is no correctness issue.
func matchH2Word(v uint64, h uintptr) bitset {
	x := v ^ (bitsetLSB * uint64(h))
	return bitset(((x - bitsetLSB) &^ x) & bitsetMSB)
}

// matchEmpty returns a mask of the slots whose control byte indicates an
// empty slot.
func (g *ctrlGroup) matchEmpty() groupMask {
	lo, hi := g.words()
	return groupMask{matchEmptyWord(lo), matchEmptyWord(hi)}
}

func matchEmptyWord(v uint64) bitset {
	// An empty slot is   1000 0000.
	// A deleted slot is  1111 1110.
	// A slot is empty iff bit 7 is set and bit 1 is not.
	return bitset((v &^ (v << 6)) & bitsetMSB)
}

// matchEmptyOrDeleted returns a mask of the slots whose control byte
// indicates an empty or deleted slot.
func (g *ctrlGroup) matchEmptyOrDeleted() groupMask {
	lo, hi := g.words()
	return groupMask{matchEmptyOrDeletedWord(lo), matchEmptyOrDeletedWord(hi)}
}

func matchEmptyOrDeletedWord(v uint64) bitset {
	// An empty slot is  1000 0000.
	// A deleted slot is 1111 1110.
	// A slot is empty or deleted iff bit 7 is set.
	return bitset(v & bitsetMSB)
}

// matchFull returns a mask of the slots holding live entries, i.e. those
// whose control byte has the high bit clear.
func (g *ctrlGroup) matchFull() groupMask {
	lo, hi := g.words()
	return groupMask{bitset(^lo & bitsetMSB), bitset(^hi & bitsetMSB)}
}

// bitset marks a subset of 8 slots: each byte is 0x80 if the slot is in the
// set and 0x00 otherwise, which is the natural output shape of the SWAR
// match routines.
type bitset uint64

// next returns the relative index of the first slot in the set. Callers
// must ensure the bitset is non-zero.
func (b bitset) next() uintptr {
	return uintptr(bits.TrailingZeros64(uint64(b))) >> 3
}

// clear removes slot i from the set.
func (b bitset) clear(i uintptr) bitset {
	return b &^ (bitset(0x80) << (i << 3))
}

// groupMask marks a subset of the 16 slots of a group, as the bitsets of the
// group's two control words.
type groupMask struct {
	lo, hi bitset
}

func (m groupMask) empty() bool {
	return m.lo|m.hi == 0
}

// next returns the index of the first slot in the mask. Callers must ensure
// the mask is non-empty.
func (m groupMask) next() uintptr {
	if m.lo != 0 {
		return m.lo.next()
	}
	return 8 + m.hi.next()
}

// clear removes slot i from the mask.
func (m groupMask) clear(i uintptr) groupMask {
	if i < 8 {
		m.lo = m.lo.clear(i)
	} else {
		m.hi = m.hi.clear(i - 8)
	}
	return m
}

func (m groupMask) String() string {
	var buf strings.Builder
	buf.Grow(groupSize)
	for i := uintptr(0); i < groupSize; i++ {
		var set bool
		if i < 8 {
			set = m.lo&(bitset(0x80)<<(i<<3)) != 0
		} else {
			set = m.hi&(bitset(0x80)<<((i-8)<<3)) != 0
		}
		if set {
			buf.WriteString("1")
		} else {
			buf.WriteString("0")
		}
	}
	return buf.String()
}

// probeSeq maintains the state for a probe sequence that visits groups
// linearly starting at h1 mod the group count, wrapping around, and
// finishing after every group has been visited exactly once (group counts
// are powers of two, so the modulus is a mask). A probe is therefore bounded
// by the group count even on a table with no unused slot.
type probeSeq struct {
	mask   uintptr
	offset uintptr
	index  uintptr
}

func makeProbeSeq(hash, mask uintptr) probeSeq {
	return probeSeq{
		mask:   mask,
		offset: hash & mask,
		index:  0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset = (s.offset + 1) & s.mask
	return s
}

func (s probeSeq) done() bool {
	return s.index > s.mask
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d offset=%d index=%d", s.mask, s.offset, s.index)
}

// Extracts the H1 portion of a hash: the 57 upper bits, which select the
// group where probing starts.
func h1(h uint64) uintptr {
	return uintptr(h >> 7)
}

// Extracts the H2 portion of a hash: the 7 bits not used for h1. These are
// used as an occupied control byte.
func h2(h uint64) uintptr {
	return uintptr(h & 0x7f)
}

func nextPowerOfTwo(n uintptr) uintptr {
	if n <= 1 {
		return 1
	}
	return uintptr(1) << bits.Len(uint(n-1))
}

// unsafeSlice provides semi-ergonomic limited slice-like functionality
// without bounds checking for fixed sized slices.
type unsafeSlice[T any] struct {
	ptr unsafe.Pointer
}

func makeUnsafeSlice[T any](s []T) unsafeSlice[T] {
	return unsafeSlice[T]{ptr: unsafe.Pointer(unsafe.SliceData(s))}
}

// At returns a pointer to the element at index i.
func (s unsafeSlice[T]) At(i uintptr) *T {
	var t T
	return (*T)(unsafe.Add(s.ptr, unsafe.Sizeof(t)*i))
}

// Slice returns a Go slice akin to slice[start:end] for a Go builtin slice.
func (s unsafeSlice[T]) Slice(start, end uintptr) []T {
	return unsafe.Slice((*T)(s.ptr), end)[start:end]
}

func (m *Map[K, V]) checkInvariants() {
	if !invariants {
		return
	}
	if m.capacity == 0 {
		if m.used != 0 {
			panic(fmt.Sprintf("invariant failed: unallocated map has used=%d", m.used))
		}
		return
	}
	if m.capacity%groupSize != 0 {
		panic(fmt.Sprintf("invariant failed: capacity %d is not a multiple of %d", m.capacity, groupSize))
	}

	// Every full slot must be reachable through findSlot and carry the h2
	// tag of its stored key; the used count must agree with the control
	// bytes.
	used := 0
	for gi := uintptr(0); gi <= m.groupMask; gi++ {
		g := m.groups.At(gi)
		for i := uintptr(0); i < groupSize; i++ {
			c := g.ctrls.at(i)
			if c == ctrlEmpty || c == ctrlDeleted {
				continue
			}
			used++
			s := &g.slots[i]
			h := m.hash(m.seed, s.key)
			if c != ctrl(h2(h)) {
				panic(fmt.Sprintf("invariant failed: slot(%d/%d): ctrl %02x != h2 %02x\n%s",
					gi, i, c, h2(h), m.debugString()))
			}
			if loc, occupied, ok := m.findSlot(s.key, h, false); !ok || !occupied {
				panic(fmt.Sprintf("invariant failed: slot(%d/%d): %v not found\n%s",
					gi, i, s.key, m.debugString()))
			} else if got := m.groups.At(loc.group).slots[loc.index].key; got != s.key {
				panic(fmt.Sprintf("invariant failed: slot(%d/%d): lookup of %v found %v\n%s",
					gi, i, s.key, got, m.debugString()))
			}
		}
	}
	if used != m.used {
		panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
			used, m.used, m.debugString()))
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d\n", m.capacity, m.used)
	for gi := uintptr(0); m.capacity > 0 && gi <= m.groupMask; gi++ {
		g := m.groups.At(gi)
		fmt.Fprintf(&buf, "group %d:\n", gi)
		for i := uintptr(0); i < groupSize; i++ {
			switch c := g.ctrls.at(i); c {
			case ctrlEmpty:
				fmt.Fprintf(&buf, "  %4d: empty\n", i)
			case ctrlDeleted:
				fmt.Fprintf(&buf, "  %4d: deleted\n", i)
			default:
				s := &g.slots[i]
				fmt.Fprintf(&buf, "  %4d: %v [ctrl=%02x]\n", i, s.key, c)
			}
		}
	}
	return buf.String()
}
