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

package flatmap

// Entry is a view into a single slot of a Map, obtained from a single probe
// by Map.Entry. It lets a caller implement insert-or-update without probing
// twice: an occupied entry references the key's existing slot, while a
// vacant entry remembers the slot the probe found for a future insertion.
// A vacant entry may hold no slot at all, meaning the table was full along
// the key's entire probe sequence and must grow before the insertion can be
// committed; Set performs that growth.
//
// An Entry is invalidated by any mutation of the map other than through the
// entry itself.
type Entry[K comparable, V any] struct {
	m   *Map[K, V]
	key K
	// The key's hash, computed once by Map.Entry.
	hash uint64
	// The slot found by the probe; group is nil when the table must grow
	// before this entry can be inserted.
	group    *Group[K, V]
	index    uintptr
	occupied bool
}

// Entry probes for key once and returns a handle to the result. It never
// allocates and cannot fail; a fallible insertion through the handle
// reports its error from Set or OrInsert.
func (m *Map[K, V]) Entry(key K) Entry[K, V] {
	h := m.hash(m.seed, key)
	e := Entry[K, V]{m: m, key: key, hash: h}
	if loc, occupied, ok := m.findSlot(key, h, true); ok {
		e.group = m.groups.At(loc.group)
		e.index = loc.index
		e.occupied = occupied
	}
	return e
}

// Key returns the key this entry was obtained for.
func (e *Entry[K, V]) Key() K {
	return e.key
}

// Occupied reports whether the entry references an existing element.
func (e *Entry[K, V]) Occupied() bool {
	return e.occupied
}

// Get returns the entry's current value. It returns ok=false for a vacant
// entry.
func (e *Entry[K, V]) Get() (value V, ok bool) {
	if !e.occupied {
		return value, false
	}
	return e.group.slots[e.index].value, true
}

// Set stores value for the entry's key. An occupied entry is overwritten in
// place and a vacant entry holding a slot is committed, both without
// re-probing; a slotless vacant entry first grows the table, which is the
// only path that can fail. After a successful Set the entry is occupied.
func (e *Entry[K, V]) Set(value V) error {
	if e.group != nil {
		s := &e.group.slots[e.index]
		if e.occupied {
			s.value = value
			return nil
		}
		s.key = e.key
		s.value = value
		e.group.ctrls.set(e.index, ctrl(h2(e.hash)))
		e.m.used++
		e.occupied = true
		e.m.checkInvariants()
		return nil
	}

	// The probe found no usable slot: grow and insert. The insertion
	// re-probes the rebuilt table, which also refreshes this handle.
	if _, _, err := e.m.Put(e.key, value); err != nil {
		return err
	}
	if loc, occupied, ok := e.m.findSlot(e.key, e.hash, true); ok {
		e.group = e.m.groups.At(loc.group)
		e.index = loc.index
		e.occupied = occupied
	}
	return nil
}

// Update applies f to the entry's value in place. It is a noop for a vacant
// entry.
func (e *Entry[K, V]) Update(f func(value *V)) {
	if e.occupied {
		f(&e.group.slots[e.index].value)
	}
}

// OrInsert returns a pointer to the entry's value, first inserting value if
// the entry is vacant. The pointer is invalidated by any subsequent mutation
// of the map.
func (e *Entry[K, V]) OrInsert(value V) (*V, error) {
	if !e.occupied {
		if err := e.Set(value); err != nil {
			return nil, err
		}
	}
	return &e.group.slots[e.index].value, nil
}
