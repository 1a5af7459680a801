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

// KeyValue contains a Key and Value.
type KeyValue[K comparable, V any] struct {
	Key   K
	Value V
}

// FromKeyValues builds a Map from the supplied pairs, pre-sizing it for
// len(kvs) elements. Later pairs overwrite earlier ones with an equal key.
// The first allocation failure aborts construction, releases anything
// already built, and is returned.
func FromKeyValues[K comparable, V any](kvs []KeyValue[K, V], opts ...Option[K, V]) (*Map[K, V], error) {
	m, err := NewWithCapacity[K, V](len(kvs), opts...)
	if err != nil {
		return nil, err
	}
	for _, kv := range kvs {
		if _, _, err := m.Put(kv.Key, kv.Value); err != nil {
			m.Close()
			return nil, err
		}
	}
	return m, nil
}

// Clone returns a new map holding a copy of every entry, sharing no storage
// with the original. Keys and values are copied by assignment; use CloneFunc
// when elements need a deep copy. Clone fails only on allocation failure.
func (m *Map[K, V]) Clone() (*Map[K, V], error) {
	return m.CloneFunc(nil, nil)
}

// CloneFunc returns a new map holding a copy of every entry, cloning each
// key with cloneKey and each value with cloneValue. A nil clone function
// means copy by assignment. An error from either function, or an allocation
// failure, aborts the copy: everything allocated for the clone is released
// and the error is returned. The receiver is never modified.
func (m *Map[K, V]) CloneFunc(cloneKey func(K) (K, error), cloneValue func(V) (V, error)) (*Map[K, V], error) {
	c := &Map[K, V]{
		hash:      m.hash,
		seed:      m.seed,
		allocator: m.allocator,
	}
	if err := c.Reserve(m.used); err != nil {
		return nil, err
	}
	var cloneErr error
	m.All(func(k K, v V) bool {
		if cloneKey != nil {
			if k, cloneErr = cloneKey(k); cloneErr != nil {
				return false
			}
		}
		if cloneValue != nil {
			if v, cloneErr = cloneValue(v); cloneErr != nil {
				return false
			}
		}
		_, _, cloneErr = c.Put(k, v)
		return cloneErr == nil
	})
	if cloneErr != nil {
		c.Close()
		return nil, cloneErr
	}
	return c, nil
}
