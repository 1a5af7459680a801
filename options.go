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

import "hash/maphash"

// Option provides an interface to do work on Map while it is being created.
type Option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash func(seed maphash.Seed, key K) uint64
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[K,V].
// The function must be deterministic for a given seed and should distribute
// its output uniformly across all 64 bits. The default (maphash.Comparable)
// satisfies both. A weak mixing function offers no resistance to
// deliberately crafted collision floods and is only suitable for trusted
// keys.
func WithHash[K comparable, V any](hash func(seed maphash.Seed, key K) uint64) Option[K, V] {
	return hashOption[K, V]{hash}
}

type seedOption[K comparable, V any] struct {
	seed maphash.Seed
}

func (op seedOption[K, V]) apply(m *Map[K, V]) {
	m.seed = op.seed
}

// WithSeed is an option to specify the hash seed for a Map[K,V] instead of
// the random per-map default. Maps sharing a seed and hash function hash
// identically, which makes probe layouts reproducible in tests.
func WithSeed[K comparable, V any](seed maphash.Seed) Option[K, V] {
	return seedOption[K, V]{seed}
}

// Allocator specifies an interface for allocating and releasing the group
// buffer backing a Map. Unlike make(), an Allocator is permitted to fail:
// growth paths propagate the error to the caller and leave the map
// unmodified. The default allocator utilizes Go's builtin make() and allows
// the GC to reclaim memory.
//
// If the allocator is manually managing memory then Map.Close must be called
// in order to ensure Free is called for the final buffer.
type Allocator[K comparable, V any] interface {
	// Alloc returns a slice equivalent to make([]Group[K,V], n), or an error
	// if the memory cannot be obtained. A short slice is treated as failure.
	Alloc(n int) ([]Group[K, V], error)

	// Free releases the memory associated with the supplied slice that is
	// guaranteed to have been allocated by Alloc.
	Free(groups []Group[K, V])
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) Alloc(n int) ([]Group[K, V], error) {
	return make([]Group[K, V], n), nil
}

func (defaultAllocator[K, V]) Free(groups []Group[K, V]) {
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specifying the Allocator to use for a
// Map[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) Option[K, V] {
	return allocatorOption[K, V]{allocator}
}
