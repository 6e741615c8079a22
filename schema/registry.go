// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"sync/atomic"
)

// Registry holds the current definition set and allows replacing it while
// decodes are running. Readers pin the set returned by Current for the
// whole of one decode; a swap only affects later calls.
type Registry struct {
	set     atomic.Pointer[Set]
	version atomic.Uint64
}

// NewRegistry creates a registry holding set at version 1.
func NewRegistry(set *Set) (*Registry, error) {
	if set == nil {
		return nil, errors.New("schema: registry without definition set")
	}
	r := &Registry{}
	r.set.Store(set)
	r.version.Store(1)
	return r, nil
}

// Current returns the active definition set. Lock-free.
func (r *Registry) Current() *Set {
	return r.set.Load()
}

// Swap atomically replaces the active set and returns the new version.
func (r *Registry) Swap(set *Set) (uint64, error) {
	if set == nil {
		return r.version.Load(), errors.New("schema: swap to nil definition set")
	}
	r.set.Store(set)
	return r.version.Add(1), nil
}

// Version returns how many sets have been installed.
func (r *Registry) Version() uint64 {
	return r.version.Load()
}
