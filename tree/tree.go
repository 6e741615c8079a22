// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package tree provides the ordered value tree produced by decoding.
//
// A tree mirrors the shape of JSON: objects keep their keys in insertion
// order, arrays are indexed, and leaves are one of a small set of scalar
// types:
//
//	string     text from fixed_bytes string items
//	uint64     unsigned integers
//	int64      signed integers
//	bool       single flags
//	[]bool     bit arrays (field specifications)
//	[]byte     opaque blobs
//	ByteRange  lazy {index, length} references into the input buffer
//
// A tree is created and written by exactly one decode call and must not be
// shared for writing across goroutines.
package tree

import (
	"strings"

	"github.com/elliotchance/orderedmap/v3"
)

// ByteRange references a region of the input buffer without copying it.
type ByteRange struct {
	Index  int
	Length int
}

// End returns the offset one past the last byte of the range.
func (r ByteRange) End() int {
	return r.Index + r.Length
}

// Object is an insertion-ordered string-keyed map.
type Object struct {
	fields *orderedmap.OrderedMap[string, any]
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{fields: orderedmap.NewOrderedMap[string, any]()}
}

// Set stores v under key. An existing key keeps its position.
func (o *Object) Set(key string, v any) {
	o.fields.Set(key, v)
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	return o.fields.Get(key)
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.fields.Get(key)
	return ok
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return o.fields.Len()
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.fields.Len())
	for el := o.fields.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Key)
	}
	return keys
}

// Range calls fn for every key in order until fn returns false.
func (o *Object) Range(fn func(key string, v any) bool) {
	for el := o.fields.Front(); el != nil; el = el.Next() {
		if !fn(el.Key, el.Value) {
			return
		}
	}
}

// Object returns the child object under key, or nil if the key is absent or
// holds something else.
func (o *Object) Object(key string) *Object {
	v, ok := o.fields.Get(key)
	if !ok {
		return nil
	}
	child, _ := v.(*Object)
	return child
}

// Array returns the child array under key, or nil.
func (o *Object) Array(key string) *Array {
	v, ok := o.fields.Get(key)
	if !ok {
		return nil
	}
	arr, _ := v.(*Array)
	return arr
}

// Lookup resolves a dotted path such as "I010.SAC" through nested objects.
func (o *Object) Lookup(path string) (any, bool) {
	current := o
	for {
		key, rest, nested := strings.Cut(path, ".")
		v, ok := current.Get(key)
		if !ok {
			return nil, false
		}
		if !nested {
			return v, true
		}
		next, isObject := v.(*Object)
		if !isObject {
			return nil, false
		}
		current = next
		path = rest
	}
}

// Clone returns a deep copy. Blobs and bit arrays are copied too so the
// clone can be handed to another goroutine.
func (o *Object) Clone() *Object {
	dst := &Object{fields: orderedmap.NewOrderedMapWithCapacity[string, any](o.fields.Len())}
	for el := o.fields.Front(); el != nil; el = el.Next() {
		dst.fields.Set(el.Key, cloneValue(el.Value))
	}
	return dst
}

// Array is an ordered list of values.
type Array struct {
	items []any
}

// NewArray creates an empty array.
func NewArray() *Array {
	return &Array{}
}

// Append adds v at the end.
func (a *Array) Append(v any) {
	a.items = append(a.items, v)
}

// Len returns the number of elements.
func (a *Array) Len() int {
	return len(a.items)
}

// At returns the element at index i.
func (a *Array) At(i int) any {
	return a.items[i]
}

// Items returns the backing slice. Callers must not modify it.
func (a *Array) Items() []any {
	return a.items
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	dst := &Array{items: make([]any, len(a.items))}
	for i, v := range a.items {
		dst.items[i] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *Object:
		return val.Clone()
	case *Array:
		return val.Clone()
	case []bool:
		return append([]bool(nil), val...)
	case []byte:
		return append([]byte(nil), val...)
	default:
		return v
	}
}
