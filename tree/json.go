// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package tree

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// MarshalJSON renders the object with keys in insertion order. Blobs are
// rendered as lowercase hex strings.
func (o *Object) MarshalJSON() ([]byte, error) {
	return o.AppendJSON(nil)
}

// MarshalJSON renders the array.
func (a *Array) MarshalJSON() ([]byte, error) {
	return a.AppendJSON(nil)
}

// AppendJSON appends the JSON rendering of o to dst.
func (o *Object) AppendJSON(dst []byte) ([]byte, error) {
	dst = append(dst, '{')
	first := true
	var err error
	o.Range(func(key string, v any) bool {
		if !first {
			dst = append(dst, ',')
		}
		first = false
		if dst, err = appendString(dst, key); err != nil {
			return false
		}
		dst = append(dst, ':')
		dst, err = appendValue(dst, v)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return append(dst, '}'), nil
}

// AppendJSON appends the JSON rendering of a to dst.
func (a *Array) AppendJSON(dst []byte) ([]byte, error) {
	dst = append(dst, '[')
	for i, v := range a.items {
		if i > 0 {
			dst = append(dst, ',')
		}
		var err error
		dst, err = appendValue(dst, v)
		if err != nil {
			return nil, err
		}
	}
	return append(dst, ']'), nil
}

func appendValue(dst []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(dst, "null"...), nil
	case *Object:
		return val.AppendJSON(dst)
	case *Array:
		return val.AppendJSON(dst)
	case string:
		return appendString(dst, val)
	case uint64:
		return strconv.AppendUint(dst, val, 10), nil
	case int64:
		return strconv.AppendInt(dst, val, 10), nil
	case bool:
		return strconv.AppendBool(dst, val), nil
	case []bool:
		dst = append(dst, '[')
		for i, b := range val {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = strconv.AppendBool(dst, b)
		}
		return append(dst, ']'), nil
	case []byte:
		dst = append(dst, '"')
		dst = hex.AppendEncode(dst, val)
		return append(dst, '"'), nil
	case ByteRange:
		dst = append(dst, `{"index":`...)
		dst = strconv.AppendInt(dst, int64(val.Index), 10)
		dst = append(dst, `,"length":`...)
		dst = strconv.AppendInt(dst, int64(val.Length), 10)
		return append(dst, '}'), nil
	default:
		return nil, fmt.Errorf("tree: unsupported value type %T", v)
	}
}

func appendString(dst []byte, s string) ([]byte, error) {
	quoted, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return append(dst, quoted...), nil
}

// Native converts the object into plain Go maps and slices, suitable for
// generic encoders. Key order is not preserved.
func (o *Object) Native() map[string]any {
	out := make(map[string]any, o.Len())
	o.Range(func(key string, v any) bool {
		out[key] = nativeValue(v)
		return true
	})
	return out
}

// Native converts the array into a plain slice.
func (a *Array) Native() []any {
	out := make([]any, len(a.items))
	for i, v := range a.items {
		out[i] = nativeValue(v)
	}
	return out
}

func nativeValue(v any) any {
	switch val := v.(type) {
	case *Object:
		return val.Native()
	case *Array:
		return val.Native()
	case ByteRange:
		return map[string]any{"index": uint64(val.Index), "length": uint64(val.Length)}
	default:
		return v
	}
}
