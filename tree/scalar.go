// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package tree

import "math"

// Uint returns v as an unsigned integer. Only uint64 values qualify.
func Uint(v any) (uint64, bool) {
	u, ok := v.(uint64)
	return u, ok
}

// ToUint converts any integral tree or schema value to uint64, rejecting
// negatives and fractions.
func ToUint(v any) (uint64, bool) {
	switch val := v.(type) {
	case uint64:
		return val, true
	case int64:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case int:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case float64:
		if val < 0 || val != math.Trunc(val) || val > math.MaxUint64 {
			return 0, false
		}
		return uint64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Truthy interprets flag-like values: bools directly, integers as non-zero.
func Truthy(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case uint64:
		return val != 0, true
	case int64:
		return val != 0, true
	default:
		return false, false
	}
}

// Equal compares a decoded scalar with a literal taken from a schema
// document. Schema numbers arrive as int (YAML) or float64 (JSON).
func Equal(decoded, literal any) bool {
	switch want := literal.(type) {
	case string:
		got, ok := decoded.(string)
		return ok && got == want
	case bool:
		got, ok := Truthy(decoded)
		return ok && got == want
	case nil:
		return decoded == nil
	}
	switch got := decoded.(type) {
	case uint64:
		want, ok := ToUint(literal)
		return ok && got == want
	case int64:
		want, ok := toInt(literal)
		return ok && got == want
	case bool:
		want, ok := ToUint(literal)
		return ok && (want != 0) == got
	}
	return false
}

func toInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int64(val), true
	default:
		return 0, false
	}
}
