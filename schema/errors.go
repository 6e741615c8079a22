// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingKey is returned when a required key is absent.
	ErrMissingKey = errors.New("missing required key")
	// ErrInvalidValue is returned when a key holds a value of the wrong kind
	// or out of range.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnknownType is returned for type tags outside the supported set.
	ErrUnknownType = errors.New("unknown item type")
	// ErrUnsupportedWidth is returned for integers wider than MaxIntegerBytes.
	ErrUnsupportedWidth = errors.New("unsupported integer width")
	// ErrDuplicateCategory is returned when two definitions share a code.
	ErrDuplicateCategory = errors.New("duplicate category")
	// ErrTooDeep is returned when item lists nest deeper than MaxNesting.
	ErrTooDeep = errors.New("item nesting too deep")
)

// Error describes a definition that could not be built.
type Error struct {
	Path string // dotted location inside the document, e.g. items[2].data_fields[0]
	Name string
	Type Type
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Name != "" && e.Type != "":
		return fmt.Sprintf("schema %s: item '%s' (%s): %v", e.Path, e.Name, e.Type, e.Err)
	case e.Name != "":
		return fmt.Sprintf("schema %s: item '%s': %v", e.Path, e.Name, e.Err)
	default:
		return fmt.Sprintf("schema %s: %v", e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
