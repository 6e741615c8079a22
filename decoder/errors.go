// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package decoder

import (
	"errors"
	"fmt"

	"github.com/MultiTechSystems/asterix-payload-schema/schema"
)

var (
	// ErrOutOfBounds is returned when an item would read past its window.
	ErrOutOfBounds = errors.New("buffer underflow")
	// ErrMissingVariable is returned when a referenced sibling is absent.
	ErrMissingVariable = errors.New("referenced variable not found")
	// ErrWrongKind is returned when a referenced sibling has the wrong kind.
	ErrWrongKind = errors.New("referenced variable has wrong kind")
	// ErrDuplicateSlot is returned in strict mode when a slot is written twice.
	ErrDuplicateSlot = errors.New("slot already occupied")
	// ErrDepthExceeded is returned when item lists nest deeper than allowed.
	ErrDepthExceeded = errors.New("nesting depth exceeded")
	// ErrTooManyRepetitions is returned when a count exceeds the limit.
	ErrTooManyRepetitions = errors.New("too many repetitions")
	// ErrNoProgress is returned when a loop would not advance.
	ErrNoProgress = errors.New("no progress")
	// ErrInternal marks failures that indicate a bug rather than bad input.
	ErrInternal = errors.New("internal decoder error")
)

// Error describes an item that could not be decoded.
type Error struct {
	Field  string
	Path   string // dotted path from the outermost item, including Field
	Type   schema.Type
	Offset int
	Err    error
}

func (e *Error) Error() string {
	path := e.Path
	if path == "" {
		path = e.Field
	}
	return fmt.Sprintf("decode '%s' (%s) at offset %d: %v", path, e.Type, e.Offset, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(item *schema.Item, offset int, err error, format string, args ...any) *Error {
	if format != "" {
		err = fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
	}
	return &Error{Field: item.Name, Path: item.Name, Type: item.Type, Offset: offset, Err: err}
}

// within prefixes the error path with the enclosing item name.
func within(err error, name string) error {
	var de *Error
	if errors.As(err, &de) {
		de.Path = name + "." + de.Path
	}
	return err
}
