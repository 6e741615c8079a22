// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package decoder interprets item definitions against a byte buffer and
// writes the decoded values into an ordered tree.
//
// A Decoder is stateless apart from its options and may be shared by any
// number of goroutines, provided each call writes into its own target tree.
package decoder

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/MultiTechSystems/asterix-payload-schema/schema"
	"github.com/MultiTechSystems/asterix-payload-schema/tree"
)

// Mode selects how much cross-checking the decoder performs.
type Mode int

const (
	// Strict rejects duplicate slots, wrongly typed references and ranges
	// that leave the current window.
	Strict Mode = iota
	// Fast skips the cross-checks and coerces references leniently. Reads
	// are still bounds checked.
	Fast
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Fast:
		return "fast"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts "strict" or "fast" to a Mode. Empty means Strict.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "strict":
		return Strict, nil
	case "fast":
		return Fast, nil
	default:
		return Strict, fmt.Errorf("unknown decode mode '%s'", s)
	}
}

const (
	// DefaultMaxDepth bounds nesting of compound, extendable, optional and
	// repetitive items at decode time.
	DefaultMaxDepth = 64
	// DefaultMaxRepetitions bounds the count of one repetitive or
	// extendable item.
	DefaultMaxRepetitions = 65535
)

// Decoder decodes items. The zero value is not usable; call New.
type Decoder struct {
	mode           Mode
	log            zerolog.Logger
	trace          bool
	maxDepth       int
	maxRepetitions int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMode sets strict or fast decoding.
func WithMode(m Mode) Option {
	return func(d *Decoder) { d.mode = m }
}

// WithLogger sets the logger used for per-item tracing. Tracing is only
// produced when the logger is at debug level or below.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Decoder) { d.log = log }
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// WithMaxRepetitions overrides DefaultMaxRepetitions.
func WithMaxRepetitions(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxRepetitions = n
		}
	}
}

// New creates a decoder. Without options it runs in strict mode and logs
// nothing.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		mode:           Strict,
		log:            zerolog.Nop(),
		maxDepth:       DefaultMaxDepth,
		maxRepetitions: DefaultMaxRepetitions,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.trace = d.log.GetLevel() <= zerolog.DebugLevel
	return d
}

// Mode returns the configured mode.
func (d *Decoder) Mode() Mode {
	return d.mode
}

// DecodeItem decodes a single item at offset. The window ends at end, an
// absolute offset into buf. consumed is the number of bytes already taken by
// earlier siblings in the same group. The value is written into target;
// cross references (presence bits, optional gates) are resolved in parent.
// It returns the number of bytes the item consumed.
func (d *Decoder) DecodeItem(item *schema.Item, buf []byte, offset, end, consumed int, target, parent *tree.Object) (int, error) {
	dc, err := newWindow(buf, offset, end)
	if err != nil {
		return 0, newError(item, offset, err, "")
	}
	return d.decodeItem(item, dc, offset, consumed, target, parent)
}

// DecodeItems decodes items back to back starting at offset and returns the
// total number of bytes consumed.
func (d *Decoder) DecodeItems(items []*schema.Item, buf []byte, offset, end int, target, parent *tree.Object) (int, error) {
	dc, err := newWindow(buf, offset, end)
	if err != nil {
		return 0, &Error{Offset: offset, Err: err}
	}
	return d.decodeItems(items, dc, offset, 0, target, parent)
}

// window is the state shared by the items of one decode call.
type window struct {
	buf   []byte
	end   int
	depth int
}

func newWindow(buf []byte, offset, end int) (*window, error) {
	if offset < 0 || end < offset || end > len(buf) {
		return nil, fmt.Errorf("%w: window [%d, %d) outside buffer of %d bytes",
			ErrOutOfBounds, offset, end, len(buf))
	}
	return &window{buf: buf, end: end}, nil
}

// read returns n bytes at offset if they lie inside the window.
func (w *window) read(offset, n int) ([]byte, bool) {
	if n < 0 || offset < 0 || offset > w.end-n {
		return nil, false
	}
	return w.buf[offset : offset+n], true
}

func (w *window) remaining(offset int) int {
	return w.end - offset
}
