// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package emit writes decoded chunks as JSON lines or CBOR, or folds them
// into a BLAKE3 digest.
package emit

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/MultiTechSystems/asterix-payload-schema/pipeline"
	"github.com/MultiTechSystems/asterix-payload-schema/tree"
)

// appendLine renders one frame result as a single JSON object followed by
// a newline. Key order is fixed so equal decodes give equal bytes.
func appendLine(dst []byte, r *pipeline.FrameResult) ([]byte, error) {
	dst = append(dst, `{"frame":`...)
	dst = strconv.AppendInt(dst, int64(r.Number), 10)
	dst = append(dst, `,"offset":`...)
	dst = strconv.AppendInt(dst, int64(r.Offset), 10)
	dst = append(dst, `,"length":`...)
	dst = strconv.AppendInt(dst, int64(r.Length), 10)
	dst = append(dst, `,"content":`...)
	if r.Tree == nil {
		dst = append(dst, "null"...)
	} else {
		var err error
		if dst, err = r.Tree.AppendJSON(dst); err != nil {
			return nil, err
		}
	}
	if r.Err != nil {
		msg, err := json.Marshal(r.Err.Error())
		if err != nil {
			return nil, err
		}
		dst = append(dst, `,"error":`...)
		dst = append(dst, msg...)
	}
	return append(dst, '}', '\n'), nil
}

// JSONLines writes one JSON object per frame.
type JSONLines struct {
	w   *bufio.Writer
	buf []byte
}

// NewJSONLines creates a JSON lines sink. Call Flush when done.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: bufio.NewWriterSize(w, 1<<16)}
}

// Emit writes the frames of c in order.
func (j *JSONLines) Emit(c *pipeline.Chunk) error {
	for i := range c.Results {
		var err error
		j.buf, err = appendLine(j.buf[:0], &c.Results[i])
		if err != nil {
			return err
		}
		if _, err := j.w.Write(j.buf); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered output.
func (j *JSONLines) Flush() error {
	return j.w.Flush()
}

// record is the CBOR shape of one frame.
type record struct {
	Frame   int            `cbor:"frame"`
	Offset  int            `cbor:"offset"`
	Length  int            `cbor:"length"`
	Content map[string]any `cbor:"content"`
	Error   string         `cbor:"error,omitempty"`
}

// CBOR writes one deterministic CBOR item per frame.
type CBOR struct {
	w   *bufio.Writer
	enc *cbor.Encoder
}

// NewCBOR creates a CBOR sink using Core Deterministic Encoding. Call
// Flush when done.
func NewCBOR(w io.Writer) (*CBOR, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(w, 1<<16)
	return &CBOR{w: bw, enc: em.NewEncoder(bw)}, nil
}

// Emit encodes the frames of c in order.
func (s *CBOR) Emit(c *pipeline.Chunk) error {
	for _, r := range c.Results {
		rec := record{Frame: r.Number, Offset: r.Offset, Length: r.Length}
		if r.Tree != nil {
			rec.Content = r.Tree.Native()
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		if err := s.enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered output.
func (s *CBOR) Flush() error {
	return s.w.Flush()
}

// Digest hashes the JSON lines rendering of every frame. Two decodes with
// the same digest produced byte-identical output.
type Digest struct {
	h   *blake3.Hasher
	buf []byte
}

// NewDigest creates an empty digest sink.
func NewDigest() *Digest {
	return &Digest{h: blake3.New()}
}

func (d *Digest) Emit(c *pipeline.Chunk) error {
	for i := range c.Results {
		var err error
		d.buf, err = appendLine(d.buf[:0], &c.Results[i])
		if err != nil {
			return err
		}
		d.h.Write(d.buf)
	}
	return nil
}

// Sum returns the 32 byte digest of everything emitted so far.
func (d *Digest) Sum() []byte {
	return d.h.Sum(nil)
}

// Hex returns Sum hex encoded.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.Sum())
}

// TreeDigest returns the BLAKE3 digest of the JSON rendering of obj.
func TreeDigest(obj *tree.Object) ([32]byte, error) {
	data, err := obj.AppendJSON(nil)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(data), nil
}

type multi []pipeline.Sink

// Multi fans every chunk out to all sinks in order. Every sink sees the
// chunk even if an earlier one fails; the errors are joined.
func Multi(sinks ...pipeline.Sink) pipeline.Sink {
	return multi(sinks)
}

func (m multi) Emit(c *pipeline.Chunk) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
