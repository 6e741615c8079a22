// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package frame splits a recording into transport frames and decodes the
// data blocks and records carried by each frame.
package frame

import (
	"errors"
	"fmt"

	"github.com/MultiTechSystems/asterix-payload-schema/decoder"
	"github.com/MultiTechSystems/asterix-payload-schema/schema"
	"github.com/MultiTechSystems/asterix-payload-schema/tree"
)

// Slot names added to decoded frames and data blocks.
const (
	DataBlocksKey = "data_blocks"
	RecordsKey    = "records"
	SkippedKey    = "skipped"
)

// ErrNoPayload is returned when a decoded frame lacks its payload range.
var ErrNoPayload = errors.New("frame payload missing")

// Descriptor locates one frame inside the shared buffer. It is immutable
// once produced.
type Descriptor struct {
	Offset  int            // first byte of the frame
	Length  int            // bytes taken by the frame items
	Payload tree.ByteRange // bytes holding the data blocks
	Meta    *tree.Object   // decoded frame items
}

// Batch is the result of one frame scan.
type Batch struct {
	Frames []Descriptor
	Next   int  // offset at which the next scan starts
	Done   bool // buffer exhausted
}

// Result holds the decoded tree of one frame and its counts.
type Result struct {
	Frame      *tree.Object
	DataBlocks int
	Records    int
	Unknown    int
}

// Parser decodes frames against one definition set. It holds no mutable
// state and may be used from many goroutines.
type Parser struct {
	set *schema.Set
	dec *decoder.Decoder
}

// NewParser creates a parser.
func NewParser(set *schema.Set, dec *decoder.Decoder) *Parser {
	return &Parser{set: set, dec: dec}
}

// Set returns the definition set the parser runs against.
func (p *Parser) Set() *schema.Set {
	return p.set
}

// ParseHeader decodes the framing header at the start of buf. It returns
// the header object and the number of bytes it took.
func (p *Parser) ParseHeader(buf []byte) (*tree.Object, int, error) {
	header := tree.NewObject()
	n, err := p.dec.DecodeItems(p.set.Framing.HeaderItems, buf, 0, len(buf), header, header)
	if err != nil {
		return nil, 0, fmt.Errorf("header: %w", err)
	}
	return header, n, nil
}

// ParseFrames scans up to maxFrames frames starting at start.
func (p *Parser) ParseFrames(buf []byte, start, maxFrames int) (Batch, error) {
	fr := p.set.Framing
	batch := Batch{Frames: make([]Descriptor, 0, min(maxFrames, 1024))}
	offset := start

	for len(batch.Frames) < maxFrames && offset < len(buf) {
		meta := tree.NewObject()
		n, err := p.dec.DecodeItems(fr.FrameItems, buf, offset, len(buf), meta, meta)
		if err != nil {
			return batch, fmt.Errorf("frame at offset %d: %w", offset, err)
		}
		if n == 0 {
			return batch, fmt.Errorf("frame at offset %d: %w: frame items consumed no bytes", offset, decoder.ErrNoProgress)
		}

		payload := tree.ByteRange{Index: offset, Length: n}
		if fr.Payload != schema.PayloadFrame {
			v, _ := meta.Get(fr.ContentItem)
			br, ok := v.(tree.ByteRange)
			if !ok {
				return batch, fmt.Errorf("frame at offset %d: %w: no '%s' range", offset, ErrNoPayload, fr.ContentItem)
			}
			payload = br
		}
		if payload.Index < 0 || payload.End() > len(buf) {
			return batch, fmt.Errorf("frame at offset %d: %w: payload [%d, %d) beyond %d bytes",
				offset, decoder.ErrOutOfBounds, payload.Index, payload.End(), len(buf))
		}

		batch.Frames = append(batch.Frames, Descriptor{Offset: offset, Length: n, Payload: payload, Meta: meta})
		offset += n
	}

	batch.Next = offset
	batch.Done = offset >= len(buf)
	return batch, nil
}

// DecodeFrame decodes every data block inside the payload of desc. The
// returned tree is a copy of the frame items with a data_blocks array
// appended. A panic while decoding is reported as decoder.ErrInternal.
func (p *Parser) DecodeFrame(buf []byte, desc Descriptor) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame at offset %d: %w: %v", desc.Offset, decoder.ErrInternal, r)
		}
	}()

	res.Frame = desc.Meta.Clone()
	blocks := tree.NewArray()
	res.Frame.Set(DataBlocksKey, blocks)

	offset, end := desc.Payload.Index, desc.Payload.End()
	for offset < end {
		block := tree.NewObject()
		n, err := p.decodeDataBlock(buf, offset, end, block, &res)
		blocks.Append(block)
		if err != nil {
			return res, fmt.Errorf("data block at offset %d: %w", offset, err)
		}
		offset += n
	}
	return res, nil
}

func (p *Parser) decodeDataBlock(buf []byte, offset, end int, block *tree.Object, res *Result) (int, error) {
	db := p.set.DataBlock
	n, err := p.dec.DecodeItems(db.Items, buf, offset, end, block, block)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: data block items consumed no bytes", decoder.ErrNoProgress)
	}
	res.DataBlocks++

	raw, ok := block.Get(db.CategoryItem)
	if !ok {
		return 0, fmt.Errorf("%w: '%s'", decoder.ErrMissingVariable, db.CategoryItem)
	}
	code, ok := tree.ToUint(raw)
	if !ok {
		return 0, fmt.Errorf("%w: '%s' is %T", decoder.ErrWrongKind, db.CategoryItem, raw)
	}
	v, _ := block.Get(db.ContentItem)
	content, ok := v.(tree.ByteRange)
	if !ok {
		return 0, fmt.Errorf("%w: no '%s' range", ErrNoPayload, db.ContentItem)
	}

	var cat *schema.Category
	if code <= 255 {
		cat, ok = p.set.Categories.Get(uint8(code))
	}
	if cat == nil || !ok {
		block.Set(SkippedKey, true)
		res.Unknown++
		return n, nil
	}

	records := tree.NewArray()
	block.Set(RecordsKey, records)
	pos := content.Index
	for pos < content.End() {
		rec := tree.NewObject()
		m, err := p.dec.DecodeItems(cat.Items, buf, pos, content.End(), rec, rec)
		if err != nil {
			return 0, fmt.Errorf("%s record %d: %w", cat.Name, records.Len(), err)
		}
		if m == 0 {
			return 0, fmt.Errorf("%s record %d at offset %d: %w: record consumed no bytes",
				cat.Name, records.Len(), pos, decoder.ErrNoProgress)
		}
		records.Append(rec)
		res.Records++
		pos += m
	}
	return n, nil
}
