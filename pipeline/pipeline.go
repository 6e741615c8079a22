// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package pipeline runs a whole-recording decode. A producer scans frames
// in chunks and hands them over a bounded queue to a consumer that decodes
// the frames of each chunk in parallel, preserving scan order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/MultiTechSystems/asterix-payload-schema/config"
	"github.com/MultiTechSystems/asterix-payload-schema/decoder"
	"github.com/MultiTechSystems/asterix-payload-schema/frame"
	"github.com/MultiTechSystems/asterix-payload-schema/schema"
	"github.com/MultiTechSystems/asterix-payload-schema/source"
	"github.com/MultiTechSystems/asterix-payload-schema/tree"
)

// FrameResult is the outcome of decoding one frame.
type FrameResult struct {
	Number     int // position in scan order, counted from 0
	Offset     int
	Length     int
	Tree       *tree.Object
	DataBlocks int
	Records    int
	Unknown    int
	Err        error
}

// Chunk is a batch of consecutive frames. Results[i] belongs to Frames[i]
// and is filled by the consumer before the chunk reaches a Sink.
type Chunk struct {
	Seq     int
	First   int // scan number of Frames[0]
	Header  *tree.Object
	Frames  []frame.Descriptor
	Results []FrameResult
}

// Sink receives decoded chunks in scan order from a single goroutine.
type Sink interface {
	Emit(c *Chunk) error
}

// Stats aggregates the counts of one decode.
type Stats struct {
	Frames          int
	DataBlocks      int
	Records         int
	UnknownCategory int
	FramesFailed    int
	Chunks          int
	Bytes           int64
	Elapsed         time.Duration
}

func (s *Stats) add(c *Chunk) {
	s.Chunks++
	s.Frames += len(c.Frames)
	for _, r := range c.Results {
		s.DataBlocks += r.DataBlocks
		s.Records += r.Records
		s.UnknownCategory += r.Unknown
		if r.Err != nil {
			s.FramesFailed++
		}
	}
}

// Decoder decodes recordings against the definition set held by a
// registry.
type Decoder struct {
	reg  *schema.Registry
	opts config.Options
	log  zerolog.Logger
}

// New creates a pipeline decoder.
func New(reg *schema.Registry, opts config.Options, log zerolog.Logger) *Decoder {
	return &Decoder{reg: reg, opts: opts, log: log}
}

// Swap installs a new definition set. Decodes already running keep the
// set they started with.
func (d *Decoder) Swap(set *schema.Set) (uint64, error) {
	version, err := d.reg.Swap(set)
	if err != nil {
		return version, err
	}
	d.log.Info().Uint64("version", version).Str("framing", set.Framing.Name).Msg("definitions swapped")
	return version, nil
}

// DecodeFile opens path with source.Open and decodes it.
func (d *Decoder) DecodeFile(ctx context.Context, path string, sink Sink) (Stats, error) {
	buf, err := source.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer buf.Close()

	d.log.Debug().
		Str("path", path).
		Int("bytes", buf.Len()).
		Str("compression", buf.Compression().String()).
		Msg("recording opened")
	return d.Decode(ctx, buf.Bytes(), sink)
}

// Decode decodes every frame in buf. sink may be nil. Frame decode errors
// are recorded on the frame result and counted; with StopOnError the first
// one ends the decode. Header and scan errors always end the decode.
func (d *Decoder) Decode(ctx context.Context, buf []byte, sink Sink) (Stats, error) {
	start := time.Now()
	stats := Stats{Bytes: int64(len(buf))}

	opts := d.opts
	if err := opts.Validate(); err != nil {
		return stats, err
	}
	decOpts, err := opts.DecoderOptions()
	if err != nil {
		return stats, err
	}
	if len(buf) == 0 {
		return stats, nil
	}

	set := d.reg.Current()
	parser := frame.NewParser(set, decoder.New(append(decOpts, decoder.WithLogger(d.log))...))

	header, offset, err := parser.ParseHeader(buf)
	if err != nil {
		return stats, err
	}
	d.log.Debug().
		Str("framing", set.Framing.Name).
		Int("header_bytes", offset).
		Int("workers", opts.Workers).
		Int("chunk_frames", opts.ChunkFrames).
		Msg("decode started")

	chunks := make(chan *Chunk, opts.QueueDepth)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(chunks)
		first := 0
		for seq := 0; offset < len(buf); seq++ {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch, err := parser.ParseFrames(buf, offset, opts.ChunkFrames)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			c := &Chunk{
				Seq:     seq,
				First:   first,
				Header:  header.Clone(),
				Frames:  batch.Frames,
				Results: make([]FrameResult, len(batch.Frames)),
			}
			select {
			case chunks <- c:
			case <-gctx.Done():
				return gctx.Err()
			}
			first += len(batch.Frames)
			offset = batch.Next
			if batch.Done {
				break
			}
		}
		return nil
	})

	g.Go(func() error {
		for c := range chunks {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := d.decodeChunk(gctx, parser, buf, c, opts); err != nil {
				return err
			}
			stats.add(c)
			if sink != nil {
				if err := sink.Emit(c); err != nil {
					return fmt.Errorf("emit chunk %d: %w", c.Seq, err)
				}
			}
			d.log.Debug().Int("chunk", c.Seq).Int("frames", len(c.Frames)).Msg("chunk decoded")
		}
		return nil
	})

	err = g.Wait()
	stats.Elapsed = time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return stats, ctxErr
		}
		return stats, err
	}
	d.log.Debug().
		Int("frames", stats.Frames).
		Int("records", stats.Records).
		Int("failed", stats.FramesFailed).
		Dur("elapsed", stats.Elapsed).
		Msg("decode finished")
	return stats, nil
}

// decodeChunk decodes the frames of c with at most opts.Workers tasks in
// flight. Each task writes only its own result slot.
func (d *Decoder) decodeChunk(ctx context.Context, parser *frame.Parser, buf []byte, c *Chunk, opts config.Options) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i := range c.Frames {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Turn I/O faults on a mapped recording into recoverable panics.
			old := debug.SetPanicOnFault(true)
			defer debug.SetPanicOnFault(old)

			desc := c.Frames[i]
			res, err := parser.DecodeFrame(buf, desc)
			c.Results[i] = FrameResult{
				Number:     c.First + i,
				Offset:     desc.Offset,
				Length:     desc.Length,
				Tree:       res.Frame,
				DataBlocks: res.DataBlocks,
				Records:    res.Records,
				Unknown:    res.Unknown,
				Err:        err,
			}
			if err != nil {
				d.log.Debug().Err(err).Int("frame", c.First+i).Msg("frame failed")
				if opts.StopOnError {
					return fmt.Errorf("frame %d: %w", c.First+i, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// Frames skipped after a cancellation have no result.
	return ctx.Err()
}
