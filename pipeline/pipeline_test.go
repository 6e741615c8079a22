// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/MultiTechSystems/asterix-payload-schema/config"
	"github.com/MultiTechSystems/asterix-payload-schema/decoder"
	"github.com/MultiTechSystems/asterix-payload-schema/emit"
	"github.com/MultiTechSystems/asterix-payload-schema/pipeline"
	"github.com/MultiTechSystems/asterix-payload-schema/schema"
	"github.com/MultiTechSystems/asterix-payload-schema/schema/load"
)

const definitions = "../testdata/definitions"

var (
	header = []byte{0x00, 0x01, 0x00, 0x00}
	// cat048 record with I010 and I161.
	knownFrame = []byte{0x00, 0x0B, 0x01, 0x30, 0x00, 0x08, 0xC0, 0x01, 0x02, 0x00, 0x2A}
	// Block of a category without definition.
	unknownFrame = []byte{0x00, 0x07, 0x02, 0x22, 0x00, 0x04, 0xAA}
	// fspec announces I161 but the block ends after I010.
	brokenFrame = []byte{0x00, 0x09, 0x01, 0x30, 0x00, 0x06, 0xC0, 0x01, 0x02}
)

func recording(frames ...[]byte) []byte {
	return bytes.Join(append([][]byte{header}, frames...), nil)
}

// repeated returns a recording of n frame pairs.
func repeated(n int) []byte {
	frames := make([][]byte, 0, 2*n)
	for range n {
		frames = append(frames, knownFrame, unknownFrame)
	}
	return recording(frames...)
}

func newDecoder(t *testing.T, modify func(*config.Options)) (*pipeline.Decoder, *schema.Registry) {
	t.Helper()
	set, err := load.Dir(definitions, "ioss")
	if err != nil {
		t.Fatalf("load.Dir() error = %v", err)
	}
	reg, err := schema.NewRegistry(set)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	opts := config.Default()
	if modify != nil {
		modify(&opts)
	}
	return pipeline.New(reg, opts, zerolog.Nop()), reg
}

type collector struct {
	chunks []*pipeline.Chunk
}

func (c *collector) Emit(chunk *pipeline.Chunk) error {
	c.chunks = append(c.chunks, chunk)
	return nil
}

var ignoreElapsed = cmpopts.IgnoreFields(pipeline.Stats{}, "Elapsed")

func TestDecode(t *testing.T) {
	d, _ := newDecoder(t, nil)
	buf := recording(knownFrame, unknownFrame)
	sink := &collector{}

	stats, err := d.Decode(context.Background(), buf, sink)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := pipeline.Stats{Frames: 2, DataBlocks: 2, Records: 1, UnknownCategory: 1, Chunks: 1, Bytes: int64(len(buf))}
	if diff := cmp.Diff(want, stats, ignoreElapsed); diff != "" {
		t.Errorf("Decode() stats mismatch (-want +got):\n%s", diff)
	}

	if len(sink.chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(sink.chunks))
	}
	c := sink.chunks[0]
	if v, _ := c.Header.Get("version"); v != uint64(1) {
		t.Errorf("header version = %v, want 1", v)
	}
	for i, r := range c.Results {
		if r.Number != i || r.Tree == nil || r.Err != nil {
			t.Errorf("result %d = number %d, tree %v, err %v", i, r.Number, r.Tree, r.Err)
		}
	}
	if got := c.Results[1].Offset; got != 15 {
		t.Errorf("second frame offset = %d, want 15", got)
	}
}

func TestDecodeChunks(t *testing.T) {
	d, _ := newDecoder(t, func(o *config.Options) { o.ChunkFrames = 3 })
	sink := &collector{}
	stats, err := d.Decode(context.Background(), repeated(4), sink)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if stats.Chunks != 3 || stats.Frames != 8 || stats.Records != 4 {
		t.Errorf("stats = %+v, want 3 chunks, 8 frames, 4 records", stats)
	}
	next := 0
	for i, c := range sink.chunks {
		if c.Seq != i || c.First != next {
			t.Errorf("chunk %d: seq %d first %d, want %d/%d", i, c.Seq, c.First, i, next)
		}
		next += len(c.Frames)
	}
	// Each chunk carries its own copy of the header.
	if sink.chunks[0].Header == sink.chunks[1].Header {
		t.Errorf("chunks share a header object")
	}
}

func TestDecodeEmpty(t *testing.T) {
	d, _ := newDecoder(t, nil)
	stats, err := d.Decode(context.Background(), nil, nil)
	if err != nil || stats.Frames != 0 || stats.Chunks != 0 {
		t.Errorf("Decode(nil) = %+v, %v", stats, err)
	}
}

func TestDecodeHeaderOnly(t *testing.T) {
	d, _ := newDecoder(t, nil)
	stats, err := d.Decode(context.Background(), recording(), nil)
	if err != nil || stats.Frames != 0 {
		t.Errorf("Decode(header) = %+v, %v", stats, err)
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	buf := recording(append(bytes.Repeat(append(append([]byte{}, knownFrame...), unknownFrame...), 300), brokenFrame...))

	run := func(workers, chunk int, mode string) (string, string) {
		d, _ := newDecoder(t, func(o *config.Options) {
			o.Workers = workers
			o.ChunkFrames = chunk
			o.Mode = mode
		})
		var out bytes.Buffer
		lines := emit.NewJSONLines(&out)
		digest := emit.NewDigest()
		if _, err := d.Decode(context.Background(), buf, emit.Multi(lines, digest)); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if err := lines.Flush(); err != nil {
			t.Fatal(err)
		}
		return out.String(), digest.Hex()
	}

	serialOut, serialSum := run(1, 1000, "strict")
	tests := []struct {
		name    string
		workers int
		chunk   int
		mode    string
	}{
		{"serial again", 1, 1000, "strict"},
		{"parallel", 8, 1000, "strict"},
		{"parallel small chunks", 8, 7, "strict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, sum := run(tt.workers, tt.chunk, tt.mode)
			if out != serialOut {
				t.Errorf("output differs from the serial decode")
			}
			if sum != serialSum {
				t.Errorf("digest = %s, want %s", sum, serialSum)
			}
		})
	}
}

func TestDecodeFrameFailure(t *testing.T) {
	buf := recording(knownFrame, brokenFrame, unknownFrame)

	t.Run("counted", func(t *testing.T) {
		d, _ := newDecoder(t, nil)
		sink := &collector{}
		stats, err := d.Decode(context.Background(), buf, sink)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if stats.Frames != 3 || stats.FramesFailed != 1 || stats.Records != 1 {
			t.Errorf("stats = %+v, want 3 frames, 1 failed, 1 record", stats)
		}
		if err := sink.chunks[0].Results[1].Err; !errors.Is(err, decoder.ErrOutOfBounds) {
			t.Errorf("frame 1 error = %v, want %v", err, decoder.ErrOutOfBounds)
		}
	})

	t.Run("stop on error", func(t *testing.T) {
		d, _ := newDecoder(t, func(o *config.Options) { o.StopOnError = true })
		sink := &collector{}
		_, err := d.Decode(context.Background(), buf, sink)
		if !errors.Is(err, decoder.ErrOutOfBounds) {
			t.Errorf("Decode() error = %v, want %v", err, decoder.ErrOutOfBounds)
		}
		if len(sink.chunks) != 0 {
			t.Errorf("failed chunk reached the sink")
		}
	})
}

func TestDecodeScanError(t *testing.T) {
	d, _ := newDecoder(t, nil)
	buf := recording(knownFrame, unknownFrame[:4])
	if _, err := d.Decode(context.Background(), buf, nil); !errors.Is(err, decoder.ErrOutOfBounds) {
		t.Errorf("Decode() error = %v, want %v", err, decoder.ErrOutOfBounds)
	}
}

func TestDecodeCanceled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		d, _ := newDecoder(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := d.Decode(ctx, repeated(10), nil); !errors.Is(err, context.Canceled) {
			t.Errorf("Decode() error = %v, want %v", err, context.Canceled)
		}
	})

	t.Run("between chunks", func(t *testing.T) {
		d, _ := newDecoder(t, func(o *config.Options) {
			o.ChunkFrames = 1
			o.QueueDepth = 1
		})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sink := sinkFunc(func(*pipeline.Chunk) error {
			cancel()
			return nil
		})
		stats, err := d.Decode(ctx, repeated(50), sink)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Decode() error = %v, want %v", err, context.Canceled)
		}
		if stats.Chunks == 0 || stats.Chunks >= 100 {
			t.Errorf("chunks = %d, want a partial decode", stats.Chunks)
		}
	})
}

type sinkFunc func(*pipeline.Chunk) error

func (f sinkFunc) Emit(c *pipeline.Chunk) error { return f(c) }

func TestDecodeSinkError(t *testing.T) {
	d, _ := newDecoder(t, func(o *config.Options) { o.ChunkFrames = 1 })
	errFull := errors.New("disk full")
	calls := 0
	sink := sinkFunc(func(*pipeline.Chunk) error {
		calls++
		return errFull
	})
	if _, err := d.Decode(context.Background(), repeated(20), sink); !errors.Is(err, errFull) {
		t.Errorf("Decode() error = %v, want %v", err, errFull)
	}
	if calls != 1 {
		t.Errorf("sink called %d times after failing, want 1", calls)
	}
}

func TestDecodeInvalidOptions(t *testing.T) {
	d, _ := newDecoder(t, func(o *config.Options) { o.Mode = "turbo" })
	if _, err := d.Decode(context.Background(), repeated(1), nil); err == nil {
		t.Errorf("Decode() succeeded with an unknown mode")
	}
}

func TestSwap(t *testing.T) {
	d, reg := newDecoder(t, nil)
	buf := recording(knownFrame, unknownFrame)

	empty, err := schema.NewCategoryTable()
	if err != nil {
		t.Fatal(err)
	}
	current := reg.Current()
	next, err := schema.NewSet(current.Framing, current.DataBlock, empty)
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}
	version, err := d.Swap(next)
	if err != nil || version != 2 {
		t.Fatalf("Swap() = %d, %v, want 2", version, err)
	}

	stats, err := d.Decode(context.Background(), buf, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if stats.Records != 0 || stats.UnknownCategory != 2 {
		t.Errorf("after swap records=%d unknown=%d, want 0/2", stats.Records, stats.UnknownCategory)
	}
	if _, err := d.Swap(nil); err == nil {
		t.Errorf("Swap(nil) succeeded")
	}
}

func TestDecodeFile(t *testing.T) {
	d, _ := newDecoder(t, nil)
	buf := repeated(10)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	compressed := enc.EncodeAll(buf, nil)
	enc.Close()

	dir := t.TempDir()
	for _, f := range []struct {
		name string
		data []byte
	}{
		{"rec.ff", buf},
		{"rec.ff.zst", compressed},
	} {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			t.Fatal(err)
		}
		stats, err := d.DecodeFile(context.Background(), path, nil)
		if err != nil {
			t.Fatalf("DecodeFile(%s) error = %v", f.name, err)
		}
		if stats.Frames != 20 || stats.Records != 10 || stats.Bytes != int64(len(buf)) {
			t.Errorf("DecodeFile(%s) stats = %+v", f.name, stats)
		}
	}

	if _, err := d.DecodeFile(context.Background(), filepath.Join(dir, "missing.ff"), nil); err == nil {
		t.Errorf("DecodeFile(missing) succeeded")
	}
}

func BenchmarkDecode(b *testing.B) {
	set, err := load.Dir(definitions, "ioss")
	if err != nil {
		b.Fatal(err)
	}
	reg, _ := schema.NewRegistry(set)
	d := pipeline.New(reg, config.Default(), zerolog.Nop())
	buf := repeated(5000)
	b.SetBytes(int64(len(buf)))
	b.ResetTimer()
	for b.Loop() {
		if _, err := d.Decode(context.Background(), buf, nil); err != nil {
			b.Fatal(err)
		}
	}
}
