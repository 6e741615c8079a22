// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package source provides read-only access to recordings. Plain files are
// memory-mapped; zstd and lz4 compressed files are decompressed into memory.
package source

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a recording is stored.
type Compression uint8

const (
	None Compression = iota
	Zstd
	LZ4
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Frame magic numbers, little-endian on disk.
var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// Detect determines the compression of a recording from its file
// extension, falling back to the leading bytes.
func Detect(path string, head []byte) Compression {
	if c := fromExtension(path); c != None {
		return c
	}
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd
	case bytes.HasPrefix(head, lz4Magic):
		return LZ4
	}
	return None
}

func fromExtension(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return Zstd
	case ".lz4":
		return LZ4
	}
	return None
}

// expand decompresses data stored with c. When c was only sniffed from the
// leading bytes and the data does not decompress, the data is a plain
// recording that happens to start like a compressed stream.
func expand(path string, c Compression, data []byte) ([]byte, Compression, error) {
	if c == None {
		return data, None, nil
	}
	out, err := Decompress(c, data)
	if err != nil {
		if fromExtension(path) == None {
			return data, None, nil
		}
		return nil, c, err
	}
	return out, c, nil
}

// zstd.Decoder is safe for concurrent DecodeAll calls.
var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
})

// Decompress expands data stored with c.
func Decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Zstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("zstd decoder initialization: %w", err)
		}
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case LZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
}

// Buffer is a read-only view of a recording. Bytes must not be modified
// and must not be used after Close.
type Buffer struct {
	path        string
	data        []byte
	compression Compression
	release     func() error
}

// FromBytes wraps data that is already in memory. Compressed data is
// detected by its magic number and expanded.
func FromBytes(data []byte) (*Buffer, error) {
	out, c, err := expand("", Detect("", data), data)
	if err != nil {
		return nil, err
	}
	return &Buffer{data: out, compression: c}, nil
}

// Open maps the file at path. An empty file yields an empty buffer.
func Open(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stating recording: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("recording %s is a directory", path)
	}
	size := info.Size()
	if size == 0 {
		return &Buffer{path: path}, nil
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("recording %s is too large to map (%d bytes)", path, size)
	}

	data, release, err := mapFile(f, int(size))
	if err != nil {
		return nil, err
	}

	out, c, err := expand(path, Detect(path, data), data)
	if err == nil && c == None {
		return &Buffer{path: path, data: data, release: release}, nil
	}
	if rerr := release(); rerr != nil && err == nil {
		err = fmt.Errorf("unmapping recording: %w", rerr)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Buffer{path: path, data: out, compression: c}, nil
}

// Bytes returns the recording contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the size of the (decompressed) recording.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Path returns the file the buffer was opened from, if any.
func (b *Buffer) Path() string {
	return b.path
}

// Compression reports how the recording was stored.
func (b *Buffer) Compression() Compression {
	return b.compression
}

// Close releases the mapping. It is safe to call more than once.
func (b *Buffer) Close() error {
	release := b.release
	b.release = nil
	b.data = nil
	if release == nil {
		return nil
	}
	if err := release(); err != nil {
		return fmt.Errorf("unmapping recording: %w", err)
	}
	return nil
}
