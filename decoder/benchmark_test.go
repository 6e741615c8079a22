// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package decoder

import (
	"testing"

	"github.com/MultiTechSystems/asterix-payload-schema/schema"
	"github.com/MultiTechSystems/asterix-payload-schema/tree"
)

func benchmarkRecord(b *testing.B, mode Mode) {
	item := mustItem(b, recordDoc)
	data := recordSamples[1]
	d := New(WithMode(mode))

	// Warmup and verify
	target := tree.NewObject()
	if _, err := d.DecodeItem(item, data, 0, len(data), 0, target, target); err != nil {
		b.Fatalf("Failed to decode: %v", err)
	}

	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		target := tree.NewObject()
		_, _ = d.DecodeItem(item, data, 0, len(data), 0, target, target)
	}
}

func BenchmarkDecodeRecordStrict(b *testing.B) {
	benchmarkRecord(b, Strict)
}

func BenchmarkDecodeRecordFast(b *testing.B) {
	benchmarkRecord(b, Fast)
}

func BenchmarkParseAndDecodeRecord(b *testing.B) {
	data := recordSamples[1]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		item, _ := schema.ParseItemDocument([]byte(recordDoc))
		target := tree.NewObject()
		_, _ = New().DecodeItem(item, data, 0, len(data), 0, target, target)
	}
}

func BenchmarkAssemble(b *testing.B) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	var sink uint64
	for i := 0; i < b.N; i++ {
		sink += assemble(data, i&1 == 1, false)
	}
	_ = sink
}
