// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func mustParseItem(t *testing.T, doc string) *Item {
	t.Helper()
	item, err := ParseItemDocument([]byte(doc))
	if err != nil {
		t.Fatalf("ParseItemDocument() error = %v", err)
	}
	return item
}

func TestParseFixedBytes(t *testing.T) {
	item := mustParseItem(t, `
name: track_number
type: fixed_bytes
length: 2
data_type: uint
reverse_bytes: true
`)
	if item.Name != "track_number" || item.Type != TypeFixedBytes {
		t.Fatalf("item = %s/%s, want track_number/fixed_bytes", item.Name, item.Type)
	}
	spec, ok := item.Spec.(*FixedBytes)
	if !ok {
		t.Fatalf("Spec = %T, want *FixedBytes", item.Spec)
	}
	if spec.Length != 2 || spec.DataType != DataUint || !spec.ReverseBytes || spec.ReverseBits {
		t.Errorf("spec = %+v", spec)
	}
}

func TestParseJSONWithComments(t *testing.T) {
	doc := `{
		// time of day in 1/128 s
		"name": "time_of_day",
		"type": "fixed_bytes",
		"length": 3,
		"data_type": "uint", /* big endian */
	}`
	item := mustParseItem(t, doc)
	spec := item.Spec.(*FixedBytes)
	if spec.Length != 3 {
		t.Errorf("length = %d, want 3", spec.Length)
	}
}

func TestParseBitfieldAlias(t *testing.T) {
	item := mustParseItem(t, `
name: I010
type: fixed_byte_bitfield
length: 2
items:
  - name: SAC
    type: fixed_bits
    start_bit: 8
    bit_length: 8
  - name: TST
    type: fixed_bits
    start_bit: 0
    bit_length: 1
    data_type: bool
`)
	if item.Type != TypeFixedBitfield {
		t.Errorf("Type = %s, want %s", item.Type, TypeFixedBitfield)
	}
	spec := item.Spec.(*FixedBitfield)
	if len(spec.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(spec.Items))
	}
	sac := spec.Items[0].Spec.(*FixedBits)
	if sac.StartBit != 8 || sac.BitLength != 8 || sac.DataType != DataUint {
		t.Errorf("SAC = %+v", sac)
	}
	if tst := spec.Items[1].Spec.(*FixedBits); tst.DataType != DataBool {
		t.Errorf("TST data_type = %s, want bool", tst.DataType)
	}
}

func TestParseNested(t *testing.T) {
	item := mustParseItem(t, `
name: I250
type: repetitive
repetition_item:
  name: rep
  type: fixed_bytes
  length: 1
  data_type: uint
items:
  - name: mode_s
    type: fixed_bytes
    length: 8
    data_type: bin
`)
	spec := item.Spec.(*Repetitive)
	if spec.Repetition.Name != RepetitionName {
		t.Errorf("repetition name = %s", spec.Repetition.Name)
	}
	if len(spec.Items) != 1 || spec.Items[0].Name != "mode_s" {
		t.Errorf("items = %+v", spec.Items)
	}
}

func TestParseSubtractPreviousSpellings(t *testing.T) {
	for _, key := range []string{"substract_previous", "subtract_previous"} {
		t.Run(key, func(t *testing.T) {
			item := mustParseItem(t, "name: content\ntype: dynamic_bytes\nlength_variable: length\n"+key+": true\n")
			if !item.Spec.(*DynamicBytes).SubtractPrevious {
				t.Errorf("SubtractPrevious = false, want true")
			}
		})
	}
}

func TestParseItemErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantErr  error
		wantPath string
	}{
		{
			name:    "missing name",
			doc:     "type: skip_bytes\nlength: 1\n",
			wantErr: ErrMissingKey,
		},
		{
			name:    "unknown type",
			doc:     "name: x\ntype: float_bytes\n",
			wantErr: ErrUnknownType,
		},
		{
			name:    "missing length",
			doc:     "name: x\ntype: fixed_bytes\ndata_type: uint\n",
			wantErr: ErrMissingKey,
		},
		{
			name:    "too wide",
			doc:     "name: x\ntype: fixed_bytes\nlength: 9\ndata_type: uint\n",
			wantErr: ErrUnsupportedWidth,
		},
		{
			name:    "bad data type",
			doc:     "name: x\ntype: fixed_bytes\nlength: 2\ndata_type: float\n",
			wantErr: ErrInvalidValue,
		},
		{
			name:    "fixed_bits outside bitfield",
			doc:     "name: x\ntype: fixed_bits\nstart_bit: 0\nbit_length: 1\n",
			wantErr: ErrInvalidValue,
		},
		{
			name: "bits outside window",
			doc: `
name: x
type: fixed_bitfield
length: 1
items:
  - {name: y, type: fixed_bits, start_bit: 4, bit_length: 5}
`,
			wantErr:  ErrInvalidValue,
			wantPath: "items[0]",
		},
		{
			name: "wide bool",
			doc: `
name: x
type: fixed_bitfield
length: 1
items:
  - {name: y, type: fixed_bits, start_bit: 0, bit_length: 2, data_type: bool}
`,
			wantErr: ErrInvalidValue,
		},
		{
			name: "optional without value",
			doc: `
name: x
type: fixed_bitfield
length: 1
optional: true
optional_variable_name: I020.TYP
items:
  - {name: y, type: fixed_bits, start_bit: 0, bit_length: 1}
`,
			wantErr: ErrMissingKey,
		},
		{
			name: "repetition not named rep",
			doc: `
name: x
type: repetitive
repetition_item: {name: count, type: fixed_bytes, length: 1, data_type: uint}
items:
  - {name: y, type: skip_bytes, length: 1}
`,
			wantErr: ErrInvalidValue,
		},
		{
			name: "nested error path",
			doc: `
name: x
type: optional_item
bitfield_name: fspec
bitfield_index: 0
data_fields:
  - {name: ok, type: skip_bytes, length: 1}
  - {name: bad, type: fixed_bytes, length: 2}
`,
			wantErr:  ErrMissingKey,
			wantPath: "data_fields[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseItemDocument([]byte(tt.doc))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseItemDocument() error = %v, want %v", err, tt.wantErr)
			}
			var schemaErr *Error
			if !errors.As(err, &schemaErr) {
				t.Fatalf("error %T is not *Error", err)
			}
			if tt.wantPath != "" && !strings.Contains(schemaErr.Path, tt.wantPath) {
				t.Errorf("Path = %q, want it to contain %q", schemaErr.Path, tt.wantPath)
			}
		})
	}
}

func TestParseTooDeep(t *testing.T) {
	var b strings.Builder
	for i := 0; i <= MaxNesting+1; i++ {
		b.WriteString(`{"name":"e","type":"extendable","items":[`)
	}
	b.WriteString(`{"name":"extend","type":"skip_bytes","length":1}`)
	for i := 0; i <= MaxNesting+1; i++ {
		b.WriteString(`]}`)
	}
	_, err := ParseItemDocument([]byte(b.String()))
	if !errors.Is(err, ErrTooDeep) {
		t.Errorf("ParseItemDocument() error = %v, want %v", err, ErrTooDeep)
	}
}

func TestParseInvalidDocument(t *testing.T) {
	if _, err := ParseDocument([]byte("invalid: yaml: [")); err == nil {
		t.Error("expected error for invalid YAML")
	}
	if _, err := ParseDocument([]byte("")); err == nil {
		t.Error("expected error for empty document")
	}
}

func parseCategoryDoc(t *testing.T, doc string) *Category {
	t.Helper()
	raw, err := ParseDocument([]byte(doc))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	cat, err := ParseCategory(raw)
	if err != nil {
		t.Fatalf("ParseCategory() error = %v", err)
	}
	return cat
}

func TestCategoryTable(t *testing.T) {
	cat48 := parseCategoryDoc(t, `
name: cat048
category: 48
items:
  - {name: fspec, type: extendable_bits, reverse_bits: true}
`)
	cat62 := parseCategoryDoc(t, `{"name": "cat062", "category": 62, "items": [{"name": "fspec", "type": "extendable_bits"}]}`)

	table, err := NewCategoryTable(cat62, cat48)
	if err != nil {
		t.Fatalf("NewCategoryTable() error = %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}
	if got, ok := table.Get(48); !ok || got.Name != "cat048" {
		t.Errorf("Get(48) = %v, %v", got, ok)
	}
	if _, ok := table.Get(1); ok {
		t.Errorf("Get(1) found undefined category")
	}
	codes := table.Codes()
	if len(codes) != 2 || codes[0] != 48 || codes[1] != 62 {
		t.Errorf("Codes() = %v, want [48 62]", codes)
	}

	dup := &Category{Name: "other048", Code: 48}
	if _, err := NewCategoryTable(cat48, dup); !errors.Is(err, ErrDuplicateCategory) {
		t.Errorf("NewCategoryTable(duplicate) error = %v, want %v", err, ErrDuplicateCategory)
	}
}

func TestCategoryCodeRange(t *testing.T) {
	raw := map[string]any{"name": "x", "category": 256, "items": []any{
		map[string]any{"name": "a", "type": "skip_bytes", "length": 1},
	}}
	if _, err := ParseCategory(raw); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("ParseCategory() error = %v, want %v", err, ErrInvalidValue)
	}
}

func TestParseFraming(t *testing.T) {
	raw, err := ParseDocument([]byte(`
name: ioss
header_items: []
frame_items:
  - {name: frame_length, type: fixed_bytes, length: 2, data_type: uint}
  - {name: content, type: dynamic_bytes, length_variable: frame_length, substract_previous: true}
`))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	fr, err := ParseFraming(raw)
	if err != nil {
		t.Fatalf("ParseFraming() error = %v", err)
	}
	if fr.ContentItem != DefaultContentItem || fr.Payload != PayloadContent {
		t.Errorf("defaults = %q/%q", fr.ContentItem, fr.Payload)
	}
	if len(fr.HeaderItems) != 0 || len(fr.FrameItems) != 2 {
		t.Errorf("items = %d header, %d frame", len(fr.HeaderItems), len(fr.FrameItems))
	}

	delete(raw, "header_items")
	if _, err := ParseFraming(raw); !errors.Is(err, ErrMissingKey) {
		t.Errorf("ParseFraming(no header_items) error = %v, want %v", err, ErrMissingKey)
	}
}

func TestParseDataBlock(t *testing.T) {
	raw, err := ParseDocument([]byte(`
category_item: cat
items:
  - {name: cat, type: fixed_bytes, length: 1, data_type: uint}
  - {name: length, type: fixed_bytes, length: 2, data_type: uint}
  - {name: content, type: dynamic_bytes, length_variable: length, substract_previous: true}
`))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	db, err := ParseDataBlock(raw)
	if err != nil {
		t.Fatalf("ParseDataBlock() error = %v", err)
	}
	if db.CategoryItem != "cat" || db.ContentItem != DefaultContentItem {
		t.Errorf("slots = %q/%q", db.CategoryItem, db.ContentItem)
	}
}

func TestRegistrySwap(t *testing.T) {
	table, _ := NewCategoryTable()
	first, _ := NewSet(&Framing{Name: "a"}, &DataBlock{}, table)
	second, _ := NewSet(&Framing{Name: "b"}, &DataBlock{}, table)

	reg, err := NewRegistry(first)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	pinned := reg.Current()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s := reg.Current(); s != first && s != second {
				t.Errorf("Current() returned unknown set")
			}
		}()
	}
	version, err := reg.Swap(second)
	wg.Wait()

	if err != nil || version != 2 {
		t.Errorf("Swap() = %d, %v, want 2, nil", version, err)
	}
	if pinned.Framing.Name != "a" {
		t.Errorf("pinned set changed after swap")
	}
	if reg.Current().Framing.Name != "b" {
		t.Errorf("Current() = %s, want b", reg.Current().Framing.Name)
	}
	if _, err := reg.Swap(nil); err == nil {
		t.Errorf("Swap(nil) succeeded")
	}
}
