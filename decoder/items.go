// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package decoder

import (
	"bytes"
	"math/bits"

	"github.com/MultiTechSystems/asterix-payload-schema/schema"
	"github.com/MultiTechSystems/asterix-payload-schema/tree"
)

// decodeItems decodes a sibling group. consumed is the number of bytes the
// group had already taken before items[0]; the return value counts only the
// bytes taken by items.
func (d *Decoder) decodeItems(items []*schema.Item, w *window, offset, consumed int, target, parent *tree.Object) (int, error) {
	total := 0
	for _, item := range items {
		n, err := d.decodeItem(item, w, offset+total, consumed+total, target, parent)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (d *Decoder) decodeItem(item *schema.Item, w *window, offset, consumed int, target, parent *tree.Object) (int, error) {
	if d.trace {
		d.log.Debug().
			Str("field", item.Name).
			Str("type", string(item.Type)).
			Int("offset", offset).
			Int("remaining", w.remaining(offset)).
			Int("depth", w.depth).
			Msg("decode item")
	}

	switch spec := item.Spec.(type) {
	case *schema.FixedBytes:
		return d.decodeFixedBytes(item, spec, w, offset, target)
	case *schema.SkipBytes:
		if _, ok := w.read(offset, spec.Length); !ok {
			return 0, newError(item, offset, ErrOutOfBounds, "need %d bytes, %d remaining", spec.Length, w.remaining(offset))
		}
		return spec.Length, nil
	case *schema.DynamicBytes:
		return d.decodeDynamicBytes(item, spec, w, offset, consumed, target)
	case *schema.Compound:
		return d.decodeCompound(item, spec, w, offset, target)
	case *schema.ExtendableBits:
		return d.decodeExtendableBits(item, spec, w, offset, target)
	case *schema.Extendable:
		return d.decodeExtendable(item, spec, w, offset, target)
	case *schema.FixedBitfield:
		return d.decodeFixedBitfield(item, spec, w, offset, target, parent)
	case *schema.FixedBits:
		return 0, newError(item, offset, ErrInternal, "fixed_bits outside of fixed_bitfield")
	case *schema.OptionalItem:
		return d.decodeOptionalItem(item, spec, w, offset, target, parent)
	case *schema.Repetitive:
		return d.decodeRepetitive(item, spec, w, offset, consumed, target, parent)
	default:
		return 0, newError(item, offset, ErrInternal, "no decoder for %T", item.Spec)
	}
}

// store writes v into target. Strict mode refuses to overwrite.
func (d *Decoder) store(item *schema.Item, key string, offset int, target *tree.Object, v any) error {
	if d.mode == Strict && target.Has(key) {
		return newError(item, offset, ErrDuplicateSlot, "'%s'", key)
	}
	target.Set(key, v)
	return nil
}

// enter increments the nesting depth for a nested item list.
func (d *Decoder) enter(item *schema.Item, w *window, offset int) error {
	if w.depth >= d.maxDepth {
		return newError(item, offset, ErrDepthExceeded, "limit %d", d.maxDepth)
	}
	w.depth++
	return nil
}

func (d *Decoder) decodeFixedBytes(item *schema.Item, spec *schema.FixedBytes, w *window, offset int, target *tree.Object) (int, error) {
	data, ok := w.read(offset, spec.Length)
	if !ok {
		return 0, newError(item, offset, ErrOutOfBounds, "need %d bytes, %d remaining", spec.Length, w.remaining(offset))
	}

	var value any
	switch spec.DataType {
	case schema.DataString:
		// The last byte is a terminator.
		value = string(data[:len(data)-1])
	case schema.DataUint:
		value = assemble(data, spec.ReverseBytes, spec.ReverseBits)
	case schema.DataInt:
		shift := 64 - 8*uint(len(data))
		value = int64(assemble(data, spec.ReverseBytes, spec.ReverseBits)<<shift) >> shift
	case schema.DataBin:
		value = bytes.Clone(data)
	default:
		return 0, newError(item, offset, ErrInternal, "data_type '%s'", spec.DataType)
	}

	if err := d.store(item, item.Name, offset, target, value); err != nil {
		return 0, err
	}
	return spec.Length, nil
}

// assemble builds a big-endian integer from data, or little-endian when
// reverseBytes is set. reverseBits mirrors each byte first.
func assemble(data []byte, reverseBytes, reverseBits bool) uint64 {
	var v uint64
	n := len(data)
	for i := 0; i < n; i++ {
		b := data[i]
		if reverseBytes {
			b = data[n-1-i]
		}
		if reverseBits {
			b = bits.Reverse8(b)
		}
		v = v<<8 | uint64(b)
	}
	return v
}

// unsigned reads a decoded length or count. Strict mode requires an
// unsigned integer; fast mode accepts anything integral and non-negative.
func (d *Decoder) unsigned(v any) (uint64, bool) {
	if d.mode == Strict {
		return tree.Uint(v)
	}
	return tree.ToUint(v)
}

func (d *Decoder) decodeDynamicBytes(item *schema.Item, spec *schema.DynamicBytes, w *window, offset, consumed int, target *tree.Object) (int, error) {
	raw, ok := target.Get(spec.LengthVariable)
	if !ok {
		return 0, newError(item, offset, ErrMissingVariable, "'%s'", spec.LengthVariable)
	}
	length, ok := d.unsigned(raw)
	if !ok {
		return 0, newError(item, offset, ErrWrongKind, "'%s' is %T, want unsigned integer", spec.LengthVariable, raw)
	}
	if length > uint64(len(w.buf)) {
		return 0, newError(item, offset, ErrOutOfBounds, "length %d exceeds buffer", length)
	}
	n := int(length)
	if spec.SubtractPrevious {
		if n < consumed {
			return 0, newError(item, offset, ErrOutOfBounds, "length %d smaller than %d bytes already consumed", n, consumed)
		}
		n -= consumed
	}

	limit := w.end
	if d.mode == Fast {
		limit = len(w.buf)
	}
	if offset+n > limit {
		return 0, newError(item, offset, ErrOutOfBounds, "range of %d bytes, %d remaining", n, limit-offset)
	}

	if err := d.store(item, item.Name, offset, target, tree.ByteRange{Index: offset, Length: n}); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *Decoder) decodeCompound(item *schema.Item, spec *schema.Compound, w *window, offset int, target *tree.Object) (int, error) {
	obj := tree.NewObject()
	if err := d.store(item, item.Name, offset, target, obj); err != nil {
		return 0, err
	}
	if err := d.enter(item, w, offset); err != nil {
		return 0, err
	}
	defer func() { w.depth-- }()

	n, err := d.decodeItem(spec.FieldSpecification, w, offset, 0, obj, obj)
	if err != nil {
		return 0, within(err, item.Name)
	}
	m, err := d.decodeItems(spec.Items, w, offset+n, n, obj, obj)
	if err != nil {
		return 0, within(err, item.Name)
	}
	return n + m, nil
}

func (d *Decoder) decodeExtendableBits(item *schema.Item, spec *schema.ExtendableBits, w *window, offset int, target *tree.Object) (int, error) {
	var out []bool
	pos := offset
	for {
		data, ok := w.read(pos, 1)
		if !ok {
			return 0, newError(item, offset, ErrOutOfBounds, "extension bit set on last byte at %d", pos-1)
		}
		b := data[0]
		pos++
		for i := 0; i < 8; i++ {
			if spec.ReverseBits {
				out = append(out, b&(0x80>>i) != 0)
			} else {
				out = append(out, b&(1<<i) != 0)
			}
		}
		if !out[len(out)-1] {
			break
		}
	}
	if err := d.store(item, item.Name, offset, target, out); err != nil {
		return 0, err
	}
	return pos - offset, nil
}

func (d *Decoder) decodeExtendable(item *schema.Item, spec *schema.Extendable, w *window, offset int, target *tree.Object) (int, error) {
	arr := tree.NewArray()
	if err := d.store(item, item.Name, offset, target, arr); err != nil {
		return 0, err
	}
	if err := d.enter(item, w, offset); err != nil {
		return 0, err
	}
	defer func() { w.depth-- }()

	total := 0
	for count := 0; ; count++ {
		if count >= d.maxRepetitions {
			return 0, newError(item, offset, ErrTooManyRepetitions, "limit %d", d.maxRepetitions)
		}
		group := tree.NewObject()
		n, err := d.decodeItems(spec.Items, w, offset+total, 0, group, group)
		if err != nil {
			return 0, within(err, item.Name)
		}
		total += n
		arr.Append(group)

		raw, ok := group.Get(schema.ExtendName)
		if !ok {
			return 0, newError(item, offset+total, ErrMissingVariable, "'%s'", schema.ExtendName)
		}
		extend, ok := tree.Truthy(raw)
		if !ok {
			return 0, newError(item, offset+total, ErrWrongKind, "'%s' is %T", schema.ExtendName, raw)
		}
		if !extend {
			return total, nil
		}
		if n == 0 {
			return 0, newError(item, offset+total, ErrNoProgress, "group consumed no bytes")
		}
	}
}

func (d *Decoder) decodeFixedBitfield(item *schema.Item, spec *schema.FixedBitfield, w *window, offset int, target, parent *tree.Object) (int, error) {
	if spec.Optional {
		var v any
		found := false
		if parent != nil {
			v, found = parent.Lookup(spec.OptionalVariable)
		}
		if !found {
			// Fast mode reads an unknown gate as absent.
			if d.mode == Strict {
				return 0, newError(item, offset, ErrMissingVariable, "'%s'", spec.OptionalVariable)
			}
			return 0, nil
		}
		if !tree.Equal(v, spec.OptionalValue) {
			return 0, nil
		}
	}

	data, ok := w.read(offset, spec.Length)
	if !ok {
		return 0, newError(item, offset, ErrOutOfBounds, "need %d bytes, %d remaining", spec.Length, w.remaining(offset))
	}
	word := assemble(data, false, false)

	for _, sub := range spec.Items {
		fb, ok := sub.Spec.(*schema.FixedBits)
		if !ok {
			return 0, within(newError(sub, offset, ErrInternal, "only fixed_bits allowed in fixed_bitfield"), item.Name)
		}
		if err := d.store(sub, sub.Name, offset, target, extractBits(word, fb)); err != nil {
			return 0, within(err, item.Name)
		}
	}
	return spec.Length, nil
}

// extractBits returns the window of fb from word. Bit 0 is the least
// significant bit of the last byte in the group.
func extractBits(word uint64, fb *schema.FixedBits) any {
	v := word >> uint(fb.StartBit)
	if fb.BitLength < 64 {
		v &= 1<<uint(fb.BitLength) - 1
	}
	switch fb.DataType {
	case schema.DataBool:
		return v != 0
	case schema.DataInt:
		shift := 64 - uint(fb.BitLength)
		return int64(v<<shift) >> shift
	default:
		return v
	}
}

func (d *Decoder) decodeOptionalItem(item *schema.Item, spec *schema.OptionalItem, w *window, offset int, target, parent *tree.Object) (int, error) {
	var raw any
	ok := false
	if parent != nil {
		raw, ok = parent.Get(spec.BitfieldName)
	}
	if !ok {
		return 0, newError(item, offset, ErrMissingVariable, "'%s'", spec.BitfieldName)
	}
	presence, ok := raw.([]bool)
	if !ok {
		return 0, newError(item, offset, ErrWrongKind, "'%s' is %T, want bit array", spec.BitfieldName, raw)
	}
	// Presence arrays only cover the bytes actually sent.
	if spec.BitfieldIndex >= len(presence) || !presence[spec.BitfieldIndex] {
		return 0, nil
	}

	if err := d.enter(item, w, offset); err != nil {
		return 0, err
	}
	defer func() { w.depth-- }()

	// The data fields form their own sibling group.
	n, err := d.decodeItems(spec.DataFields, w, offset, 0, target, parent)
	if err != nil {
		return 0, within(err, item.Name)
	}
	return n, nil
}

func (d *Decoder) decodeRepetitive(item *schema.Item, spec *schema.Repetitive, w *window, offset, consumed int, target, parent *tree.Object) (int, error) {
	scratch := tree.NewObject()
	n, err := d.decodeItem(spec.Repetition, w, offset, consumed, scratch, parent)
	if err != nil {
		return 0, within(err, item.Name)
	}
	raw, ok := scratch.Get(schema.RepetitionName)
	if !ok {
		return 0, newError(item, offset, ErrMissingVariable, "'%s'", schema.RepetitionName)
	}
	count, ok := d.unsigned(raw)
	if !ok {
		return 0, newError(item, offset, ErrWrongKind, "'%s' is %T, want unsigned integer", schema.RepetitionName, raw)
	}
	if count > uint64(d.maxRepetitions) {
		return 0, newError(item, offset, ErrTooManyRepetitions, "%d, limit %d", count, d.maxRepetitions)
	}

	arr := tree.NewArray()
	if err := d.store(item, item.Name, offset, target, arr); err != nil {
		return 0, err
	}
	if err := d.enter(item, w, offset); err != nil {
		return 0, err
	}
	defer func() { w.depth-- }()

	total := n
	for i := uint64(0); i < count; i++ {
		group := tree.NewObject()
		m, err := d.decodeItems(spec.Items, w, offset+total, 0, group, group)
		if err != nil {
			return 0, within(err, item.Name)
		}
		total += m
		arr.Append(group)
	}
	return total, nil
}
