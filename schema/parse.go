// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ParseItem builds a definition from a decoded document node.
func ParseItem(raw map[string]any) (*Item, error) {
	return parseItem(raw, "item", 0, 0)
}

// ParseItems builds a definition list from a decoded document array.
func ParseItems(raw []any) ([]*Item, error) {
	return parseItems(raw, "items", 0, 0)
}

// fieldMap is one item node under construction. It carries enough context
// to report errors with the item's location, name and type.
type fieldMap struct {
	m    map[string]any
	path string
	name string
	typ  Type
}

func (f *fieldMap) fail(err error, format string, args ...any) *Error {
	return &Error{
		Path: f.path,
		Name: f.name,
		Type: f.typ,
		Err:  fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...)),
	}
}

func (f *fieldMap) requireInt(key string) (int, error) {
	raw, ok := f.m[key]
	if !ok {
		return 0, f.fail(ErrMissingKey, "%s", key)
	}
	v, ok := toInt(raw)
	if !ok {
		return 0, f.fail(ErrInvalidValue, "%s must be an integer, got %v", key, raw)
	}
	return v, nil
}

func (f *fieldMap) requireString(key string) (string, error) {
	raw, ok := f.m[key]
	if !ok {
		return "", f.fail(ErrMissingKey, "%s", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", f.fail(ErrInvalidValue, "%s must be a non-empty string", key)
	}
	return s, nil
}

func (f *fieldMap) optionalString(key, def string) (string, error) {
	if _, ok := f.m[key]; !ok {
		return def, nil
	}
	return f.requireString(key)
}

func (f *fieldMap) optionalBool(key string) (bool, error) {
	raw, ok := f.m[key]
	if !ok {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, f.fail(ErrInvalidValue, "%s must be a boolean", key)
	}
	return b, nil
}

func (f *fieldMap) requireList(key string) ([]any, error) {
	raw, ok := f.m[key]
	if !ok {
		return nil, f.fail(ErrMissingKey, "%s", key)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, f.fail(ErrInvalidValue, "%s must be an array", key)
	}
	if len(list) == 0 {
		return nil, f.fail(ErrInvalidValue, "%s must not be empty", key)
	}
	return list, nil
}

func (f *fieldMap) requireObject(key string) (map[string]any, error) {
	raw, ok := f.m[key]
	if !ok {
		return nil, f.fail(ErrMissingKey, "%s", key)
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, f.fail(ErrInvalidValue, "%s must be an object", key)
	}
	return m, nil
}

func parseItems(raw []any, path string, depth, bitfieldLength int) ([]*Item, error) {
	items := make([]*Item, 0, len(raw))
	for i, r := range raw {
		item, err := parseItem(r, path+"["+strconv.Itoa(i)+"]", depth, bitfieldLength)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func parseItem(raw any, path string, depth, bitfieldLength int) (*Item, error) {
	if depth > MaxNesting {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: more than %d levels", ErrTooDeep, MaxNesting)}
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: item definition must be an object", ErrInvalidValue)}
	}

	f := &fieldMap{m: m, path: path}
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return nil, f.fail(ErrMissingKey, "name")
	}
	f.name = name
	typ, ok := m["type"].(string)
	if !ok || typ == "" {
		return nil, f.fail(ErrMissingKey, "type")
	}
	f.typ = Type(typ)

	item := &Item{Name: name, Type: Type(typ)}
	var err error

	switch item.Type {
	case TypeFixedBytes:
		item.Spec, err = parseFixedBytes(f)
	case TypeSkipBytes:
		item.Spec, err = parseSkipBytes(f)
	case TypeDynamicBytes:
		item.Spec, err = parseDynamicBytes(f)
	case TypeCompound:
		item.Spec, err = parseCompound(f, depth)
	case TypeExtendableBits:
		item.Spec, err = parseExtendableBits(f)
	case TypeExtendable:
		item.Spec, err = parseExtendable(f, depth)
	case TypeFixedBitfield, TypeFixedByteBitfield:
		item.Type = TypeFixedBitfield
		item.Spec, err = parseFixedBitfield(f, depth)
	case TypeFixedBits:
		if bitfieldLength == 0 {
			return nil, f.fail(ErrInvalidValue, "fixed_bits is only valid inside a fixed_bitfield")
		}
		item.Spec, err = parseFixedBits(f, bitfieldLength)
	case TypeOptionalItem:
		item.Spec, err = parseOptionalItem(f, depth)
	case TypeRepetitive:
		item.Spec, err = parseRepetitive(f, depth)
	default:
		return nil, f.fail(ErrUnknownType, "'%s'", typ)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func parseFixedBytes(f *fieldMap) (*FixedBytes, error) {
	length, err := f.requireInt("length")
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, f.fail(ErrInvalidValue, "length must be positive, got %d", length)
	}
	dataType, err := f.requireString("data_type")
	if err != nil {
		return nil, err
	}
	spec := &FixedBytes{Length: length, DataType: DataType(dataType)}

	switch spec.DataType {
	case DataUint, DataInt:
		if length > MaxIntegerBytes {
			return nil, f.fail(ErrUnsupportedWidth, "%d bytes, at most %d supported", length, MaxIntegerBytes)
		}
	case DataString, DataBin:
	default:
		return nil, f.fail(ErrInvalidValue, "unknown data_type '%s'", dataType)
	}

	if spec.ReverseBytes, err = f.optionalBool("reverse_bytes"); err != nil {
		return nil, err
	}
	if spec.ReverseBits, err = f.optionalBool("reverse_bits"); err != nil {
		return nil, err
	}
	return spec, nil
}

func parseSkipBytes(f *fieldMap) (*SkipBytes, error) {
	length, err := f.requireInt("length")
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, f.fail(ErrInvalidValue, "length must not be negative, got %d", length)
	}
	return &SkipBytes{Length: length}, nil
}

func parseDynamicBytes(f *fieldMap) (*DynamicBytes, error) {
	variable, err := f.requireString("length_variable")
	if err != nil {
		return nil, err
	}
	spec := &DynamicBytes{LengthVariable: variable}
	// Definitions in the wild spell it both ways.
	for _, key := range []string{"substract_previous", "subtract_previous"} {
		set, err := f.optionalBool(key)
		if err != nil {
			return nil, err
		}
		spec.SubtractPrevious = spec.SubtractPrevious || set
	}
	return spec, nil
}

func parseCompound(f *fieldMap, depth int) (*Compound, error) {
	fsRaw, err := f.requireObject("field_specification")
	if err != nil {
		return nil, err
	}
	fieldSpec, err := parseItem(fsRaw, f.path+".field_specification", depth+1, 0)
	if err != nil {
		return nil, err
	}
	itemsRaw, err := f.requireList("items")
	if err != nil {
		return nil, err
	}
	items, err := parseItems(itemsRaw, f.path+".items", depth+1, 0)
	if err != nil {
		return nil, err
	}
	return &Compound{FieldSpecification: fieldSpec, Items: items}, nil
}

func parseExtendableBits(f *fieldMap) (*ExtendableBits, error) {
	dataType, err := f.optionalString("data_type", string(DataBitfield))
	if err != nil {
		return nil, err
	}
	if DataType(dataType) != DataBitfield {
		return nil, f.fail(ErrInvalidValue, "unknown data_type '%s'", dataType)
	}
	reverse, err := f.optionalBool("reverse_bits")
	if err != nil {
		return nil, err
	}
	return &ExtendableBits{DataType: DataBitfield, ReverseBits: reverse}, nil
}

func parseExtendable(f *fieldMap, depth int) (*Extendable, error) {
	itemsRaw, err := f.requireList("items")
	if err != nil {
		return nil, err
	}
	items, err := parseItems(itemsRaw, f.path+".items", depth+1, 0)
	if err != nil {
		return nil, err
	}
	return &Extendable{Items: items}, nil
}

func parseFixedBitfield(f *fieldMap, depth int) (*FixedBitfield, error) {
	length, err := f.requireInt("length")
	if err != nil {
		return nil, err
	}
	if length < 1 || length > MaxIntegerBytes {
		return nil, f.fail(ErrUnsupportedWidth, "length %d, must be 1 to %d bytes", length, MaxIntegerBytes)
	}
	spec := &FixedBitfield{Length: length}

	if spec.Optional, err = f.optionalBool("optional"); err != nil {
		return nil, err
	}
	if spec.Optional {
		if spec.OptionalVariable, err = f.requireString("optional_variable_name"); err != nil {
			return nil, err
		}
		value, ok := f.m["optional_variable_value"]
		if !ok {
			return nil, f.fail(ErrMissingKey, "optional_variable_value")
		}
		spec.OptionalValue = value
	}

	itemsRaw, err := f.requireList("items")
	if err != nil {
		return nil, err
	}
	if spec.Items, err = parseItems(itemsRaw, f.path+".items", depth+1, length); err != nil {
		return nil, err
	}
	for i, sub := range spec.Items {
		if sub.Type != TypeFixedBits {
			return nil, f.fail(ErrInvalidValue, "items[%d] '%s' is %s, only fixed_bits allowed", i, sub.Name, sub.Type)
		}
	}
	return spec, nil
}

func parseFixedBits(f *fieldMap, bitfieldLength int) (*FixedBits, error) {
	start, err := f.requireInt("start_bit")
	if err != nil {
		return nil, err
	}
	length, err := f.requireInt("bit_length")
	if err != nil {
		return nil, err
	}
	dataType, err := f.optionalString("data_type", string(DataUint))
	if err != nil {
		return nil, err
	}
	spec := &FixedBits{StartBit: start, BitLength: length, DataType: DataType(dataType)}

	if start < 0 || length < 1 || length > 64 {
		return nil, f.fail(ErrInvalidValue, "start_bit %d bit_length %d", start, length)
	}
	if start+length > bitfieldLength*8 {
		return nil, f.fail(ErrInvalidValue, "bits %d..%d outside of %d byte bitfield",
			start, start+length-1, bitfieldLength)
	}
	switch spec.DataType {
	case DataUint, DataInt:
	case DataBool:
		if length != 1 {
			return nil, f.fail(ErrInvalidValue, "bool requires bit_length 1, got %d", length)
		}
	default:
		return nil, f.fail(ErrInvalidValue, "unknown data_type '%s'", dataType)
	}
	return spec, nil
}

func parseOptionalItem(f *fieldMap, depth int) (*OptionalItem, error) {
	bitfield, err := f.requireString("bitfield_name")
	if err != nil {
		return nil, err
	}
	index, err := f.requireInt("bitfield_index")
	if err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, f.fail(ErrInvalidValue, "bitfield_index must not be negative, got %d", index)
	}
	fieldsRaw, err := f.requireList("data_fields")
	if err != nil {
		return nil, err
	}
	fields, err := parseItems(fieldsRaw, f.path+".data_fields", depth+1, 0)
	if err != nil {
		return nil, err
	}
	return &OptionalItem{BitfieldName: bitfield, BitfieldIndex: index, DataFields: fields}, nil
}

func parseRepetitive(f *fieldMap, depth int) (*Repetitive, error) {
	repRaw, err := f.requireObject("repetition_item")
	if err != nil {
		return nil, err
	}
	rep, err := parseItem(repRaw, f.path+".repetition_item", depth+1, 0)
	if err != nil {
		return nil, err
	}
	if rep.Name != RepetitionName {
		return nil, f.fail(ErrInvalidValue, "repetition_item must be named '%s', got '%s'", RepetitionName, rep.Name)
	}
	itemsRaw, err := f.requireList("items")
	if err != nil {
		return nil, err
	}
	items, err := parseItems(itemsRaw, f.path+".items", depth+1, 0)
	if err != nil {
		return nil, err
	}
	return &Repetitive{Repetition: rep, Items: items}, nil
}

// asMap accepts both map shapes produced by the YAML and JSON decoders.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// toInt converts integral document numbers. YAML yields int, JSON float64.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
