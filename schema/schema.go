// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package schema provides the item definition model for ASTERIX-style
// surveillance data. An item definition is a declarative description of how
// one named field is laid out in the binary stream; categories, framings and
// data blocks are lists of item definitions. Definitions are built once from
// YAML/JSON documents and are read-only afterwards.
package schema

// Type is the item type tag of a definition.
type Type string

const (
	TypeFixedBytes        Type = "fixed_bytes"
	TypeSkipBytes         Type = "skip_bytes"
	TypeDynamicBytes      Type = "dynamic_bytes"
	TypeCompound          Type = "compound"
	TypeExtendableBits    Type = "extendable_bits"
	TypeExtendable        Type = "extendable"
	TypeFixedBitfield     Type = "fixed_bitfield"
	TypeFixedByteBitfield Type = "fixed_byte_bitfield" // alias of fixed_bitfield
	TypeFixedBits         Type = "fixed_bits"
	TypeOptionalItem      Type = "optional_item"
	TypeRepetitive        Type = "repetitive"
)

// DataType selects the numeric or textual interpretation of raw bytes/bits.
type DataType string

const (
	DataString   DataType = "string"
	DataUint     DataType = "uint"
	DataInt      DataType = "int"
	DataBin      DataType = "bin"
	DataBool     DataType = "bool"
	DataBitfield DataType = "bitfield"
)

// MaxIntegerBytes is the widest integer a fixed_bytes item may assemble.
const MaxIntegerBytes = 8

// MaxNesting bounds the depth of nested item lists accepted from a document.
const MaxNesting = 64

// RepetitionName is the mandatory name of a repetitive item's count field.
const RepetitionName = "rep"

// ExtendName is the mandatory flag field of each extendable group.
const ExtendName = "extend"

// Item is one node of a definition tree. Spec holds the type-specific
// payload and is always one of the pointer types below.
type Item struct {
	Name string
	Type Type
	Spec Spec
}

// Spec is implemented by the payload struct of every item type.
type Spec interface {
	spec()
}

// FixedBytes reads a fixed number of bytes.
type FixedBytes struct {
	Length       int
	DataType     DataType
	ReverseBytes bool // lowest address is least significant
	ReverseBits  bool // bit-reverse each byte before assembly
}

// SkipBytes discards a fixed number of bytes.
type SkipBytes struct {
	Length int
}

// DynamicBytes records a byte range whose length was decoded earlier.
type DynamicBytes struct {
	LengthVariable   string
	SubtractPrevious bool
}

// Compound decodes a field specification followed by its items.
type Compound struct {
	FieldSpecification *Item
	Items              []*Item
}

// ExtendableBits reads bytes as bits until an extension bit is clear.
type ExtendableBits struct {
	DataType    DataType
	ReverseBits bool // MSB first within each byte
}

// Extendable repeats its items while each group's extend flag is set.
type Extendable struct {
	Items []*Item
}

// FixedBitfield is a byte group split into bit windows.
type FixedBitfield struct {
	Length   int
	Optional bool
	// OptionalVariable is a dotted path resolved in the parent object.
	OptionalVariable string
	OptionalValue    any
	Items            []*Item
}

// FixedBits is a bit window inside the enclosing FixedBitfield.
type FixedBits struct {
	StartBit  int
	BitLength int
	DataType  DataType
}

// OptionalItem decodes its fields only if a presence bit is set.
type OptionalItem struct {
	BitfieldName  string
	BitfieldIndex int
	DataFields    []*Item
}

// Repetitive decodes a count and then that many copies of its items.
type Repetitive struct {
	Repetition *Item
	Items      []*Item
}

func (*FixedBytes) spec()     {}
func (*SkipBytes) spec()      {}
func (*DynamicBytes) spec()   {}
func (*Compound) spec()       {}
func (*ExtendableBits) spec() {}
func (*Extendable) spec()     {}
func (*FixedBitfield) spec()  {}
func (*FixedBits) spec()      {}
func (*OptionalItem) spec()   {}
func (*Repetitive) spec()     {}
