// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"fmt"
)

// Default slot names used when a definition does not override them.
const (
	DefaultContentItem  = "content"
	DefaultCategoryItem = "category"
)

// PayloadMode selects which byte range of a decoded frame holds the data
// blocks.
type PayloadMode string

const (
	// PayloadContent uses the dynamic_bytes range named by ContentItem.
	PayloadContent PayloadMode = "content"
	// PayloadFrame uses the whole range consumed by the frame items. Used by
	// framings that carry data blocks back to back without an envelope.
	PayloadFrame PayloadMode = "frame"
)

// Category is the record layout of one message category.
type Category struct {
	Name  string
	Code  uint8
	Items []*Item
}

// Framing describes the transport layer around data blocks.
type Framing struct {
	Name        string
	HeaderItems []*Item
	FrameItems  []*Item
	ContentItem string
	Payload     PayloadMode
}

// DataBlock describes the {category, length, content} envelope of records.
type DataBlock struct {
	Items        []*Item
	CategoryItem string
	ContentItem  string
}

// ParseCategory builds a category from a {name, category, items} document.
func ParseCategory(raw map[string]any) (*Category, error) {
	f := &fieldMap{m: raw, path: "category"}
	name, err := f.requireString("name")
	if err != nil {
		return nil, err
	}
	f.name = name
	f.path = "category " + name
	code, err := f.requireInt("category")
	if err != nil {
		return nil, err
	}
	if code < 0 || code > 255 {
		return nil, f.fail(ErrInvalidValue, "category code %d outside 0..255", code)
	}
	itemsRaw, err := f.requireList("items")
	if err != nil {
		return nil, err
	}
	items, err := parseItems(itemsRaw, f.path+".items", 0, 0)
	if err != nil {
		return nil, err
	}
	return &Category{Name: name, Code: uint8(code), Items: items}, nil
}

// ParseFraming builds a framing from its document.
func ParseFraming(raw map[string]any) (*Framing, error) {
	f := &fieldMap{m: raw, path: "framing"}
	name, err := f.requireString("name")
	if err != nil {
		return nil, err
	}
	f.name = name
	f.path = "framing " + name

	fr := &Framing{Name: name}

	// header_items must be present but may be empty.
	headerRaw, ok := raw["header_items"].([]any)
	if !ok {
		if _, present := raw["header_items"]; present {
			return nil, f.fail(ErrInvalidValue, "header_items must be an array")
		}
		return nil, f.fail(ErrMissingKey, "header_items")
	}
	if fr.HeaderItems, err = parseItems(headerRaw, f.path+".header_items", 0, 0); err != nil {
		return nil, err
	}

	frameRaw, err := f.requireList("frame_items")
	if err != nil {
		return nil, err
	}
	if fr.FrameItems, err = parseItems(frameRaw, f.path+".frame_items", 0, 0); err != nil {
		return nil, err
	}

	if fr.ContentItem, err = f.optionalString("content_item", DefaultContentItem); err != nil {
		return nil, err
	}
	payload, err := f.optionalString("frame_payload", string(PayloadContent))
	if err != nil {
		return nil, err
	}
	fr.Payload = PayloadMode(payload)
	switch fr.Payload {
	case PayloadContent, PayloadFrame:
	default:
		return nil, f.fail(ErrInvalidValue, "unknown frame_payload '%s'", payload)
	}
	return fr, nil
}

// ParseDataBlock builds a data block definition from its document.
func ParseDataBlock(raw map[string]any) (*DataBlock, error) {
	f := &fieldMap{m: raw, path: "data_block"}
	itemsRaw, err := f.requireList("items")
	if err != nil {
		return nil, err
	}
	db := &DataBlock{}
	if db.Items, err = parseItems(itemsRaw, f.path+".items", 0, 0); err != nil {
		return nil, err
	}
	if db.CategoryItem, err = f.optionalString("category_item", DefaultCategoryItem); err != nil {
		return nil, err
	}
	if db.ContentItem, err = f.optionalString("content_item", DefaultContentItem); err != nil {
		return nil, err
	}
	return db, nil
}

// CategoryTable maps category codes to their definitions. It is read-only
// once built.
type CategoryTable struct {
	byCode [256]*Category
	n      int
}

// NewCategoryTable indexes categories by code, rejecting duplicates.
func NewCategoryTable(categories ...*Category) (*CategoryTable, error) {
	t := &CategoryTable{}
	for _, c := range categories {
		if c == nil {
			continue
		}
		if prev := t.byCode[c.Code]; prev != nil {
			return nil, fmt.Errorf("%w: %d defined by '%s' and '%s'",
				ErrDuplicateCategory, c.Code, prev.Name, c.Name)
		}
		t.byCode[c.Code] = c
		t.n++
	}
	return t, nil
}

// Get returns the definition for code.
func (t *CategoryTable) Get(code uint8) (*Category, bool) {
	c := t.byCode[code]
	return c, c != nil
}

// Len returns the number of defined categories.
func (t *CategoryTable) Len() int {
	return t.n
}

// Codes returns the defined codes in ascending order.
func (t *CategoryTable) Codes() []uint8 {
	codes := make([]uint8, 0, t.n)
	for code, c := range t.byCode {
		if c != nil {
			codes = append(codes, uint8(code))
		}
	}
	return codes
}

// Set is the immutable unit of definitions a decode runs against.
type Set struct {
	Framing    *Framing
	DataBlock  *DataBlock
	Categories *CategoryTable
}

// NewSet bundles a framing, data block definition and category table.
func NewSet(framing *Framing, dataBlock *DataBlock, categories *CategoryTable) (*Set, error) {
	switch {
	case framing == nil:
		return nil, errors.New("schema: set without framing")
	case dataBlock == nil:
		return nil, errors.New("schema: set without data block definition")
	case categories == nil:
		return nil, errors.New("schema: set without category table")
	}
	return &Set{Framing: framing, DataBlock: dataBlock, Categories: categories}, nil
}
