// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package load reads a definition directory from disk:
//
//	<root>/framings/<name>.{yaml,yml,json,jsonc}
//	<root>/data_block.{yaml,yml,json,jsonc}
//	<root>/categories/*.{yaml,yml,json,jsonc}
package load

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MultiTechSystems/asterix-payload-schema/schema"
)

// Extensions lists the accepted definition file extensions in lookup order.
var Extensions = []string{".yaml", ".yml", ".json", ".jsonc"}

// Dir loads the framing, data block definition and every category below
// root into a definition set.
func Dir(root, framing string) (*schema.Set, error) {
	for _, sub := range []string{"", "framings", "categories"} {
		dir := filepath.Join(root, sub)
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("definition directory '%s' missing: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("definition path '%s' is not a directory", dir)
		}
	}

	framingPath, ok := find(filepath.Join(root, "framings"), framing)
	if !ok {
		return nil, fmt.Errorf("unknown framing '%s' in %s", framing, root)
	}
	raw, err := File(framingPath)
	if err != nil {
		return nil, err
	}
	fr, err := schema.ParseFraming(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", framingPath, err)
	}

	blockPath, ok := find(root, "data_block")
	if !ok {
		return nil, fmt.Errorf("data block definition missing in %s", root)
	}
	if raw, err = File(blockPath); err != nil {
		return nil, err
	}
	db, err := schema.ParseDataBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", blockPath, err)
	}

	table, err := Categories(filepath.Join(root, "categories"))
	if err != nil {
		return nil, err
	}
	return schema.NewSet(fr, db, table)
}

// Categories loads every definition file in dir, in file name order.
func Categories(dir string) (*schema.CategoryTable, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var categories []*schema.Category
	files := make(map[uint8]string)
	for _, entry := range entries {
		if entry.IsDir() || !accepted(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := File(path)
		if err != nil {
			return nil, err
		}
		cat, err := schema.ParseCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prev, dup := files[cat.Code]; dup {
			return nil, fmt.Errorf("%w: %d defined in %s and %s", schema.ErrDuplicateCategory, cat.Code, prev, path)
		}
		files[cat.Code] = path
		categories = append(categories, cat)
	}
	return schema.NewCategoryTable(categories...)
}

// File reads and decodes one definition document.
func File(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	raw, err := schema.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}

func find(dir, base string) (string, bool) {
	for _, ext := range Extensions {
		path := filepath.Join(dir, base+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func accepted(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
