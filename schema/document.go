// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ParseDocument decodes a definition document. Documents starting with '{'
// are JSON and may carry comments and trailing commas; anything else is
// tried as YAML first with JSON as a fallback.
func ParseDocument(data []byte) (map[string]any, error) {
	var raw map[string]any
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(jsonc.ToJSON(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse definition: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse definition: %w", err)
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("failed to parse definition: %w: empty document", ErrInvalidValue)
	}
	return raw, nil
}

// ParseItemDocument parses a single item definition from YAML or JSON.
func ParseItemDocument(data []byte) (*Item, error) {
	raw, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return ParseItem(raw)
}
