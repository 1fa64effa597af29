/*
SPDX-License-Identifier: Apache-2.0

Copyright 2026 Project Shepherd

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package fileformat selects and drives the on-disk serialization of the
// configuration tree. All three encodings produce the same key layout: the
// structs carry JSON tags and the YAML and TOML codecs route through the
// JSON representation.
package fileformat

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"sigs.k8s.io/yaml"
)

// Format is one of the supported tree encodings.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
	TOML Format = "toml"
)

// Parse validates a format name from configuration.
func Parse(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case YAML:
		return YAML, nil
	case JSON:
		return JSON, nil
	case TOML:
		return TOML, nil
	default:
		return "", fmt.Errorf("unsupported file format %q (want yaml, json or toml)", s)
	}
}

// FromPath derives the format from a file extension.
func FromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	switch ext {
	case "yaml", "yml":
		return YAML, nil
	case "json":
		return JSON, nil
	case "toml":
		return TOML, nil
	default:
		return "", fmt.Errorf("unsupported file extension %q in %s", ext, path)
	}
}

// Ext returns the file extension used for this format, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// Marshal renders v in this format. The struct's JSON tags decide the keys
// for every encoding.
func (f Format) Marshal(v any) ([]byte, error) {
	switch f {
	case YAML:
		return yaml.Marshal(v)
	case JSON:
		return json.MarshalIndent(v, "", "  ")
	case TOML:
		// go-toml keys off toml tags, not json tags. Round-tripping through
		// a generic map keeps the key names identical across encodings.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var tree map[string]any
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, err
		}
		return toml.Marshal(tree)
	default:
		return nil, fmt.Errorf("unsupported file format %q", f)
	}
}

// Unmarshal decodes data in this format into v.
func (f Format) Unmarshal(data []byte, v any) error {
	switch f {
	case YAML:
		return yaml.Unmarshal(data, v)
	case JSON:
		return json.Unmarshal(data, v)
	case TOML:
		var tree map[string]any
		if err := toml.Unmarshal(data, &tree); err != nil {
			return err
		}
		raw, err := json.Marshal(tree)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, v)
	default:
		return fmt.Errorf("unsupported file format %q", f)
	}
}

// Decode reads a file's contents based on its extension rather than a
// configured format. Used when classifying working-tree files that may
// predate a format change.
func Decode(path string, data []byte, v any) error {
	f, err := FromPath(path)
	if err != nil {
		return err
	}
	return f.Unmarshal(data, v)
}
