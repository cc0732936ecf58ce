// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Decoder turns raw file contents into an action set.
type Decoder interface {
	Decode(data []byte, set *ActionSet) error
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte, set *ActionSet) error

// Decode implements Decoder.
func (f DecoderFunc) Decode(data []byte, set *ActionSet) error { return f(data, set) }

// JSONDecoder decodes the JSON wire format.
var JSONDecoder Decoder = DecoderFunc(func(data []byte, set *ActionSet) error {
	return json.Unmarshal(data, set)
})

// YAMLDecoder decodes the YAML wire format.
var YAMLDecoder Decoder = DecoderFunc(func(data []byte, set *ActionSet) error {
	return yaml.Unmarshal(data, set)
})

// Loader reads action-set files, choosing a decoder by file extension.
// Files with an unknown extension are auto-detected as JSON, then YAML.
type Loader struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewLoader creates a loader with the JSON and YAML backends registered.
func NewLoader() *Loader {
	l := &Loader{decoders: make(map[string]Decoder)}
	l.Register(".json", JSONDecoder)
	l.Register(".yaml", YAMLDecoder)
	l.Register(".yml", YAMLDecoder)
	return l
}

// Register binds a decoder to a file extension such as ".toml".
func (l *Loader) Register(ext string, dec Decoder) {
	ext = normalizeExt(ext)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decoders[ext] = dec
}

// Extensions lists the registered extensions in sorted order.
func (l *Loader) Extensions() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	exts := make([]string, 0, len(l.decoders))
	for ext := range l.decoders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Handles reports whether path has a registered extension.
func (l *Loader) Handles(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.decoders[normalizeExt(filepath.Ext(path))]
	return ok
}

// LoadFile reads, decodes and validates one action set. A set without a
// name takes the file's base name.
func (l *Loader) LoadFile(path string) (*ActionSet, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("action set path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set, err := l.Decode(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if strings.TrimSpace(set.Name) == "" {
		set.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Decode decodes data with the decoder registered for ext, falling back to
// auto-detection. The result is not validated.
func (l *Loader) Decode(ext string, data []byte) (*ActionSet, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("empty action set payload")
	}
	l.mu.RLock()
	dec, ok := l.decoders[normalizeExt(ext)]
	l.mu.RUnlock()
	if ok {
		var set ActionSet
		if err := dec.Decode(data, &set); err != nil {
			return nil, fmt.Errorf("decode action set: %w", err)
		}
		return &set, nil
	}
	return decodeAuto(data)
}

// LoadPaths loads every file named in paths. Directories are scanned one
// level deep for files with a registered extension.
func (l *Loader) LoadPaths(paths []string) ([]*ActionSet, error) {
	var sets []*ActionSet
	for _, p := range paths {
		files, err := l.expand(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			set, err := l.LoadFile(f)
			if err != nil {
				return nil, err
			}
			sets = append(sets, set)
		}
	}
	return sets, nil
}

func (l *Loader) expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		full := filepath.Join(path, e.Name())
		if l.Handles(full) {
			files = append(files, full)
		}
	}
	sort.Strings(files)
	return files, nil
}

func decodeAuto(data []byte) (*ActionSet, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var set ActionSet
		if err := json.Unmarshal(data, &set); err == nil {
			return &set, nil
		}
	}
	var set ActionSet
	if err := yaml.Unmarshal(data, &set); err == nil {
		return &set, nil
	}
	return nil, fmt.Errorf("unsupported action set format")
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

var defaultLoader = NewLoader()

// LoadFile loads an action set with the default JSON/YAML loader.
func LoadFile(path string) (*ActionSet, error) {
	return defaultLoader.LoadFile(path)
}
