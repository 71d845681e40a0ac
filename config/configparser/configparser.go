/*
 * rvsim - Configuration file parser.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package configparser dispatches the --configfile JSON document to the
// packages that own each section. A package needing configuration calls
// Register from an init(); LoadConfigFile then hands each top-level key's
// raw JSON to the matching callback. The parser itself knows nothing
// about any section's shape — the owning package does the decoding.
package configparser

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DecodeFunc receives the raw JSON value of its registered section.
type DecodeFunc func(raw json.RawMessage) error

var registry = map[string]DecodeFunc{}

// Register binds a top-level config key to its decoder. A duplicate
// registration is a programming error and panics at init time rather than
// silently shadowing the earlier one.
func Register(name string, decode DecodeFunc) {
	key := strings.ToLower(name)
	if _, ok := registry[key]; ok {
		panic("configparser: duplicate registration for " + name)
	}
	registry[key] = decode
}

// LoadConfigFile parses path as a single JSON object and dispatches each
// key to its registered decoder. An unregistered key is a configuration
// error: a typo should abort startup, not be ignored.
func LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("configparser: %w", err)
	}
	return LoadConfig(data)
}

// LoadConfig is LoadConfigFile over an in-memory document.
func LoadConfig(data []byte) error {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return fmt.Errorf("configparser: parsing config: %w", err)
	}
	for key, raw := range sections {
		decode, ok := registry[strings.ToLower(key)]
		if !ok {
			return fmt.Errorf("configparser: unknown section %q", key)
		}
		if err := decode(raw); err != nil {
			return fmt.Errorf("configparser: section %q: %w", key, err)
		}
	}
	return nil
}

// Size is a byte count (or address) that unmarshals from either a JSON
// number or a string honoring the CLI's numeric-argument rules: an
// optional 0x prefix and a K/M/G/T suffix scaled by 1024.
type Size uint64

func (s *Size) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		v, err := ParseSize(str)
		if err != nil {
			return err
		}
		*s = Size(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Size(v)
	return nil
}

// ParseSize parses a numeric argument: decimal or 0x-prefixed hex, with an
// optional trailing K/M/G/T scaled by 1024. Shared by the CLI flags and
// every config section that takes a size or address.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric argument")
	}
	scale := uint64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		scale, s = 1024, s[:len(s)-1]
	case 'M', 'm':
		scale, s = 1024*1024, s[:len(s)-1]
	case 'G', 'g':
		scale, s = 1024*1024*1024, s[:len(s)-1]
	case 'T', 't':
		scale, s = 1024*1024*1024*1024, s[:len(s)-1]
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base, s = 16, s[2:]
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("bad numeric argument: %w", err)
	}
	return v * scale, nil
}

// reset clears the registry; only tests use it, so each test file can
// register its own sections without cross-test interference.
func reset() {
	registry = map[string]DecodeFunc{}
}
