/*
 * rvsim - Configuration parser tests.
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

package configparser

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		err  bool
	}{
		{"0", 0, false},
		{"4096", 4096, false},
		{"0x1000", 4096, false},
		{"0X80000000", 0x80000000, false},
		{"4K", 4096, false},
		{"4k", 4096, false},
		{"2M", 2 * 1024 * 1024, false},
		{"1G", 1024 * 1024 * 1024, false},
		{"1T", 1024 * 1024 * 1024 * 1024, false},
		{"0x10K", 16 * 1024, false},
		{"", 0, true},
		{"zebra", 0, true},
		{"12Q", 0, true},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if c.err {
			if err == nil {
				t.Errorf("ParseSize(%q): want error, got %d", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSize(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSizeUnmarshal(t *testing.T) {
	var v struct {
		A Size `json:"a"`
		B Size `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a": "64M", "b": 4096}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A != 64*1024*1024 {
		t.Errorf("a = %d, want 64M", v.A)
	}
	if v.B != 4096 {
		t.Errorf("b = %d, want 4096", v.B)
	}
}

func TestLoadConfigDispatch(t *testing.T) {
	reset()
	type memSection struct {
		Size Size `json:"size"`
	}
	var got memSection
	Register("memory", func(raw json.RawMessage) error {
		return json.Unmarshal(raw, &got)
	})

	doc := []byte(`{"memory": {"size": "0x1000"}}`)
	if err := LoadConfig(doc); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := memSection{Size: 4096}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("section mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigUnknownSection(t *testing.T) {
	reset()
	Register("memory", func(raw json.RawMessage) error { return nil })
	if err := LoadConfig([]byte(`{"memroy": {}}`)); err == nil {
		t.Error("want error for unknown section, got nil")
	}
}

func TestLoadConfigSectionError(t *testing.T) {
	reset()
	Register("harts", func(raw json.RawMessage) error {
		var n int
		return json.Unmarshal(raw, &n)
	})
	if err := LoadConfig([]byte(`{"harts": "three"}`)); err == nil {
		t.Error("want error from section decoder, got nil")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	reset()
	Register("mcm", func(raw json.RawMessage) error { return nil })
	defer func() {
		if recover() == nil {
			t.Error("want panic on duplicate registration")
		}
	}()
	Register("MCM", func(raw json.RawMessage) error { return nil })
}
