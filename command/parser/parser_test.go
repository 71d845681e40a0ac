/*
 * rvsim - Console parser test cases.
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

package parser

import (
	"testing"

	"github.com/virtcore/rvsim/rv/csr"
)

func TestMatchCommandAbbreviations(t *testing.T) {
	cases := []struct {
		in   string
		want string // "" means no match
	}{
		{"s", "step"},
		{"step", "step"},
		{"ex", "examine"},
		{"e", ""},   // Below examine's minimum.
		{"q", ""},   // Below quit's minimum.
		{"quit", "quit"},
		{"tr", "translate"},
		{"zebra", ""},
	}
	for _, c := range cases {
		got := matchCommand(c.in)
		switch {
		case c.want == "" && got != nil:
			t.Errorf("matchCommand(%q) = %q, want no match", c.in, got.Name)
		case c.want != "" && (got == nil || got.Name != c.want):
			t.Errorf("matchCommand(%q) = %v, want %q", c.in, got, c.want)
		}
	}
}

func TestResolveResource(t *testing.T) {
	r, err := resolveResource("x17")
	if err != nil || r.kind != 'x' || r.num != 17 {
		t.Errorf("x17 -> %+v (%v)", r, err)
	}
	r, err = resolveResource("f3")
	if err != nil || r.kind != 'f' || r.num != 3 {
		t.Errorf("f3 -> %+v (%v)", r, err)
	}
	r, err = resolveResource("pc")
	if err != nil || r.kind != 'p' {
		t.Errorf("pc -> %+v (%v)", r, err)
	}
	r, err = resolveResource("mstatus")
	if err != nil || r.kind != 'c' || r.csr != csr.Mstatus {
		t.Errorf("mstatus -> %+v (%v)", r, err)
	}
	r, err = resolveResource("0x300")
	if err != nil || r.kind != 'c' || r.csr != csr.Mstatus {
		t.Errorf("0x300 -> %+v (%v)", r, err)
	}
	if _, err = resolveResource("x99"); err == nil {
		t.Error("x99 should not resolve")
	}
	if _, err = resolveResource("bogus"); err == nil {
		t.Error("bogus should not resolve")
	}
}

func TestCompleteCmdCommandWord(t *testing.T) {
	got := CompleteCmd("st")
	found := false
	for _, s := range got {
		if s == "step " {
			found = true
		}
	}
	if !found {
		t.Errorf("CompleteCmd(\"st\") = %v, want to include \"step \"", got)
	}
}
