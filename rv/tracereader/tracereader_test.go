/*
 * rvsim - Trace-reader test cases.
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

package tracereader

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/virtcore/rvsim/util/trace"
)

func TestRoundTrip(t *testing.T) {
	records := []trace.Record{
		{Hart: 0, Index: 1, PC: 0x1000, NextPC: 0x1004, Raw: 0x00500093, Name: "addi"},
		{Hart: 1, Index: 1, PC: 0x2000, NextPC: 0x2004, Raw: 0x00108093, Name: "addi"},
		{Hart: 0, Index: 2, PC: 0x1004, NextPC: 0x0, Raw: 0x00100073, Name: "ebreak", Trapped: true, Cause: 3},
	}

	var buf bytes.Buffer
	sink := trace.New(&buf, trace.MaskAll, true)
	sink.WriteHeader()
	for _, r := range records {
		sink.WriteRecord(r)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(records, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestRejectsWrongHeader(t *testing.T) {
	if _, err := Read(strings.NewReader("time,pc,op\n1,2,3\n")); err == nil {
		t.Error("want header rejection")
	}
}

func TestRejectsEmpty(t *testing.T) {
	if _, err := Read(strings.NewReader("")); err == nil {
		t.Error("want error on empty stream")
	}
}

func TestDiff(t *testing.T) {
	a := []trace.Record{{Hart: 0, PC: 1}, {Hart: 0, PC: 2}}
	b := []trace.Record{{Hart: 0, PC: 1}, {Hart: 1, PC: 2}}
	if got := Diff(a, a); got != -1 {
		t.Errorf("Diff(a,a) = %d, want -1", got)
	}
	if got := Diff(a, b); got != 1 {
		t.Errorf("Diff(a,b) = %d, want 1", got)
	}
	if got := Diff(a, a[:1]); got != 1 {
		t.Errorf("Diff(a, a[:1]) = %d, want 1", got)
	}
}
