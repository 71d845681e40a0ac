/*
 * rvsim - Trace-file reader.
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

// Package tracereader parses the --csvlog trace format back into
// structured records, for tooling that diffs two runs (e.g. checking that
// two deterministic runs with the same seed produced identical
// interleavings). It is the inverse of util/trace's CSV writer.
package tracereader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/virtcore/rvsim/util/trace"
)

// Read parses a CSV trace stream. The first line must be the column
// header util/trace writes; a stream with a different layout is rejected
// rather than mis-parsed.
func Read(r io.Reader) ([]trace.Record, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("tracereader: %w", err)
		}
		return nil, fmt.Errorf("tracereader: empty trace")
	}
	if got := strings.TrimSpace(scanner.Text()); got != trace.Header() {
		return nil, fmt.Errorf("tracereader: unexpected header %q", got)
	}

	var records []trace.Record
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("tracereader: line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tracereader: %w", err)
	}
	return records, nil
}

// ReadFile parses a trace file by path.
func ReadFile(path string) ([]trace.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tracereader: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func parseLine(line string) (trace.Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 8 {
		return trace.Record{}, fmt.Errorf("want 8 fields, got %d", len(fields))
	}
	hart, err := strconv.Atoi(fields[0])
	if err != nil {
		return trace.Record{}, fmt.Errorf("hart: %w", err)
	}
	index, err := parseUint(fields[1])
	if err != nil {
		return trace.Record{}, fmt.Errorf("index: %w", err)
	}
	pc, err := parseUint(fields[2])
	if err != nil {
		return trace.Record{}, fmt.Errorf("pc: %w", err)
	}
	nextPC, err := parseUint(fields[3])
	if err != nil {
		return trace.Record{}, fmt.Errorf("nextpc: %w", err)
	}
	raw, err := parseUint(fields[4])
	if err != nil {
		return trace.Record{}, fmt.Errorf("raw: %w", err)
	}
	trapped, err := parseUint(fields[6])
	if err != nil {
		return trace.Record{}, fmt.Errorf("trapped: %w", err)
	}
	cause, err := parseUint(fields[7])
	if err != nil {
		return trace.Record{}, fmt.Errorf("cause: %w", err)
	}
	return trace.Record{
		Hart:    hart,
		Index:   index,
		PC:      pc,
		NextPC:  nextPC,
		Raw:     uint32(raw),
		Name:    fields[5],
		Trapped: trapped != 0,
		Cause:   cause,
	}, nil
}

// parseUint accepts the 0x-prefixed hex the writer emits and plain
// decimal, so hand-edited traces still load.
func parseUint(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// Diff compares two record streams and returns the index of the first
// mismatch, or -1 when they are identical. Length differences mismatch at
// the shorter stream's length.
func Diff(a, b []trace.Record) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	if len(a) != len(b) {
		return n
	}
	return -1
}
