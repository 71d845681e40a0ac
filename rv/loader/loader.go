/*
 * rvsim - Guest-image loader: ELF, Intel HEX and raw binary, optionally
 * LZ4-compressed.
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

// Package loader populates a System's physical memory from a guest binary
// image named by the --target CLI flag: an ELF32/ELF64 RISC-V executable,
// an Intel HEX text file, or a raw binary (optionally tagged with a
// colon-suffixed load address and a trailing ":u" write-back marker). Any
// of these may additionally be LZ4-compressed; a ".lz4" suffix on the path
// selects on-the-fly decompression before the format is sniffed.
package loader

import (
	"debug/elf"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"

	config "github.com/virtcore/rvsim/config/configparser"
	"github.com/virtcore/rvsim/rv/memory"
)

// Target is a parsed --target argument.
type Target struct {
	Path      string
	HasAddr   bool
	Addr      uint64
	WriteBack bool // Set by a ":u" suffix; Load does not act on it.
}

// ParseTarget splits "path[:addr[:u]]" per the CLI surface's raw-binary
// tagging convention. A bare path (no colon, or a Windows-style drive-
// letter colon) is returned with HasAddr false; Load then accepts only an
// ELF or HEX image and rejects a raw binary for lack of a load address.
func ParseTarget(spec string) (Target, error) {
	parts := strings.Split(spec, ":")
	// A single leading drive-letter colon ("C:\foo.bin") is not an address
	// tag; only treat a second colon-separated field as an address if it
	// parses as a number.
	if len(parts) == 1 {
		return Target{Path: spec}, nil
	}
	t := Target{Path: parts[0]}
	if len(parts) >= 2 && parts[1] != "" {
		addr, err := config.ParseSize(parts[1])
		if err != nil {
			// Not a numeric address tag; treat the whole spec as a bare path.
			return Target{Path: spec}, nil
		}
		t.Addr, t.HasAddr = addr, true
	}
	if len(parts) >= 3 && parts[2] == "u" {
		t.WriteBack = true
	}
	return t, nil
}

// Load opens t.Path (decompressing it first if it ends in ".lz4"), sniffs
// the format, and writes its contents into mem. It returns the entry point
// to reset the hart's PC to.
func Load(mem *memory.Memory, t Target) (entryPC uint64, err error) {
	data, err := readAll(t.Path)
	if err != nil {
		return 0, err
	}

	switch {
	case len(data) >= 4 && string(data[:4]) == elf.ELFMAG:
		return loadELF(mem, data)
	case looksLikeHex(data):
		addr, err := loadHex(mem, data)
		return addr, err
	default:
		if !t.HasAddr {
			return 0, fmt.Errorf("loader: raw binary %q requires a load address", t.Path)
		}
		if err := mem.WriteBulk(t.Addr, data); err != nil {
			return 0, fmt.Errorf("loader: raw binary %q: %w", t.Path, err)
		}
		return t.Addr, nil
	}
}

func readAll(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".lz4") {
		r = lz4.NewReader(f)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("loader: reading %q: %w", path, err)
	}
	return data, nil
}

func loadELF(mem *memory.Memory, data []byte) (uint64, error) {
	f, err := elf.NewFile(readerAt(data))
	if err != nil {
		return 0, fmt.Errorf("loader: parsing ELF: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_RISCV {
		return 0, fmt.Errorf("loader: ELF machine %v is not RISC-V", f.Machine)
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}
		seg := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(seg, 0); err != nil {
			return 0, fmt.Errorf("loader: reading PT_LOAD segment at %#x: %w", prog.Vaddr, err)
		}
		if err := mem.WriteBulk(prog.Vaddr, seg); err != nil {
			return 0, fmt.Errorf("loader: writing PT_LOAD segment at %#x: %w", prog.Vaddr, err)
		}
	}
	return f.Entry, nil
}

// readerAt adapts an in-memory byte slice to io.ReaderAt, since lz4
// decompression (when the target was ".lz4") already materialised the
// whole image in memory.
type readerAt []byte

func (r readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r)) {
		return 0, io.EOF
	}
	n := copy(p, r[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// looksLikeHex sniffs for Intel HEX's fixed leading ':' record marker.
func looksLikeHex(data []byte) bool {
	return len(data) > 0 && data[0] == ':'
}

// loadHex parses Intel HEX records (Data=00, EndOfFile=01, ExtendedLinear
// Address=04, ExtendedSegmentAddress=02, StartLinearAddress=05) and returns
// the start address from the last StartLinearAddress record seen, or 0 if
// none was present.
func loadHex(mem *memory.Memory, data []byte) (uint64, error) {
	var upper uint64
	var startAddr uint64
	lines := strings.Split(string(data), "\n")
	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if line[0] != ':' {
			return 0, fmt.Errorf("loader: hex line %d: missing ':' marker", lineNo+1)
		}
		rec, err := hex.DecodeString(line[1:])
		if err != nil || len(rec) < 5 {
			return 0, fmt.Errorf("loader: hex line %d: malformed record", lineNo+1)
		}
		byteCount := int(rec[0])
		addr := uint64(rec[1])<<8 | uint64(rec[2])
		recType := rec[3]
		if len(rec) != 5+byteCount {
			return 0, fmt.Errorf("loader: hex line %d: length mismatch", lineNo+1)
		}
		payload := rec[4 : 4+byteCount]

		switch recType {
		case 0x00:
			if err := mem.WriteBulk(upper+addr, payload); err != nil {
				return 0, fmt.Errorf("loader: hex line %d: %w", lineNo+1, err)
			}
		case 0x01:
			return startAddr, nil
		case 0x02:
			upper = uint64(payload[0])<<8 | uint64(payload[1])
			upper <<= 4
		case 0x04:
			upper = uint64(payload[0])<<8 | uint64(payload[1])
			upper <<= 16
		case 0x05:
			startAddr = uint64(payload[0])<<24 | uint64(payload[1])<<16 | uint64(payload[2])<<8 | uint64(payload[3])
		}
	}
	return startAddr, nil
}
