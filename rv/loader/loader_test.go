/*
 * rvsim - Image-loader test cases.
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

package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pierrec/lz4/v4"

	"github.com/virtcore/rvsim/rv/memory"
)

func TestParseTarget(t *testing.T) {
	cases := []struct {
		in   string
		want Target
	}{
		{"prog.elf", Target{Path: "prog.elf"}},
		{"image.bin:0x1000", Target{Path: "image.bin", HasAddr: true, Addr: 0x1000}},
		{"image.bin:4K", Target{Path: "image.bin", HasAddr: true, Addr: 4096}},
		{"image.bin:0x1000:u", Target{Path: "image.bin", HasAddr: true, Addr: 0x1000, WriteBack: true}},
		{"C:\\prog.bin", Target{Path: "C:\\prog.bin"}},
	}
	for _, c := range cases {
		got, err := ParseTarget(c.in)
		if err != nil {
			t.Errorf("ParseTarget(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseTarget(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestLoadRawBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.bin")
	payload := []byte{0x93, 0x00, 0x50, 0x00} // addi x1, x0, 5
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	mem := memory.New(1 << 16)
	entry, err := Load(mem, Target{Path: path, HasAddr: true, Addr: 0x200})
	if err != nil {
		t.Fatal(err)
	}
	if entry != 0x200 {
		t.Fatalf("entry = %#x, want 0x200", entry)
	}
	v, err := mem.Read(0x200, 4)
	if err != nil || uint32(v) != 0x00500093 {
		t.Fatalf("loaded word = %#x (%v)", v, err)
	}
}

func TestLoadRawBinaryWithoutAddrFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(memory.New(1<<16), Target{Path: path}); err == nil {
		t.Error("want error for raw binary with no load address")
	}
}

func TestLoadIntelHex(t *testing.T) {
	// One data record at 0x0100 and an EOF record; checksum is the two's
	// complement of the byte sum (04+01+00+00+93+00+50+00 = 0xE8 -> 0x18).
	hex := ":040100009300500018\n:00000001FF\n"

	dir := t.TempDir()
	path := filepath.Join(dir, "img.hex")
	if err := os.WriteFile(path, []byte(hex), 0o644); err != nil {
		t.Fatal(err)
	}
	mem := memory.New(1 << 16)
	if _, err := Load(mem, Target{Path: path}); err != nil {
		t.Fatal(err)
	}
	v, err := mem.Read(0x100, 4)
	if err != nil || uint32(v) != 0x00500093 {
		t.Fatalf("hex-loaded word = %#x (%v)", v, err)
	}
}

func TestLoadLz4CompressedRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.bin.lz4")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := lz4.NewWriter(f)
	if _, err := w.Write([]byte{0xef, 0xbe, 0xad, 0xde}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	mem := memory.New(1 << 16)
	if _, err := Load(mem, Target{Path: path, HasAddr: true, Addr: 0x80}); err != nil {
		t.Fatal(err)
	}
	v, err := mem.Read(0x80, 4)
	if err != nil || uint32(v) != 0xdeadbeef {
		t.Fatalf("lz4-loaded word = %#x (%v)", v, err)
	}
}
