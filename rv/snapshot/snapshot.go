/*
 * rvsim - Snapshot save/restore.
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

// Package snapshot persists and reloads a system.System: the full memory
// image (gzip- or lz4-compressed per configuration), every hart's
// registers/CSRs, and the Mcm checker's bookkeeping. A snapshot directory
// is self-describing — it records the hart count, XLEN and memory size it
// was taken with, and Load rejects a directory whose header does not match
// the System it is asked to populate.
package snapshot

import (
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/virtcore/rvsim/rv/hart"
	"github.com/virtcore/rvsim/rv/mcm"
	"github.com/virtcore/rvsim/rv/system"
)

// Compression selects the codec applied to the memory image.
type Compression int

const (
	Gzip Compression = iota
	Lz4
)

const (
	metaFile   = "meta.json"
	memFile    = "memory.img"
	hartsFile  = "harts.gob"
	mcmFile    = "mcm.gob"
)

// meta is the self-describing header every snapshot directory carries.
type meta struct {
	Harts       int
	XLEN        int
	MemorySize  uint64
	Compression Compression
	HasMcm      bool
}

// Save writes dir (creating it if necessary) with sys's full state.
func Save(dir string, sys *system.System, compression Compression) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: creating %q: %w", dir, err)
	}

	m := meta{
		Harts:       len(sys.Harts),
		XLEN:        sys.Config.XLEN,
		MemorySize:  sys.Memory.Size(),
		Compression: compression,
		HasMcm:      sys.Mcm != nil,
	}
	if err := writeJSON(filepath.Join(dir, metaFile), m); err != nil {
		return err
	}

	if err := saveMemory(filepath.Join(dir, memFile), sys, compression); err != nil {
		return err
	}

	states := make([]hart.SnapshotState, len(sys.Harts))
	for i, h := range sys.Harts {
		states[i] = h.SnapshotState()
	}
	if err := writeGob(filepath.Join(dir, hartsFile), states); err != nil {
		return err
	}

	if sys.Mcm != nil {
		if err := writeGob(filepath.Join(dir, mcmFile), sys.Mcm.Snapshot()); err != nil {
			return err
		}
	}
	return nil
}

// Load reads dir into sys, which must already be constructed with the same
// hart count, XLEN and memory size the snapshot was taken with; a mismatch
// is rejected rather than silently truncated or zero-extended.
func Load(dir string, sys *system.System) error {
	var m meta
	if err := readJSON(filepath.Join(dir, metaFile), &m); err != nil {
		return err
	}
	if m.Harts != len(sys.Harts) || m.XLEN != sys.Config.XLEN || m.MemorySize != sys.Memory.Size() {
		return fmt.Errorf("snapshot: %q was taken with %d hart(s)/%d-bit/%d bytes, system has %d/%d-bit/%d bytes",
			dir, m.Harts, m.XLEN, m.MemorySize, len(sys.Harts), sys.Config.XLEN, sys.Memory.Size())
	}
	if m.HasMcm != (sys.Mcm != nil) {
		return fmt.Errorf("snapshot: %q Mcm-enabled=%v does not match system", dir, m.HasMcm)
	}

	if err := loadMemory(filepath.Join(dir, memFile), sys, m.Compression); err != nil {
		return err
	}

	states := make([]hart.SnapshotState, len(sys.Harts))
	if err := readGobInto(filepath.Join(dir, hartsFile), &states); err != nil {
		return err
	}
	for i, h := range sys.Harts {
		h.RestoreState(states[i])
	}

	if m.HasMcm {
		var st mcm.State
		if err := readGobInto(filepath.Join(dir, mcmFile), &st); err != nil {
			return err
		}
		sys.Mcm.Restore(st)
	}
	return nil
}

func saveMemory(path string, sys *system.System, c Compression) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()

	var w io.WriteCloser
	switch c {
	case Lz4:
		w = lz4.NewWriter(f)
	default:
		w = gzip.NewWriter(f)
	}
	if _, err := w.Write(sys.Memory.Raw()); err != nil {
		return fmt.Errorf("snapshot: writing memory image: %w", err)
	}
	return w.Close()
}

func loadMemory(path string, sys *system.System, c Compression) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()

	var r io.Reader
	switch c {
	case Lz4:
		r = lz4.NewReader(f)
	default:
		gr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		defer gr.Close()
		r = gr
	}
	raw := sys.Memory.Raw()
	if _, err := io.ReadFull(r, raw); err != nil && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("snapshot: reading memory image: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("snapshot: writing %q: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("snapshot: reading %q: %w", path, err)
	}
	return nil
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("snapshot: writing %q: %w", path, err)
	}
	return nil
}

func readGobInto(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("snapshot: reading %q: %w", path, err)
	}
	return nil
}
