/*
 * rvsim - Byte-addressable memory and physical-memory-attribute lookup.
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

// Package memory implements the flat physical address space shared by every
// hart in a System, plus the physical-memory-attribute (PMA) table that
// governs cacheability, misaligned-access legality and the PBMT override
// VirtMem applies from leaf PTEs. Memory is owned by the System and reached
// by harts through a non-owning pointer — there is no global state here.
package memory

import "fmt"

// Memory is a flat byte-addressable physical address space.
type Memory struct {
	bytes []byte
	size  uint64
	pmas  *PmaMgr
}

// New allocates a zero-filled memory of the given size in bytes.
func New(size uint64) *Memory {
	return &Memory{bytes: make([]byte, size), size: size, pmas: NewPmaMgr(size)}
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint64 { return m.size }

// Pmas returns the PMA manager backing this memory, for VirtMem and the
// hart's access-legality checks.
func (m *Memory) Pmas() *PmaMgr { return m.pmas }

// InRange reports whether [addr, addr+size) lies entirely within memory.
func (m *Memory) InRange(addr uint64, size uint64) bool {
	if size == 0 {
		return addr <= m.size
	}
	end := addr + size
	return end >= addr && end <= m.size
}

// ReadByte/WriteByte are the primitive accessors; wider reads/writes are
// expressed in terms of these so PMA/coherence hooks have one choke point.
func (m *Memory) ReadByte(addr uint64) (byte, error) {
	if addr >= m.size {
		return 0, fmt.Errorf("memory: read out of range at %#x (size %#x)", addr, m.size)
	}
	return m.bytes[addr], nil
}

func (m *Memory) WriteByte(addr uint64, value byte) error {
	if addr >= m.size {
		return fmt.Errorf("memory: write out of range at %#x (size %#x)", addr, m.size)
	}
	m.bytes[addr] = value
	return nil
}

// Read copies size bytes (1,2,4,8) at addr into a little-endian uint64.
func (m *Memory) Read(addr uint64, size int) (uint64, error) {
	if !m.InRange(addr, uint64(size)) {
		return 0, fmt.Errorf("memory: read of %d bytes out of range at %#x", size, addr)
	}
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(m.bytes[addr+uint64(i)]) << (8 * i)
	}
	return v, nil
}

// Write stores the low size bytes of value, little-endian, at addr.
func (m *Memory) Write(addr uint64, size int, value uint64) error {
	if !m.InRange(addr, uint64(size)) {
		return fmt.Errorf("memory: write of %d bytes out of range at %#x", size, addr)
	}
	for i := 0; i < size; i++ {
		m.bytes[addr+uint64(i)] = byte(value >> (8 * i))
	}
	return nil
}

// ReadBulk/WriteBulk copy directly to/from a caller buffer, used by the
// ELF/HEX loader and by snapshot save/restore.
func (m *Memory) ReadBulk(addr uint64, dst []byte) error {
	if !m.InRange(addr, uint64(len(dst))) {
		return fmt.Errorf("memory: bulk read of %d bytes out of range at %#x", len(dst), addr)
	}
	copy(dst, m.bytes[addr:addr+uint64(len(dst))])
	return nil
}

func (m *Memory) WriteBulk(addr uint64, src []byte) error {
	if !m.InRange(addr, uint64(len(src))) {
		return fmt.Errorf("memory: bulk write of %d bytes out of range at %#x", len(src), addr)
	}
	copy(m.bytes[addr:addr+uint64(len(src))], src)
	return nil
}

// Raw exposes the backing slice for snapshot compression; callers must not
// retain it past the snapshot write.
func (m *Memory) Raw() []byte { return m.bytes }
