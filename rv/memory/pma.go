/*
 * rvsim - Physical memory attribute table.
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

package memory

import "sort"

// Pbmt is the page-based memory type an Sv39/48/57 leaf PTE can carry.
type Pbmt int

const (
	PbmtNone Pbmt = iota
	PbmtNC        // Non-cacheable, idempotent.
	PbmtIO        // Non-cacheable, non-idempotent.
)

// Pma is the set of attributes that apply to a physical address range.
type Pma struct {
	Base             uint64
	Size             uint64
	Cacheable        bool
	MisalignedOK     bool
	AmoOK            bool
	IoRegion         bool // Memory-mapped device: MCM same-region ordering applies.
}

// PmaMgr holds a sorted, non-overlapping list of Pma regions plus a default
// that applies outside all of them. Region order never changes after
// construction in this core, so lookups are a binary search.
type PmaMgr struct {
	regions []Pma
	deflt   Pma
}

// NewPmaMgr returns a manager whose default region spans all of memory as
// ordinary cacheable, aligned-access RAM.
func NewPmaMgr(size uint64) *PmaMgr {
	return &PmaMgr{
		deflt: Pma{Base: 0, Size: size, Cacheable: true, MisalignedOK: false, AmoOK: true},
	}
}

// AddRegion installs an explicit PMA override, e.g. a memory-mapped device
// window configured from the JSON config file.
func (p *PmaMgr) AddRegion(r Pma) {
	p.regions = append(p.regions, r)
	sort.Slice(p.regions, func(i, j int) bool { return p.regions[i].Base < p.regions[j].Base })
}

// Lookup returns the Pma covering addr.
func (p *PmaMgr) Lookup(addr uint64) Pma {
	lo, hi := 0, len(p.regions)
	for lo < hi {
		mid := (lo + hi) / 2
		r := p.regions[mid]
		if addr < r.Base {
			hi = mid
		} else if addr >= r.Base+r.Size {
			lo = mid + 1
		} else {
			return r
		}
	}
	return p.deflt
}

// Override applies the PBMT bits from a leaf PTE on top of the statically
// configured Pma for the same address, per VirtMem's walk result.
func Override(base Pma, bmt Pbmt) Pma {
	switch bmt {
	case PbmtNC:
		base.Cacheable = false
	case PbmtIO:
		base.Cacheable = false
		base.IoRegion = true
	}
	return base
}
