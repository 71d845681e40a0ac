/*
 * rvsim - Memory-consistency-model checker.
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

// Package mcm implements the global memory-consistency-model checker: a
// configurable-size store merge buffer, bypass (store-to-load forwarding)
// paths, an informational cache-line state table, and a preserve-program-
// order (PPO) rule engine that flags a load observing bytes its program
// order predecessors have not yet made visible. The Engine is owned by the
// System and is single-threaded even across multiple harts — every command
// the Server receives is applied in arrival order, giving the checker a
// total order over test-bench events.
package mcm

import "github.com/virtcore/rvsim/rv/memory"

// Tag is a monotonic per-hart instruction tag assigned by the test-bench,
// used to correlate McmRead/McmInsert/McmBypass calls with the in-flight
// instruction they belong to.
type Tag uint64

// Config selects the line size and which PPO rules are active, so an
// implementation under test can be validated rule-by-rule.
type Config struct {
	LineSize   uint64 // Merge-buffer line size in bytes, power of two; 0 disables buffering.
	Rules      map[int]bool // PPO rule number -> enabled. Absent means enabled.
}

// PPO rule numbers accepted in Config.Rules. The finer architectural
// taxonomy (same-address RAW/WAW/WAR, aq/rl, address/data/control
// dependencies) is folded into the same-address visibility rule: every
// one of those edges ultimately demands that the producing store be
// visible before the consumer observes its bytes, and that is the check
// RuleSameAddrVisibility applies byte-by-byte.
const (
	RuleSameAddrVisibility = 1 // A read must not observe an undrained, unbypassed store.
	RuleDrainCompare       = 2 // A merge-buffer drain's bytes must match the buffered line.
	RuleFenceOrder         = 3 // A fence orders all earlier same-hart stores before later ops.
	RuleBypassMatch        = 4 // Forwarded bytes must match the forwarding store's bytes.
)

func (c Config) ruleEnabled(n int) bool {
	if c.Rules == nil {
		return true
	}
	v, ok := c.Rules[n]
	return !ok || v
}

// byteSource records which store (by tag) last wrote a given byte, so a
// later read from the same address can check whether that producer has
// been made visible (drained or validly bypassed) before the read commits.
// hart and seq place the write in the global command order for the
// fence-ordering rule.
type byteSource struct {
	tag     Tag
	hart    int
	seq     uint64
	visible bool // Drained to memory or bypassed to a read that already validated it.
}

type mergeLine struct {
	base  uint64
	bytes map[uint64]byte
	src   map[uint64]byteSource
}

// inflight is the per-tag record of a hart's in-flight instruction: the
// ordered list of memory sub-ops it has reported, used to resolve PPO
// predecessor closure for a read.
type inflight struct {
	hart int
	tag  Tag
	ops  []op
}

type op struct {
	isWrite bool
	pa      uint64
	size    int
}

// Violation is one failed PPO check, returned to the Server so it can
// report it to the test-bench as a failed Mcm command. SrcTag names the
// producing store when the failure involves a forwarding pair.
type Violation struct {
	Hart   int
	Tag    Tag
	SrcTag Tag
	Addr   uint64
	Why    string
}

// Engine is the checker's full state, reached exclusively through its
// command methods (never via field access) so command order is the only
// thing that determines outcome.
type Engine struct {
	cfg    Config
	mem    *memory.Memory
	lines  map[uint64]*mergeLine
	byAddr map[uint64]byteSource // Last writer per byte address, across all lines and bypassed stores.
	inflt  map[Tag]*inflight
	skip   []skipRange
	cache  map[uint64]bool // Informational I/D cache-line presence, keyed by line-aligned address.
	lastFenceSeq map[int]uint64
	seq    uint64
}

type skipRange struct {
	pa, size uint64
}

// New returns an Engine bound to the shared physical memory a drained
// merge-buffer line writes through to.
func New(mem *memory.Memory, cfg Config) *Engine {
	return &Engine{
		cfg:          cfg,
		mem:          mem,
		lines:        make(map[uint64]*mergeLine),
		byAddr:       make(map[uint64]byteSource),
		inflt:        make(map[Tag]*inflight),
		cache:        make(map[uint64]bool),
		lastFenceSeq: make(map[int]uint64),
	}
}

// NotifyFence implements hart.McmNotifier: a fence/CMO records the point
// in the global command order after which the issuing hart's earlier
// stores must all be visible before any later same-hart memory op is
// reported (see checkFenceOrder).
func (e *Engine) NotifyFence(hart int, kind string) {
	e.seq++
	e.lastFenceSeq[hart] = e.seq
}

// checkFenceOrder enforces RuleFenceOrder for a new memory sub-op on the
// given hart: every store that hart buffered before its most recent fence
// must already have been made visible (drained or bypassed).
func (e *Engine) checkFenceOrder(hart int, tag Tag) *Violation {
	if !e.cfg.ruleEnabled(RuleFenceOrder) {
		return nil
	}
	fence, ok := e.lastFenceSeq[hart]
	if !ok {
		return nil
	}
	for addr, src := range e.byAddr {
		if src.hart == hart && !src.visible && src.seq < fence {
			return &Violation{Hart: hart, Tag: tag, SrcTag: src.tag, Addr: addr,
				Why: "store from before a fence is still not visible"}
		}
	}
	return nil
}

func (e *Engine) entry(tag Tag, hart int) *inflight {
	f, ok := e.inflt[tag]
	if !ok {
		f = &inflight{hart: hart, tag: tag}
		e.inflt[tag] = f
	}
	return f
}

func lineBase(pa, lineSize uint64) uint64 {
	if lineSize == 0 {
		return pa
	}
	return pa &^ (lineSize - 1)
}

func (e *Engine) isSkipped(pa, size uint64) bool {
	for _, s := range e.skip {
		if pa < s.pa+s.size && pa+size > s.pa {
			return true
		}
	}
	return false
}

// McmSkipReadChk declares a byte range (typically a memory-mapped device
// register) whose observed value the checker must not second-guess.
func (e *Engine) McmSkipReadChk(pa, size, value uint64) {
	e.skip = append(e.skip, skipRange{pa: pa, size: size})
}

// McmRead records a load sub-op's observed bytes and verifies every PPO
// predecessor store to an overlapping address has already been made
// visible (drained, or bypassed to this same read).
func (e *Engine) McmRead(hart int, tag Tag, pa uint64, size int, data uint64) *Violation {
	f := e.entry(tag, hart)
	f.ops = append(f.ops, op{isWrite: false, pa: pa, size: size})
	e.seq++

	if v := e.checkFenceOrder(hart, tag); v != nil {
		return v
	}
	if e.isSkipped(pa, uint64(size)) || !e.cfg.ruleEnabled(RuleSameAddrVisibility) {
		return nil
	}
	for i := uint64(0); i < uint64(size); i++ {
		addr := pa + i
		src, ok := e.byAddr[addr]
		if !ok {
			continue
		}
		if src.tag == tag {
			continue
		}
		if !src.visible {
			return &Violation{Hart: hart, Tag: tag, Addr: addr, Why: "read observed a store that is not yet visible"}
		}
	}
	return nil
}

// McmInsert records that store bytes have entered the merge buffer (or,
// with a zero line size, bypass memory directly as an immediate write).
func (e *Engine) McmInsert(hart int, tag Tag, pa uint64, size int, data uint64) *Violation {
	f := e.entry(tag, hart)
	f.ops = append(f.ops, op{isWrite: true, pa: pa, size: size})
	e.seq++

	if v := e.checkFenceOrder(hart, tag); v != nil {
		return v
	}

	base := lineBase(pa, e.cfg.LineSize)
	line, ok := e.lines[base]
	if !ok {
		line = &mergeLine{base: base, bytes: make(map[uint64]byte), src: make(map[uint64]byteSource)}
		e.lines[base] = line
	}
	for i := 0; i < size; i++ {
		addr := pa + uint64(i)
		b := byte(data >> (8 * i))
		line.bytes[addr] = b
		src := byteSource{tag: tag, hart: hart, seq: e.seq, visible: false}
		line.src[addr] = src
		e.byAddr[addr] = src
	}
	if e.cfg.LineSize == 0 {
		return e.drainBytes(pa, size, nil, true)
	}
	return nil
}

// McmBypass records store-to-load forwarding: the read's observed bytes
// must equal the bytes the in-flight store actually produced, and on a
// match both sides are marked visible to each other without a drain. A
// mismatch (or a bypass from a store that never inserted those bytes)
// fails once, naming both tags.
func (e *Engine) McmBypass(hart int, readTag, storeTag Tag, pa uint64, size int, data uint64) *Violation {
	f := e.entry(readTag, hart)
	f.ops = append(f.ops, op{isWrite: false, pa: pa, size: size})
	e.seq++

	for i := 0; i < size; i++ {
		addr := pa + uint64(i)
		line, ok := e.lines[lineBase(addr, e.cfg.LineSize)]
		if !ok {
			return &Violation{Hart: hart, Tag: readTag, SrcTag: storeTag, Addr: addr,
				Why: "bypass from a store that has no buffered bytes here"}
		}
		src, haveSrc := line.src[addr]
		if !haveSrc || src.tag != storeTag {
			return &Violation{Hart: hart, Tag: readTag, SrcTag: storeTag, Addr: addr,
				Why: "bypass source tag does not own these bytes"}
		}
		if e.cfg.ruleEnabled(RuleBypassMatch) && line.bytes[addr] != byte(data>>(8*i)) {
			return &Violation{Hart: hart, Tag: readTag, SrcTag: storeTag, Addr: addr,
				Why: "bypass data does not match the forwarding store"}
		}
	}
	for i := 0; i < size; i++ {
		addr := pa + uint64(i)
		e.byAddr[addr] = byteSource{tag: readTag, hart: hart, seq: e.seq, visible: true}
	}
	return nil
}

// McmMbWrite drains a merge-buffer line: the buffered bytes under mask are
// compared against the test-bench-supplied data (unless skipCheck) and
// committed to backing memory. size is derived from the highest nonzero
// mask byte, since a partial-line drain masks off the bytes it does not
// own.
func (e *Engine) McmMbWrite(hart int, pa uint64, data uint64, mask uint64, skipCheck bool) *Violation {
	size := 1
	for i := 7; i >= 0; i-- {
		if (mask>>(8*i))&0xff != 0 {
			size = i + 1
			break
		}
	}
	return e.drainBytes(pa, size, &maskedCompare{data: data, mask: mask, skip: skipCheck}, false)
}

type maskedCompare struct {
	data, mask uint64
	skip       bool
}

func (e *Engine) drainBytes(pa uint64, size int, cmp *maskedCompare, fromBypassInsert bool) *Violation {
	for i := 0; i < size; i++ {
		addr := pa + uint64(i)
		base := lineBase(addr, e.cfg.LineSize)
		line, ok := e.lines[base]
		var b byte
		if ok {
			b = line.bytes[addr]
		}
		if cmp != nil && !cmp.skip && e.cfg.ruleEnabled(RuleDrainCompare) {
			shift := uint(8 * i)
			wantByte := byte((cmp.data >> shift) & 0xff)
			maskByte := byte((cmp.mask >> shift) & 0xff)
			if maskByte != 0 && (b&maskByte) != (wantByte&maskByte) {
				return &Violation{Addr: addr, Why: "merge-buffer drain data mismatch"}
			}
		}
		if err := e.mem.WriteByte(addr, b); err != nil {
			return &Violation{Addr: addr, Why: err.Error()}
		}
		if src, ok := e.byAddr[addr]; ok {
			src.visible = true
			e.byAddr[addr] = src
		}
		if ok {
			if src, ok2 := line.src[addr]; ok2 {
				src.visible = true
				line.src[addr] = src
			}
		}
	}
	return nil
}

// McmIFetch / McmIEvict / McmDFetch / McmDEvict / McmDWriteback feed the
// informational cache-line model; they never themselves fail, but a
// missing fetch before a PPO coherence edge can be cross-checked by a
// future rule extension keyed off this table.
func (e *Engine) McmIFetch(pa uint64)     { e.cache[lineBase(pa, e.cfg.LineSize)] = true }
func (e *Engine) McmIEvict(pa uint64)     { delete(e.cache, lineBase(pa, e.cfg.LineSize)) }
func (e *Engine) McmDFetch(pa uint64)     { e.cache[lineBase(pa, e.cfg.LineSize)] = true }
func (e *Engine) McmDEvict(pa uint64)     { delete(e.cache, lineBase(pa, e.cfg.LineSize)) }
func (e *Engine) McmDWriteback(pa uint64) { delete(e.cache, lineBase(pa, e.cfg.LineSize)) }

// Forget drops in-flight bookkeeping for a retired/drained tag, bounding
// memory growth across a long run.
func (e *Engine) Forget(tag Tag) {
	delete(e.inflt, tag)
}

// AddrState is one byte address's last-writer bookkeeping, exported for
// the snapshot writer/reader (byteSource's fields are otherwise kept
// unexported since nothing outside this package mutates them directly).
type AddrState struct {
	Tag     Tag
	Hart    int
	Seq     uint64
	Visible bool
}

// State is the serializable portion of an Engine's bookkeeping, for the
// snapshot writer/reader. Backing memory itself is snapshotted separately
// by the owning System, since it is shared with every hart.
type State struct {
	ByAddr    map[uint64]AddrState
	Cache     map[uint64]bool
	Seq       uint64
	LastFence map[int]uint64
}

// Snapshot returns a copy of the checker's in-flight/cache bookkeeping. The
// per-tag inflight op lists are intentionally not persisted: they exist
// only to resolve PPO predecessor closure for commands still to arrive in
// the current run, and a reloaded session resumes by receiving fresh Mcm
// commands from the test-bench, not by replaying old ones.
func (e *Engine) Snapshot() State {
	byAddr := make(map[uint64]AddrState, len(e.byAddr))
	for k, v := range e.byAddr {
		byAddr[k] = AddrState{Tag: v.tag, Hart: v.hart, Seq: v.seq, Visible: v.visible}
	}
	cache := make(map[uint64]bool, len(e.cache))
	for k, v := range e.cache {
		cache[k] = v
	}
	lastFence := make(map[int]uint64, len(e.lastFenceSeq))
	for k, v := range e.lastFenceSeq {
		lastFence[k] = v
	}
	return State{ByAddr: byAddr, Cache: cache, Seq: e.seq, LastFence: lastFence}
}

// Restore replaces the checker's in-flight/cache bookkeeping with a
// previously snapshotted State.
func (e *Engine) Restore(s State) {
	e.byAddr = make(map[uint64]byteSource, len(s.ByAddr))
	for k, v := range s.ByAddr {
		e.byAddr[k] = byteSource{tag: v.Tag, hart: v.Hart, seq: v.Seq, visible: v.Visible}
	}
	e.cache = make(map[uint64]bool, len(s.Cache))
	for k, v := range s.Cache {
		e.cache[k] = v
	}
	e.seq = s.Seq
	e.lastFenceSeq = make(map[int]uint64, len(s.LastFence))
	for k, v := range s.LastFence {
		e.lastFenceSeq[k] = v
	}
	e.lines = make(map[uint64]*mergeLine)
	e.inflt = make(map[Tag]*inflight)
}
