/*
 * rvsim - External-control dispatch loop.
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

package server

import (
	"encoding/binary"
	"fmt"

	"github.com/virtcore/rvsim/rv/csr"
	"github.com/virtcore/rvsim/rv/hart"
	"github.com/virtcore/rvsim/rv/mcm"
	"github.com/virtcore/rvsim/rv/system"
	"github.com/virtcore/rvsim/rv/virtmem"
)

// DumpMemoryFunc is called by the DumpMemory command to flush a memory-state
// dump file; the server package has no opinion on the dump's on-disk
// format, so the CLI layer supplies the implementation.
type DumpMemoryFunc func() error

// Dispatcher applies one Request to a System and returns the Reply, driving
// every hart/Mcm operation the wire protocol names. It holds no connection
// state of its own so the same Dispatcher can serve both the TCP and
// shared-memory transports.
type Dispatcher struct {
	Sys        *system.System
	DumpMemory DumpMemoryFunc
	quit       bool

	loadFinished bool
}

// Quit reports whether a Quit command has been processed.
func (d *Dispatcher) Quit() bool { return d.quit }

// Handle applies req and returns the reply to send back.
func (d *Dispatcher) Handle(req Request) Reply {
	h := d.Sys.Hart(int(req.Hart))
	if h == nil && req.Type != TypeQuit {
		return invalidReply(&req)
	}

	switch req.Type {
	case TypePeek:
		return d.peek(req, h)
	case TypePoke:
		return d.poke(req, h)
	case TypeStep:
		return d.step(req, h)
	case TypeChangeCount:
		rep := okReply(&req)
		rep.Value = uint64(len(h.Deltas()))
		return rep
	case TypeChange:
		return d.change(req, h)
	case TypeReset:
		h.Reset(req.Address)
		return okReply(&req)
	case TypeEnterDebug:
		h.EnterDebug(uint32(req.Value))
		return okReply(&req)
	case TypeExitDebug:
		h.ExitDebug()
		return okReply(&req)
	case TypeCancelDiv:
		h.CancelDiv()
		return okReply(&req)
	case TypeCancelLr:
		h.CancelLr()
		return okReply(&req)
	case TypeNmi:
		h.Nmi(req.Value)
		return okReply(&req)
	case TypeClearNmi:
		h.ClearNmi()
		return okReply(&req)
	case TypeTranslate:
		return d.translate(req, h)
	case TypePageTableWalk:
		return d.pageTableWalk(req, h)
	case TypeMcmRead, TypeMcmInsert, TypeMcmBypass, TypeMcmMbWrite,
		TypeMcmIFetch, TypeMcmIEvict, TypeMcmDFetch, TypeMcmDEvict,
		TypeMcmDWriteback, TypeMcmSkipReadChk:
		return d.mcmCommand(req, h)
	case TypeCheckInterrupt:
		return d.checkInterrupt(req, h)
	case TypeInjectException:
		h.InjectException(req.Value, req.Address)
		return okReply(&req)
	case TypeDumpMemory:
		if d.DumpMemory != nil {
			if err := d.DumpMemory(); err != nil {
				return invalidReply(&req)
			}
		}
		return okReply(&req)
	case TypeLoadFinished:
		return d.loadFinishedCmd(req)
	case TypeSeiPin:
		h.SetSeiPin(req.Value != 0)
		return okReply(&req)
	case TypeQuit:
		d.quit = true
		return okReply(&req)
	default:
		return invalidReply(&req)
	}
}

func (d *Dispatcher) peek(req Request, h *hart.Hart) Reply {
	rep := okReply(&req)
	switch req.Resource {
	case ResourceXReg:
		rep.Value = h.PeekX(int(req.Address))
	case ResourceFReg:
		rep.Value = h.PeekF(int(req.Address))
	case ResourceCSR:
		v, ok := h.PeekCSR(csr.Number(req.Address))
		if !ok {
			return invalidReply(&req)
		}
		rep.Value = v
	case ResourceMemory:
		v, err := d.Sys.Memory.Read(req.Address, int(req.Size))
		if err != nil {
			return invalidReply(&req)
		}
		rep.Value = v
	case ResourcePC:
		rep.Value = h.PC
	case ResourceSpecial:
		v, ok := h.PeekSpecial(hart.Special(req.Address))
		if !ok {
			return invalidReply(&req)
		}
		rep.Value = v
	case ResourceVecReg:
		if req.Address > 31 {
			return invalidReply(&req)
		}
		data := h.PeekV(int(req.Address))
		n := copy(rep.Payload[:], data)
		rep.Size = uint32(n)
		rep.Value = binary.LittleEndian.Uint64(rep.Payload[:8])
	default:
		return invalidReply(&req)
	}
	return rep
}

// loadFinishedCmd runs the one-time post-load validation: the controller
// declares the initial memory image fully poked in, and invariants that
// would be wasteful to re-check on every poke (trap-vector alignment, PC
// within physical memory) are checked here once instead.
func (d *Dispatcher) loadFinishedCmd(req Request) Reply {
	for _, h := range d.Sys.Harts {
		mtvec, _ := h.PeekCSR(csr.Mtvec)
		if mtvec&0x3 > 1 {
			return invalidReply(&req)
		}
		if !d.Sys.Memory.InRange(h.PC, 4) {
			return invalidReply(&req)
		}
	}
	d.loadFinished = true
	return okReply(&req)
}

func (d *Dispatcher) poke(req Request, h *hart.Hart) Reply {
	switch req.Resource {
	case ResourceXReg:
		h.PokeX(int(req.Address), req.Value)
	case ResourceFReg:
		h.PokeF(int(req.Address), req.Value)
	case ResourceCSR:
		if !h.PokeCSR(csr.Number(req.Address), req.Value) {
			return invalidReply(&req)
		}
	case ResourceMemory:
		if err := d.Sys.Memory.Write(req.Address, int(req.Size), req.Value); err != nil {
			return invalidReply(&req)
		}
	case ResourcePC:
		h.PokePC(req.Value)
	case ResourceVecReg:
		if req.Address > 31 || int(req.Size) > len(req.Payload) {
			return invalidReply(&req)
		}
		h.PokeV(int(req.Address), req.Payload[:req.Size])
	default:
		return invalidReply(&req)
	}
	return okReply(&req)
}

// step retires exactly one instruction and reports the post-step PC, the
// opcode that executed, the delta count, and the outcome.
func (d *Dispatcher) step(req Request, h *hart.Hart) Reply {
	outcome := h.Step(hart.Limits{})
	raw, _ := h.LastInst()
	rep := okReply(&req)
	rep.Address = h.PC
	rep.Value = uint64(raw)
	rep.Flags = uint32(outcome)
	rep.Size = uint32(len(h.Deltas()))
	return rep
}

// change returns one delta of the last Step, paginated by req.Address as
// the delta index, for the ChangeCount/Change server commands.
func (d *Dispatcher) change(req Request, h *hart.Hart) Reply {
	deltas := h.Deltas()
	idx := int(req.Address)
	if idx < 0 || idx >= len(deltas) {
		return invalidReply(&req)
	}
	delta := deltas[idx]
	rep := okReply(&req)
	rep.Resource = resourceForDelta(delta.Kind)
	rep.Address = uint64(delta.Index)
	rep.Value = delta.New
	binary.LittleEndian.PutUint64(rep.Payload[:8], delta.Old)
	return rep
}

// resourceForDelta maps a delta kind onto the wire Resource that names
// the same state; the two enums are not position-aligned.
func resourceForDelta(k hart.DeltaKind) Resource {
	switch k {
	case hart.DeltaXReg:
		return ResourceXReg
	case hart.DeltaFReg:
		return ResourceFReg
	case hart.DeltaCSR:
		return ResourceCSR
	case hart.DeltaPC:
		return ResourcePC
	case hart.DeltaVReg:
		return ResourceVecReg
	default:
		return ResourceMemory
	}
}

func (d *Dispatcher) translate(req Request, h *hart.Hart) Reply {
	access := virtmem.Access(req.Flags & 0x3)
	walk := h.Translate(req.Address, access)
	if walk.Fault != virtmem.NoFault {
		return invalidReply(&req)
	}
	rep := okReply(&req)
	rep.Value = walk.PA
	rep.Size = uint32(walk.Size)
	return rep
}

func (d *Dispatcher) pageTableWalk(req Request, h *hart.Hart) Reply {
	walk := h.LastWalk()
	rep := okReply(&req)
	rep.Value = walk.PA
	rep.Size = uint32(len(walk.Ptes))
	n := len(walk.Ptes)
	if n*8 > payloadSize {
		n = payloadSize / 8
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(rep.Payload[i*8:], walk.Ptes[i].Addr)
	}
	return rep
}

func (d *Dispatcher) checkInterrupt(req Request, h *hart.Hart) Reply {
	cause, target, deliverable := h.CheckInterrupt()
	rep := okReply(&req)
	if !deliverable {
		rep.Flags = 0
		return rep
	}
	rep.Flags = 1
	rep.Value = cause
	rep.Address = uint64(target)
	return rep
}

func (d *Dispatcher) mcmCommand(req Request, h *hart.Hart) Reply {
	if d.Sys.Mcm == nil {
		return invalidReply(&req)
	}
	e := d.Sys.Mcm
	var v *mcm.Violation
	switch req.Type {
	case TypeMcmRead:
		v = e.McmRead(int(req.Hart), mcm.Tag(req.InstrTag), req.Address, int(req.Size), req.Value)
	case TypeMcmInsert:
		v = e.McmInsert(int(req.Hart), mcm.Tag(req.InstrTag), req.Address, int(req.Size), req.Value)
	case TypeMcmBypass:
		storeTag := binary.LittleEndian.Uint64(req.Payload[:8])
		v = e.McmBypass(int(req.Hart), mcm.Tag(req.InstrTag), mcm.Tag(storeTag), req.Address, int(req.Size), req.Value)
	case TypeMcmMbWrite:
		mask := binary.LittleEndian.Uint64(req.Payload[:8])
		skipCheck := req.Flags != 0
		v = e.McmMbWrite(int(req.Hart), req.Address, req.Value, mask, skipCheck)
	case TypeMcmIFetch:
		e.McmIFetch(req.Address)
	case TypeMcmIEvict:
		e.McmIEvict(req.Address)
	case TypeMcmDFetch:
		e.McmDFetch(req.Address)
	case TypeMcmDEvict:
		e.McmDEvict(req.Address)
	case TypeMcmDWriteback:
		e.McmDWriteback(req.Address)
	case TypeMcmSkipReadChk:
		e.McmSkipReadChk(req.Address, uint64(req.Size), req.Value)
	default:
		return invalidReply(&req)
	}
	if v != nil {
		rep := invalidReply(&req)
		rep.Address = v.Addr
		return rep
	}
	return okReply(&req)
}

// validate rejects a malformed request before dispatch so the simulator's
// own state is left unchanged by it; the caller answers with an Invalid
// reply rather than tearing the session down.
func validate(req Request) error {
	if req.Type >= TypeQuit+1 {
		return fmt.Errorf("server: unknown request type %d", req.Type)
	}
	return nil
}
