/*
 * rvsim - External-control wire protocol.
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

// Package server implements the external-control request/reply loop the
// verification test-bench drives a System through: Peek/Poke/Step/Reset/
// Translate/Mcm*/… over a fixed-layout binary message, exchanged either
// over a TCP socket or a shared-memory page with a one-byte doorbell. The
// loop is strictly synchronous — receive, dispatch, reply — so a client
// must not issue a second request before reading the previous reply.
package server

// Type enumerates every request/reply kind the protocol carries.
type Type uint32

const (
	TypeInvalid Type = iota
	TypePeek
	TypePoke
	TypeStep
	TypeChangeCount
	TypeChange
	TypeReset
	TypeEnterDebug
	TypeExitDebug
	TypeCancelDiv
	TypeCancelLr
	TypeNmi
	TypeClearNmi
	TypeTranslate
	TypePageTableWalk
	TypeMcmRead
	TypeMcmInsert
	TypeMcmBypass
	TypeMcmMbWrite
	TypeMcmIFetch
	TypeMcmIEvict
	TypeMcmDFetch
	TypeMcmDEvict
	TypeMcmDWriteback
	TypeMcmSkipReadChk
	TypeCheckInterrupt
	TypeInjectException
	TypeDumpMemory
	TypeLoadFinished
	TypeSeiPin
	TypeQuit
)

// Resource selects what a Peek/Poke addresses.
type Resource uint32

const (
	ResourceXReg Resource = iota
	ResourceFReg
	ResourceCSR
	ResourceMemory
	ResourcePC
	ResourceSpecial // hart.Special resources: privilege mode, FP flags, last-trap, deferred interrupts.
	ResourceVecReg  // Vector register; bytes ride in the payload buffer, Size carries the count.
)

// payloadSize and tagSize fix the record layout: a 128-byte payload buffer
// for command-specific extra data, and a 20-byte correlation tag the reply
// echoes back unexamined.
const (
	payloadSize = 128
	tagSize     = 20
)

// Request is one fixed-layout client request. All integer fields are
// little-endian on the wire (see codec.go). Payload carries vector register
// bytes for Poke, the bypassed store's tag for McmBypass and the byte mask
// for McmMbWrite, each in its first 8 bytes for the Mcm commands. Mcm data
// travels only in Value, so Mcm accesses wider than 8 bytes are not carried.
type Request struct {
	Hart      uint32
	Type      Type
	Resource  Resource
	Size      uint32
	Flags     uint32
	InstrTag  uint64
	Time      uint64
	Address   uint64
	Value     uint64
	Payload   [payloadSize]byte
	Tag       [tagSize]byte
}

// Reply is one fixed-layout server reply. Type echoes the request's Type
// on success; TypeInvalid signals a failed operation, with Hart/InstrTag/
// Tag still echoed so the caller can correlate the failure.
type Reply struct {
	Hart      uint32
	Type      Type
	Resource  Resource
	Size      uint32
	Flags     uint32
	InstrTag  uint64
	Time      uint64
	Address   uint64
	Value     uint64
	Payload   [payloadSize]byte
	Tag       [tagSize]byte
}

// invalidReply builds a failure reply that echoes req's correlation
// fields: a reply type of Invalid indicates a failed operation, and the
// echoed hart/tag give the caller enough context to correlate it.
func invalidReply(req *Request) Reply {
	return Reply{Hart: req.Hart, Type: TypeInvalid, InstrTag: req.InstrTag, Tag: req.Tag}
}

// okReply builds a success reply of the request's own type, echoing its
// correlation fields plus whatever value/address/size the handler fills in.
func okReply(req *Request) Reply {
	return Reply{Hart: req.Hart, Type: req.Type, InstrTag: req.InstrTag, Tag: req.Tag}
}
