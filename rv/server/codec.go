/*
 * rvsim - Wire-protocol encode/decode.
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
	"io"
)

// wireSize is the on-the-wire byte length of a Request/Reply: they share
// an identical layout so one size/encode/decode pair serves both.
const wireSize = 4 + 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8 + payloadSize + tagSize

func encode(w io.Writer, hart uint32, typ Type, resource Resource, size, flags uint32,
	instrTag, time, address, value uint64, payload [payloadSize]byte, tag [tagSize]byte) error {
	buf := make([]byte, wireSize)
	off := 0
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[off:], v); off += 4 }
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[off:], v); off += 8 }

	putU32(hart)
	putU32(uint32(typ))
	putU32(uint32(resource))
	putU32(size)
	putU32(flags)
	putU64(instrTag)
	putU64(time)
	putU64(address)
	putU64(value)
	off += copy(buf[off:], payload[:])
	off += copy(buf[off:], tag[:])

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("server: writing wire message: %w", err)
	}
	return nil
}

func decodeFields(r io.Reader) (hart uint32, typ Type, resource Resource, size, flags uint32,
	instrTag, time, address, value uint64, payload [payloadSize]byte, tag [tagSize]byte, err error) {
	buf := make([]byte, wireSize)
	if _, err = io.ReadFull(r, buf); err != nil {
		return
	}
	off := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(buf[off:]); off += 4; return v }
	getU64 := func() uint64 { v := binary.LittleEndian.Uint64(buf[off:]); off += 8; return v }

	hart = getU32()
	typ = Type(getU32())
	resource = Resource(getU32())
	size = getU32()
	flags = getU32()
	instrTag = getU64()
	time = getU64()
	address = getU64()
	value = getU64()
	off += copy(payload[:], buf[off:off+payloadSize])
	off += copy(tag[:], buf[off:off+tagSize])
	return
}

// EncodeRequest/DecodeRequest and EncodeReply/DecodeReply marshal the wire
// structs for both the TCP and shared-memory transports.
func EncodeRequest(w io.Writer, req Request) error {
	return encode(w, req.Hart, req.Type, req.Resource, req.Size, req.Flags,
		req.InstrTag, req.Time, req.Address, req.Value, req.Payload, req.Tag)
}

func DecodeRequest(r io.Reader) (Request, error) {
	hart, typ, resource, size, flags, instrTag, time, address, value, payload, tag, err := decodeFields(r)
	if err != nil {
		return Request{}, err
	}
	return Request{Hart: hart, Type: typ, Resource: resource, Size: size, Flags: flags,
		InstrTag: instrTag, Time: time, Address: address, Value: value, Payload: payload, Tag: tag}, nil
}

func EncodeReply(w io.Writer, rep Reply) error {
	return encode(w, rep.Hart, rep.Type, rep.Resource, rep.Size, rep.Flags,
		rep.InstrTag, rep.Time, rep.Address, rep.Value, rep.Payload, rep.Tag)
}

func DecodeReply(r io.Reader) (Reply, error) {
	hart, typ, resource, size, flags, instrTag, time, address, value, payload, tag, err := decodeFields(r)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Hart: hart, Type: typ, Resource: resource, Size: size, Flags: flags,
		InstrTag: instrTag, Time: time, Address: address, Value: value, Payload: payload, Tag: tag}, nil
}
