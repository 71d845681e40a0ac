/*
 * rvsim - Wire-codec test cases.
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
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRequestRoundTrip(t *testing.T) {
	req := Request{
		Hart:     1,
		Type:     TypeMcmRead,
		Resource: ResourceMemory,
		Size:     8,
		Flags:    3,
		InstrTag: 0xdeadbeef,
		Time:     12345,
		Address:  0x8000_0000,
		Value:    0x0102030405060708,
	}
	copy(req.Payload[:], []byte{0xaa, 0xbb, 0xcc})
	copy(req.Tag[:], []byte("correlate-me"))

	var buf bytes.Buffer
	if err := EncodeRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != wireSize {
		t.Fatalf("encoded %d bytes, want %d", buf.Len(), wireSize)
	}
	got, err := DecodeRequest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("request round trip (-want +got):\n%s", diff)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	rep := Reply{Hart: 2, Type: TypeStep, Address: 0x1000, Value: 7, Size: 3}
	copy(rep.Tag[:], []byte("tag"))

	var buf bytes.Buffer
	if err := EncodeReply(&buf, rep); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeReply(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rep, got); diff != "" {
		t.Errorf("reply round trip (-want +got):\n%s", diff)
	}
}

func TestLittleEndianLayout(t *testing.T) {
	req := Request{Hart: 0x01020304}
	var buf bytes.Buffer
	if err := EncodeRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	if b[0] != 0x04 || b[1] != 0x03 || b[2] != 0x02 || b[3] != 0x01 {
		t.Errorf("hart field not little-endian on the wire: % x", b[:4])
	}
}

func TestDecodeShortReadFails(t *testing.T) {
	if _, err := DecodeRequest(bytes.NewReader(make([]byte, wireSize-1))); err == nil {
		t.Error("want error on short read")
	}
}
