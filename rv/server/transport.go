/*
 * rvsim - Server transports: TCP socket and shared-memory doorbell.
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
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ServeTCP listens on a loopback TCP port, writes "host:port" to
// portFile so the test-bench can find the server, and runs the synchronous
// receive/dispatch/reply loop against the first client until a Quit
// command or client disconnect. One client at a time: the protocol has no
// request pipelining, so there is nothing a second concurrent connection
// could correctly do.
func ServeTCP(d *Dispatcher, portFile string) error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	defer listener.Close()

	if err := os.WriteFile(portFile, []byte(listener.Addr().String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("server: writing port file %q: %w", portFile, err)
	}
	slog.Info("control server started", "addr", listener.Addr().String(), "portfile", portFile)

	for !d.Quit() {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("server: accept: %w", err)
		}
		err = serveConn(d, conn)
		conn.Close()
		if err != nil && err != io.EOF {
			slog.Warn("control session ended", "err", err)
		}
	}
	return nil
}

func serveConn(d *Dispatcher, conn net.Conn) error {
	for !d.Quit() {
		req, err := DecodeRequest(conn)
		if err != nil {
			return err
		}
		var rep Reply
		if err := validate(req); err != nil {
			rep = invalidReply(&req)
		} else {
			rep = d.Handle(req)
		}
		if err := EncodeReply(conn, rep); err != nil {
			return err
		}
	}
	return nil
}

// Shared-memory transport layout: byte 0 is the doorbell, the message
// starts at the first 4-byte-aligned offset after it. Doorbell 's' means
// the server may read (the client has written a request); 'c' means the
// client may read (the server has written a reply).
const (
	doorbellServer = 's'
	doorbellClient = 'c'
	shmMsgOffset   = 4
	shmSize        = 4096
)

// ShmRegion is one mapped shared-memory control page.
type ShmRegion struct {
	file *os.File
	mem  []byte
}

// OpenShm creates (or truncates) path as a page-sized file and maps it.
// The doorbell starts at 'c': the client writes the first request.
func OpenShm(path string) (*ShmRegion, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("server: shm open: %w", err)
	}
	if err := f.Truncate(shmSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("server: shm truncate: %w", err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, shmSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("server: shm mmap: %w", err)
	}
	r := &ShmRegion{file: f, mem: mem}
	r.setDoorbell(doorbellClient)
	return r, nil
}

// Close unmaps and closes the region; the backing file is left in place so
// a client that outlives the server sees the final doorbell state.
func (r *ShmRegion) Close() error {
	if err := unix.Munmap(r.mem); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// The doorbell is a single byte, but it is read and written through a
// 32-bit atomic over the page's first word (bytes 1..3 are padding) since
// the client is a separate process polling the same mapping.
func (r *ShmRegion) doorbell() byte {
	return byte(atomic.LoadUint32((*uint32)(unsafe.Pointer(&r.mem[0]))))
}

func (r *ShmRegion) setDoorbell(v byte) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&r.mem[0])), uint32(v))
}

// ServeShm runs the receive/dispatch/reply loop over the shared-memory
// page until a Quit command. The doorbell byte enforces the one-request-
// in-flight rule that the socket transport can only ask clients to honor.
func ServeShm(d *Dispatcher, r *ShmRegion) error {
	msg := r.mem[shmMsgOffset : shmMsgOffset+wireSize]
	for !d.Quit() {
		for r.doorbell() != doorbellServer {
			runtime.Gosched()
		}
		req, err := DecodeRequest(bytes.NewReader(msg))
		if err != nil {
			return fmt.Errorf("server: shm decode: %w", err)
		}
		var rep Reply
		if err := validate(req); err != nil {
			rep = invalidReply(&req)
		} else {
			rep = d.Handle(req)
		}
		var buf bytes.Buffer
		if err := EncodeReply(&buf, rep); err != nil {
			return fmt.Errorf("server: shm encode: %w", err)
		}
		copy(msg, buf.Bytes())
		r.setDoorbell(doorbellClient)
	}
	return nil
}
