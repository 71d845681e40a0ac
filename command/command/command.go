/*
 * rvsim - Interactive console session state.
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

// Package command holds the state an interactive console session drives:
// the System under control, the currently selected hart, and the step
// limits in effect. The console reaches the same Peek/Poke/Step operations
// the external-control server exposes, just in-process.
package command

import (
	"github.com/virtcore/rvsim/rv/hart"
	"github.com/virtcore/rvsim/rv/system"
	"github.com/virtcore/rvsim/util/trace"
)

// Session is one interactive console's view of the simulator.
type Session struct {
	Sys    *system.System
	Hart   int // Currently selected hart index; the "hart" command changes it.
	Limits hart.Limits
	Tracer *trace.Sink
}

// Current returns the selected hart.
func (s *Session) Current() *hart.Hart {
	return s.Sys.Hart(s.Hart)
}

// SelectHart switches the session to hart n; false if out of range.
func (s *Session) SelectHart(n int) bool {
	if s.Sys.Hart(n) == nil {
		return false
	}
	s.Hart = n
	return true
}
