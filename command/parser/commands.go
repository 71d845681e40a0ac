/*
 * rvsim - Console command handlers.
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

package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	command "github.com/virtcore/rvsim/command/command"
	"github.com/virtcore/rvsim/rv/csr"
	"github.com/virtcore/rvsim/rv/hart"
	"github.com/virtcore/rvsim/rv/virtmem"
	"github.com/virtcore/rvsim/util/trace"
)

func step(args []string, sess *command.Session) (bool, error) {
	n := uint64(1)
	if len(args) > 0 {
		v, err := parseNum(args[0])
		if err != nil {
			return false, err
		}
		n = v
	}
	h := sess.Current()
	for i := uint64(0); i < n; i++ {
		outcome := h.Step(sess.Limits)
		traceStep(sess, h)
		fmt.Printf("hart %d: pc=%#x outcome=%v retired=%d\n", sess.Hart, h.PC, outcome, h.Retired())
		if outcome != hart.Retired && outcome != hart.InterruptTaken && outcome != hart.Trapped {
			break
		}
	}
	return false, nil
}

func cont(args []string, sess *command.Session) (bool, error) {
	h := sess.Current()
	for {
		outcome := h.Step(sess.Limits)
		traceStep(sess, h)
		if outcome != hart.Retired && outcome != hart.InterruptTaken && outcome != hart.Trapped {
			fmt.Printf("hart %d stopped: pc=%#x outcome=%v retired=%d\n", sess.Hart, h.PC, outcome, h.Retired())
			return false, nil
		}
	}
}

// traceStep mirrors the batch scheduler's per-step trace record for steps
// driven from the console.
func traceStep(sess *command.Session, h *hart.Hart) {
	if sess.Tracer == nil {
		return
	}
	raw, name := h.LastInst()
	trapped, cause := h.LastTrap()
	sess.Tracer.WriteRecord(trace.Record{
		Hart: sess.Hart, Index: h.Retired(), PC: h.LastPC(), NextPC: h.PC,
		Raw: raw, Name: name, Trapped: trapped, Cause: cause,
	})
}

// resolveResource parses x<n>/f<n>/pc/<csr name>/0x<csr number>; "mem" is
// handled by the callers since it takes extra arguments.
type resource struct {
	kind byte // 'x', 'f', 'p', 'c'
	num  int
	csr  csr.Number
}

func resolveResource(s string) (resource, error) {
	low := strings.ToLower(s)
	switch {
	case low == "pc":
		return resource{kind: 'p'}, nil
	case len(low) > 1 && (low[0] == 'x' || low[0] == 'f') && isDigits(low[1:]):
		n, _ := strconv.Atoi(low[1:])
		if n > 31 {
			return resource{}, fmt.Errorf("no register %q", s)
		}
		return resource{kind: low[0], num: n}, nil
	}
	if n, ok := csr.ByName(low); ok {
		return resource{kind: 'c', csr: n}, nil
	}
	if v, err := parseNum(low); err == nil && v < 4096 {
		return resource{kind: 'c', csr: csr.Number(v)}, nil
	}
	return resource{}, fmt.Errorf("unknown resource %q", s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func examine(args []string, sess *command.Session) (bool, error) {
	if len(args) == 0 {
		return false, errors.New("examine what?")
	}
	h := sess.Current()
	if strings.EqualFold(args[0], "mem") {
		if len(args) < 2 {
			return false, errors.New("examine mem <addr> [len]")
		}
		addr, err := parseNum(args[1])
		if err != nil {
			return false, err
		}
		count := uint64(16)
		if len(args) > 2 {
			if count, err = parseNum(args[2]); err != nil {
				return false, err
			}
		}
		for i := uint64(0); i < count; i += 8 {
			v, err := sess.Sys.Memory.Read(addr+i, 8)
			if err != nil {
				return false, err
			}
			fmt.Printf("%08x: %016x\n", addr+i, v)
		}
		return false, nil
	}

	r, err := resolveResource(args[0])
	if err != nil {
		return false, err
	}
	switch r.kind {
	case 'p':
		fmt.Printf("pc = %#x\n", h.PC)
	case 'x':
		fmt.Printf("x%d = %#x\n", r.num, h.PeekX(r.num))
	case 'f':
		fmt.Printf("f%d = %#x\n", r.num, h.PeekF(r.num))
	case 'c':
		v, ok := h.PeekCSR(r.csr)
		if !ok {
			return false, fmt.Errorf("csr %#x not accessible", uint16(r.csr))
		}
		fmt.Printf("%s = %#x\n", csrDisplayName(r.csr), v)
	}
	return false, nil
}

func deposit(args []string, sess *command.Session) (bool, error) {
	if len(args) < 2 {
		return false, errors.New("deposit <resource> <value>")
	}
	h := sess.Current()
	if strings.EqualFold(args[0], "mem") {
		if len(args) < 3 {
			return false, errors.New("deposit mem <addr> <value>")
		}
		addr, err := parseNum(args[1])
		if err != nil {
			return false, err
		}
		v, err := parseNum(args[2])
		if err != nil {
			return false, err
		}
		return false, sess.Sys.Memory.Write(addr, 8, v)
	}

	r, err := resolveResource(args[0])
	if err != nil {
		return false, err
	}
	v, err := parseNum(args[1])
	if err != nil {
		return false, err
	}
	switch r.kind {
	case 'p':
		h.PokePC(v)
	case 'x':
		h.PokeX(r.num, v)
	case 'f':
		h.PokeF(r.num, v)
	case 'c':
		if !h.PokeCSR(r.csr, v) {
			return false, fmt.Errorf("csr %#x not pokeable", uint16(r.csr))
		}
	}
	return false, nil
}

func regs(args []string, sess *command.Session) (bool, error) {
	h := sess.Current()
	fmt.Printf("hart %d  pc=%#x  priv=%d  retired=%d\n", sess.Hart, h.PC, h.Priv, h.Retired())
	for i := 0; i < 32; i += 4 {
		fmt.Printf("x%-2d %016x  x%-2d %016x  x%-2d %016x  x%-2d %016x\n",
			i, h.PeekX(i), i+1, h.PeekX(i+1), i+2, h.PeekX(i+2), i+3, h.PeekX(i+3))
	}
	return false, nil
}

func reset(args []string, sess *command.Session) (bool, error) {
	h := sess.Current()
	pc := h.PC
	if len(args) > 0 {
		v, err := parseNum(args[0])
		if err != nil {
			return false, err
		}
		pc = v
	}
	h.Reset(pc)
	fmt.Printf("hart %d reset, pc=%#x\n", sess.Hart, pc)
	return false, nil
}

func translate(args []string, sess *command.Session) (bool, error) {
	if len(args) == 0 {
		return false, errors.New("translate <vaddr> [r|w|x]")
	}
	va, err := parseNum(args[0])
	if err != nil {
		return false, err
	}
	access := virtmem.Read
	if len(args) > 1 {
		switch strings.ToLower(args[1]) {
		case "r":
			access = virtmem.Read
		case "w":
			access = virtmem.Write
		case "x":
			access = virtmem.Fetch
		default:
			return false, fmt.Errorf("bad access %q", args[1])
		}
	}
	w := sess.Current().Translate(va, access)
	if w.Fault != virtmem.NoFault {
		fmt.Printf("fault: %s\n", w.Cause)
		return false, nil
	}
	fmt.Printf("%#x -> %#x (page size %#x)\n", va, w.PA, w.Size)
	return false, nil
}

func walk(args []string, sess *command.Session) (bool, error) {
	w := sess.Current().LastWalk()
	if len(w.Ptes) == 0 {
		fmt.Println("no walk recorded")
		return false, nil
	}
	for _, p := range w.Ptes {
		fmt.Printf("stage %d level %d pte@%#x = %#x\n", p.Stage, p.Level, p.Addr, p.Value)
	}
	if w.Fault == virtmem.NoFault {
		fmt.Printf("-> %#x\n", w.PA)
	} else {
		fmt.Printf("-> fault: %s\n", w.Cause)
	}
	return false, nil
}

func nmi(args []string, sess *command.Session) (bool, error) {
	cause := uint64(0)
	if len(args) > 0 {
		v, err := parseNum(args[0])
		if err != nil {
			return false, err
		}
		cause = v
	}
	sess.Current().Nmi(cause)
	return false, nil
}

func selectHart(args []string, sess *command.Session) (bool, error) {
	if len(args) == 0 {
		fmt.Printf("hart %d of %d\n", sess.Hart, len(sess.Sys.Harts))
		return false, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || !sess.SelectHart(n) {
		return false, fmt.Errorf("no hart %q", args[0])
	}
	return false, nil
}

func help(args []string, sess *command.Session) (bool, error) {
	for _, c := range cmdList {
		fmt.Println("  " + c.Help)
	}
	return false, nil
}

func quit(args []string, sess *command.Session) (bool, error) {
	return true, nil
}

func csrDisplayName(n csr.Number) string {
	if name := csr.NameOf(n); name != "" {
		return name
	}
	return fmt.Sprintf("csr%#x", uint16(n))
}

// completeResource offers register names and CSR names for the
// examine/deposit argument position.
func completeResource(prefix string) []string {
	low := strings.ToLower(prefix)
	candidates := []string{"pc", "mem "}
	for i := 0; i < 32; i++ {
		candidates = append(candidates, fmt.Sprintf("x%d", i), fmt.Sprintf("f%d", i))
	}
	candidates = append(candidates, csr.AllNames()...)
	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, low) {
			out = append(out, c)
		}
	}
	return out
}
