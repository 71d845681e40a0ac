/*
 * rvsim - CSR name table.
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

package csr

import "strings"

var names = map[string]Number{
	"fflags":     Fflags,
	"frm":        Frm,
	"fcsr":       Fcsr,
	"vstart":     Vstart,
	"vl":         Vl,
	"vtype":      Vtype,
	"vlenb":      Vlenb,
	"sstatus":    Sstatus,
	"sie":        Sie,
	"stvec":      Stvec,
	"scounteren": Scounteren,
	"sscratch":   Sscratch,
	"sepc":       Sepc,
	"scause":     Scause,
	"stval":      Stval,
	"sip":        Sip,
	"satp":       Satp,
	"vsstatus":   Vsstatus,
	"vsie":       Vsie,
	"vstvec":     Vstvec,
	"vsscratch":  Vsscratch,
	"vsepc":      Vsepc,
	"vscause":    Vscause,
	"vstval":     Vstval,
	"vsip":       Vsip,
	"vsatp":      Vsatp,
	"hstatus":    Hstatus,
	"hedeleg":    Hedeleg,
	"hideleg":    Hideleg,
	"hie":        Hie,
	"hgatp":      Hgatp,
	"mstatus":    Mstatus,
	"misa":       Misa,
	"medeleg":    Medeleg,
	"mideleg":    Mideleg,
	"mie":        Mie,
	"mtvec":      Mtvec,
	"mcounteren": Mcounteren,
	"mscratch":   Mscratch,
	"mepc":       Mepc,
	"mcause":     Mcause,
	"mtval":      Mtval,
	"mip":        Mip,
	"mvip":       Mvip,
	"mhartid":    Mhartid,
	"mcycle":     Mcycle,
	"minstret":   Minstret,
	"tselect":    Tselect,
	"tdata1":     Tdata1,
	"tdata2":     Tdata2,
	"tdata3":     Tdata3,
	"tinfo":      Tinfo,
}

// ByName resolves an architected CSR name (case-insensitive) to its number.
func ByName(name string) (Number, bool) {
	n, ok := names[strings.ToLower(name)]
	return n, ok
}

// NameOf returns the architected name of n, or "" when n is not a CSR this
// core models by name.
func NameOf(n Number) string {
	for name, num := range names {
		if num == n {
			return name
		}
	}
	return ""
}

// AllNames returns every modelled CSR name, for the REPL's tab completer.
func AllNames() []string {
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	return out
}
