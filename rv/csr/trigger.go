/*
 * rvsim - CSR trigger sub-file.
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

// triggerType enumerates the legality filter applied to tdata1 on write;
// only a subset of the architected trigger types is modelled.
type triggerType int

const (
	triggerDisabled triggerType = iota
	triggerAddrData
	triggerICount
)

type trigger struct {
	kind          triggerType
	tdata1        uint64
	tdata2        uint64
	tdata3        uint64
}

const maxTriggers = 4

// triggerFile is the indirect (tselect -> tdata1/2/3/tinfo) view over a
// small fixed set of triggers.
type triggerFile struct {
	triggers [maxTriggers]trigger
	select_  int
}

func newTriggerFile() triggerFile {
	return triggerFile{}
}

// Register indices addressed through Read/WriteTrigger; 0=tdata1,
// 1=tdata2, 2=tdata3.
const (
	regTdata1 = 0
	regTdata2 = 1
	regTdata3 = 2
)

func (tf *triggerFile) read(which int, reg int) (uint64, bool) {
	if which < 0 {
		which = tf.select_
	}
	if which < 0 || which >= maxTriggers {
		return 0, false
	}
	t := &tf.triggers[which]
	switch reg {
	case regTdata1:
		return t.tdata1, true
	case regTdata2:
		return t.tdata2, true
	case regTdata3:
		return t.tdata3, true
	}
	return 0, false
}

// write applies a per-type legality filter before committing: a tdata1
// write may change the trigger's type, and the new type's filter must
// accept the rest of tdata1 before the write commits — an illegal
// type/tdata1 combination is silently dropped (ok stays true, but the
// value is unchanged), matching the architecture's "the write has no
// effect" semantics rather than an exception.
func (tf *triggerFile) write(which int, reg int, value uint64) bool {
	if which < 0 {
		which = tf.select_
	}
	if which < 0 || which >= maxTriggers {
		return false
	}
	t := &tf.triggers[which]
	switch reg {
	case regTdata1:
		kind := triggerType((value >> 60) & 0xf)
		if !legalTriggerType(kind) {
			return true
		}
		t.kind = kind
		t.tdata1 = value
	case regTdata2:
		t.tdata2 = value
	case regTdata3:
		t.tdata3 = value
	default:
		return false
	}
	return true
}

func legalTriggerType(kind triggerType) bool {
	switch kind {
	case triggerDisabled, triggerAddrData, triggerICount:
		return true
	default:
		return false
	}
}

// Select returns/sets the current tselect value.
func (tf *triggerFile) Select() int { return tf.select_ }
func (tf *triggerFile) SetSelect(which int) bool {
	if which < 0 || which >= maxTriggers {
		return false
	}
	tf.select_ = which
	return true
}
