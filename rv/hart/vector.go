/*
 * rvsim - Vector instruction execution.
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

package hart

import (
	"github.com/virtcore/rvsim/rv/csr"
	"github.com/virtcore/rvsim/rv/decoder"
	"github.com/virtcore/rvsim/rv/instid"
	"github.com/virtcore/rvsim/rv/virtmem"
)

// executeVector implements the modelled V-extension subset: vsetvli
// configuration, unit-stride byte load/store, and vector-vector integer
// add with LMUL fixed at 1.
func (h *Hart) executeVector(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	switch inst.ID {
	case instid.Vsetvli:
		return h.executeVsetvli(inst)
	case instid.Vle8V:
		return h.executeVle8(inst)
	case instid.Vse8V:
		return h.executeVse8(inst)
	case instid.VaddVV:
		return h.executeVaddVV(inst)
	}
	return causeIllegalInstruction, uint64(inst.Raw), true
}

// pokeVCSR updates one of the read-only vector status CSRs (vl, vtype)
// through the poke path, recording the delta the way a masked write would.
func (h *Hart) pokeVCSR(n csr.Number, v uint64) {
	old, _ := h.CSR.Read(n, h.ctx())
	h.CSR.Poke(n, v, h.ctx())
	h.deltas = append(h.deltas, Delta{Kind: DeltaCSR, Index: int(n), Old: old, New: v})
}

func (h *Hart) vtypeSEW() (sewBits uint64, ok bool) {
	vtype, _ := h.CSR.Read(csr.Vtype, h.ctx())
	sew := uint64(8) << ((vtype >> 3) & 0x7)
	return sew, sew <= 64
}

func (h *Hart) executeVsetvli(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	rd := int(inst.Operands[0].Value)
	rs1 := int(inst.Operands[1].Value)
	vtype := uint64(inst.Operands[2].Value) & 0x7ff

	sew := uint64(8) << ((vtype >> 3) & 0x7)
	if sew > 64 {
		return causeIllegalInstruction, uint64(inst.Raw), true
	}
	vlmax := uint64(VLenBytes) * 8 / sew

	avl := vlmax // rs1 = x0 requests the maximum.
	if rs1 != 0 {
		avl = h.X[rs1]
	}
	vl := avl
	if vl > vlmax {
		vl = vlmax
	}

	h.pokeVCSR(csr.Vtype, vtype)
	h.pokeVCSR(csr.Vl, vl)
	h.setX(rd, vl)
	return 0, 0, false
}

// vlElements returns the active element count for a SEW-8 memory op,
// clamped to the register length.
func (h *Hart) vlElements() uint64 {
	vl, _ := h.CSR.Read(csr.Vl, h.ctx())
	if vl > VLenBytes {
		vl = VLenBytes
	}
	return vl
}

func (h *Hart) executeVle8(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	vd := int(inst.Operands[0].Value)
	base := h.xr(inst.Operands[1])
	vl := h.vlElements()

	oldLow := h.vLow(vd)
	saved := append([]byte(nil), h.V[vd]...)
	for i := uint64(0); i < vl; i++ {
		walk := h.translate(base+i, virtmem.Read, h.vmConfig())
		if walk.Fault != virtmem.NoFault {
			copy(h.V[vd], saved)
			return causeForFault(walk.Fault, virtmem.Read), base + i, true
		}
		b, err := h.mem.ReadByte(walk.PA)
		if err != nil {
			copy(h.V[vd], saved)
			return causeLoadAccessFault, base + i, true
		}
		h.V[vd][i] = b
	}
	h.noteVWrite(vd, oldLow)
	return 0, 0, false
}

func (h *Hart) executeVse8(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	vs3 := int(inst.Operands[0].Value)
	base := h.xr(inst.Operands[1])
	vl := h.vlElements()

	for i := uint64(0); i < vl; i++ {
		walk := h.translate(base+i, virtmem.Write, h.vmConfig())
		if walk.Fault != virtmem.NoFault {
			return causeForFault(walk.Fault, virtmem.Write), base + i, true
		}
		if err := h.mem.WriteByte(walk.PA, h.V[vs3][i]); err != nil {
			return causeStoreAccessFault, base + i, true
		}
		h.deltas = append(h.deltas, Delta{Kind: DeltaMem, Index: int(walk.PA), New: uint64(h.V[vs3][i])})
	}
	return 0, 0, false
}

func (h *Hart) executeVaddVV(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	vd := int(inst.Operands[0].Value)
	vs1 := int(inst.Operands[1].Value)
	vs2 := int(inst.Operands[2].Value)

	sew, ok := h.vtypeSEW()
	if !ok {
		return causeIllegalInstruction, uint64(inst.Raw), true
	}
	width := sew / 8
	vl, _ := h.CSR.Read(csr.Vl, h.ctx())
	if vl*width > VLenBytes {
		vl = VLenBytes / width
	}

	oldLow := h.vLow(vd)
	for i := uint64(0); i < vl; i++ {
		off := i * width
		sum := vecElem(h.V[vs1], off, width) + vecElem(h.V[vs2], off, width)
		putVecElem(h.V[vd], off, width, sum)
	}
	h.noteVWrite(vd, oldLow)
	return 0, 0, false
}

func vecElem(reg []byte, off, width uint64) uint64 {
	var v uint64
	for b := uint64(0); b < width; b++ {
		v |= uint64(reg[off+b]) << (8 * b)
	}
	return v
}

func putVecElem(reg []byte, off, width uint64, v uint64) {
	for b := uint64(0); b < width; b++ {
		reg[off+b] = byte(v >> (8 * b))
	}
}
