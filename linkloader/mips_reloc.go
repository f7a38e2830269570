// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"fmt"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
)

const (
	mipsSegmentMask = 0x0FFFFFFF
	mipsGPDisp      = "_gp_disp"
)

func (o *Object) relocateMIPS(st *SymTab, rt *RelTable, sec *ProgBits) error {
	var gp uint64
	if o.got != nil {
		gp = o.got.gp()
	}

	for i, rel := range rt.Relocations {
		typ := elf.R_MIPS(rel.Type)
		switch typ {
		case elf.R_MIPS_NONE, elf.R_MIPS_JALR:
			continue
		}

		sym := st.At(int(rel.SymbolIndex))
		if sym == nil {
			return fmt.Errorf("relocation %d: symbol index %d out of range", rel.Index, rel.SymbolIndex)
		}
		gpDisp := sym.Name == mipsGPDisp && sym.IsUndefined()

		var s uint64
		var external bool
		if !gpDisp {
			var err error
			if _, s, external, err = o.relocationSymbol(st, rel); err != nil {
				return err
			}
		}

		p := sec.Addr() + rel.Offset
		b, err := sec.site(rel.Offset, 4)
		if err != nil {
			return err
		}
		inst := o.order.Uint32(b)
		imm16 := int64(int16(inst))

		switch typ {
		case elf.R_MIPS_16:
			a := imm16
			if rel.HasAddend {
				a = rel.Addend
			}
			v := int64(s) + a
			if !fitsSigned(v, 16) {
				return fmt.Errorf("relocation %d: value 0x%x overflows R_MIPS_16", rel.Index, v)
			}
			o.order.PutUint32(b, inst&0xFFFF0000|uint32(v)&0xFFFF)

		case elf.R_MIPS_32:
			a := int64(int32(inst))
			if rel.HasAddend {
				a = rel.Addend
			}
			o.order.PutUint32(b, uint32(s+uint64(a)))

		case elf.R_MIPS_26:
			if err := o.mipsJump(sec, rel, sym, b, s, p, external); err != nil {
				return err
			}

		case elf.R_MIPS_HI16:
			ahl, err := o.mipsAHL(rt, i, sec, rel, sym)
			if err != nil {
				return err
			}
			if gpDisp {
				s = gp - p
			}
			v := uint32(s + uint64(ahl))
			o.order.PutUint32(b, inst&0xFFFF0000|(v+0x8000)>>16&0xFFFF)

		case elf.R_MIPS_LO16:
			a := imm16
			if rel.HasAddend {
				a = rel.Addend
			}
			if gpDisp {
				s = gp - p + 4
			}
			v := uint32(s + uint64(a))
			o.order.PutUint32(b, inst&0xFFFF0000|v&0xFFFF)

		case elf.R_MIPS_GOT16, elf.R_MIPS_CALL16:
			if o.got == nil {
				return fmt.Errorf("relocation %d: no global offset table", rel.Index)
			}
			var slot uint64
			if typ == elf.R_MIPS_GOT16 && sym.Binding == elf.STB_LOCAL {
				ahl, err := o.mipsAHL(rt, i, sec, rel, sym)
				if err != nil {
					return err
				}
				page := (s + uint64(ahl) + 0x8000) &^ 0xFFFF
				slot, err = o.got.entry(true, page&0xFFFFFFFF)
				if err != nil {
					return fmt.Errorf("relocation %d: %w", rel.Index, err)
				}
			} else {
				slot, err = o.got.entry(false, s)
				if err != nil {
					return fmt.Errorf("relocation %d: %w", rel.Index, err)
				}
			}
			off := int64(slot) - int64(gp)
			if !fitsSigned(off, 16) {
				return fmt.Errorf("relocation %d: GOT slot 0x%x out of range of gp", rel.Index, slot)
			}
			o.order.PutUint32(b, inst&0xFFFF0000|uint32(off)&0xFFFF)

		case elf.R_MIPS_GPREL32:
			a := int64(int32(inst))
			if rel.HasAddend {
				a = rel.Addend
			}
			o.order.PutUint32(b, uint32(uint64(a)+s-gp))

		default:
			return o.unsupported(rel)
		}
	}
	return nil
}

// mipsAHL combines the addend of the HI16 or GOT16 relocation at index i
// with the addend of the next LO16 against the same symbol.
func (o *Object) mipsAHL(rt *RelTable, i int, sec *ProgBits, rel *elf.Relocation, sym *Symbol) (int64, error) {
	if rel.HasAddend {
		return rel.Addend, nil
	}
	b, err := sec.site(rel.Offset, 4)
	if err != nil {
		return 0, err
	}
	ahl := int64(o.order.Uint32(b)&0xFFFF) << 16

	for _, lo := range rt.Relocations[i+1:] {
		if elf.R_MIPS(lo.Type) != elf.R_MIPS_LO16 || lo.SymbolIndex != rel.SymbolIndex {
			continue
		}
		lb, err := sec.site(lo.Offset, 4)
		if err != nil {
			return 0, err
		}
		return ahl + int64(int16(o.order.Uint32(lb))), nil
	}
	o.logf("relocation %d: no LO16 pairs with %s against %q", rel.Index,
		elf.RelocationTypeName(o.header.Machine, rel.Type), sym.Name)
	return ahl, nil
}

// mipsJump patches a J/JAL. The target must share the top four address bits
// with the delay slot; otherwise, and for external symbols, the jump goes
// through a stub.
func (o *Object) mipsJump(sec *ProgBits, rel *elf.Relocation, sym *Symbol, b []byte, s, p uint64, external bool) error {
	inst := o.order.Uint32(b)
	field := uint64(inst & 0x3FFFFFF)
	var a int64
	switch {
	case rel.HasAddend:
		a = rel.Addend
	case sym.Binding == elf.STB_LOCAL:
		a = int64(field << 2)
	default:
		a = signExtend(field<<2, 28)
	}

	target := s + uint64(a)
	segment := (p + 4) &^ mipsSegmentMask
	if external || target&^mipsSegmentMask != segment {
		stub, err := o.stubFor(sec, target)
		if err != nil {
			return fmt.Errorf("relocation %d: %w", rel.Index, err)
		}
		if stub&^mipsSegmentMask != segment {
			return fmt.Errorf("relocation %d: stub at 0x%x outside jump segment of 0x%x", rel.Index, stub, p)
		}
		target = stub
	}
	o.order.PutUint32(b, inst&0xFC000000|uint32(target>>2)&0x3FFFFFF)
	return nil
}
