// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"fmt"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
)

const (
	armCondMask = 0xF0000000
	armCondNV   = 0xF0000000
	armBL       = 0xEB000000
	armBLX      = 0xFA000000
	armBLXH     = 1 << 24
	armPCBias   = 8

	thumbBLXBit = 0x1000
	thumbPCBias = 4
)

func (o *Object) relocateARM(st *SymTab, rt *RelTable, sec *ProgBits) error {
	for _, rel := range rt.Relocations {
		typ := elf.R_ARM(rel.Type)
		switch typ {
		case elf.R_ARM_NONE, elf.R_ARM_V4BX:
			continue
		}

		sym, s, external, err := o.relocationSymbol(st, rel)
		if err != nil {
			return err
		}
		t := o.thumbBit(sym)
		p := sec.Addr() + rel.Offset

		b, err := sec.site(rel.Offset, 4)
		if err != nil {
			return err
		}

		switch typ {
		case elf.R_ARM_ABS32, elf.R_ARM_TARGET1:
			a := o.armWordAddend(rel, b)
			o.order.PutUint32(b, uint32(s+uint64(a)+t))

		case elf.R_ARM_REL32:
			a := o.armWordAddend(rel, b)
			o.order.PutUint32(b, uint32(s+uint64(a)+t-p))

		case elf.R_ARM_PC24, elf.R_ARM_CALL, elf.R_ARM_JUMP24:
			if err := o.armBranch(sec, rel, b, s, t, p, external); err != nil {
				return err
			}

		case elf.R_ARM_THM_CALL, elf.R_ARM_THM_JUMP24:
			if err := o.thumbBranch(sec, rel, b, s, t, p, external); err != nil {
				return err
			}

		case elf.R_ARM_MOVW_ABS_NC, elf.R_ARM_MOVT_ABS:
			inst := o.order.Uint32(b)
			a := signExtend(uint64(inst>>4&0xF000|inst&0xFFF), 16)
			if rel.HasAddend {
				a = rel.Addend
			}
			v := uint32(s + uint64(a))
			if typ == elf.R_ARM_MOVW_ABS_NC {
				v |= uint32(t)
			} else {
				v >>= 16
			}
			inst = inst&0xFFF0F000 | (v&0xF000)<<4 | v&0xFFF
			o.order.PutUint32(b, inst)

		case elf.R_ARM_THM_MOVW_ABS_NC, elf.R_ARM_THM_MOVT_ABS:
			hi, lo := o.order.Uint16(b), o.order.Uint16(b[2:])
			imm := uint64(hi&0xF)<<12 | uint64(hi>>10&1)<<11 | uint64(lo>>12&7)<<8 | uint64(lo&0xFF)
			a := signExtend(imm, 16)
			if rel.HasAddend {
				a = rel.Addend
			}
			v := uint32(s + uint64(a))
			if typ == elf.R_ARM_THM_MOVW_ABS_NC {
				v |= uint32(t)
			} else {
				v >>= 16
			}
			hi = hi&0xFBF0 | uint16(v>>12&0xF) | uint16(v>>11&1)<<10
			lo = lo&0x8F00 | uint16(v>>8&7)<<12 | uint16(v&0xFF)
			o.order.PutUint16(b, hi)
			o.order.PutUint16(b[2:], lo)

		default:
			return o.unsupported(rel)
		}
	}
	return nil
}

func (o *Object) armWordAddend(rel *elf.Relocation, b []byte) int64 {
	if rel.HasAddend {
		return rel.Addend
	}
	return int64(int32(o.order.Uint32(b)))
}

// armBranch patches an ARM B/BL/BLX. Calls to external or out-of-range
// functions go through a stub; direct calls to Thumb functions become BLX.
func (o *Object) armBranch(sec *ProgBits, rel *elf.Relocation, b []byte, s, t, p uint64, external bool) error {
	typ := elf.R_ARM(rel.Type)
	inst := o.order.Uint32(b)
	a := signExtend(uint64(inst&0xFFFFFF)<<2, 26)
	if rel.HasAddend {
		a = rel.Addend
	}

	v := int64(s) + a - int64(p)
	useStub := external || !fitsSigned(v, 26)
	blx := false
	if !useStub && t != 0 {
		if typ == elf.R_ARM_CALL {
			blx = true
		} else {
			// B cannot switch to Thumb state.
			useStub = true
		}
	}

	if useStub {
		// The stub jumps to the real destination, so the addend and the
		// pipeline bias move into its literal.
		stub, err := o.stubFor(sec, uint64(int64(s)+a+armPCBias)|t)
		if err != nil {
			return fmt.Errorf("relocation %d: %w", rel.Index, err)
		}
		v = int64(stub) - armPCBias - int64(p)
		if !fitsSigned(v, 26) {
			return fmt.Errorf("relocation %d: stub at 0x%x out of branch range from 0x%x", rel.Index, stub, p)
		}
	}

	switch {
	case blx:
		inst = armBLX | uint32(v>>1&1)*armBLXH
	case inst&armCondMask == armCondNV:
		// An existing BLX now targets ARM code.
		inst = armBL
	}
	inst = inst&0xFF000000 | uint32(v>>2)&0xFFFFFF
	o.order.PutUint32(b, inst)
	return nil
}

func thumbBranchOffset(hi, lo uint16) int64 {
	s := uint64(hi>>10) & 1
	j1 := uint64(lo>>13) & 1
	j2 := uint64(lo>>11) & 1
	i1 := ^(j1 ^ s) & 1
	i2 := ^(j2 ^ s) & 1
	imm := s<<24 | i1<<23 | i2<<22 | uint64(hi&0x3FF)<<12 | uint64(lo&0x7FF)<<1
	return signExtend(imm, 25)
}

func thumbBranchEncode(hi, lo uint16, v int64) (uint16, uint16) {
	u := uint32(v)
	s := u >> 24 & 1
	i1 := u >> 23 & 1
	i2 := u >> 22 & 1
	j1 := ^(i1 ^ s) & 1
	j2 := ^(i2 ^ s) & 1
	hi = hi&0xF800 | uint16(s)<<10 | uint16(u>>12&0x3FF)
	lo = lo&0xD000 | uint16(j1)<<13 | uint16(j2)<<11 | uint16(u>>1&0x7FF)
	return hi, lo
}

// thumbBranch patches a Thumb-2 BL/BLX/B.W. Calls to ARM code, including
// stubs, are turned into BLX.
func (o *Object) thumbBranch(sec *ProgBits, rel *elf.Relocation, b []byte, s, t, p uint64, external bool) error {
	call := elf.R_ARM(rel.Type) == elf.R_ARM_THM_CALL
	hi, lo := o.order.Uint16(b), o.order.Uint16(b[2:])
	a := thumbBranchOffset(hi, lo)
	if rel.HasAddend {
		a = rel.Addend
	}

	v := int64(s) + a - int64(p)
	useStub := external || !fitsSigned(v, 25)
	blx := false
	if !useStub && t == 0 {
		if !call {
			return fmt.Errorf("relocation %d: Thumb B.W cannot reach ARM code at 0x%x", rel.Index, s)
		}
		blx = true
		v = int64(s) + a - int64(p&^3)
	}

	if useStub {
		if !call {
			return fmt.Errorf("relocation %d: Thumb B.W cannot branch through an ARM stub", rel.Index)
		}
		stub, err := o.stubFor(sec, uint64(int64(s)+a+thumbPCBias)|t)
		if err != nil {
			return fmt.Errorf("relocation %d: %w", rel.Index, err)
		}
		blx = true
		v = int64(stub) - thumbPCBias - int64(p&^3)
	}
	if !fitsSigned(v, 25) {
		return fmt.Errorf("relocation %d: branch from 0x%x out of range", rel.Index, p)
	}

	if blx {
		v &^= 3
	}
	hi, lo = thumbBranchEncode(hi, lo, v)
	switch {
	case blx:
		lo &^= thumbBLXBit
	case call:
		lo |= thumbBLXBit
	}
	o.order.PutUint16(b, hi)
	o.order.PutUint16(b[2:], lo)
	return nil
}
