// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"github.com/WonderfulToolchain/wf-linkloader/elf"
)

func (o *Object) relocate386(st *SymTab, rt *RelTable, sec *ProgBits) error {
	for _, rel := range rt.Relocations {
		typ := elf.R_386(rel.Type)
		if typ == elf.R_386_NONE {
			continue
		}
		_, s, _, err := o.relocationSymbol(st, rel)
		if err != nil {
			return err
		}
		b, err := sec.site(rel.Offset, 4)
		if err != nil {
			return err
		}
		a := int64(int32(o.order.Uint32(b)))
		if rel.HasAddend {
			a = rel.Addend
		}
		p := sec.Addr() + rel.Offset

		switch typ {
		case elf.R_386_32:
			o.order.PutUint32(b, uint32(s+uint64(a)))
		case elf.R_386_PC32, elf.R_386_PLT32:
			o.order.PutUint32(b, uint32(s+uint64(a)-p))
		default:
			return o.unsupported(rel)
		}
	}
	return nil
}

func (o *Object) relocateX86_64(st *SymTab, rt *RelTable, sec *ProgBits) error {
	for _, rel := range rt.Relocations {
		typ := elf.R_X86_64(rel.Type)
		if typ == elf.R_X86_64_NONE {
			continue
		}
		_, s, _, err := o.relocationSymbol(st, rel)
		if err != nil {
			return err
		}
		p := sec.Addr() + rel.Offset

		width := 4
		switch typ {
		case elf.R_X86_64_64:
			width = o.opts.absWidth() / 8
		case elf.R_X86_64_PC64:
			width = 8
		}
		b, err := sec.site(rel.Offset, width)
		if err != nil {
			return err
		}
		var a int64
		switch {
		case rel.HasAddend:
			a = rel.Addend
		case width == 8:
			a = int64(o.order.Uint64(b))
		default:
			a = int64(int32(o.order.Uint32(b)))
		}

		var v uint64
		switch typ {
		case elf.R_X86_64_64, elf.R_X86_64_32, elf.R_X86_64_32S:
			v = s + uint64(a)
		case elf.R_X86_64_PC32, elf.R_X86_64_PLT32, elf.R_X86_64_PC64:
			v = s + uint64(a) - p
		default:
			return o.unsupported(rel)
		}
		if width == 8 {
			o.order.PutUint64(b, v)
		} else {
			o.order.PutUint32(b, uint32(v))
		}
	}
	return nil
}
