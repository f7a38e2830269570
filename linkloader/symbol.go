// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"fmt"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
	"github.com/WonderfulToolchain/wf-linkloader/memchunk"
	"github.com/WonderfulToolchain/wf-linkloader/relocation"
)

// bits returns the memory-backed section at index i, or nil.
func (o *Object) bits(i uint16) *Bits {
	switch s := o.Section(int(i)).(type) {
	case *ProgBits:
		return &s.Bits
	case *NoBits:
		return &s.Bits
	}
	return nil
}

// thumbBit returns 1 for ARM functions implemented in Thumb code.
func (o *Object) thumbBit(sym *Symbol) uint64 {
	if o.header.Machine == elf.EM_ARM && sym.Type == elf.STT_FUNC {
		return sym.Value & 1
	}
	return 0
}

// symbolAddress computes the load address of a symbol defined by the
// object. The bool result is false for undefined NOTYPE symbols, and for
// common symbols when allocate is false and no address has been assigned.
// ARM function addresses never include the Thumb bit.
func (o *Object) symbolAddress(sym *Symbol, allocate bool) (uint64, bool, error) {
	switch sym.state {
	case addrResolved:
		return sym.addr, true, nil
	case addrFailed:
		return 0, false, nil
	}

	var addr uint64
	switch sym.Type {
	case elf.STT_OBJECT:
		switch {
		case sym.IsOrdinary():
			sec := o.Section(int(sym.SectionIndex))
			switch s := sec.(type) {
			case *ProgBits:
				addr = s.Addr() + sym.Value
			case *NoBits:
				// Uninitialized data lives in the common arena, so that
				// its placement honours the symbol's own size.
				if !allocate {
					return 0, false, nil
				}
				a, err := o.allocCommon(sym, relocation.DefaultAlignment)
				if err != nil {
					return 0, false, err
				}
				addr = a
			default:
				return 0, false, fmt.Errorf("object %q in unloaded section %d", sym.Name, sym.SectionIndex)
			}
		case sym.SectionIndex == elf.SHN_COMMON:
			if !allocate {
				return 0, false, nil
			}
			a, err := o.allocCommon(sym, sym.Value)
			if err != nil {
				return 0, false, err
			}
			addr = a
		default:
			return 0, false, fmt.Errorf("object %q has unsupported section index 0x%x", sym.Name, sym.SectionIndex)
		}

	case elf.STT_FUNC:
		if !sym.IsOrdinary() {
			return 0, false, fmt.Errorf("function %q has unsupported section index 0x%x", sym.Name, sym.SectionIndex)
		}
		s, ok := o.Section(int(sym.SectionIndex)).(*ProgBits)
		if !ok {
			return 0, false, fmt.Errorf("function %q in unloaded section %d", sym.Name, sym.SectionIndex)
		}
		addr = s.Addr() + sym.Value - o.thumbBit(sym)

	case elf.STT_SECTION, elf.STT_NOTYPE:
		switch {
		case sym.IsOrdinary():
			b := o.bits(sym.SectionIndex)
			if b == nil {
				return 0, false, fmt.Errorf("symbol %q in unloaded section %d", sym.Name, sym.SectionIndex)
			}
			addr = b.Addr() + sym.Value
		case sym.Type == elf.STT_NOTYPE && sym.IsUndefined():
			return 0, false, nil
		case sym.Type == elf.STT_NOTYPE && sym.SectionIndex == elf.SHN_ABS:
			addr = sym.Value
		default:
			return 0, false, fmt.Errorf("symbol %q has unsupported section index 0x%x", sym.Name, sym.SectionIndex)
		}

	default:
		return 0, false, fmt.Errorf("symbol %q: type %s not supported", sym.Name, sym.Type)
	}

	sym.state = addrResolved
	sym.addr = addr
	return addr, true, nil
}

// external resolves an undefined symbol through the resolver. Failures are
// recorded once and flag the object as having missing symbols.
func (o *Object) external(sym *Symbol) uint64 {
	switch sym.state {
	case addrResolved:
		return sym.addr
	case addrFailed:
		return 0
	}
	if o.resolver != nil {
		if addr, ok := o.resolver(sym.Name); ok {
			sym.state = addrResolved
			sym.addr = addr
			return addr
		}
	}
	sym.state = addrFailed
	o.missing = true
	o.logf("unresolved symbol %q", sym.Name)
	return 0
}

// resolve returns S for a relocation against sym, and whether the symbol is
// external to the object.
func (o *Object) resolve(sym *Symbol) (uint64, bool, error) {
	if sym.Type == elf.STT_NOTYPE && sym.IsUndefined() {
		if sym.Index == 0 {
			return 0, false, nil
		}
		return o.external(sym), true, nil
	}
	addr, _, err := o.symbolAddress(sym, true)
	return addr, false, err
}

// SymbolAddress returns the run-time address of a symbol defined by the
// object. ARM Thumb functions have the Thumb bit set.
func (o *Object) SymbolAddress(name string) (uint64, bool) {
	st := o.SymTab()
	if st == nil {
		return 0, false
	}
	sym := st.Lookup(name)
	if sym == nil || sym.IsUndefined() {
		return 0, false
	}
	addr, ok, err := o.symbolAddress(sym, false)
	if err != nil || !ok {
		return 0, false
	}
	return addr + o.thumbBit(sym), true
}

// commonSize returns the worst-case arena size for every data object of
// the symbol table.
func commonSize(st *SymTab) uint64 {
	var sizes, aligns []uint64
	for _, sym := range st.symbols {
		if sym.Type != elf.STT_OBJECT {
			continue
		}
		align := uint64(relocation.DefaultAlignment)
		if sym.SectionIndex == elf.SHN_COMMON {
			align = sym.Value
		}
		sizes = append(sizes, sym.Size)
		aligns = append(aligns, align)
	}
	return relocation.ArenaSize(sizes, aligns)
}

func (o *Object) allocArena(st *SymTab) error {
	size := commonSize(st)
	if size == 0 {
		return nil
	}
	if size > memchunk.MaxSize {
		return fmt.Errorf("common data arena of 0x%x bytes: %w", size, memchunk.ErrLimit)
	}
	chunk, err := memchunk.New(o.alloc, int(size))
	if err != nil {
		return fmt.Errorf("common data arena of 0x%x bytes: %w", size, err)
	}
	o.common = chunk
	o.arena = relocation.NewArena(chunk.Bytes(), chunk.Addr())
	o.logf("common data arena: 0x%x bytes at 0x%x", size, chunk.Addr())
	return nil
}

func (o *Object) allocCommon(sym *Symbol, align uint64) (uint64, error) {
	if o.arena == nil {
		return 0, fmt.Errorf("common symbol %q: %w", sym.Name, relocation.ErrArenaExhausted)
	}
	addr, err := o.arena.Alloc(sym.Size, align)
	if err != nil {
		return 0, fmt.Errorf("common symbol %q: %w", sym.Name, err)
	}
	return addr, nil
}

// Unresolved returns the names of external symbols the resolver could not
// provide, in symbol table order.
func (o *Object) Unresolved() []string {
	st := o.SymTab()
	if st == nil {
		return nil
	}
	var names []string
	for _, sym := range st.symbols {
		if sym.state == addrFailed {
			names = append(names, sym.Name)
		}
	}
	return names
}
