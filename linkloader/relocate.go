// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"errors"
	"fmt"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
)

// Relocate resolves symbols, patches every relocation table and protects
// the loaded sections: writable sections become read-write, all others
// read-execute. External symbols are looked up through resolver, which may
// be nil. Symbols that cannot be resolved are patched as address zero and
// reported by MissingSymbols.
//
// When the common data arena cannot be allocated, Relocate returns an error
// before patching or protecting anything.
func (o *Object) Relocate(resolver Resolver) error {
	if o.relocated {
		return ErrAlreadyRelocated
	}
	o.relocated = true
	o.resolver = resolver

	st := o.SymTab()
	if st != nil {
		if err := o.allocArena(st); err != nil {
			o.missing = true
			return err
		}
	}
	if o.header.Machine == elf.EM_MIPS {
		if err := o.allocGOT(); err != nil {
			return err
		}
	}

	for _, s := range o.sections {
		rt, ok := s.(*RelTable)
		if !ok {
			continue
		}
		target := o.relocationTarget(rt)
		if target == nil {
			o.logf("%s: target section not loaded, skipping", rt.Name())
			continue
		}
		if st == nil {
			return fmt.Errorf("%s: no symbol table", rt.Name())
		}
		if err := o.relocateTable(st, rt, target); err != nil {
			return fmt.Errorf("%s: %w", rt.Name(), err)
		}
	}

	return o.protect()
}

func (o *Object) relocationTarget(rt *RelTable) *ProgBits {
	pb, _ := o.Section(o.relocationTargetIndex(rt)).(*ProgBits)
	return pb
}

func (o *Object) relocateTable(st *SymTab, rt *RelTable, target *ProgBits) error {
	o.logf("%s: %d relocations against %s at 0x%x", rt.Name(), rt.Len(), target.Name(), target.Addr())
	switch o.header.Machine {
	case elf.EM_ARM:
		return o.relocateARM(st, rt, target)
	case elf.EM_386:
		return o.relocate386(st, rt, target)
	case elf.EM_X86_64:
		return o.relocateX86_64(st, rt, target)
	case elf.EM_MIPS:
		return o.relocateMIPS(st, rt, target)
	}
	return fmt.Errorf("%w: machine %s", ErrUnsupportedRelocation, o.header.Machine)
}

// relocationSymbol returns the symbol referenced by rel with its address.
func (o *Object) relocationSymbol(st *SymTab, rel *elf.Relocation) (*Symbol, uint64, bool, error) {
	sym := st.At(int(rel.SymbolIndex))
	if sym == nil {
		return nil, 0, false, fmt.Errorf("relocation %d: symbol index %d out of range", rel.Index, rel.SymbolIndex)
	}
	s, external, err := o.resolve(sym)
	if err != nil {
		return nil, 0, false, fmt.Errorf("relocation %d: %w", rel.Index, err)
	}
	return sym, s, external, nil
}

func (o *Object) unsupported(rel *elf.Relocation) error {
	return fmt.Errorf("relocation %d: %w %s", rel.Index, ErrUnsupportedRelocation,
		elf.RelocationTypeName(o.header.Machine, rel.Type))
}

func (o *Object) stubFor(sec *ProgBits, target uint64) (uint64, error) {
	if sec.stubs == nil {
		return 0, fmt.Errorf("%s: no stub table", sec.Name())
	}
	addr, ok := sec.stubs.AllocateStub(target)
	if !ok {
		return 0, fmt.Errorf("%s: %w (capacity %d)", sec.Name(), ErrStubsExhausted, sec.stubs.Capacity())
	}
	o.logf("stub for 0x%x at 0x%x", target, addr)
	return addr, nil
}

func (o *Object) protect() error {
	var errs []error
	for _, s := range o.sections {
		switch s := s.(type) {
		case *ProgBits:
			errs = append(errs, s.protect())
		case *NoBits:
			errs = append(errs, s.protect())
		}
	}
	if o.got != nil {
		errs = append(errs, o.got.protect())
	}
	return errors.Join(errs...)
}

func signExtend(v uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

func fitsSigned(v int64, bits uint) bool {
	limit := int64(1) << (bits - 1)
	return v >= -limit && v < limit
}
