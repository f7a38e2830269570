// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package linkloader loads relocatable ELF objects into executable memory.
//
// Read parses an object and copies its allocatable sections into memory
// chunks; Relocate resolves symbols, patches every relocation site and
// applies the final page protections.
package linkloader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
	"github.com/WonderfulToolchain/wf-linkloader/memchunk"
	"github.com/WonderfulToolchain/wf-linkloader/relocation"
)

var (
	ErrStubsExhausted        = errors.New("stub table exhausted")
	ErrUnsupportedRelocation = errors.New("unsupported relocation")
	ErrAlreadyRelocated      = errors.New("object already relocated")
)

// A Resolver returns the address of an external symbol. The second result
// is false when the name is unknown.
type Resolver func(name string) (uint64, bool)

// Object is a loaded relocatable ELF file.
type Object struct {
	opts  Options
	alloc memchunk.Allocator
	order binary.ByteOrder

	header   *elf.Header
	shtab    *elf.SectionHeaderTable
	sections []Section

	common *memchunk.Chunk
	arena  *relocation.Arena
	got    *mipsGOT

	resolver  Resolver
	missing   bool
	relocated bool
}

// Read parses an ELF relocatable object from r and loads its sections.
func Read(r io.ReadSeeker, opts Options) (*Object, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	o := &Object{opts: opts, alloc: opts.allocator()}
	if err := o.read(elf.NewArchiver(r)); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

func (o *Object) read(a *elf.Archiver) error {
	h, err := elf.ReadHeader(a)
	if err != nil {
		return err
	}
	o.header = h
	o.order = h.ByteOrder()

	switch h.Machine {
	case elf.EM_386, elf.EM_X86_64, elf.EM_ARM, elf.EM_MIPS:
	default:
		o.logf("machine %s has no relocation support", h.Machine)
	}

	shtab, err := elf.ReadSectionHeaderTable(a, h)
	if err != nil {
		return err
	}
	o.shtab = shtab
	o.sections = make([]Section, shtab.Len())
	if shtab.Len() == 0 {
		return nil
	}

	// String tables come first: the section name table is needed to pair
	// relocation tables with their targets, symbol tables need their names.
	for _, sh := range shtab.Headers {
		if sh.Type == elf.SHT_STRTAB {
			if err := o.load(a, sh); err != nil {
				return err
			}
		}
	}

	shstrtab, ok := o.sections[h.SecHdrStrIdx].(*StrTab)
	if !ok {
		return fmt.Errorf("section %d is not a string table", h.SecHdrStrIdx)
	}
	if err := shtab.BuildNameMap(shstrtab.Table()); err != nil {
		return err
	}

	for _, sh := range shtab.Headers {
		if sh.Type != elf.SHT_STRTAB && sh.Type != elf.SHT_PROGBITS {
			if err := o.load(a, sh); err != nil {
				return err
			}
		}
	}

	// PROGBITS last, so each one knows how many stubs its relocations need.
	for _, sh := range shtab.Headers {
		if sh.Type == elf.SHT_PROGBITS {
			if err := o.load(a, sh); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Object) load(a *elf.Archiver, sh *elf.SectionHeader) error {
	s, err := o.readSection(a, sh)
	if err != nil {
		return fmt.Errorf("section %d (%s): %w", sh.Index, sh.Type, err)
	}
	if s != nil {
		o.sections[sh.Index] = s
		o.logf("section %d %q: %s, 0x%x bytes", sh.Index, sh.Name, sh.Type, sh.Size)
	}
	return nil
}

// Close releases every memory chunk owned by the object.
func (o *Object) Close() error {
	var errs []error
	for _, s := range o.sections {
		switch s := s.(type) {
		case *ProgBits:
			errs = append(errs, s.free())
		case *NoBits:
			errs = append(errs, s.free())
		}
	}
	o.sections = nil
	if o.common != nil {
		errs = append(errs, o.common.Free())
		o.common = nil
		o.arena = nil
	}
	if o.got != nil {
		errs = append(errs, o.got.free())
		o.got = nil
	}
	return errors.Join(errs...)
}

func (o *Object) Header() *elf.Header {
	return o.header
}

func (o *Object) Machine() elf.MachineType {
	return o.header.Machine
}

func (o *Object) SectionHeaders() *elf.SectionHeaderTable {
	return o.shtab
}

// Sections returns the loaded sections indexed by section header index.
// Unsupported sections are nil.
func (o *Object) Sections() []Section {
	return o.sections
}

// Section returns the section at index i, or nil.
func (o *Object) Section(i int) Section {
	if i < 0 || i >= len(o.sections) {
		return nil
	}
	return o.sections[i]
}

// SectionByName returns the first loaded section with the given name, or nil.
func (o *Object) SectionByName(name string) Section {
	if o.shtab == nil {
		return nil
	}
	sh := o.shtab.Lookup(name)
	if sh == nil {
		return nil
	}
	return o.sections[sh.Index]
}

// StrTab returns the ".strtab" section, or nil.
func (o *Object) StrTab() *StrTab {
	s, _ := o.SectionByName(".strtab").(*StrTab)
	return s
}

// SymTab returns the first symbol table, or nil.
func (o *Object) SymTab() *SymTab {
	for _, s := range o.sections {
		if st, ok := s.(*SymTab); ok {
			return st
		}
	}
	return nil
}

// MissingSymbols reports whether relocation left some symbols unresolved,
// or the common data arena could not be allocated.
func (o *Object) MissingSymbols() bool {
	return o.missing
}

// Stubs returns the number of trampolines allocated across all sections.
func (o *Object) Stubs() int {
	n := 0
	for _, s := range o.sections {
		if pb, ok := s.(*ProgBits); ok && pb.stubs != nil {
			n += pb.stubs.Len()
		}
	}
	return n
}

// relocationTargetIndex returns the index of the section patched by rt: the
// PROGBITS section named after it when there is one, otherwise the header's
// info link.
func (o *Object) relocationTargetIndex(rt *RelTable) int {
	name := rt.Name()
	for _, prefix := range []string{".rela", ".rel"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			if sh := o.shtab.Lookup(rest); sh != nil && sh.Type == elf.SHT_PROGBITS {
				return sh.Index
			}
			break
		}
	}
	return int(rt.header.Info)
}

// pairedRelTables returns the loaded relocation tables that patch section
// index.
func (o *Object) pairedRelTables(index int) []*RelTable {
	var tables []*RelTable
	for _, s := range o.sections {
		if rt, ok := s.(*RelTable); ok && o.relocationTargetIndex(rt) == index {
			tables = append(tables, rt)
		}
	}
	return tables
}
