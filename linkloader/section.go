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

// A Section is the loaded form of one section header. The concrete type is
// one of *StrTab, *SymTab, *RelTable, *ProgBits or *NoBits.
type Section interface {
	Header() *elf.SectionHeader
	Name() string
}

type sectionBase struct {
	header *elf.SectionHeader
}

func (s *sectionBase) Header() *elf.SectionHeader {
	return s.header
}

func (s *sectionBase) Name() string {
	return s.header.Name
}

// readSection materializes the section described by sh. Unsupported section
// types yield a nil Section and no error.
func (o *Object) readSection(a *elf.Archiver, sh *elf.SectionHeader) (Section, error) {
	switch sh.Type {
	case elf.SHT_STRTAB, elf.SHT_SYMTAB, elf.SHT_REL, elf.SHT_RELA, elf.SHT_PROGBITS:
		if err := elf.CheckSectionBounds(a, sh); err != nil {
			return nil, err
		}
	}

	switch sh.Type {
	case elf.SHT_STRTAB:
		return readStrTab(a, sh)
	case elf.SHT_SYMTAB:
		return o.readSymTab(a, sh)
	case elf.SHT_REL, elf.SHT_RELA:
		return o.readRelTable(a, sh)
	case elf.SHT_PROGBITS:
		return o.readProgBits(a, sh)
	case elf.SHT_NOBITS:
		return o.readNoBits(sh)
	default:
		// SHT_NULL and anything else we do not load.
		return nil, nil
	}
}

// StrTab is a loaded string table.
type StrTab struct {
	sectionBase
	table elf.StringTable
}

func readStrTab(a *elf.Archiver, sh *elf.SectionHeader) (*StrTab, error) {
	table, err := elf.ReadStringTable(a, sh)
	if err != nil {
		return nil, err
	}
	return &StrTab{sectionBase{sh}, table}, nil
}

func (s *StrTab) Table() elf.StringTable {
	return s.table
}

// String returns the string at byte offset off.
func (s *StrTab) String(off uint32) (string, error) {
	return s.table.Lookup(off)
}

// Bits is the common part of sections that occupy memory in the loaded image.
type Bits struct {
	sectionBase
	chunk *memchunk.Chunk
	size  uint64
}

// Addr returns the load address of the first byte of the section.
func (b *Bits) Addr() uint64 {
	return b.chunk.Addr()
}

// Size returns the section size declared by its header.
func (b *Bits) Size() uint64 {
	return b.size
}

// Bytes returns the section contents.
func (b *Bits) Bytes() []byte {
	return b.chunk.Bytes()[:b.size]
}

func (b *Bits) Prot() memchunk.Prot {
	return b.chunk.Prot()
}

// site returns n bytes at offset off, which must lie within the section.
func (b *Bits) site(off uint64, n int) ([]byte, error) {
	if off > b.size || b.size-off < uint64(n) {
		return nil, fmt.Errorf("%d byte relocation at 0x%x outside section %q of size 0x%x", n, off, b.Name(), b.size)
	}
	return b.chunk.Bytes()[off : off+uint64(n)], nil
}

func (b *Bits) protect() error {
	prot := memchunk.ProtReadExec
	if b.header.Flags&elf.SHF_WRITE != 0 {
		prot = memchunk.ProtReadWrite
	}
	return b.chunk.Protect(prot)
}

func (b *Bits) free() error {
	if b.chunk == nil {
		return nil
	}
	return b.chunk.Free()
}

// ProgBits is a section with file-backed contents, optionally followed by a
// trampoline table.
type ProgBits struct {
	Bits
	stubs *relocation.StubLayout
}

func (o *Object) readProgBits(a *elf.Archiver, sh *elf.SectionHeader) (*ProgBits, error) {
	if sh.Size > memchunk.MaxSize {
		return nil, fmt.Errorf("size 0x%x: %w", sh.Size, memchunk.ErrLimit)
	}
	size := (sh.Size + 3) &^ 3

	var unit int
	switch o.header.Machine {
	case elf.EM_ARM:
		unit = relocation.ARMStubSize
	case elf.EM_MIPS:
		unit = relocation.MIPSStubSize
	}

	data := make([]byte, sh.Size)
	a.Seek(sh.Offset)
	a.Bytes(data)
	if !a.OK() {
		return nil, a.Err()
	}

	// Implicit addends pick stub targets, so the tables are sized against
	// the file contents.
	nstubs := 0
	if unit > 0 {
		for _, rt := range o.pairedRelTables(sh.Index) {
			nstubs += rt.MaxNumStubs(o.header.Machine, o.order, data)
		}
	}

	chunk, err := memchunk.New(o.alloc, int(size)+nstubs*unit)
	if err != nil {
		return nil, err
	}
	s := &ProgBits{Bits: Bits{sectionBase{sh}, chunk, sh.Size}}
	copy(chunk.Bytes(), data)

	tail := chunk.Bytes()[size:]
	switch o.header.Machine {
	case elf.EM_ARM:
		s.stubs = relocation.NewARMStubLayout(tail, chunk.Addr()+size, o.order)
	case elf.EM_MIPS:
		s.stubs = relocation.NewMIPSStubLayout(tail, chunk.Addr()+size, o.order)
	}
	return s, nil
}

// Stubs returns the trampoline table, or nil on machines that need none.
func (s *ProgBits) Stubs() *relocation.StubLayout {
	return s.stubs
}

// NoBits is a zero-filled section with no contents in the file.
type NoBits struct {
	Bits
}

func (o *Object) readNoBits(sh *elf.SectionHeader) (*NoBits, error) {
	if sh.Size > memchunk.MaxSize {
		return nil, fmt.Errorf("size 0x%x: %w", sh.Size, memchunk.ErrLimit)
	}
	chunk, err := memchunk.New(o.alloc, int(sh.Size))
	if err != nil {
		return nil, err
	}
	return &NoBits{Bits{sectionBase{sh}, chunk, sh.Size}}, nil
}
