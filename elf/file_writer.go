// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"fmt"
	"io"
	"slices"
)

type stringTable struct {
	strings map[string]uint32
	pos     uint32
}

func newStringTable() stringTable {
	t := stringTable{
		strings: make(map[string]uint32),
		pos:     0,
	}
	t.Add("")
	return t
}

func (e *stringTable) Add(s string) uint32 {
	// TODO: Support substrings
	if val, ok := e.strings[s]; ok {
		return val
	}
	sPos := e.pos
	e.pos += uint32(len(s)) + 1
	e.strings[s] = sPos
	return sPos
}

func (e *stringTable) ToData() []byte {
	data := make([]byte, e.pos)
	for s, i := range e.strings {
		data = slices.Replace(data, int(i), int(i)+len(s), []byte(s)...)
	}
	return data
}

type builderSection struct {
	SectionHeader
	data []byte
}

// A Builder assembles a relocatable ELF object in memory. Section and symbol
// indices returned by the Add methods are the indices in the written file.
type Builder struct {
	Class   FileClass
	Endian  FileEndian
	Machine MachineType
	Flags   uint32

	sections    []*builderSection
	symbols     []*Symbol
	relocations map[int][]*Relocation
	relocOrder  []int
}

func NewBuilder(class FileClass, endian FileEndian, machine MachineType) *Builder {
	return &Builder{
		Class:       class,
		Endian:      endian,
		Machine:     machine,
		sections:    []*builderSection{{}},
		symbols:     []*Symbol{{}},
		relocations: make(map[int][]*Relocation),
	}
}

// AddSection adds a section with file-backed contents and returns its index.
func (b *Builder) AddSection(name string, typ SectionHeaderType, flags SectionHeaderFlag, data []byte) int {
	b.sections = append(b.sections, &builderSection{
		SectionHeader: SectionHeader{
			Name:      name,
			Type:      typ,
			Flags:     flags,
			Size:      uint64(len(data)),
			AddrAlign: 4,
		},
		data: data,
	})
	return len(b.sections) - 1
}

// AddNoBits adds a SHT_NOBITS section of the given size and returns its index.
func (b *Builder) AddNoBits(name string, flags SectionHeaderFlag, size uint64) int {
	b.sections = append(b.sections, &builderSection{
		SectionHeader: SectionHeader{
			Name:      name,
			Type:      SHT_NOBITS,
			Flags:     flags,
			Size:      size,
			AddrAlign: 16,
		},
	})
	return len(b.sections) - 1
}

// AddSymbol appends a symbol and returns its symbol table index.
func (b *Builder) AddSymbol(sym Symbol) uint32 {
	s := sym
	b.symbols = append(b.symbols, &s)
	return uint32(len(b.symbols) - 1)
}

// AddRelocation records a relocation against the section at index section.
// A section's relocation table is written as SHT_RELA if any of its
// relocations has an addend field, SHT_REL otherwise.
func (b *Builder) AddRelocation(section int, rel Relocation) {
	r := rel
	if _, ok := b.relocations[section]; !ok {
		b.relocOrder = append(b.relocOrder, section)
	}
	b.relocations[section] = append(b.relocations[section], &r)
}

func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Builder) Write(w io.Writer) error {
	header := &Header{
		Class:         b.Class,
		Endian:        b.Endian,
		HeaderVersion: EV_CURRENT,
		Type:          ET_REL,
		Machine:       b.Machine,
		Version:       EV_CURRENT,
		Flags:         b.Flags,
		HeaderSize:    uint16(HeaderSize(b.Class)),
	}
	order := header.ByteOrder()

	if len(b.sections) > SHN_LORESERVE {
		return fmt.Errorf("unsupported section count: %d", len(b.sections))
	}

	sections := slices.Clone(b.sections)
	sectionStringTable := newStringTable()
	stringTable := newStringTable()

	symtabIdx := len(sections) + len(b.relocOrder)
	strtabIdx := symtabIdx + 1

	// Create relocation table sections
	for _, target := range b.relocOrder {
		relocations := b.relocations[target]
		rela := false
		for _, rel := range relocations {
			if rel.HasAddend {
				rela = true
				break
			}
		}
		relType := SHT_REL
		relName := ".rel"
		if rela {
			relType = SHT_RELA
			relName = ".rela"
		}

		var relBuffer bytes.Buffer
		for _, rel := range relocations {
			if err := writeRelocation(&relBuffer, b.Class, order, rela, rel); err != nil {
				return err
			}
		}

		sections = append(sections, &builderSection{
			SectionHeader: SectionHeader{
				Name:      relName + sections[target].Name,
				Type:      relType,
				Flags:     SHF_INFO_LINK,
				Size:      uint64(relBuffer.Len()),
				Link:      uint32(symtabIdx),
				Info:      uint32(target),
				AddrAlign: 4,
				EntrySize: uint64(RelocationSize(b.Class, rela)),
			},
			data: relBuffer.Bytes(),
		})
	}

	// Populate symbol table
	symbolTableSection := &builderSection{
		SectionHeader: SectionHeader{
			Name:      ".symtab",
			Type:      SHT_SYMTAB,
			Link:      uint32(strtabIdx),
			AddrAlign: 4,
			EntrySize: uint64(SymbolSize(b.Class)),
		},
	}
	globalBindingSet := false
	var symtabBuffer bytes.Buffer
	for i, sym := range b.symbols {
		sym.NameOffset = stringTable.Add(sym.Name)
		if !globalBindingSet && sym.Binding != STB_LOCAL {
			symbolTableSection.Info = uint32(i)
			globalBindingSet = true
		}
		if err := writeSymbol(&symtabBuffer, b.Class, order, sym); err != nil {
			return err
		}
	}
	if !globalBindingSet {
		symbolTableSection.Info = uint32(len(b.symbols))
	}
	symbolTableSection.data = symtabBuffer.Bytes()
	symbolTableSection.Size = uint64(len(symbolTableSection.data))

	stringTableSection := &builderSection{
		SectionHeader: SectionHeader{
			Name:      ".strtab",
			Type:      SHT_STRTAB,
			AddrAlign: 1,
		},
	}
	sectionStringTableSection := &builderSection{
		SectionHeader: SectionHeader{
			Name:      ".shstrtab",
			Type:      SHT_STRTAB,
			AddrAlign: 1,
		},
	}
	sections = append(sections, symbolTableSection, stringTableSection, sectionStringTableSection)
	header.SecHdrStrIdx = uint16(len(sections) - 1)

	// Populate string tables
	for _, sh := range sections {
		sh.NameOffset = sectionStringTable.Add(sh.Name)
	}
	stringTableSection.data = stringTable.ToData()
	stringTableSection.Size = uint64(len(stringTableSection.data))
	sectionStringTableSection.data = sectionStringTable.ToData()
	sectionStringTableSection.Size = uint64(len(sectionStringTableSection.data))

	// Layout file contents:
	// - file header
	// - section data
	// - section headers
	writeOffset := uint64(header.HeaderSize)
	for i, sh := range sections {
		if i == 0 {
			continue
		}
		writeOffset = alignUp(writeOffset, 8)
		sh.Offset = writeOffset
		if sh.Type.HasDataInFile() {
			writeOffset += uint64(len(sh.data))
		}
	}
	writeOffset = alignUp(writeOffset, 8)
	header.SecHdrOffset = writeOffset
	header.SecHdrEntrySize = uint16(sectionHeaderSize(b.Class))
	header.SecHdrCount = uint16(len(sections))

	var out bytes.Buffer
	if err := header.write(&out); err != nil {
		return err
	}
	for i, sh := range sections {
		if i == 0 || !sh.Type.HasDataInFile() {
			continue
		}
		pad(&out, sh.Offset)
		out.Write(sh.data)
	}
	pad(&out, header.SecHdrOffset)
	for _, sh := range sections {
		if err := writeSectionHeader(&out, b.Class, order, &sh.SectionHeader); err != nil {
			return err
		}
	}

	_, err := w.Write(out.Bytes())
	return err
}

func alignUp(v uint64, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func pad(buf *bytes.Buffer, offset uint64) {
	for uint64(buf.Len()) < offset {
		buf.WriteByte(0)
	}
}
