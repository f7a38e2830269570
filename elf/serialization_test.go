// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiverSticky(t *testing.T) {
	a := NewArchiver(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, int64(6), a.Size())
	assert.Equal(t, uint32(0x04030201), a.Word())
	assert.Equal(t, uint16(0x0605), a.Half())
	assert.True(t, a.OK())

	assert.Equal(t, uint32(0), a.Word())
	assert.ErrorIs(t, a.Err(), ErrTruncated)

	// Once failed, everything is a no-op.
	a.Seek(0)
	assert.Equal(t, uint8(0), a.Uint8())
	assert.Equal(t, int64(6), a.Tell())
}

func TestArchiverPrologue(t *testing.T) {
	a := NewArchiver(bytes.NewReader(make([]byte, 8)))
	a.SetByteOrder(binary.BigEndian)
	a.Prologue(8)
	a.Word()
	a.Epilogue(8)
	assert.ErrorIs(t, a.Err(), ErrSizeMismatch)

	a = NewArchiver(bytes.NewReader(make([]byte, 8)))
	a.Seek(4)
	a.Prologue(8)
	assert.ErrorIs(t, a.Err(), ErrTruncated)

	a = NewArchiver(bytes.NewReader(make([]byte, 8)))
	a.Seek(9)
	assert.ErrorIs(t, a.Err(), ErrTruncated)
}

func TestArchiverClass(t *testing.T) {
	data := []byte{1, 0, 0, 0, 0, 0, 0, 0x80}
	a := NewArchiver(bytes.NewReader(data))
	a.SetClass(ELFCLASS32)
	assert.Equal(t, uint64(1), a.Addr())

	a = NewArchiver(bytes.NewReader(data))
	a.SetClass(ELFCLASS64)
	assert.Equal(t, uint64(0x8000000000000001), a.Addr())
}

func testObject(t *testing.T, class FileClass, endian FileEndian) []byte {
	b := NewBuilder(class, endian, EM_MIPS)
	text := b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, []byte{0, 0, 0, 8})
	bss := b.AddNoBits(".bss", SHF_ALLOC|SHF_WRITE, 0x100)
	b.AddSymbol(Symbol{Name: "local", Type: STT_OBJECT, Binding: STB_LOCAL, SectionIndex: uint16(bss), Size: 4})
	fn := b.AddSymbol(Symbol{Name: "fn", Type: STT_FUNC, Binding: STB_GLOBAL, SectionIndex: uint16(text), Size: 4})
	b.AddRelocation(text, Relocation{Offset: 0, SymbolIndex: fn, Type: uint32(R_MIPS_26)})
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		class  FileClass
		endian FileEndian
	}{
		{ELFCLASS32, ELFDATA2LSB},
		{ELFCLASS32, ELFDATA2MSB},
		{ELFCLASS64, ELFDATA2LSB},
		{ELFCLASS64, ELFDATA2MSB},
	} {
		t.Run(tc.class.String(), func(t *testing.T) {
			a := NewArchiver(bytes.NewReader(testObject(t, tc.class, tc.endian)))
			h, err := ReadHeader(a)
			require.NoError(t, err)
			assert.Equal(t, tc.class, h.Class)
			assert.Equal(t, tc.endian, h.Endian)
			assert.Equal(t, ET_REL, h.Type)
			assert.Equal(t, EM_MIPS, h.Machine)

			shtab, err := ReadSectionHeaderTable(a, h)
			require.NoError(t, err)
			shstrtab, err := ReadStringTable(a, shtab.At(int(h.SecHdrStrIdx)))
			require.NoError(t, err)
			require.NoError(t, shtab.BuildNameMap(shstrtab))

			text := shtab.Lookup(".text")
			require.NotNil(t, text)
			assert.Equal(t, SHT_PROGBITS, text.Type)
			assert.Equal(t, uint64(4), text.Size)
			assert.Equal(t, SHT_NOBITS, shtab.Lookup(".bss").Type)
			assert.Equal(t, uint64(0x100), shtab.Lookup(".bss").Size)

			rel := shtab.Lookup(".rel.text")
			require.NotNil(t, rel)
			assert.Equal(t, uint32(text.Index), rel.Info)
			assert.Equal(t, 1, rel.Count())
			a.Seek(rel.Offset)
			r, err := ReadRelocation(a, 0, false)
			require.NoError(t, err)
			assert.Equal(t, uint32(R_MIPS_26), r.Type)
			assert.Equal(t, uint32(2), r.SymbolIndex)

			symtab := shtab.Lookup(".symtab")
			require.NotNil(t, symtab)
			assert.Equal(t, uint32(2), symtab.Info)
			strtab, err := ReadStringTable(a, shtab.At(int(symtab.Link)))
			require.NoError(t, err)
			a.Seek(symtab.Offset + 2*uint64(SymbolSize(tc.class)))
			sym, err := ReadSymbol(a, 2)
			require.NoError(t, err)
			name, err := strtab.Lookup(sym.NameOffset)
			require.NoError(t, err)
			assert.Equal(t, "fn", name)
			assert.Equal(t, STT_FUNC, sym.Type)
			assert.Equal(t, STB_GLOBAL, sym.Binding)
			assert.Equal(t, uint16(text.Index), sym.SectionIndex)
			assert.Equal(t, uint64(4), sym.Size)
		})
	}
}

func TestReadHeaderInvalid(t *testing.T) {
	for _, tc := range []struct {
		class                    FileClass
		ehsize, shentsize, shstr int
	}{
		{ELFCLASS32, 40, 46, 50},
		{ELFCLASS64, 52, 58, 62},
	} {
		good := testObject(t, tc.class, ELFDATA2LSB)

		for name, corrupt := range map[string]func([]byte){
			"magic":     func(b []byte) { b[1] = 'X' },
			"class":     func(b []byte) { b[4] = 3 },
			"data":      func(b []byte) { b[5] = 0 },
			"version":   func(b []byte) { b[6] = 2 },
			"padding":   func(b []byte) { b[12] = 1 },
			"e_version": func(b []byte) { b[20] = 2 },
			"ehsize":    func(b []byte) { b[tc.ehsize]++ },
			"shentsize": func(b []byte) { b[tc.shentsize]++ },
			"shstrndx":  func(b []byte) { b[tc.shstr], b[tc.shstr+1] = 0xFF, 0xFF },
			"shstrndx range": func(b []byte) {
				b[tc.shstr], b[tc.shstr+1] = 0xF0, 0x00
			},
		} {
			t.Run(fmt.Sprintf("%s/%s", tc.class, name), func(t *testing.T) {
				data := bytes.Clone(good)
				corrupt(data)
				_, err := ReadHeader(NewArchiver(bytes.NewReader(data)))
				assert.ErrorIs(t, err, ErrInvalidHeader)
			})
		}

		_, err := ReadHeader(NewArchiver(bytes.NewReader(good[:10])))
		assert.ErrorIs(t, err, ErrTruncated)
		_, err = ReadHeader(NewArchiver(bytes.NewReader(good[:HeaderSize(tc.class)-1])))
		assert.ErrorIs(t, err, ErrTruncated)
	}
}

func TestReadStringTableBounds(t *testing.T) {
	data := []byte("\x00.text\x00")
	for name, sh := range map[string]*SectionHeader{
		"past end":   {Type: SHT_STRTAB, Offset: 4, Size: 8},
		"huge":       {Type: SHT_STRTAB, Size: 1 << 62},
		"wraps":      {Type: SHT_STRTAB, Offset: 2, Size: 1<<64 - 1},
		"bad offset": {Type: SHT_STRTAB, Offset: 100},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadStringTable(NewArchiver(bytes.NewReader(data)), sh)
			assert.ErrorIs(t, err, ErrTruncated)
		})
	}

	table, err := ReadStringTable(NewArchiver(bytes.NewReader(data)), &SectionHeader{Type: SHT_STRTAB, Offset: 0, Size: 7})
	require.NoError(t, err)
	assert.Equal(t, StringTable(data), table)

	// Sections without file contents are never out of bounds.
	assert.NoError(t, CheckSectionBounds(NewArchiver(bytes.NewReader(data)), &SectionHeader{Type: SHT_NOBITS, Size: 1 << 62}))
}

func TestStringTable(t *testing.T) {
	s := StringTable("\x00.text\x00.symtab\x00")
	name, err := s.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, ".text", name)
	name, err = s.Lookup(7)
	require.NoError(t, err)
	assert.Equal(t, ".symtab", name)
	name, err = s.Lookup(3)
	require.NoError(t, err)
	assert.Equal(t, "ext", name)

	_, err = s.Lookup(100)
	assert.Error(t, err)
	_, err = StringTable(".text").Lookup(0)
	assert.Error(t, err)

	v, err := StringTable(nil).View(0)
	require.NoError(t, err)
	assert.Empty(t, v)
}
