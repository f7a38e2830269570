// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
	"github.com/WonderfulToolchain/wf-linkloader/memchunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSections(t *testing.T) {
	b := elf.NewBuilder(elf.ELFCLASS32, elf.ELFDATA2LSB, elf.EM_ARM)
	text := b.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, le32(0xE12FFF1E))
	b.AddSection(".note", elf.SHT_NOTE, 0, []byte{1, 2, 3, 4})
	bss := b.AddNoBits(".bss", elf.SHF_ALLOC|elf.SHF_WRITE, 0x40)
	b.AddSymbol(funcSymbol("f", text, 0))

	o, _ := load(t, b, Options{})
	assert.Equal(t, elf.EM_ARM, o.Machine())
	assert.Equal(t, elf.ET_REL, o.Header().Type)

	pb := progBits(t, o, ".text")
	assert.Equal(t, le32(0xE12FFF1E), pb.Bytes())
	assert.Equal(t, text, pb.Header().Index)

	nb, ok := o.Section(bss).(*NoBits)
	require.True(t, ok)
	assert.Equal(t, make([]byte, 0x40), nb.Bytes())

	assert.Nil(t, o.SectionByName(".note"))
	assert.Nil(t, o.Section(0))
	assert.Nil(t, o.Section(1000))

	require.NotNil(t, o.SymTab())
	require.NotNil(t, o.StrTab())
	assert.Equal(t, 2, o.SymTab().Len())
	assert.NotNil(t, o.SymTab().Lookup("f"))
	assert.Nil(t, o.SymTab().Lookup("g"))

	s, ok := o.SectionByName(".shstrtab").(*StrTab)
	require.True(t, ok)
	name, err := s.String(uint32(pb.Header().NameOffset))
	require.NoError(t, err)
	assert.Equal(t, ".text", name)
}

func TestReadInvalid(t *testing.T) {
	b := elf.NewBuilder(elf.ELFCLASS64, elf.ELFDATA2LSB, elf.EM_X86_64)
	b.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, []byte{0xC3})
	data, err := b.Bytes()
	require.NoError(t, err)

	alloc := memchunk.NewVirtualAllocator(testBase)

	bad := bytes.Clone(data)
	bad[0] = 0
	_, err = Read(bytes.NewReader(bad), Options{Allocator: alloc})
	assert.ErrorIs(t, err, elf.ErrInvalidHeader)

	_, err = Read(bytes.NewReader(data[:30]), Options{Allocator: alloc})
	assert.ErrorIs(t, err, elf.ErrTruncated)

	// Section headers are at the end of the file.
	_, err = Read(bytes.NewReader(data[:len(data)-8]), Options{Allocator: alloc})
	assert.ErrorIs(t, err, elf.ErrTruncated)
	assert.Equal(t, 0, alloc.Used())

	_, err = Read(bytes.NewReader(data), Options{Allocator: alloc, X86_64AbsWidth: 16})
	assert.Error(t, err)
}

func TestReadFreesOnFailure(t *testing.T) {
	b := elf.NewBuilder(elf.ELFCLASS32, elf.ELFDATA2LSB, elf.EM_386)
	b.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, make([]byte, 16))
	b.AddNoBits(".bss", elf.SHF_ALLOC|elf.SHF_WRITE, 16)
	data, err := b.Bytes()
	require.NoError(t, err)

	alloc := memchunk.NewVirtualAllocator(testBase)
	alloc.Limit = memchunk.PageSize()
	_, err = Read(bytes.NewReader(data), Options{Allocator: alloc})
	assert.ErrorIs(t, err, memchunk.ErrLimit)
	assert.Equal(t, 0, alloc.Used())
}

func TestProtection(t *testing.T) {
	b := elf.NewBuilder(elf.ELFCLASS32, elf.ELFDATA2LSB, elf.EM_386)
	b.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, make([]byte, 16))
	b.AddSection(".data", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE, make([]byte, 16))
	b.AddNoBits(".bss", elf.SHF_ALLOC|elf.SHF_WRITE, 16)

	o, alloc := load(t, b, Options{})
	require.NoError(t, o.Relocate(nil))

	prot, ok := alloc.Prot(progBits(t, o, ".text").Addr())
	require.True(t, ok)
	assert.Equal(t, memchunk.ProtReadExec, prot)
	assert.Equal(t, memchunk.ProtReadWrite, progBits(t, o, ".data").Prot())
	assert.Equal(t, memchunk.ProtReadWrite, o.SectionByName(".bss").(*NoBits).Prot())

	assert.ErrorIs(t, o.Relocate(nil), ErrAlreadyRelocated)
}

func TestClose(t *testing.T) {
	b := elf.NewBuilder(elf.ELFCLASS32, elf.ELFDATA2LSB, elf.EM_386)
	b.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, make([]byte, 16))
	b.AddSymbol(elf.Symbol{Name: "buf", Type: elf.STT_OBJECT, Binding: elf.STB_GLOBAL, SectionIndex: elf.SHN_COMMON, Value: 4, Size: 32})
	data, err := b.Bytes()
	require.NoError(t, err)

	alloc := memchunk.NewVirtualAllocator(testBase)
	o, err := Read(bytes.NewReader(data), Options{Allocator: alloc})
	require.NoError(t, err)
	require.NoError(t, o.Relocate(nil))
	assert.NotZero(t, alloc.Used())
	require.NoError(t, o.Close())
	assert.Equal(t, 0, alloc.Used())
}

// withSectionSize returns a copy of an ELF64 little-endian image with the
// size of section name replaced.
func withSectionSize(t *testing.T, data []byte, name string, size uint64) []byte {
	t.Helper()
	a := elf.NewArchiver(bytes.NewReader(data))
	h, err := elf.ReadHeader(a)
	require.NoError(t, err)
	shtab, err := elf.ReadSectionHeaderTable(a, h)
	require.NoError(t, err)
	shstrtab, err := elf.ReadStringTable(a, shtab.At(int(h.SecHdrStrIdx)))
	require.NoError(t, err)
	require.NoError(t, shtab.BuildNameMap(shstrtab))
	sh := shtab.Lookup(name)
	require.NotNil(t, sh, name)

	out := bytes.Clone(data)
	binary.LittleEndian.PutUint64(out[h.SecHdrOffset+uint64(sh.Index)*64+32:], size)
	return out
}

func TestReadMalformedSectionSize(t *testing.T) {
	b := elf.NewBuilder(elf.ELFCLASS64, elf.ELFDATA2LSB, elf.EM_X86_64)
	text := b.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, make([]byte, 8))
	b.AddNoBits(".bss", elf.SHF_ALLOC|elf.SHF_WRITE, 16)
	fn := b.AddSymbol(funcSymbol("f", text, 0))
	b.AddRelocation(text, rela(0, fn, uint32(elf.R_X86_64_64), 0))
	data, err := b.Bytes()
	require.NoError(t, err)

	for _, tc := range []struct {
		section string
		size    uint64
		err     error
	}{
		{".strtab", 1 << 62, elf.ErrTruncated},
		{".shstrtab", 1 << 62, elf.ErrTruncated},
		{".symtab", 1 << 60, elf.ErrTruncated},
		{".rela.text", 1 << 60, elf.ErrTruncated},
		{".text", 1<<64 - 2, elf.ErrTruncated},
		{".bss", 1 << 62, memchunk.ErrLimit},
		{".bss", memchunk.MaxSize + 1, memchunk.ErrLimit},
	} {
		t.Run(fmt.Sprintf("%s/0x%x", tc.section, tc.size), func(t *testing.T) {
			bad := withSectionSize(t, data, tc.section, tc.size)
			alloc := memchunk.NewVirtualAllocator(testBase)
			var err error
			require.NotPanics(t, func() {
				_, err = Read(bytes.NewReader(bad), Options{Allocator: alloc})
			})
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, 0, alloc.Used())
		})
	}
}
