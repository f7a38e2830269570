// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"encoding/binary"
	"testing"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test386(t *testing.T) {
	text := make([]byte, 0x200)
	binary.LittleEndian.PutUint32(text[0x7C:], 0xFFFFFFFC)
	binary.LittleEndian.PutUint32(text[0x10:], 0x10)

	b := elf.NewBuilder(elf.ELFCLASS32, elf.ELFDATA2LSB, elf.EM_386)
	idx := b.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, text)
	target := b.AddSymbol(funcSymbol("target", idx, 0x180))
	abs := b.AddSymbol(absSymbol("abs", 0x1000))
	b.AddRelocation(idx, rel(0x7C, target, uint32(elf.R_386_PC32)))
	b.AddRelocation(idx, rel(0x10, abs, uint32(elf.R_386_32)))

	o, _ := load(t, b, Options{})
	require.NoError(t, o.Relocate(nil))
	got := progBits(t, o, ".text").Bytes()
	assert.Equal(t, uint32(0x100), binary.LittleEndian.Uint32(got[0x7C:]))
	assert.Equal(t, uint32(0x1010), binary.LittleEndian.Uint32(got[0x10:]))
}

func x86_64Object(t *testing.T, opts Options) *ProgBits {
	b := elf.NewBuilder(elf.ELFCLASS64, elf.ELFDATA2LSB, elf.EM_X86_64)
	idx := b.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, make([]byte, 24))
	big := b.AddSymbol(absSymbol("big", 0x123456789))
	fn := b.AddSymbol(funcSymbol("f", idx, 0))
	b.AddRelocation(idx, rela(0, big, uint32(elf.R_X86_64_64), 8))
	b.AddRelocation(idx, rela(8, fn, uint32(elf.R_X86_64_PC32), -4))
	b.AddRelocation(idx, rela(16, fn, uint32(elf.R_X86_64_PC64), 0))

	o, _ := load(t, b, opts)
	require.NoError(t, o.Relocate(nil))
	return progBits(t, o, ".text")
}

func TestX86_64(t *testing.T) {
	got := x86_64Object(t, Options{}).Bytes()
	// Only the low word is patched by default.
	assert.Equal(t, uint64(0x23456791), binary.LittleEndian.Uint64(got[0:]))
	assert.Equal(t, uint32(0xFFFFFFF4), binary.LittleEndian.Uint32(got[8:]))
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFF0), binary.LittleEndian.Uint64(got[16:]))
}

func TestX86_64Wide(t *testing.T) {
	got := x86_64Object(t, Options{X86_64AbsWidth: 64}).Bytes()
	assert.Equal(t, uint64(0x123456791), binary.LittleEndian.Uint64(got[0:]))
}

func TestX86_64SectionSymbol(t *testing.T) {
	b := elf.NewBuilder(elf.ELFCLASS64, elf.ELFDATA2LSB, elf.EM_X86_64)
	text := b.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, make([]byte, 8))
	data := b.AddSection(".data", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE, make([]byte, 32))
	sec := b.AddSymbol(elf.Symbol{Type: elf.STT_SECTION, Binding: elf.STB_LOCAL, SectionIndex: uint16(data)})
	b.AddRelocation(text, rela(0, sec, uint32(elf.R_X86_64_32), 0x10))

	o, _ := load(t, b, Options{})
	require.NoError(t, o.Relocate(nil))
	want := uint32(progBits(t, o, ".data").Addr() + 0x10)
	assert.Equal(t, want, binary.LittleEndian.Uint32(progBits(t, o, ".text").Bytes()))
}

func Test386PC32InPlaceAddend(t *testing.T) {
	b := elf.NewBuilder(elf.ELFCLASS32, elf.ELFDATA2LSB, elf.EM_386)
	idx := b.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, make([]byte, 4))
	sym := b.AddSymbol(absSymbol("s", testBase+0x100))
	b.AddRelocation(idx, rel(0, sym, uint32(elf.R_386_PC32)))

	o, _ := load(t, b, Options{})
	require.NoError(t, o.Relocate(nil))
	pb := progBits(t, o, ".text")
	require.Equal(t, uint64(testBase), pb.Addr())
	assert.Equal(t, uint32(0x100), binary.LittleEndian.Uint32(pb.Bytes()))
}
