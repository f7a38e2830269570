// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"testing"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
	"github.com/WonderfulToolchain/wf-linkloader/memchunk"
	"github.com/WonderfulToolchain/wf-linkloader/relocation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommonSymbol(t *testing.T) {
	b, text := armBuilder(le32(0, 0))
	buf := b.AddSymbol(elf.Symbol{Name: "buf", Type: elf.STT_OBJECT, Binding: elf.STB_GLOBAL, SectionIndex: elf.SHN_COMMON, Value: 8, Size: 24})
	b.AddRelocation(text, rel(0, buf, uint32(elf.R_ARM_ABS32)))
	b.AddRelocation(text, rel(4, buf, uint32(elf.R_ARM_ABS32)))

	o, _ := load(t, b, Options{})
	_, ok := o.SymbolAddress("buf")
	assert.False(t, ok, "common symbols are placed during relocation")

	require.NoError(t, o.Relocate(nil))
	pb := progBits(t, o, ".text")
	addr, ok := o.SymbolAddress("buf")
	require.True(t, ok)
	assert.Equal(t, uint32(addr), word(pb, 0))
	assert.Equal(t, uint32(addr), word(pb, 4))
	assert.Zero(t, addr%8)
	assert.GreaterOrEqual(t, addr, o.common.Addr())
	assert.LessOrEqual(t, addr+24, o.common.Addr()+uint64(o.common.Size()))
}

func TestNoBitsObjectUsesArena(t *testing.T) {
	b, text := armBuilder(le32(0))
	bss := b.AddNoBits(".bss", elf.SHF_ALLOC|elf.SHF_WRITE, 16)
	counter := b.AddSymbol(elf.Symbol{Name: "counter", Type: elf.STT_OBJECT, Binding: elf.STB_GLOBAL, SectionIndex: uint16(bss), Size: 4})
	b.AddRelocation(text, rel(0, counter, uint32(elf.R_ARM_ABS32)))

	o, _ := load(t, b, Options{})
	require.NoError(t, o.Relocate(nil))
	addr := uint64(word(progBits(t, o, ".text"), 0))
	assert.Equal(t, o.arena.Base(), addr)
	assert.Zero(t, addr%relocation.DefaultAlignment)
}

func TestMissingSymbols(t *testing.T) {
	b, text := armBuilder(le32(0x10, 0x20, 0))
	missing := b.AddSymbol(undefSymbol("missing"))
	found := b.AddSymbol(undefSymbol("found"))
	b.AddRelocation(text, rel(0, missing, uint32(elf.R_ARM_ABS32)))
	b.AddRelocation(text, rel(4, missing, uint32(elf.R_ARM_ABS32)))
	b.AddRelocation(text, rel(8, found, uint32(elf.R_ARM_ABS32)))

	calls := map[string]int{}
	resolver := func(name string) (uint64, bool) {
		calls[name]++
		if name == "found" {
			return 0x4000, true
		}
		return 0, false
	}

	o, _ := load(t, b, Options{})
	require.NoError(t, o.Relocate(resolver))
	assert.True(t, o.MissingSymbols())

	pb := progBits(t, o, ".text")
	assert.Equal(t, uint32(0x10), word(pb, 0))
	assert.Equal(t, uint32(0x20), word(pb, 4))
	assert.Equal(t, uint32(0x4000), word(pb, 8))
	assert.Equal(t, map[string]int{"missing": 1, "found": 1}, calls)
	assert.Equal(t, memchunk.ProtReadExec, pb.Prot())
}

func TestArenaExhausted(t *testing.T) {
	b, text := armBuilder(le32(0))
	buf := b.AddSymbol(elf.Symbol{Name: "buf", Type: elf.STT_OBJECT, Binding: elf.STB_GLOBAL, SectionIndex: elf.SHN_COMMON, Value: 4, Size: 64})
	b.AddRelocation(text, rel(0, buf, uint32(elf.R_ARM_ABS32)))

	o, alloc := load(t, b, Options{})
	alloc.Limit = alloc.Used()

	err := o.Relocate(nil)
	assert.ErrorIs(t, err, memchunk.ErrLimit)
	assert.True(t, o.MissingSymbols())
	for _, addr := range alloc.Blocks() {
		prot, _ := alloc.Prot(addr)
		assert.NotEqual(t, memchunk.ProtReadExec, prot, "block 0x%x", addr)
	}
}

func TestTypedUndefinedSymbol(t *testing.T) {
	b, text := armBuilder(le32(0))
	sym := b.AddSymbol(elf.Symbol{Name: "obj", Type: elf.STT_OBJECT, Binding: elf.STB_GLOBAL})
	b.AddRelocation(text, rel(0, sym, uint32(elf.R_ARM_ABS32)))

	o, _ := load(t, b, Options{})
	assert.Error(t, o.Relocate(nil))
}

func TestGlobalShadowsLocal(t *testing.T) {
	b, text := armBuilder(le32(0, 0))
	b.AddSymbol(elf.Symbol{Name: "f", Type: elf.STT_FUNC, Binding: elf.STB_LOCAL, SectionIndex: uint16(text), Value: 0})
	b.AddSymbol(funcSymbol("f", text, 4))

	o, _ := load(t, b, Options{})
	sym := o.SymTab().Lookup("f")
	require.NotNil(t, sym)
	assert.Equal(t, elf.STB_GLOBAL, sym.Binding)

	addr, ok := o.SymbolAddress("f")
	require.True(t, ok)
	assert.Equal(t, progBits(t, o, ".text").Addr()+4, addr)
}

func TestCommonSymbolTooLarge(t *testing.T) {
	b, text := armBuilder(le32(0))
	buf := b.AddSymbol(elf.Symbol{Name: "buf", Type: elf.STT_OBJECT, Binding: elf.STB_GLOBAL, SectionIndex: elf.SHN_COMMON, Value: 4, Size: 1 << 62})
	b.AddRelocation(text, rel(0, buf, uint32(elf.R_ARM_ABS32)))

	o, _ := load(t, b, Options{})
	assert.ErrorIs(t, o.Relocate(nil), memchunk.ErrLimit)
	assert.True(t, o.MissingSymbols())
}
