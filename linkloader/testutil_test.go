// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
	"github.com/WonderfulToolchain/wf-linkloader/memchunk"
	"github.com/stretchr/testify/require"
)

const testBase = 0x10000000

func le32(words ...uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
	return b
}

func be32(words ...uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint32(b[4*i:], w)
	}
	return b
}

func le16(halves ...uint16) []byte {
	b := make([]byte, 2*len(halves))
	for i, h := range halves {
		binary.LittleEndian.PutUint16(b[2*i:], h)
	}
	return b
}

func absSymbol(name string, value uint64) elf.Symbol {
	return elf.Symbol{Name: name, Type: elf.STT_NOTYPE, Binding: elf.STB_GLOBAL, SectionIndex: elf.SHN_ABS, Value: value}
}

func undefSymbol(name string) elf.Symbol {
	return elf.Symbol{Name: name, Type: elf.STT_NOTYPE, Binding: elf.STB_GLOBAL}
}

func funcSymbol(name string, section int, value uint64) elf.Symbol {
	return elf.Symbol{Name: name, Type: elf.STT_FUNC, Binding: elf.STB_GLOBAL, SectionIndex: uint16(section), Value: value}
}

func rel(offset uint64, sym uint32, typ uint32) elf.Relocation {
	return elf.Relocation{Offset: offset, SymbolIndex: sym, Type: typ}
}

func rela(offset uint64, sym uint32, typ uint32, addend int64) elf.Relocation {
	return elf.Relocation{Offset: offset, SymbolIndex: sym, Type: typ, Addend: addend, HasAddend: true}
}

// load builds the object and reads it with a fresh virtual allocator.
func load(t *testing.T, b *elf.Builder, opts Options) (*Object, *memchunk.VirtualAllocator) {
	t.Helper()
	alloc := memchunk.NewVirtualAllocator(testBase)
	opts.Allocator = alloc
	return loadWith(t, b, opts), alloc
}

func loadWith(t *testing.T, b *elf.Builder, opts Options) *Object {
	t.Helper()
	data, err := b.Bytes()
	require.NoError(t, err)
	return loadBytes(t, data, opts)
}

func loadBytes(t *testing.T, data []byte, opts Options) *Object {
	t.Helper()
	o, err := Read(bytes.NewReader(data), opts)
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return o
}

// spacedAllocator places every block gap bytes past the end of the previous
// one, so that sections can be put out of branch range of each other.
type spacedAllocator struct {
	next uint64
	gap  uint64
}

func (s *spacedAllocator) Allocate(size int) (memchunk.Block, error) {
	addr := s.next
	s.next += uint64(size) + s.gap
	return memchunk.Block{Data: make([]byte, size), Addr: addr}, nil
}

func (s *spacedAllocator) Protect(memchunk.Block, memchunk.Prot) error { return nil }

func (s *spacedAllocator) Free(memchunk.Block) error { return nil }

func progBits(t *testing.T, o *Object, name string) *ProgBits {
	t.Helper()
	s, ok := o.SectionByName(name).(*ProgBits)
	require.True(t, ok, "section %s", name)
	return s
}

func resolverOf(symbols map[string]uint64) Resolver {
	return func(name string) (uint64, bool) {
		addr, ok := symbols[name]
		return addr, ok
	}
}
