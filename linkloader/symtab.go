// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"fmt"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
)

// Symbol is a symbol table entry together with its memoized address.
type Symbol struct {
	elf.Symbol

	state addrState
	addr  uint64
}

type addrState uint8

const (
	addrUnresolved addrState = iota
	addrResolved
	addrFailed
)

// SymTab is a loaded symbol table.
type SymTab struct {
	sectionBase
	strtab  *StrTab
	symbols []*Symbol
	byName  map[string]*Symbol
}

func (o *Object) readSymTab(a *elf.Archiver, sh *elf.SectionHeader) (*SymTab, error) {
	if sh.EntrySize != uint64(elf.SymbolSize(o.header.Class)) {
		return nil, fmt.Errorf("symbol size %d, expected %d", sh.EntrySize, elf.SymbolSize(o.header.Class))
	}
	strtab, ok := o.Section(int(sh.Link)).(*StrTab)
	if !ok {
		return nil, fmt.Errorf("linked section %d is not a string table", sh.Link)
	}

	count := sh.Count()
	st := &SymTab{
		sectionBase: sectionBase{sh},
		strtab:      strtab,
		symbols:     make([]*Symbol, 0, count),
		byName:      make(map[string]*Symbol, count),
	}

	a.Seek(sh.Offset)
	for i := 0; i < count; i++ {
		es, err := elf.ReadSymbol(a, i)
		if err != nil {
			return nil, fmt.Errorf("symbol %d: %w", i, err)
		}
		if es.Name, err = strtab.String(es.NameOffset); err != nil {
			return nil, fmt.Errorf("symbol %d: %w", i, err)
		}
		sym := &Symbol{Symbol: *es}
		st.symbols = append(st.symbols, sym)

		if sym.Name == "" {
			continue
		}
		// A global definition shadows a local one of the same name.
		if prev, ok := st.byName[sym.Name]; !ok || (prev.Binding == elf.STB_LOCAL && sym.Binding != elf.STB_LOCAL) {
			st.byName[sym.Name] = sym
		}
	}
	return st, nil
}

func (s *SymTab) Len() int {
	return len(s.symbols)
}

// At returns the symbol at index i, or nil.
func (s *SymTab) At(i int) *Symbol {
	if i < 0 || i >= len(s.symbols) {
		return nil
	}
	return s.symbols[i]
}

// Lookup returns the symbol named name, or nil.
func (s *SymTab) Lookup(name string) *Symbol {
	return s.byName[name]
}

func (s *SymTab) Symbols() []*Symbol {
	return s.symbols
}

func (s *SymTab) StrTab() *StrTab {
	return s.strtab
}
