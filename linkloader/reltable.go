// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"encoding/binary"
	"fmt"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
)

// RelTable is a loaded SHT_REL or SHT_RELA section.
type RelTable struct {
	sectionBase
	Relocations []*elf.Relocation
}

func (o *Object) readRelTable(a *elf.Archiver, sh *elf.SectionHeader) (*RelTable, error) {
	rela := sh.Type == elf.SHT_RELA
	if size := elf.RelocationSize(o.header.Class, rela); sh.EntrySize != uint64(size) {
		return nil, fmt.Errorf("relocation size %d, expected %d", sh.EntrySize, size)
	}

	count := sh.Count()
	rt := &RelTable{
		sectionBase: sectionBase{sh},
		Relocations: make([]*elf.Relocation, 0, count),
	}
	a.Seek(sh.Offset)
	for i := 0; i < count; i++ {
		rel, err := elf.ReadRelocation(a, i, rela)
		if err != nil {
			return nil, fmt.Errorf("relocation %d: %w", i, err)
		}
		rt.Relocations = append(rt.Relocations, rel)
	}
	return rt, nil
}

func (r *RelTable) Len() int {
	return len(r.Relocations)
}

// IsRela reports whether entries carry an explicit addend.
func (r *RelTable) IsRela() bool {
	return r.header.Type == elf.SHT_RELA
}

type stubKey struct {
	symbol uint32
	typ    uint32
	addend int64
}

// MaxNumStubs returns an upper bound on the trampolines the table can
// require: one per distinct symbol, relocation type and addend among the
// call-class relocations. Implicit addends are read from contents, the
// unrelocated bytes of the patched section.
func (r *RelTable) MaxNumStubs(m elf.MachineType, order binary.ByteOrder, contents []byte) int {
	seen := make(map[stubKey]struct{})
	for _, rel := range r.Relocations {
		if !isCallRelocation(m, rel.Type) {
			continue
		}
		k := stubKey{rel.SymbolIndex, rel.Type, rel.Addend}
		if !rel.HasAddend && rel.Offset <= uint64(len(contents)) && uint64(len(contents))-rel.Offset >= 4 {
			// The raw field stands in for the addend it encodes.
			k.addend = int64(order.Uint32(contents[rel.Offset:]))
		}
		seen[k] = struct{}{}
	}
	return len(seen)
}

func isCallRelocation(m elf.MachineType, t uint32) bool {
	switch m {
	case elf.EM_ARM:
		return elf.R_ARM(t).IsCall()
	case elf.EM_MIPS:
		return elf.R_MIPS(t) == elf.R_MIPS_26
	}
	return false
}
