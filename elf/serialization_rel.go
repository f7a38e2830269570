// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"io"
)

type rel32 struct {
	Offset uint32
	Info   uint32
}

type rel64 struct {
	Offset uint64
	Info   uint64
}

type rela32 struct {
	Offset uint32
	Info   uint32
	Addend int32
}

type rela64 struct {
	Offset uint64
	Info   uint64
	Addend int64
}

// RelocationSize returns the size of a REL or RELA entry for a class.
func RelocationSize(c FileClass, rela bool) int {
	switch {
	case c == ELFCLASS64 && rela:
		return Elf64RelaSize
	case c == ELFCLASS64:
		return Elf64RelSize
	case rela:
		return Elf32RelaSize
	default:
		return Elf32RelSize
	}
}

// RelocationInfo packs a symbol index and a type into an r_info word.
func RelocationInfo(c FileClass, symbolIndex uint32, typ uint32) uint64 {
	if c == ELFCLASS64 {
		return uint64(symbolIndex)<<32 | uint64(typ)
	}
	return uint64(symbolIndex<<8 | typ&0xFF)
}

// ReadRelocation reads one REL (rela false) or RELA (rela true) entry at the
// archiver's current position.
func ReadRelocation(a *Archiver, index int, rela bool) (*Relocation, error) {
	size := RelocationSize(a.Class(), rela)
	result := &Relocation{Index: index, HasAddend: rela}

	a.Prologue(size)
	result.Offset = a.Addr()
	if a.Class() == ELFCLASS64 {
		result.Info = a.Xword()
		if rela {
			result.Addend = a.Sxword()
		}
	} else {
		result.Info = uint64(a.Word())
		if rela {
			result.Addend = int64(a.Sword())
		}
	}
	a.Epilogue(size)

	if !a.OK() {
		return nil, a.Err()
	}

	if a.Class() == ELFCLASS64 {
		result.SymbolIndex = uint32(result.Info >> 32)
		result.Type = uint32(result.Info)
	} else {
		result.SymbolIndex = uint32(result.Info >> 8)
		result.Type = uint32(result.Info & 0xFF)
	}
	return result, nil
}

func writeRelocation(w io.Writer, class FileClass, order binary.ByteOrder, rela bool, input *Relocation) error {
	info := RelocationInfo(class, input.SymbolIndex, input.Type)
	if class == ELFCLASS64 {
		if rela {
			rel := rela64{Offset: input.Offset, Info: info, Addend: input.Addend}
			return binary.Write(w, order, &rel)
		}
		rel := rel64{Offset: input.Offset, Info: info}
		return binary.Write(w, order, &rel)
	}

	if rela {
		rel := rela32{Offset: uint32(input.Offset), Info: uint32(info), Addend: int32(input.Addend)}
		return binary.Write(w, order, &rel)
	}
	rel := rel32{Offset: uint32(input.Offset), Info: uint32(info)}
	return binary.Write(w, order, &rel)
}
