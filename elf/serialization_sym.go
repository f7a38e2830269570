// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"io"
)

type symbol32 struct {
	Name         uint32
	Value        uint32
	Size         uint32
	Info         uint8
	Other        uint8
	SectionIndex uint16
}

type symbol64 struct {
	Name         uint32
	Info         uint8
	Other        uint8
	SectionIndex uint16
	Value        uint64
	Size         uint64
}

// SymbolSize returns the size of a symbol table entry for a class.
func SymbolSize(c FileClass) int {
	if c == ELFCLASS64 {
		return Elf64SymSize
	}
	return Elf32SymSize
}

// ReadSymbol reads one symbol table entry at the archiver's current position.
// The name is left unresolved; only NameOffset is set.
func ReadSymbol(a *Archiver, index int) (*Symbol, error) {
	size := SymbolSize(a.Class())
	result := &Symbol{Index: index}

	var info uint8
	a.Prologue(size)
	if a.Class() == ELFCLASS64 {
		result.NameOffset = a.Word()
		info = a.Uint8()
		result.Other = a.Uint8()
		result.SectionIndex = a.Half()
		result.Value = a.Addr()
		result.Size = a.Xword()
	} else {
		result.NameOffset = a.Word()
		result.Value = a.Addr()
		result.Size = uint64(a.Word())
		info = a.Uint8()
		result.Other = a.Uint8()
		result.SectionIndex = a.Half()
	}
	a.Epilogue(size)

	if !a.OK() {
		return nil, a.Err()
	}

	result.Type = SymbolType(info & 0xF)
	result.Binding = SymbolBinding(info >> 4)
	result.Visibility = SymbolVisibility(result.Other & 0x3)
	return result, nil
}

func writeSymbol(w io.Writer, class FileClass, order binary.ByteOrder, input *Symbol) error {
	info := uint8(input.Type)&0xF | uint8(input.Binding)<<4
	other := input.Other | uint8(input.Visibility)&0x3
	if class == ELFCLASS64 {
		sh := symbol64{
			Name:         input.NameOffset,
			Info:         info,
			Other:        other,
			SectionIndex: input.SectionIndex,
			Value:        input.Value,
			Size:         input.Size,
		}
		return binary.Write(w, order, &sh)
	}

	sh := symbol32{
		Name:         input.NameOffset,
		Info:         info,
		Other:        other,
		SectionIndex: input.SectionIndex,
		Value:        uint32(input.Value),
		Size:         uint32(input.Size),
	}
	return binary.Write(w, order, &sh)
}
