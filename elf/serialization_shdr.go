// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"io"
)

type sectionHeader32 struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Address   uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	AddrAlign uint32
	EntrySize uint32
}

type sectionHeader64 struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Address   uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntrySize uint64
}

// ReadSectionHeader reads one section header entry at the archiver's current
// position.
func ReadSectionHeader(a *Archiver, index int) (*SectionHeader, error) {
	size := sectionHeaderSize(a.Class())
	result := &SectionHeader{Index: index}

	a.Prologue(size)
	result.NameOffset = a.Word()
	result.Type = SectionHeaderType(a.Word())
	if a.Class() == ELFCLASS64 {
		result.Flags = SectionHeaderFlag(a.Xword())
	} else {
		result.Flags = SectionHeaderFlag(a.Word())
	}
	result.Address = a.Addr()
	result.Offset = a.Off()
	if a.Class() == ELFCLASS64 {
		result.Size = a.Xword()
	} else {
		result.Size = uint64(a.Word())
	}
	result.Link = a.Word()
	result.Info = a.Word()
	if a.Class() == ELFCLASS64 {
		result.AddrAlign = a.Xword()
		result.EntrySize = a.Xword()
	} else {
		result.AddrAlign = uint64(a.Word())
		result.EntrySize = uint64(a.Word())
	}
	a.Epilogue(size)

	if !a.OK() {
		return nil, a.Err()
	}
	return result, nil
}

func writeSectionHeader(w io.Writer, class FileClass, order binary.ByteOrder, input *SectionHeader) error {
	if class == ELFCLASS64 {
		sh := sectionHeader64{
			Name:      input.NameOffset,
			Type:      uint32(input.Type),
			Flags:     uint64(input.Flags),
			Address:   input.Address,
			Offset:    input.Offset,
			Size:      input.Size,
			Link:      input.Link,
			Info:      input.Info,
			AddrAlign: input.AddrAlign,
			EntrySize: input.EntrySize,
		}
		return binary.Write(w, order, &sh)
	}

	sh := sectionHeader32{
		Name:      input.NameOffset,
		Type:      uint32(input.Type),
		Flags:     uint32(input.Flags),
		Address:   uint32(input.Address),
		Offset:    uint32(input.Offset),
		Size:      uint32(input.Size),
		Link:      input.Link,
		Info:      input.Info,
		AddrAlign: uint32(input.AddrAlign),
		EntrySize: uint32(input.EntrySize),
	}
	return binary.Write(w, order, &sh)
}
