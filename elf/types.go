// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import "encoding/binary"

type Header struct {
	// Identification
	Ident         [EI_NIDENT]byte
	Class         FileClass
	Endian        FileEndian
	HeaderVersion uint8
	ABI           FileABI
	ABIVersion    uint8

	// Header
	Type             FileType
	Machine          MachineType
	Version          uint32
	Entry            uint64
	ProgHdrOffset    uint64
	SecHdrOffset     uint64
	Flags            uint32
	HeaderSize       uint16
	ProgHdrEntrySize uint16
	ProgHdrCount     uint16
	SecHdrEntrySize  uint16
	SecHdrCount      uint16
	SecHdrStrIdx     uint16
}

// ByteOrder returns the byte order declared by the identification bytes.
func (h *Header) ByteOrder() binary.ByteOrder {
	if h.Endian == ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

type SectionHeader struct {
	Index      int
	Name       string
	NameOffset uint32
	Type       SectionHeaderType
	Flags      SectionHeaderFlag
	Address    uint64
	Offset     uint64
	Size       uint64
	Link       uint32
	Info       uint32
	AddrAlign  uint64
	EntrySize  uint64
}

// Count returns the number of fixed-size entries in a table section.
func (s *SectionHeader) Count() int {
	if s.EntrySize == 0 {
		return 0
	}
	return int(s.Size / s.EntrySize)
}

type Symbol struct {
	Index        int
	Name         string
	NameOffset   uint32
	Type         SymbolType
	Binding      SymbolBinding
	Visibility   SymbolVisibility
	Other        uint8
	SectionIndex uint16
	Value        uint64
	Size         uint64
}

// IsUndefined reports whether the symbol is defined outside the object.
func (s *Symbol) IsUndefined() bool {
	return s.SectionIndex == SHN_UNDEF
}

// IsOrdinary reports whether the section index refers to a real section.
func (s *Symbol) IsOrdinary() bool {
	return s.SectionIndex != SHN_UNDEF && s.SectionIndex < SHN_LORESERVE
}

type Relocation struct {
	Index       int
	Offset      uint64
	Info        uint64
	SymbolIndex uint32
	Type        uint32
	Addend      int64
	HasAddend   bool
}
