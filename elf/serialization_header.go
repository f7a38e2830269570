// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrInvalidHeader = errors.New("invalid ELF header")

type elfHeader32 struct {
	Type             uint16
	Machine          uint16
	Version          uint32
	Entry            uint32
	ProgHdrOff       uint32
	SecHdrOff        uint32
	Flags            uint32
	HeaderSize       uint16
	ProgHdrEntrySize uint16
	ProgHdrCount     uint16
	SecHdrEntrySize  uint16
	SecHdrCount      uint16
	SecHdrStrIndex   uint16
}

type elfHeader64 struct {
	Type             uint16
	Machine          uint16
	Version          uint32
	Entry            uint64
	ProgHdrOff       uint64
	SecHdrOff        uint64
	Flags            uint32
	HeaderSize       uint16
	ProgHdrEntrySize uint16
	ProgHdrCount     uint16
	SecHdrEntrySize  uint16
	SecHdrCount      uint16
	SecHdrStrIndex   uint16
}

// HeaderSize returns the size of the file header for a class.
func HeaderSize(c FileClass) int {
	if c == ELFCLASS64 {
		return Elf64HeaderSize
	}
	return Elf32HeaderSize
}

func sectionHeaderSize(c FileClass) int {
	if c == ELFCLASS64 {
		return Elf64SectionHeaderSize
	}
	return Elf32SectionHeaderSize
}

func programHeaderSize(c FileClass) int {
	if c == ELFCLASS64 {
		return Elf64ProgHeaderSize
	}
	return Elf32ProgHeaderSize
}

func invalidHeader(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidHeader, fmt.Sprintf(format, args...))
}

// ReadHeader reads and validates the file header at the archiver's current
// position. On success the archiver is switched to the file's byte order and
// class.
func ReadHeader(a *Archiver) (*Header, error) {
	h := &Header{}

	a.Prologue(EI_NIDENT)
	a.Bytes(h.Ident[:])
	a.Epilogue(EI_NIDENT)
	if !a.OK() {
		return nil, a.Err()
	}

	if string(h.Ident[:4]) != ELFMAG {
		return nil, invalidHeader("bad magic % x", h.Ident[:4])
	}
	h.Class = FileClass(h.Ident[4])
	h.Endian = FileEndian(h.Ident[5])
	h.HeaderVersion = h.Ident[6]
	h.ABI = FileABI(h.Ident[7])
	h.ABIVersion = h.Ident[8]

	if h.Class != ELFCLASS32 && h.Class != ELFCLASS64 {
		return nil, invalidHeader("invalid class %d", uint8(h.Class))
	}
	if h.Endian != ELFDATA2LSB && h.Endian != ELFDATA2MSB {
		return nil, invalidHeader("invalid data encoding %d", uint8(h.Endian))
	}
	if h.HeaderVersion != EV_CURRENT {
		return nil, invalidHeader("invalid identification version %d", h.HeaderVersion)
	}
	for i := EI_PAD; i < EI_NIDENT; i++ {
		if h.Ident[i] != 0 {
			return nil, invalidHeader("non-zero padding byte %d", i)
		}
	}

	a.SetByteOrder(h.ByteOrder())
	a.SetClass(h.Class)

	size := HeaderSize(h.Class) - EI_NIDENT
	a.Prologue(size)
	h.Type = FileType(a.Half())
	h.Machine = MachineType(a.Half())
	h.Version = a.Word()
	h.Entry = a.Addr()
	h.ProgHdrOffset = a.Off()
	h.SecHdrOffset = a.Off()
	h.Flags = a.Word()
	h.HeaderSize = a.Half()
	h.ProgHdrEntrySize = a.Half()
	h.ProgHdrCount = a.Half()
	h.SecHdrEntrySize = a.Half()
	h.SecHdrCount = a.Half()
	h.SecHdrStrIdx = a.Half()
	a.Epilogue(size)
	if !a.OK() {
		return nil, a.Err()
	}

	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) validate() error {
	if h.Version != EV_CURRENT {
		return invalidHeader("invalid version %d", h.Version)
	}
	if int(h.HeaderSize) != HeaderSize(h.Class) {
		return invalidHeader("header size %d, expected %d", h.HeaderSize, HeaderSize(h.Class))
	}
	if h.SecHdrCount > 0 && int(h.SecHdrEntrySize) != sectionHeaderSize(h.Class) {
		return invalidHeader("section header size %d, expected %d", h.SecHdrEntrySize, sectionHeaderSize(h.Class))
	}
	if h.ProgHdrCount > 0 && int(h.ProgHdrEntrySize) != programHeaderSize(h.Class) {
		return invalidHeader("program header size %d, expected %d", h.ProgHdrEntrySize, programHeaderSize(h.Class))
	}
	if h.SecHdrStrIdx == SHN_XINDEX {
		return invalidHeader("extended section string table index is not supported")
	}
	if h.SecHdrCount > 0 && h.SecHdrStrIdx >= h.SecHdrCount {
		return invalidHeader("section string table index %d out of range", h.SecHdrStrIdx)
	}
	return nil
}

func (h *Header) write(w io.Writer) error {
	ident := h.Ident
	copy(ident[:4], ELFMAG)
	ident[4] = uint8(h.Class)
	ident[5] = uint8(h.Endian)
	ident[6] = h.HeaderVersion
	ident[7] = uint8(h.ABI)
	ident[8] = h.ABIVersion

	if _, err := w.Write(ident[:]); err != nil {
		return err
	}

	if h.Class == ELFCLASS64 {
		fh := elfHeader64{
			Type:             uint16(h.Type),
			Machine:          uint16(h.Machine),
			Version:          h.Version,
			Entry:            h.Entry,
			ProgHdrOff:       h.ProgHdrOffset,
			SecHdrOff:        h.SecHdrOffset,
			Flags:            h.Flags,
			HeaderSize:       h.HeaderSize,
			ProgHdrEntrySize: h.ProgHdrEntrySize,
			ProgHdrCount:     h.ProgHdrCount,
			SecHdrEntrySize:  h.SecHdrEntrySize,
			SecHdrCount:      h.SecHdrCount,
			SecHdrStrIndex:   h.SecHdrStrIdx,
		}
		return binary.Write(w, h.ByteOrder(), &fh)
	}

	fh := elfHeader32{
		Type:             uint16(h.Type),
		Machine:          uint16(h.Machine),
		Version:          h.Version,
		Entry:            uint32(h.Entry),
		ProgHdrOff:       uint32(h.ProgHdrOffset),
		SecHdrOff:        uint32(h.SecHdrOffset),
		Flags:            h.Flags,
		HeaderSize:       h.HeaderSize,
		ProgHdrEntrySize: h.ProgHdrEntrySize,
		ProgHdrCount:     h.ProgHdrCount,
		SecHdrEntrySize:  h.SecHdrEntrySize,
		SecHdrCount:      h.SecHdrCount,
		SecHdrStrIndex:   h.SecHdrStrIdx,
	}
	return binary.Write(w, h.ByteOrder(), &fh)
}
