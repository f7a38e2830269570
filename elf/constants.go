// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import "fmt"

// Identification
const (
	EI_NIDENT     = 16
	EI_PAD        = 9
	EV_CURRENT    = 1
	ELFMAG        = "\x7fELF"
	ELFOSABI_NONE = 0
)

type FileClass uint8

const (
	ELFCLASSNONE FileClass = 0
	ELFCLASS32   FileClass = 1
	ELFCLASS64   FileClass = 2
)

func (c FileClass) String() string {
	switch c {
	case ELFCLASS32:
		return "ELF32"
	case ELFCLASS64:
		return "ELF64"
	}
	return fmt.Sprintf("ELFCLASS(%d)", uint8(c))
}

type FileEndian uint8

const (
	ELFDATANONE FileEndian = 0
	ELFDATA2LSB FileEndian = 1
	ELFDATA2MSB FileEndian = 2
)

type FileABI uint8

type FileType uint16

const (
	ET_NONE   FileType = 0
	ET_REL    FileType = 1
	ET_EXEC   FileType = 2
	ET_DYN    FileType = 3
	ET_CORE   FileType = 4
	ET_LOOS   FileType = 0xFE00
	ET_HIOS   FileType = 0xFEFF
	ET_LOPROC FileType = 0xFF00
	ET_HIPROC FileType = 0xFFFF
)

func (t FileType) String() string {
	switch t {
	case ET_NONE:
		return "NONE"
	case ET_REL:
		return "REL"
	case ET_EXEC:
		return "EXEC"
	case ET_DYN:
		return "DYN"
	case ET_CORE:
		return "CORE"
	}
	return fmt.Sprintf("0x%x", uint16(t))
}

type MachineType uint16

const (
	EM_NONE   MachineType = 0  // None.
	EM_386    MachineType = 3  // 386-compatible processor
	EM_MIPS   MachineType = 8  // MIPS processor
	EM_ARM    MachineType = 40 // ARM processor
	EM_X86_64 MachineType = 62 // AMD x86-64
)

func (m MachineType) String() string {
	switch m {
	case EM_NONE:
		return "none"
	case EM_386:
		return "x86"
	case EM_MIPS:
		return "mips"
	case EM_ARM:
		return "arm"
	case EM_X86_64:
		return "x86-64"
	}
	return fmt.Sprintf("EM(%d)", uint16(m))
}

// Record sizes, by class.
const (
	Elf32HeaderSize        = 52
	Elf64HeaderSize        = 64
	Elf32ProgHeaderSize    = 32
	Elf64ProgHeaderSize    = 56
	Elf32SectionHeaderSize = 40
	Elf64SectionHeaderSize = 64
	Elf32SymSize           = 16
	Elf64SymSize           = 24
	Elf32RelSize           = 8
	Elf64RelSize           = 16
	Elf32RelaSize          = 12
	Elf64RelaSize          = 24
)

// Section header index
const (
	SHN_UNDEF     = 0
	SHN_LORESERVE = 0xFF00
	SHN_LOPROC    = 0xFF00
	SHN_HIPROC    = 0xFF1F
	SHN_ABS       = 0xFFF1
	SHN_COMMON    = 0xFFF2
	SHN_XINDEX    = 0xFFFF
)

type SectionHeaderType uint32

const (
	SHT_NULL          SectionHeaderType = 0
	SHT_PROGBITS      SectionHeaderType = 1
	SHT_SYMTAB        SectionHeaderType = 2
	SHT_STRTAB        SectionHeaderType = 3
	SHT_RELA          SectionHeaderType = 4
	SHT_HASH          SectionHeaderType = 5
	SHT_DYNAMIC       SectionHeaderType = 6
	SHT_NOTE          SectionHeaderType = 7
	SHT_NOBITS        SectionHeaderType = 8
	SHT_REL           SectionHeaderType = 9
	SHT_SHLIB         SectionHeaderType = 10
	SHT_DYNSYM        SectionHeaderType = 11
	SHT_INIT_ARRAY    SectionHeaderType = 14
	SHT_FINI_ARRAY    SectionHeaderType = 15
	SHT_PREINIT_ARRAY SectionHeaderType = 16
	SHT_GROUP         SectionHeaderType = 17
	SHT_SYMTAB_SHNDX  SectionHeaderType = 18
	SHT_ARM_EXIDX     SectionHeaderType = 0x70000001
	SHT_ARM_ATTRS     SectionHeaderType = 0x70000003
	SHT_MIPS_REGINFO  SectionHeaderType = 0x70000006
)

var sectionTypeNames = map[SectionHeaderType]string{
	SHT_NULL:          "NULL",
	SHT_PROGBITS:      "PROGBITS",
	SHT_SYMTAB:        "SYMTAB",
	SHT_STRTAB:        "STRTAB",
	SHT_RELA:          "RELA",
	SHT_HASH:          "HASH",
	SHT_DYNAMIC:       "DYNAMIC",
	SHT_NOTE:          "NOTE",
	SHT_NOBITS:        "NOBITS",
	SHT_REL:           "REL",
	SHT_SHLIB:         "SHLIB",
	SHT_DYNSYM:        "DYNSYM",
	SHT_INIT_ARRAY:    "INIT_ARRAY",
	SHT_FINI_ARRAY:    "FINI_ARRAY",
	SHT_PREINIT_ARRAY: "PREINIT_ARRAY",
	SHT_GROUP:         "GROUP",
	SHT_SYMTAB_SHNDX:  "SYMTAB_SHNDX",
	SHT_ARM_EXIDX:     "ARM_EXIDX",
	SHT_ARM_ATTRS:     "ARM_ATTRIBUTES",
	SHT_MIPS_REGINFO:  "MIPS_REGINFO",
}

func (s SectionHeaderType) String() string {
	if n, ok := sectionTypeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("SHT(0x%x)", uint32(s))
}

func (s SectionHeaderType) HasSectionInInfo() bool {
	return s == SHT_REL || s == SHT_RELA
}

func (s SectionHeaderType) HasDataInFile() bool {
	return s != SHT_NOBITS && s != SHT_NULL
}

// Section header flags
type SectionHeaderFlag uint64

const (
	SHF_WRITE            SectionHeaderFlag = 0x00000001
	SHF_ALLOC            SectionHeaderFlag = 0x00000002
	SHF_EXECINSTR        SectionHeaderFlag = 0x00000004
	SHF_MERGE            SectionHeaderFlag = 0x00000010
	SHF_STRINGS          SectionHeaderFlag = 0x00000020
	SHF_INFO_LINK        SectionHeaderFlag = 0x00000040
	SHF_LINK_ORDER       SectionHeaderFlag = 0x00000080
	SHF_OS_NONCONFORMING SectionHeaderFlag = 0x00000100
	SHF_GROUP            SectionHeaderFlag = 0x00000200
	SHF_TLS              SectionHeaderFlag = 0x00000400
	SHF_GNU_RETAIN       SectionHeaderFlag = 0x00200000
	SHF_EXCLUDE          SectionHeaderFlag = 0x80000000
)

// Symbol table type
type SymbolType uint8

const (
	STT_NOTYPE  SymbolType = 0
	STT_OBJECT  SymbolType = 1
	STT_FUNC    SymbolType = 2
	STT_SECTION SymbolType = 3
	STT_FILE    SymbolType = 4
	STT_COMMON  SymbolType = 5
	STT_TLS     SymbolType = 6
	STT_LOOS    SymbolType = 10
	STT_HIOS    SymbolType = 12
	STT_LOPROC  SymbolType = 13
	STT_HIPROC  SymbolType = 15
)

func (t SymbolType) String() string {
	switch t {
	case STT_NOTYPE:
		return "NOTYPE"
	case STT_OBJECT:
		return "OBJECT"
	case STT_FUNC:
		return "FUNC"
	case STT_SECTION:
		return "SECTION"
	case STT_FILE:
		return "FILE"
	case STT_COMMON:
		return "COMMON"
	case STT_TLS:
		return "TLS"
	}
	return fmt.Sprintf("STT(%d)", uint8(t))
}

type SymbolBinding uint8

const (
	STB_LOCAL  SymbolBinding = 0
	STB_GLOBAL SymbolBinding = 1
	STB_WEAK   SymbolBinding = 2
)

func (b SymbolBinding) String() string {
	switch b {
	case STB_LOCAL:
		return "LOCAL"
	case STB_GLOBAL:
		return "GLOBAL"
	case STB_WEAK:
		return "WEAK"
	}
	return fmt.Sprintf("STB(%d)", uint8(b))
}

type SymbolVisibility uint8

const (
	STV_DEFAULT   SymbolVisibility = 0
	STV_INTERNAL  SymbolVisibility = 1
	STV_HIDDEN    SymbolVisibility = 2
	STV_PROTECTED SymbolVisibility = 3
)

type R_386 uint32

const (
	R_386_NONE  R_386 = 0
	R_386_32    R_386 = 1
	R_386_PC32  R_386 = 2
	R_386_PLT32 R_386 = 4
)

type R_X86_64 uint32

const (
	R_X86_64_NONE  R_X86_64 = 0
	R_X86_64_64    R_X86_64 = 1
	R_X86_64_PC32  R_X86_64 = 2
	R_X86_64_PLT32 R_X86_64 = 4
	R_X86_64_32    R_X86_64 = 10
	R_X86_64_32S   R_X86_64 = 11
	R_X86_64_PC64  R_X86_64 = 24
)

type R_ARM uint32

const (
	R_ARM_NONE            R_ARM = 0
	R_ARM_PC24            R_ARM = 1
	R_ARM_ABS32           R_ARM = 2
	R_ARM_REL32           R_ARM = 3
	R_ARM_THM_CALL        R_ARM = 10
	R_ARM_CALL            R_ARM = 28
	R_ARM_JUMP24          R_ARM = 29
	R_ARM_THM_JUMP24      R_ARM = 30
	R_ARM_TARGET1         R_ARM = 38
	R_ARM_V4BX            R_ARM = 40
	R_ARM_MOVW_ABS_NC     R_ARM = 43
	R_ARM_MOVT_ABS        R_ARM = 44
	R_ARM_THM_MOVW_ABS_NC R_ARM = 47
	R_ARM_THM_MOVT_ABS    R_ARM = 48
)

// IsCall reports whether the relocation patches a branch that may need a
// trampoline.
func (r R_ARM) IsCall() bool {
	switch r {
	case R_ARM_PC24, R_ARM_CALL, R_ARM_JUMP24, R_ARM_THM_CALL, R_ARM_THM_JUMP24:
		return true
	}
	return false
}

type R_MIPS uint32

const (
	R_MIPS_NONE    R_MIPS = 0
	R_MIPS_16      R_MIPS = 1
	R_MIPS_32      R_MIPS = 2
	R_MIPS_26      R_MIPS = 4
	R_MIPS_HI16    R_MIPS = 5
	R_MIPS_LO16    R_MIPS = 6
	R_MIPS_GPREL16 R_MIPS = 7
	R_MIPS_GOT16   R_MIPS = 9
	R_MIPS_PC16    R_MIPS = 10
	R_MIPS_CALL16  R_MIPS = 11
	R_MIPS_GPREL32 R_MIPS = 12
	R_MIPS_JALR    R_MIPS = 37
)

// RelocationTypeName returns a printable name for a relocation type of the
// given machine.
func RelocationTypeName(m MachineType, t uint32) string {
	var names map[uint32]string
	switch m {
	case EM_386:
		names = map[uint32]string{0: "R_386_NONE", 1: "R_386_32", 2: "R_386_PC32", 4: "R_386_PLT32"}
	case EM_X86_64:
		names = map[uint32]string{0: "R_X86_64_NONE", 1: "R_X86_64_64", 2: "R_X86_64_PC32",
			4: "R_X86_64_PLT32", 10: "R_X86_64_32", 11: "R_X86_64_32S", 24: "R_X86_64_PC64"}
	case EM_ARM:
		names = map[uint32]string{0: "R_ARM_NONE", 1: "R_ARM_PC24", 2: "R_ARM_ABS32", 3: "R_ARM_REL32",
			10: "R_ARM_THM_CALL", 28: "R_ARM_CALL", 29: "R_ARM_JUMP24", 30: "R_ARM_THM_JUMP24",
			38: "R_ARM_TARGET1", 40: "R_ARM_V4BX", 43: "R_ARM_MOVW_ABS_NC", 44: "R_ARM_MOVT_ABS",
			47: "R_ARM_THM_MOVW_ABS_NC", 48: "R_ARM_THM_MOVT_ABS"}
	case EM_MIPS:
		names = map[uint32]string{0: "R_MIPS_NONE", 1: "R_MIPS_16", 2: "R_MIPS_32", 4: "R_MIPS_26",
			5: "R_MIPS_HI16", 6: "R_MIPS_LO16", 7: "R_MIPS_GPREL16", 9: "R_MIPS_GOT16",
			10: "R_MIPS_PC16", 11: "R_MIPS_CALL16", 12: "R_MIPS_GPREL32", 37: "R_MIPS_JALR"}
	}
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("%s reloc %d", m, t)
}
