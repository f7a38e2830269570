// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"fmt"
)

type SectionHeaderTable struct {
	Headers []*SectionHeader
	byName  map[string]*SectionHeader
}

// ReadSectionHeaderTable reads every section header declared by h. Any
// failing entry fails the whole table.
func ReadSectionHeaderTable(a *Archiver, h *Header) (*SectionHeaderTable, error) {
	if h.SecHdrCount > 0 && int(h.SecHdrEntrySize) != sectionHeaderSize(h.Class) {
		return nil, invalidHeader("section header size %d, expected %d", h.SecHdrEntrySize, sectionHeaderSize(h.Class))
	}

	t := &SectionHeaderTable{
		Headers: make([]*SectionHeader, 0, h.SecHdrCount),
	}
	if h.SecHdrCount == 0 {
		return t, nil
	}

	a.Seek(h.SecHdrOffset)
	for i := 0; i < int(h.SecHdrCount); i++ {
		sh, err := ReadSectionHeader(a, i)
		if err != nil {
			return nil, fmt.Errorf("section header %d: %w", i, err)
		}
		t.Headers = append(t.Headers, sh)
	}
	return t, nil
}

func (t *SectionHeaderTable) Len() int {
	return len(t.Headers)
}

// At returns the header at index i, or nil if i is out of range.
func (t *SectionHeaderTable) At(i int) *SectionHeader {
	if i < 0 || i >= len(t.Headers) {
		return nil
	}
	return t.Headers[i]
}

// BuildNameMap resolves every header name through the section name string
// table and indexes the headers by name.
func (t *SectionHeaderTable) BuildNameMap(shstrtab StringTable) error {
	t.byName = make(map[string]*SectionHeader, len(t.Headers))
	for _, sh := range t.Headers {
		name, err := shstrtab.Lookup(sh.NameOffset)
		if err != nil {
			return fmt.Errorf("section header %d: %w", sh.Index, err)
		}
		sh.Name = name
		if _, ok := t.byName[name]; !ok {
			t.byName[name] = sh
		}
	}
	return nil
}

// Lookup returns the first header with the given name. The name map must
// have been built.
func (t *SectionHeaderTable) Lookup(name string) *SectionHeader {
	return t.byName[name]
}

// A StringTable is the raw contents of a SHT_STRTAB section.
type StringTable []byte

// CheckSectionBounds verifies that the file contents of sh lie within the
// input. Sections without file contents always pass.
func CheckSectionBounds(a *Archiver, sh *SectionHeader) error {
	if !sh.Type.HasDataInFile() {
		return nil
	}
	end := sh.Offset + sh.Size
	if end < sh.Offset || end > uint64(a.Size()) {
		return fmt.Errorf("contents 0x%x+0x%x extend past end of input (0x%x): %w", sh.Offset, sh.Size, a.Size(), ErrTruncated)
	}
	return nil
}

// ReadStringTable reads the bytes of a string table section.
func ReadStringTable(a *Archiver, sh *SectionHeader) (StringTable, error) {
	if err := CheckSectionBounds(a, sh); err != nil {
		return nil, err
	}
	data := make([]byte, sh.Size)
	a.Seek(sh.Offset)
	a.Bytes(data)
	if !a.OK() {
		return nil, a.Err()
	}
	return StringTable(data), nil
}

// View returns the NUL-terminated string at offset off without copying.
func (s StringTable) View(off uint32) ([]byte, error) {
	if int64(off) >= int64(len(s)) {
		if off == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("string table offset %d out of range (size %d)", off, len(s))
	}
	b := s[off:]
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		return nil, fmt.Errorf("string at offset %d is not terminated", off)
	}
	return b[:end:end], nil
}

func (s StringTable) Lookup(off uint32) (string, error) {
	b, err := s.View(off)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
