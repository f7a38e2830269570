// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package relocation

import (
	"encoding/binary"
)

const (
	ARMStubSize  = 8
	MIPSStubSize = 16
)

type stubEncoder interface {
	size() int
	encode(b []byte, order binary.ByteOrder, target uint64)
}

// ldr pc, [pc, #-4]; .word target
type armStub struct{}

func (armStub) size() int { return ARMStubSize }

func (armStub) encode(b []byte, order binary.ByteOrder, target uint64) {
	order.PutUint32(b[0:], 0xE51FF004)
	order.PutUint32(b[4:], uint32(target))
}

// lui $t9, %hi(target); ori $t9, $t9, %lo(target); jr $t9; nop
type mipsStub struct{}

func (mipsStub) size() int { return MIPSStubSize }

func (mipsStub) encode(b []byte, order binary.ByteOrder, target uint64) {
	order.PutUint32(b[0:], 0x3C190000|uint32(target>>16)&0xFFFF)
	order.PutUint32(b[4:], 0x37390000|uint32(target)&0xFFFF)
	order.PutUint32(b[8:], 0x03200008)
	order.PutUint32(b[12:], 0x00000000)
}

type stub struct {
	offset uint64
	target uint64
	size   uint64
}

func (s stub) Offset() uint64      { return s.offset }
func (s *stub) SetOffset(o uint64) { s.offset = o }
func (s stub) Size() uint64        { return s.size }
func (s stub) Alignment() uint64   { return 4 }

// A StubLayout is a fixed table of trampolines at the end of a code section.
// Each distinct target address gets at most one stub.
type StubLayout struct {
	enc    stubEncoder
	order  binary.ByteOrder
	region *Region[*stub]
	data   []byte
	base   uint64
	table  map[uint64]uint64
}

func newStubLayout(enc stubEncoder, data []byte, base uint64, order binary.ByteOrder) *StubLayout {
	return &StubLayout{
		enc:    enc,
		order:  order,
		region: NewRegion[*stub](base, uint64(len(data)), false),
		data:   data,
		base:   base,
		table:  make(map[uint64]uint64),
	}
}

// NewARMStubLayout lays out ARM stubs over data, located at address base.
func NewARMStubLayout(data []byte, base uint64, order binary.ByteOrder) *StubLayout {
	return newStubLayout(armStub{}, data, base, order)
}

// NewMIPSStubLayout lays out MIPS stubs over data, located at address base.
func NewMIPSStubLayout(data []byte, base uint64, order binary.ByteOrder) *StubLayout {
	return newStubLayout(mipsStub{}, data, base, order)
}

// AllocateStub returns the address of a stub jumping to target, creating one
// if needed. It returns false when the table is full.
func (s *StubLayout) AllocateStub(target uint64) (uint64, bool) {
	if addr, ok := s.table[target]; ok {
		return addr, true
	}
	entry := &stub{target: target, size: uint64(s.enc.size())}
	ok, addr := s.region.Place(entry, false)
	if !ok {
		return 0, false
	}
	off := addr - s.base
	s.enc.encode(s.data[off:off+entry.size], s.order, target)
	s.table[target] = addr
	return addr, true
}

// Lookup returns the stub for target without allocating one.
func (s *StubLayout) Lookup(target uint64) (uint64, bool) {
	addr, ok := s.table[target]
	return addr, ok
}

func (s *StubLayout) Len() int {
	return s.region.Len()
}

func (s *StubLayout) Capacity() int {
	return len(s.data) / s.enc.size()
}

func (s *StubLayout) Base() uint64 {
	return s.base
}
