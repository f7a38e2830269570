// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"encoding/binary"
	"fmt"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
	"github.com/WonderfulToolchain/wf-linkloader/memchunk"
)

// gp points this far into the GOT so that signed 16-bit offsets cover it.
const mipsGPOffset = 0x7ff0

const mipsGOTEntrySize = 4

type gotKey struct {
	local bool
	value uint64
}

// mipsGOT is the global offset table of a MIPS object. Local entries hold
// 64KiB page addresses, global entries hold symbol addresses.
type mipsGOT struct {
	chunk    *memchunk.Chunk
	order    binary.ByteOrder
	entries  map[gotKey]uint64
	capacity int
}

func (o *Object) allocGOT() error {
	n := 0
	for _, s := range o.sections {
		if rt, ok := s.(*RelTable); ok {
			for _, rel := range rt.Relocations {
				switch elf.R_MIPS(rel.Type) {
				case elf.R_MIPS_GOT16, elf.R_MIPS_CALL16:
					n++
				}
			}
		}
	}
	chunk, err := memchunk.New(o.alloc, max(n, 1)*mipsGOTEntrySize)
	if err != nil {
		return fmt.Errorf("global offset table: %w", err)
	}
	o.got = &mipsGOT{
		chunk:    chunk,
		order:    o.order,
		entries:  make(map[gotKey]uint64),
		capacity: n,
	}
	o.logf("global offset table: %d entries at 0x%x, gp 0x%x", n, chunk.Addr(), o.got.gp())
	return nil
}

func (g *mipsGOT) gp() uint64 {
	return g.chunk.Addr() + mipsGPOffset
}

// entry returns the address of the slot holding value, allocating it on
// first use.
func (g *mipsGOT) entry(local bool, value uint64) (uint64, error) {
	key := gotKey{local, value}
	if addr, ok := g.entries[key]; ok {
		return addr, nil
	}
	n := len(g.entries)
	if n >= g.capacity {
		return 0, fmt.Errorf("global offset table full (%d entries)", g.capacity)
	}
	off := n * mipsGOTEntrySize
	g.order.PutUint32(g.chunk.Bytes()[off:], uint32(value))
	addr := g.chunk.Addr() + uint64(off)
	g.entries[key] = addr
	return addr, nil
}

func (g *mipsGOT) Len() int {
	return len(g.entries)
}

func (g *mipsGOT) protect() error {
	return g.chunk.Protect(memchunk.ProtRead)
}

func (g *mipsGOT) free() error {
	return g.chunk.Free()
}
