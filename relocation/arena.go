// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package relocation

import (
	"errors"
	"fmt"
	"math"
)

var ErrArenaExhausted = errors.New("common data arena exhausted")

// DefaultAlignment is used for arena allocations that declare no alignment.
const DefaultAlignment = 16

type allocation struct {
	offset uint64
	size   uint64
	align  uint64
}

func (a allocation) Offset() uint64      { return a.offset }
func (a *allocation) SetOffset(o uint64) { a.offset = o }
func (a allocation) Size() uint64        { return a.size }
func (a allocation) Alignment() uint64   { return a.align }

// An Arena hands out aligned storage for symbols that have no bytes of their
// own in the object file. Allocations are never released individually.
type Arena struct {
	region *Region[*allocation]
	base   uint64
}

// NewArena places the arena over data, which the loaded code sees at base.
func NewArena(data []byte, base uint64) *Arena {
	return &Arena{
		region: NewRegion[*allocation](base, uint64(len(data)), false),
		base:   base,
	}
}

// ArenaSize returns the worst-case arena size for allocations of the given
// sizes and alignments. The result saturates at math.MaxUint64.
func ArenaSize(sizes, aligns []uint64) uint64 {
	var total uint64
	for i, size := range sizes {
		align := uint64(DefaultAlignment)
		if i < len(aligns) && aligns[i] > 0 {
			align = aligns[i]
		}
		for _, n := range []uint64{max(size, 1), align} {
			if total > math.MaxUint64-n {
				return math.MaxUint64
			}
			total += n
		}
	}
	return total
}

// Alloc reserves size bytes aligned to align (DefaultAlignment when zero) and
// returns their address.
func (a *Arena) Alloc(size uint64, align uint64) (uint64, error) {
	if align == 0 {
		align = DefaultAlignment
	}
	if align&(align-1) != 0 {
		return 0, fmt.Errorf("alignment %d is not a power of two", align)
	}
	entry := &allocation{size: max(size, 1), align: align}
	ok, offset := a.region.Place(entry, false)
	if !ok {
		return 0, fmt.Errorf("allocate %d bytes aligned to %d, %d of %d in use: %w",
			size, align, a.region.Used(), a.region.Size(), ErrArenaExhausted)
	}
	return offset, nil
}

func (a *Arena) Base() uint64 {
	return a.base
}

func (a *Arena) Used() uint64 {
	return a.region.Used()
}

func (a *Arena) Size() uint64 {
	return a.region.Size()
}
