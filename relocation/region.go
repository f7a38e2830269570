// SPDX-License-Identifier: MIT
//
// Copyright (c) 2023, 2024 Adrian "asie" Siekierka

package relocation

import (
	"slices"
)

type RegionPlaceable interface {
	Offset() uint64
	SetOffset(uint64)
	Size() uint64
	Alignment() uint64
}

// A Region is a fixed address range in which entries are placed first-fit,
// either from the start (ascending) or from the end (descending). Entries are
// kept sorted by offset and never move once placed.
type Region[T RegionPlaceable] struct {
	offset     uint64
	size       uint64
	entries    []T
	descending bool
}

func NewRegion[T RegionPlaceable](offset uint64, size uint64, descending bool) *Region[T] {
	r := Region[T]{
		offset:     offset,
		size:       size,
		entries:    make([]T, 0),
		descending: descending,
	}
	return &r
}

func (r Region[T]) Offset() uint64 {
	return r.offset
}

func (r Region[T]) Size() uint64 {
	return r.size
}

func (r Region[T]) Empty() bool {
	return len(r.entries) == 0
}

func (r Region[T]) Len() int {
	return len(r.entries)
}

func (r Region[T]) Entries() []T {
	return r.entries
}

// Used returns the number of bytes covered by entries.
func (r Region[T]) Used() uint64 {
	var used uint64
	for _, e := range r.entries {
		used += e.Size()
	}
	return used
}

func calcEntryOffset(start uint64, end uint64, len uint64, descending bool, align uint64) (bool, uint64) {
	if end < start || end-start < len {
		return false, 0
	}
	if descending {
		offset := end - len
		if align > 1 {
			offset -= (offset % align)
		}
		if offset >= start {
			return true, offset
		}
	} else {
		offset := start
		if align > 1 {
			offset += align - 1
			offset -= (offset % align)
		}
		if (offset + len) <= end {
			return true, offset
		}
	}

	return false, 0
}

// gap returns the free range before entry i; i == len(entries) is the range
// after the last entry.
func (r Region[T]) gap(i int) (uint64, uint64) {
	start := r.offset
	if i > 0 {
		prev := r.entries[i-1]
		start = prev.Offset() + prev.Size()
	}
	end := r.offset + r.size
	if i < len(r.entries) {
		end = r.entries[i].Offset()
	}
	return start, end
}

// Place finds room for entry, sets its offset and records it. It returns
// false if no gap can hold the entry with its alignment. With simulate set,
// the offset is computed but nothing is changed.
func (r *Region[T]) Place(entry T, simulate bool) (bool, uint64) {
	count := len(r.entries) + 1
	for n := 0; n < count; n++ {
		i := n
		if r.descending {
			i = count - 1 - n
		}
		gapStart, gapEnd := r.gap(i)
		ok, offset := calcEntryOffset(gapStart, gapEnd, entry.Size(), r.descending, entry.Alignment())
		if !ok {
			// try the next gap; alignment might have not been sufficient
			continue
		}
		if !simulate {
			entry.SetOffset(offset)
			r.entries = slices.Insert(r.entries, i, entry)
		}
		return true, offset
	}
	return false, 0
}
