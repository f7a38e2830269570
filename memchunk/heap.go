// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package memchunk

import "unsafe"

// HeapAllocator hands out page-aligned slices of the Go heap. It cannot change
// protection; Protect only flushes the instruction cache.
type HeapAllocator struct{}

func (HeapAllocator) Allocate(size int) (Block, error) {
	page := PageSize()
	raw := make([]byte, size+page)
	base := uintptr(unsafe.Pointer(&raw[0]))
	skip := int((uintptr(page) - base%uintptr(page)) % uintptr(page))
	data := raw[skip : skip+size : skip+size]
	return Block{
		Data: data,
		Addr: uint64(base) + uint64(skip),
	}, nil
}

func (HeapAllocator) Protect(b Block, prot Prot) error {
	if prot&ProtExec != 0 {
		return flushICache(b.Data)
	}
	return nil
}

func (HeapAllocator) Free(Block) error {
	return nil
}
