// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package memchunk

import (
	"fmt"
	"sort"
)

// A VirtualAllocator places blocks in a virtual address space starting at
// Base, backed by ordinary heap memory. It is used to prepare images for a
// different target address space and to get reproducible addresses.
//
// A non-zero Limit caps the number of bytes live at once.
type VirtualAllocator struct {
	Base  uint64
	Limit int

	next  uint64
	used  int
	prots map[uint64]Prot
	sizes map[uint64]int
}

func NewVirtualAllocator(base uint64) *VirtualAllocator {
	return &VirtualAllocator{Base: base}
}

func (v *VirtualAllocator) Allocate(size int) (Block, error) {
	if size < 0 || size > MaxSize {
		return Block{}, fmt.Errorf("allocate %d bytes: %w", size, ErrLimit)
	}
	if v.Limit > 0 && v.used+size > v.Limit {
		return Block{}, fmt.Errorf("allocate %d bytes with %d of %d in use: %w", size, v.used, v.Limit, ErrLimit)
	}
	if v.prots == nil {
		v.prots = make(map[uint64]Prot)
		v.sizes = make(map[uint64]int)
	}
	page := uint64(PageSize())
	if v.next < v.Base {
		v.next = (v.Base + page - 1) &^ (page - 1)
	}
	addr := v.next
	v.next += (uint64(size) + page - 1) &^ (page - 1)
	v.used += size
	v.prots[addr] = ProtReadWrite
	v.sizes[addr] = size
	return Block{Data: make([]byte, size), Addr: addr}, nil
}

func (v *VirtualAllocator) Protect(b Block, prot Prot) error {
	if _, ok := v.prots[b.Addr]; !ok {
		return fmt.Errorf("protect unknown block 0x%x", b.Addr)
	}
	v.prots[b.Addr] = prot
	return nil
}

func (v *VirtualAllocator) Free(b Block) error {
	size, ok := v.sizes[b.Addr]
	if !ok {
		return fmt.Errorf("free unknown block 0x%x", b.Addr)
	}
	v.used -= size
	delete(v.prots, b.Addr)
	delete(v.sizes, b.Addr)
	return nil
}

// Used returns the number of bytes currently allocated.
func (v *VirtualAllocator) Used() int {
	return v.used
}

// Prot returns the protection of the live block starting at addr.
func (v *VirtualAllocator) Prot(addr uint64) (Prot, bool) {
	p, ok := v.prots[addr]
	return p, ok
}

// Blocks returns the start addresses of all live blocks in ascending order.
func (v *VirtualAllocator) Blocks() []uint64 {
	addrs := make([]uint64, 0, len(v.sizes))
	for a := range v.sizes {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
