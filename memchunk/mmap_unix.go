// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

//go:build unix

package memchunk

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapAllocator maps anonymous private memory from the operating system.
type MmapAllocator struct{}

func (MmapAllocator) Allocate(size int) (Block, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return Block{}, err
	}
	return Block{
		Data: data,
		Addr: uint64(uintptr(unsafe.Pointer(&data[0]))),
	}, nil
}

func (MmapAllocator) Protect(b Block, prot Prot) error {
	var p int
	if prot&ProtRead != 0 {
		p |= unix.PROT_READ
	}
	if prot&ProtWrite != 0 {
		p |= unix.PROT_WRITE
	}
	if prot&ProtExec != 0 {
		p |= unix.PROT_EXEC
	}
	if err := unix.Mprotect(b.Data, p); err != nil {
		return err
	}
	if prot&ProtExec != 0 {
		return flushICache(b.Data)
	}
	return nil
}

func (MmapAllocator) Free(b Block) error {
	return unix.Munmap(b.Data)
}

// PageSize returns the operating system page size.
func PageSize() int {
	return unix.Getpagesize()
}

// Default returns the allocator used when none is configured.
func Default() Allocator {
	return MmapAllocator{}
}
