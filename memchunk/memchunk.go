// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package memchunk provides page-aligned memory for loaded sections.
package memchunk

import (
	"errors"
	"fmt"
)

var (
	ErrLimit = errors.New("allocator limit exceeded")
	ErrFreed = errors.New("chunk already freed")
)

// MaxSize is the largest chunk New will allocate.
const MaxSize = 1 << 30

type Prot int

const (
	ProtNone  Prot = 0
	ProtRead  Prot = 1
	ProtWrite Prot = 2
	ProtExec  Prot = 4

	ProtReadWrite = ProtRead | ProtWrite
	ProtReadExec  = ProtRead | ProtExec
)

func (p Prot) String() string {
	s := []byte("---")
	if p&ProtRead != 0 {
		s[0] = 'r'
	}
	if p&ProtWrite != 0 {
		s[1] = 'w'
	}
	if p&ProtExec != 0 {
		s[2] = 'x'
	}
	return string(s)
}

// A Block is a page-aligned region handed out by an Allocator. Addr is the
// address code running from the block observes; for real allocators it is
// the address of Data[0].
type Block struct {
	Data []byte
	Addr uint64
}

// An Allocator provides zeroed, page-aligned, readable and writable memory
// and can later change its protection.
type Allocator interface {
	Allocate(size int) (Block, error)
	Protect(b Block, prot Prot) error
	Free(b Block) error
}

// A Chunk is one allocation owned by a section or by an object.
type Chunk struct {
	alloc Allocator
	block Block
	size  int
	prot  Prot
	freed bool
}

// RoundPage rounds size up to a multiple of the page size.
func RoundPage(size int) int {
	page := PageSize()
	return (size + page - 1) &^ (page - 1)
}

// New allocates a chunk of at least size bytes. Zero-sized chunks still
// occupy one page so that every chunk has a distinct address.
func New(alloc Allocator, size int) (*Chunk, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative chunk size %d", size)
	}
	if size > MaxSize {
		return nil, fmt.Errorf("chunk of 0x%x bytes: %w", size, ErrLimit)
	}
	n := RoundPage(max(size, 1))
	b, err := alloc.Allocate(n)
	if err != nil {
		return nil, err
	}
	return &Chunk{
		alloc: alloc,
		block: b,
		size:  size,
		prot:  ProtReadWrite,
	}, nil
}

// Bytes returns the usable bytes of the chunk.
func (c *Chunk) Bytes() []byte {
	return c.block.Data[:c.size]
}

func (c *Chunk) Addr() uint64 {
	return c.block.Addr
}

func (c *Chunk) Size() int {
	return c.size
}

func (c *Chunk) Prot() Prot {
	return c.prot
}

// Protect changes the protection of the whole chunk.
func (c *Chunk) Protect(prot Prot) error {
	if c.freed {
		return ErrFreed
	}
	if err := c.alloc.Protect(c.block, prot); err != nil {
		return fmt.Errorf("protect chunk at 0x%x: %w", c.block.Addr, err)
	}
	c.prot = prot
	return nil
}

// Free releases the chunk. Freeing twice is an error.
func (c *Chunk) Free() error {
	if c.freed {
		return ErrFreed
	}
	c.freed = true
	return c.alloc.Free(c.block)
}
