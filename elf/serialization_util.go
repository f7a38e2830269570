// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrTruncated    = errors.New("unexpected end of input")
	ErrSizeMismatch = errors.New("structure size mismatch")
)

// An Archiver reads fixed-width ELF fields from a seekable byte source.
//
// The first failed operation puts the Archiver into a failed state; from then
// on every read, seek and size check is a no-op. Callers can chain a sequence
// of field reads and check OK once at the end of a structure.
type Archiver struct {
	r       io.ReadSeeker
	order   binary.ByteOrder
	class   FileClass
	pos     int64
	size    int64
	err     error
	markers []int64
	buf     [8]byte
}

// NewArchiver returns an Archiver positioned at the current offset of r. The
// byte order defaults to little endian until SetByteOrder is called.
func NewArchiver(r io.ReadSeeker) *Archiver {
	a := &Archiver{r: r, order: binary.LittleEndian}
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		a.err = err
		return a
	}
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		a.err = err
		return a
	}
	if _, err := r.Seek(pos, io.SeekStart); err != nil {
		a.err = err
		return a
	}
	a.pos = pos
	a.size = size
	return a
}

func (a *Archiver) SetByteOrder(order binary.ByteOrder) {
	a.order = order
}

func (a *Archiver) ByteOrder() binary.ByteOrder {
	return a.order
}

// SetClass selects the width of address, offset and xword fields.
func (a *Archiver) SetClass(c FileClass) {
	a.class = c
}

func (a *Archiver) Class() FileClass {
	return a.class
}

func (a *Archiver) OK() bool {
	return a.err == nil
}

func (a *Archiver) Err() error {
	return a.err
}

// Fail puts the archiver into the failed state unless it already failed.
func (a *Archiver) Fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

func (a *Archiver) Tell() int64 {
	return a.pos
}

func (a *Archiver) Size() int64 {
	return a.size
}

// Seek moves to an absolute offset. Offsets past the end of the input fail.
func (a *Archiver) Seek(offset uint64) {
	if a.err != nil {
		return
	}
	if offset > uint64(a.size) {
		a.err = fmt.Errorf("seek to 0x%x: %w", offset, ErrTruncated)
		return
	}
	if _, err := a.r.Seek(int64(offset), io.SeekStart); err != nil {
		a.err = err
		return
	}
	a.pos = int64(offset)
}

// Prologue marks the start of a structure of the given size.
func (a *Archiver) Prologue(size int) {
	if a.err != nil {
		return
	}
	if a.pos+int64(size) > a.size {
		a.err = fmt.Errorf("%d byte structure at 0x%x: %w", size, a.pos, ErrTruncated)
		return
	}
	a.markers = append(a.markers, a.pos)
}

// Epilogue checks that exactly size bytes were consumed since the matching
// Prologue.
func (a *Archiver) Epilogue(size int) {
	if a.err != nil {
		return
	}
	if len(a.markers) == 0 {
		a.err = errors.New("epilogue without prologue")
		return
	}
	start := a.markers[len(a.markers)-1]
	a.markers = a.markers[:len(a.markers)-1]
	if got := a.pos - start; got != int64(size) {
		a.err = fmt.Errorf("read %d bytes, expected %d: %w", got, size, ErrSizeMismatch)
	}
}

// Bytes fills buf from the current position.
func (a *Archiver) Bytes(buf []byte) {
	if a.err != nil {
		return
	}
	n, err := io.ReadFull(a.r, buf)
	a.pos += int64(n)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = ErrTruncated
		}
		a.err = err
	}
}

func (a *Archiver) field(n int) []byte {
	b := a.buf[:n]
	a.Bytes(b)
	if a.err != nil {
		clear(b)
	}
	return b
}

func (a *Archiver) Uint8() uint8 {
	return a.field(1)[0]
}

func (a *Archiver) Half() uint16 {
	return a.order.Uint16(a.field(2))
}

func (a *Archiver) Word() uint32 {
	return a.order.Uint32(a.field(4))
}

func (a *Archiver) Sword() int32 {
	return int32(a.Word())
}

func (a *Archiver) Xword() uint64 {
	return a.order.Uint64(a.field(8))
}

func (a *Archiver) Sxword() int64 {
	return int64(a.Xword())
}

// Addr reads an address field, 4 or 8 bytes wide depending on the class.
func (a *Archiver) Addr() uint64 {
	if a.class == ELFCLASS64 {
		return a.Xword()
	}
	return uint64(a.Word())
}

// Off reads a file offset field, 4 or 8 bytes wide depending on the class.
func (a *Archiver) Off() uint64 {
	return a.Addr()
}
