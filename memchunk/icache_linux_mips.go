// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

//go:build linux && (mips || mipsle)

package memchunk

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// BCACHE: flush both instruction and data caches.
const mipsBothCaches = 3

func flushICache(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	start := uintptr(unsafe.Pointer(&data[0]))
	_, _, errno := unix.Syscall(unix.SYS_CACHEFLUSH, start, uintptr(len(data)), mipsBothCaches)
	if errno != 0 {
		return errno
	}
	return nil
}
