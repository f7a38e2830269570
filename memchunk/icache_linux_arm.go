// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

//go:build linux && arm

package memchunk

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// __ARM_NR_cacheflush
const sysARMCacheFlush = 0xf0002

func flushICache(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	start := uintptr(unsafe.Pointer(&data[0]))
	_, _, errno := unix.Syscall(sysARMCacheFlush, start, start+uintptr(len(data)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
