// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

//go:build !(linux && (arm || mips || mipsle))

package memchunk

// x86 keeps instruction and data caches coherent.
// TODO: arm64 needs dc cvau / ic ivau, which has no syscall wrapper.
func flushICache([]byte) error {
	return nil
}
