// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

//go:build !unix

package memchunk

func PageSize() int {
	return 4096
}

func Default() Allocator {
	return HeapAllocator{}
}
