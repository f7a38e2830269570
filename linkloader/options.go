// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package linkloader

import (
	"fmt"
	"log"

	"github.com/WonderfulToolchain/wf-linkloader/memchunk"
)

// Options configures an Object. The zero value is ready to use.
type Options struct {
	// Allocator provides section, arena and GOT memory. Defaults to
	// memchunk.Default().
	Allocator memchunk.Allocator

	// X86_64AbsWidth is the number of bits R_X86_64_64 writes: 32 (the
	// default) truncates the value to the low word, 64 writes all of it.
	X86_64AbsWidth int

	// Logger receives debug output. Nil disables logging.
	Logger *log.Logger
}

func (o Options) validate() error {
	switch o.X86_64AbsWidth {
	case 0, 32, 64:
	default:
		return fmt.Errorf("invalid R_X86_64_64 patch width %d", o.X86_64AbsWidth)
	}
	return nil
}

func (o Options) allocator() memchunk.Allocator {
	if o.Allocator != nil {
		return o.Allocator
	}
	return memchunk.Default()
}

func (o Options) absWidth() int {
	if o.X86_64AbsWidth == 0 {
		return 32
	}
	return o.X86_64AbsWidth
}

func (o *Object) logf(format string, args ...any) {
	if o.opts.Logger != nil {
		o.opts.Logger.Printf(format, args...)
	}
}
