// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Command linkload loads a relocatable ELF object, relocates it against
// symbols given on the command line and prints the resulting layout.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/WonderfulToolchain/wf-linkloader/elf"
	"github.com/WonderfulToolchain/wf-linkloader/linkloader"
	"github.com/WonderfulToolchain/wf-linkloader/memchunk"
	"github.com/ianlancetaylor/demangle"
)

var errMissingSymbols = errors.New("unresolved symbols")

type config struct {
	symbols symbolFlags
	base    uint64
	wide64  bool
	strict  bool
	verbose bool
}

func mainE(args []string, stdout io.Writer) error {
	cfg := config{symbols: symbolFlags{}}
	fs := flag.NewFlagSet("linkload", flag.ContinueOnError)
	fs.Var(cfg.symbols, "sym", "External symbol as name=address (repeatable)")
	fs.Uint64Var(&cfg.base, "base", 0, "Place sections at virtual addresses from this base instead of mapping them")
	fs.BoolVar(&cfg.wide64, "wide64", false, "Patch all 64 bits of R_X86_64_64")
	fs.BoolVar(&cfg.strict, "strict", false, "Fail if any symbol is unresolved")
	fs.BoolVar(&cfg.verbose, "v", false, "Log loader activity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("got %d arguments, expected 1", fs.NArg())
	}
	input := fs.Arg(0)
	if err := run(input, cfg, stdout); err != nil {
		return wrapError(err, input)
	}
	return nil
}

func run(input string, cfg config, stdout io.Writer) error {
	fp, err := os.Open(input)
	if err != nil {
		return err
	}
	defer fp.Close()

	opts := linkloader.Options{}
	if cfg.base != 0 {
		opts.Allocator = memchunk.NewVirtualAllocator(cfg.base)
	}
	if cfg.wide64 {
		opts.X86_64AbsWidth = 64
	}
	if cfg.verbose {
		opts.Logger = log.Default()
	}

	obj, err := linkloader.Read(fp, opts)
	if err != nil {
		return err
	}
	defer obj.Close()

	if err := obj.Relocate(cfg.symbols.resolve); err != nil {
		return err
	}
	report(stdout, obj)

	if obj.MissingSymbols() {
		if cfg.strict {
			return fmt.Errorf("%w: %s", errMissingSymbols, strings.Join(obj.Unresolved(), ", "))
		}
		for _, name := range obj.Unresolved() {
			log.Printf("warning: unresolved symbol %s", demangle.Filter(name))
		}
	}
	return nil
}

func report(w io.Writer, obj *linkloader.Object) {
	h := obj.Header()
	fmt.Fprintf(w, "%s %s %s\n", h.Class, h.Machine, h.Type)

	fmt.Fprintln(w, "Sections:")
	for i, s := range obj.Sections() {
		switch s := s.(type) {
		case *linkloader.ProgBits:
			fmt.Fprintf(w, "  [%2d] %-20s %-8s 0x%08x 0x%06x %s\n", i, s.Name(), s.Header().Type, s.Addr(), s.Size(), s.Prot())
		case *linkloader.NoBits:
			fmt.Fprintf(w, "  [%2d] %-20s %-8s 0x%08x 0x%06x %s\n", i, s.Name(), s.Header().Type, s.Addr(), s.Size(), s.Prot())
		}
	}

	if st := obj.SymTab(); st != nil {
		fmt.Fprintln(w, "Symbols:")
		for _, sym := range st.Symbols() {
			if sym.Binding == elf.STB_LOCAL || sym.IsUndefined() {
				continue
			}
			if sym.Type != elf.STT_FUNC && sym.Type != elf.STT_OBJECT {
				continue
			}
			addr, ok := obj.SymbolAddress(sym.Name)
			if !ok {
				continue
			}
			fmt.Fprintf(w, "  0x%08x %-6s %s\n", addr, sym.Type, demangle.Filter(sym.Name))
		}
	}

	fmt.Fprintf(w, "Stubs: %d\n", obj.Stubs())
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("linkload: ")
	if err := mainE(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errMissingSymbols) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
