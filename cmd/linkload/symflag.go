// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// symbolFlags collects repeated -sym name=address arguments.
type symbolFlags map[string]uint64

func (s symbolFlags) String() string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=0x%x", name, s[name])
	}
	return strings.Join(parts, ",")
}

func (s symbolFlags) Set(v string) error {
	name, addr, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=address, got %q", v)
	}
	a, err := strconv.ParseUint(addr, 0, 64)
	if err != nil {
		return fmt.Errorf("symbol %s: %v", name, err)
	}
	s[name] = a
	return nil
}

func (s symbolFlags) resolve(name string) (uint64, bool) {
	addr, ok := s[name]
	return addr, ok
}
