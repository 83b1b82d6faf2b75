// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader turns executable files into flat memory images that can
// be copied onto the 6502 address space.
package loader

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/logger"
)

// Errors returned by the loader.
var (
	ErrNotELF       = errors.New("not an ELF file")
	ErrImageTooBig  = errors.New("image does not fit in 64K address space")
	ErrEmptyImage   = errors.New("image contains no loadable data")
	ErrBadEntryAddr = errors.New("entry point outside 16-bit address space")
)

// A Segment is a run of bytes to be stored at a fixed address.
type Segment struct {
	Name string
	Addr uint16
	Data []byte
}

// An Image is a flat description of initial memory contents plus the
// address where execution begins.
type Image struct {
	Entry    uint16
	Segments []Segment
	Symbols  map[string]uint16
}

// IsELF returns true if 'b' starts with the ELF signature.
func IsELF(b []byte) bool {
	return bytes.HasPrefix(b, []byte(elf.ELFMAG))
}

// ParseELF parses an ELF executable. Every allocated section that has file
// contents becomes a segment, and the entry point comes from the ELF
// header.
func ParseELF(b []byte) (*Image, error) {
	if !IsELF(b) {
		return nil, ErrNotELF
	}

	f, err := elf.NewFile(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parsing ELF: %w", err)
	}
	defer f.Close()

	if f.Entry > 0xffff {
		return nil, ErrBadEntryAddr
	}

	img := &Image{Entry: uint16(f.Entry)}
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Type == elf.SHT_NOBITS || s.Size == 0 {
			continue
		}
		if s.Addr+s.Size > cpu.MemorySize {
			return nil, fmt.Errorf("section %s: %w", s.Name, ErrImageTooBig)
		}

		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("reading section %s: %w", s.Name, err)
		}

		logger.Logf(logger.TagLoader, "loading section %s into [$%04X..$%04X)",
			s.Name, s.Addr, s.Addr+s.Size)
		img.Segments = append(img.Segments, Segment{
			Name: s.Name,
			Addr: uint16(s.Addr),
			Data: data,
		})
	}
	if len(img.Segments) == 0 {
		return nil, ErrEmptyImage
	}

	// Symbol tables are optional; stripped executables simply have none.
	if syms, err := f.Symbols(); err == nil {
		img.Symbols = make(map[string]uint16)
		for _, sym := range syms {
			if sym.Name == "" || sym.Section == elf.SHN_UNDEF || sym.Value > 0xffff {
				continue
			}
			switch elf.ST_TYPE(sym.Info) {
			case elf.STT_FUNC, elf.STT_OBJECT, elf.STT_NOTYPE:
				img.Symbols[sym.Name] = uint16(sym.Value)
			}
		}
	}

	return img, nil
}

// ParseRaw creates an image holding the raw bytes 'b' at 'origin'. The
// entry point is the origin.
func ParseRaw(b []byte, origin uint16) (*Image, error) {
	if len(b) == 0 {
		return nil, ErrEmptyImage
	}
	if int(origin)+len(b) > cpu.MemorySize {
		return nil, ErrImageTooBig
	}
	return &Image{
		Entry:    origin,
		Segments: []Segment{{Name: "raw", Addr: origin, Data: b}},
	}, nil
}

// Parse picks the image format by content: ELF files are recognized by
// their signature and anything else is treated as a raw binary at
// 'origin'.
func Parse(b []byte, origin uint16) (*Image, error) {
	if IsELF(b) {
		return ParseELF(b)
	}
	return ParseRaw(b, origin)
}

// LoadFile reads and parses the file at 'path'.
func LoadFile(path string, origin uint16) (*Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Parse(b, origin)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Logf(logger.TagLoader, "loaded %s, entry $%04X", path, img.Entry)
	return img, nil
}

// CopyTo stores every segment of the image into memory 'm'.
func (img *Image) CopyTo(m cpu.Memory) {
	for _, s := range img.Segments {
		m.StoreBytes(s.Addr, s.Data)
	}
}

// Size returns the total number of bytes held by the image's segments.
func (img *Image) Size() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// Lookup returns the address of the named symbol.
func (img *Image) Lookup(name string) (addr uint16, ok bool) {
	addr, ok = img.Symbols[name]
	return addr, ok
}

// SymbolNames returns the image's symbol names in address order.
func (img *Image) SymbolNames() []string {
	names := make([]string, 0, len(img.Symbols))
	for name := range img.Symbols {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ai, aj := img.Symbols[names[i]], img.Symbols[names[j]]
		if ai != aj {
			return ai < aj
		}
		return names[i] < names[j]
	})
	return names
}
