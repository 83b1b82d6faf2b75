// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gdb adapts an emulated 6502 host to the GDB remote serial
// protocol. A Target maps protocol registers, memory and breakpoints onto
// a host.Host, a Session dispatches the requests of one debugger
// connection, and a Server accepts connections and gives each its own
// session.
package gdb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/host"
)

// Register numbers of the mos target description.
const (
	RegPC  = 0
	RegA   = 1
	RegX   = 2
	RegY   = 3
	RegS   = 4
	RegC   = 5
	RegZ   = 6
	RegV   = 7
	RegN   = 8
	RegRC0 = 9  // first of 32 8-bit imaginary registers
	RegRS0 = 41 // first of 16 16-bit imaginary registers

	NumRegs = 57

	numRC = 32
	numRS = 16

	// Size in bytes of the register block exchanged by 'g' and 'G'.
	registersSize = 2 + 8 + numRC + 2*numRS
)

// DWARF register numbers of the first imaginary registers.
const (
	dwarfRC0 = 16
	dwarfRS0 = 528
)

// Errors returned by Target.
var (
	ErrBadRegister    = errors.New("register number out of range")
	ErrBadRegisterLen = errors.New("register value has the wrong size")
	ErrBadBreakpoint  = errors.New("unsupported breakpoint type")
)

// BreakpointType is the type field of 'Z' and 'z' requests.
type BreakpointType int

// Breakpoint types supported by the target.
const (
	SoftwareBreakpoint BreakpointType = iota
	HardwareBreakpoint
	WriteWatchpoint
	ReadWatchpoint
	AccessWatchpoint
)

var watchKinds = map[BreakpointType]cpu.AccessKind{
	WriteWatchpoint:  cpu.Write,
	ReadWatchpoint:   cpu.Read,
	AccessWatchpoint: cpu.Access,
}

// A Target exposes the state of an emulated host in the register,
// memory and breakpoint vocabulary of the remote protocol.
type Target struct {
	host *host.Host
}

// NewTarget creates a target for the host 'h'.
func NewTarget(h *host.Host) *Target {
	return &Target{host: h}
}

// Host returns the host behind the target.
func (t *Target) Host() *host.Host {
	return t.host
}

func regSize(n int) int {
	if n == RegPC || n >= RegRS0 {
		return 2
	}
	return 1
}

func regOffset(n int) int {
	switch {
	case n == RegPC:
		return 0
	case n < RegRS0:
		return n + 1
	default:
		return 2 + 8 + numRC + 2*(n-RegRS0)
	}
}

// Return the zero page address of imaginary register byte 'i'. Addresses
// wrap within the zero page.
func (t *Target) zpAddr(i int) uint16 {
	return uint16(byte(int(t.host.ZeroPageRegBase()) + i))
}

// Status bits of the C, Z, V and N registers.
var flagBits = [...]byte{cpu.CarryBit, cpu.ZeroBit, cpu.OverflowBit, cpu.SignBit}

func flagByte(f bool) byte {
	if f {
		return 1
	}
	return 0
}

// Store register 'n' in little-endian order at the start of 'b'.
func (t *Target) readRegister(n int, b []byte) {
	r := &t.host.CPU().Reg
	mem := t.host.Memory()
	switch {
	case n == RegPC:
		b[0], b[1] = byte(r.PC), byte(r.PC>>8)
	case n == RegA:
		b[0] = r.A
	case n == RegX:
		b[0] = r.X
	case n == RegY:
		b[0] = r.Y
	case n == RegS:
		b[0] = r.SP
	case n <= RegN:
		b[0] = flagByte(r.Flag(flagBits[n-RegC]))
	case n < RegRS0:
		b[0] = mem.LoadByte(t.zpAddr(n - RegRC0))
	default:
		i := 2 * (n - RegRS0)
		b[0] = mem.LoadByte(t.zpAddr(i))
		b[1] = mem.LoadByte(t.zpAddr(i + 1))
	}
}

func (t *Target) writeRegister(n int, b []byte) {
	r := &t.host.CPU().Reg
	mem := t.host.Memory()
	switch {
	case n == RegPC:
		t.host.CPU().SetPC(uint16(b[0]) | uint16(b[1])<<8)
	case n == RegA:
		r.A = b[0]
	case n == RegX:
		r.X = b[0]
	case n == RegY:
		r.Y = b[0]
	case n == RegS:
		r.SP = b[0]
	case n <= RegN:
		r.SetFlag(flagBits[n-RegC], b[0] != 0)
	case n < RegRS0:
		mem.StoreByte(t.zpAddr(n-RegRC0), b[0])
	default:
		i := 2 * (n - RegRS0)
		mem.StoreByte(t.zpAddr(i), b[0])
		mem.StoreByte(t.zpAddr(i+1), b[1])
	}
}

// ReadRegisters returns the contents of every register in protocol order.
func (t *Target) ReadRegisters() []byte {
	b := make([]byte, registersSize)
	for n := 0; n < NumRegs; n++ {
		t.readRegister(n, b[regOffset(n):])
	}
	return b
}

// WriteRegisters replaces every register with the contents of 'b', which
// must hold a full register block. The RS registers alias pairs of RC
// registers, so only the RC slots are written to memory.
func (t *Target) WriteRegisters(b []byte) error {
	if len(b) != registersSize {
		return ErrBadRegisterLen
	}
	for n := 0; n < RegRS0; n++ {
		t.writeRegister(n, b[regOffset(n):])
	}
	return nil
}

// ReadRegister returns the little-endian value of register 'n'.
func (t *Target) ReadRegister(n int) ([]byte, error) {
	if n < 0 || n >= NumRegs {
		return nil, ErrBadRegister
	}
	b := make([]byte, regSize(n))
	t.readRegister(n, b)
	return b, nil
}

// WriteRegister sets register 'n' from its little-endian value 'b'.
func (t *Target) WriteRegister(n int, b []byte) error {
	if n < 0 || n >= NumRegs {
		return ErrBadRegister
	}
	if len(b) != regSize(n) {
		return ErrBadRegisterLen
	}
	t.writeRegister(n, b)
	return nil
}

// PC returns the program counter.
func (t *Target) PC() uint16 {
	return t.host.CPU().Reg.PC
}

// ReadMemory returns 'n' bytes of memory starting at 'addr'. Reads wrap
// around the end of the address space.
func (t *Target) ReadMemory(addr uint16, n int) []byte {
	b := make([]byte, n)
	t.host.Memory().LoadBytes(addr, b)
	return b
}

// WriteMemory stores 'b' into memory starting at 'addr'. Writes bypass
// the simulator devices.
func (t *Target) WriteMemory(addr uint16, b []byte) {
	t.host.Memory().StoreBytes(addr, b)
}

// InsertBreakpoint adds a breakpoint of type 'typ'. For watchpoints,
// 'length' bytes starting at 'addr' are watched.
func (t *Target) InsertBreakpoint(typ BreakpointType, addr uint16, length int) error {
	switch typ {
	case SoftwareBreakpoint, HardwareBreakpoint:
		t.host.AddBreakpoint(addr)
		return nil
	}

	kind, ok := watchKinds[typ]
	if !ok {
		return ErrBadBreakpoint
	}
	for i := 0; i < max(length, 1); i++ {
		t.host.AddWatchpoint(addr+uint16(i), kind)
	}
	return nil
}

// RemoveBreakpoint removes a breakpoint added by InsertBreakpoint.
// Removing a breakpoint that does not exist is not an error.
func (t *Target) RemoveBreakpoint(typ BreakpointType, addr uint16, length int) error {
	switch typ {
	case SoftwareBreakpoint, HardwareBreakpoint:
		t.host.RemoveBreakpoint(addr)
		return nil
	}

	kind, ok := watchKinds[typ]
	if !ok {
		return ErrBadBreakpoint
	}
	for i := 0; i < max(length, 1); i++ {
		t.host.RemoveWatchpoint(addr+uint16(i), kind)
	}
	return nil
}

// TargetXML is the target description served through
// qXfer:features:read.
var TargetXML = buildTargetXML()

func buildTargetXML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	b.WriteString(`<!DOCTYPE target SYSTEM "gdb-target.dtd">` + "\n")
	b.WriteString(`<target version="1.0">` + "\n")
	b.WriteString("  <architecture>mos</architecture>\n")
	b.WriteString(`  <feature name="org.gnu.gdb.mos">` + "\n")

	reg := func(format string, args ...any) {
		b.WriteString("    ")
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\n")
	}

	reg(`<reg name="PC" bitsize="16" offset="%d" regnum="%d" generic="pc" />`, regOffset(RegPC), RegPC)
	reg(`<reg name="A" bitsize="8" offset="%d" regnum="%d" dwarf_regnum="0" />`, regOffset(RegA), RegA)
	reg(`<reg name="X" bitsize="8" offset="%d" regnum="%d" dwarf_regnum="2" />`, regOffset(RegX), RegX)
	reg(`<reg name="Y" bitsize="8" offset="%d" regnum="%d" dwarf_regnum="4" />`, regOffset(RegY), RegY)
	reg(`<reg name="S" bitsize="8" offset="%d" regnum="%d" />`, regOffset(RegS), RegS)
	for i, name := range []string{"C", "Z", "V", "N"} {
		n := RegC + i
		reg(`<reg name="%s" bitsize="1" offset="%d" regnum="%d" />`, name, regOffset(n), n)
	}
	for i := 0; i < numRC; i++ {
		n := RegRC0 + i
		reg(`<reg name="RC%d" group_id="1" bitsize="8" offset="%d" regnum="%d" dwarf_regnum="%d" />`,
			i, regOffset(n), n, dwarfRC0+2*i)
	}
	for i := 0; i < numRS; i++ {
		n := RegRS0 + i
		reg(`<reg name="RS%d" group_id="2" bitsize="16" offset="%d" regnum="%d" dwarf_regnum="%d" />`,
			i, regOffset(n), n, dwarfRS0+i)
	}

	b.WriteString("  </feature>\n")
	b.WriteString("</target>\n")
	return b.String()
}
