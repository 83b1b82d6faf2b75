// Copyright 2018 Brett Vickers.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host implements the execution controller for a single debugging
// session: an emulated 6502 with 64K of memory, a breakpoint-aware
// debugger, a pair of simulator devices for program exit and console
// output, and a monitor command interpreter.
//
// Every session owns its own Host. A Host is not safe for concurrent use,
// with the exception of Break, which may be called from any goroutine to
// interrupt a running Host.
package host

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/loader"
	"github.com/beevik/gdb6502/logger"
	lua "github.com/yuin/gopher-lua"
)

// StopKind identifies why execution stopped.
type StopKind byte

// All possible stop kinds
const (
	StopStep        StopKind = iota // a single instruction completed
	StopBreakpoint                  // an execution breakpoint was reached
	StopWatchpoint                  // a data breakpoint was accessed
	StopHalted                      // the program stored its exit code
	StopIllegal                     // an undefined opcode was fetched
	StopInterrupted                 // Break was called
)

var stopKindNames = []string{
	"step",
	"breakpoint",
	"watchpoint",
	"halted",
	"illegal opcode",
	"interrupted",
}

func (k StopKind) String() string {
	if int(k) < len(stopKindNames) {
		return stopKindNames[k]
	}
	return "unknown"
}

// A StopReason describes the outcome of Step, Run or RangeStep.
type StopReason struct {
	Kind     StopKind
	Addr     uint16         // breakpoint, watchpoint or illegal opcode address
	Access   cpu.AccessKind // watchpoint kind
	Opcode   byte           // illegal opcode
	ExitCode byte           // exit code of a halted program
}

func (r StopReason) String() string {
	switch r.Kind {
	case StopBreakpoint:
		return fmt.Sprintf("breakpoint at $%04X", r.Addr)
	case StopWatchpoint:
		return fmt.Sprintf("%s watchpoint at $%04X", r.Access, r.Addr)
	case StopHalted:
		return fmt.Sprintf("halted with exit code %d", r.ExitCode)
	case StopIllegal:
		return fmt.Sprintf("illegal opcode $%02X at $%04X", r.Opcode, r.Addr)
	default:
		return r.Kind.String()
	}
}

// A Host emulates a 6502 system for one debugging session.
type Host struct {
	mem       *cpu.FlatMemory
	bus       *bus
	cpu       *cpu.CPU
	debugger  *cpu.Debugger
	settings  *settings
	image     *loader.Image
	console   io.Writer
	interrupt atomic.Bool
	halted    bool
	exitCode  byte
	lua       *lua.LState
	output    io.Writer // monitor command output

	// Breakpoints hit by the instruction currently executing.
	hitBreakpoint *cpu.Breakpoint
	hitData       *cpu.DataBreakpoint
}

// New creates a new host with an emulated CPU of the given architecture
// and zeroed memory.
func New(arch cpu.Architecture) *Host {
	h := &Host{
		settings: newSettings(),
		console:  io.Discard,
	}

	// Create the emulated CPU and memory. The CPU stores through the bus so
	// that the simulator devices see them; everything else uses memory
	// directly.
	h.mem = cpu.NewFlatMemory()
	h.bus = &bus{FlatMemory: h.mem, host: h}
	h.cpu = cpu.NewCPU(arch, h.bus)

	// Create a CPU debugger and attach it to the CPU.
	h.debugger = cpu.NewDebugger(newDebugHandler(h))
	h.cpu.AttachDebugger(h.debugger)

	return h
}

// Close releases resources held by the host.
func (h *Host) Close() {
	if h.lua != nil {
		h.lua.Close()
		h.lua = nil
	}
}

// CPU returns the emulated CPU.
func (h *Host) CPU() *cpu.CPU {
	return h.cpu
}

// Memory returns the emulated memory. Accesses through it bypass the
// simulator devices and the debugger.
func (h *Host) Memory() cpu.Memory {
	return h.mem
}

// Image returns the most recently loaded image, or nil.
func (h *Host) Image() *loader.Image {
	return h.image
}

// SetConsole sets the writer that receives characters printed by the
// program.
func (h *Host) SetConsole(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	h.console = w
}

// ZeroPageRegBase returns the zero page address of the first imaginary
// register.
func (h *Host) ZeroPageRegBase() uint16 {
	return uint16(h.settings.ZpRegBase)
}

// LogPackets returns true if protocol traffic should be logged.
func (h *Host) LogPackets() bool {
	return h.settings.LogPackets
}

// LoadImage replaces memory with the contents of the image and resets the
// CPU to the image's entry point. All breakpoints are removed.
func (h *Host) LoadImage(img *loader.Image) {
	h.image = img
	h.debugger.ClearBreakpoints()
	if addr, ok := img.Lookup("__rc0"); ok && addr < 0x100 {
		h.settings.ZpRegBase = byte(addr)
	}
	h.Reset()
	logger.Logf(logger.TagHost, "loaded image: %d bytes, entry $%04X", img.Size(), img.Entry)
}

// Reset clears memory, reloads the current image (if any), and resets the
// CPU registers and cycle counter. The program counter is set to the
// image's entry point, or to the reset vector when no image is loaded.
// Breakpoints are preserved.
func (h *Host) Reset() {
	h.mem.Clear()
	if h.image != nil {
		h.image.CopyTo(h.mem)
	}
	h.cpu.Reset()
	if h.image != nil {
		h.cpu.SetPC(h.image.Entry)
		h.cpu.LastPC = h.image.Entry
	}
	h.halted = false
	h.exitCode = 0
	h.interrupt.Store(false)
	h.settings.NextDisasmAddr = h.cpu.Reg.PC
}

// Break interrupts a running host. The host stops after completing the
// instruction in flight. Break may be called from any goroutine. If the
// host is not running, the next call to Run or RangeStep stops before
// executing any instruction.
func (h *Host) Break() {
	h.interrupt.Store(true)
}

// Halted returns true and the exit code if the program has halted.
func (h *Host) Halted() (bool, byte) {
	return h.halted, h.exitCode
}

// Step executes a single instruction and reports why execution stopped.
// A halted host does not execute anything and reports the halt again.
func (h *Host) Step() StopReason {
	if h.halted {
		return StopReason{Kind: StopHalted, ExitCode: h.exitCode}
	}

	h.hitBreakpoint, h.hitData = nil, nil

	pc := h.cpu.Reg.PC
	if h.cpu.Step() == cpu.Illegal {
		opcode := h.mem.LoadByte(pc)
		logger.Logf(logger.TagCPU, "illegal opcode $%02X at $%04X", opcode, pc)
		return StopReason{Kind: StopIllegal, Addr: pc, Opcode: opcode}
	}

	switch {
	case h.halted:
		logger.Logf(logger.TagHost, "program exited with code %d after %d cycles", h.exitCode, h.cpu.Cycles)
		return StopReason{Kind: StopHalted, ExitCode: h.exitCode}
	case h.hitData != nil:
		return StopReason{Kind: StopWatchpoint, Addr: h.hitData.Address, Access: h.hitData.Kind}
	case h.hitBreakpoint != nil:
		return StopReason{Kind: StopBreakpoint, Addr: h.hitBreakpoint.Address}
	default:
		return StopReason{Kind: StopStep}
	}
}

// Run executes instructions until a breakpoint or watchpoint is hit, an
// illegal opcode is fetched, the program halts, or Break is called.
func (h *Host) Run() StopReason {
	for {
		if h.interrupt.Swap(false) {
			return StopReason{Kind: StopInterrupted}
		}
		if r := h.Step(); r.Kind != StopStep {
			return r
		}
	}
}

// RangeStep executes instructions like Run, but also stops as soon as the
// program counter leaves the address range [start, end). The stop reason
// is StopStep in that case.
func (h *Host) RangeStep(start, end uint16) StopReason {
	for {
		if h.interrupt.Swap(false) {
			return StopReason{Kind: StopInterrupted}
		}
		r := h.Step()
		if r.Kind != StopStep {
			return r
		}
		if pc := h.cpu.Reg.PC; pc < start || pc >= end {
			return r
		}
	}
}

// AddBreakpoint adds an execution breakpoint. Adding an existing
// breakpoint has no effect.
func (h *Host) AddBreakpoint(addr uint16) {
	h.debugger.AddBreakpoint(addr)
}

// RemoveBreakpoint removes an execution breakpoint, if present.
func (h *Host) RemoveBreakpoint(addr uint16) {
	h.debugger.RemoveBreakpoint(addr)
}

// AddWatchpoint adds a data breakpoint of the given access kind. Adding an
// existing watchpoint has no effect.
func (h *Host) AddWatchpoint(addr uint16, kind cpu.AccessKind) {
	h.debugger.AddDataBreakpoint(addr, kind)
}

// RemoveWatchpoint removes a data breakpoint of the given access kind, if
// present.
func (h *Host) RemoveWatchpoint(addr uint16, kind cpu.AccessKind) {
	h.debugger.RemoveDataBreakpoint(addr, kind)
}

// ClearBreakpoints removes all breakpoints and watchpoints.
func (h *Host) ClearBreakpoints() {
	h.debugger.ClearBreakpoints()
}

// Breakpoints returns the execution breakpoints in address order.
func (h *Host) Breakpoints() []*cpu.Breakpoint {
	return h.debugger.GetBreakpoints()
}

// Watchpoints returns the data breakpoints in address order.
func (h *Host) Watchpoints() []*cpu.DataBreakpoint {
	return h.debugger.GetDataBreakpoints()
}
