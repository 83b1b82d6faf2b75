// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import "github.com/beevik/gdb6502/cpu"

// The debugHandler receives notifications from the cpu debugger while an
// instruction executes. It records the first breakpoint and watchpoint hit
// so the host can turn them into a stop reason once the instruction
// completes.
type debugHandler struct {
	host *Host
}

func newDebugHandler(h *Host) *debugHandler {
	return &debugHandler{host: h}
}

func (d *debugHandler) OnBreakpoint(c *cpu.CPU, b *cpu.Breakpoint) {
	d.host.hitBreakpoint = b
}

func (d *debugHandler) OnDataBreakpoint(c *cpu.CPU, b *cpu.DataBreakpoint) {
	if d.host.hitData == nil {
		d.host.hitData = b
	}
}

// The bus is the memory seen by the CPU. Stores to the exit and putchar
// addresses are consumed by the simulator devices and never reach memory.
type bus struct {
	*cpu.FlatMemory
	host *Host
}

func (b *bus) StoreByte(addr uint16, v byte) {
	h := b.host
	switch addr {
	case h.settings.ExitAddr:
		h.halted = true
		h.exitCode = v
	case h.settings.PutcharAddr:
		h.console.Write([]byte{v & 0x7f})
	default:
		b.FlatMemory.StoreByte(addr, v)
	}
}
