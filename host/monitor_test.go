// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host_test

import (
	"strings"
	"testing"
	"time"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, h *host.Host, line string) string {
	t.Helper()
	var out strings.Builder
	require.NoError(t, h.RunCommand(line, &out))
	return out.String()
}

func TestCommandNotFound(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)

	var out strings.Builder
	err := h.RunCommand("frobnicate", &out)
	assert.ErrorIs(t, err, host.ErrCommandNotFound)
	assert.Contains(t, out.String(), "not found")

	assert.NoError(t, h.RunCommand("   ", &out))
}

func TestBreakpointCommands(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)

	out := run(t, h, "breakpoint add $0204")
	assert.Contains(t, out, "$0204")
	require.Len(t, h.Breakpoints(), 1)

	run(t, h, "bd $0204")
	assert.True(t, h.Breakpoints()[0].Disabled)
	assert.Contains(t, run(t, h, "bl"), "(disabled)")

	run(t, h, "be $0204")
	assert.False(t, h.Breakpoints()[0].Disabled)

	run(t, h, "br $0204")
	assert.Empty(t, h.Breakpoints())
}

func TestDataBreakpointCommands(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)

	run(t, h, "databreakpoint add $00 read")
	run(t, h, "dba $00 $05")
	wps := h.Watchpoints()
	require.Len(t, wps, 2)
	assert.Equal(t, cpu.Write, wps[0].Kind)
	assert.True(t, wps[0].Conditional)
	assert.Equal(t, byte(5), wps[0].Value)
	assert.Equal(t, cpu.Read, wps[1].Kind)

	out := run(t, h, "dbl")
	assert.Contains(t, out, "on value $05")

	r := h.Run()
	assert.Equal(t, host.StopWatchpoint, r.Kind)
	assert.Equal(t, cpu.Write, r.Access)

	run(t, h, "dbr $00 read")
	run(t, h, "dbr $00")
	assert.Empty(t, h.Watchpoints())
}

func TestMemoryCommands(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)

	out := run(t, h, "memory set $1000 $41 $42 $43")
	assert.Contains(t, out, "1000- 41 42 43")
	assert.Contains(t, out, "ABC")

	run(t, h, "mc $2000 $1000 $1002")
	assert.Equal(t, byte(0x43), h.Memory().LoadByte(0x2002))

	out = run(t, h, "m $0200 16")
	assert.Contains(t, out, "0200- A9 05 85 00 00")
	assert.Contains(t, out, "0208-")
}

func TestRegisterCommands(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)

	out := run(t, h, "register")
	assert.Contains(t, out, "PC=$0200")

	run(t, h, "r a 10")
	assert.Equal(t, byte(10), h.CPU().Reg.A)

	run(t, h, "set hexmode on")
	run(t, h, "r x 10")
	assert.Equal(t, byte(0x10), h.CPU().Reg.X)

	run(t, h, "r c 1")
	assert.True(t, h.CPU().Reg.Carry)

	assert.Contains(t, run(t, h, "r q 1"), "unknown register")
}

func TestDisassembleCommand(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)

	out := run(t, h, "disassemble $0200 3")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "LDA #$05")
	assert.Contains(t, lines[1], "STA $00")
	assert.Contains(t, lines[2], "BRK")

	// Disassembly continues where it left off.
	out = run(t, h, "d . 1")
	assert.Contains(t, out, "0200-")
}

func TestSetCommand(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)

	out := run(t, h, "set")
	assert.Contains(t, out, "ExitAddr")

	run(t, h, "set exitaddr $fff0")
	h.Memory().StoreBytes(origin, []byte{
		0xa9, 0x03, // LDA #$03
		0x8d, 0xf0, 0xff, // STA $FFF0
	})
	r := h.Run()
	assert.Equal(t, host.StopHalted, r.Kind)
	assert.Equal(t, byte(3), r.ExitCode)

	assert.Contains(t, run(t, h, "set zpregbase $1000"), "out of range")
	assert.Contains(t, run(t, h, "set logpackets maybe"), "invalid bool")
}

func TestLuaCommand(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)

	out := run(t, h, "lua poke(0x10, 42) print(peek(0x10))")
	assert.Equal(t, "42\n", out)

	out = run(t, h, "lua print(step(2), reg('a'), reg('pc'))")
	assert.Equal(t, "step\t5\t516\n", out)

	run(t, h, "lua setreg('y', 7)")
	assert.Equal(t, byte(7), h.CPU().Reg.Y)

	out = run(t, h, "lua reg('bogus')")
	assert.Contains(t, out, "ERROR")
}

func TestLuaStepInterrupt(t *testing.T) {
	// JMP $0200
	h := loadHost(t, cpu.NMOS, 0x4c, 0x00, 0x02)

	timer := time.AfterFunc(20*time.Millisecond, h.Break)
	defer timer.Stop()

	start := time.Now()
	out := run(t, h, "lua print(step(10000000000))")
	assert.Equal(t, "interrupted\n", out)
	assert.Less(t, time.Since(start), 2*time.Second)

	// The break was consumed, so the program runs again.
	out = run(t, h, "lua print(step(3))")
	assert.Equal(t, "step\n", out)
	assert.Equal(t, uint16(0x0200), h.CPU().Reg.PC)
}

func TestHelpCommand(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)

	out := run(t, h, "help")
	assert.Contains(t, out, "breakpoint")
	assert.Contains(t, out, "disassemble")

	out = run(t, h, "help memory dump")
	assert.Contains(t, out, "Syntax: memory dump")

	out = run(t, h, "help memory")
	assert.Contains(t, out, "Memory commands")
	assert.Contains(t, out, "copy")
}
