// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/host"
	"github.com/beevik/gdb6502/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = 0x0200

func loadHost(t *testing.T, arch cpu.Architecture, code ...byte) *host.Host {
	t.Helper()
	img, err := loader.ParseRaw(code, origin)
	require.NoError(t, err)

	h := host.New(arch)
	t.Cleanup(h.Close)
	h.LoadImage(img)
	return h
}

func TestHalt(t *testing.T) {
	h := loadHost(t, cpu.NMOS,
		0xa9, 0x07, // LDA #$07
		0x8d, 0xf8, 0xff, // STA $FFF8
		0xea, // NOP
	)

	r := h.Step()
	assert.Equal(t, host.StopStep, r.Kind)

	r = h.Step()
	assert.Equal(t, host.StopHalted, r.Kind)
	assert.Equal(t, byte(7), r.ExitCode)
	assert.Equal(t, uint64(6), h.CPU().Cycles)
	assert.Equal(t, byte(0), h.Memory().LoadByte(0xfff8))

	// A halted host stays halted.
	pc := h.CPU().Reg.PC
	r = h.Run()
	assert.Equal(t, host.StopHalted, r.Kind)
	assert.Equal(t, pc, h.CPU().Reg.PC)

	halted, code := h.Halted()
	assert.True(t, halted)
	assert.Equal(t, byte(7), code)
}

func TestPutchar(t *testing.T) {
	h := loadHost(t, cpu.NMOS,
		0xa9, 0xc8, // LDA #$C8
		0x8d, 0xf9, 0xff, // STA $FFF9
		0xa9, 0x69, // LDA #$69
		0x8d, 0xf9, 0xff, // STA $FFF9
		0xa9, 0x00, // LDA #$00
		0x8d, 0xf8, 0xff, // STA $FFF8
	)

	var console bytes.Buffer
	h.SetConsole(&console)

	r := h.Run()
	assert.Equal(t, host.StopHalted, r.Kind)
	assert.Equal(t, byte(0), r.ExitCode)
	assert.Equal(t, "Hi", console.String())
	assert.Equal(t, byte(0), h.Memory().LoadByte(0xfff9))
}

var storeProgram = []byte{
	0xa9, 0x05, // LDA #$05
	0x85, 0x00, // STA $00
	0x00, // BRK
}

func TestBreakpoint(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)
	h.AddBreakpoint(0x0204)
	h.AddBreakpoint(0x0204)
	assert.Len(t, h.Breakpoints(), 1)

	r := h.Run()
	assert.Equal(t, host.StopBreakpoint, r.Kind)
	assert.Equal(t, uint16(0x0204), r.Addr)
	assert.Equal(t, uint16(0x0204), h.CPU().Reg.PC)
	assert.Equal(t, uint64(5), h.CPU().Cycles)

	h.RemoveBreakpoint(0x0204)
	assert.Empty(t, h.Breakpoints())
}

func TestWatchpoint(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)
	h.AddWatchpoint(0x0000, cpu.Write)

	r := h.Run()
	assert.Equal(t, host.StopWatchpoint, r.Kind)
	assert.Equal(t, uint16(0x0000), r.Addr)
	assert.Equal(t, cpu.Write, r.Access)
	assert.Equal(t, uint16(0x0204), h.CPU().Reg.PC)
	assert.Equal(t, byte(5), h.Memory().LoadByte(0x0000))

	h.RemoveWatchpoint(0x0000, cpu.Write)
	assert.Empty(t, h.Watchpoints())
}

func TestReadWatchpoint(t *testing.T) {
	h := loadHost(t, cpu.NMOS,
		0xa5, 0x10, // LDA $10
		0x85, 0x10, // STA $10
	)
	h.AddWatchpoint(0x0010, cpu.Read)
	h.AddWatchpoint(0x0010, cpu.Access)

	r := h.Step()
	assert.Equal(t, host.StopWatchpoint, r.Kind)
	assert.Equal(t, cpu.Read, r.Access)

	r = h.Step()
	assert.Equal(t, host.StopWatchpoint, r.Kind)
	assert.Equal(t, cpu.Access, r.Access)
}

func TestIllegalOpcode(t *testing.T) {
	h := loadHost(t, cpu.NMOS, 0xff)

	r := h.Run()
	assert.Equal(t, host.StopIllegal, r.Kind)
	assert.Equal(t, uint16(origin), r.Addr)
	assert.Equal(t, byte(0xff), r.Opcode)
	assert.Equal(t, uint16(origin), h.CPU().Reg.PC)
	assert.Equal(t, uint64(0), h.CPU().Cycles)
}

func TestInterrupt(t *testing.T) {
	h := loadHost(t, cpu.NMOS,
		0x4c, 0x00, 0x02, // JMP $0200
	)

	// A pending break stops Run before any instruction executes.
	h.Break()
	r := h.Run()
	assert.Equal(t, host.StopInterrupted, r.Kind)
	assert.Equal(t, uint64(0), h.CPU().Cycles)

	timer := time.AfterFunc(10*time.Millisecond, h.Break)
	defer timer.Stop()

	r = h.Run()
	assert.Equal(t, host.StopInterrupted, r.Kind)
	assert.Equal(t, uint16(origin), h.CPU().Reg.PC)
	assert.NotZero(t, h.CPU().Cycles)
}

func TestRangeStep(t *testing.T) {
	h := loadHost(t, cpu.NMOS,
		0xa9, 0x01, // LDA #$01
		0xa9, 0x02, // LDA #$02
		0xa9, 0x03, // LDA #$03
	)

	r := h.RangeStep(origin, origin+4)
	assert.Equal(t, host.StopStep, r.Kind)
	assert.Equal(t, uint16(origin+4), h.CPU().Reg.PC)
	assert.Equal(t, byte(2), h.CPU().Reg.A)
	assert.Equal(t, uint64(4), h.CPU().Cycles)
}

func TestReset(t *testing.T) {
	h := loadHost(t, cpu.NMOS, storeProgram...)
	h.AddBreakpoint(0x0202)

	h.Run()
	h.Memory().StoreByte(origin, 0xea)
	h.Reset()

	assert.Equal(t, uint16(origin), h.CPU().Reg.PC)
	assert.Equal(t, uint64(0), h.CPU().Cycles)
	assert.Equal(t, byte(0xa9), h.Memory().LoadByte(origin))
	assert.Len(t, h.Breakpoints(), 1)
}

func TestLoadImage(t *testing.T) {
	h := host.New(cpu.CMOS)
	defer h.Close()
	h.AddBreakpoint(0x1234)
	h.AddWatchpoint(0x0010, cpu.Read)

	img := &loader.Image{
		Entry: 0x0400,
		Segments: []loader.Segment{
			{Name: ".text", Addr: 0x0400, Data: []byte{0xea, 0xea}},
		},
		Symbols: map[string]uint16{"__rc0": 0x0002, "main": 0x0400},
	}
	h.LoadImage(img)

	assert.Empty(t, h.Breakpoints())
	assert.Empty(t, h.Watchpoints())
	assert.Equal(t, uint16(0x0400), h.CPU().Reg.PC)
	assert.Equal(t, uint16(0x0002), h.ZeroPageRegBase())
	assert.Equal(t, byte(0xea), h.Memory().LoadByte(0x0401))
}
