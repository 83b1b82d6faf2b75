// Copyright 2014 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements a 6502 instruction set
// disassembler.
package disasm

import (
	"fmt"
	"strings"

	"github.com/beevik/gdb6502/cpu"
)

// Disassembler formatting for addressing modes
var modeFormat = []string{
	"#$%s",    // IMM
	"%s",      // IMP
	"$%s",     // REL
	"$%s",     // ZPG
	"$%s,X",   // ZPX
	"$%s,Y",   // ZPY
	"$%s",     // ABS
	"$%s,X",   // ABX
	"$%s,Y",   // ABY
	"($%s)",   // IND
	"($%s,X)", // IDX
	"($%s),Y", // IDY
	"%s",      // ACC
}

var hex = "0123456789ABCDEF"

// Return a hexadecimal string representation of the little-endian byte
// slice, most significant byte first.
func hexString(b []byte) string {
	hexlen := len(b) * 2
	hexbuf := make([]byte, hexlen)
	j := hexlen - 1
	for _, n := range b {
		hexbuf[j] = hex[n&0xf]
		hexbuf[j-1] = hex[n>>4]
		j -= 2
	}
	return string(hexbuf)
}

// Disassemble the machine code in memory 'm' at address 'addr' using the
// instruction set 'set'. Return a 'line' string representing the
// disassembled instruction and a 'next' address that starts the following
// line of machine code. Undefined opcodes disassemble as a single byte.
func Disassemble(m cpu.Memory, addr uint16, set *cpu.InstructionSet) (line string, next uint16) {
	opcode := m.LoadByte(addr)
	inst := set.Lookup(opcode)
	if !inst.Defined() {
		return fmt.Sprintf(".BYTE $%02X", opcode), addr + 1
	}

	operand := make([]byte, inst.Length-1)
	m.LoadBytes(addr+1, operand)
	next = addr + uint16(inst.Length)

	switch {
	case inst.Mode == cpu.REL:
		// Convert relative offset to absolute address.
		target := next + uint16(int8(operand[0]))
		operand = []byte{byte(target), byte(target >> 8)}
	case len(operand) == 0:
		return inst.Name, next
	}

	format := "%s " + modeFormat[inst.Mode]
	line = fmt.Sprintf(format, inst.Name, hexString(operand))
	return line, next
}

// Line disassembles the instruction at 'addr' into a listing line holding
// the address, the raw instruction bytes and the instruction text.
func Line(m cpu.Memory, addr uint16, set *cpu.InstructionSet) (line string, next uint16) {
	text, next := Disassemble(m, addr, set)

	raw := make([]byte, next-addr)
	m.LoadBytes(addr, raw)

	var b strings.Builder
	fmt.Fprintf(&b, "%04X-", addr)
	for _, v := range raw {
		fmt.Fprintf(&b, " %02X", v)
	}
	for i := len(raw); i < 3; i++ {
		b.WriteString("   ")
	}
	b.WriteString("   ")
	b.WriteString(text)
	return b.String(), next
}
