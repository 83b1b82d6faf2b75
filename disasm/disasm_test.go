package disasm_test

import (
	"testing"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/disasm"
)

func TestDisassemble(t *testing.T) {
	tests := []struct {
		code []byte
		line string
		len  uint16
	}{
		{[]byte{0xa9, 0x12}, "LDA #$12", 2},
		{[]byte{0x4c, 0x34, 0x12}, "JMP $1234", 3},
		{[]byte{0xd0, 0xfe}, "BNE $1000", 2},
		{[]byte{0xb1, 0x10}, "LDA ($10),Y", 2},
		{[]byte{0xbd, 0x00, 0x20}, "LDA $2000,X", 3},
		{[]byte{0xea}, "NOP", 1},
		{[]byte{0xff}, ".BYTE $FF", 1},
	}

	set := cpu.GetInstructionSet(cpu.NMOS)
	for _, test := range tests {
		mem := cpu.NewFlatMemory()
		mem.StoreBytes(0x1000, test.code)
		line, next := disasm.Disassemble(mem, 0x1000, set)
		if line != test.line {
			t.Errorf("Disassembly incorrect. exp: %q, got: %q", test.line, line)
		}
		if next != 0x1000+test.len {
			t.Errorf("Next address incorrect for %q. exp: $%04X, got: $%04X", test.line, 0x1000+test.len, next)
		}
	}
}

func TestLine(t *testing.T) {
	mem := cpu.NewFlatMemory()
	mem.StoreBytes(0x0600, []byte{0xa9, 0x12, 0x8d, 0xf9, 0xff})

	set := cpu.GetInstructionSet(cpu.NMOS)
	line, next := disasm.Line(mem, 0x0600, set)
	if exp := "0600- A9 12      LDA #$12"; line != exp {
		t.Errorf("Line incorrect. exp: %q, got: %q", exp, line)
	}

	line, _ = disasm.Line(mem, next, set)
	if exp := "0602- 8D F9 FF   STA $FFF9"; line != exp {
		t.Errorf("Line incorrect. exp: %q, got: %q", exp, line)
	}
}
