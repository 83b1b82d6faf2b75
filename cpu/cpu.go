// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu implements a 6502 CPU instruction
// set and emulator.
package cpu

// Architecture selects the CPU chip: 6502 or 65c02
type Architecture byte

const (
	// NMOS 6502 CPU
	NMOS Architecture = iota

	// CMOS 65c02 CPU
	CMOS
)

func (a Architecture) String() string {
	switch a {
	case NMOS:
		return "6502"
	case CMOS:
		return "65c02"
	default:
		return "unknown"
	}
}

// Outcome describes the effect of a single call to Step.
type Outcome byte

const (
	// Normal means the instruction executed and the program counter
	// advanced past it.
	Normal Outcome = iota

	// Jumped means the instruction executed and loaded the program
	// counter itself (jump, taken branch, call, return, BRK).
	Jumped

	// Illegal means the opcode at the program counter has no defined
	// decoding. Nothing was executed and the CPU state is unchanged.
	Illegal
)

// CPU represents a single 6502 CPU. It contains a pointer to the
// memory associated with the CPU.
type CPU struct {
	Arch        Architecture    // CPU architecture
	Reg         Registers       // CPU registers
	Mem         Memory          // assigned memory
	Cycles      uint64          // total executed CPU cycles
	LastPC      uint16          // address of the most recently executed instruction
	InstSet     *InstructionSet // Instruction set used by the CPU
	pageCrossed bool
	deltaCycles int8
	debugger    *Debugger
	loadByte    func(cpu *CPU, addr uint16) byte
	storeByte   func(cpu *CPU, addr uint16, v byte)
}

// Interrupt vectors
const (
	vectorReset = 0xfffc
	vectorBRK   = 0xfffe
)

// NewCPU creates an emulated 6502 CPU bound to the specified memory.
func NewCPU(arch Architecture, m Memory) *CPU {
	cpu := &CPU{
		Arch:      arch,
		Mem:       m,
		InstSet:   GetInstructionSet(arch),
		loadByte:  (*CPU).loadByteNormal,
		storeByte: (*CPU).storeByteNormal,
	}

	cpu.Reg.Init()
	return cpu
}

// SetPC updates the CPU program counter to 'addr'.
func (cpu *CPU) SetPC(addr uint16) {
	cpu.Reg.PC = addr
}

// Reset reinitializes the registers and cycle counter and loads the
// program counter from the reset vector.
func (cpu *CPU) Reset() {
	cpu.Reg.Init()
	cpu.Cycles = 0
	cpu.Reg.PC = cpu.Mem.LoadAddress(vectorReset)
	cpu.LastPC = cpu.Reg.PC
}

// GetInstruction returns the instruction opcode at the requested address.
func (cpu *CPU) GetInstruction(addr uint16) *Instruction {
	opcode := cpu.Mem.LoadByte(addr)
	return cpu.InstSet.Lookup(opcode)
}

// NextAddr returns the address of the next instruction following the
// instruction at addr.
func (cpu *CPU) NextAddr(addr uint16) uint16 {
	opcode := cpu.Mem.LoadByte(addr)
	inst := cpu.InstSet.Lookup(opcode)
	return addr + uint16(inst.Length)
}

// Step the cpu by one instruction.
func (cpu *CPU) Step() Outcome {
	// Grab the next opcode at the current PC
	opcode := cpu.Mem.LoadByte(cpu.Reg.PC)

	// Look up the instruction data for the opcode. Undefined opcodes
	// leave the CPU parked on the offending address.
	inst := cpu.InstSet.Lookup(opcode)
	if inst.fn == nil {
		return Illegal
	}

	// Fetch the operand (if any) and advance the PC. Operand bytes are
	// fetched linearly; the page-wrap quirk applies only to indirection.
	var operand uint16
	switch inst.Length {
	case 2:
		operand = uint16(cpu.Mem.LoadByte(cpu.Reg.PC + 1))
	case 3:
		operand = uint16(cpu.Mem.LoadByte(cpu.Reg.PC+1)) |
			uint16(cpu.Mem.LoadByte(cpu.Reg.PC+2))<<8
	}
	cpu.LastPC = cpu.Reg.PC
	next := cpu.Reg.PC + uint16(inst.Length)
	cpu.Reg.PC = next

	// Execute the instruction
	cpu.pageCrossed = false
	cpu.deltaCycles = 0
	inst.fn(cpu, inst, operand)

	// Update the CPU cycle counter, with special-case logic
	// to handle a page boundary crossing
	cpu.Cycles += uint64(int8(inst.Cycles) + cpu.deltaCycles)
	if cpu.pageCrossed {
		cpu.Cycles += uint64(inst.BPCycles)
	}

	// Update the debugger so it can handle breakpoints.
	if cpu.debugger != nil {
		cpu.debugger.onUpdatePC(cpu, cpu.Reg.PC)
	}

	if cpu.Reg.PC != next {
		return Jumped
	}
	return Normal
}

// AttachDebugger attaches a debugger to the CPU. The debugger receives
// notifications whenever the CPU executes an instruction or accesses data
// memory.
func (cpu *CPU) AttachDebugger(debugger *Debugger) {
	cpu.debugger = debugger
	cpu.loadByte = (*CPU).loadByteDebugger
	cpu.storeByte = (*CPU).storeByteDebugger
}

// DetachDebugger detaches the currently debugger from the CPU.
func (cpu *CPU) DetachDebugger() {
	cpu.debugger = nil
	cpu.loadByte = (*CPU).loadByteNormal
	cpu.storeByte = (*CPU).storeByteNormal
}

// Resolve the effective address of a memory operand. Indexed modes record
// whether the index crossed a page boundary.
func (cpu *CPU) effectiveAddr(mode Mode, operand uint16) uint16 {
	var addr uint16
	switch mode {
	case ZPG, ABS:
		addr = operand
	case ZPX:
		addr = offsetZeroPage(operand, cpu.Reg.X)
	case ZPY:
		addr = offsetZeroPage(operand, cpu.Reg.Y)
	case ABX:
		addr, cpu.pageCrossed = offsetAddress(operand, cpu.Reg.X)
	case ABY:
		addr, cpu.pageCrossed = offsetAddress(operand, cpu.Reg.Y)
	case IND:
		// Data instructions only use IND as the 65c02 (zp) mode.
		addr = cpu.loadPointer(operand)
	case IDX:
		addr = cpu.loadPointer(offsetZeroPage(operand, cpu.Reg.X))
	case IDY:
		addr, cpu.pageCrossed = offsetAddress(cpu.loadPointer(operand), cpu.Reg.Y)
	default:
		panic("Invalid addressing mode")
	}
	return addr
}

// Load a byte value from using the requested addressing mode
// and the operand to determine where to load it from.
func (cpu *CPU) load(mode Mode, operand uint16) byte {
	switch mode {
	case IMM:
		return byte(operand)
	case ACC:
		return cpu.Reg.A
	default:
		return cpu.loadByte(cpu, cpu.effectiveAddr(mode, operand))
	}
}

// Store a byte value using the specified addressing mode and the
// instruction operand to determine where to store it.
func (cpu *CPU) store(mode Mode, operand uint16, v byte) {
	if mode == ACC {
		cpu.Reg.A = v
		return
	}
	cpu.storeByte(cpu, cpu.effectiveAddr(mode, operand), v)
}

// Read, transform and write back a byte for read-modify-write
// instructions. The effective address is resolved only once.
func (cpu *CPU) modify(mode Mode, operand uint16, fn func(v byte) byte) {
	if mode == ACC {
		cpu.Reg.A = fn(cpu.Reg.A)
		return
	}
	addr := cpu.effectiveAddr(mode, operand)
	cpu.storeByte(cpu, addr, fn(cpu.loadByte(cpu, addr)))
}

// Load a 16-bit jump target using the requested addressing mode.
func (cpu *CPU) loadTarget(mode Mode, operand uint16) uint16 {
	switch mode {
	case ABS:
		return operand
	case IND:
		return cpu.loadPointer(operand)
	case ABX:
		return cpu.loadPointer(operand + uint16(cpu.Reg.X))
	default:
		panic("Invalid addressing mode")
	}
}

// Load a little-endian pointer, reporting both bytes to the debugger.
func (cpu *CPU) loadPointer(addr uint16) uint16 {
	if cpu.debugger != nil {
		hi := addr + 1
		if (addr & 0xff) == 0xff {
			hi = addr - 0xff
		}
		cpu.debugger.onDataLoad(cpu, addr)
		cpu.debugger.onDataLoad(cpu, hi)
	}
	return cpu.Mem.LoadAddress(addr)
}

// Execute a relative branch when 'cond' holds. A taken branch costs one
// extra cycle, and one more if it lands on a different page.
func (cpu *CPU) branchIf(cond bool, operand uint16) {
	if !cond {
		return
	}
	oldPC := cpu.Reg.PC
	cpu.Reg.PC = uint16(int32(oldPC) + int32(int8(operand)))
	cpu.deltaCycles++
	if ((cpu.Reg.PC ^ oldPC) & 0xff00) != 0 {
		cpu.deltaCycles++
	}
}

func (cpu *CPU) loadByteNormal(addr uint16) byte {
	return cpu.Mem.LoadByte(addr)
}

func (cpu *CPU) loadByteDebugger(addr uint16) byte {
	cpu.debugger.onDataLoad(cpu, addr)
	return cpu.Mem.LoadByte(addr)
}

// Store the byte value 'v' add the address 'addr'.
func (cpu *CPU) storeByteNormal(addr uint16, v byte) {
	cpu.Mem.StoreByte(addr, v)
}

// Store the byte value 'v' add the address 'addr'.
func (cpu *CPU) storeByteDebugger(addr uint16, v byte) {
	cpu.debugger.onDataStore(cpu, addr, v)
	cpu.Mem.StoreByte(addr, v)
}

// Push a value 'v' onto the stack. The stack pointer wraps within page 1.
func (cpu *CPU) push(v byte) {
	cpu.storeByte(cpu, stackAddress(cpu.Reg.SP), v)
	cpu.Reg.SP--
}

// Push the address 'addr' onto the stack.
func (cpu *CPU) pushAddress(addr uint16) {
	cpu.push(byte(addr >> 8))
	cpu.push(byte(addr))
}

// Pop a value from the stack and return it.
func (cpu *CPU) pop() byte {
	cpu.Reg.SP++
	return cpu.loadByte(cpu, stackAddress(cpu.Reg.SP))
}

// Pop a 16-bit address off the stack.
func (cpu *CPU) popAddress() uint16 {
	lo := cpu.pop()
	hi := cpu.pop()
	return uint16(lo) | (uint16(hi) << 8)
}

// Update the Zero and Negative flags based on the value of 'v'.
func (cpu *CPU) updateNZ(v byte) {
	cpu.Reg.Zero = (v == 0)
	cpu.Reg.Sign = ((v & 0x80) != 0)
}

// Set the carry and NZ flags from a register comparison.
func (cpu *CPU) compare(reg, v byte) {
	cpu.Reg.Carry = (reg >= v)
	cpu.updateNZ(reg - v)
}

// Handle an interrupt by storing the program counter and status flags on
// the stack. Then switch the program counter to the requested address.
func (cpu *CPU) handleInterrupt(brk bool, addr uint16) {
	cpu.pushAddress(cpu.Reg.PC)
	cpu.push(cpu.Reg.SavePS(brk))

	cpu.Reg.InterruptDisable = true
	if cpu.Arch == CMOS {
		cpu.Reg.Decimal = false
	}

	cpu.Reg.PC = cpu.Mem.LoadAddress(addr)
}

// Add with carry (CMOS)
func (cpu *CPU) adcc(inst *Instruction, operand uint16) {
	acc := uint32(cpu.Reg.A)
	add := uint32(cpu.load(inst.Mode, operand))
	carry := boolToUint32(cpu.Reg.Carry)
	var v uint32

	cpu.Reg.Overflow = (((acc ^ add) & 0x80) == 0)

	switch cpu.Reg.Decimal {
	case true:
		cpu.deltaCycles++

		lo := (acc & 0x0f) + (add & 0x0f) + carry

		var carrylo uint32
		if lo >= 0x0a {
			carrylo = 0x10
			lo -= 0xa
		}

		hi := (acc & 0xf0) + (add & 0xf0) + carrylo

		if hi >= 0xa0 {
			cpu.Reg.Carry = true
			if hi >= 0x180 {
				cpu.Reg.Overflow = false
			}
			hi -= 0xa0
		} else {
			cpu.Reg.Carry = false
			if hi < 0x80 {
				cpu.Reg.Overflow = false
			}
		}

		v = hi | lo

	case false:
		v = acc + add + carry
		if v >= 0x100 {
			cpu.Reg.Carry = true
			if v >= 0x180 {
				cpu.Reg.Overflow = false
			}
		} else {
			cpu.Reg.Carry = false
			if v < 0x80 {
				cpu.Reg.Overflow = false
			}
		}
	}

	cpu.Reg.A = byte(v)
	cpu.updateNZ(cpu.Reg.A)
}

// Add with carry (NMOS)
func (cpu *CPU) adcn(inst *Instruction, operand uint16) {
	acc := uint32(cpu.Reg.A)
	add := uint32(cpu.load(inst.Mode, operand))
	carry := boolToUint32(cpu.Reg.Carry)
	var v uint32

	switch cpu.Reg.Decimal {
	case true:
		lo := (acc & 0x0f) + (add & 0x0f) + carry

		var carrylo uint32
		if lo >= 0x0a {
			carrylo = 0x10
			lo -= 0x0a
		}

		hi := (acc & 0xf0) + (add & 0xf0) + carrylo

		if hi >= 0xa0 {
			cpu.Reg.Carry = true
			hi -= 0xa0
		} else {
			cpu.Reg.Carry = false
		}

		v = hi | lo

		cpu.Reg.Overflow = ((acc^v)&0x80) != 0 && ((acc^add)&0x80) == 0

	case false:
		v = acc + add + carry
		cpu.Reg.Carry = (v >= 0x100)
		cpu.Reg.Overflow = (((acc & 0x80) == (add & 0x80)) && ((acc & 0x80) != (v & 0x80)))
	}

	cpu.Reg.A = byte(v)
	cpu.updateNZ(cpu.Reg.A)
}

// Boolean AND
func (cpu *CPU) and(inst *Instruction, operand uint16) {
	cpu.Reg.A &= cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.A)
}

// Arithmetic Shift Left
func (cpu *CPU) asl(inst *Instruction, operand uint16) {
	cpu.modify(inst.Mode, operand, func(v byte) byte {
		cpu.Reg.Carry = ((v & 0x80) == 0x80)
		v <<= 1
		cpu.updateNZ(v)
		return v
	})
	cpu.adjustShiftCycles(inst)
}

// 65c02 shifts and rotates in ABS,X mode take one cycle less when the
// index does not cross a page.
func (cpu *CPU) adjustShiftCycles(inst *Instruction) {
	if cpu.Arch == CMOS && inst.Mode == ABX && !cpu.pageCrossed {
		cpu.deltaCycles--
	}
}

// Branch if Carry Clear
func (cpu *CPU) bcc(inst *Instruction, operand uint16) {
	cpu.branchIf(!cpu.Reg.Carry, operand)
}

// Branch if Carry Set
func (cpu *CPU) bcs(inst *Instruction, operand uint16) {
	cpu.branchIf(cpu.Reg.Carry, operand)
}

// Branch if EQual (to zero)
func (cpu *CPU) beq(inst *Instruction, operand uint16) {
	cpu.branchIf(cpu.Reg.Zero, operand)
}

// Bit Test. The immediate form only affects the zero flag.
func (cpu *CPU) bit(inst *Instruction, operand uint16) {
	v := cpu.load(inst.Mode, operand)
	cpu.Reg.Zero = ((v & cpu.Reg.A) == 0)
	if inst.Mode != IMM {
		cpu.Reg.Sign = ((v & 0x80) != 0)
		cpu.Reg.Overflow = ((v & 0x40) != 0)
	}
}

// Branch if MInus (negative)
func (cpu *CPU) bmi(inst *Instruction, operand uint16) {
	cpu.branchIf(cpu.Reg.Sign, operand)
}

// Branch if Not Equal (not zero)
func (cpu *CPU) bne(inst *Instruction, operand uint16) {
	cpu.branchIf(!cpu.Reg.Zero, operand)
}

// Branch if PLus (positive)
func (cpu *CPU) bpl(inst *Instruction, operand uint16) {
	cpu.branchIf(!cpu.Reg.Sign, operand)
}

// Branch always (65c02 only)
func (cpu *CPU) bra(inst *Instruction, operand uint16) {
	cpu.branchIf(true, operand)
}

// Break
func (cpu *CPU) brk(inst *Instruction, operand uint16) {
	cpu.Reg.PC++
	cpu.handleInterrupt(true, vectorBRK)
}

// Branch if oVerflow Clear
func (cpu *CPU) bvc(inst *Instruction, operand uint16) {
	cpu.branchIf(!cpu.Reg.Overflow, operand)
}

// Branch if oVerflow Set
func (cpu *CPU) bvs(inst *Instruction, operand uint16) {
	cpu.branchIf(cpu.Reg.Overflow, operand)
}

// Clear Carry flag
func (cpu *CPU) clc(inst *Instruction, operand uint16) {
	cpu.Reg.Carry = false
}

// Clear Decimal flag
func (cpu *CPU) cld(inst *Instruction, operand uint16) {
	cpu.Reg.Decimal = false
}

// Clear InterruptDisable flag
func (cpu *CPU) cli(inst *Instruction, operand uint16) {
	cpu.Reg.InterruptDisable = false
}

// Clear oVerflow flag
func (cpu *CPU) clv(inst *Instruction, operand uint16) {
	cpu.Reg.Overflow = false
}

// Compare to accumulator
func (cpu *CPU) cmp(inst *Instruction, operand uint16) {
	cpu.compare(cpu.Reg.A, cpu.load(inst.Mode, operand))
}

// Compare to X register
func (cpu *CPU) cpx(inst *Instruction, operand uint16) {
	cpu.compare(cpu.Reg.X, cpu.load(inst.Mode, operand))
}

// Compare to Y register
func (cpu *CPU) cpy(inst *Instruction, operand uint16) {
	cpu.compare(cpu.Reg.Y, cpu.load(inst.Mode, operand))
}

// Decrement memory value
func (cpu *CPU) dec(inst *Instruction, operand uint16) {
	cpu.modify(inst.Mode, operand, func(v byte) byte {
		v--
		cpu.updateNZ(v)
		return v
	})
}

// Decrement X register
func (cpu *CPU) dex(inst *Instruction, operand uint16) {
	cpu.Reg.X--
	cpu.updateNZ(cpu.Reg.X)
}

// Decrement Y register
func (cpu *CPU) dey(inst *Instruction, operand uint16) {
	cpu.Reg.Y--
	cpu.updateNZ(cpu.Reg.Y)
}

// Boolean XOR
func (cpu *CPU) eor(inst *Instruction, operand uint16) {
	cpu.Reg.A ^= cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.A)
}

// Increment memory value
func (cpu *CPU) inc(inst *Instruction, operand uint16) {
	cpu.modify(inst.Mode, operand, func(v byte) byte {
		v++
		cpu.updateNZ(v)
		return v
	})
}

// Increment X register
func (cpu *CPU) inx(inst *Instruction, operand uint16) {
	cpu.Reg.X++
	cpu.updateNZ(cpu.Reg.X)
}

// Increment Y register
func (cpu *CPU) iny(inst *Instruction, operand uint16) {
	cpu.Reg.Y++
	cpu.updateNZ(cpu.Reg.Y)
}

// Jump to memory address (NMOS 6502)
func (cpu *CPU) jmpn(inst *Instruction, operand uint16) {
	cpu.Reg.PC = cpu.loadTarget(inst.Mode, operand)
}

// Jump to memory address (CMOS 65c02)
func (cpu *CPU) jmpc(inst *Instruction, operand uint16) {
	if inst.Mode == IND && (operand&0xff) == 0xff {
		// The NMOS page-wrap bug is fixed on the 65c02: JMP ($12FF) takes
		// its high byte from $1300, at the cost of one cycle.
		lo := cpu.loadByte(cpu, operand)
		hi := cpu.loadByte(cpu, operand+1)
		cpu.Reg.PC = uint16(lo) | uint16(hi)<<8
		cpu.deltaCycles++
		return
	}

	cpu.Reg.PC = cpu.loadTarget(inst.Mode, operand)
}

// Jump to subroutine
func (cpu *CPU) jsr(inst *Instruction, operand uint16) {
	cpu.pushAddress(cpu.Reg.PC - 1)
	cpu.Reg.PC = operand
}

// load Accumulator
func (cpu *CPU) lda(inst *Instruction, operand uint16) {
	cpu.Reg.A = cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.A)
}

// load the X register
func (cpu *CPU) ldx(inst *Instruction, operand uint16) {
	cpu.Reg.X = cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.X)
}

// load the Y register
func (cpu *CPU) ldy(inst *Instruction, operand uint16) {
	cpu.Reg.Y = cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.Y)
}

// Logical Shift Right
func (cpu *CPU) lsr(inst *Instruction, operand uint16) {
	cpu.modify(inst.Mode, operand, func(v byte) byte {
		cpu.Reg.Carry = ((v & 1) == 1)
		v >>= 1
		cpu.updateNZ(v)
		return v
	})
	cpu.adjustShiftCycles(inst)
}

// No-operation. Also used for the 65c02's reserved opcodes, which only
// consume their length and cycles.
func (cpu *CPU) nop(inst *Instruction, operand uint16) {
}

// Boolean OR
func (cpu *CPU) ora(inst *Instruction, operand uint16) {
	cpu.Reg.A |= cpu.load(inst.Mode, operand)
	cpu.updateNZ(cpu.Reg.A)
}

// Push Accumulator
func (cpu *CPU) pha(inst *Instruction, operand uint16) {
	cpu.push(cpu.Reg.A)
}

// Push Processor flags
func (cpu *CPU) php(inst *Instruction, operand uint16) {
	cpu.push(cpu.Reg.SavePS(true))
}

// Push X register (65c02 only)
func (cpu *CPU) phx(inst *Instruction, operand uint16) {
	cpu.push(cpu.Reg.X)
}

// Push Y register (65c02 only)
func (cpu *CPU) phy(inst *Instruction, operand uint16) {
	cpu.push(cpu.Reg.Y)
}

// Pull (pop) Accumulator
func (cpu *CPU) pla(inst *Instruction, operand uint16) {
	cpu.Reg.A = cpu.pop()
	cpu.updateNZ(cpu.Reg.A)
}

// Pull (pop) Processor flags
func (cpu *CPU) plp(inst *Instruction, operand uint16) {
	cpu.Reg.RestorePS(cpu.pop())
}

// Pull (pop) X register (65c02 only)
func (cpu *CPU) plx(inst *Instruction, operand uint16) {
	cpu.Reg.X = cpu.pop()
	cpu.updateNZ(cpu.Reg.X)
}

// Pull (pop) Y register (65c02 only)
func (cpu *CPU) ply(inst *Instruction, operand uint16) {
	cpu.Reg.Y = cpu.pop()
	cpu.updateNZ(cpu.Reg.Y)
}

// Rotate Left
func (cpu *CPU) rol(inst *Instruction, operand uint16) {
	cpu.modify(inst.Mode, operand, func(v byte) byte {
		r := (v << 1) | boolToByte(cpu.Reg.Carry)
		cpu.Reg.Carry = ((v & 0x80) != 0)
		cpu.updateNZ(r)
		return r
	})
	cpu.adjustShiftCycles(inst)
}

// Rotate Right
func (cpu *CPU) ror(inst *Instruction, operand uint16) {
	cpu.modify(inst.Mode, operand, func(v byte) byte {
		r := (v >> 1) | (boolToByte(cpu.Reg.Carry) << 7)
		cpu.Reg.Carry = ((v & 1) != 0)
		cpu.updateNZ(r)
		return r
	})
	cpu.adjustShiftCycles(inst)
}

// Return from Interrupt
func (cpu *CPU) rti(inst *Instruction, operand uint16) {
	cpu.Reg.RestorePS(cpu.pop())
	cpu.Reg.PC = cpu.popAddress()
}

// Return from Subroutine
func (cpu *CPU) rts(inst *Instruction, operand uint16) {
	cpu.Reg.PC = cpu.popAddress() + 1
}

// Subtract with Carry (CMOS)
func (cpu *CPU) sbcc(inst *Instruction, operand uint16) {
	acc := uint32(cpu.Reg.A)
	sub := uint32(cpu.load(inst.Mode, operand))
	carry := boolToUint32(cpu.Reg.Carry)
	cpu.Reg.Overflow = ((acc ^ sub) & 0x80) != 0
	var v uint32

	switch cpu.Reg.Decimal {
	case true:
		cpu.deltaCycles++

		lo := 0x0f + (acc & 0x0f) - (sub & 0x0f) + carry

		var carrylo uint32
		if lo < 0x10 {
			lo -= 0x06
			carrylo = 0
		} else {
			lo -= 0x10
			carrylo = 0x10
		}

		hi := 0xf0 + (acc & 0xf0) - (sub & 0xf0) + carrylo

		if hi < 0x100 {
			cpu.Reg.Carry = false
			if hi < 0x80 {
				cpu.Reg.Overflow = false
			}
			hi -= 0x60
		} else {
			cpu.Reg.Carry = true
			if hi >= 0x180 {
				cpu.Reg.Overflow = false
			}
			hi -= 0x100
		}

		v = hi | lo

	case false:
		v = 0xff + acc - sub + carry
		if v < 0x100 {
			cpu.Reg.Carry = false
			if v < 0x80 {
				cpu.Reg.Overflow = false
			}
		} else {
			cpu.Reg.Carry = true
			if v >= 0x180 {
				cpu.Reg.Overflow = false
			}
		}
	}

	cpu.Reg.A = byte(v)
	cpu.updateNZ(cpu.Reg.A)
}

// Subtract with Carry (NMOS)
func (cpu *CPU) sbcn(inst *Instruction, operand uint16) {
	acc := uint32(cpu.Reg.A)
	sub := uint32(cpu.load(inst.Mode, operand))
	carry := boolToUint32(cpu.Reg.Carry)
	var v uint32

	switch cpu.Reg.Decimal {
	case true:
		lo := 0x0f + (acc & 0x0f) - (sub & 0x0f) + carry

		var carrylo uint32
		if lo < 0x10 {
			lo -= 0x06
			carrylo = 0
		} else {
			lo -= 0x10
			carrylo = 0x10
		}

		hi := 0xf0 + (acc & 0xf0) - (sub & 0xf0) + carrylo

		if hi < 0x100 {
			cpu.Reg.Carry = false
			hi -= 0x60
		} else {
			cpu.Reg.Carry = true
			hi -= 0x100
		}

		v = hi | lo

		cpu.Reg.Overflow = ((acc^v)&0x80) != 0 && ((acc^sub)&0x80) != 0

	case false:
		v = 0xff + acc - sub + carry
		cpu.Reg.Carry = (v >= 0x100)
		cpu.Reg.Overflow = (((acc & 0x80) != (sub & 0x80)) && ((acc & 0x80) != (v & 0x80)))
	}

	cpu.Reg.A = byte(v)
	cpu.updateNZ(byte(v))
}

// Set Carry flag
func (cpu *CPU) sec(inst *Instruction, operand uint16) {
	cpu.Reg.Carry = true
}

// Set Decimal flag
func (cpu *CPU) sed(inst *Instruction, operand uint16) {
	cpu.Reg.Decimal = true
}

// Set InterruptDisable flag
func (cpu *CPU) sei(inst *Instruction, operand uint16) {
	cpu.Reg.InterruptDisable = true
}

// Store Accumulator
func (cpu *CPU) sta(inst *Instruction, operand uint16) {
	cpu.store(inst.Mode, operand, cpu.Reg.A)
}

// Store X register
func (cpu *CPU) stx(inst *Instruction, operand uint16) {
	cpu.store(inst.Mode, operand, cpu.Reg.X)
}

// Store Y register
func (cpu *CPU) sty(inst *Instruction, operand uint16) {
	cpu.store(inst.Mode, operand, cpu.Reg.Y)
}

// Store Zero (65c02 only)
func (cpu *CPU) stz(inst *Instruction, operand uint16) {
	cpu.store(inst.Mode, operand, 0)
}

// Transfer Accumulator to X register
func (cpu *CPU) tax(inst *Instruction, operand uint16) {
	cpu.Reg.X = cpu.Reg.A
	cpu.updateNZ(cpu.Reg.X)
}

// Transfer Accumulator to Y register
func (cpu *CPU) tay(inst *Instruction, operand uint16) {
	cpu.Reg.Y = cpu.Reg.A
	cpu.updateNZ(cpu.Reg.Y)
}

// Test and Reset Bits (65c02 only)
func (cpu *CPU) trb(inst *Instruction, operand uint16) {
	cpu.modify(inst.Mode, operand, func(v byte) byte {
		cpu.Reg.Zero = ((v & cpu.Reg.A) == 0)
		return v &^ cpu.Reg.A
	})
}

// Test and Set Bits (65c02 only)
func (cpu *CPU) tsb(inst *Instruction, operand uint16) {
	cpu.modify(inst.Mode, operand, func(v byte) byte {
		cpu.Reg.Zero = ((v & cpu.Reg.A) == 0)
		return v | cpu.Reg.A
	})
}

// Transfer stack pointer to X register
func (cpu *CPU) tsx(inst *Instruction, operand uint16) {
	cpu.Reg.X = cpu.Reg.SP
	cpu.updateNZ(cpu.Reg.X)
}

// Transfer X register to Accumulator
func (cpu *CPU) txa(inst *Instruction, operand uint16) {
	cpu.Reg.A = cpu.Reg.X
	cpu.updateNZ(cpu.Reg.A)
}

// Transfer X register to the stack pointer
func (cpu *CPU) txs(inst *Instruction, operand uint16) {
	cpu.Reg.SP = cpu.Reg.X
}

// Transfer Y register to the Accumulator
func (cpu *CPU) tya(inst *Instruction, operand uint16) {
	cpu.Reg.A = cpu.Reg.Y
	cpu.updateNZ(cpu.Reg.A)
}
