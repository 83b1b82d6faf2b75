// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// Registers contains the state of all 6502 registers. The status flags are
// held individually; the packed status byte exists only when it is pushed
// or read through SavePS.
type Registers struct {
	A                byte   // accumulator
	X                byte   // X indexing register
	Y                byte   // Y indexing register
	SP               byte   // stack pointer ($100 + SP = stack memory location)
	PC               uint16 // program counter
	Carry            bool   // PS: Carry bit
	Zero             bool   // PS: Zero bit
	InterruptDisable bool   // PS: Interrupt disable bit
	Decimal          bool   // PS: Decimal bit
	Overflow         bool   // PS: Overflow bit
	Sign             bool   // PS: Sign bit
}

// Bits assigned to the processor status byte
const (
	CarryBit            = 1 << 0
	ZeroBit             = 1 << 1
	InterruptDisableBit = 1 << 2
	DecimalBit          = 1 << 3
	BreakBit            = 1 << 4
	ReservedBit         = 1 << 5
	OverflowBit         = 1 << 6
	SignBit             = 1 << 7
)

// SavePS saves the CPU processor status into a byte value. The break bit
// is set if requested.
func (r *Registers) SavePS(brk bool) byte {
	var ps byte = ReservedBit // always saved as on
	if r.Carry {
		ps |= CarryBit
	}
	if r.Zero {
		ps |= ZeroBit
	}
	if r.InterruptDisable {
		ps |= InterruptDisableBit
	}
	if r.Decimal {
		ps |= DecimalBit
	}
	if brk {
		ps |= BreakBit
	}
	if r.Overflow {
		ps |= OverflowBit
	}
	if r.Sign {
		ps |= SignBit
	}
	return ps
}

// RestorePS restores the CPU processor status from a byte. The break and
// reserved bits have no backing flag and are discarded.
func (r *Registers) RestorePS(ps byte) {
	r.Carry = ((ps & CarryBit) != 0)
	r.Zero = ((ps & ZeroBit) != 0)
	r.InterruptDisable = ((ps & InterruptDisableBit) != 0)
	r.Decimal = ((ps & DecimalBit) != 0)
	r.Overflow = ((ps & OverflowBit) != 0)
	r.Sign = ((ps & SignBit) != 0)
}

// Flag returns the state of the status flag selected by 'bit', which must
// be one of the status bit constants. The break and reserved bits always
// read as clear.
func (r *Registers) Flag(bit byte) bool {
	switch bit {
	case CarryBit:
		return r.Carry
	case ZeroBit:
		return r.Zero
	case InterruptDisableBit:
		return r.InterruptDisable
	case DecimalBit:
		return r.Decimal
	case OverflowBit:
		return r.Overflow
	case SignBit:
		return r.Sign
	default:
		return false
	}
}

// SetFlag updates the status flag selected by 'bit'. Writes to the break
// and reserved bits are ignored.
func (r *Registers) SetFlag(bit byte, v bool) {
	switch bit {
	case CarryBit:
		r.Carry = v
	case ZeroBit:
		r.Zero = v
	case InterruptDisableBit:
		r.InterruptDisable = v
	case DecimalBit:
		r.Decimal = v
	case OverflowBit:
		r.Overflow = v
	case SignBit:
		r.Sign = v
	}
}

// FlagNames maps the names accepted for each status flag to its bit.
var FlagNames = map[string]byte{
	"c": CarryBit, "carry": CarryBit,
	"z": ZeroBit, "zero": ZeroBit,
	"i": InterruptDisableBit, "interruptdisable": InterruptDisableBit,
	"d": DecimalBit, "decimal": DecimalBit,
	"v": OverflowBit, "overflow": OverflowBit,
	"n": SignBit, "sign": SignBit, "negative": SignBit,
}

// StackAddr returns the memory address the stack pointer refers to.
func (r *Registers) StackAddr() uint16 {
	return stackAddress(r.SP)
}

func boolToUint32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

func boolToByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// Init puts the registers in their power-on state: A, X and Y clear, the
// stack pointer at the top of page 1 and every status flag clear.
func (r *Registers) Init() {
	r.A = 0
	r.X = 0
	r.Y = 0
	r.SP = 0xff
	r.PC = 0
	r.RestorePS(0)
}
