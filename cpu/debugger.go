// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "sort"

// The Debugger tracks execution breakpoints and data breakpoints
// (watchpoints) and notifies a handler when the CPU reaches one.
type Debugger struct {
	breakpointHandler BreakpointHandler
	breakpoints       map[uint16]*Breakpoint
	dataBreakpoints   map[dataKey]*DataBreakpoint
}

// The BreakpointHandler interface should be implemented by any object that
// wishes to receive debugger breakpoint notifications.
//
// OnBreakpoint is called after an instruction completes and the new
// program counter matches an enabled breakpoint. OnDataBreakpoint is called
// while an instruction executes, once for each data access that matches an
// enabled data breakpoint; the access itself still completes.
type BreakpointHandler interface {
	OnBreakpoint(cpu *CPU, b *Breakpoint)
	OnDataBreakpoint(cpu *CPU, b *DataBreakpoint)
}

// AccessKind selects the data accesses a data breakpoint responds to.
type AccessKind byte

const (
	// Write data breakpoints trigger on stores.
	Write AccessKind = 1 << iota

	// Read data breakpoints trigger on loads.
	Read

	// Access data breakpoints trigger on loads and stores.
	Access = Read | Write
)

func (k AccessKind) String() string {
	switch k {
	case Write:
		return "write"
	case Read:
		return "read"
	case Access:
		return "access"
	default:
		return "unknown"
	}
}

// A Breakpoint represents an address that will cause the debugger to stop
// code execution when the program counter reaches it.
type Breakpoint struct {
	Address  uint16 // address of execution breakpoint
	Disabled bool   // this breakpoint is currently disabled
}

// A DataBreakpoint represents an address that will cause the debugger to
// stop executing code when the address is accessed as data.
type DataBreakpoint struct {
	Address     uint16     // breakpoint triggered by accesses to this address
	Kind        AccessKind // which accesses trigger the breakpoint
	Disabled    bool       // this breakpoint is currently disabled
	Conditional bool       // only stores of Value trigger the breakpoint
	Value       byte       // the value that must be stored if the breakpoint is conditional
}

type dataKey struct {
	addr uint16
	kind AccessKind
}

// NewDebugger creates a new CPU debugger.
func NewDebugger(breakpointHandler BreakpointHandler) *Debugger {
	return &Debugger{
		breakpointHandler: breakpointHandler,
		breakpoints:       make(map[uint16]*Breakpoint),
		dataBreakpoints:   make(map[dataKey]*DataBreakpoint),
	}
}

// GetBreakpoint looks up a breakpoint by address and returns it if found.
// Otherwise it returns nil.
func (d *Debugger) GetBreakpoint(addr uint16) *Breakpoint {
	return d.breakpoints[addr]
}

// GetBreakpoints returns all breakpoints currently set in the debugger,
// ordered by address.
func (d *Debugger) GetBreakpoints() []*Breakpoint {
	breakpoints := make([]*Breakpoint, 0, len(d.breakpoints))
	for _, b := range d.breakpoints {
		breakpoints = append(breakpoints, b)
	}
	sort.Slice(breakpoints, func(i, j int) bool {
		return breakpoints[i].Address < breakpoints[j].Address
	})
	return breakpoints
}

// AddBreakpoint adds a new breakpoint address to the debugger. If the
// breakpoint was already set, the existing breakpoint is returned
// unchanged.
func (d *Debugger) AddBreakpoint(addr uint16) *Breakpoint {
	if b, ok := d.breakpoints[addr]; ok {
		return b
	}
	b := &Breakpoint{Address: addr}
	d.breakpoints[addr] = b
	return b
}

// RemoveBreakpoint removes a breakpoint from the debugger. Removing a
// breakpoint that does not exist does nothing.
func (d *Debugger) RemoveBreakpoint(addr uint16) {
	delete(d.breakpoints, addr)
}

// GetDataBreakpoint looks up a data breakpoint with the provided address
// and kind and returns it if found. Otherwise it returns nil.
func (d *Debugger) GetDataBreakpoint(addr uint16, kind AccessKind) *DataBreakpoint {
	return d.dataBreakpoints[dataKey{addr, kind}]
}

// GetDataBreakpoints returns all data breakpoints currently set in the
// debugger, ordered by address and kind.
func (d *Debugger) GetDataBreakpoints() []*DataBreakpoint {
	breakpoints := make([]*DataBreakpoint, 0, len(d.dataBreakpoints))
	for _, b := range d.dataBreakpoints {
		breakpoints = append(breakpoints, b)
	}
	sort.Slice(breakpoints, func(i, j int) bool {
		a, b := breakpoints[i], breakpoints[j]
		if a.Address != b.Address {
			return a.Address < b.Address
		}
		return a.Kind < b.Kind
	})
	return breakpoints
}

// AddDataBreakpoint adds an unconditional data breakpoint of the given kind
// on the requested address. If one already exists it is returned unchanged.
func (d *Debugger) AddDataBreakpoint(addr uint16, kind AccessKind) *DataBreakpoint {
	key := dataKey{addr, kind}
	if b, ok := d.dataBreakpoints[key]; ok {
		return b
	}
	b := &DataBreakpoint{Address: addr, Kind: kind}
	d.dataBreakpoints[key] = b
	return b
}

// AddConditionalDataBreakpoint adds a write data breakpoint on the
// requested address that only triggers when 'value' is stored. It
// replaces any existing write data breakpoint on the address.
func (d *Debugger) AddConditionalDataBreakpoint(addr uint16, value byte) *DataBreakpoint {
	b := &DataBreakpoint{
		Address:     addr,
		Kind:        Write,
		Conditional: true,
		Value:       value,
	}
	d.dataBreakpoints[dataKey{addr, Write}] = b
	return b
}

// RemoveDataBreakpoint removes the data breakpoint of the given kind at the
// requested address. Removing one that does not exist does nothing.
func (d *Debugger) RemoveDataBreakpoint(addr uint16, kind AccessKind) {
	delete(d.dataBreakpoints, dataKey{addr, kind})
}

// ClearBreakpoints removes every breakpoint and data breakpoint.
func (d *Debugger) ClearBreakpoints() {
	clear(d.breakpoints)
	clear(d.dataBreakpoints)
}

func (d *Debugger) onUpdatePC(cpu *CPU, addr uint16) {
	if d.breakpointHandler != nil {
		if b, ok := d.breakpoints[addr]; ok && !b.Disabled {
			d.breakpointHandler.OnBreakpoint(cpu, b)
		}
	}
}

func (d *Debugger) onDataLoad(cpu *CPU, addr uint16) {
	if d.breakpointHandler == nil || len(d.dataBreakpoints) == 0 {
		return
	}
	for _, kind := range [...]AccessKind{Read, Access} {
		if b, ok := d.dataBreakpoints[dataKey{addr, kind}]; ok && !b.Disabled {
			d.breakpointHandler.OnDataBreakpoint(cpu, b)
		}
	}
}

func (d *Debugger) onDataStore(cpu *CPU, addr uint16, v byte) {
	if d.breakpointHandler == nil || len(d.dataBreakpoints) == 0 {
		return
	}
	for _, kind := range [...]AccessKind{Write, Access} {
		if b, ok := d.dataBreakpoints[dataKey{addr, kind}]; ok && !b.Disabled {
			if !b.Conditional || b.Value == v {
				d.breakpointHandler.OnDataBreakpoint(cpu, b)
			}
		}
	}
}
