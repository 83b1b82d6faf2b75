// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/cmd"
	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/disasm"
	"github.com/beevik/gdb6502/logger"
)

// Errors returned by RunCommand.
var (
	ErrCommandNotFound  = errors.New("command not found")
	ErrCommandAmbiguous = errors.New("command is ambiguous")
)

// RunCommand executes a single monitor command line, writing its output
// to 'w'. Errors in the command's arguments are reported on 'w'; the
// returned error is non-nil only when the command itself is unknown.
func (h *Host) RunCommand(line string, w io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	out := bufio.NewWriter(w)
	h.output = out
	defer func() {
		out.Flush()
		h.output = nil
	}()

	c, err := cmds.Lookup(line)
	switch {
	case errors.Is(err, cmd.ErrNotFound):
		h.println("Command not found.")
		return ErrCommandNotFound
	case errors.Is(err, cmd.ErrAmbiguous):
		h.println("Command is ambiguous.")
		return ErrCommandAmbiguous
	case err != nil:
		h.printf("ERROR: %v.\n", err)
		return err
	}

	if c.Command == nil {
		h.displayCommands(strings.Fields(line)[0])
		return nil
	}

	info := c.Command.Data.(*commandInfo)
	if err := info.fn(h, c); err != nil {
		h.printf("ERROR: %v.\n", err)
	}
	return nil
}

func (h *Host) print(args ...any) {
	fmt.Fprint(h.output, args...)
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
}

func (h *Host) displayUsage(c cmd.Selection) {
	info := c.Command.Data.(*commandInfo)
	h.printf("Syntax: %s\n", info.usage)
}

func (h *Host) displayCommands(group string) {
	g, ok := groups[group]
	if !ok {
		h.println("Command not found.")
		return
	}
	h.printf("%s commands:\n", g.title)
	for _, c := range g.commands {
		h.printf("    %-15s  %s\n", c.name, c.brief)
	}
}

func (h *Host) cmdHelp(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.displayCommands("")
		return nil
	}

	if len(c.Args) == 1 {
		if _, ok := groups[strings.ToLower(c.Args[0])]; ok {
			h.displayCommands(strings.ToLower(c.Args[0]))
			return nil
		}
	}

	s, err := cmds.Lookup(strings.Join(c.Args, " "))
	if err != nil {
		return err
	}
	if s.Command == nil {
		h.displayCommands(strings.ToLower(c.Args[0]))
		return nil
	}

	info := s.Command.Data.(*commandInfo)
	h.printf("Syntax: %s\n\n", info.usage)
	h.printf("Description:\n   %s\n", info.description)
	return nil
}

// Parse an address argument: a number, a register name or an image
// symbol.
func (h *Host) parseAddr(s string) (uint16, error) {
	switch strings.ToLower(s) {
	case ".", "pc":
		return h.cpu.Reg.PC, nil
	case "sp":
		return h.cpu.Reg.StackAddr(), nil
	}

	if h.image != nil {
		if addr, ok := h.image.Lookup(s); ok {
			return addr, nil
		}
	}

	v, err := parseNumber(s, h.settings.HexMode)
	if err != nil {
		return 0, fmt.Errorf("invalid address '%s'", s)
	}
	return uint16(v), nil
}

func (h *Host) parseByte(s string) (byte, error) {
	v, err := parseNumber(s, h.settings.HexMode)
	if err != nil || v > 0xff {
		return 0, fmt.Errorf("invalid byte value '%s'", s)
	}
	return byte(v), nil
}

func (h *Host) parseCount(s string) (int, error) {
	v, err := parseNumber(s, false)
	if err != nil {
		return 0, fmt.Errorf("invalid count '%s'", s)
	}
	return v, nil
}

func parseAccessKind(s string) (cpu.AccessKind, error) {
	switch strings.ToLower(s) {
	case "w", "write":
		return cpu.Write, nil
	case "r", "read":
		return cpu.Read, nil
	case "a", "access", "rw":
		return cpu.Access, nil
	default:
		return 0, fmt.Errorf("invalid access kind '%s'", s)
	}
}

func (h *Host) cmdBreakpointList(c cmd.Selection) error {
	h.println("Breakpoints:")
	for _, b := range h.debugger.GetBreakpoints() {
		disabled := ""
		if b.Disabled {
			disabled = " (disabled)"
		}
		h.printf("   $%04X%s\n", b.Address, disabled)
	}
	return nil
}

func (h *Host) cmdBreakpointAdd(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, err := h.parseAddr(c.Args[0])
	if err != nil {
		return err
	}

	h.debugger.AddBreakpoint(addr)
	h.printf("Breakpoint added at $%04X.\n", addr)
	return nil
}

func (h *Host) cmdBreakpointRemove(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, err := h.parseAddr(c.Args[0])
	if err != nil {
		return err
	}

	if h.debugger.GetBreakpoint(addr) == nil {
		h.printf("No breakpoint was set on $%04X.\n", addr)
		return nil
	}

	h.debugger.RemoveBreakpoint(addr)
	h.printf("Breakpoint at $%04X removed.\n", addr)
	return nil
}

func (h *Host) cmdBreakpointEnable(c cmd.Selection) error {
	return h.setBreakpointDisabled(c, false)
}

func (h *Host) cmdBreakpointDisable(c cmd.Selection) error {
	return h.setBreakpointDisabled(c, true)
}

func (h *Host) setBreakpointDisabled(c cmd.Selection, disabled bool) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, err := h.parseAddr(c.Args[0])
	if err != nil {
		return err
	}

	b := h.debugger.GetBreakpoint(addr)
	if b == nil {
		h.printf("No breakpoint was set on $%04X.\n", addr)
		return nil
	}

	b.Disabled = disabled
	if disabled {
		h.printf("Breakpoint at $%04X disabled.\n", addr)
	} else {
		h.printf("Breakpoint at $%04X enabled.\n", addr)
	}
	return nil
}

func (h *Host) cmdDataBreakpointList(c cmd.Selection) error {
	h.println("Data breakpoints:")
	for _, b := range h.debugger.GetDataBreakpoints() {
		h.printf("   $%04X %-6s", b.Address, b.Kind)
		if b.Conditional {
			h.printf(" on value $%02X", b.Value)
		}
		if b.Disabled {
			h.print(" (disabled)")
		}
		h.println()
	}
	return nil
}

// Parse "<address> [<kind>]" data breakpoint arguments. The kind defaults
// to write.
func (h *Host) parseDataBreakpointArgs(args []string) (addr uint16, kind cpu.AccessKind, rest []string, err error) {
	addr, err = h.parseAddr(args[0])
	if err != nil {
		return 0, 0, nil, err
	}

	kind, rest = cpu.Write, args[1:]
	if len(rest) > 0 {
		if k, err := parseAccessKind(rest[0]); err == nil {
			kind, rest = k, rest[1:]
		}
	}
	return addr, kind, rest, nil
}

func (h *Host) cmdDataBreakpointAdd(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, kind, rest, err := h.parseDataBreakpointArgs(c.Args)
	if err != nil {
		return err
	}

	if len(rest) > 0 {
		if kind != cpu.Write {
			return errors.New("only write data breakpoints may have a value")
		}
		value, err := h.parseByte(rest[0])
		if err != nil {
			return err
		}
		h.debugger.AddConditionalDataBreakpoint(addr, value)
		h.printf("Conditional data breakpoint added at $%04X for value $%02X.\n", addr, value)
		return nil
	}

	h.debugger.AddDataBreakpoint(addr, kind)
	h.printf("Data breakpoint (%s) added at $%04X.\n", kind, addr)
	return nil
}

func (h *Host) cmdDataBreakpointRemove(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, kind, _, err := h.parseDataBreakpointArgs(c.Args)
	if err != nil {
		return err
	}

	if h.debugger.GetDataBreakpoint(addr, kind) == nil {
		h.printf("No %s data breakpoint was set on $%04X.\n", kind, addr)
		return nil
	}

	h.debugger.RemoveDataBreakpoint(addr, kind)
	h.printf("Data breakpoint (%s) at $%04X removed.\n", kind, addr)
	return nil
}

func (h *Host) cmdDataBreakpointEnable(c cmd.Selection) error {
	return h.setDataBreakpointDisabled(c, false)
}

func (h *Host) cmdDataBreakpointDisable(c cmd.Selection) error {
	return h.setDataBreakpointDisabled(c, true)
}

func (h *Host) setDataBreakpointDisabled(c cmd.Selection, disabled bool) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, kind, _, err := h.parseDataBreakpointArgs(c.Args)
	if err != nil {
		return err
	}

	b := h.debugger.GetDataBreakpoint(addr, kind)
	if b == nil {
		h.printf("No %s data breakpoint was set on $%04X.\n", kind, addr)
		return nil
	}

	b.Disabled = disabled
	if disabled {
		h.printf("Data breakpoint at $%04X disabled.\n", addr)
	} else {
		h.printf("Data breakpoint at $%04X enabled.\n", addr)
	}
	return nil
}

func (h *Host) cmdDisassemble(c cmd.Selection) error {
	addr := h.settings.NextDisasmAddr
	if len(c.Args) > 0 {
		a, err := h.parseAddr(c.Args[0])
		if err != nil {
			return err
		}
		addr = a
	}

	lines := h.settings.DisasmLines
	if len(c.Args) > 1 {
		n, err := h.parseCount(c.Args[1])
		if err != nil {
			return err
		}
		lines = n
	}

	for i := 0; i < lines; i++ {
		var line string
		line, addr = disasm.Line(h.mem, addr, h.cpu.InstSet)
		h.println(line)
	}

	h.settings.NextDisasmAddr = addr
	return nil
}

func (h *Host) cmdLog(c cmd.Selection) error {
	count := 20
	if len(c.Args) > 0 {
		n, err := h.parseCount(c.Args[0])
		if err != nil {
			return err
		}
		count = n
	}
	logger.Tail(h.output, count)
	return nil
}

func (h *Host) cmdMemoryDump(c cmd.Selection) error {
	addr := h.settings.NextMemDumpAddr
	if len(c.Args) > 0 {
		a, err := h.parseAddr(c.Args[0])
		if err != nil {
			return err
		}
		addr = a
	}

	bytes := h.settings.MemDumpBytes
	if len(c.Args) > 1 {
		n, err := h.parseCount(c.Args[1])
		if err != nil {
			return err
		}
		bytes = n
	}
	if bytes <= 0 {
		return nil
	}

	h.dumpMemory(addr, uint16(min(bytes, cpu.MemorySize-1)))
	h.settings.NextMemDumpAddr = addr + uint16(bytes)
	return nil
}

func (h *Host) cmdMemorySet(c cmd.Selection) error {
	if len(c.Args) < 2 {
		h.displayUsage(c)
		return nil
	}

	addr, err := h.parseAddr(c.Args[0])
	if err != nil {
		return err
	}

	b := make([]byte, 0, len(c.Args)-1)
	for _, s := range c.Args[1:] {
		v, err := h.parseByte(s)
		if err != nil {
			return err
		}
		b = append(b, v)
	}

	h.mem.StoreBytes(addr, b)
	h.dumpMemory(addr, uint16(len(b)))
	return nil
}

func (h *Host) cmdMemoryCopy(c cmd.Selection) error {
	if len(c.Args) < 3 {
		h.displayUsage(c)
		return nil
	}

	var addr [3]uint16
	for i := range addr {
		a, err := h.parseAddr(c.Args[i])
		if err != nil {
			return err
		}
		addr[i] = a
	}

	dst, begin, end := addr[0], addr[1], addr[2]
	if end < begin {
		return errors.New("source range is empty")
	}

	b := make([]byte, int(end-begin)+1)
	h.mem.LoadBytes(begin, b)
	h.mem.StoreBytes(dst, b)
	h.printf("%d bytes copied from $%04X to $%04X.\n", len(b), begin, dst)
	return nil
}

func (h *Host) cmdRegister(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.displayRegisters()
		return nil
	}
	if len(c.Args) < 2 {
		h.displayUsage(c)
		return nil
	}

	name, value := strings.ToLower(c.Args[0]), c.Args[1]
	v, err := parseNumber(value, h.settings.HexMode)
	if err != nil {
		return err
	}
	if err := h.setRegister(name, v); err != nil {
		return err
	}
	h.displayRegisters()
	return nil
}

func (h *Host) setRegister(name string, v int) error {
	r := &h.cpu.Reg
	switch strings.ToLower(name) {
	case "a":
		r.A = byte(v)
	case "x":
		r.X = byte(v)
	case "y":
		r.Y = byte(v)
	case "sp", "s":
		r.SP = byte(v)
	case "pc", ".":
		r.PC = uint16(v)
	case "ps", "p":
		r.RestorePS(byte(v))
	default:
		if bit, ok := cpu.FlagNames[strings.ToLower(name)]; ok {
			r.SetFlag(bit, v != 0)
			return nil
		}
		return fmt.Errorf("unknown register '%s'", name)
	}
	return nil
}

func (h *Host) getRegister(name string) (int, error) {
	r := &h.cpu.Reg
	switch strings.ToLower(name) {
	case "a":
		return int(r.A), nil
	case "x":
		return int(r.X), nil
	case "y":
		return int(r.Y), nil
	case "sp", "s":
		return int(r.SP), nil
	case "pc", ".":
		return int(r.PC), nil
	case "ps", "p":
		return int(r.SavePS(false)), nil
	case "cycles":
		return int(h.cpu.Cycles), nil
	default:
		if bit, ok := cpu.FlagNames[strings.ToLower(name)]; ok {
			return boolToInt(r.Flag(bit)), nil
		}
		return 0, fmt.Errorf("unknown register '%s'", name)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (h *Host) displayRegisters() {
	r := &h.cpu.Reg
	flags := []byte("NV-BDIZC")
	ps := r.SavePS(false)
	for i := range flags {
		if ps&(0x80>>i) == 0 {
			flags[i] = '.'
		}
	}
	h.printf("PC=$%04X A=$%02X X=$%02X Y=$%02X SP=$%02X PS=[%s] C=%d\n",
		r.PC, r.A, r.X, r.Y, r.SP, flags, h.cpu.Cycles)
}

func (h *Host) cmdReset(c cmd.Selection) error {
	h.Reset()
	h.displayRegisters()
	return nil
}

func (h *Host) cmdSet(c cmd.Selection) error {
	switch len(c.Args) {
	case 0:
		h.println("Variables:")
		h.settings.Display(h.output)

	case 1:
		h.displayUsage(c)

	default:
		key, value := c.Args[0], strings.Join(c.Args[1:], " ")
		err := h.settings.Set(key, value, func(s string) (int, error) {
			return parseNumber(s, h.settings.HexMode)
		})
		if err != nil {
			return err
		}
		h.println("Setting updated.")
	}
	return nil
}

func (h *Host) cmdSymbols(c cmd.Selection) error {
	if h.image == nil || len(h.image.Symbols) == 0 {
		h.println("No symbols loaded.")
		return nil
	}
	for _, name := range h.image.SymbolNames() {
		h.printf("   $%04X %s\n", h.image.Symbols[name], name)
	}
	return nil
}

func (h *Host) dumpMemory(addr0, bytes uint16) {
	if bytes == 0 {
		return
	}

	addr1 := addr0 + bytes - 1
	if addr1 < addr0 {
		addr1 = 0xffff
	}

	buf := []byte("    -" + strings.Repeat(" ", 35))

	// Don't align display for short dumps.
	if addr1-addr0 < 8 {
		addrToBuf(addr0, buf[0:4])
		for a, c1, c2 := uint32(addr0), 6, 32; a <= uint32(addr1); a, c1, c2 = a+1, c1+3, c2+1 {
			m := h.mem.LoadByte(uint16(a))
			byteToBuf(m, buf[c1:c1+2])
			buf[c2] = toPrintableChar(m)
		}
		h.println(string(buf))
		return
	}

	// Align addr0 and addr1 to 8-byte boundaries.
	start := uint32(addr0) & 0xfff8
	stop := min((uint32(addr1)+8)&0xffff8, 0x10000)

	for r := start; r < stop; r += 8 {
		addrToBuf(uint16(r), buf[0:4])
		for i, c1, c2 := uint32(0), 6, 32; i < 8; i, c1, c2 = i+1, c1+3, c2+1 {
			a := r + i
			if a >= uint32(addr0) && a <= uint32(addr1) {
				m := h.mem.LoadByte(uint16(a))
				byteToBuf(m, buf[c1:c1+2])
				buf[c2] = toPrintableChar(m)
			} else {
				buf[c1] = ' '
				buf[c1+1] = ' '
				buf[c2] = ' '
			}
		}
		h.println(string(buf))
	}
}
