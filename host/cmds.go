// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import "github.com/beevik/cmd"

type handler func(h *Host, c cmd.Selection) error

// commandInfo is stored as the data of every command in the tree. It
// carries the handler and the help text shown by the help command.
type commandInfo struct {
	name        string
	brief       string
	description string
	usage       string
	fn          handler
}

// A commandGroup lists the commands of one level of the tree for help.
type commandGroup struct {
	title    string
	commands []*commandInfo
}

var (
	cmds   *cmd.Tree
	groups = make(map[string]*commandGroup)
)

type treeBuilder struct {
	tree  *cmd.Tree
	group *commandGroup
}

func newTreeBuilder(t *cmd.Tree, name, title string) *treeBuilder {
	g := &commandGroup{title: title}
	groups[name] = g
	return &treeBuilder{tree: t, group: g}
}

func (b *treeBuilder) command(info commandInfo) {
	ci := &info
	b.tree.AddCommand(cmd.CommandDescriptor{
		Name:        ci.name,
		Brief:       ci.brief,
		Description: ci.description,
		Usage:       ci.usage,
		Data:        ci,
	})
	b.group.commands = append(b.group.commands, ci)
}

func (b *treeBuilder) subtree(name, brief string) *treeBuilder {
	t := b.tree.AddSubtree(cmd.TreeDescriptor{Name: name, Brief: brief})
	b.group.commands = append(b.group.commands, &commandInfo{name: name, brief: brief})
	return newTreeBuilder(t, name, brief)
}

func init() {
	root := cmd.NewTree(cmd.TreeDescriptor{Name: "gdb6502"})
	r := newTreeBuilder(root, "", "Monitor")

	r.command(commandInfo{
		name:        "help",
		brief:       "Display help for a command",
		description: "Display help for a command.",
		usage:       "help [<command>]",
		fn:          (*Host).cmdHelp,
	})

	// Breakpoint commands
	bp := r.subtree("breakpoint", "Breakpoint commands")
	bp.command(commandInfo{
		name:        "list",
		brief:       "List breakpoints",
		description: "List all current breakpoints.",
		usage:       "breakpoint list",
		fn:          (*Host).cmdBreakpointList,
	})
	bp.command(commandInfo{
		name:  "add",
		brief: "Add a breakpoint",
		description: "Add a breakpoint at the specified address." +
			" The breakpoint starts enabled.",
		usage: "breakpoint add <address>",
		fn:    (*Host).cmdBreakpointAdd,
	})
	bp.command(commandInfo{
		name:        "remove",
		brief:       "Remove a breakpoint",
		description: "Remove a breakpoint at the specified address.",
		usage:       "breakpoint remove <address>",
		fn:          (*Host).cmdBreakpointRemove,
	})
	bp.command(commandInfo{
		name:        "enable",
		brief:       "Enable a breakpoint",
		description: "Enable a previously added breakpoint.",
		usage:       "breakpoint enable <address>",
		fn:          (*Host).cmdBreakpointEnable,
	})
	bp.command(commandInfo{
		name:  "disable",
		brief: "Disable a breakpoint",
		description: "Disable a previously added breakpoint. This" +
			" prevents the breakpoint from being hit without removing it.",
		usage: "breakpoint disable <address>",
		fn:    (*Host).cmdBreakpointDisable,
	})

	// Data breakpoint commands
	db := r.subtree("databreakpoint", "Data breakpoint commands")
	db.command(commandInfo{
		name:        "list",
		brief:       "List data breakpoints",
		description: "List all current data breakpoints.",
		usage:       "databreakpoint list",
		fn:          (*Host).cmdDataBreakpointList,
	})
	db.command(commandInfo{
		name:  "add",
		brief: "Add a data breakpoint",
		description: "Add a new data breakpoint at the specified memory" +
			" address. The kind is one of read, write or access and" +
			" defaults to write. A write data breakpoint may specify a byte" +
			" value, in which case the CPU stops only when that value is" +
			" stored. The data breakpoint starts enabled.",
		usage: "databreakpoint add <address> [<kind>] [<value>]",
		fn:    (*Host).cmdDataBreakpointAdd,
	})
	db.command(commandInfo{
		name:        "remove",
		brief:       "Remove a data breakpoint",
		description: "Remove a previously added data breakpoint.",
		usage:       "databreakpoint remove <address> [<kind>]",
		fn:          (*Host).cmdDataBreakpointRemove,
	})
	db.command(commandInfo{
		name:        "enable",
		brief:       "Enable a data breakpoint",
		description: "Enable a previously added data breakpoint.",
		usage:       "databreakpoint enable <address> [<kind>]",
		fn:          (*Host).cmdDataBreakpointEnable,
	})
	db.command(commandInfo{
		name:        "disable",
		brief:       "Disable a data breakpoint",
		description: "Disable a previously added data breakpoint.",
		usage:       "databreakpoint disable <address> [<kind>]",
		fn:          (*Host).cmdDataBreakpointDisable,
	})

	r.command(commandInfo{
		name:  "disassemble",
		brief: "Disassemble code",
		description: "Disassemble machine code starting at the requested" +
			" address. The number of instructions to disassemble may be" +
			" specified as an option. If no address is specified, the" +
			" disassembly continues from where the last one left off.",
		usage: "disassemble [<address>] [<count>]",
		fn:    (*Host).cmdDisassemble,
	})
	r.command(commandInfo{
		name:        "log",
		brief:       "Display the log",
		description: "Display the most recent log entries.",
		usage:       "log [<count>]",
		fn:          (*Host).cmdLog,
	})
	r.command(commandInfo{
		name:  "lua",
		brief: "Run a Lua chunk",
		description: "Run a chunk of Lua code against the emulated machine." +
			" The functions peek(addr), poke(addr, value), reg(name)," +
			" setreg(name, value), step([count]) and print(...) are" +
			" available to the chunk.",
		usage: "lua <chunk>",
		fn:    (*Host).cmdLua,
	})

	// Memory commands
	me := r.subtree("memory", "Memory commands")
	me.command(commandInfo{
		name:  "dump",
		brief: "Dump memory at address",
		description: "Dump the contents of memory starting from the" +
			" specified address. The number of bytes to dump may be" +
			" specified as an option. If no address is specified, the" +
			" memory dump continues from where the last dump left off.",
		usage: "memory dump [<address>] [<bytes>]",
		fn:    (*Host).cmdMemoryDump,
	})
	me.command(commandInfo{
		name:  "set",
		brief: "Set memory at address",
		description: "Set the contents of memory starting from the specified" +
			" address. The values to assign should be a series of" +
			" space-separated byte values.",
		usage: "memory set <address> <byte> [<byte> ...]",
		fn:    (*Host).cmdMemorySet,
	})
	me.command(commandInfo{
		name:  "copy",
		brief: "Copy memory",
		description: "Copy memory from one range of addresses to another. You" +
			" must specify the destination address, the first byte of the source" +
			" address, and the last byte of the source address.",
		usage: "memory copy <dst addr> <src addr begin> <src addr end>",
		fn:    (*Host).cmdMemoryCopy,
	})

	r.command(commandInfo{
		name:  "register",
		brief: "View or change register values",
		description: "When used without arguments, this command displays the current" +
			" contents of the CPU registers and the cycle counter. When used with" +
			" arguments, this command changes the value of a register or one of the" +
			" CPU's status flags. Allowed register names include A, X, Y, PC and SP." +
			" Allowed status flag names include N (Sign), Z (Zero), C (Carry)," +
			" I (InterruptDisable), D (Decimal) and V (Overflow).",
		usage: "register [<name> <value>]",
		fn:    (*Host).cmdRegister,
	})
	r.command(commandInfo{
		name:  "reset",
		brief: "Reset the machine",
		description: "Reload the most recently loaded image into memory and" +
			" reset the CPU registers and cycle counter. Breakpoints are kept.",
		usage: "reset",
		fn:    (*Host).cmdReset,
	})
	r.command(commandInfo{
		name:  "set",
		brief: "Set a configuration variable",
		description: "Set the value of a configuration variable. To see the" +
			" current values of all configuration variables, type set" +
			" without any arguments.",
		usage: "set [<var> <value>]",
		fn:    (*Host).cmdSet,
	})
	r.command(commandInfo{
		name:        "symbols",
		brief:       "List image symbols",
		description: "List the symbols of the loaded image in address order.",
		usage:       "symbols",
		fn:          (*Host).cmdSymbols,
	})

	// Add command shortcuts.
	root.AddShortcut("b", "breakpoint")
	root.AddShortcut("bp", "breakpoint")
	root.AddShortcut("ba", "breakpoint add")
	root.AddShortcut("br", "breakpoint remove")
	root.AddShortcut("bl", "breakpoint list")
	root.AddShortcut("be", "breakpoint enable")
	root.AddShortcut("bd", "breakpoint disable")
	root.AddShortcut("d", "disassemble")
	root.AddShortcut("db", "databreakpoint")
	root.AddShortcut("dbp", "databreakpoint")
	root.AddShortcut("dbl", "databreakpoint list")
	root.AddShortcut("dba", "databreakpoint add")
	root.AddShortcut("dbr", "databreakpoint remove")
	root.AddShortcut("dbe", "databreakpoint enable")
	root.AddShortcut("dbd", "databreakpoint disable")
	root.AddShortcut("m", "memory dump")
	root.AddShortcut("mc", "memory copy")
	root.AddShortcut("ms", "memory set")
	root.AddShortcut("r", "register")
	root.AddShortcut("?", "help")
	root.AddShortcut(".", "register")

	cmds = root
}
