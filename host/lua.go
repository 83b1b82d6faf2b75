// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/beevik/cmd"
	lua "github.com/yuin/gopher-lua"
)

// Maximum time a single lua chunk may run.
const luaTimeout = 5 * time.Second

// Return the host's lua state, creating it on first use.
func (h *Host) luaState() *lua.LState {
	if h.lua != nil {
		return h.lua
	}

	L := lua.NewState()
	L.SetGlobal("peek", L.NewFunction(h.luaPeek))
	L.SetGlobal("poke", L.NewFunction(h.luaPoke))
	L.SetGlobal("reg", L.NewFunction(h.luaReg))
	L.SetGlobal("setreg", L.NewFunction(h.luaSetReg))
	L.SetGlobal("step", L.NewFunction(h.luaStep))
	L.SetGlobal("print", L.NewFunction(h.luaPrint))
	h.lua = L
	return L
}

// RunLua executes a chunk of lua code against the emulated machine. Output
// of the chunk's print calls goes to the current monitor output.
func (h *Host) RunLua(chunk string) error {
	L := h.luaState()

	ctx, cancel := context.WithTimeout(context.Background(), luaTimeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	if err := L.DoString(chunk); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("lua chunk timed out")
		}
		return err
	}
	return nil
}

func (h *Host) cmdLua(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.displayUsage(c)
		return nil
	}
	return h.RunLua(strings.Join(c.Args, " "))
}

func (h *Host) luaPeek(L *lua.LState) int {
	addr := L.CheckInt(1)
	L.Push(lua.LNumber(h.mem.LoadByte(uint16(addr))))
	return 1
}

func (h *Host) luaPoke(L *lua.LState) int {
	addr := L.CheckInt(1)
	v := L.CheckInt(2)
	h.mem.StoreByte(uint16(addr), byte(v))
	return 0
}

func (h *Host) luaReg(L *lua.LState) int {
	v, err := h.getRegister(L.CheckString(1))
	if err != nil {
		L.RaiseError("%v", err)
		return 0
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (h *Host) luaSetReg(L *lua.LState) int {
	if err := h.setRegister(L.CheckString(1), L.CheckInt(2)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// step([count]) executes instructions and returns the name of the stop
// reason of the last one. Like Run, it stops early when the host is
// interrupted or the chunk's context ends.
func (h *Host) luaStep(L *lua.LState) int {
	count := L.OptInt(1, 1)
	var done <-chan struct{}
	if ctx := L.Context(); ctx != nil {
		done = ctx.Done()
	}

	r := StopReason{Kind: StopStep}
loop:
	for i := 0; i < count; i++ {
		if h.interrupt.Swap(false) {
			r = StopReason{Kind: StopInterrupted}
			break
		}
		if i&0xff == 0 {
			select {
			case <-done:
				r = StopReason{Kind: StopInterrupted}
				break loop
			default:
			}
		}
		r = h.Step()
		if r.Kind != StopStep {
			break
		}
	}
	L.Push(lua.LString(r.Kind.String()))
	return 1
}

func (h *Host) luaPrint(L *lua.LState) int {
	if h.output == nil {
		return 0
	}
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	h.println(strings.Join(parts, "\t"))
	return 0
}
