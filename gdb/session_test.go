// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdb_test

import (
	"bufio"
	"bytes"
	"context"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/gdb"
	"github.com/beevik/gdb6502/loader"
	"github.com/beevik/gdb6502/rsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = 0x0600

var storeProgram = []byte{
	0xa9, 0x05, // LDA #$05
	0x85, 0x00, // STA $00
	0x00, // BRK
}

// A client plays the debugger side of a session over an in-memory pipe.
type client struct {
	t      *testing.T
	conn   net.Conn
	r      *bufio.Reader
	noAck  bool
	output bytes.Buffer // program output received in 'O' packets
	done   chan error
}

func connect(t *testing.T, arch cpu.Architecture, code ...byte) *client {
	t.Helper()

	var img *loader.Image
	if len(code) > 0 {
		var err error
		img, err = loader.ParseRaw(code, origin)
		require.NoError(t, err)
	}

	c1, c2 := net.Pipe()
	srv := gdb.NewServer(gdb.Config{Arch: arch, Image: img})
	c := &client{
		t:    t,
		conn: c2,
		r:    bufio.NewReader(c2),
		done: make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { c.done <- srv.ServeConn(ctx, c1) }()

	t.Cleanup(func() {
		cancel()
		c2.Close()
		select {
		case <-c.done:
		case <-time.After(time.Second):
			t.Error("session did not end")
		}
	})
	return c
}

func (c *client) write(b []byte) {
	c.t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err := c.conn.Write(b)
	require.NoError(c.t, err)
}

func (c *client) readByte() byte {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	b, err := c.r.ReadByte()
	require.NoError(c.t, err)
	return b
}

func (c *client) send(payload string) {
	c.t.Helper()
	c.write(rsp.Frame([]byte(payload)))
	if !c.noAck {
		require.Equal(c.t, byte('+'), c.readByte())
	}
}

// Read the next packet that is not program output.
func (c *client) recv() string {
	c.t.Helper()
	for {
		for c.readByte() != '$' {
		}
		data, err := c.r.ReadString('#')
		require.NoError(c.t, err)
		payload := data[:len(data)-1]

		var cs [2]byte
		_, err = io.ReadFull(c.r, cs[:])
		require.NoError(c.t, err)
		require.Equal(c.t, fmt.Sprintf("%02x", rsp.Checksum([]byte(payload))), string(cs[:]))

		if !c.noAck {
			c.write([]byte{'+'})
		}

		if strings.HasPrefix(payload, "O") && payload != "OK" {
			out, err := hex.DecodeString(payload[1:])
			require.NoError(c.t, err)
			c.output.Write(out)
			continue
		}
		return payload
	}
}

func (c *client) request(payload string) string {
	c.t.Helper()
	c.send(payload)
	return c.recv()
}

func (c *client) startNoAck() {
	c.t.Helper()
	require.Equal(c.t, "OK", c.request("QStartNoAckMode"))
	c.noAck = true
}

func TestQSupported(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)

	reply := c.request("qSupported:multiprocess+;swbreak+;hwbreak+")
	assert.True(t, strings.HasPrefix(reply, "PacketSize=4000"))
	assert.Contains(t, reply, "QStartNoAckMode+")
	assert.Contains(t, reply, "qXfer:features:read+")
	assert.Contains(t, reply, "vContSupported+")
	assert.NotContains(t, reply, "multiprocess")

	assert.Equal(t, "", c.request("QNonStop:1"))
	assert.Equal(t, "", c.request("bc"))

	c.startNoAck()
	assert.Len(t, c.request("g"), 2*74)
}

func TestThreadQueries(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)
	c.startNoAck()

	assert.Equal(t, "OK", c.request("Hg0"))
	assert.Equal(t, "QC1", c.request("qC"))
	assert.Equal(t, "m1", c.request("qfThreadInfo"))
	assert.Equal(t, "l", c.request("qsThreadInfo"))
	assert.Equal(t, "1", c.request("qAttached"))
	assert.Equal(t, "T0500:0006;thread:1;", c.request("?"))
}

func TestRegisters(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)
	c.startNoAck()

	regs := c.request("g")
	require.Len(t, regs, 2*74)
	assert.Equal(t, "0006", regs[0:4])
	assert.Equal(t, "000000ff", regs[4:12])

	assert.Equal(t, "0006", c.request("p0"))
	assert.Equal(t, "OK", c.request("P1=ab"))
	assert.Equal(t, "ab", c.request("p1"))
	assert.Equal(t, "OK", c.request("P5=01"))
	assert.Equal(t, "01", c.request("p5"))
	assert.Equal(t, "E02", c.request("p39"))
	assert.Equal(t, "E02", c.request("P1=abcd"))
	assert.Equal(t, "E01", c.request("pzz"))

	// RC0 and RC1 are zero page bytes; RS0 is the pair of them.
	assert.Equal(t, "OK", c.request("P9=34"))
	assert.Equal(t, "OK", c.request("Pa=12"))
	assert.Equal(t, "3412", c.request("p29"))
	assert.Equal(t, "3412", c.request("m0,2"))

	regs = c.request("g")
	assert.Equal(t, "OK", c.request("G"+regs))
	assert.Equal(t, regs, c.request("g"))
	assert.Equal(t, "E02", c.request("G00"))
}

func TestMemory(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)
	c.startNoAck()

	assert.Equal(t, "a90585", c.request("m600,3"))
	assert.Equal(t, "OK", c.request("M10,4:01020304"))
	assert.Equal(t, "01020304", c.request("m10,4"))
	assert.Equal(t, "E01", c.request("M10,2:01"))

	bin := rsp.Escape([]byte{'}', 0x7f})
	assert.Equal(t, "OK", c.request("X20,2:"+string(bin)))
	assert.Equal(t, "7d7f", c.request("m20,2"))
	assert.Equal(t, "OK", c.request("X20,0:"))

	// Ranges wrap around the end of the address space.
	assert.Equal(t, "OK", c.request("Mffff,2:aabb"))
	assert.Equal(t, "bb", c.request("m0,1"))

	// Protocol writes bypass the exit device.
	assert.Equal(t, "OK", c.request("Mfff8,1:07"))
	assert.Equal(t, "07", c.request("mfff8,1"))
	assert.True(t, strings.HasPrefix(c.request("s"), "T05"))
}

func TestStepAndBreakpoint(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)
	c.request("qSupported:swbreak+")
	c.startNoAck()

	assert.Equal(t, "T0500:0206;thread:1;", c.request("s"))
	assert.Equal(t, "05", c.request("p1"))

	assert.Equal(t, "OK", c.request("Z0,604,1"))
	assert.Equal(t, "OK", c.request("Z0,604,1"))
	assert.Equal(t, "T05swbreak:;00:0406;thread:1;", c.request("c"))
	assert.Equal(t, "05", c.request("m0,1"))

	assert.Equal(t, "OK", c.request("z0,604,1"))
	assert.Equal(t, "OK", c.request("z0,604,1"))
	assert.Equal(t, "", c.request("Z9,604,1"))
}

func TestWatchpoint(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)
	c.startNoAck()

	assert.Equal(t, "OK", c.request("Z2,0,1"))
	assert.Equal(t, "T05watch:0000;00:0406;thread:1;", c.request("c"))
	assert.Equal(t, "OK", c.request("z2,0,1"))
}

func TestReadWatchpoint(t *testing.T) {
	c := connect(t, cpu.NMOS,
		0xa5, 0x11, // LDA $11
		0x00, // BRK
	)
	c.startNoAck()

	assert.Equal(t, "OK", c.request("Z3,10,2"))
	assert.Equal(t, "T05rwatch:0011;00:0206;thread:1;", c.request("c"))
}

func TestHalt(t *testing.T) {
	c := connect(t, cpu.NMOS,
		0xa9, 0xc8, // LDA #$C8
		0x8d, 0xf9, 0xff, // STA $FFF9
		0xa9, 0x0a, // LDA #$0A
		0x8d, 0xf9, 0xff, // STA $FFF9
		0xa9, 0x2a, // LDA #$2A
		0x8d, 0xf8, 0xff, // STA $FFF8
	)
	c.startNoAck()

	assert.Equal(t, "W2a", c.request("c"))
	assert.Equal(t, "H\n", c.output.String())
	assert.Equal(t, "W2a", c.request("?"))
}

func TestIllegalOpcode(t *testing.T) {
	c := connect(t, cpu.NMOS, 0xff)
	c.startNoAck()

	assert.Equal(t, "T0400:0006;thread:1;", c.request("c"))
	assert.Equal(t, "T0400:0006;thread:1;", c.request("s"))
}

func TestRangeStep(t *testing.T) {
	c := connect(t, cpu.NMOS,
		0xa9, 0x01, // LDA #$01
		0xa9, 0x02, // LDA #$02
		0xa9, 0x03, // LDA #$03
	)
	c.startNoAck()

	assert.Equal(t, "vCont;c;C;s;S;r", c.request("vCont?"))
	assert.Equal(t, "T0500:0406;thread:1;", c.request("vCont;r600,604:1"))
	assert.Equal(t, "T0500:0606;thread:1;", c.request("vCont;s:1"))
}

func TestInterrupt(t *testing.T) {
	c := connect(t, cpu.NMOS,
		0x4c, 0x00, 0x06, // JMP $0600
	)
	c.startNoAck()

	c.send("c")
	time.Sleep(20 * time.Millisecond)
	c.write([]byte{rsp.InterruptByte})
	assert.Equal(t, "T0200:0006;thread:1;", c.recv())
}

func TestDisconnectWhileRunning(t *testing.T) {
	c := connect(t, cpu.NMOS,
		0x4c, 0x00, 0x06, // JMP $0600
	)
	c.startNoAck()
	c.send("c")
	c.conn.Close()

	select {
	case err := <-c.done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not end")
	}
	c.done <- nil
}

func TestDetach(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)
	c.startNoAck()

	assert.Equal(t, "OK", c.request("D"))
	c.conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := c.r.ReadByte()
	assert.Error(t, err)
}

func TestKill(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)
	c.startNoAck()

	assert.Equal(t, "OK", c.request("vKill;1"))
	c.conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := c.r.ReadByte()
	assert.Error(t, err)
}

func TestTargetXML(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)
	c.startNoAck()

	reply := c.request("qXfer:features:read:target.xml:0,10000")
	require.True(t, strings.HasPrefix(reply, "l"))
	assert.Equal(t, gdb.TargetXML, reply[1:])
	assert.Contains(t, reply, "<architecture>mos</architecture>")
	assert.Contains(t, reply, `<reg name="RS15" group_id="2" bitsize="16" offset="72" regnum="56" dwarf_regnum="543" />`)

	reply = c.request("qXfer:features:read:target.xml:0,10")
	assert.Equal(t, "m"+gdb.TargetXML[:16], reply)
	assert.Equal(t, "l", c.request(fmt.Sprintf("qXfer:features:read:target.xml:%x,10", len(gdb.TargetXML))))
	assert.Equal(t, "E00", c.request("qXfer:features:read:other.xml:0,10"))
}

func TestMonitorCommand(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)
	c.startNoAck()

	reply := c.request("qRcmd," + hex.EncodeToString([]byte("register")))
	out, err := hex.DecodeString(reply)
	require.NoError(t, err)
	assert.Contains(t, string(out), "PC=$0600")

	reply = c.request("qRcmd," + hex.EncodeToString([]byte("breakpoint add $0604")))
	out, err = hex.DecodeString(reply)
	require.NoError(t, err)
	assert.Contains(t, string(out), "$0604")
	assert.Equal(t, "T0500:0406;thread:1;", c.request("c"))
}

// Build a minimal 32-bit little-endian executable with one .text section.
func buildELF(t *testing.T, entry uint16, text []byte) []byte {
	t.Helper()

	const ehsize, shentsize = 52, 40
	shstrtab := []byte("\x00.text\x00.shstrtab\x00")
	textOff := uint32(ehsize)
	strOff := textOff + uint32(len(text))
	shoff := (strOff + uint32(len(shstrtab)) + 3) &^ 3

	var hdr elf.Header32
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Type = uint16(elf.ET_EXEC)
	hdr.Version = uint32(elf.EV_CURRENT)
	hdr.Entry = uint32(entry)
	hdr.Shoff = shoff
	hdr.Ehsize = ehsize
	hdr.Shentsize = shentsize
	hdr.Shnum = 3
	hdr.Shstrndx = 2

	sections := []elf.Section32{
		{},
		{Name: 1, Type: uint32(elf.SHT_PROGBITS), Flags: uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Addr: uint32(entry), Off: textOff, Size: uint32(len(text)), Addralign: 1},
		{Name: 7, Type: uint32(elf.SHT_STRTAB), Off: strOff, Size: uint32(len(shstrtab)), Addralign: 1},
	}

	var b bytes.Buffer
	require.NoError(t, binary.Write(&b, binary.LittleEndian, &hdr))
	b.Write(text)
	b.Write(shstrtab)
	for uint32(b.Len()) < shoff {
		b.WriteByte(0)
	}
	for i := range sections {
		require.NoError(t, binary.Write(&b, binary.LittleEndian, &sections[i]))
	}
	return b.Bytes()
}

func TestUpload(t *testing.T) {
	c := connect(t, cpu.NMOS)
	c.startNoAck()
	assert.Equal(t, "OK", c.request("Z0,1234,1"))

	file := buildELF(t, 0x0800, []byte{
		0xa9, 0x09, // LDA #$09
		0x8d, 0xf8, 0xff, // STA $FFF8
	})

	assert.Equal(t, "F0", c.request("vFile:setfs:0"))
	name := hex.EncodeToString([]byte("/tmp/prog.elf"))
	assert.Equal(t, "F1", c.request("vFile:open:"+name+",601,1ff"))

	half := len(file) / 2
	reply := c.request(fmt.Sprintf("vFile:pwrite:1,0,%s", rsp.Escape(file[:half])))
	assert.Equal(t, fmt.Sprintf("F%x", half), reply)
	reply = c.request(fmt.Sprintf("vFile:pwrite:1,%x,%s", half, rsp.Escape(file[half:])))
	assert.Equal(t, fmt.Sprintf("F%x", len(file)-half), reply)

	reply = c.request("vFile:pread:1,4,0")
	assert.Equal(t, "F4;"+string(rsp.Escape(file[:4])), reply)

	assert.Equal(t, "F0", c.request("vFile:close:1"))
	assert.Equal(t, "F-1,9", c.request("vFile:close:1"))

	assert.Equal(t, "0008", c.request("p0"))
	assert.Equal(t, "W09", c.request("c"))
}

func TestUploadTooLarge(t *testing.T) {
	c := connect(t, cpu.NMOS)
	c.startNoAck()

	name := hex.EncodeToString([]byte("big.bin"))
	assert.Equal(t, "F1", c.request("vFile:open:"+name+",601,1ff"))
	assert.Equal(t, "F-1,1b", c.request("vFile:pwrite:1,ffffffff,x"))
	assert.Equal(t, "F-1,1b", c.request("vFile:pwrite:1,400000,x"))
	assert.Equal(t, "F1", c.request("vFile:pwrite:1,3fffff,x"))
	assert.Equal(t, "F0", c.request("vFile:close:1"))
}

func TestUploadBadELF(t *testing.T) {
	c := connect(t, cpu.NMOS, storeProgram...)
	c.startNoAck()

	name := hex.EncodeToString([]byte("bad.elf"))
	assert.Equal(t, "F1", c.request("vFile:open:"+name+",601,1ff"))
	data := append([]byte{0x7f, 'E', 'L', 'F'}, make([]byte, 8)...)
	c.request("vFile:pwrite:1,0," + string(rsp.Escape(data)))
	assert.Equal(t, "F-1,5", c.request("vFile:close:1"))

	// The previous image is untouched.
	assert.Equal(t, "0006", c.request("p0"))
}
