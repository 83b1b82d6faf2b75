// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipe struct {
	conn    *Conn
	peer    net.Conn
	r       *bufio.Reader
	packets chan []byte
	breaks  atomic.Int32
	done    chan error
}

func newPipe(t *testing.T) *pipe {
	t.Helper()
	c1, c2 := net.Pipe()
	p := &pipe{
		conn:    NewConn(c1),
		peer:    c2,
		r:       bufio.NewReader(c2),
		packets: make(chan []byte, 8),
		done:    make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		p.done <- p.conn.Receive(ctx, p.packets, func() { p.breaks.Add(1) })
	}()

	t.Cleanup(func() {
		cancel()
		c1.Close()
		c2.Close()
	})
	return p
}

func (p *pipe) write(t *testing.T, b []byte) {
	t.Helper()
	_, err := p.peer.Write(b)
	require.NoError(t, err)
}

func (p *pipe) readByte(t *testing.T) byte {
	t.Helper()
	b, err := p.r.ReadByte()
	require.NoError(t, err)
	return b
}

func (p *pipe) receive(t *testing.T) string {
	t.Helper()
	select {
	case pkt := <-p.packets:
		return string(pkt)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for packet")
		return ""
	}
}

func (p *pipe) readPacket(t *testing.T) string {
	t.Helper()
	require.Equal(t, byte('$'), p.readByte(t))
	data, err := p.r.ReadString('#')
	require.NoError(t, err)
	payload := data[:len(data)-1]

	var cs [2]byte
	_, err = io.ReadFull(p.r, cs[:])
	require.NoError(t, err)
	assert.True(t, checksumMatches(cs, Checksum([]byte(payload))))
	return payload
}

func TestFrame(t *testing.T) {
	assert.Equal(t, "$OK#9a", string(Frame([]byte("OK"))))
	assert.Equal(t, "$#00", string(Frame(nil)))
	assert.Equal(t, byte(0x37), Checksum([]byte("qSupported")))
}

func TestReceiveAck(t *testing.T) {
	p := newPipe(t)

	p.write(t, Frame([]byte("qSupported")))
	assert.Equal(t, byte('+'), p.readByte(t))
	assert.Equal(t, "qSupported", p.receive(t))
}

func TestReceiveBadChecksum(t *testing.T) {
	p := newPipe(t)

	p.write(t, []byte("$g#00"))
	assert.Equal(t, byte('-'), p.readByte(t))

	p.write(t, Frame([]byte("g")))
	assert.Equal(t, byte('+'), p.readByte(t))
	assert.Equal(t, "g", p.receive(t))
}

func TestNoAck(t *testing.T) {
	p := newPipe(t)
	p.conn.SetNoAck(true)
	assert.True(t, p.conn.NoAck())

	p.write(t, Frame([]byte("g")))
	assert.Equal(t, "g", p.receive(t))

	// The reply is the next thing on the wire, with no ack before it.
	go p.conn.SendString("00")
	assert.Equal(t, "00", p.readPacket(t))
}

func TestRetransmit(t *testing.T) {
	p := newPipe(t)

	go p.conn.SendString("OK")
	assert.Equal(t, "OK", p.readPacket(t))

	p.write(t, []byte{'-'})
	assert.Equal(t, "OK", p.readPacket(t))
}

func TestInterrupt(t *testing.T) {
	p := newPipe(t)

	p.write(t, []byte{InterruptByte})
	p.write(t, Frame([]byte("?")))
	assert.Equal(t, byte('+'), p.readByte(t))
	assert.Equal(t, "?", p.receive(t))
	assert.Equal(t, int32(1), p.breaks.Load())
}

func TestRunLength(t *testing.T) {
	p := newPipe(t)

	// "0* " is '0' followed by three more copies.
	p.write(t, Frame([]byte("M0,4:0* ")))
	assert.Equal(t, byte('+'), p.readByte(t))
	assert.Equal(t, "M0,4:0000", p.receive(t))
}

func TestReceiveClosed(t *testing.T) {
	p := newPipe(t)
	p.peer.Close()

	select {
	case err := <-p.done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return")
	}
}

func TestEscape(t *testing.T) {
	raw := []byte{0x01, '$', '#', '}', '*', 0xff}
	esc := Escape(raw)
	assert.Equal(t, []byte{0x01, '}', 0x04, '}', 0x03, '}', 0x5d, '}', 0x0a, 0xff}, esc)
	assert.Equal(t, raw, Unescape(esc))
}
