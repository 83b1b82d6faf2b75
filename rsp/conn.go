// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rsp implements the packet layer of the GDB remote serial
// protocol: framing, checksums, acknowledgement, no-ack mode, binary
// escaping, run-length decoding and the out-of-band interrupt byte.
package rsp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/beevik/gdb6502/logger"
)

// Special bytes on the wire.
const (
	packetStart = '$'
	packetEnd   = '#'
	escapeByte  = '}'
	repeatByte  = '*'
	ackByte     = '+'
	nakByte     = '-'

	// InterruptByte is sent by the debugger outside of any packet to stop
	// a running target.
	InterruptByte = 0x03
)

// Errors returned by the packet layer.
var (
	ErrChecksum = errors.New("rsp: checksum mismatch")
	ErrTooLarge = errors.New("rsp: packet too large")
)

// MaxPacketSize is the largest packet payload accepted from the debugger.
const MaxPacketSize = 0x4000

// A Conn frames remote protocol packets over a byte stream. Receive runs
// on its own goroutine and may be used concurrently with Send.
type Conn struct {
	rwc   io.ReadWriteCloser
	r     *bufio.Reader
	noAck atomic.Bool

	wmu  sync.Mutex // guards writes and last
	last []byte     // last packet sent, for retransmission
}

// NewConn creates a packet connection over 'rwc'.
func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		rwc: rwc,
		r:   bufio.NewReader(rwc),
	}
}

// Close closes the underlying stream. A blocked Receive returns.
func (c *Conn) Close() error {
	return c.rwc.Close()
}

// SetNoAck turns acknowledgement of packets on or off.
func (c *Conn) SetNoAck(on bool) {
	c.noAck.Store(on)
}

// NoAck returns true if the connection is in no-ack mode.
func (c *Conn) NoAck() bool {
	return c.noAck.Load()
}

// Receive reads from the stream until it fails or 'ctx' is cancelled.
// Every valid packet payload, with run-length encoding expanded, is sent
// to 'packets'. Every interrupt byte calls 'interrupt' directly from the
// receiving goroutine, so it must be safe for concurrent use.
func (c *Conn) Receive(ctx context.Context, packets chan<- []byte, interrupt func()) error {
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return err
		}

		switch b {
		case packetStart:
			payload, err := c.readPacket()
			switch {
			case errors.Is(err, ErrChecksum), errors.Is(err, ErrTooLarge):
				logger.Logf(logger.TagGDB, "dropped packet: %v", err)
				if !c.noAck.Load() {
					if err := c.writeRaw([]byte{nakByte}); err != nil {
						return err
					}
				}
				continue
			case err != nil:
				return err
			}

			if !c.noAck.Load() {
				if err := c.writeRaw([]byte{ackByte}); err != nil {
					return err
				}
			}

			select {
			case packets <- payload:
			case <-ctx.Done():
				return ctx.Err()
			}

		case nakByte:
			if err := c.retransmit(); err != nil {
				return err
			}

		case InterruptByte:
			if interrupt != nil {
				interrupt()
			}

		default:
			// Acks and line noise between packets are ignored.
		}
	}
}

// Read the remainder of a packet after its start byte and verify its
// checksum.
func (c *Conn) readPacket() ([]byte, error) {
	var payload []byte
	var sum byte
	tooLarge := false
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == packetEnd {
			break
		}
		sum += b
		if len(payload) < MaxPacketSize {
			payload = append(payload, b)
		} else {
			tooLarge = true
		}
	}

	var cs [2]byte
	if _, err := io.ReadFull(c.r, cs[:]); err != nil {
		return nil, err
	}

	switch {
	case tooLarge:
		return nil, ErrTooLarge
	case !checksumMatches(cs, sum):
		return nil, ErrChecksum
	}
	return expandRuns(payload), nil
}

func checksumMatches(cs [2]byte, sum byte) bool {
	hi, ok1 := fromHexDigit(cs[0])
	lo, ok2 := fromHexDigit(cs[1])
	return ok1 && ok2 && hi<<4|lo == sum
}

func fromHexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// Checksum returns the modulo-256 sum of the payload bytes.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}

// Frame wraps a payload in packet delimiters and a checksum.
func Frame(payload []byte) []byte {
	b := make([]byte, 0, len(payload)+4)
	b = append(b, packetStart)
	b = append(b, payload...)
	b = append(b, packetEnd)
	return fmt.Appendf(b, "%02x", Checksum(payload))
}

// Send writes a packet holding 'payload'. Binary payloads must already be
// escaped.
func (c *Conn) Send(payload []byte) error {
	pkt := Frame(payload)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.last = pkt
	_, err := c.rwc.Write(pkt)
	return err
}

// SendString writes a packet holding the string 's'.
func (c *Conn) SendString(s string) error {
	return c.Send([]byte(s))
}

func (c *Conn) retransmit() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.last == nil {
		return nil
	}
	logger.Log(logger.TagGDB, "retransmitting last packet")
	_, err := c.rwc.Write(c.last)
	return err
}

func (c *Conn) writeRaw(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.rwc.Write(b)
	return err
}

// Expand run-length encoded sequences. A '*' followed by a byte n repeats
// the preceding byte n-29 more times.
func expandRuns(b []byte) []byte {
	if bytes.IndexByte(b, repeatByte) < 0 {
		return b
	}

	out := make([]byte, 0, len(b)*2)
	for i := 0; i < len(b); i++ {
		if b[i] == repeatByte && len(out) > 0 && i+1 < len(b) {
			n := int(b[i+1]) - 29
			prev := out[len(out)-1]
			for j := 0; j < n; j++ {
				out = append(out, prev)
			}
			i++
			continue
		}
		out = append(out, b[i])
	}
	return out
}

// Escape returns binary data with the bytes that are special inside a
// packet escaped.
func Escape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case packetStart, packetEnd, escapeByte, repeatByte:
			out = append(out, escapeByte, c^0x20)
		default:
			out = append(out, c)
		}
	}
	return out
}

// Unescape reverses Escape on the binary data of a received packet.
func Unescape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == escapeByte && i+1 < len(b) {
			i++
			out = append(out, b[i]^0x20)
			continue
		}
		out = append(out, b[i])
	}
	return out
}
