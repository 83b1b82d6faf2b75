// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdb

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/host"
	"github.com/beevik/gdb6502/logger"
	"github.com/beevik/gdb6502/rsp"
	"golang.org/x/sync/errgroup"
)

// Error replies.
const (
	replyOK        = "OK"
	replyMalformed = "E01"
	replyRegister  = "E02"
)

// Signal numbers used in stop replies.
const (
	sigINT  = 2
	sigILL  = 4
	sigTRAP = 5
)

// Largest number of bytes returned by a single memory read.
const maxReadSize = (rsp.MaxPacketSize - 16) / 2

// The session ends after the reply to a kill or detach request.
var errSessionEnded = errors.New("session ended")

// A Session serves the requests of one debugger connection against its
// own target. Requests are handled one at a time on the goroutine that
// calls Serve; a second goroutine reads packets so that an interrupt can
// stop a running target.
type Session struct {
	conn     *rsp.Conn
	target   *Target
	host     *host.Host
	console  *consoleWriter
	lastStop host.StopReason
	swbreak  bool
	files    hostFiles
}

// NewSession creates a session serving the host 'h' over 'rwc'. Output of
// the emulated program is forwarded to the debugger and, if 'console' is
// not nil, copied to 'console'.
func NewSession(rwc io.ReadWriteCloser, h *host.Host, console io.Writer) *Session {
	s := &Session{
		conn:     rsp.NewConn(rwc),
		target:   NewTarget(h),
		host:     h,
		lastStop: host.StopReason{Kind: host.StopStep},
	}
	s.console = &consoleWriter{conn: s.conn, mirror: console}
	h.SetConsole(s.console)
	return s
}

// Target returns the session's target.
func (s *Session) Target() *Target {
	return s.target
}

// Serve handles requests until the debugger disconnects, kills or
// detaches, or 'ctx' is cancelled. A disconnect while the target is running
// interrupts it.
func (s *Session) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	packets := make(chan []byte, 16)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(packets)
		err := s.conn.Receive(ctx, packets, s.host.Break)
		s.host.Break()
		if isDisconnect(err) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer cancel()
		for pkt := range packets {
			err := s.handle(pkt)
			switch {
			case errors.Is(err, errSessionEnded):
				return nil
			case isDisconnect(err):
				return nil
			case err != nil:
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled)
}

func (s *Session) send(reply string) error {
	if s.host.LogPackets() {
		logger.Logf(logger.TagGDB, "-> %s", truncate(reply))
	}
	return s.conn.SendString(reply)
}

func truncate(s string) string {
	const n = 64
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// Handle a single request packet and send its reply.
func (s *Session) handle(pkt []byte) error {
	if s.host.LogPackets() {
		logger.Logf(logger.TagGDB, "<- %s", truncate(string(pkt)))
	}
	if len(pkt) == 0 {
		return s.send("")
	}

	req := string(pkt)
	var reply string
	switch req[0] {
	case '?':
		reply = s.stopReply(s.lastStop)
	case 'g':
		reply = hex.EncodeToString(s.target.ReadRegisters())
	case 'G':
		reply = s.writeRegisters(req[1:])
	case 'p':
		reply = s.readRegister(req[1:])
	case 'P':
		reply = s.writeRegister(req[1:])
	case 'm':
		reply = s.readMemory(req[1:])
	case 'M':
		reply = s.writeMemory(req[1:])
	case 'X':
		reply = s.writeMemoryBinary(req[1:])
	case 'Z':
		reply = s.breakpoint(req[1:], true)
	case 'z':
		reply = s.breakpoint(req[1:], false)
	case 'c', 's':
		reply = s.resumeAt(req[0], req[1:])
	case 'C', 'S':
		// The target has no signals to deliver; only the address matters.
		args := req[1:]
		if i := strings.IndexByte(args, ';'); i >= 0 {
			args = args[i+1:]
		} else {
			args = ""
		}
		reply = s.resumeAt(req[0]+'a'-'A', args)
	case 'v':
		if strings.HasPrefix(req, "vKill") {
			logger.Log(logger.TagGDB, "killed by debugger")
			s.host.Reset()
			if err := s.send(replyOK); err != nil {
				return err
			}
			return errSessionEnded
		}
		reply = s.handleV(req)
	case 'q':
		reply = s.handleQuery(req)
	case 'Q':
		reply = s.handleSet(req)
	case 'H', 'T':
		reply = replyOK
	case 'k':
		logger.Log(logger.TagGDB, "killed by debugger")
		s.host.Reset()
		return errSessionEnded
	case 'D':
		logger.Log(logger.TagGDB, "debugger detached")
		if err := s.send(replyOK); err != nil {
			return err
		}
		return errSessionEnded
	default:
		reply = ""
	}
	return s.send(reply)
}

func (s *Session) writeRegisters(args string) string {
	b, err := hex.DecodeString(args)
	if err != nil {
		return replyMalformed
	}
	if err := s.target.WriteRegisters(b); err != nil {
		return replyRegister
	}
	return replyOK
}

func (s *Session) readRegister(args string) string {
	n, err := strconv.ParseUint(args, 16, 16)
	if err != nil {
		return replyMalformed
	}
	b, err := s.target.ReadRegister(int(n))
	if err != nil {
		return replyRegister
	}
	return hex.EncodeToString(b)
}

func (s *Session) writeRegister(args string) string {
	num, value, ok := strings.Cut(args, "=")
	if !ok {
		return replyMalformed
	}
	n, err := strconv.ParseUint(num, 16, 16)
	if err != nil {
		return replyMalformed
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		return replyMalformed
	}
	if err := s.target.WriteRegister(int(n), b); err != nil {
		return replyRegister
	}
	return replyOK
}

// Parse an "addr,length" pair.
func parseAddrLen(s string) (addr uint16, length int, err error) {
	a, l, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, errors.New("missing length")
	}
	av, err := strconv.ParseUint(a, 16, 16)
	if err != nil {
		return 0, 0, err
	}
	lv, err := strconv.ParseUint(l, 16, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint16(av), int(lv), nil
}

func (s *Session) readMemory(args string) string {
	addr, n, err := parseAddrLen(args)
	if err != nil {
		return replyMalformed
	}
	return hex.EncodeToString(s.target.ReadMemory(addr, min(n, maxReadSize)))
}

func (s *Session) writeMemory(args string) string {
	loc, data, ok := strings.Cut(args, ":")
	if !ok {
		return replyMalformed
	}
	addr, n, err := parseAddrLen(loc)
	if err != nil {
		return replyMalformed
	}
	b, err := hex.DecodeString(data)
	if err != nil || len(b) != n {
		return replyMalformed
	}
	s.target.WriteMemory(addr, b)
	return replyOK
}

func (s *Session) writeMemoryBinary(args string) string {
	loc, data, ok := strings.Cut(args, ":")
	if !ok {
		return replyMalformed
	}
	addr, n, err := parseAddrLen(loc)
	if err != nil {
		return replyMalformed
	}
	b := rsp.Unescape([]byte(data))
	if len(b) != n {
		return replyMalformed
	}
	s.target.WriteMemory(addr, b)
	return replyOK
}

func (s *Session) breakpoint(args string, insert bool) string {
	// Conditions and commands are not supported and are ignored.
	args, _, _ = strings.Cut(args, ";")

	fields := strings.Split(args, ",")
	if len(fields) != 3 {
		return replyMalformed
	}
	typ, err1 := strconv.ParseUint(fields[0], 16, 8)
	addr, err2 := strconv.ParseUint(fields[1], 16, 16)
	kind, err3 := strconv.ParseUint(fields[2], 16, 16)
	if err1 != nil || err2 != nil || err3 != nil {
		return replyMalformed
	}

	var err error
	if insert {
		err = s.target.InsertBreakpoint(BreakpointType(typ), uint16(addr), int(kind))
	} else {
		err = s.target.RemoveBreakpoint(BreakpointType(typ), uint16(addr), int(kind))
	}
	if errors.Is(err, ErrBadBreakpoint) {
		return ""
	}
	return replyOK
}

// Handle 'c' and 's' requests, which may carry a resume address.
func (s *Session) resumeAt(action byte, args string) string {
	if args != "" {
		addr, err := strconv.ParseUint(args, 16, 16)
		if err != nil {
			return replyMalformed
		}
		s.host.CPU().SetPC(uint16(addr))
	}

	if action == 's' {
		return s.resume(s.host.Step)
	}
	return s.resume(s.host.Run)
}

// Run the target and return the stop reply for the reason it stopped.
func (s *Session) resume(run func() host.StopReason) string {
	r := run()
	s.console.Flush()
	s.lastStop = r
	if r.Kind != host.StopStep {
		logger.Logf(logger.TagGDB, "stopped: %s", r)
	}
	return s.stopReply(r)
}

func (s *Session) stopReply(r host.StopReason) string {
	var b strings.Builder
	switch r.Kind {
	case host.StopHalted:
		return fmt.Sprintf("W%02x", r.ExitCode)
	case host.StopIllegal:
		fmt.Fprintf(&b, "T%02x", sigILL)
	case host.StopInterrupted:
		fmt.Fprintf(&b, "T%02x", sigINT)
	default:
		fmt.Fprintf(&b, "T%02x", sigTRAP)
	}

	switch r.Kind {
	case host.StopBreakpoint:
		if s.swbreak {
			b.WriteString("swbreak:;")
		}
	case host.StopWatchpoint:
		fmt.Fprintf(&b, "%s:%04x;", watchName(r), r.Addr)
	}

	pc := s.target.PC()
	fmt.Fprintf(&b, "%02x:%02x%02x;thread:1;", RegPC, byte(pc), byte(pc>>8))
	return b.String()
}

func watchName(r host.StopReason) string {
	switch r.Access {
	case cpu.Write:
		return "watch"
	case cpu.Read:
		return "rwatch"
	default:
		return "awatch"
	}
}

func (s *Session) handleV(req string) string {
	switch {
	case req == "vCont?":
		return "vCont;c;C;s;S;r"
	case strings.HasPrefix(req, "vCont;"):
		return s.handleVCont(req[len("vCont;"):])
	case strings.HasPrefix(req, "vFile:"):
		return s.handleFile(req[len("vFile:"):])
	default:
		return ""
	}
}

// Only the first action applies; the target has a single thread.
func (s *Session) handleVCont(args string) string {
	action, _, _ := strings.Cut(args, ";")
	action, _, _ = strings.Cut(action, ":")
	if action == "" {
		return replyMalformed
	}

	switch action[0] {
	case 'c', 'C':
		return s.resume(s.host.Run)
	case 's', 'S':
		return s.resume(s.host.Step)
	case 'r':
		start, end, ok := strings.Cut(action[1:], ",")
		if !ok {
			return replyMalformed
		}
		sv, err1 := strconv.ParseUint(start, 16, 16)
		ev, err2 := strconv.ParseUint(end, 16, 17)
		if err1 != nil || err2 != nil {
			return replyMalformed
		}
		return s.resume(func() host.StopReason {
			return s.host.RangeStep(uint16(sv), uint16(min(ev, 0xffff)))
		})
	default:
		return replyMalformed
	}
}

var supportedFeatures = []string{
	fmt.Sprintf("PacketSize=%x", rsp.MaxPacketSize),
	"QStartNoAckMode+",
	"swbreak+",
	"hwbreak+",
	"qXfer:features:read+",
	"vContSupported+",
}

func (s *Session) handleQuery(req string) string {
	name, args, _ := strings.Cut(req, ":")
	switch name {
	case "qSupported":
		for _, f := range strings.Split(args, ";") {
			if f == "swbreak+" {
				s.swbreak = true
			}
		}
		return strings.Join(supportedFeatures, ";")
	case "qXfer":
		return s.readFeatures(args)
	case "qC":
		return "QC1"
	case "qfThreadInfo":
		return "m1"
	case "qsThreadInfo":
		return "l"
	case "qAttached":
		return "1"
	case "qSymbol":
		return replyOK
	}

	if strings.HasPrefix(req, "qRcmd,") {
		return s.monitor(req[len("qRcmd,"):])
	}
	return ""
}

func (s *Session) handleSet(req string) string {
	switch req {
	case "QStartNoAckMode":
		s.conn.SetNoAck(true)
		return replyOK
	default:
		return ""
	}
}

// Serve "features:read:target.xml:offset,length".
func (s *Session) readFeatures(args string) string {
	const prefix = "features:read:"
	if !strings.HasPrefix(args, prefix) {
		return ""
	}
	annex, loc, ok := strings.Cut(args[len(prefix):], ":")
	if !ok {
		return replyMalformed
	}
	if annex != "target.xml" {
		return "E00"
	}

	offs, lens, ok := strings.Cut(loc, ",")
	if !ok {
		return replyMalformed
	}
	off, err1 := strconv.ParseUint(offs, 16, 32)
	n, err2 := strconv.ParseUint(lens, 16, 32)
	if err1 != nil || err2 != nil {
		return replyMalformed
	}

	doc := TargetXML
	if int(off) >= len(doc) {
		return "l"
	}
	chunk := doc[off:]
	prefixByte := "l"
	if uint64(len(chunk)) > n {
		chunk, prefixByte = chunk[:n], "m"
	}
	return prefixByte + string(rsp.Escape([]byte(chunk)))
}

// Run a monitor command and return its hex-encoded output.
func (s *Session) monitor(args string) string {
	line, err := hex.DecodeString(args)
	if err != nil {
		return replyMalformed
	}

	var out bytes.Buffer
	s.host.RunCommand(string(line), &out)
	s.console.Flush()
	if out.Len() == 0 {
		return replyOK
	}
	return hex.EncodeToString(out.Bytes())
}

// The consoleWriter forwards program output to the debugger as 'O'
// packets, buffering it until a newline or until the target stops.
type consoleWriter struct {
	conn   *rsp.Conn
	mirror io.Writer
	buf    []byte
}

const consoleFlushSize = 64

func (w *consoleWriter) Write(p []byte) (int, error) {
	if w.mirror != nil {
		w.mirror.Write(p)
	}
	w.buf = append(w.buf, p...)
	if len(w.buf) >= consoleFlushSize || bytes.IndexByte(p, '\n') >= 0 {
		w.Flush()
	}
	return len(p), nil
}

// Flush sends any buffered output.
func (w *consoleWriter) Flush() {
	if len(w.buf) == 0 {
		return
	}
	w.conn.SendString("O" + hex.EncodeToString(w.buf))
	w.buf = w.buf[:0]
}
