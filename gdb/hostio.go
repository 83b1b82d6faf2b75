// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdb

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/host"
	"github.com/beevik/gdb6502/loader"
	"github.com/beevik/gdb6502/logger"
	"github.com/beevik/gdb6502/rsp"
)

// Host I/O errno values.
const (
	errnoENOENT = 2
	errnoEIO    = 5
	errnoEBADF  = 9
	errnoEINVAL = 22
	errnoEFBIG  = 27
)

// Largest file the debugger may upload. ELF files carry symbols and debug
// information, so this is well above the size of the address space.
const maxFileSize = 64 * cpu.MemorySize

// Files opened by the debugger live in memory only. Closing a file that
// holds an ELF executable loads it into the host.
type hostFile struct {
	name string
	data []byte
}

type hostFiles struct {
	open   map[int]*hostFile
	nextFD int
}

func (f *hostFiles) add(file *hostFile) int {
	if f.open == nil {
		f.open = make(map[int]*hostFile)
	}
	f.nextFD++
	f.open[f.nextFD] = file
	return f.nextFD
}

func (f *hostFiles) get(args string) (int, *hostFile, bool) {
	fd, err := strconv.ParseInt(args, 16, 32)
	if err != nil {
		return 0, nil, false
	}
	file, ok := f.open[int(fd)]
	return int(fd), file, ok
}

func fileError(errno int) string {
	return fmt.Sprintf("F-1,%x", errno)
}

func fileResult(v int) string {
	return fmt.Sprintf("F%x", v)
}

// Handle a "vFile:" request.
func (s *Session) handleFile(req string) string {
	op, args, _ := strings.Cut(req, ":")
	switch op {
	case "setfs":
		return fileResult(0)
	case "open":
		return s.fileOpen(args)
	case "pwrite":
		return s.filePwrite(args)
	case "pread":
		return s.filePread(args)
	case "close":
		return s.fileClose(args)
	case "unlink":
		return fileResult(0)
	default:
		return ""
	}
}

// open:filename,flags,mode
func (s *Session) fileOpen(args string) string {
	fields := strings.Split(args, ",")
	if len(fields) != 3 {
		return fileError(errnoEINVAL)
	}
	name, err := hex.DecodeString(fields[0])
	if err != nil || len(name) == 0 {
		return fileError(errnoENOENT)
	}

	fd := s.files.add(&hostFile{name: string(name)})
	logger.Logf(logger.TagGDB, "opened %s as fd %d", name, fd)
	return fileResult(fd)
}

// pwrite:fd,offset,data
func (s *Session) filePwrite(args string) string {
	fields := strings.SplitN(args, ",", 3)
	if len(fields) != 3 {
		return fileError(errnoEINVAL)
	}
	_, file, ok := s.files.get(fields[0])
	if !ok {
		return fileError(errnoEBADF)
	}
	off, err := strconv.ParseUint(fields[1], 16, 32)
	if err != nil {
		return fileError(errnoEINVAL)
	}

	data := rsp.Unescape([]byte(fields[2]))
	end := int(off) + len(data)
	if end > maxFileSize {
		return fileError(errnoEFBIG)
	}
	if end > len(file.data) {
		file.data = append(file.data, make([]byte, end-len(file.data))...)
	}
	copy(file.data[off:], data)
	return fileResult(len(data))
}

// pread:fd,count,offset
func (s *Session) filePread(args string) string {
	fields := strings.Split(args, ",")
	if len(fields) != 3 {
		return fileError(errnoEINVAL)
	}
	_, file, ok := s.files.get(fields[0])
	if !ok {
		return fileError(errnoEBADF)
	}
	count, err1 := strconv.ParseUint(fields[1], 16, 32)
	off, err2 := strconv.ParseUint(fields[2], 16, 32)
	if err1 != nil || err2 != nil {
		return fileError(errnoEINVAL)
	}

	if off >= uint64(len(file.data)) {
		return fileResult(0) + ";"
	}
	data := file.data[off:]
	data = data[:min(uint64(len(data)), count, maxReadSize)]
	return fileResult(len(data)) + ";" + string(rsp.Escape(data))
}

// close:fd
func (s *Session) fileClose(args string) string {
	fd, file, ok := s.files.get(args)
	if !ok {
		return fileError(errnoEBADF)
	}
	delete(s.files.open, fd)

	if !loader.IsELF(file.data) {
		return fileResult(0)
	}

	img, err := loader.ParseELF(file.data)
	if err != nil {
		logger.Logf(logger.TagGDB, "upload of %s rejected: %v", file.name, err)
		return fileError(errnoEIO)
	}
	s.host.LoadImage(img)
	s.lastStop = host.StopReason{Kind: host.StopStep}
	logger.Logf(logger.TagGDB, "loaded %s, entry $%04X", file.name, img.Entry)
	return fileResult(0)
}
