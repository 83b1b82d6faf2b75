// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import "io"

// Tags used by the packages of this module.
const (
	TagCPU    = "cpu"
	TagGDB    = "gdb"
	TagHost   = "host"
	TagLoader = "loader"
	TagServer = "server"
)

// maximum number of entries in the central logger
const maxCentral = 256

var central = New(maxCentral)

// Log adds an entry to the central logger.
func Log(tag, detail string) {
	central.Log(tag, detail)
}

// Logf adds a formatted entry to the central logger.
func Logf(tag, format string, args ...any) {
	central.Logf(tag, format, args...)
}

// Clear removes all entries from the central logger.
func Clear() {
	central.Clear()
}

// Write writes the contents of the central logger to 'w'.
func Write(w io.Writer) {
	central.Write(w)
}

// Tail writes the last 'number' entries of the central logger to 'w'.
func Tail(w io.Writer, number int) {
	central.Tail(w, number)
}

// SetEcho echoes new central log entries to 'w'.
func SetEcho(w io.Writer) {
	central.SetEcho(w)
}
