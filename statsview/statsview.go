// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package statsview serves live runtime statistics of the emulator process
// (heap, goroutines, GC pauses) as a web page.
package statsview

import (
	"fmt"
	"io"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

// DefaultAddr is the address the stats server listens on by default.
const DefaultAddr = "localhost:12600"

const url = "/debug/statsview"

// Launch starts the stats server on 'addr' in a new goroutine and writes
// its URL to 'output'.
func Launch(addr string, output io.Writer) {
	if addr == "" {
		addr = DefaultAddr
	}

	go func() {
		viewer.SetConfiguration(viewer.WithAddr(addr))
		mgr := statsview.New()
		mgr.Start()
	}()

	fmt.Fprintf(output, "stats server available at http://%s%s\n", addr, url)
}
