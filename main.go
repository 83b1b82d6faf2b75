// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/gdb"
	"github.com/beevik/gdb6502/loader"
	"github.com/beevik/gdb6502/logger"
	"github.com/beevik/gdb6502/statsview"
	"github.com/beevik/term"
)

var (
	listen    string
	arch      string
	load      string
	origin    uint
	stats     bool
	statsAddr string
	verbose   bool
	quiet     bool
)

func init() {
	flag.StringVar(&listen, "listen", "localhost:9001", "address to accept debugger connections on")
	flag.StringVar(&arch, "arch", "6502", "CPU architecture (6502 or 65c02)")
	flag.StringVar(&load, "load", "", "ELF or raw binary image loaded into every session")
	flag.UintVar(&origin, "origin", 0x0200, "load address of a raw binary image")
	flag.BoolVar(&stats, "statsview", false, "serve runtime statistics")
	flag.StringVar(&statsAddr, "statsaddr", statsview.DefaultAddr, "address of the statistics server")
	flag.BoolVar(&verbose, "v", false, "echo the log to stderr even when it is not a terminal")
	flag.BoolVar(&quiet, "q", false, "do not echo the log or program output")
	flag.CommandLine.Usage = func() {
		fmt.Println("Usage: gdb6502 [options]\nOptions:")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if !quiet && (verbose || term.IsTerminal(int(os.Stderr.Fd()))) {
		logger.SetEcho(os.Stderr)
	}

	cfg := gdb.Config{}
	switch strings.ToLower(arch) {
	case "6502", "nmos":
		cfg.Arch = cpu.NMOS
	case "65c02", "cmos":
		cfg.Arch = cpu.CMOS
	default:
		exitOnError(fmt.Errorf("unknown architecture '%s'", arch))
	}

	if load != "" {
		if origin > 0xffff {
			exitOnError(fmt.Errorf("origin $%X is out of range", origin))
		}
		img, err := loader.LoadFile(load, uint16(origin))
		if err != nil {
			exitOnError(err)
		}
		cfg.Image = img
	}

	if !quiet {
		cfg.Console = os.Stdout
	}

	if stats {
		statsview.Launch(statsAddr, os.Stderr)
	}

	// Stop serving on Ctrl-C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		exitOnError(err)
	}

	logger.Logf(logger.TagServer, "emulating %s", cfg.Arch)
	srv := gdb.NewServer(cfg)
	if err := srv.Serve(ctx, ln); err != nil {
		exitOnError(err)
	}
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
