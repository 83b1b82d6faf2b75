// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdb

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/host"
	"github.com/beevik/gdb6502/loader"
	"github.com/beevik/gdb6502/logger"
	"golang.org/x/sync/errgroup"
)

// Config holds the settings applied to every session of a server.
type Config struct {
	Arch    cpu.Architecture // architecture of each emulated CPU
	Image   *loader.Image    // image loaded at session start, may be nil
	Console io.Writer        // copy of program output, may be nil
}

// A Server accepts debugger connections and serves each with its own
// emulated host.
type Server struct {
	cfg      Config
	sessions atomic.Int64
}

// NewServer creates a server using the configuration 'cfg'.
func NewServer(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Serve accepts connections on 'ln' until 'ctx' is cancelled or accepting
// fails. It waits for all sessions to end before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	logger.Logf(logger.TagServer, "listening on %s", ln.Addr())

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				acceptErr = err
			}
			break
		}
		g.Go(func() error {
			return s.ServeConn(ctx, conn)
		})
	}

	// Stop the remaining sessions.
	cancel()
	g.Wait()
	return acceptErr
}

// ServeConn serves a single debugger connection until it ends.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	id := s.sessions.Add(1)
	logger.Logf(logger.TagServer, "session %d started", id)

	h := host.New(s.cfg.Arch)
	defer h.Close()
	if s.cfg.Image != nil {
		h.LoadImage(s.cfg.Image)
	}

	sess := NewSession(rwc, h, s.cfg.Console)
	err := sess.Serve(ctx)
	rwc.Close()

	if err != nil {
		logger.Logf(logger.TagServer, "session %d ended: %v", id, err)
	} else {
		logger.Logf(logger.TagServer, "session %d ended", id)
	}
	return nil
}
