// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gdb_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/beevik/gdb6502/cpu"
	"github.com/beevik/gdb6502/gdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := gdb.NewServer(gdb.Config{Arch: cpu.NMOS})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	// Two sessions run side by side, each with its own host.
	var clients []*client
	for range 2 {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
		clients = append(clients, &client{t: t, conn: conn, r: bufio.NewReader(conn)})
	}

	assert.Equal(t, "OK", clients[0].request("M200,1:aa"))
	assert.Equal(t, "00", clients[1].request("m200,1"))
	assert.Equal(t, "aa", clients[0].request("m200,1"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
