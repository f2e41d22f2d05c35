// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command demux is the standard-stream demultiplexer spawned alongside
// a multi-node job: it listens on two sockets (stdout and stderr
// planes), validates the JOBCOOKIE environment cookie on every inbound
// connection, and copies stream bytes line-buffered to its own
// stdout/stderr until its parent exits.
//
// Exit codes: 3 when JOBCOOKIE is unset, 2 when a listen address can't
// be resolved, 5 when a listener can't be established, 1 on an I/O error.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/jontk/batchsched/internal/demux"
	"github.com/jontk/batchsched/pkg/logging"
)

const (
	exitIOError     = 1
	exitAllocFailed = 2
	exitNoCookie    = 3
	exitListenFail  = 5
)

func main() {
	outAddr := flag.String("out", "127.0.0.1:0", "listen address for the stdout plane")
	errAddr := flag.String("err", "127.0.0.1:0", "listen address for the stderr plane")
	flag.Parse()

	cookie := os.Getenv("JOBCOOKIE")
	if cookie == "" {
		fmt.Fprintln(os.Stderr, "demux: JOBCOOKIE not set")
		os.Exit(exitNoCookie)
	}

	stdout := bufio.NewWriter(os.Stdout)
	stderr := bufio.NewWriter(os.Stderr)

	outTCP, err := net.ResolveTCPAddr("tcp", *outAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demux: resolve %s: %v\n", *outAddr, err)
		os.Exit(exitAllocFailed)
	}
	errTCP, err := net.ResolveTCPAddr("tcp", *errAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demux: resolve %s: %v\n", *errAddr, err)
		os.Exit(exitAllocFailed)
	}

	outL, err := net.ListenTCP("tcp", outTCP)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demux: listen %s: %v\n", *outAddr, err)
		os.Exit(exitListenFail)
	}
	errL, err := net.ListenTCP("tcp", errTCP)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demux: listen %s: %v\n", *errAddr, err)
		os.Exit(exitListenFail)
	}

	// The bound addresses go to the spawning daemon via stderr before
	// any stream data flows.
	fmt.Fprintf(os.Stderr, "demux: out=%s err=%s\n", outL.Addr(), errL.Addr())

	ppid := os.Getppid()
	d := demux.New(demux.Config{
		Cookie: cookie,
		Out:    outL,
		Err:    errL,
		Stdout: stdout,
		Stderr: stderr,
		ParentAlive: func() bool {
			// Signal 0 probes existence without delivering anything.
			err := syscall.Kill(ppid, 0)
			return !errors.Is(err, syscall.ESRCH)
		},
		Logger: logging.NoOpLogger{},
	})

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "demux: %v\n", err)
		os.Exit(exitIOError)
	}

	stdout.Flush()
	stderr.Flush()
}
