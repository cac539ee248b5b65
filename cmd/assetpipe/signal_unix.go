// Unix signal handling for graceful shutdown.
//
// SIGINT (Ctrl+C) stops the dev server from a terminal; SIGTERM is what
// process managers and container runtimes send.

//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals cancel the root context.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
