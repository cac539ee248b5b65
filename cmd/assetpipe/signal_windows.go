// Windows signal handling for graceful shutdown.
//
// Windows has no SIGTERM. The Go runtime maps Ctrl+C, CTRL_BREAK_EVENT and
// console-close events to os.Interrupt.

//go:build windows

package main

import "os"

// shutdownSignals cancel the root context.
var shutdownSignals = []os.Signal{os.Interrupt}
