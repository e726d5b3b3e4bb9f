// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build !windows

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// setupDebugSignalHandlers sets up debug signal handlers (SIGUSR1, SIGUSR2)
// SIGUSR1: Dump current application state (sampler, log, mirrors)
// SIGUSR2: Dump goroutine stack traces
//
// Usage:
//
//	kill -USR1 <pid>  # Dump application state
//	kill -USR2 <pid>  # Dump goroutine stack traces
func setupDebugSignalHandlers(ctx context.Context, application *App) {
	debugSigChan := make(chan os.Signal, 2)
	signal.Notify(debugSigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer signal.Stop(debugSigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-debugSigChan:
				switch sig {
				case syscall.SIGUSR1:
					application.DumpApplicationState()
				case syscall.SIGUSR2:
					DumpGoroutineStackTraces()
				}
			}
		}
	}()
}
