// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build windows

package app

import (
	"context"

	"github.com/soothill/battery-data-logger/pkg/logger"
)

// setupDebugSignalHandlers is a no-op on Windows as SIGUSR1/SIGUSR2 don't exist.
// The same state is available from the /api/sampler and /api/log/stats endpoints.
func setupDebugSignalHandlers(_ context.Context, _ *App) {
	logger.Debug().Msg("Debug signal handlers not available on Windows")
}
