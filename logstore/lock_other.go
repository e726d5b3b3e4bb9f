// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build !unix

package logstore

// fileLock is a no-op where flock is unavailable. The in-process RWMutex
// still serialises access within one process.
func fileLock(string, bool) (func(), error) {
	return func() {}, nil
}
