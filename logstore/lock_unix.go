// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build unix

package logstore

import (
	"os"

	"golang.org/x/sys/unix"
)

// fileLock takes an advisory flock on a sidecar file so separate processes
// (the daemon and a one-off CLI invocation) coordinate on the same log.
// The sidecar is used because Clear replaces the log file's inode.
func fileLock(path string, exclusive bool) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) // #nosec G304
	if err != nil {
		return nil, err
	}

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err = unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
