// Terminal detection for progress output.
//
// The CLI rewrites a single progress line in place when stderr is an
// interactive terminal, and falls back to plain log lines when it is a pipe
// or a file.
//
// Copyright (C) 2026  Arc Welder Go Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package term

import (
	"os"

	"golang.org/x/sys/unix"
)

// IsTerminal reports whether the file descriptor refers to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	_, err := unix.IoctlGetTermios(int(f.Fd()), ioctlGetTermios)
	return err == nil
}
