//go:build darwin

package term

import "golang.org/x/sys/unix"

// Platform-specific ioctl constants for macOS
const ioctlGetTermios = unix.TIOCGETA
