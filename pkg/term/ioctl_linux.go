//go:build linux

package term

import "golang.org/x/sys/unix"

// Platform-specific ioctl constants for Linux
const ioctlGetTermios = unix.TCGETS
