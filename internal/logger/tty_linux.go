package logger

import (
	"syscall"
	"unsafe"
)

// tcgets is Linux's ioctl request number for reading terminal attributes;
// it differs from the BSD/macOS TIOCGETA used in tty_unix.go.
const tcgets = 0x5401

// isTTY reports whether fd refers to a terminal.
func isTTY(fd uintptr) bool {
	var t syscall.Termios
	_, _, errno := syscall.Syscall6(
		syscall.SYS_IOCTL,
		fd,
		tcgets,
		uintptr(unsafe.Pointer(&t)),
		0, 0, 0,
	)
	return errno == 0
}
