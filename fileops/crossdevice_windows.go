//go:build windows

package fileops

import (
	"errors"
	"os"
	"syscall"
)

// errorNotSameDevice is ERROR_NOT_SAME_DEVICE from the Windows API.
const errorNotSameDevice syscall.Errno = 0x11

// isCrossDevice reports whether err is the platform's "different
// filesystem" rename failure (ERROR_NOT_SAME_DEVICE on Windows).
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		err = linkErr.Err
	}
	return errors.Is(err, errorNotSameDevice)
}
