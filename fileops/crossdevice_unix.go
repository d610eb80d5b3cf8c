//go:build !windows

package fileops

import (
	"errors"
	"os"
	"syscall"
)

// isCrossDevice reports whether err is the platform's "different
// filesystem" rename failure (EXDEV on Unix).
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		err = linkErr.Err
	}
	return errors.Is(err, syscall.EXDEV)
}
