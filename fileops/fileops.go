// Package fileops is the copy/move/delete/touch façade used by the
// CLI layer: every operation honors two orthogonal modifiers, dry-run
// (log only) and soft-delete (route deletions through the OS trash),
// and batch variants run element-wise in parallel.
package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rkoesters/xdg/trash"
	"github.com/sirupsen/logrus"

	"github.com/eldenglass/vfsdiff/copytransfer"
)

// Options controls the two cross-cutting modifiers every operation in
// this package respects.
type Options struct {
	DryRun     bool
	SoftDelete bool
	Log        *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logrus.StandardLogger()
}

// Copy copies source to dest, preserving source mtime, using the
// resumable engine for large files.
func Copy(source, dest string, cpOpt copytransfer.Options, opt Options) error {
	if opt.DryRun {
		opt.logger().Infof("would copy %s -> %s", source, dest)
		return nil
	}
	_, err := copytransfer.Copy(source, dest, cpOpt)
	return err
}

// Move attempts a same-filesystem rename first, falling back to
// copy+delete when the rename fails across filesystems (EXDEV on
// Unix, ERROR_NOT_SAME_DEVICE on Windows).
func Move(source, dest string, cpOpt copytransfer.Options, opt Options) error {
	if opt.DryRun {
		opt.logger().Infof("would move %s -> %s", source, dest)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o777); err != nil {
		return fmt.Errorf("move %s: %w", source, err)
	}
	err := os.Rename(source, dest)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("move %s -> %s: %w", source, dest, err)
	}
	opt.logger().Debugf("cross-device move %s -> %s, falling back to copy+delete", source, dest)
	if _, err := copytransfer.Copy(source, dest, cpOpt); err != nil {
		return err
	}
	return Delete(source, opt)
}

// Delete removes path, routing to the OS trash when SoftDelete is set.
func Delete(path string, opt Options) error {
	if opt.DryRun {
		if opt.SoftDelete {
			opt.logger().Infof("would trash %s", path)
		} else {
			opt.logger().Infof("would delete %s", path)
		}
		return nil
	}
	if opt.SoftDelete {
		if err := trash.Trash(path); err != nil {
			return fmt.Errorf("trash %s: %w", path, err)
		}
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Touch creates path if absent, or updates its mtime to now.
func Touch(path string, opt Options) error {
	if opt.DryRun {
		opt.logger().Infof("would touch %s", path)
		return nil
	}
	now := time.Now()
	if f, err := os.OpenFile(path, os.O_RDONLY, 0); err == nil {
		f.Close()
		return os.Chtimes(path, now, now)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("touch %s: %w", path, err)
	}
	return f.Close()
}

// Pair is one (source, destination) element of a batch operation.
type Pair struct {
	Source string
	Dest   string
}

// BatchCopy runs Copy over every pair concurrently, returning the
// first error encountered (after all pairs have been attempted).
func BatchCopy(pairs []Pair, cpOpt copytransfer.Options, opt Options) error {
	return runBatch(len(pairs), func(i int) error {
		return Copy(pairs[i].Source, pairs[i].Dest, cpOpt, opt)
	})
}

// BatchDelete runs Delete over every path concurrently.
func BatchDelete(paths []string, opt Options) error {
	return runBatch(len(paths), func(i int) error {
		return Delete(paths[i], opt)
	})
}

func runBatch(n int, fn func(i int) error) error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn(i)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
