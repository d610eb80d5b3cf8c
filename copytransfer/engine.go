// Package copytransfer implements the resumable copy engine described
// in §4.J: large transfers are chunked, checkpointed periodically, and
// can resume from where a previous attempt left off after validating
// the destination's already-written prefix against a stored digest.
package copytransfer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"lukechampine.com/blake3"

	"github.com/eldenglass/vfsdiff/vfs"
)

const (
	// Threshold below which a copy is single-shot with no checkpoint.
	Threshold = 50 * 1024 * 1024
	// ChunkSize is the read/write granularity during a chunked copy.
	ChunkSize = 4 * 1024 * 1024
	// CheckpointInterval is how many bytes pass between checkpoint
	// file rewrites.
	CheckpointInterval = 100 * 1024 * 1024
)

// Options configures one Copy call.
type Options struct {
	// CheckpointDir holds one checkpoint file per in-progress transfer.
	CheckpointDir string
}

// Result reports the outcome of a Copy.
type Result struct {
	BytesCopied int64
	Resumed     bool
	Checkpoint  bool // true if a checkpoint file was used at all (size >= Threshold)
}

// Copy transfers source to dest per §4.J: small files copy in one
// shot; large files are resumed from any valid checkpoint and
// progress is checkpointed every CheckpointInterval bytes.
func Copy(source, dest string, opt Options) (Result, error) {
	srcInfo, err := os.Stat(source)
	if err != nil {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(source), err)
	}
	if srcInfo.Size() < Threshold {
		return singleShotCopy(source, dest, srcInfo)
	}
	return chunkedCopy(source, dest, srcInfo, opt)
}

func singleShotCopy(source, dest string, srcInfo os.FileInfo) (Result, error) {
	in, err := os.Open(source)
	if err != nil {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(source), err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o777); err != nil {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
	}

	h := blake3.New(32, nil)
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err != nil {
		out.Close()
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
	}
	if err := out.Close(); err != nil {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
	}

	srcDigest := digestFrom(h)
	destDigest, err := hashFile(dest)
	if err != nil {
		return Result{}, err
	}
	if srcDigest != destDigest {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), errMismatch(source, dest))
	}
	if err := os.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
	}
	return Result{BytesCopied: n}, nil
}

func chunkedCopy(source, dest string, srcInfo os.FileInfo, opt Options) (Result, error) {
	cpPath := checkpointPath(opt.CheckpointDir, source, dest)

	srcDigest, err := hashFile(source)
	if err != nil {
		return Result{}, err
	}

	cp, resumed, err := validateCheckpoint(cpPath, source, dest, srcInfo, srcDigest)
	if err != nil {
		return Result{}, err
	}

	in, err := os.Open(source)
	if err != nil {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(source), err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o777); err != nil {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
	}

	var out *os.File
	var h *blake3.Hasher
	if resumed {
		if _, err := in.Seek(cp.BytesCopied, io.SeekStart); err != nil {
			return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(source), err)
		}
		out, err = os.OpenFile(dest, os.O_WRONLY, 0o666)
		if err != nil {
			return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
		}
		if _, err := out.Seek(cp.BytesCopied, io.SeekStart); err != nil {
			out.Close()
			return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
		}
		h, err = rehashPrefix(dest, cp.BytesCopied)
		if err != nil {
			out.Close()
			return Result{}, err
		}
	} else {
		out, err = os.Create(dest)
		if err != nil {
			return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
		}
		h = blake3.New(32, nil)
		cp = &Checkpoint{SourcePath: source, DestinationPath: dest, TotalBytes: srcInfo.Size(), SourceDigest: srcDigest}
	}

	buf := make([]byte, ChunkSize)
	var sinceCheckpoint int64
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), werr)
			}
			h.Write(buf[:n])
			cp.BytesCopied += int64(n)
			sinceCheckpoint += int64(n)
		}
		if sinceCheckpoint >= CheckpointInterval {
			if err := snapshotCheckpoint(cp, dest, opt.CheckpointDir); err != nil {
				out.Close()
				return Result{}, err
			}
			sinceCheckpoint = 0
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(source), rerr)
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
	}
	if err := out.Close(); err != nil {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
	}

	destDigest, err := hashFile(dest)
	if err != nil {
		return Result{}, err
	}
	if destDigest != srcDigest {
		// Leave the checkpoint in place for diagnosis, per §4.J.h.
		return Result{BytesCopied: cp.BytesCopied, Resumed: resumed, Checkpoint: true},
			vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), errMismatch(source, dest))
	}
	if err := os.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return Result{}, vfs.NewError(vfs.KindIO, "copy", vfs.Path(dest), err)
	}
	if err := removeCheckpoint(cpPath); err != nil {
		return Result{}, err
	}
	return Result{BytesCopied: cp.BytesCopied, Resumed: resumed, Checkpoint: true}, nil
}

// validateCheckpoint implements §4.J.b: a checkpoint is usable only if
// the source size and full content digest still match, the destination
// exists with exactly bytes_copied bytes, and rehashing that prefix
// matches the stored prefix digest. The source digest check catches a
// same-size source edit between attempts that the size check alone
// would miss. Any failure discards both the checkpoint and the partial
// destination and starts fresh.
func validateCheckpoint(cpPath, source, dest string, srcInfo os.FileInfo, srcDigest vfs.Digest) (*Checkpoint, bool, error) {
	cp, err := loadCheckpoint(cpPath)
	if err != nil {
		return nil, false, err
	}
	if cp == nil {
		return nil, false, nil
	}
	if cp.TotalBytes != srcInfo.Size() {
		return discardCheckpoint(cpPath, dest)
	}
	if cp.SourceDigest != srcDigest {
		return discardCheckpoint(cpPath, dest)
	}
	destInfo, err := os.Stat(dest)
	if err != nil || destInfo.Size() != cp.BytesCopied {
		return discardCheckpoint(cpPath, dest)
	}
	prefixDigest, err := hashPrefix(dest, cp.BytesCopied)
	if err != nil {
		return discardCheckpoint(cpPath, dest)
	}
	if prefixDigest != cp.PrefixDigest {
		return discardCheckpoint(cpPath, dest)
	}
	return cp, true, nil
}

func discardCheckpoint(cpPath, dest string) (*Checkpoint, bool, error) {
	if err := removeCheckpoint(cpPath); err != nil {
		return nil, false, err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return nil, false, vfs.NewError(vfs.KindIO, "discard_checkpoint", vfs.Path(dest), err)
	}
	return nil, false, nil
}

func snapshotCheckpoint(cp *Checkpoint, dest, checkpointDir string) error {
	digest, err := hashPrefix(dest, cp.BytesCopied)
	if err != nil {
		return err
	}
	cp.PrefixDigest = digest
	cp.Timestamp = time.Now()
	return saveCheckpoint(checkpointPath(checkpointDir, cp.SourcePath, cp.DestinationPath), cp)
}

// rehashPrefix restores streaming-hasher state by replaying the
// destination's already-copied bytes, so a resumed copy ends with the
// same digest it would have had if never interrupted.
func rehashPrefix(dest string, n int64) (*blake3.Hasher, error) {
	h := blake3.New(32, nil)
	f, err := os.Open(dest)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "rehash", vfs.Path(dest), err)
	}
	defer f.Close()
	if _, err := io.CopyN(h, f, n); err != nil && err != io.EOF {
		return nil, vfs.NewError(vfs.KindIO, "rehash", vfs.Path(dest), err)
	}
	return h, nil
}

func hashPrefix(path string, n int64) (vfs.Digest, error) {
	h, err := rehashPrefix(path, n)
	if err != nil {
		return vfs.Digest{}, err
	}
	return digestFrom(h), nil
}

func hashFile(path string) (vfs.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return vfs.Digest{}, vfs.NewError(vfs.KindIO, "hash", vfs.Path(path), err)
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return vfs.Digest{}, vfs.NewError(vfs.KindIO, "hash", vfs.Path(path), err)
	}
	return digestFrom(h), nil
}

func digestFrom(h *blake3.Hasher) vfs.Digest {
	var d vfs.Digest
	copy(d[:], h.Sum(nil))
	return d
}

func errMismatch(source, dest string) error {
	return fmt.Errorf("digest mismatch copying %s to %s", source, dest)
}
