package copytransfer

import (
	"crypto/md5"
	"encoding/gob"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/eldenglass/vfsdiff/vfs"
)

// Checkpoint records the in-progress state of one resumable copy.
type Checkpoint struct {
	SourcePath      string
	DestinationPath string
	TotalBytes      int64
	BytesCopied     int64
	SourceDigest    vfs.Digest // full-content digest of the source at checkpoint creation, re-checked before resuming
	PrefixDigest    vfs.Digest
	Timestamp       time.Time
}

// checkpointName is a deterministic, portable filename derived from
// the (source, dest) pair: an MD5 digest of "source→destination". MD5
// is used purely as a 128-bit stable identifier here, not for its
// collision resistance.
func checkpointName(source, dest string) string {
	sum := md5.Sum([]byte(source + "→" + dest))
	return hex.EncodeToString(sum[:]) + ".checkpoint"
}

func checkpointPath(dir, source, dest string) string {
	return filepath.Join(dir, checkpointName(source, dest))
}

func loadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vfs.NewError(vfs.KindIO, "load_checkpoint", vfs.Path(path), err)
	}
	defer f.Close()
	var cp Checkpoint
	if err := gob.NewDecoder(f).Decode(&cp); err != nil {
		return nil, vfs.NewError(vfs.KindConfig, "load_checkpoint", vfs.Path(path), err)
	}
	return &cp, nil
}

// saveCheckpoint overwrites the checkpoint file atomically via a
// temp-file-then-rename, the same pattern the archive VFSes use for
// flush.
func saveCheckpoint(path string, cp *Checkpoint) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "save_checkpoint", vfs.Path(path), err)
	}
	if err := gob.NewEncoder(f).Encode(cp); err != nil {
		f.Close()
		return vfs.NewError(vfs.KindIO, "save_checkpoint", vfs.Path(path), err)
	}
	if err := f.Close(); err != nil {
		return vfs.NewError(vfs.KindIO, "save_checkpoint", vfs.Path(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return vfs.NewError(vfs.KindIO, "save_checkpoint", vfs.Path(path), err)
	}
	return nil
}

func removeCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return vfs.NewError(vfs.KindIO, "remove_checkpoint", vfs.Path(path), err)
	}
	return nil
}
