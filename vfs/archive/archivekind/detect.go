// Package archivekind detects which archive VFS backend should open a
// given archive file, by filename suffix.
package archivekind

import "strings"

// Kind identifies a family of archive VFS backend.
type Kind int

const (
	None Kind = iota
	Zip
	Tar
	TarGz
	SevenZip
	Rar
	// Compressed covers single-file codecs (.gz, .bz2, .xz) that are
	// not the GZIP-framing of a TAR archive.
	Compressed
)

// Detect inspects name's suffix and reports which archive VFS, if
// any, should open it. TarGz is reported before the Compressed
// detector would otherwise claim the trailing ".gz": .tar.gz/.tgz are
// excluded from single-file compressed detection per spec §4.D.
func Detect(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz
	case strings.HasSuffix(lower, ".tar"):
		return Tar
	case strings.HasSuffix(lower, ".zip"):
		return Zip
	case strings.HasSuffix(lower, ".7z"):
		return SevenZip
	case strings.HasSuffix(lower, ".rar"):
		return Rar
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".bz2"), strings.HasSuffix(lower, ".xz"):
		return Compressed
	default:
		return None
	}
}

func (k Kind) String() string {
	switch k {
	case Zip:
		return "zip"
	case Tar:
		return "tar"
	case TarGz:
		return "tar.gz"
	case SevenZip:
		return "7z"
	case Rar:
		return "rar"
	case Compressed:
		return "compressed"
	default:
		return "none"
	}
}
