package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/eldenglass/vfsdiff/compare"
	"github.com/eldenglass/vfsdiff/vfs/remote/s3vfs"
	"github.com/eldenglass/vfsdiff/vfs/remote/sftpvfs"
	"github.com/eldenglass/vfsdiff/vfs/remote/webdavvfs"
)

// openRemote dispatches a LEFT/RIGHT argument that parses as a URL with
// one of the scheme names below to the matching remote VFS backend, per
// spec §4.E. Credentials that shouldn't live in shell history or a
// process list (passwords, passphrases, bearer tokens) are read from
// environment variables rather than the URL itself.
func openRemote(raw string) (*openedTree, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing remote URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "s3":
		return openS3(u)
	case "sftp":
		return openSFTP(u)
	case "webdav", "webdavs":
		return openWebDAV(u)
	default:
		return nil, fmt.Errorf("unrecognized scheme %q", u.Scheme)
	}
}

// isRemoteURL reports whether raw names a scheme openRemote handles, so
// the caller can try it before falling back to stat-based local/archive
// resolution.
func isRemoteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "s3", "sftp", "webdav", "webdavs":
		return true
	default:
		return false
	}
}

// openS3 parses s3://bucket/prefix?region=...&endpoint=...&profile=...
func openS3(u *url.URL) (*openedTree, error) {
	opt := s3vfs.Options{
		Bucket:   u.Host,
		Prefix:   strings.Trim(u.Path, "/"),
		Region:   u.Query().Get("region"),
		Endpoint: u.Query().Get("endpoint"),
		Profile:  u.Query().Get("profile"),
	}
	v, err := s3vfs.Dial(opt)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.Redacted(), err)
	}
	return &openedTree{vfs: v, side: compare.Side{VFS: v}}, nil
}

// openSFTP parses sftp://user@host:port/root?auth=password|keyfile|agent&keyfile=...
// The password (auth=password, the default) comes from VFSDIFF_SFTP_PASSWORD;
// a key passphrase (auth=keyfile) comes from VFSDIFF_SFTP_PASSPHRASE.
func openSFTP(u *url.URL) (*openedTree, error) {
	port := 0
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parsing sftp port %q: %w", p, err)
		}
		port = n
	}
	opt := sftpvfs.Options{
		Host: u.Hostname(),
		Port: port,
		User: u.User.Username(),
		Root: u.Path,
	}
	switch u.Query().Get("auth") {
	case "keyfile":
		opt.Auth = sftpvfs.AuthKeyFile
		opt.KeyFile = u.Query().Get("keyfile")
		opt.Passphrase = os.Getenv("VFSDIFF_SFTP_PASSPHRASE")
	case "agent":
		opt.Auth = sftpvfs.AuthAgent
	default:
		opt.Auth = sftpvfs.AuthPassword
		opt.Password = os.Getenv("VFSDIFF_SFTP_PASSWORD")
	}
	v, err := sftpvfs.Dial(opt)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.Redacted(), err)
	}
	return &openedTree{vfs: v, side: compare.Side{VFS: v}}, nil
}

// openWebDAV parses webdav(s)://host/root?auth=none|basic|digest|bearer&user=...
// A bearer token comes from VFSDIFF_WEBDAV_TOKEN; a Basic/Digest password
// comes from VFSDIFF_WEBDAV_PASSWORD.
func openWebDAV(u *url.URL) (*openedTree, error) {
	scheme := "https"
	if u.Scheme == "webdav" {
		scheme = "http"
	}
	opt := webdavvfs.Options{
		Endpoint: scheme + "://" + u.Host,
		Root:     u.Path,
		User:     u.Query().Get("user"),
	}
	switch u.Query().Get("auth") {
	case "basic":
		opt.Auth = webdavvfs.AuthBasic
		opt.Pass = os.Getenv("VFSDIFF_WEBDAV_PASSWORD")
	case "digest":
		opt.Auth = webdavvfs.AuthDigest
		opt.Pass = os.Getenv("VFSDIFF_WEBDAV_PASSWORD")
	case "bearer":
		opt.Auth = webdavvfs.AuthBearer
		opt.Token = os.Getenv("VFSDIFF_WEBDAV_TOKEN")
	default:
		opt.Auth = webdavvfs.AuthNone
	}
	v := webdavvfs.New(opt)
	return &openedTree{vfs: v, side: compare.Side{VFS: v}}, nil
}
