// Package sftpvfs provides a VFS over an SFTP server. A single
// persistent SSH/SFTP session backs the whole VFS instance; upstream
// sftp.Client sessions aren't safe for concurrent use so every
// operation is serialized behind a mutex.
package sftpvfs

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/eldenglass/vfsdiff/vfs"
)

// timeout bounds establishing the TCP connection of the SSH dial
// (ssh.ClientConfig.Timeout). Reads and writes on the established
// session carry no deadline.
const timeout = 30 * time.Second

// AuthMethod selects how the VFS authenticates to the server.
type AuthMethod int

const (
	AuthPassword AuthMethod = iota
	AuthKeyFile
	AuthAgent
)

// Options configures a connection.
type Options struct {
	Host     string
	Port     int
	User     string
	Auth     AuthMethod
	Password string
	// KeyFile and Passphrase are used when Auth is AuthKeyFile.
	KeyFile    string
	Passphrase string
	// Root is the path on the remote server this VFS is rooted at.
	Root string
}

// VFS is a VFS backed by one SFTP session.
type VFS struct {
	opt    Options
	client *sftp.Client
	conn   *ssh.Client

	mu sync.Mutex
}

// Dial opens an SSH connection and SFTP session per opt.
func Dial(opt Options) (*VFS, error) {
	auth, err := authMethod(opt)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            opt.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host key pinning is a CLI-layer config concern
		Timeout:         timeout,
	}
	addr := net.JoinHostPort(opt.Host, portOrDefault(opt.Port))
	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "dial", "", err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, vfs.NewError(vfs.KindIO, "dial", "", err)
	}
	return &VFS{opt: opt, client: client, conn: conn}, nil
}

func portOrDefault(p int) string {
	if p == 0 {
		return "22"
	}
	return fmt.Sprintf("%d", p)
}

func authMethod(opt Options) (ssh.AuthMethod, error) {
	switch opt.Auth {
	case AuthPassword:
		return ssh.Password(opt.Password), nil
	case AuthKeyFile:
		signer, err := loadKeyFile(opt.KeyFile, opt.Passphrase)
		if err != nil {
			return nil, vfs.NewError(vfs.KindConfig, "auth", "", err)
		}
		return ssh.PublicKeys(signer), nil
	case AuthAgent:
		return agentAuth()
	default:
		return nil, vfs.NewError(vfs.KindConfig, "auth", "", fmt.Errorf("unknown auth method"))
	}
}

// Close tears down the SSH connection.
func (v *VFS) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	cerr := v.client.Close()
	if err := v.conn.Close(); err != nil && cerr == nil {
		cerr = err
	}
	return cerr
}

func (v *VFS) remotePath(p vfs.Path) string {
	return path.Join(append([]string{v.opt.Root}, p.Split()...)...)
}

func (v *VFS) InstanceID() string {
	return fmt.Sprintf("sftp:%s@%s:%d%s", v.opt.User, v.opt.Host, v.opt.Port, v.opt.Root)
}

func (v *VFS) Metadata(p vfs.Path) (vfs.Metadata, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fi, err := v.client.Lstat(v.remotePath(p))
	if err != nil {
		if sftpNotExist(err) {
			return vfs.Metadata{}, vfs.NewError(vfs.KindNotFound, "metadata", p, err)
		}
		return vfs.Metadata{}, vfs.NewError(vfs.KindIO, "metadata", p, err)
	}
	return vfs.Metadata{
		Size: fi.Size(), ModTime: fi.ModTime(), IsDir: fi.IsDir(),
		IsSymlink: fi.Mode()&0o170000 == 0o120000,
	}, nil
}

func (v *VFS) ReadDir(p vfs.Path) ([]vfs.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	infos, err := v.client.ReadDir(v.remotePath(p))
	if err != nil {
		if sftpNotExist(err) {
			return nil, vfs.NewError(vfs.KindNotFound, "read_dir", p, err)
		}
		return nil, vfs.NewError(vfs.KindIO, "read_dir", p, err)
	}
	entries := make([]vfs.Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, vfs.Entry{
			Path: vfs.Join(p, fi.Name()), Size: fi.Size(), ModTime: fi.ModTime(), IsDir: fi.IsDir(),
		})
	}
	return entries, nil
}

// OpenFile reads the whole file into memory and returns a cursor over
// it: SFTP sessions aren't thread-safe for concurrent reads, so
// streaming directly off the shared session would serialize every
// consumer on the session lock for the file's entire lifetime.
func (v *VFS) OpenFile(p vfs.Path) (vfs.ReadStream, error) {
	v.mu.Lock()
	f, err := v.client.Open(v.remotePath(p))
	if err != nil {
		v.mu.Unlock()
		if sftpNotExist(err) {
			return nil, vfs.NewError(vfs.KindNotFound, "open_file", p, err)
		}
		return nil, vfs.NewError(vfs.KindIO, "open_file", p, err)
	}
	var buf bytes.Buffer
	_, err = io.Copy(&buf, f)
	f.Close()
	v.mu.Unlock()
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open_file", p, err)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

func (v *VFS) CreateFile(p vfs.Path) (vfs.WriteSink, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.mkdirAllLocked(path.Dir(v.remotePath(p))); err != nil {
		return nil, err
	}
	f, err := v.client.Create(v.remotePath(p))
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "create_file", p, err)
	}
	return f, nil
}

func (v *VFS) WriteFile(p vfs.Path, data []byte) error {
	sink, err := v.CreateFile(p)
	if err != nil {
		return err
	}
	if _, err := sink.Write(data); err != nil {
		sink.Close()
		return vfs.NewError(vfs.KindIO, "write_file", p, err)
	}
	return sink.Close()
}

func (v *VFS) RemoveFile(p vfs.Path) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.client.Remove(v.remotePath(p)); err != nil {
		if sftpNotExist(err) {
			return vfs.NewError(vfs.KindNotFound, "remove_file", p, err)
		}
		return vfs.NewError(vfs.KindIO, "remove_file", p, err)
	}
	return nil
}

// CopyFile is emulated as download+upload: SFTP has no server-side
// copy verb.
func (v *VFS) CopyFile(src, dest vfs.Path) error {
	rc, err := v.OpenFile(src)
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "copy_file", dest, err)
	}
	return v.WriteFile(dest, data)
}

func (v *VFS) Rename(from, to vfs.Path) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.mkdirAllLocked(path.Dir(v.remotePath(to))); err != nil {
		return err
	}
	if err := v.client.Rename(v.remotePath(from), v.remotePath(to)); err != nil {
		return vfs.NewError(vfs.KindIO, "rename", from, err)
	}
	return nil
}

func (v *VFS) CreateDir(p vfs.Path) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.client.Mkdir(v.remotePath(p)); err != nil {
		return vfs.NewError(vfs.KindIO, "create_dir", p, err)
	}
	return nil
}

func (v *VFS) CreateDirAll(p vfs.Path) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mkdirAllLocked(v.remotePath(p))
}

func (v *VFS) mkdirAllLocked(remote string) error {
	if err := v.client.MkdirAll(remote); err != nil {
		return vfs.NewError(vfs.KindIO, "create_dir_all", vfs.Path(remote), err)
	}
	return nil
}

func (v *VFS) SetMTime(p vfs.Path, t time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.client.Chtimes(v.remotePath(p), t, t); err != nil {
		return vfs.NewError(vfs.KindIO, "set_mtime", p, err)
	}
	return nil
}

func (v *VFS) Flush() error { return nil }

func (v *VFS) Capabilities() vfs.Capabilities {
	return vfs.Capabilities{
		CanRead: true, CanWrite: true, CanDelete: true,
		CanRename: true, CanCreateDir: true, CanSetMTime: true,
	}
}
func (v *VFS) IsWritable() bool { return vfs.IsWritableFromCapabilities(v.Capabilities()) }

func sftpNotExist(err error) bool {
	se, ok := err.(*sftp.StatusError)
	return ok && se.Code == 2 // SSH_FX_NO_SUCH_FILE
}
