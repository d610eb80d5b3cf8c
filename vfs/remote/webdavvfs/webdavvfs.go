// Package webdavvfs provides a VFS over a WebDAV server. Operations
// map onto PROPFIND (depth 0/1), GET, PUT, DELETE, COPY, MOVE and
// MKCOL; PROPFIND responses are parsed for resourcetype,
// getcontentlength and getlastmodified.
package webdavvfs

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/eldenglass/vfsdiff/vfs"
)

// AuthKind selects the authentication scheme used on every request.
type AuthKind int

const (
	AuthNone AuthKind = iota
	AuthBasic
	AuthDigest
	AuthBearer
)

// Options configures a connection.
type Options struct {
	Endpoint string // base URL, e.g. "https://dav.example.com/remote.php/webdav"
	Root     string
	Auth     AuthKind
	User     string
	Pass     string
	Token    string // for AuthBearer
}

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 30 * time.Second
)

// VFS is a VFS backed by one WebDAV HTTP client.
type VFS struct {
	opt    Options
	client *http.Client
}

// New constructs a WebDAV VFS. Credentials are attached up front to
// every request: AuthBearer sends the token, and both AuthBasic and
// AuthDigest send Basic credentials. No Digest challenge-response is
// performed and no request is retried.
func New(opt Options) *VFS {
	return &VFS{
		opt: opt,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
			},
		},
	}
}

func (v *VFS) InstanceID() string { return "webdav:" + v.opt.Endpoint + v.opt.Root }

func (v *VFS) url(p vfs.Path) string {
	full := path.Join(append([]string{v.opt.Root}, p.Split()...)...)
	return strings.TrimRight(v.opt.Endpoint, "/") + "/" + strings.TrimLeft(full, "/")
}

func (v *VFS) newRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	switch v.opt.Auth {
	case AuthBasic, AuthDigest:
		req.SetBasicAuth(v.opt.User, v.opt.Pass)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+v.opt.Token)
	}
	return req, nil
}

func (v *VFS) propfind(p vfs.Path, depth string) (*multistatus, error) {
	req, err := v.newRequest("PROPFIND", v.url(p), nil)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "propfind", p, err)
	}
	req.Header.Set("Depth", depth)
	req.Header.Set("Content-Type", "application/xml")
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "propfind", p, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, vfs.NewError(vfs.KindNotFound, "propfind", p, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != 207 && resp.StatusCode != 200 {
		return nil, vfs.NewError(vfs.KindIO, "propfind", p, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "propfind", p, err)
	}
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, vfs.NewError(vfs.KindIO, "propfind", p, err)
	}
	return &ms, nil
}

func (v *VFS) Metadata(p vfs.Path) (vfs.Metadata, error) {
	ms, err := v.propfind(p, "0")
	if err != nil {
		return vfs.Metadata{}, err
	}
	if len(ms.Responses) == 0 {
		return vfs.Metadata{}, vfs.NewError(vfs.KindNotFound, "metadata", p, fmt.Errorf("empty multistatus"))
	}
	pr := ms.Responses[0].Props
	return vfs.Metadata{Size: pr.size(), ModTime: pr.modTime(), IsDir: pr.isCollection()}, nil
}

func (v *VFS) ReadDir(p vfs.Path) ([]vfs.Entry, error) {
	ms, err := v.propfind(p, "1")
	if err != nil {
		return nil, err
	}
	var entries []vfs.Entry
	selfHref := v.url(p)
	for _, r := range ms.Responses {
		if strings.TrimSuffix(r.Href, "/") == strings.TrimSuffix(selfHref, "/") {
			continue // PROPFIND depth 1 includes the directory itself
		}
		name := hrefToName(r.Href)
		entries = append(entries, vfs.Entry{
			Path: vfs.Join(p, name), Size: r.Props.size(), ModTime: r.Props.modTime(), IsDir: r.Props.isCollection(),
		})
	}
	return entries, nil
}

func (v *VFS) OpenFile(p vfs.Path) (vfs.ReadStream, error) {
	req, err := v.newRequest(http.MethodGet, v.url(p), nil)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open_file", p, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "open_file", p, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, vfs.NewError(vfs.KindNotFound, "open_file", p, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, vfs.NewError(vfs.KindIO, "open_file", p, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return resp.Body, nil
}

type putSink struct {
	v    *VFS
	path vfs.Path
	buf  bytes.Buffer
}

func (s *putSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *putSink) Close() error {
	req, err := s.v.newRequest(http.MethodPut, s.v.url(s.path), bytes.NewReader(s.buf.Bytes()))
	if err != nil {
		return vfs.NewError(vfs.KindIO, "create_file", s.path, err)
	}
	resp, err := s.v.client.Do(req)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "create_file", s.path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return vfs.NewError(vfs.KindIO, "create_file", s.path, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// CreateFile buffers in memory and PUTs on Close, the same pattern
// used by the S3 write sink: WebDAV PUT has no append semantics.
func (v *VFS) CreateFile(p vfs.Path) (vfs.WriteSink, error) {
	if err := v.ensureParents(p); err != nil {
		return nil, err
	}
	return &putSink{v: v, path: p}, nil
}

func (v *VFS) ensureParents(p vfs.Path) error {
	dir := p.Dir()
	if dir.IsEmpty() {
		return nil
	}
	return v.CreateDirAll(dir)
}

func (v *VFS) WriteFile(p vfs.Path, data []byte) error {
	sink, err := v.CreateFile(p)
	if err != nil {
		return err
	}
	if _, err := sink.Write(data); err != nil {
		return vfs.NewError(vfs.KindIO, "write_file", p, err)
	}
	return sink.Close()
}

func (v *VFS) RemoveFile(p vfs.Path) error {
	req, err := v.newRequest(http.MethodDelete, v.url(p), nil)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "remove_file", p, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "remove_file", p, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return vfs.NewError(vfs.KindNotFound, "remove_file", p, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode/100 != 2 {
		return vfs.NewError(vfs.KindIO, "remove_file", p, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

func (v *VFS) CopyFile(src, dest vfs.Path) error {
	if err := v.ensureParents(dest); err != nil {
		return err
	}
	req, err := v.newRequest("COPY", v.url(src), nil)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "copy_file", dest, err)
	}
	req.Header.Set("Destination", v.url(dest))
	req.Header.Set("Overwrite", "T")
	resp, err := v.client.Do(req)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "copy_file", dest, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return vfs.NewError(vfs.KindIO, "copy_file", dest, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

func (v *VFS) Rename(from, to vfs.Path) error {
	if err := v.ensureParents(to); err != nil {
		return err
	}
	req, err := v.newRequest("MOVE", v.url(from), nil)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "rename", from, err)
	}
	req.Header.Set("Destination", v.url(to))
	req.Header.Set("Overwrite", "T")
	resp, err := v.client.Do(req)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "rename", from, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return vfs.NewError(vfs.KindIO, "rename", from, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

func (v *VFS) CreateDir(p vfs.Path) error {
	req, err := v.newRequest("MKCOL", v.url(p), nil)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "create_dir", p, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return vfs.NewError(vfs.KindIO, "create_dir", p, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return vfs.NewError(vfs.KindIO, "create_dir", p, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

func (v *VFS) CreateDirAll(p vfs.Path) error {
	parts := p.Split()
	var cur vfs.Path
	for _, part := range parts {
		cur = vfs.Join(cur, part)
		if meta, err := v.Metadata(cur); err == nil && meta.IsDir {
			continue
		}
		if err := v.CreateDir(cur); err != nil && !vfs.IsKind(err, vfs.KindIO) {
			return err
		}
	}
	return nil
}

// SetMTime is unsupported: WebDAV's PROPPATCH can't portably set
// getlastmodified across servers, per spec §4.E.
func (v *VFS) SetMTime(p vfs.Path, _ time.Time) error {
	return vfs.NewError(vfs.KindUnsupported, "set_mtime", p, fmt.Errorf("webdav does not support setting mtime"))
}

func (v *VFS) Flush() error { return nil }

func (v *VFS) Capabilities() vfs.Capabilities {
	return vfs.Capabilities{
		CanRead: true, CanWrite: true, CanDelete: true,
		CanRename: true, CanCreateDir: true, CanSetMTime: false,
	}
}
func (v *VFS) IsWritable() bool { return vfs.IsWritableFromCapabilities(v.Capabilities()) }
