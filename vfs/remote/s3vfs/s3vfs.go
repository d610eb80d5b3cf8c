// Package s3vfs provides a VFS over an S3-compatible bucket. Metadata
// and directory listings are built from ListObjectsV2 with the "/"
// delimiter; directories have no first-class existence in S3 and are
// represented either by a common prefix returned in a listing or by a
// zero-length object with a trailing slash key.
package s3vfs

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/eldenglass/vfsdiff/vfs"
)

// connectTimeout and requestTimeout match the WebDAV remote VFS,
// per spec §5 ("HTTP-based remote VFSes (S3, WebDAV) use 30 s request +
// 10 s connect").
const (
	connectTimeout = 10 * time.Second
	requestTimeout = 30 * time.Second
)

// Options configures a connection to one bucket.
type Options struct {
	Bucket   string
	Prefix   string // root prefix within the bucket, no leading slash
	Region   string
	Endpoint string // non-empty for S3-compatible providers (minio, etc.)
	Profile  string
}

// VFS is a VFS backed by one S3 bucket/prefix.
type VFS struct {
	opt Options
	svc *s3.S3
}

// Dial builds an S3 client per opt using the standard AWS credential
// chain (env vars, shared config, EC2/ECS role), the same
// session.NewSessionWithOptions pattern the S3 backend uses.
func Dial(opt Options) (*VFS, error) {
	httpClient := &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSHandshakeTimeout: connectTimeout,
		},
	}
	cfg := aws.NewConfig().WithRegion(opt.Region).WithHTTPClient(httpClient)
	if opt.Endpoint != "" {
		cfg = cfg.WithEndpoint(opt.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		Profile:           opt.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "dial", "", err)
	}
	return &VFS{opt: opt, svc: s3.New(sess)}, nil
}

func (v *VFS) InstanceID() string {
	return fmt.Sprintf("s3://%s/%s", v.opt.Bucket, v.opt.Prefix)
}

func (v *VFS) key(p vfs.Path) string {
	full := strings.Trim(v.opt.Prefix, "/")
	parts := p.Split()
	if full == "" {
		return strings.Join(parts, "/")
	}
	if len(parts) == 0 {
		return full
	}
	return full + "/" + strings.Join(parts, "/")
}

func (v *VFS) dirKey(p vfs.Path) string {
	k := v.key(p)
	if k == "" {
		return ""
	}
	return k + "/"
}

func isNotFound(err error) bool {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound", "404":
		return true
	}
	return false
}

func (v *VFS) Metadata(p vfs.Path) (vfs.Metadata, error) {
	if p.IsEmpty() {
		return vfs.Metadata{IsDir: true}, nil
	}
	head, err := v.svc.HeadObject(&s3.HeadObjectInput{Bucket: aws.String(v.opt.Bucket), Key: aws.String(v.key(p))})
	if err == nil {
		return vfs.Metadata{Size: aws.Int64Value(head.ContentLength), ModTime: aws.TimeValue(head.LastModified)}, nil
	}
	if !isNotFound(err) {
		return vfs.Metadata{}, vfs.NewError(vfs.KindIO, "metadata", p, err)
	}
	// Not a plain object; check whether it exists as a directory prefix.
	out, err := v.svc.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket: aws.String(v.opt.Bucket), Prefix: aws.String(v.dirKey(p)), MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return vfs.Metadata{}, vfs.NewError(vfs.KindIO, "metadata", p, err)
	}
	if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
		return vfs.Metadata{}, vfs.NewError(vfs.KindNotFound, "metadata", p, fmt.Errorf("no such key or prefix"))
	}
	return vfs.Metadata{IsDir: true}, nil
}

func (v *VFS) ReadDir(p vfs.Path) ([]vfs.Entry, error) {
	prefix := v.dirKey(p)
	var entries []vfs.Entry
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(v.opt.Bucket), Prefix: aws.String(prefix), Delimiter: aws.String("/"),
	}
	err := v.svc.ListObjectsV2Pages(input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if key == prefix {
				continue // the directory marker object itself
			}
			name := strings.TrimPrefix(key, prefix)
			entries = append(entries, vfs.Entry{
				Path: vfs.Join(p, name), Size: aws.Int64Value(obj.Size), ModTime: aws.TimeValue(obj.LastModified),
			})
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(cp.Prefix), prefix), "/")
			entries = append(entries, vfs.Entry{Path: vfs.Join(p, name), IsDir: true})
		}
		return true
	})
	if err != nil {
		return nil, vfs.NewError(vfs.KindIO, "read_dir", p, err)
	}
	return entries, nil
}

func (v *VFS) OpenFile(p vfs.Path) (vfs.ReadStream, error) {
	out, err := v.svc.GetObject(&s3.GetObjectInput{Bucket: aws.String(v.opt.Bucket), Key: aws.String(v.key(p))})
	if err != nil {
		if isNotFound(err) {
			return nil, vfs.NewError(vfs.KindNotFound, "open_file", p, err)
		}
		return nil, vfs.NewError(vfs.KindIO, "open_file", p, err)
	}
	return out.Body, nil
}

type putSink struct {
	v    *VFS
	path vfs.Path
	buf  bytes.Buffer
}

func (s *putSink) Write(p []byte) (int, error) { return s.buf.Write(p) }

// Close performs a single-part PutObject. Multipart upload is left out
// of scope: the comparison/copy engines this VFS serves stage whole
// files, so there is no streaming source large enough to need it.
func (s *putSink) Close() error {
	_, err := s.v.svc.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(s.v.opt.Bucket), Key: aws.String(s.v.key(s.path)),
		Body: bytes.NewReader(s.buf.Bytes()),
	})
	if err != nil {
		return vfs.NewError(vfs.KindIO, "create_file", s.path, err)
	}
	return nil
}

func (v *VFS) CreateFile(p vfs.Path) (vfs.WriteSink, error) {
	return &putSink{v: v, path: p}, nil
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
	_, err := v.svc.DeleteObject(&s3.DeleteObjectInput{Bucket: aws.String(v.opt.Bucket), Key: aws.String(v.key(p))})
	if err != nil {
		return vfs.NewError(vfs.KindIO, "remove_file", p, err)
	}
	return nil
}

// CopyFile uses S3's server-side CopyObject, avoiding a download/upload
// round trip through the client.
func (v *VFS) CopyFile(src, dest vfs.Path) error {
	source := fmt.Sprintf("%s/%s", v.opt.Bucket, v.key(src))
	_, err := v.svc.CopyObject(&s3.CopyObjectInput{
		Bucket: aws.String(v.opt.Bucket), Key: aws.String(v.key(dest)), CopySource: aws.String(source),
	})
	if err != nil {
		return vfs.NewError(vfs.KindIO, "copy_file", dest, err)
	}
	return nil
}

// Rename is CopyObject followed by DeleteObject: S3 has no rename verb.
func (v *VFS) Rename(from, to vfs.Path) error {
	if err := v.CopyFile(from, to); err != nil {
		return err
	}
	return v.RemoveFile(from)
}

// CreateDir writes a zero-length object with a trailing-slash key, the
// convention most S3 consoles use to represent an empty "folder".
func (v *VFS) CreateDir(p vfs.Path) error {
	_, err := v.svc.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(v.opt.Bucket), Key: aws.String(v.dirKey(p)), Body: bytes.NewReader(nil),
	})
	if err != nil {
		return vfs.NewError(vfs.KindIO, "create_dir", p, err)
	}
	return nil
}

func (v *VFS) CreateDirAll(p vfs.Path) error {
	parts := p.Split()
	var cur vfs.Path
	for _, part := range parts {
		cur = vfs.Join(cur, part)
		if err := v.CreateDir(cur); err != nil {
			return err
		}
	}
	return nil
}

// SetMTime is unsupported: S3 object timestamps are server-assigned at
// upload time and cannot be altered in place.
func (v *VFS) SetMTime(p vfs.Path, _ time.Time) error {
	return vfs.NewError(vfs.KindUnsupported, "set_mtime", p, fmt.Errorf("s3 does not support setting mtime"))
}

func (v *VFS) Flush() error { return nil }

func (v *VFS) Capabilities() vfs.Capabilities {
	return vfs.Capabilities{
		CanRead: true, CanWrite: true, CanDelete: true,
		CanRename: true, CanCreateDir: true, CanSetMTime: false,
	}
}
func (v *VFS) IsWritable() bool { return vfs.IsWritableFromCapabilities(v.Capabilities()) }
