package s3vfs_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eldenglass/vfsdiff/vfs/remote/s3vfs"
)

// memS3 is a tiny in-memory, path-style S3 endpoint covering just the
// operations s3vfs issues: HeadObject, GetObject, PutObject,
// DeleteObject, ListObjectsV2, CopyObject. It exists to exercise the
// AWS SDK's real HTTP/XML wire format against the client rather than
// mocking the VFS interface away.
type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte // key -> contents, keyed without leading slash
}

func newMemS3() *memS3 {
	return &memS3{objects: map[string][]byte{}}
}

func (m *memS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trimmed := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if key == "" && r.URL.Query().Get("list-type") == "2" {
		m.listObjectsV2(w, r)
		return
	}

	if src := r.Header.Get("X-Amz-Copy-Source"); src != "" && r.Method == http.MethodPut {
		m.copyObject(w, src, key)
		return
	}

	switch r.Method {
	case http.MethodHead:
		data, ok := m.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := m.objects[key]
		if !ok {
			m.writeS3Error(w, http.StatusNotFound, "NoSuchKey", key)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		m.objects[key] = data
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(m.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *memS3) copyObject(w http.ResponseWriter, source, destKey string) {
	source = strings.TrimPrefix(source, "/")
	if i := strings.Index(source, "/"); i >= 0 {
		source = source[i+1:]
	}
	data, ok := m.objects[source]
	if !ok {
		m.writeS3Error(w, http.StatusNotFound, "NoSuchKey", source)
		return
	}
	m.objects[destKey] = data
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<?xml version="1.0"?><CopyObjectResult><LastModified>%s</LastModified><ETag>"fake"</ETag></CopyObjectResult>`,
		time.Now().UTC().Format(time.RFC3339))
}

func (m *memS3) listObjectsV2(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	delimiter := r.URL.Query().Get("delimiter")

	var contents strings.Builder
	commonPrefixes := map[string]bool{}
	for key, data := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if delimiter != "" {
			if i := strings.Index(rest, delimiter); i >= 0 {
				commonPrefixes[prefix+rest[:i+1]] = true
				continue
			}
		}
		fmt.Fprintf(&contents, `<Contents><Key>%s</Key><Size>%d</Size><LastModified>%s</LastModified></Contents>`,
			key, len(data), time.Now().UTC().Format(time.RFC3339))
	}

	var prefixes strings.Builder
	for p := range commonPrefixes {
		fmt.Fprintf(&prefixes, `<CommonPrefixes><Prefix>%s</Prefix></CommonPrefixes>`, p)
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<?xml version="1.0"?><ListBucketResult><Name>bucket</Name><Prefix>%s</Prefix>`+
		`<KeyCount>0</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>%s%s</ListBucketResult>`,
		prefix, contents.String(), prefixes.String())
}

func (m *memS3) writeS3Error(w http.ResponseWriter, status int, code, key string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0"?><Error><Code>%s</Code><Message>not found</Message><Key>%s</Key><RequestId>1</RequestId></Error>`,
		code, key)
}

func newTestVFS(t *testing.T, srv *httptest.Server) *s3vfs.VFS {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_REGION", "us-east-1")
	v, err := s3vfs.Dial(s3vfs.Options{Bucket: "bucket", Region: "us-east-1", Endpoint: srv.URL})
	require.NoError(t, err)
	return v
}

func TestS3WriteReadRoundTrip(t *testing.T) {
	srv := httptest.NewServer(newMemS3())
	defer srv.Close()
	v := newTestVFS(t, srv)

	require.NoError(t, v.WriteFile("a.txt", []byte("hello")))

	meta, err := v.Metadata("a.txt")
	require.NoError(t, err)
	require.Equal(t, int64(5), meta.Size)

	rc, err := v.OpenFile("a.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestS3MetadataNotFound(t *testing.T) {
	srv := httptest.NewServer(newMemS3())
	defer srv.Close()
	v := newTestVFS(t, srv)

	_, err := v.Metadata("missing.txt")
	require.Error(t, err)
}

func TestS3ReadDirGroupsByDelimiter(t *testing.T) {
	srv := httptest.NewServer(newMemS3())
	defer srv.Close()
	v := newTestVFS(t, srv)

	require.NoError(t, v.WriteFile("sub/one.txt", []byte("1")))
	require.NoError(t, v.WriteFile("sub/two.txt", []byte("22")))
	require.NoError(t, v.WriteFile("other.txt", []byte("x")))

	entries, err := v.ReadDir("")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, string(e.Path))
	}
	require.Contains(t, names, "other.txt")
	require.Contains(t, names, "sub")
}

func TestS3RemoveFile(t *testing.T) {
	srv := httptest.NewServer(newMemS3())
	defer srv.Close()
	v := newTestVFS(t, srv)

	require.NoError(t, v.WriteFile("a.txt", []byte("x")))
	require.NoError(t, v.RemoveFile("a.txt"))
	_, err := v.Metadata("a.txt")
	require.Error(t, err)
}

func TestS3RenameCopiesThenDeletes(t *testing.T) {
	srv := httptest.NewServer(newMemS3())
	defer srv.Close()
	v := newTestVFS(t, srv)

	require.NoError(t, v.WriteFile("a.txt", []byte("x")))
	require.NoError(t, v.Rename("a.txt", "b.txt"))

	_, err := v.Metadata("a.txt")
	require.Error(t, err)
	meta, err := v.Metadata("b.txt")
	require.NoError(t, err)
	require.Equal(t, int64(1), meta.Size)
}

func TestS3SetMTimeUnsupported(t *testing.T) {
	srv := httptest.NewServer(newMemS3())
	defer srv.Close()
	v := newTestVFS(t, srv)

	err := v.SetMTime("a.txt", time.Now())
	require.Error(t, err)
}

func TestS3Capabilities(t *testing.T) {
	srv := httptest.NewServer(newMemS3())
	defer srv.Close()
	v := newTestVFS(t, srv)

	caps := v.Capabilities()
	require.True(t, caps.CanWrite)
	require.False(t, caps.CanSetMTime)
	require.True(t, v.IsWritable())
}
