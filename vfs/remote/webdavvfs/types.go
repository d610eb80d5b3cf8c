package webdavvfs

import (
	"strconv"
	"strings"
	"time"
)

// timeFormat is the RFC1123 format WebDAV servers send getlastmodified
// in; some (notably IIS) omit leading zeros on the date.
const (
	timeFormat     = time.RFC1123
	noZerosRFC1123 = "Mon, _2 Jan 2006 15:04:05 MST"
)

// multistatus is the XML body of a PROPFIND response.
type multistatus struct {
	Responses []response `xml:"response"`
}

type response struct {
	Href  string `xml:"href"`
	Props prop   `xml:"propstat>prop"`
}

// prop extracts only the properties the VFS needs: resourcetype
// distinguishes a collection (directory) from a file, getcontentlength
// and getlastmodified carry size and mtime.
type prop struct {
	Resourcetype struct {
		Collection *struct{} `xml:"collection"`
	} `xml:"resourcetype"`
	ContentLength string `xml:"getcontentlength"`
	LastModified  string `xml:"getlastmodified"`
}

func (p prop) isCollection() bool {
	return p.Resourcetype.Collection != nil
}

func (p prop) size() int64 {
	n, _ := strconv.ParseInt(p.ContentLength, 10, 64)
	return n
}

func (p prop) modTime() time.Time {
	if p.LastModified == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeFormat, p.LastModified); err == nil {
		return t
	}
	if t, err := time.Parse(noZerosRFC1123, p.LastModified); err == nil {
		return t
	}
	return time.Time{}
}

func hrefToName(href string) string {
	href = strings.TrimSuffix(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		href = href[i+1:]
	}
	return href
}
