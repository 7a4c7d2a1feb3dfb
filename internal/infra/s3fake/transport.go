// Package s3fake implements an in-process S3 subset behind an http.RoundTripper
// so that S3-backed code can be exercised without network access.
package s3fake

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"foiahub/internal/infra/s3client"
)

// Endpoint is the base URL the fake client talks to.
const Endpoint = "https://fake.s3.local"

type object struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// Transport serves HeadObject, GetObject, PutObject, DeleteObject and
// ListObjectsV2 (prefix, delimiter and continuation tokens) for path-style requests.
type Transport struct {
	mu      sync.Mutex
	objects map[string]object
	// PageSize caps keys per ListObjectsV2 page; zero means 1000.
	PageSize int
	// Requests counts requests per HTTP method.
	Requests map[string]int
}

// NewTransport returns an empty fake.
func NewTransport() *Transport {
	return &Transport{objects: map[string]object{}, Requests: map[string]int{}}
}

// NewClient returns a path-style client bound to a fresh Transport.
func NewClient(bucket string) (*s3.Client, *Transport) {
	rt := NewTransport()
	awsCfg := aws.Config{
		Region:      s3client.DefaultRegion,
		Credentials: credentials.NewStaticCredentialsProvider("AKIAFAKE", "SECRET", ""),
	}
	client := s3client.NewFromAWSConfig(awsCfg, s3client.Config{
		Bucket:     bucket,
		Endpoint:   Endpoint,
		PathStyle:  true,
		HTTPClient: &http.Client{Transport: rt},
	})
	return client, rt
}

// PutObject seeds an object directly.
func (t *Transport) PutObject(key string, body []byte, contentType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.objects[key] = object{body: append([]byte(nil), body...), contentType: contentType, modified: time.Now().UTC()}
}

// Keys returns stored keys in order.
func (t *Transport) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.objects))
	for k := range t.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Requests[req.Method]++
	// Path-style: /<bucket>/<key>
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	query := req.URL.Query()
	if req.Method == http.MethodGet && query.Get("list-type") == "2" {
		return t.list(query.Get("prefix"), query.Get("delimiter"), query.Get("continuation-token"), query.Get("max-keys"))
	}
	switch req.Method {
	case http.MethodHead:
		obj, ok := t.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, nil), nil
		}
		return respond(http.StatusOK, objectHeaders(obj), nil), nil
	case http.MethodGet:
		obj, ok := t.objects[key]
		if !ok {
			return notFound(key), nil
		}
		return respond(http.StatusOK, objectHeaders(obj), obj.body), nil
	case http.MethodPut:
		body, err := readBody(req)
		if err != nil {
			return nil, err
		}
		md := map[string]string{}
		for name, values := range req.Header {
			if lower := strings.ToLower(name); strings.HasPrefix(lower, "x-amz-meta-") {
				md[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
			}
		}
		t.objects[key] = object{body: body, contentType: req.Header.Get("Content-Type"), metadata: md, modified: time.Now().UTC()}
		return respond(http.StatusOK, http.Header{"Etag": {`"etag"`}}, nil), nil
	case http.MethodDelete:
		delete(t.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

type listContents struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

type listPrefix struct {
	Prefix string `xml:"Prefix"`
}

type listResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Prefix                string         `xml:"Prefix"`
	Delimiter             string         `xml:"Delimiter,omitempty"`
	KeyCount              int            `xml:"KeyCount"`
	IsTruncated           bool           `xml:"IsTruncated"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	Contents              []listContents `xml:"Contents"`
	CommonPrefixes        []listPrefix   `xml:"CommonPrefixes"`
}

func (t *Transport) list(prefix, delimiter, token, maxKeys string) (*http.Response, error) {
	// Entries are keys or common prefixes, ordered and deduplicated.
	isPrefix := map[string]bool{}
	var entries []string
	for k := range t.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		entry, rolled := k, false
		if delimiter != "" {
			if idx := strings.Index(k[len(prefix):], delimiter); idx >= 0 {
				entry, rolled = k[:len(prefix)+idx+len(delimiter)], true
			}
		}
		if _, dup := isPrefix[entry]; !dup {
			entries = append(entries, entry)
		}
		isPrefix[entry] = isPrefix[entry] || rolled
	}
	sort.Strings(entries)
	start := 0
	if token != "" {
		start = sort.SearchStrings(entries, token) + 1
		if start > len(entries) {
			start = len(entries)
		}
	}
	size := t.PageSize
	if n, err := strconv.Atoi(maxKeys); err == nil && n > 0 && (size == 0 || n < size) {
		size = n
	}
	if size <= 0 {
		size = 1000
	}
	end := start + size
	res := listResult{Prefix: prefix, Delimiter: delimiter}
	if end < len(entries) {
		res.IsTruncated = true
		res.NextContinuationToken = entries[end-1]
	} else {
		end = len(entries)
	}
	for _, entry := range entries[start:end] {
		if isPrefix[entry] {
			res.CommonPrefixes = append(res.CommonPrefixes, listPrefix{Prefix: entry})
			continue
		}
		obj := t.objects[entry]
		res.Contents = append(res.Contents, listContents{Key: entry, Size: int64(len(obj.body)), LastModified: obj.modified.Format(time.RFC3339)})
	}
	res.KeyCount = len(res.Contents) + len(res.CommonPrefixes)
	body, err := xml.Marshal(res)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, body), nil
}

func objectHeaders(obj object) http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.body))},
		"Content-Type":   {obj.contentType},
		"Etag":           {`"etag"`},
		"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
	}
	for k, v := range obj.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func notFound(key string) *http.Response {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>%s</Key></Error>`, key)
	return respond(http.StatusNotFound, http.Header{"Content-Type": {"application/xml"}}, []byte(body))
}

func respond(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// readBody returns the payload, decoding aws-chunked framing when the SDK
// streams with trailing checksums.
func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") && req.Header.Get("X-Amz-Decoded-Content-Length") == "" {
		return raw, nil
	}
	var out []byte
	r := bufio.NewReader(bytes.NewReader(raw))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		sizeField, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeField, err)
		}
		if n == 0 {
			return out, nil
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("chunk body: %w", err)
		}
		out = append(out, chunk...)
		if _, err := r.Discard(2); err != nil {
			return nil, fmt.Errorf("chunk terminator: %w", err)
		}
	}
}
