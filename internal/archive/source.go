// Package archive abstracts the document archives the importer reads from.
//
// An archive is a tree of slash-separated paths:
//
//	<agency>/[<office>/]<YYYYMMDD>/manifest.yaml
//	<agency>/[<office>/]<YYYYMMDD>/<doc_location>/record.txt
//	<agency>/[<office>/]<YYYYMMDD>/<doc_location>/record.<file_type>
//
// Local serves it from a directory on disk and S3 from a bucket.
package archive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"foiahub/internal/config"
	"foiahub/internal/infra/s3client"
)

// Kind identifies a Source implementation.
type Kind string

const (
	KindLocal Kind = "local"
	KindS3    Kind = "s3"
)

// Source is a readable document archive. Missing paths produce errors that
// satisfy errors.Is(err, fs.ErrNotExist).
type Source interface {
	Kind() Kind
	// Join builds a path from slash-separated parts.
	Join(parts ...string) string
	// ListDir returns the names of the immediate child directories of dir, sorted.
	ListDir(ctx context.Context, dir string) ([]string, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// Open streams a file and reports its size.
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)
	// LastName returns the final element of path.
	LastName(path string) string
}

// LastName returns the final element of a slash-separated path, ignoring a
// trailing slash: "doc/20150301/abc.pdf" gives "abc.pdf" and "doc/20150301/"
// gives "20150301".
func LastName(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Open constructs the Source selected by cfg.Driver (local when empty).
func Open(ctx context.Context, cfg config.Archive) (Source, error) {
	switch Kind(cfg.Driver) {
	case KindLocal, "":
		return NewLocal(cfg.Root)
	case KindS3:
		client, err := s3client.New(ctx, s3client.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("archive s3: %w", err)
		}
		return NewS3(client, cfg.S3.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", cfg.Driver)
	}
}
