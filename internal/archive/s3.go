package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"foiahub/internal/infra/s3client"
)

// S3 reads an archive stored in a bucket, one object per file. Directories
// are the common prefixes of a "/"-delimited listing.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 wraps a client bound to bucket.
func NewS3(client *s3.Client, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func (s *S3) Kind() Kind { return KindS3 }

func (s *S3) Join(parts ...string) string { return strings.TrimPrefix(path.Join(parts...), "/") }

func (s *S3) LastName(p string) string { return LastName(p) }

func (s *S3) ListDir(ctx context.Context, dir string) ([]string, error) {
	prefix := strings.Trim(dir, "/")
	if prefix != "" {
		prefix += "/"
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    &s.bucket,
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				names = append(names, LastName(*cp.Prefix))
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3) ReadFile(ctx context.Context, p string) ([]byte, error) {
	rc, _, err := s.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *S3) Open(ctx context.Context, p string) (io.ReadCloser, int64, error) {
	key := strings.TrimPrefix(p, "/")
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if s3client.IsNotFound(err) {
			return nil, 0, &fs.PathError{Op: "open", Path: key, Err: fs.ErrNotExist}
		}
		return nil, 0, fmt.Errorf("get %s: %w", key, err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}
