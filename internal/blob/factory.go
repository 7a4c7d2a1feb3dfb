package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"foiahub/internal/config"
	"foiahub/internal/infra/blob/fs"
	memorystore "foiahub/internal/infra/blob/memory"
	infraS3 "foiahub/internal/infra/blob/s3"
)

// Open selects a Store implementation from cfg.Driver (fs when empty).
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.FSRoot, cfg.FSBaseURL)
	case DriverS3:
		return infraS3.New(ctx, infraS3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root, baseURL string) (Store, error) {
	return fs.New(root, baseURL)
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// PutIfAbsent writes r under key unless the key already exists, in which case
// the existing blob's Info is returned and created is false.
func PutIfAbsent(ctx context.Context, store Store, key string, r io.Reader, opts PutOptions) (info Info, created bool, err error) {
	info, err = store.Head(ctx, key)
	if err == nil {
		return info, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Info{}, false, err
	}
	info, err = store.Put(ctx, key, r, opts)
	if errors.Is(err, ErrExists) {
		// Lost a race with a concurrent writer; the stored blob wins.
		info, err = store.Head(ctx, key)
		return info, false, err
	}
	if err != nil {
		return Info{}, false, err
	}
	return info, true, nil
}
