// Package config resolves foiahub settings from FOIAHUB_* environment variables,
// optionally seeded from a .env file.
//
//	FOIAHUB_STORAGE_DRIVER       memory|sqlite|postgres (default sqlite)
//	FOIAHUB_SQLITE_PATH          sqlite file (default ./foiahub.db)
//	FOIAHUB_POSTGRES_DSN         DSN when driver=postgres
//	FOIAHUB_BLOB_DRIVER          fs|s3|memory (default fs)
//	FOIAHUB_BLOB_FS_ROOT         root directory when driver=fs (default ./blobdata)
//	FOIAHUB_BLOB_FS_BASE_URL     public URL prefix for fs blobs (optional)
//	FOIAHUB_BLOB_S3_BUCKET       bucket when driver=s3
//	FOIAHUB_BLOB_S3_REGION       region (default us-east-1)
//	FOIAHUB_BLOB_S3_ENDPOINT     custom endpoint, e.g. MinIO
//	FOIAHUB_BLOB_S3_PATH_STYLE   true|false
//	FOIAHUB_ARCHIVE_DRIVER       local|s3 (default local)
//	FOIAHUB_ARCHIVE_ROOT         local archive root (default ./archive)
//	FOIAHUB_ARCHIVE_S3_BUCKET    archive bucket when driver=s3
//	FOIAHUB_ARCHIVE_S3_REGION    archive region
//	FOIAHUB_ARCHIVE_S3_ENDPOINT  archive endpoint
//	FOIAHUB_IMPORT_WORKERS       concurrent agency imports (default 4)
//	FOIAHUB_HTTP_ADDR            listen address (default :8080)
//	FOIAHUB_CACHE_SIZE           detail cache entries (default 256)
//	FOIAHUB_CACHE_TTL            detail cache TTL (default 5m)
//	FOIAHUB_LOG_LEVEL            debug|info|warn|error (default info)
//	FOIAHUB_LOG_FORMAT           json|console (default json)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Prefix is prepended to every variable name.
const Prefix = "FOIAHUB_"

// Storage selects the persistent store.
type Storage struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// S3 holds bucket coordinates.
type S3 struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Blob selects the document file store.
type Blob struct {
	Driver    string
	FSRoot    string
	FSBaseURL string
	S3        S3
}

// Archive selects the import source.
type Archive struct {
	Driver  string
	Root    string
	S3      S3
	Workers int
}

// HTTP configures the API server.
type HTTP struct {
	Addr      string
	CacheSize int
	CacheTTL  time.Duration
}

// Log configures zap.
type Log struct {
	Level  string
	Format string
}

// Config aggregates all settings.
type Config struct {
	Storage Storage
	Blob    Blob
	Archive Archive
	HTTP    HTTP
	Log     Log
}

// Load reads envFiles (missing files are ignored; existing variables win) and
// then resolves Config from the environment.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves Config using lookup, which has the os.LookupEnv signature.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		Storage: Storage{
			Driver:      r.str("STORAGE_DRIVER", "sqlite"),
			SQLitePath:  r.str("SQLITE_PATH", "./foiahub.db"),
			PostgresDSN: r.str("POSTGRES_DSN", ""),
		},
		Blob: Blob{
			Driver:    r.str("BLOB_DRIVER", "fs"),
			FSRoot:    r.str("BLOB_FS_ROOT", "./blobdata"),
			FSBaseURL: r.str("BLOB_FS_BASE_URL", ""),
			S3: S3{
				Bucket:    r.str("BLOB_S3_BUCKET", ""),
				Region:    r.str("BLOB_S3_REGION", ""),
				Endpoint:  r.str("BLOB_S3_ENDPOINT", ""),
				PathStyle: r.boolean("BLOB_S3_PATH_STYLE", false),
			},
		},
		Archive: Archive{
			Driver: r.str("ARCHIVE_DRIVER", "local"),
			Root:   r.str("ARCHIVE_ROOT", "./archive"),
			S3: S3{
				Bucket:    r.str("ARCHIVE_S3_BUCKET", ""),
				Region:    r.str("ARCHIVE_S3_REGION", ""),
				Endpoint:  r.str("ARCHIVE_S3_ENDPOINT", ""),
				PathStyle: r.boolean("ARCHIVE_S3_PATH_STYLE", false),
			},
			Workers: r.integer("IMPORT_WORKERS", 4),
		},
		HTTP: HTTP{
			Addr:      r.str("HTTP_ADDR", ":8080"),
			CacheSize: r.integer("CACHE_SIZE", 256),
			CacheTTL:  r.duration("CACHE_TTL", 5*time.Minute),
		},
		Log: Log{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated values and cross-field requirements.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("%sPOSTGRES_DSN required for postgres storage", Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("%sBLOB_S3_BUCKET required for s3 blob driver", Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Archive.Driver {
	case "local":
	case "s3":
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("%sARCHIVE_S3_BUCKET required for s3 archive", Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive driver %q", c.Archive.Driver))
	}
	if c.Archive.Workers < 1 {
		errs = append(errs, fmt.Errorf("%sIMPORT_WORKERS must be positive", Prefix))
	}
	return errors.Join(errs...)
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(name, def string) string {
	if v, ok := r.lookup(Prefix + name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) boolean(name string, def bool) bool {
	raw := r.str(name, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, name, err))
		return def
	}
	return v
}

func (r *reader) integer(name string, def int) int {
	raw := r.str(name, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, name, err))
		return def
	}
	return v
}

func (r *reader) duration(name string, def time.Duration) time.Duration {
	raw := r.str(name, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, name, err))
		return def
	}
	return v
}
