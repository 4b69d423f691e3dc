package cachesim

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/discochess/cachesim/internal/store"
	"github.com/discochess/cachesim/internal/store/diskstore"
	"github.com/discochess/cachesim/internal/store/gcsstore"
	"github.com/discochess/cachesim/internal/store/httpstore"
	"github.com/discochess/cachesim/internal/store/s3store"
)

// OpenStore resolves a trace location to a store and the trace name
// within it. Supported forms:
//
//	s3://bucket/path/trace.oracleGeneral.zst?region=us-east-1&endpoint=http://localhost:9000
//	gs://bucket/path/trace.csv.gz
//	https://host/traces/trace.oracleGeneral.bin
//	/local/path/trace.csv
//
// Bucket stores are rooted at the trace's directory.
func OpenStore(ctx context.Context, location string) (store.Store, string, error) {
	scheme, _, ok := strings.Cut(location, "://")
	if !ok {
		dir, name := filepath.Split(location)
		if dir == "" {
			dir = "."
		}
		st, err := diskstore.New(dir)
		if err != nil {
			return nil, "", fmt.Errorf("opening trace directory: %w", err)
		}
		return st, name, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, "", fmt.Errorf("parsing trace location: %w", err)
	}
	switch strings.ToLower(scheme) {
	case "s3":
		prefix, name := splitKey(u.Path)
		opts := []s3store.Option{s3store.WithPrefix(prefix)}
		if region := u.Query().Get("region"); region != "" {
			opts = append(opts, s3store.WithRegion(region))
		}
		if endpoint := u.Query().Get("endpoint"); endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(endpoint))
		}
		st, err := s3store.New(ctx, u.Host, opts...)
		if err != nil {
			return nil, "", fmt.Errorf("opening S3 bucket %s: %w", u.Host, err)
		}
		return st, name, nil
	case "gs":
		prefix, name := splitKey(u.Path)
		st, err := gcsstore.New(ctx, u.Host, gcsstore.WithPrefix(prefix))
		if err != nil {
			return nil, "", fmt.Errorf("opening GCS bucket %s: %w", u.Host, err)
		}
		return st, name, nil
	case "http", "https":
		dir, name := path.Split(u.Path)
		base := *u
		base.Path = dir
		base.RawQuery = ""
		st, err := httpstore.New(base.String())
		if err != nil {
			return nil, "", err
		}
		return st, name, nil
	default:
		return nil, "", fmt.Errorf("unsupported trace location scheme %q", scheme)
	}
}

// splitKey splits an object path into a key prefix ending in "/" and the
// object name.
func splitKey(p string) (prefix, name string) {
	prefix, name = path.Split(strings.TrimPrefix(p, "/"))
	return prefix, name
}
