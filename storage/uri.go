package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// ObjectOpener streams objects from any bucket. *MinIOClient implements it.
type ObjectOpener interface {
	OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// OpenURI opens a dataset from a local path, an http(s) URL or an
// s3://bucket/key URI. objects may be nil when no object store is configured.
func OpenURI(ctx context.Context, uri string, objects ObjectOpener) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		if objects == nil {
			return nil, fmt.Errorf("%s: no object store configured", uri)
		}
		bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid s3 uri %q", uri)
		}
		return objects.OpenObject(ctx, bucket, key)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		if _, err := url.Parse(uri); err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", uri, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", uri, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to download %s: status %d", uri, resp.StatusCode)
		}
		return resp.Body, nil
	}
	f, err := os.Open(strings.TrimPrefix(uri, "file://"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", uri, ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}
