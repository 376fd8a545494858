// Package fetch retrieves upstream repository files over http(s) or
// file-like schemes, with bounded retry of transient failures.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/djcass44/apt-tree/internal/write"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-getter"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrNotFound marks a fatal missing-upstream-file failure; it is never
// retried. Anything else surfaced by Fetch was already retried and is
// terminal.
var ErrNotFound = errors.New("upstream file not found")

// Fetcher is the collaborator contract the tree importer consumes: given a
// repository-relative path, produce a local file holding the bytes.
type Fetcher interface {
	Fetch(ctx context.Context, rel string) (string, error)
}

// Client fetches files below a single base URL into a cache directory that
// mirrors the upstream layout, so a path is only downloaded once.
type Client struct {
	base    string
	dir     string
	backoff wait.Backoff
}

func NewClient(base, dir string) (*Client, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		dir:  dir,
		backoff: wait.Backoff{
			Duration: 500 * time.Millisecond,
			Factor:   2,
			Jitter:   0.1,
			Steps:    4,
		},
	}, nil
}

func (c *Client) Fetch(ctx context.Context, rel string) (string, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("path", rel)

	dst := filepath.Join(c.dir, filepath.FromSlash(rel))
	if _, err := os.Stat(dst); err == nil {
		log.V(2).Info("using cached file", "dst", dst)
		return dst, nil
	}

	src := c.base + "/" + rel
	uri, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("parsing source url: %w", err)
	}

	log.V(1).Info("fetching file", "src", src)
	switch uri.Scheme {
	case "http", "https":
		err = c.fetchHTTP(ctx, src, dst)
	default:
		err = c.fetchGetter(ctx, src, dst)
	}
	if err != nil {
		return "", err
	}
	return dst, nil
}

// fetchHTTP downloads with retry: transport errors and 5xx responses are
// transient, a 404 is fatal.
func (c *Client) fetchHTTP(ctx context.Context, src, dst string) error {
	log := logr.FromContextOrDiscard(ctx)

	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, c.backoff, func(ctx context.Context) (bool, error) {
		err := c.tryHTTP(ctx, src, dst)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		log.V(1).Info("transient fetch failure, retrying", "src", src, "err", err.Error())
		lastErr = err
		return false, nil
	})
	if wait.Interrupted(err) && lastErr != nil {
		return fmt.Errorf("fetching %s: retries exhausted: %w", src, lastErr)
	}
	return err
}

func (c *Client) tryHTTP(ctx context.Context, src, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", src, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http response failed with code: %d", resp.StatusCode)
	}
	return write.Atomically(dst, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
}

// fetchGetter handles non-http schemes (file://, s3://, ...) through
// go-getter.
func (c *Client) fetchGetter(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	client := &getter.Client{
		Ctx:             ctx,
		Src:             src,
		Dst:             dst,
		Mode:            getter.ClientModeFile,
		DisableSymlinks: true,
	}
	if err := client.Get(); err != nil {
		if strings.Contains(err.Error(), "no such file") || os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", src, ErrNotFound)
		}
		return fmt.Errorf("fetching %s: %w", src, err)
	}
	return nil
}
