// icustrat: ICU Diagnosis Stratification Pipeline
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

// Package fetch mirrors the remote dataset trees onto the local file system.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"
)

// Options configures a Mirror.
type Options struct {
	User, Password string
	// Concurrency is the number of files downloaded at the same time.
	Concurrency int
	// Retries is the number of times a failed request is repeated.
	Retries int
	// Backoff is multiplied by the attempt number to get the wait before a retry.
	Backoff time.Duration
	// Timeout bounds every request. Zero means no timeout.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Stats counts what a mirror run did.
type Stats struct {
	Files      int64
	Downloaded int64
	Resumed    int64
	Skipped    int64
	Bytes      int64
}

func (s *Stats) add(o *Stats) {
	atomic.AddInt64(&s.Files, o.Files)
	atomic.AddInt64(&s.Downloaded, o.Downloaded)
	atomic.AddInt64(&s.Resumed, o.Resumed)
	atomic.AddInt64(&s.Skipped, o.Skipped)
	atomic.AddInt64(&s.Bytes, o.Bytes)
}

// Mirror recursively downloads a directory tree served as HTML index pages. Links that leave the tree, either to
// another host or above the start directory, are never followed. Files that are already complete and up to date
// are skipped, partial files are continued.
type Mirror struct {
	client *http.Client
	opts   Options
	logger *zap.Logger
}

// statusError is an unexpected HTTP status.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.url, e.code, http.StatusText(e.code))
}

// NewMirror creates a Mirror with an HTTP/2 enabled client.
func NewMirror(opts Options) (*Mirror, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	return NewMirrorWithClient(&http.Client{Transport: transport, Timeout: opts.Timeout}, opts), nil
}

// NewMirrorWithClient creates a Mirror that uses the given client.
func NewMirrorWithClient(client *http.Client, opts Options) *Mirror {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{client: client, opts: opts, logger: logger}
}

// Fetch mirrors the tree below rawURL into dir.
func (m *Mirror) Fetch(ctx context.Context, rawURL, dir string) (*Stats, error) {
	root, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	if !strings.HasSuffix(root.Path, "/") {
		root.Path += "/"
	}
	files, err := m.crawl(ctx, root)
	if err != nil {
		return nil, err
	}
	m.logger.Info("crawled", zap.String("url", root.String()), zap.Int("files", len(files)))

	stats := &Stats{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for _, file := range files {
		file := file
		// Path is already unescaped.
		rel := strings.TrimPrefix(file.Path, root.Path)
		local := filepath.Join(dir, filepath.FromSlash(rel))
		g.Go(func() error {
			s, err := m.download(ctx, file.String(), local)
			if err != nil {
				return err
			}
			stats.add(s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	m.logger.Info("mirrored",
		zap.String("url", root.String()),
		zap.Int64("downloaded", stats.Downloaded),
		zap.Int64("resumed", stats.Resumed),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("bytes", stats.Bytes))
	return stats, nil
}

// crawl walks the index pages below root and returns the file URLs in the order they were found.
func (m *Mirror) crawl(ctx context.Context, root *url.URL) ([]*url.URL, error) {
	visited := map[string]bool{root.String(): true}
	queue := []*url.URL{root}
	var files []*url.URL
	for len(queue) > 0 {
		page := queue[0]
		queue = queue[1:]
		var links []string
		err := m.retry(ctx, page.String(), func() error {
			var err error
			links, err = m.index(ctx, page.String())
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			u, ok := below(root, page, link)
			if !ok || visited[u.String()] {
				continue
			}
			visited[u.String()] = true
			if strings.HasSuffix(u.Path, "/") {
				queue = append(queue, u)
			} else {
				files = append(files, u)
			}
		}
	}
	return files, nil
}

// below resolves link against page and reports whether the result lies inside the tree of root.
func below(root, page *url.URL, link string) (*url.URL, bool) {
	ref, err := url.Parse(strings.TrimSpace(link))
	if err != nil || ref.RawQuery != "" || (ref.Path == "" && ref.Host == "") {
		return nil, false
	}
	u := page.ResolveReference(ref)
	u.Fragment = ""
	if u.Scheme != root.Scheme || u.Host != root.Host {
		return nil, false
	}
	p := u.Path
	if strings.HasSuffix(p, "/") {
		p = path.Clean(p) + "/"
	} else {
		p = path.Clean(p)
	}
	if !strings.HasPrefix(p, root.Path) || p == root.Path {
		return nil, false
	}
	u.Path = p
	u.RawPath = ""
	return u, true
}

// index fetches an index page and returns the href of every anchor.
func (m *Mirror) index(ctx context.Context, pageURL string) ([]string, error) {
	resp, err := m.do(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{url: pageURL, code: resp.StatusCode}
	}
	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	var links []string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					links = append(links, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return links, nil
}

func (m *Mirror) do(ctx context.Context, method, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if m.opts.User != "" {
		req.SetBasicAuth(m.opts.User, m.opts.Password)
	}
	return m.client.Do(req)
}

// retry calls f until it succeeds, fails permanently, or the retries are used up.
func (m *Mirror) retry(ctx context.Context, what string, f func() error) error {
	for attempt := 0; ; attempt++ {
		err := f()
		if err == nil || attempt >= m.opts.Retries || !retryable(err) {
			return err
		}
		wait := m.opts.Backoff * time.Duration(attempt+1)
		m.logger.Warn("retrying", zap.String("url", what), zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	var pe *os.PathError
	return !errors.As(err, &pe)
}

// remote describes a remote file from the headers of a HEAD request.
type remote struct {
	size     int64
	modified time.Time
}

func (m *Mirror) head(ctx context.Context, fileURL string) (remote, error) {
	resp, err := m.do(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return remote{}, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return remote{}, &statusError{url: fileURL, code: resp.StatusCode}
	}
	return remote{size: resp.ContentLength, modified: lastModified(resp)}, nil
}

func lastModified(resp *http.Response) time.Time {
	t, err := http.ParseTime(resp.Header.Get("Last-Modified"))
	if err != nil {
		return time.Time{}
	}
	return t
}

// upToDate reports whether a local file of the given size and modification time matches the remote file.
func upToDate(info os.FileInfo, size int64, modified time.Time) bool {
	return size >= 0 && info.Size() == size && !info.ModTime().Before(modified)
}

func (m *Mirror) download(ctx context.Context, fileURL, local string) (*Stats, error) {
	stats := &Stats{Files: 1}
	err := m.retry(ctx, fileURL, func() error {
		return m.downloadOnce(ctx, fileURL, local, stats)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (m *Mirror) downloadOnce(ctx context.Context, fileURL, local string, stats *Stats) error {
	var offset int64
	var modified time.Time
	if info, err := os.Stat(local); err == nil {
		r, err := m.head(ctx, fileURL)
		if err != nil {
			return err
		}
		modified = r.modified
		switch {
		case upToDate(info, r.size, r.modified):
			m.logger.Debug("up to date", zap.String("file", local))
			stats.Skipped = 1
			return nil
		case info.ModTime().Before(r.modified):
			// The remote file changed since the partial download started.
			offset = 0
		case r.size < 0 || info.Size() < r.size:
			offset = info.Size()
		}
	}
	header := http.Header{}
	if offset > 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := m.do(ctx, http.MethodGet, fileURL, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if lm := lastModified(resp); !lm.IsZero() {
		modified = lm
	}

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusOK:
		flags |= os.O_TRUNC
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		stats.Resumed = 1
	case http.StatusRequestedRangeNotSatisfiable:
		stats.Skipped = 1
		return touch(local, modified)
	default:
		return &statusError{url: fileURL, code: resp.StatusCode}
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(local, flags, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(file, resp.Body)
	stats.Bytes += n
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", fileURL, err)
	}
	stats.Downloaded = 1
	m.logger.Debug("downloaded", zap.String("file", local), zap.Int64("bytes", n))
	return touch(local, modified)
}

// touch sets the modification time of a downloaded file to the remote one.
func touch(local string, modified time.Time) error {
	if modified.IsZero() {
		return nil
	}
	return os.Chtimes(local, modified, modified)
}
