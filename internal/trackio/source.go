// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package trackio opens job inputs and writes job outputs in the supported formats.
package trackio

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Locations is how sources and destinations reach object storage.
// S3 is created lazily on first use of an s3:// location.
type Locations struct {
	S3Options S3Options
	S3        ObjectClient
}

func (l *Locations) s3Client(ctx context.Context) (ObjectClient, error) {
	if l.S3 == nil {
		client, err := NewS3Client(ctx, l.S3Options)
		if err != nil {
			return nil, err
		}
		l.S3 = client
	}
	return l.S3, nil
}

// OpenSource opens uri for reading. "-" is stdin, s3://bucket/key is read
// from object storage, anything else is a local path. A .gz or .zst suffix
// is decompressed transparently.
func (l *Locations) OpenSource(ctx context.Context, uri string) (io.ReadCloser, error) {
	rc, err := l.openRaw(ctx, uri)
	if err != nil {
		return nil, err
	}
	return decompress(uri, rc)
}

func (l *Locations) openRaw(ctx context.Context, uri string) (io.ReadCloser, error) {
	if uri == "-" || uri == "" {
		return io.NopCloser(os.Stdin), nil
	}

	bucket, key, isS3, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}
	if isS3 {
		client, err := l.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		return getObject(ctx, client, bucket, key)
	}

	f, err := os.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

func decompress(uri string, rc io.ReadCloser) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(uri, ".gz"):
		gz, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("failed to open gzip input: %w", err)
		}
		return &stackedReader{Reader: gz, closers: []io.Closer{gz, rc}}, nil
	case strings.HasSuffix(uri, ".zst"):
		zr, err := zstd.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("failed to open zstd input: %w", err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zstdCloser{zr}, rc}}, nil
	}
	return rc, nil
}

type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	return closeAll(s.closers...)
}

// closeAll closes every closer in order and combines their errors.
func closeAll(closers ...io.Closer) error {
	var errs *multierror.Error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}
