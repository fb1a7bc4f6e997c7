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

package trackio

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CreateDestination opens uri for writing. "-" is stdout, s3://bucket/key is
// staged in a temp file and uploaded on Close, anything else is a local path.
// A .gz or .zst suffix compresses the output. Use Abort instead of Close to
// discard a destination after a failed job.
func (l *Locations) CreateDestination(ctx context.Context, uri string) (io.WriteCloser, error) {
	wc, err := l.createRaw(ctx, uri)
	if err != nil {
		return nil, err
	}
	return compress(uri, wc)
}

func (l *Locations) createRaw(ctx context.Context, uri string) (io.WriteCloser, error) {
	if uri == "-" || uri == "" {
		return nopWriteCloser{os.Stdout}, nil
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
		f, err := os.CreateTemp("", "trackrunner-upload-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create upload staging file: %w", err)
		}
		return &s3Upload{ctx: ctx, client: client, bucket: bucket, key: key, f: f}, nil
	}

	f, err := os.Create(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	return &localFile{File: f}, nil
}

// Abort discards a destination returned by CreateDestination: local files are
// removed and s3 uploads are never started. Other writers are just closed.
func Abort(wc io.WriteCloser) error {
	if a, ok := wc.(aborter); ok {
		return a.Abort()
	}
	return wc.Close()
}

type aborter interface {
	Abort() error
}

type localFile struct {
	*os.File
}

func (l *localFile) Abort() error {
	_ = l.Close()
	return os.Remove(l.Name())
}

func compress(uri string, wc io.WriteCloser) (io.WriteCloser, error) {
	switch {
	case strings.HasSuffix(uri, ".gz"):
		gz := gzip.NewWriter(wc)
		return &stackedWriter{Writer: gz, closers: []io.Closer{gz, wc}}, nil
	case strings.HasSuffix(uri, ".zst"):
		zw, err := zstd.NewWriter(wc)
		if err != nil {
			_ = wc.Close()
			return nil, fmt.Errorf("failed to create zstd output: %w", err)
		}
		return &stackedWriter{Writer: zw, closers: []io.Closer{zw, wc}}, nil
	}
	return wc, nil
}

type stackedWriter struct {
	io.Writer
	closers []io.Closer
}

func (s *stackedWriter) Close() error {
	return closeAll(s.closers...)
}

// Abort closes the compressors and aborts the underlying destination.
func (s *stackedWriter) Abort() error {
	last := len(s.closers) - 1
	for _, c := range s.closers[:last] {
		_ = c.Close()
	}
	return Abort(s.closers[last].(io.WriteCloser))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// s3Upload stages output locally and uploads it as a single object on Close.
type s3Upload struct {
	ctx    context.Context
	client ObjectClient
	bucket string
	key    string
	f      *os.File
	closed bool
}

func (u *s3Upload) Write(p []byte) (int, error) {
	return u.f.Write(p)
}

func (u *s3Upload) Abort() error {
	if u.closed {
		return nil
	}
	u.closed = true
	_ = u.f.Close()
	return os.Remove(u.f.Name())
}

func (u *s3Upload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	defer func() {
		_ = u.f.Close()
		_ = os.Remove(u.f.Name())
	}()

	if _, err := u.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind upload staging file: %w", err)
	}
	_, err := u.client.PutObject(u.ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.key),
		Body:   u.f,
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", u.bucket, u.key, err)
	}
	return nil
}
