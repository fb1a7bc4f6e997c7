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

package trackjob

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/trackrunner/internal/signals"
)

// readLines returns the non-blank lines of r with their terminators removed.
func readLines(ctx context.Context, r io.Reader) ([]string, error) {
	br := bufio.NewReaderSize(r, 1<<20)

	var lines []string
	for {
		if len(lines)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
	}
}

// splitHeader returns the input column names and the data lines.
// Explicitly configured columns win over the header row, which is then skipped.
func splitHeader(sep rune, hasHeader bool, configured []string, lines []string) ([]string, []string, error) {
	columns := configured
	if hasHeader && len(lines) > 0 {
		header := lines[0]
		lines = lines[1:]
		if len(columns) == 0 {
			fields, err := signals.SplitRow(sep, header)
			if err != nil {
				return nil, nil, &signals.ConfigurationError{Column: header, Reason: fmt.Sprintf("unreadable header row: %v", err)}
			}
			columns = make([]string, len(fields))
			for i, f := range fields {
				columns[i] = strings.TrimSpace(f)
			}
		}
	}
	if len(columns) == 0 {
		return nil, nil, &signals.ConfigurationError{Reason: "no input columns configured and no header row found"}
	}
	return columns, lines, nil
}

// ctxCheckInterval is how many rows a batch parses between context checks.
const ctxCheckInterval = 1024

// extractBatches parses lines in parallel batches and returns the results in
// input order. The sequence number of each line is its index in lines.
// observe, if set, sees every parsed value on the goroutine that parsed it.
// When several lines fail, the error for the earliest one is returned. Once a
// batch fails, later batches stop parsing; earlier ones run to completion so
// an earlier failure is still found.
func extractBatches[T any](ctx context.Context, lines []string, batchSize, limit int, parse func(seq int64, line string) (T, error), observe func(batch int, v *T)) ([]T, error) {
	nbatches := (len(lines) + batchSize - 1) / batchSize
	results := make([][]T, nbatches)
	errs := make([]error, nbatches)

	var firstFailed atomic.Int64
	firstFailed.Store(int64(nbatches))
	fail := func(b int, err error) {
		errs[b] = err
		for {
			cur := firstFailed.Load()
			if int64(b) >= cur || firstFailed.CompareAndSwap(cur, int64(b)) {
				return
			}
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(limit)
	for b := range nbatches {
		g.Go(func() error {
			start := b * batchSize
			end := min(start+batchSize, len(lines))
			out := make([]T, 0, end-start)
			for i := start; i < end; i++ {
				if firstFailed.Load() < int64(b) {
					return nil
				}
				if (i-start)%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						fail(b, err)
						return nil
					}
				}
				v, err := parse(int64(i), lines[i])
				if err != nil {
					fail(b, err)
					return nil
				}
				if observe != nil {
					observe(b, &v)
				}
				out = append(out, v)
			}
			results[b] = out
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	flat := make([]T, 0, len(lines))
	for _, r := range results {
		flat = append(flat, r...)
	}
	return flat, nil
}
