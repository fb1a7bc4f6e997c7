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

// Package sizing predicts how many distinct entities each worker will see so
// the reconstruction pass can allocate its per-entity storage up front.
package sizing

import (
	"context"
	"errors"
	"fmt"
	"io"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/trackrunner/internal/partition"
)

// Lookup maps a partition index to its distinct entity count.
// It is built once by Predict and only read afterwards.
type Lookup struct {
	counts []int
}

// NewLookup copies counts into a Lookup.
func NewLookup(counts []int) Lookup {
	c := make([]int, len(counts))
	copy(c, counts)
	return Lookup{counts: c}
}

// Count returns the predicted entity count for a partition.
func (l Lookup) Count(partition int) (int, bool) {
	if partition < 0 || partition >= len(l.counts) {
		return 0, false
	}
	return l.counts[partition], true
}

// Len returns the number of partitions covered.
func (l Lookup) Len() int {
	return len(l.counts)
}

// Total returns the sum of all partition counts.
func (l Lookup) Total() int {
	total := 0
	for _, c := range l.counts {
		total += c
	}
	return total
}

// Predict counts distinct entity ids in every run concurrently. It returns
// only after all runs have been counted, and rewinds each run before returning.
func Predict(ctx context.Context, runs []partition.Run) (Lookup, error) {
	counts := make([]int, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	for i, run := range runs {
		g.Go(func() error {
			n, err := CountDistinct(gctx, run)
			if err != nil {
				return fmt.Errorf("partition %d: %w", i, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Lookup{}, err
	}

	return Lookup{counts: counts}, nil
}

// CountDistinct makes one pass over run and returns the number of distinct entity ids.
func CountDistinct(ctx context.Context, run partition.Run) (int, error) {
	if err := run.Reset(); err != nil {
		return 0, err
	}
	defer func() { _ = run.Reset() }()

	seen := mapset.NewThreadUnsafeSet[string]()
	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		rec, err := run.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		seen.Add(rec.EntityID)
	}
	return seen.Cardinality(), nil
}
