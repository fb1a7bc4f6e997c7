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
	"context"
	"io"

	"github.com/cardinalhq/trackrunner/internal/partition"
	"github.com/cardinalhq/trackrunner/internal/signals"
	"github.com/cardinalhq/trackrunner/internal/sizing"
)

// PartitionStats describes how one worker's share of the input would look.
type PartitionStats struct {
	Partition int
	Records   int
	Entities  int
	Spilled   bool
}

// Plan runs extraction, shuffle and size prediction without reconstructing
// anything, and reports the per-partition load.
func (j *Job) Plan(ctx context.Context, src io.Reader) ([]PartitionStats, error) {
	lines, err := readLines(ctx, src)
	if err != nil {
		return nil, err
	}
	inputColumns, lines, err := splitHeader(j.sep, j.cfg.HasHeader, j.cfg.InputColumns, lines)
	if err != nil {
		return nil, err
	}
	cols, err := signals.ResolveColumns(inputColumns, j.cfg.Columns, j.cfg.OutputColumns)
	if err != nil {
		return nil, err
	}

	workers := j.cfg.workers()
	records, _, err := j.extract(ctx, signals.NewExtractor(j.sep, cols), lines, workers)
	if err != nil {
		return nil, err
	}

	parts := partition.Shuffle(records, partition.NewPartitioner(workers))
	runs, err := j.buildRuns(ctx, parts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeRuns(runs) }()

	lookup, err := sizing.Predict(ctx, runs)
	if err != nil {
		return nil, err
	}

	stats := make([]PartitionStats, len(runs))
	for i, run := range runs {
		n, _ := lookup.Count(i)
		_, spilled := run.(*partition.DiskRun)
		stats[i] = PartitionStats{Partition: i, Records: run.Len(), Entities: n, Spilled: spilled}
	}
	return stats, nil
}
