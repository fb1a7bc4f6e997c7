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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cardinalhq/trackrunner/internal/idgen"
	"github.com/cardinalhq/trackrunner/internal/logctx"
	"github.com/cardinalhq/trackrunner/internal/signals"
)

// PointSink receives standalone points in input order.
type PointSink interface {
	WritePoints(ctx context.Context, points []signals.Point) error
}

// RunPoints converts every row of src into a standalone point. No grouping
// or sorting is done; points are written in input order in batches.
func (j *Job) RunPoints(ctx context.Context, src io.Reader, sink PointSink) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: idgen.NewRunID()}
	ctx, logger := logctx.With(ctx, slog.String("runID", summary.RunID))

	lines, err := readLines(ctx, src)
	if err != nil {
		return summary, err
	}
	inputColumns, lines, err := splitHeader(j.sep, j.cfg.HasHeader, j.cfg.InputColumns, lines)
	if err != nil {
		return summary, err
	}
	extractor, err := signals.NewPointExtractor(j.sep, inputColumns, j.cfg.Points.Columns, j.cfg.OutputColumns, j.cfg.Points.DefaultRadius)
	if err != nil {
		return summary, err
	}

	batchSize := j.cfg.batchSize()
	points, err := extractBatches(ctx, lines, batchSize, j.cfg.workers(), extractor.Extract, nil)
	if err != nil {
		return summary, err
	}
	summary.Records = len(points)
	recordsExtracted.Add(ctx, int64(len(points)))

	for i := 0; i < len(points); i += batchSize {
		batch := points[i:min(i+batchSize, len(points))]
		if err := sink.WritePoints(ctx, batch); err != nil {
			return summary, fmt.Errorf("failed to write points: %w", err)
		}
		pointsEmitted.Add(ctx, int64(len(batch)))
	}
	summary.Points = len(points)
	summary.Duration = time.Since(start)

	logger.Info("Point conversion complete", slog.Any("summary", summary))
	return summary, nil
}
