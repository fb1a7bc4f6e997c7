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

// Package trackjob runs the full sessionization pipeline over one input:
// extract, shuffle, sort, predict sizes, reconstruct, and emit.
package trackjob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/axiomhq/hyperloglog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/trackrunner/internal/cbor"
	"github.com/cardinalhq/trackrunner/internal/idgen"
	"github.com/cardinalhq/trackrunner/internal/logctx"
	"github.com/cardinalhq/trackrunner/internal/partition"
	"github.com/cardinalhq/trackrunner/internal/signals"
	"github.com/cardinalhq/trackrunner/internal/sizing"
	"github.com/cardinalhq/trackrunner/internal/tracks"
)

// Sink receives the trajectories of one partition at a time.
type Sink interface {
	Write(ctx context.Context, trajectories []tracks.Trajectory) error
}

type reconstructFunc func(ctx context.Context, partitionIdx int, run partition.Run, lookup sizing.Lookup) ([]tracks.Trajectory, error)

// Job is a configured pipeline. A Job may be run more than once.
type Job struct {
	cfg  Config
	sep  rune
	cbor *cbor.Config

	// wrap decorates the reconstruction step in tests.
	wrap func(next reconstructFunc) reconstructFunc
}

func New(cfg Config) (*Job, error) {
	sep, err := cfg.SeparatorRune()
	if err != nil {
		return nil, err
	}
	cborConfig, err := cbor.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR config: %w", err)
	}
	return &Job{
		cfg:  cfg,
		sep:  sep,
		cbor: cborConfig,
	}, nil
}

// Summary describes one completed run.
type Summary struct {
	RunID      string
	Records    int
	Partitions int
	Entities   int
	// EstimatedEntities is a HyperLogLog estimate taken before the shuffle.
	EstimatedEntities uint64
	Segments          int
	Points            int
	// Points per trajectory.
	PointsP50 float64
	PointsP90 float64
	PointsP99 float64
	Retries   int
	Duration  time.Duration
}

func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("runID", s.RunID),
		slog.Int("records", s.Records),
		slog.Int("partitions", s.Partitions),
		slog.Int("entities", s.Entities),
		slog.Uint64("estimatedEntities", s.EstimatedEntities),
		slog.Int("segments", s.Segments),
		slog.Int("points", s.Points),
		slog.Float64("pointsP50", s.PointsP50),
		slog.Float64("pointsP90", s.PointsP90),
		slog.Float64("pointsP99", s.PointsP99),
		slog.Int("retries", s.Retries),
		slog.Duration("duration", s.Duration),
	)
}

// Run reads every row from src and writes the reconstructed trajectories to
// sink, one partition at a time in ascending partition order. Nothing is
// written unless every partition reconstructs successfully.
func (j *Job) Run(ctx context.Context, src io.Reader, sink Sink) (summary Summary, err error) {
	start := time.Now()
	summary.RunID = idgen.NewRunID()
	ctx, logger := logctx.With(ctx, slog.String("runID", summary.RunID))

	lines, err := readLines(ctx, src)
	if err != nil {
		return summary, err
	}
	inputColumns, lines, err := splitHeader(j.sep, j.cfg.HasHeader, j.cfg.InputColumns, lines)
	if err != nil {
		return summary, err
	}
	cols, err := signals.ResolveColumns(inputColumns, j.cfg.Columns, j.cfg.OutputColumns)
	if err != nil {
		return summary, err
	}
	extractor := signals.NewExtractor(j.sep, cols)

	workers := j.cfg.workers()
	records, estimate, err := j.extract(ctx, extractor, lines, workers)
	if err != nil {
		return summary, err
	}
	summary.Records = len(records)
	summary.EstimatedEntities = estimate
	recordsExtracted.Add(ctx, int64(len(records)))
	logger.Debug("Extracted records", slog.Int("records", len(records)), slog.Uint64("estimatedEntities", estimate))

	p := partition.NewPartitioner(workers)
	summary.Partitions = p.NumPartitions()

	runs, err := j.buildRuns(ctx, partition.Shuffle(records, p))
	if err != nil {
		return summary, err
	}
	defer func() {
		if cerr := closeRuns(runs); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	lookup, err := sizing.Predict(ctx, runs)
	if err != nil {
		return summary, fmt.Errorf("size prediction failed: %w", err)
	}
	logger.Debug("Predicted partition sizes", slog.Int("entities", lookup.Total()))

	results, retries, err := j.reconstructAll(ctx, extractor, runs, lookup)
	summary.Retries = retries
	if err != nil {
		return summary, err
	}

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return summary, fmt.Errorf("failed to create points sketch: %w", err)
	}
	if err := emit(ctx, sink, results, sketch, &summary); err != nil {
		return summary, err
	}

	summary.Duration = time.Since(start)
	logger.Info("Sessionization complete", slog.Any("summary", summary))
	return summary, nil
}

func (j *Job) extract(ctx context.Context, extractor *signals.Extractor, lines []string, workers int) ([]signals.EventRecord, uint64, error) {
	batchSize := j.cfg.batchSize()
	sketches := make([]*hyperloglog.Sketch, (len(lines)+batchSize-1)/batchSize)
	for i := range sketches {
		sketches[i] = hyperloglog.New14()
	}

	records, err := extractBatches(ctx, lines, batchSize, workers, extractor.Extract,
		func(batch int, rec *signals.EventRecord) {
			sketches[batch].Insert([]byte(rec.EntityID))
		})
	if err != nil {
		return nil, 0, err
	}

	merged := hyperloglog.New14()
	for _, sk := range sketches {
		if err := merged.Merge(sk); err != nil {
			return nil, 0, fmt.Errorf("failed to merge entity sketches: %w", err)
		}
	}
	return records, merged.Estimate(), nil
}

func (j *Job) buildRuns(ctx context.Context, parts [][]signals.EventRecord) ([]partition.Run, error) {
	opts := partition.RunOptions{
		SpillThreshold: j.cfg.SpillThreshold,
		TempDir:        j.cfg.TempDir,
		CBOR:           j.cbor,
	}

	runs := make([]partition.Run, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	for i, records := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			run, err := partition.NewRun(records, opts)
			if err != nil {
				return fmt.Errorf("partition %d: failed to build sorted run: %w", i, err)
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if cerr := closeRuns(runs); cerr != nil {
			err = multierror.Append(err, cerr)
		}
		return nil, err
	}
	return runs, nil
}

func (j *Job) reconstructAll(ctx context.Context, extractor *signals.Extractor, runs []partition.Run, lookup sizing.Lookup) ([][]tracks.Trajectory, int, error) {
	var reconstruct reconstructFunc = tracks.NewReconstructor(extractor).Reconstruct
	if j.wrap != nil {
		reconstruct = j.wrap(reconstruct)
	}
	results := make([][]tracks.Trajectory, len(runs))
	retries := make([]int, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	for i, run := range runs {
		g.Go(func() error {
			pctx, _ := logctx.WithPartition(gctx, i)
			out, n, err := j.reconstructPartition(pctx, reconstruct, i, run, lookup)
			retries[i] = n
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	err := g.Wait()

	total := 0
	for _, n := range retries {
		total += n
	}
	if err != nil {
		return nil, total, err
	}
	return results, total, nil
}

// reconstructPartition retries a failed partition from the start of its run.
// It returns the number of retries performed.
func (j *Job) reconstructPartition(ctx context.Context, reconstruct reconstructFunc, idx int, run partition.Run, lookup sizing.Lookup) ([]tracks.Trajectory, int, error) {
	logger := logctx.FromContext(ctx)
	attempts := j.cfg.maxAttempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := reconstruct(ctx, idx, run, lookup)
		if err == nil {
			return out, attempt - 1, nil
		}
		lastErr = err
		if !retryable(err) || attempt == attempts {
			return nil, attempt - 1, err
		}
		partitionRetries.Add(ctx, 1)
		logger.Warn("Partition reconstruction failed, retrying",
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}
	return nil, attempts - 1, lastErr
}

// retryable reports whether running the same partition again could succeed.
func retryable(err error) bool {
	var sizeErr *tracks.SizingInconsistencyError
	if errors.As(err, &sizeErr) {
		return false
	}
	var parseErr *signals.ParseError
	if errors.As(err, &parseErr) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// emit writes each non-empty partition to the sink in partition order and
// records points per trajectory in sketch.
func emit(ctx context.Context, sink Sink, results [][]tracks.Trajectory, sketch *ddsketch.DDSketch, summary *Summary) error {
	for i, trajectories := range results {
		if len(trajectories) == 0 {
			continue
		}

		segments := 0
		for _, traj := range trajectories {
			n := traj.NumPoints()
			if err := sketch.Add(float64(n)); err != nil {
				return fmt.Errorf("partition %d: failed to record points per trajectory: %w", i, err)
			}
			summary.Points += n
			segments += len(traj.Segments)
		}

		if err := sink.Write(ctx, trajectories); err != nil {
			return fmt.Errorf("partition %d: failed to write trajectories: %w", i, err)
		}
		summary.Entities += len(trajectories)
		summary.Segments += segments
		trajectoriesEmitted.Add(ctx, int64(len(trajectories)))
		segmentsEmitted.Add(ctx, int64(segments))
	}

	if sketch.GetCount() > 0 {
		qs, err := sketch.GetValuesAtQuantiles([]float64{0.5, 0.9, 0.99})
		if err != nil {
			return fmt.Errorf("failed to read points quantiles: %w", err)
		}
		summary.PointsP50, summary.PointsP90, summary.PointsP99 = qs[0], qs[1], qs[2]
	}
	return nil
}

func closeRuns(runs []partition.Run) error {
	var errs *multierror.Error
	for i, run := range runs {
		if run == nil {
			continue
		}
		if err := run.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("partition %d: %w", i, err))
		}
	}
	return errs.ErrorOrNil()
}
