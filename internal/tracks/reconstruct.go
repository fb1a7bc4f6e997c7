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

// Package tracks assembles sorted signal records into per-entity trajectories.
package tracks

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cardinalhq/trackrunner/internal/partition"
	"github.com/cardinalhq/trackrunner/internal/signals"
	"github.com/cardinalhq/trackrunner/internal/sizing"
	"github.com/cardinalhq/trackrunner/pipeline"
	"github.com/cardinalhq/trackrunner/pipeline/wkk"
)

// ProjectFunc re-parses a raw row into the point's output properties.
type ProjectFunc func(seq int64, raw string) (pipeline.Row, error)

// Reconstructor turns one worker's sorted run into trajectories.
// It keeps no state between calls and may be shared by all workers.
type Reconstructor struct {
	// Segmented starts a new segment whenever the segment id changes.
	// When false every entity gets exactly one segment.
	Segmented bool
	// Project supplies point properties. Nil leaves only the derived _ts.
	Project ProjectFunc
}

// NewReconstructor builds a Reconstructor that projects through the extractor's output columns.
func NewReconstructor(e *signals.Extractor) *Reconstructor {
	return &Reconstructor{
		Segmented: e.Columns().Segmented(),
		Project:   e.Project,
	}
}

// slot is the arena entry for one entity. The last segment is the open one.
type slot struct {
	entityID string
	segments []Segment
}

// Reconstruct makes a single forward pass over run and returns one
// Trajectory per entity in first-seen order. The entity count must match the
// prediction for partitionIdx. Nothing is returned on error.
func (r *Reconstructor) Reconstruct(ctx context.Context, partitionIdx int, run partition.Run, lookup sizing.Lookup) ([]Trajectory, error) {
	predicted, ok := lookup.Count(partitionIdx)
	if !ok {
		return nil, &SizingInconsistencyError{Partition: partitionIdx, Predicted: -1}
	}

	if err := run.Reset(); err != nil {
		return nil, fmt.Errorf("partition %d: %w", partitionIdx, err)
	}

	arena := make([]slot, 0, predicted)
	ordinal := make(map[string]int, predicted)

	current := -1
	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := run.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", partitionIdx, err)
		}

		// Records arrive grouped by entity, so the map is only consulted on a change.
		if current < 0 || arena[current].entityID != rec.EntityID {
			idx, seen := ordinal[rec.EntityID]
			if !seen {
				if len(arena) == predicted {
					return nil, &SizingInconsistencyError{Partition: partitionIdx, Predicted: predicted, Observed: predicted + 1}
				}
				idx = len(arena)
				ordinal[rec.EntityID] = idx
				arena = append(arena, slot{entityID: rec.EntityID})
			}
			current = idx
		}

		point, err := r.point(&rec)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", partitionIdx, err)
		}

		s := &arena[current]
		s.open(&rec, r.Segmented)
		open := &s.segments[len(s.segments)-1]
		open.Points = append(open.Points, point)
	}

	if len(arena) != predicted {
		return nil, &SizingInconsistencyError{Partition: partitionIdx, Predicted: predicted, Observed: len(arena)}
	}

	out := make([]Trajectory, len(arena))
	for i := range arena {
		out[i] = Trajectory{EntityID: arena[i].entityID, Segments: arena[i].segments}
	}
	return out, nil
}

// open starts a new segment when the record does not belong to the open one.
func (s *slot) open(rec *signals.EventRecord, segmented bool) {
	if len(s.segments) == 0 {
		s.segments = append(s.segments, newSegment(rec, segmented))
		return
	}
	if !segmented {
		return
	}
	if s.segments[len(s.segments)-1].SegmentID != rec.SegmentID {
		s.segments = append(s.segments, newSegment(rec, segmented))
	}
}

func newSegment(rec *signals.EventRecord, segmented bool) Segment {
	seg := Segment{EntityID: rec.EntityID}
	if segmented {
		seg.SegmentID = rec.SegmentID
		seg.HasSegmentID = true
	}
	return seg
}

func (r *Reconstructor) point(rec *signals.EventRecord) (Point, error) {
	var props pipeline.Row
	if r.Project != nil {
		var err error
		props, err = r.Project(rec.Seq, rec.Raw)
		if err != nil {
			return Point{}, err
		}
	}
	if props == nil {
		props = make(pipeline.Row, 1)
	}
	props[wkk.RowKeyTimestamp] = rec.Timestamp

	return Point{
		Lat:       rec.Lat,
		Lon:       rec.Lon,
		Timestamp: rec.Timestamp,
		Props:     props,
	}, nil
}

// SegmentProps returns the metadata row for a segment: owning entity id and, if present, segment id.
func SegmentProps(seg *Segment) pipeline.Row {
	row := pipeline.Row{wkk.RowKeyUserID: seg.EntityID}
	if seg.HasSegmentID {
		row[wkk.RowKeyTrackID] = seg.SegmentID
	}
	return row
}
