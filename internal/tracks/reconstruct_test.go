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

package tracks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/trackrunner/internal/partition"
	"github.com/cardinalhq/trackrunner/internal/signals"
	"github.com/cardinalhq/trackrunner/internal/sizing"
	"github.com/cardinalhq/trackrunner/pipeline"
	"github.com/cardinalhq/trackrunner/pipeline/wkk"
)

var trackInput = []string{"userid", "ts", "lat", "lon", "track"}

func newExtractor(t *testing.T, track string) *signals.Extractor {
	t.Helper()
	cols, err := signals.ResolveColumns(trackInput, signals.ColumnNames{
		UserID: "userid", Timestamp: "ts", Lat: "lat", Lon: "lon", TrackID: track,
	}, nil)
	require.NoError(t, err)
	return signals.NewExtractor(',', cols)
}

func extractAll(t *testing.T, e *signals.Extractor, lines ...string) []signals.EventRecord {
	t.Helper()
	out := make([]signals.EventRecord, 0, len(lines))
	for i, l := range lines {
		rec, err := e.Extract(int64(i), l)
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func reconstructOne(t *testing.T, r *Reconstructor, records []signals.EventRecord) []Trajectory {
	t.Helper()
	run := partition.NewMemoryRun(records)
	lookup, err := sizing.Predict(context.Background(), []partition.Run{run})
	require.NoError(t, err)
	out, err := r.Reconstruct(context.Background(), 0, run, lookup)
	require.NoError(t, err)
	return out
}

func timestamps(seg Segment) []float64 {
	out := make([]float64, len(seg.Points))
	for i, p := range seg.Points {
		out[i] = p.Timestamp
	}
	return out
}

func TestReconstruct_Unsegmented(t *testing.T) {
	e := newExtractor(t, "")
	records := extractAll(t, e,
		"u1,1,10,20,x",
		"u1,3,11,21,x",
		"u1,2,12,22,y",
	)

	out := reconstructOne(t, NewReconstructor(e), records)
	require.Len(t, out, 1)
	assert.Equal(t, "u1", out[0].EntityID)
	require.Len(t, out[0].Segments, 1)

	seg := out[0].Segments[0]
	assert.False(t, seg.HasSegmentID)
	assert.Equal(t, []float64{1, 2, 3}, timestamps(seg))
	assert.Equal(t, 12.0, seg.Points[1].Lat)
	assert.Equal(t, 22.0, seg.Points[1].Lon)
	assert.Equal(t, "y", seg.Points[1].Props.GetString(wkk.NewRowKey("track")))
	assert.Equal(t, 2.0, seg.Points[1].Props[wkk.RowKeyTimestamp])
}

func TestReconstruct_Segmented(t *testing.T) {
	e := newExtractor(t, "track")
	records := extractAll(t, e,
		"u1,4,0,0,A",
		"u1,1,0,0,A",
		"u1,3,0,0,B",
		"u1,2,0,0,A",
	)

	out := reconstructOne(t, NewReconstructor(e), records)
	require.Len(t, out, 1)
	segs := out[0].Segments
	require.Len(t, segs, 3)

	assert.Equal(t, "A", segs[0].SegmentID)
	assert.Equal(t, []float64{1, 2}, timestamps(segs[0]))
	assert.Equal(t, "B", segs[1].SegmentID)
	assert.Equal(t, []float64{3}, timestamps(segs[1]))
	assert.Equal(t, "A", segs[2].SegmentID)
	assert.Equal(t, []float64{4}, timestamps(segs[2]))

	for _, s := range segs {
		assert.True(t, s.HasSegmentID)
		assert.Equal(t, "u1", s.EntityID)
	}
}

func TestReconstruct_EmptyPartition(t *testing.T) {
	e := newExtractor(t, "")
	out := reconstructOne(t, NewReconstructor(e), nil)
	assert.Empty(t, out)
}

func TestReconstruct_FirstSeenOrderAndEqualTimestamps(t *testing.T) {
	e := newExtractor(t, "")
	records := extractAll(t, e,
		"b,5,1,1,x",
		"a,5,2,2,x",
		"a,5,3,3,x",
		"b,1,4,4,x",
	)

	out := reconstructOne(t, NewReconstructor(e), records)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].EntityID)
	assert.Equal(t, "b", out[1].EntityID)

	// equal timestamps keep input order
	a := out[0].Segments[0]
	assert.Equal(t, 2.0, a.Points[0].Lat)
	assert.Equal(t, 3.0, a.Points[1].Lat)
}

// maximalRuns counts runs of equal segment ids in an already-sorted sequence.
func maximalRuns(ids []string) int {
	n := 0
	for i := range ids {
		if i == 0 || ids[i] != ids[i-1] {
			n++
		}
	}
	return n
}

func TestReconstruct_SegmentCountAndChronology(t *testing.T) {
	e := newExtractor(t, "track")
	var lines []string
	for i := range 400 {
		user := fmt.Sprintf("u%d", i%7)
		track := string(rune('A' + (i*13)%3))
		lines = append(lines, fmt.Sprintf("%s,%d,%d,%d,%s", user, (i*37)%101, i%90, i%180, track))
	}
	records := extractAll(t, e, lines...)

	sorted := append([]signals.EventRecord(nil), records...)
	partition.SortRun(sorted)
	expectedRuns := map[string][]string{}
	for _, r := range sorted {
		expectedRuns[r.EntityID] = append(expectedRuns[r.EntityID], r.SegmentID)
	}

	out := reconstructOne(t, NewReconstructor(e), records)
	require.Len(t, out, 7)

	total := 0
	for _, traj := range out {
		assert.Equal(t, maximalRuns(expectedRuns[traj.EntityID]), len(traj.Segments), traj.EntityID)

		last := -1.0
		for _, seg := range traj.Segments {
			require.NotEmpty(t, seg.Points)
			for _, p := range seg.Points {
				assert.GreaterOrEqual(t, p.Timestamp, last)
				last = p.Timestamp
				total++
			}
		}
		assert.Equal(t, len(expectedRuns[traj.EntityID]), traj.NumPoints())
	}
	assert.Equal(t, len(records), total)
}

func TestReconstruct_SizingInconsistency(t *testing.T) {
	e := newExtractor(t, "")
	r := NewReconstructor(e)
	records := extractAll(t, e, "a,1,0,0,x", "b,1,0,0,x")

	tests := []struct {
		name      string
		lookup    sizing.Lookup
		predicted int
		observed  int
	}{
		{"too few predicted", sizing.NewLookup([]int{1}), 1, 2},
		{"too many predicted", sizing.NewLookup([]int{3}), 3, 2},
		{"no prediction", sizing.NewLookup(nil), -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := partition.NewMemoryRun(append([]signals.EventRecord(nil), records...))
			out, err := r.Reconstruct(context.Background(), 0, run, tt.lookup)
			assert.Nil(t, out)

			var sizeErr *SizingInconsistencyError
			require.ErrorAs(t, err, &sizeErr)
			assert.Equal(t, 0, sizeErr.Partition)
			assert.Equal(t, tt.predicted, sizeErr.Predicted)
			assert.Equal(t, tt.observed, sizeErr.Observed)
		})
	}
}

func TestReconstruct_ProjectionFailureIsFatal(t *testing.T) {
	boom := errors.New("boom")
	r := &Reconstructor{
		Project: func(seq int64, raw string) (pipeline.Row, error) {
			if seq == 1 {
				return nil, boom
			}
			return pipeline.Row{}, nil
		},
	}
	records := []signals.EventRecord{
		{EntityID: "a", Timestamp: 1, Seq: 0},
		{EntityID: "a", Timestamp: 2, Seq: 1},
	}
	run := partition.NewMemoryRun(records)
	out, err := r.Reconstruct(context.Background(), 0, run, sizing.NewLookup([]int{1}))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, boom)
}

func TestReconstruct_IsRepeatable(t *testing.T) {
	e := newExtractor(t, "track")
	records := extractAll(t, e, "a,2,0,0,A", "a,1,0,0,B", "b,1,0,0,A")
	r := NewReconstructor(e)

	run := partition.NewMemoryRun(records)
	lookup, err := sizing.Predict(context.Background(), []partition.Run{run})
	require.NoError(t, err)

	first, err := r.Reconstruct(context.Background(), 0, run, lookup)
	require.NoError(t, err)
	second, err := r.Reconstruct(context.Background(), 0, run, lookup)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReconstruct_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := partition.NewMemoryRun([]signals.EventRecord{{EntityID: "a"}})
	_, err := (&Reconstructor{}).Reconstruct(ctx, 0, run, sizing.NewLookup([]int{1}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSegmentProps(t *testing.T) {
	seg := Segment{EntityID: "u1", SegmentID: "A", HasSegmentID: true}
	row := SegmentProps(&seg)
	assert.Equal(t, "u1", row.GetString(wkk.RowKeyUserID))
	assert.Equal(t, "A", row.GetString(wkk.RowKeyTrackID))

	seg = Segment{EntityID: "u2"}
	row = SegmentProps(&seg)
	_, ok := row[wkk.RowKeyTrackID]
	assert.False(t, ok)
}
