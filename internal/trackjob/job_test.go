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
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/mapping"
	"github.com/DataDog/sketches-go/ddsketch/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/trackrunner/internal/partition"
	"github.com/cardinalhq/trackrunner/internal/signals"
	"github.com/cardinalhq/trackrunner/internal/sizing"
	"github.com/cardinalhq/trackrunner/internal/tracks"
	"github.com/cardinalhq/trackrunner/pipeline/wkk"
)

type memSink struct {
	mu     sync.Mutex
	writes [][]tracks.Trajectory
}

func (s *memSink) Write(_ context.Context, trajectories []tracks.Trajectory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, trajectories)
	return nil
}

func (s *memSink) all() []tracks.Trajectory {
	var out []tracks.Trajectory
	for _, w := range s.writes {
		out = append(out, w...)
	}
	return out
}

func (s *memSink) sorted() []tracks.Trajectory {
	out := s.all()
	slices.SortFunc(out, func(a, b tracks.Trajectory) int {
		return strings.Compare(a.EntityID, b.EntityID)
	})
	return out
}

type failingSink struct{ err error }

func (s failingSink) Write(context.Context, []tracks.Trajectory) error { return s.err }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Columns.TrackID = "track"
	cfg.ExtractBatchSize = 16
	return cfg
}

func runJob(t *testing.T, cfg Config, input string) (*memSink, Summary) {
	t.Helper()
	job, err := New(cfg)
	require.NoError(t, err)
	sink := &memSink{}
	summary, err := job.Run(context.Background(), strings.NewReader(input), sink)
	require.NoError(t, err)
	return sink, summary
}

// generated returns a shuffled-looking input of users with interleaved tracks.
func generated(users, rows int) string {
	var b strings.Builder
	b.WriteString("userid,timestamp,lat,lon,track,speed\n")
	for i := range rows {
		fmt.Fprintf(&b, "user-%d,%d,%d.5,%d.25,%c,%d\n",
			(i*7)%users, (i*53)%97, i%80, i%170, 'A'+rune((i/5)%3), i)
	}
	return b.String()
}

func TestRun_ScenarioA(t *testing.T) {
	cfg := testConfig()
	cfg.Columns.TrackID = ""
	sink, summary := runJob(t, cfg, "userid,timestamp,lat,lon\nu1,1,10,20\nu1,3,11,21\nu1,2,12,22\n")

	out := sink.all()
	require.Len(t, out, 1)
	require.Len(t, out[0].Segments, 1)
	seg := out[0].Segments[0]
	require.Len(t, seg.Points, 3)
	for i, want := range []float64{1, 2, 3} {
		assert.Equal(t, want, seg.Points[i].Timestamp)
	}
	assert.Equal(t, 12.0, seg.Points[1].Lat)

	assert.Equal(t, 3, summary.Records)
	assert.Equal(t, 1, summary.Entities)
	assert.Equal(t, 1, summary.Segments)
	assert.Equal(t, 3, summary.Points)
	assert.Len(t, summary.RunID, 26)
}

func TestRun_ScenarioB(t *testing.T) {
	sink, summary := runJob(t, testConfig(),
		"userid,timestamp,lat,lon,track\nu1,1,0,0,A\nu1,2,0,0,A\nu1,3,0,0,B\nu1,4,0,0,A\n")

	out := sink.all()
	require.Len(t, out, 1)
	var sizes []int
	var ids []string
	for _, s := range out[0].Segments {
		sizes = append(sizes, s.Len())
		ids = append(ids, s.SegmentID)
	}
	assert.Equal(t, []int{2, 1, 1}, sizes)
	assert.Equal(t, []string{"A", "B", "A"}, ids)
	assert.Equal(t, 3, summary.Segments)
}

func TestRun_ScenarioC_MoreWorkersThanEntities(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 16
	sink, summary := runJob(t, cfg, "userid,timestamp,lat,lon,track\nu1,1,0,0,A\nu2,1,0,0,A\n")

	assert.Len(t, sink.all(), 2)
	assert.Equal(t, 16, summary.Partitions)
	assert.Equal(t, 2, summary.Entities)
}

func TestRun_IdenticalAcrossWorkerCounts(t *testing.T) {
	input := generated(23, 600)

	base := testConfig()
	base.Workers = 1
	baseSink, baseSummary := runJob(t, base, input)
	expected := baseSink.sorted()
	require.Len(t, expected, 23)

	tests := []struct {
		name    string
		workers int
		spill   int
	}{
		{"three workers", 3, 0},
		{"eight workers", 8, 0},
		{"three workers spilled", 3, 1},
		{"eight workers spilled", 8, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Workers = tt.workers
			cfg.SpillThreshold = tt.spill
			cfg.TempDir = t.TempDir()

			sink, summary := runJob(t, cfg, input)
			assert.Equal(t, expected, sink.sorted())
			assert.Equal(t, baseSummary.Segments, summary.Segments)
			assert.Equal(t, baseSummary.Points, summary.Points)
		})
	}
}

func TestRun_EntityLocalityAndChronology(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 5
	sink, _ := runJob(t, cfg, generated(31, 500))

	p := partition.NewPartitioner(5)
	seen := map[string]bool{}
	for i, write := range sink.writes {
		for _, traj := range write {
			assert.False(t, seen[traj.EntityID], "entity %s emitted twice", traj.EntityID)
			seen[traj.EntityID] = true
			if i == 0 {
				continue
			}
			// writes are in ascending partition order
			assert.GreaterOrEqual(t, p.Partition(traj.EntityID), p.Partition(sink.writes[i-1][0].EntityID))
		}
	}
	assert.Len(t, seen, 31)

	for _, traj := range sink.all() {
		last := -1.0
		for _, seg := range traj.Segments {
			for _, pt := range seg.Points {
				assert.GreaterOrEqual(t, pt.Timestamp, last)
				last = pt.Timestamp
			}
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 4
	input := generated(11, 300)

	job, err := New(cfg)
	require.NoError(t, err)

	first, second := &memSink{}, &memSink{}
	_, err = job.Run(context.Background(), strings.NewReader(input), first)
	require.NoError(t, err)
	_, err = job.Run(context.Background(), strings.NewReader(input), second)
	require.NoError(t, err)
	assert.Equal(t, first.writes, second.writes)
}

func TestRun_OutputColumnsAndPrefixes(t *testing.T) {
	cfg := testConfig()
	cfg.Columns = signals.ColumnNames{UserID: "stream.userid", Timestamp: "stream.ts", Lat: "stream.lat", Lon: "stream.lon"}
	cfg.OutputColumns = []string{"stream.speed"}
	sink, _ := runJob(t, cfg, "stream.userid,stream.ts,stream.lat,stream.lon,stream.speed\nu1,1,0,0,12\n")

	out := sink.all()
	require.Len(t, out, 1)
	props := out[0].Segments[0].Points[0].Props
	assert.Equal(t, "12", props.GetString(wkk.NewRowKey("speed")))
	assert.Equal(t, 1.0, props[wkk.RowKeyTimestamp])
	assert.Len(t, props, 2)
}

func TestRun_Summary(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 3
	_, summary := runJob(t, cfg, generated(40, 400))

	assert.Equal(t, 400, summary.Records)
	assert.Equal(t, 40, summary.Entities)
	assert.Equal(t, 400, summary.Points)
	assert.InDelta(t, 40, float64(summary.EstimatedEntities), 2)
	assert.InDelta(t, 10, summary.PointsP50, 1)
	assert.Equal(t, 0, summary.Retries)
}

func TestRun_BlankLinesAndNoHeader(t *testing.T) {
	cfg := testConfig()
	cfg.HasHeader = false
	cfg.InputColumns = []string{"userid", "timestamp", "lat", "lon", "track"}
	sink, summary := runJob(t, cfg, "\nu1,1,0,0,A\r\n\n   \nu1,2,0,0,A\n")

	assert.Equal(t, 2, summary.Records)
	require.Len(t, sink.all(), 1)
}

func TestRun_EmptyInput(t *testing.T) {
	cfg := testConfig()
	cfg.InputColumns = []string{"userid", "timestamp", "lat", "lon", "track"}
	sink, summary := runJob(t, cfg, "")
	assert.Empty(t, sink.writes)
	assert.Equal(t, 0, summary.Records)
}

func TestRun_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		cfg   func(*Config)
		input string
	}{
		{"missing user column", func(c *Config) { c.Columns.UserID = "nope" }, "userid,timestamp,lat,lon,track\nu1,1,0,0,A\n"},
		{"missing track column", func(c *Config) { c.Columns.TrackID = "nope" }, "userid,timestamp,lat,lon,track\nu1,1,0,0,A\n"},
		{"unknown output column", func(c *Config) { c.OutputColumns = []string{"nope"} }, "userid,timestamp,lat,lon,track\nu1,1,0,0,A\n"},
		{"no columns at all", func(c *Config) { c.HasHeader = false }, "u1,1,0,0,A\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.cfg(&cfg)
			job, err := New(cfg)
			require.NoError(t, err)

			sink := &memSink{}
			_, err = job.Run(context.Background(), strings.NewReader(tt.input), sink)
			var cfgErr *signals.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Empty(t, sink.writes)
		})
	}
}

func TestRun_ParseErrorReportsEarliestRow(t *testing.T) {
	cfg := testConfig()
	cfg.ExtractBatchSize = 2
	input := "userid,timestamp,lat,lon,track\nu1,1,0,0,A\nu1,2,0,0,A\nu1,x,0,0,A\nu1,3,0,0,A\nu1,4,bad,0,A\n"

	job, err := New(cfg)
	require.NoError(t, err)
	sink := &memSink{}
	_, err = job.Run(context.Background(), strings.NewReader(input), sink)

	var parseErr *signals.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, int64(2), parseErr.Seq)
	assert.Equal(t, 1, parseErr.Column)
	assert.Empty(t, sink.writes)
}

func TestRun_SinkError(t *testing.T) {
	job, err := New(testConfig())
	require.NoError(t, err)

	boom := errors.New("disk full")
	_, err = job.Run(context.Background(), strings.NewReader(generated(3, 10)), failingSink{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := New(testConfig())
	require.NoError(t, err)
	_, err = job.Run(ctx, strings.NewReader(generated(3, 10)), &memSink{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_RetriesTransientFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2
	job, err := New(cfg)
	require.NoError(t, err)

	var calls atomic.Int32
	var failed atomic.Bool
	job.wrap = func(next reconstructFunc) reconstructFunc {
		return func(ctx context.Context, idx int, run partition.Run, lookup sizing.Lookup) ([]tracks.Trajectory, error) {
			calls.Add(1)
			// consume part of the run before failing so the retry must rewind it
			_, _ = run.Next()
			if idx == 0 && failed.CompareAndSwap(false, true) {
				return nil, errors.New("transient read error")
			}
			return next(ctx, idx, run, lookup)
		}
	}

	sink := &memSink{}
	summary, err := job.Run(context.Background(), strings.NewReader(generated(9, 90)), sink)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retries)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 90, summary.Points)
	assert.Len(t, sink.all(), 9)
}

func TestRun_RetriesExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.MaxAttempts = 2
	job, err := New(cfg)
	require.NoError(t, err)

	var calls atomic.Int32
	boom := errors.New("always")
	job.wrap = func(reconstructFunc) reconstructFunc {
		return func(context.Context, int, partition.Run, sizing.Lookup) ([]tracks.Trajectory, error) {
			calls.Add(1)
			return nil, boom
		}
	}

	sink := &memSink{}
	summary, err := job.Run(context.Background(), strings.NewReader(generated(2, 4)), sink)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, summary.Retries)
	assert.Empty(t, sink.writes)
}

func TestRun_SizingInconsistencyIsNotRetried(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	job, err := New(cfg)
	require.NoError(t, err)

	var calls atomic.Int32
	job.wrap = func(next reconstructFunc) reconstructFunc {
		return func(ctx context.Context, idx int, run partition.Run, _ sizing.Lookup) ([]tracks.Trajectory, error) {
			calls.Add(1)
			return next(ctx, idx, run, sizing.NewLookup([]int{1}))
		}
	}

	sink := &memSink{}
	_, err = job.Run(context.Background(), strings.NewReader(generated(3, 9)), sink)
	var sizeErr *tracks.SizingInconsistencyError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, sink.writes)
}

func TestConfig_SeparatorRune(t *testing.T) {
	tests := []struct {
		sep     string
		want    rune
		wantErr bool
	}{
		{"", ',', false},
		{",", ',', false},
		{"tab", '\t', false},
		{`\t`, '\t', false},
		{"\t", '\t', false},
		{";", ';', false},
		{"|", '|', false},
		{"ab", 0, true},
		{`"`, 0, true},
		{"\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.sep), func(t *testing.T) {
			got, err := Config{Separator: tt.sep}.SeparatorRune()
			if tt.wantErr {
				var cfgErr *signals.ConfigurationError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_TabSeparated(t *testing.T) {
	cfg := testConfig()
	cfg.Separator = "tab"
	sink, _ := runJob(t, cfg, "userid\ttimestamp\tlat\tlon\ttrack\nu1\t2\t1.5\t2.5\tA\nu1\t1\t0\t0\tA\n")

	out := sink.all()
	require.Len(t, out, 1)
	assert.Equal(t, 1.5, out[0].Segments[0].Points[1].Lat)
}

func TestPlan(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 4
	cfg.SpillThreshold = 50
	cfg.TempDir = t.TempDir()
	job, err := New(cfg)
	require.NoError(t, err)

	stats, err := job.Plan(context.Background(), strings.NewReader(generated(17, 340)))
	require.NoError(t, err)
	require.Len(t, stats, 4)

	records, entities := 0, 0
	for i, s := range stats {
		assert.Equal(t, i, s.Partition)
		assert.Equal(t, s.Records > 50, s.Spilled)
		records += s.Records
		entities += s.Entities
	}
	assert.Equal(t, 340, records)
	assert.Equal(t, 17, entities)
}

func TestEmit_SketchErrorWritesNothing(t *testing.T) {
	// values above roughly 3 fall outside this mapping's indexable range
	m, err := mapping.NewLogarithmicMappingWithGamma(1+1e-9, 0)
	require.NoError(t, err)
	sketch := ddsketch.NewDDSketch(m, store.NewDenseStore(), store.NewDenseStore())

	results := [][]tracks.Trajectory{{{
		EntityID: "u1",
		Segments: []tracks.Segment{{EntityID: "u1", Points: make([]tracks.Point, 20)}},
	}}}

	sink := &memSink{}
	var summary Summary
	err = emit(context.Background(), sink, results, sketch, &summary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "points per trajectory")
	assert.Empty(t, sink.writes)
}

func TestEmit_SkipsEmptyPartitions(t *testing.T) {
	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	require.NoError(t, err)

	traj := func(id string, n int) tracks.Trajectory {
		return tracks.Trajectory{EntityID: id, Segments: []tracks.Segment{{EntityID: id, Points: make([]tracks.Point, n)}}}
	}
	results := [][]tracks.Trajectory{nil, {traj("a", 2)}, {}, {traj("b", 4), traj("c", 6)}}

	sink := &memSink{}
	var summary Summary
	require.NoError(t, emit(context.Background(), sink, results, sketch, &summary))
	require.Len(t, sink.writes, 2)
	assert.Equal(t, "a", sink.writes[0][0].EntityID)
	assert.Equal(t, 3, summary.Entities)
	assert.Equal(t, 12, summary.Points)
	assert.InEpsilon(t, 4.0, summary.PointsP50, 0.02)
}
