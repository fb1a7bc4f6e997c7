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

package debug

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/trackrunner/internal/trackio"
	"github.com/cardinalhq/trackrunner/internal/trackjob"
	"github.com/cardinalhq/trackrunner/internal/tracks"
	"github.com/cardinalhq/trackrunner/pipeline"
	"github.com/cardinalhq/trackrunner/pipeline/wkk"
)

func writeParquet(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracks.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)

	sink := trackio.NewParquetSink(f)
	require.NoError(t, sink.Write(context.Background(), []tracks.Trajectory{{
		EntityID: "u1",
		Segments: []tracks.Segment{{
			EntityID: "u1",
			Points: []tracks.Point{
				{Lat: 1, Lon: 2, Timestamp: 10, Props: pipeline.Row{wkk.RowKeyTimestamp: 10.0}},
				{Lat: 3, Lon: 4, Timestamp: 20, Props: pipeline.Row{wkk.RowKeyTimestamp: 20.0}},
				{Lat: 5, Lon: 6, Timestamp: 30, Props: pipeline.Row{wkk.RowKeyTimestamp: 30.0}},
			},
		}},
	}}))
	require.NoError(t, sink.Close())
	require.NoError(t, f.Close())
	return path
}

func TestRunParquetCat(t *testing.T) {
	path := writeParquet(t)

	var out bytes.Buffer
	require.NoError(t, runParquetCat(&out, path, 0))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], `"userid":"u1"`)
	assert.Contains(t, lines[1], `"lat":3`)

	out.Reset()
	require.NoError(t, runParquetCat(&out, path, 2))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 2)
}

func TestRunParquetSchema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runParquetSchema(&out, writeParquet(t)))
	assert.Contains(t, out.String(), "userid")
	assert.Contains(t, out.String(), "rows: 3")
}

func TestRunParquetCat_MissingFile(t *testing.T) {
	err := runParquetCat(&bytes.Buffer{}, filepath.Join(t.TempDir(), "nope.parquet"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPrintPartitions(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printPartitions(&out, []trackjob.PartitionStats{
		{Partition: 0, Records: 10, Entities: 2},
		{Partition: 1, Records: 0, Entities: 0},
		{Partition: 2, Records: 5, Entities: 1, Spilled: true},
	}))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "PARTITION")
	assert.Contains(t, lines[3], "true")
	assert.Equal(t, []string{"total", "15", "3"}, strings.Fields(lines[4]))
}
