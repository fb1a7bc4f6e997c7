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

	"github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"

	"github.com/cardinalhq/trackrunner/internal/tracks"
)

// PointRow is one Parquet row: a single point with its trajectory coordinates.
type PointRow struct {
	UserID    string  `parquet:"userid" json:"userid"`
	Segment   int32   `parquet:"segment" json:"segment"`
	TrackID   *string `parquet:"trackid,optional" json:"trackid,omitempty"`
	Index     int32   `parquet:"index" json:"index"`
	Timestamp float64 `parquet:"ts" json:"ts"`
	Lat       float64 `parquet:"lat" json:"lat"`
	Lon       float64 `parquet:"lon" json:"lon"`
	// Props holds the projected columns as a JSON object.
	Props string `parquet:"props" json:"props"`
}

// ParquetSink flattens trajectories to one row per point.
type ParquetSink struct {
	writer *parquet.GenericWriter[PointRow]
	rows   []PointRow
}

func NewParquetSink(w io.Writer) *ParquetSink {
	return &ParquetSink{
		writer: parquet.NewGenericWriter[PointRow](w, parquet.Compression(&parquet.Zstd)),
	}
}

func (s *ParquetSink) Write(ctx context.Context, trajectories []tracks.Trajectory) error {
	s.rows = s.rows[:0]
	for _, traj := range trajectories {
		for si, seg := range traj.Segments {
			var trackID *string
			if seg.HasSegmentID {
				trackID = &seg.SegmentID
			}
			for pi, p := range seg.Points {
				props, err := json.Marshal(propsMap(p.Props))
				if err != nil {
					return fmt.Errorf("failed to encode point properties: %w", err)
				}
				s.rows = append(s.rows, PointRow{
					UserID:    traj.EntityID,
					Segment:   int32(si),
					TrackID:   trackID,
					Index:     int32(pi),
					Timestamp: p.Timestamp,
					Lat:       p.Lat,
					Lon:       p.Lon,
					Props:     string(props),
				})
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if _, err := s.writer.Write(s.rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	return nil
}

// Close writes the Parquet footer.
func (s *ParquetSink) Close() error {
	return s.writer.Close()
}
