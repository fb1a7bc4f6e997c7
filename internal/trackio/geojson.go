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
	"bufio"
	"context"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/cardinalhq/trackrunner/internal/signals"
	"github.com/cardinalhq/trackrunner/internal/tracks"
)

// GeoJSONSink writes one GeoJSON Feature per line. Each trajectory becomes a
// MultiLineString with one line per segment.
type GeoJSONSink struct {
	bw *bufio.Writer
}

func NewGeoJSONSink(w io.Writer) *GeoJSONSink {
	return &GeoJSONSink{bw: bufio.NewWriter(w)}
}

func (s *GeoJSONSink) Write(ctx context.Context, trajectories []tracks.Trajectory) error {
	for i := range trajectories {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFeature(s.bw, trajectoryFeature(&trajectories[i])); err != nil {
			return err
		}
	}
	return nil
}

func (s *GeoJSONSink) Close() error {
	return s.bw.Flush()
}

func trajectoryFeature(traj *tracks.Trajectory) *geojson.Feature {
	mls := make(orb.MultiLineString, len(traj.Segments))
	trackIDs := make([]string, 0, len(traj.Segments))
	tags := make([]map[string]any, len(traj.Segments))
	for i := range traj.Segments {
		seg := &traj.Segments[i]
		line := make(orb.LineString, len(seg.Points))
		for j, p := range seg.Points {
			line[j] = orb.Point{p.Lon, p.Lat}
		}
		mls[i] = line
		tags[i] = propsMap(tracks.SegmentProps(seg))
		if seg.HasSegmentID {
			trackIDs = append(trackIDs, seg.SegmentID)
		}
	}

	f := geojson.NewFeature(mls)
	f.BBox = geojson.NewBBox(mls.Bound())
	f.Properties["userid"] = traj.EntityID
	f.Properties["points"] = traj.NumPoints()
	f.Properties["length_m"] = traj.LengthMeters()
	if n := len(traj.Segments); n > 0 {
		f.Properties["start"] = traj.Segments[0].Start()
		f.Properties["end"] = traj.Segments[n-1].End()
	}
	if len(trackIDs) > 0 {
		f.Properties["trackids"] = trackIDs
	}
	f.Properties["segments"] = tags
	return f
}

// PointsGeoJSONSink writes one Point Feature per line with the point's properties.
type PointsGeoJSONSink struct {
	bw *bufio.Writer
}

func NewPointsGeoJSONSink(w io.Writer) *PointsGeoJSONSink {
	return &PointsGeoJSONSink{bw: bufio.NewWriter(w)}
}

func (s *PointsGeoJSONSink) WritePoints(ctx context.Context, points []signals.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range points {
		p := &points[i]
		f := geojson.NewFeature(orb.Point{p.Lon, p.Lat})
		for k, v := range propsMap(p.Props) {
			f.Properties[k] = v
		}
		if err := writeFeature(s.bw, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *PointsGeoJSONSink) Close() error {
	return s.bw.Flush()
}

func writeFeature(w *bufio.Writer, f *geojson.Feature) error {
	b, err := f.MarshalJSON()
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.WriteByte('\n')
}
