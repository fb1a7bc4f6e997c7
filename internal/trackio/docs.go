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
	"github.com/golang/geo/s2"

	"github.com/cardinalhq/trackrunner/internal/signals"
	"github.com/cardinalhq/trackrunner/internal/tracks"
	"github.com/cardinalhq/trackrunner/pipeline"
)

// TrajectoryDoc is the document form of a trajectory used by the JSON and CBOR sinks.
type TrajectoryDoc struct {
	UserID   string       `json:"userid"`
	Points   int          `json:"points"`
	LengthM  float64      `json:"length_m"`
	BBox     []float64    `json:"bbox,omitempty"`
	Segments []SegmentDoc `json:"segments"`
}

// SegmentDoc tags each segment with its owner and, when segmented, its track id.
type SegmentDoc struct {
	Tags    map[string]any `json:"tags"`
	Start   float64        `json:"start"`
	End     float64        `json:"end"`
	LengthM float64        `json:"length_m"`
	BBox    []float64      `json:"bbox,omitempty"`
	Points  []PointDoc     `json:"points"`
}

type PointDoc struct {
	Lat   float64        `json:"lat"`
	Lon   float64        `json:"lon"`
	TS    float64        `json:"ts"`
	Props map[string]any `json:"props,omitempty"`
}

func newTrajectoryDoc(traj *tracks.Trajectory) TrajectoryDoc {
	doc := TrajectoryDoc{
		UserID:   traj.EntityID,
		Points:   traj.NumPoints(),
		LengthM:  traj.LengthMeters(),
		BBox:     rectBBox(traj.Bounds()),
		Segments: make([]SegmentDoc, len(traj.Segments)),
	}
	for i := range traj.Segments {
		seg := &traj.Segments[i]
		sd := SegmentDoc{
			Tags:    propsMap(tracks.SegmentProps(seg)),
			Start:   seg.Start(),
			End:     seg.End(),
			LengthM: seg.LengthMeters(),
			BBox:    rectBBox(seg.Bounds()),
			Points:  make([]PointDoc, len(seg.Points)),
		}
		for j, p := range seg.Points {
			sd.Points[j] = PointDoc{Lat: p.Lat, Lon: p.Lon, TS: p.Timestamp, Props: propsMap(p.Props)}
		}
		doc.Segments[i] = sd
	}
	return doc
}

// rectBBox renders a bounding rectangle in GeoJSON order: west, south, east, north.
func rectBBox(r s2.Rect) []float64 {
	if r.IsEmpty() {
		return nil
	}
	lo, hi := r.Lo(), r.Hi()
	return []float64{lo.Lng.Degrees(), lo.Lat.Degrees(), hi.Lng.Degrees(), hi.Lat.Degrees()}
}

// StandalonePointDoc is one output line of the point conversion.
type StandalonePointDoc struct {
	Lat   float64        `json:"lat"`
	Lon   float64        `json:"lon"`
	Props map[string]any `json:"props,omitempty"`
}

func newStandalonePointDoc(p *signals.Point) StandalonePointDoc {
	return StandalonePointDoc{Lat: p.Lat, Lon: p.Lon, Props: propsMap(p.Props)}
}

func propsMap(row pipeline.Row) map[string]any {
	if len(row) == 0 {
		return nil
	}
	return pipeline.ToStringMap(row)
}
