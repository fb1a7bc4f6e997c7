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
	"github.com/golang/geo/s2"

	"github.com/cardinalhq/trackrunner/pipeline"
)

// EarthRadiusMeters is the mean Earth radius used for segment lengths.
const EarthRadiusMeters = 6371000.0

// Point is one observation within a segment. Props holds the projected input
// columns plus the derived _ts value.
type Point struct {
	Lat       float64
	Lon       float64
	Timestamp float64
	Props     pipeline.Row
}

// Segment is a maximal run of an entity's points sharing one segment id.
// For unsegmented runs an entity has exactly one Segment with HasSegmentID false.
type Segment struct {
	EntityID     string
	SegmentID    string
	HasSegmentID bool
	Points       []Point
}

// Len returns the number of points in the segment.
func (s *Segment) Len() int {
	return len(s.Points)
}

// Start returns the timestamp of the first point.
func (s *Segment) Start() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[0].Timestamp
}

// End returns the timestamp of the last point.
func (s *Segment) End() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[len(s.Points)-1].Timestamp
}

// LengthMeters sums great-circle distances between consecutive points.
func (s *Segment) LengthMeters() float64 {
	var total float64
	for i := 1; i < len(s.Points); i++ {
		a := s2.LatLngFromDegrees(s.Points[i-1].Lat, s.Points[i-1].Lon)
		b := s2.LatLngFromDegrees(s.Points[i].Lat, s.Points[i].Lon)
		total += a.Distance(b).Radians() * EarthRadiusMeters
	}
	return total
}

// Bounds returns the bounding rectangle of the segment's points.
func (s *Segment) Bounds() s2.Rect {
	rect := s2.EmptyRect()
	for _, p := range s.Points {
		rect = rect.AddPoint(s2.LatLngFromDegrees(p.Lat, p.Lon))
	}
	return rect
}

// Trajectory is the reconstructed path of one entity. Segments are in the
// order they were first observed, which is chronological.
type Trajectory struct {
	EntityID string
	Segments []Segment
}

// NumPoints returns the number of points across all segments.
func (t *Trajectory) NumPoints() int {
	n := 0
	for i := range t.Segments {
		n += len(t.Segments[i].Points)
	}
	return n
}

// LengthMeters sums the lengths of all segments. Gaps between segments are not counted.
func (t *Trajectory) LengthMeters() float64 {
	var total float64
	for i := range t.Segments {
		total += t.Segments[i].LengthMeters()
	}
	return total
}

// Bounds returns the bounding rectangle of every point in the trajectory.
func (t *Trajectory) Bounds() s2.Rect {
	rect := s2.EmptyRect()
	for i := range t.Segments {
		rect = rect.Union(t.Segments[i].Bounds())
	}
	return rect
}
