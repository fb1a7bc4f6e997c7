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

package signals

import (
	"github.com/cardinalhq/trackrunner/pipeline"
	"github.com/cardinalhq/trackrunner/pipeline/wkk"
)

// PointColumnNames configures the single-point source. Radius is optional.
type PointColumnNames struct {
	Lat    string `mapstructure:"lat"`
	Lon    string `mapstructure:"lon"`
	Radius string `mapstructure:"radius"`
}

// Point is a standalone location with its projected properties.
// Props always carries _center_lat and _center_lon, and _radius when known.
type Point struct {
	Lat   float64
	Lon   float64
	Props pipeline.Row
}

// PointExtractor parses rows into standalone points rather than track records.
type PointExtractor struct {
	sep           rune
	lat           int
	lon           int
	radius        int
	defaultRadius *float64
	output        []OutputColumn
}

// NewPointExtractor resolves the point columns against inputColumns.
// When no radius column is configured, defaultRadius (if non-nil) is attached to every point.
func NewPointExtractor(sep rune, inputColumns []string, names PointColumnNames, outputColumns []string, defaultRadius *float64) (*PointExtractor, error) {
	if sep == 0 {
		sep = ','
	}
	lookup := newColumnLookup(inputColumns)

	pe := &PointExtractor{sep: sep, radius: -1, defaultRadius: defaultRadius}

	var err error
	if pe.lat, err = lookup.find(names.Lat, "latitude"); err != nil {
		return nil, err
	}
	if pe.lon, err = lookup.find(names.Lon, "longitude"); err != nil {
		return nil, err
	}
	if names.Radius != "" {
		if pe.radius, err = lookup.find(names.Radius, "radius"); err != nil {
			return nil, err
		}
	}

	output, err := lookup.project(outputColumns)
	if err != nil {
		return nil, err
	}
	pe.output = output

	return pe, nil
}

// Extract parses one row into a Point.
func (pe *PointExtractor) Extract(seq int64, line string) (Point, error) {
	fields, err := SplitRow(pe.sep, line)
	if err != nil {
		return Point{}, &ParseError{Seq: seq, Column: -1, Err: err}
	}

	lat, err := floatField(fields, seq, pe.lat)
	if err != nil {
		return Point{}, err
	}
	lon, err := floatField(fields, seq, pe.lon)
	if err != nil {
		return Point{}, err
	}

	props, err := projectFields(fields, seq, pe.output)
	if err != nil {
		return Point{}, err
	}

	var radius *float64
	if pe.radius >= 0 {
		r, err := floatField(fields, seq, pe.radius)
		if err != nil {
			return Point{}, err
		}
		radius = &r
	} else if pe.defaultRadius != nil {
		r := *pe.defaultRadius
		radius = &r
	}

	props[wkk.RowKeyCenterLat] = lat
	props[wkk.RowKeyCenterLon] = lon
	if radius != nil {
		props[wkk.RowKeyRadius] = *radius
	}

	return Point{Lat: lat, Lon: lon, Props: props}, nil
}
