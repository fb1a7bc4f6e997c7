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

	"github.com/goccy/go-json"

	"github.com/cardinalhq/trackrunner/internal/signals"
	"github.com/cardinalhq/trackrunner/internal/tracks"
)

// JSONLSink writes one TrajectoryDoc per line.
type JSONLSink struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

func NewJSONLSink(w io.Writer) *JSONLSink {
	bw := bufio.NewWriter(w)
	return &JSONLSink{bw: bw, enc: json.NewEncoder(bw)}
}

func (s *JSONLSink) Write(ctx context.Context, trajectories []tracks.Trajectory) error {
	for i := range trajectories {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.enc.Encode(newTrajectoryDoc(&trajectories[i])); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONLSink) Close() error {
	return s.bw.Flush()
}

// PointsJSONLSink writes one StandalonePointDoc per line.
type PointsJSONLSink struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

func NewPointsJSONLSink(w io.Writer) *PointsJSONLSink {
	bw := bufio.NewWriter(w)
	return &PointsJSONLSink{bw: bw, enc: json.NewEncoder(bw)}
}

func (s *PointsJSONLSink) WritePoints(ctx context.Context, points []signals.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range points {
		if err := s.enc.Encode(newStandalonePointDoc(&points[i])); err != nil {
			return err
		}
	}
	return nil
}

func (s *PointsJSONLSink) Close() error {
	return s.bw.Flush()
}
