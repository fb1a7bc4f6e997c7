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
	"strings"

	"github.com/cardinalhq/trackrunner/internal/signals"
	"github.com/cardinalhq/trackrunner/internal/tracks"
)

// Format names an output encoding.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatGeoJSON Format = "geojson"
	FormatCBOR    Format = "cbor"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSONL, FormatGeoJSON, FormatCBOR, FormatParquet:
		return f, nil
	case "json", "ndjson":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// TrajectorySink writes trajectories. Close flushes buffered output but does
// not close the underlying writer.
type TrajectorySink interface {
	Write(ctx context.Context, trajectories []tracks.Trajectory) error
	Close() error
}

// PointSink writes standalone points. Close flushes buffered output.
type PointSink interface {
	WritePoints(ctx context.Context, points []signals.Point) error
	Close() error
}

// NewTrajectorySink returns a sink writing format to w.
func NewTrajectorySink(format Format, w io.Writer) (TrajectorySink, error) {
	switch format {
	case FormatJSONL:
		return NewJSONLSink(w), nil
	case FormatGeoJSON:
		return NewGeoJSONSink(w), nil
	case FormatCBOR:
		return NewCBORSink(w)
	case FormatParquet:
		return NewParquetSink(w), nil
	}
	return nil, fmt.Errorf("unsupported trajectory format %q", format)
}

// NewPointSink returns a sink writing standalone points as format to w.
func NewPointSink(format Format, w io.Writer) (PointSink, error) {
	switch format {
	case FormatJSONL:
		return NewPointsJSONLSink(w), nil
	case FormatGeoJSON:
		return NewPointsGeoJSONSink(w), nil
	}
	return nil, fmt.Errorf("unsupported point format %q", format)
}
