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

// Package signals turns delimited text rows into typed signal records.
package signals

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cardinalhq/trackrunner/pipeline"
)

// EventRecord is one observation of an entity. It is never mutated after extraction.
type EventRecord struct {
	EntityID   string
	Timestamp  float64
	Lat        float64
	Lon        float64
	SegmentID  string
	HasSegment bool
	// Raw is the original row, kept for column projection during reconstruction.
	Raw string
	// Seq is the ordinal of the row in the input stream. It breaks timestamp ties.
	Seq int64
}

// Extractor parses raw rows using a fixed column mapping.
// It holds no per-row state and is safe for concurrent use.
type Extractor struct {
	sep  rune
	cols Columns
}

func NewExtractor(sep rune, cols Columns) *Extractor {
	if sep == 0 {
		sep = ','
	}
	return &Extractor{sep: sep, cols: cols}
}

// Columns returns the mapping this extractor was built with.
func (e *Extractor) Columns() Columns {
	return e.cols
}

// Extract parses one row into an EventRecord.
func (e *Extractor) Extract(seq int64, line string) (EventRecord, error) {
	fields, err := SplitRow(e.sep, line)
	if err != nil {
		return EventRecord{}, &ParseError{Seq: seq, Column: -1, Err: err}
	}

	rec := EventRecord{Raw: line, Seq: seq}

	if rec.EntityID, err = field(fields, seq, e.cols.UserID); err != nil {
		return EventRecord{}, err
	}
	if rec.Timestamp, err = floatField(fields, seq, e.cols.Timestamp); err != nil {
		return EventRecord{}, err
	}
	if rec.Lat, err = floatField(fields, seq, e.cols.Lat); err != nil {
		return EventRecord{}, err
	}
	if rec.Lon, err = floatField(fields, seq, e.cols.Lon); err != nil {
		return EventRecord{}, err
	}
	if e.cols.Segmented() {
		if rec.SegmentID, err = field(fields, seq, e.cols.TrackID); err != nil {
			return EventRecord{}, err
		}
		rec.HasSegment = true
	}

	return rec, nil
}

// Project re-parses a raw row and returns the configured output columns.
func (e *Extractor) Project(seq int64, raw string) (pipeline.Row, error) {
	fields, err := SplitRow(e.sep, raw)
	if err != nil {
		return nil, &ParseError{Seq: seq, Column: -1, Err: err}
	}
	return projectFields(fields, seq, e.cols.Output)
}

// SplitRow splits one delimited row honoring quotes.
func SplitRow(sep rune, line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = sep
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	fields, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to split row: %w", err)
	}
	return fields, nil
}

func projectFields(fields []string, seq int64, output []OutputColumn) (pipeline.Row, error) {
	row := make(pipeline.Row, len(output)+1)
	for _, col := range output {
		v, err := field(fields, seq, col.Index)
		if err != nil {
			return nil, err
		}
		row[col.Key] = v
	}
	return row, nil
}

func field(fields []string, seq int64, idx int) (string, error) {
	if idx < 0 || idx >= len(fields) {
		return "", &ParseError{Seq: seq, Column: idx, Err: ErrColumnOutOfRange}
	}
	return fields[idx], nil
}

func floatField(fields []string, seq int64, idx int) (float64, error) {
	s, err := field(fields, seq, idx)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &ParseError{Seq: seq, Column: idx, Value: s, Err: err}
	}
	return f, nil
}
