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

package partition

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/cardinalhq/trackrunner/internal/cbor"
	"github.com/cardinalhq/trackrunner/internal/signals"
)

// spillRecord is the on-disk form of a record.
type spillRecord struct {
	EntityID   string  `cbor:"1,keyasint"`
	Timestamp  float64 `cbor:"2,keyasint"`
	Lat        float64 `cbor:"3,keyasint"`
	Lon        float64 `cbor:"4,keyasint"`
	SegmentID  string  `cbor:"5,keyasint,omitempty"`
	HasSegment bool    `cbor:"6,keyasint,omitempty"`
	Raw        string  `cbor:"7,keyasint"`
	Seq        int64   `cbor:"8,keyasint"`
}

// spillIndex is a lightweight pointer to a CBOR-encoded record in the spill file.
type spillIndex struct {
	key    SortKey
	offset int64
	length int32
}

// DiskRun CBOR-encodes a partition to a temp file and keeps only a sorted
// key index in memory. Records are decoded back one at a time on Next.
//
// Memory Impact: LOW - Only keys and offsets are retained
// Disk I/O: One write pass, one random-read pass per iteration
type DiskRun struct {
	file    *os.File
	config  *cbor.Config
	indices []spillIndex
	pos     int
	buf     []byte
	closed  bool
}

var _ Run = (*DiskRun)(nil)

// NewDiskRun writes records to a temp file in dir and sorts the key index.
// The records slice is not retained.
func NewDiskRun(records []signals.EventRecord, config *cbor.Config, dir string) (*DiskRun, error) {
	file, err := os.CreateTemp(dir, "trackrunner-run-*.cbor")
	if err != nil {
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}

	r := &DiskRun{
		file:    file,
		config:  config,
		indices: make([]spillIndex, 0, len(records)),
	}

	if err := r.writeAndIndex(records); err != nil {
		_ = r.Close()
		return nil, err
	}

	slices.SortFunc(r.indices, func(a, b spillIndex) int {
		return CompareKeys(a.key, b.key)
	})

	return r, nil
}

func (r *DiskRun) writeAndIndex(records []signals.EventRecord) error {
	w := bufio.NewWriter(r.file)
	var offset int64

	for i := range records {
		rec := &records[i]
		data, err := r.config.Marshal(spillRecord{
			EntityID:   rec.EntityID,
			Timestamp:  rec.Timestamp,
			Lat:        rec.Lat,
			Lon:        rec.Lon,
			SegmentID:  rec.SegmentID,
			HasSegment: rec.HasSegment,
			Raw:        rec.Raw,
			Seq:        rec.Seq,
		})
		if err != nil {
			return fmt.Errorf("failed to CBOR encode record %d: %w", rec.Seq, err)
		}
		if len(data) > int(^uint32(0)>>1) {
			return fmt.Errorf("encoded record too large: %d bytes", len(data))
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write spill file: %w", err)
		}

		r.indices = append(r.indices, spillIndex{
			key:    KeyOf(rec),
			offset: offset,
			length: int32(len(data)),
		})
		offset += int64(len(data))
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush spill file: %w", err)
	}
	return nil
}

func (r *DiskRun) Next() (signals.EventRecord, error) {
	if r.closed {
		return signals.EventRecord{}, fmt.Errorf("run is closed")
	}
	if r.pos >= len(r.indices) {
		return signals.EventRecord{}, io.EOF
	}

	idx := r.indices[r.pos]
	if cap(r.buf) < int(idx.length) {
		r.buf = make([]byte, idx.length)
	}
	buf := r.buf[:idx.length]

	if _, err := r.file.ReadAt(buf, idx.offset); err != nil {
		return signals.EventRecord{}, fmt.Errorf("failed to read spilled record at offset %d: %w", idx.offset, err)
	}

	var sr spillRecord
	if err := r.config.Unmarshal(buf, &sr); err != nil {
		return signals.EventRecord{}, fmt.Errorf("failed to decode spilled record at offset %d: %w", idx.offset, err)
	}

	r.pos++
	return signals.EventRecord{
		EntityID:   sr.EntityID,
		Timestamp:  sr.Timestamp,
		Lat:        sr.Lat,
		Lon:        sr.Lon,
		SegmentID:  sr.SegmentID,
		HasSegment: sr.HasSegment,
		Raw:        sr.Raw,
		Seq:        sr.Seq,
	}, nil
}

func (r *DiskRun) Reset() error {
	if r.closed {
		return fmt.Errorf("run is closed")
	}
	r.pos = 0
	return nil
}

func (r *DiskRun) Len() int {
	return len(r.indices)
}

// Close removes the spill file.
func (r *DiskRun) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.indices = nil
	r.buf = nil

	name := r.file.Name()
	closeErr := r.file.Close()
	removeErr := os.Remove(name)
	if closeErr != nil {
		return closeErr
	}
	return removeErr
}
