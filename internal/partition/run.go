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
	"fmt"
	"io"

	"github.com/cardinalhq/trackrunner/internal/cbor"
	"github.com/cardinalhq/trackrunner/internal/signals"
)

// Run is one worker's records in composite key order.
//
// A Run is read by a single goroutine at a time. Reset rewinds it so the
// size-prediction pass and the reconstruction pass (and any retry of it) can
// each make a full forward pass.
type Run interface {
	// Next returns the next record, or io.EOF when the run is exhausted.
	Next() (signals.EventRecord, error)

	// Reset rewinds the run to its first record.
	Reset() error

	// Len returns the number of records in the run.
	Len() int

	// Close releases any resources held by the run.
	Close() error
}

// RunOptions controls how a partition is materialized.
type RunOptions struct {
	// SpillThreshold is the record count above which a run is kept on disk.
	// Zero or negative keeps every run in memory.
	SpillThreshold int
	// TempDir is where spill files are created. Empty means os.TempDir().
	TempDir string
	// CBOR is the codec for spill files. Required when spilling.
	CBOR *cbor.Config
}

// NewRun sorts records and wraps them in a Run. The run takes ownership of records.
func NewRun(records []signals.EventRecord, opts RunOptions) (Run, error) {
	if opts.SpillThreshold > 0 && len(records) > opts.SpillThreshold {
		if opts.CBOR == nil {
			return nil, fmt.Errorf("spilling %d records requires a CBOR config", len(records))
		}
		return NewDiskRun(records, opts.CBOR, opts.TempDir)
	}
	return NewMemoryRun(records), nil
}

// MemoryRun holds a sorted partition in memory.
//
// Memory Impact: HIGH - All records are held at once
// Disk I/O: None
type MemoryRun struct {
	records []signals.EventRecord
	pos     int
}

var _ Run = (*MemoryRun)(nil)

// NewMemoryRun sorts records in place and returns a run over them.
func NewMemoryRun(records []signals.EventRecord) *MemoryRun {
	SortRun(records)
	return &MemoryRun{records: records}
}

func (r *MemoryRun) Next() (signals.EventRecord, error) {
	if r.pos >= len(r.records) {
		return signals.EventRecord{}, io.EOF
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, nil
}

func (r *MemoryRun) Reset() error {
	r.pos = 0
	return nil
}

func (r *MemoryRun) Len() int {
	return len(r.records)
}

func (r *MemoryRun) Close() error {
	r.records = nil
	r.pos = 0
	return nil
}
