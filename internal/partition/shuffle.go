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
	"slices"

	"github.com/cardinalhq/trackrunner/internal/signals"
)

// Shuffle distributes records to partitions, keeping input order within each partition.
// The returned slice always has NumPartitions entries; some may be empty.
func Shuffle(records []signals.EventRecord, p Partitioner) [][]signals.EventRecord {
	n := p.NumPartitions()

	targets := make([]int, len(records))
	sizes := make([]int, n)
	for i := range records {
		idx := p.Partition(records[i].EntityID)
		targets[i] = idx
		sizes[idx]++
	}

	out := make([][]signals.EventRecord, n)
	for i := range out {
		out[i] = make([]signals.EventRecord, 0, sizes[i])
	}
	for i := range records {
		out[targets[i]] = append(out[targets[i]], records[i])
	}
	return out
}

// SortRun orders records in place by the composite key.
func SortRun(records []signals.EventRecord) {
	slices.SortFunc(records, CompareRecords)
}
