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

// Package partition redistributes signal records across workers and orders
// them within each worker.
//
// Records are routed by a hash of the entity id alone, so every record of an
// entity lands on the same worker. Within a worker, records are ordered by the
// full composite key (entity id, timestamp, input ordinal). The two steps
// together replace a global sort.
package partition

import (
	"cmp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/cardinalhq/trackrunner/internal/signals"
)

// SortKey is the composite key records are ordered by within a worker.
// Only EntityID takes part in choosing the worker.
type SortKey struct {
	EntityID  string
	Timestamp float64
	Seq       int64
}

// KeyOf returns the sort key of a record.
func KeyOf(rec *signals.EventRecord) SortKey {
	return SortKey{EntityID: rec.EntityID, Timestamp: rec.Timestamp, Seq: rec.Seq}
}

// CompareKeys groups keys by entity id, then orders by timestamp ascending.
// Equal timestamps fall back to input order so the result never depends on
// the sort implementation.
func CompareKeys(a, b SortKey) int {
	if c := strings.Compare(a.EntityID, b.EntityID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// CompareRecords applies CompareKeys to two records.
func CompareRecords(a, b signals.EventRecord) int {
	return CompareKeys(KeyOf(&a), KeyOf(&b))
}

// Partitioner assigns entity ids to one of N workers.
type Partitioner struct {
	n int
}

func NewPartitioner(n int) Partitioner {
	if n < 1 {
		n = 1
	}
	return Partitioner{n: n}
}

// NumPartitions returns the worker count.
func (p Partitioner) NumPartitions() int {
	return p.n
}

// Partition returns the worker index for an entity id. Empty ids go to worker 0.
func (p Partitioner) Partition(entityID string) int {
	if entityID == "" || p.n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(entityID) % uint64(p.n))
}

// PartitionKey routes a composite key using its entity id only.
func (p Partitioner) PartitionKey(k SortKey) int {
	return p.Partition(k.EntityID)
}
