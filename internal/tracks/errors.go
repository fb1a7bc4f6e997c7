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

import "fmt"

// SizingInconsistencyError means the entity count observed during
// reconstruction differs from the count predicted for the partition. It can
// only come from a non-deterministic upstream stage and is never retried.
// Predicted is -1 when the lookup has no entry for the partition.
type SizingInconsistencyError struct {
	Partition int
	Predicted int
	Observed  int
}

func (e *SizingInconsistencyError) Error() string {
	if e.Predicted < 0 {
		return fmt.Sprintf("partition %d: no entity count was predicted", e.Partition)
	}
	return fmt.Sprintf("partition %d: predicted %d entities, observed %d", e.Partition, e.Predicted, e.Observed)
}
