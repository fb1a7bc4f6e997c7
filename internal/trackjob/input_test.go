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

package trackjob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedLines(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestExtractBatches_Order(t *testing.T) {
	lines := numberedLines(50)
	got, err := extractBatches(context.Background(), lines, 7, 4, func(seq int64, line string) (int64, error) {
		v, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, err
		}
		return v * 10, nil
	}, nil)
	require.NoError(t, err)
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, int64(i*10), v)
	}
}

func TestExtractBatches_StopsLaterBatchesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int64

	_, err := extractBatches(context.Background(), numberedLines(100), 1, 1, func(seq int64, _ string) (int64, error) {
		calls.Add(1)
		if seq == 0 {
			return 0, boom
		}
		return seq, nil
	}, nil)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), calls.Load())
}

func TestExtractBatches_EarliestFailureWins(t *testing.T) {
	for _, limit := range []int{1, 3, 16} {
		t.Run(fmt.Sprintf("limit_%d", limit), func(t *testing.T) {
			_, err := extractBatches(context.Background(), numberedLines(200), 5, limit, func(seq int64, _ string) (int64, error) {
				if seq == 42 || seq == 43 || seq == 170 {
					return 0, fmt.Errorf("row %d", seq)
				}
				return seq, nil
			}, nil)
			require.Error(t, err)
			assert.Equal(t, "row 42", err.Error())
		})
	}
}

func TestExtractBatches_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	_, err := extractBatches(ctx, numberedLines(10), 2, 2, func(seq int64, _ string) (int64, error) {
		calls.Add(1)
		return seq, nil
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}
