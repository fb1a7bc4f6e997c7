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

package wkk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRowKey_Interned(t *testing.T) {
	a := NewRowKey("userid")
	b := NewRowKey("userid")
	assert.Equal(t, a, b)
	assert.Equal(t, "userid", string(a.Value()))
	assert.NotEqual(t, a, NewRowKey("_userid"))
	assert.Equal(t, RowKeyUserID, NewRowKey("_userid"))
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "userid", "userid"},
		{"qualified", "signals.userid", "userid"},
		{"only_first_dot", "signals.a.b", "a.b"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, OutputName(tt.input))
		})
	}
}
