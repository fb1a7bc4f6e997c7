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
	"strings"
	"unique"
)

type rowkey string

// RowKey is an interned column name. Comparing two RowKeys is a pointer compare.
type RowKey = unique.Handle[rowkey]

func NewRowKey(s string) RowKey {
	return unique.Make(rowkey(s))
}

// Derived attribute names attached to points, segments and trajectories.
// The leading underscore keeps them apart from projected input columns.
var (
	// RowKeyUserID: "_userid"
	RowKeyUserID = NewRowKey("_userid")

	// RowKeyTrackID: "_trackid"
	RowKeyTrackID = NewRowKey("_trackid")

	// RowKeyTimestamp: "_ts"
	RowKeyTimestamp = NewRowKey("_ts")

	// RowKeyCenterLat: "_center_lat"
	RowKeyCenterLat = NewRowKey("_center_lat")

	// RowKeyCenterLon: "_center_lon"
	RowKeyCenterLon = NewRowKey("_center_lon")

	// RowKeyRadius: "_radius"
	RowKeyRadius = NewRowKey("_radius")
)

// OutputName strips a leading "stream." qualifier from a column name, so
// "signals.userid" is projected as "userid".
func OutputName(column string) string {
	if i := strings.IndexByte(column, '.'); i >= 0 {
		return column[i+1:]
	}
	return column
}
