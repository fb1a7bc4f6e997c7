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

package signals

import (
	"fmt"

	"github.com/cardinalhq/trackrunner/pipeline/wkk"
)

// ColumnNames names the input columns that carry each signal field.
// TrackID is optional; leaving it empty produces single-segment trajectories.
type ColumnNames struct {
	UserID    string `mapstructure:"userid"`
	Timestamp string `mapstructure:"timestamp"`
	Lat       string `mapstructure:"lat"`
	Lon       string `mapstructure:"lon"`
	TrackID   string `mapstructure:"trackid"`
}

// OutputColumn is one projected column: the property key it is stored under
// and its position in the raw row.
type OutputColumn struct {
	Key   wkk.RowKey
	Index int
}

// Columns is the resolved column-index mapping handed to the extractor.
type Columns struct {
	UserID    int
	Timestamp int
	Lat       int
	Lon       int
	// TrackID is -1 when the run is unsegmented.
	TrackID int
	Output  []OutputColumn
}

// Segmented reports whether a segment id column is configured.
func (c Columns) Segmented() bool {
	return c.TrackID >= 0
}

// ResolveColumns maps the configured names onto positions within inputColumns.
// An empty outputColumns list projects every input column.
func ResolveColumns(inputColumns []string, names ColumnNames, outputColumns []string) (Columns, error) {
	lookup := newColumnLookup(inputColumns)

	cols := Columns{TrackID: -1}
	required := []struct {
		name string
		dst  *int
		what string
	}{
		{names.UserID, &cols.UserID, "user id"},
		{names.Timestamp, &cols.Timestamp, "timestamp"},
		{names.Lat, &cols.Lat, "latitude"},
		{names.Lon, &cols.Lon, "longitude"},
	}
	for _, r := range required {
		idx, err := lookup.find(r.name, r.what)
		if err != nil {
			return Columns{}, err
		}
		*r.dst = idx
	}

	if names.TrackID != "" {
		idx, err := lookup.find(names.TrackID, "track id")
		if err != nil {
			return Columns{}, err
		}
		cols.TrackID = idx
	}

	output, err := lookup.project(outputColumns)
	if err != nil {
		return Columns{}, err
	}
	cols.Output = output

	return cols, nil
}

type columnLookup struct {
	names []string
	exact map[string]int
	short map[string][]int
}

func newColumnLookup(inputColumns []string) columnLookup {
	l := columnLookup{
		names: inputColumns,
		exact: make(map[string]int, len(inputColumns)),
		short: make(map[string][]int, len(inputColumns)),
	}
	for i, name := range inputColumns {
		if _, dup := l.exact[name]; !dup {
			l.exact[name] = i
		}
		short := wkk.OutputName(name)
		l.short[short] = append(l.short[short], i)
	}
	return l
}

// find matches name exactly. An unqualified name also matches a qualified
// input column with the same short name, provided exactly one does.
func (l columnLookup) find(name, what string) (int, error) {
	if name == "" {
		return -1, &ConfigurationError{Column: name, Reason: what + " column is not configured"}
	}
	if idx, ok := l.exact[name]; ok {
		return idx, nil
	}
	if wkk.OutputName(name) == name {
		switch matches := l.short[name]; len(matches) {
		case 0:
		case 1:
			return matches[0], nil
		default:
			return -1, &ConfigurationError{
				Column: name,
				Reason: fmt.Sprintf("%s column is ambiguous, it matches %d input columns", what, len(matches)),
			}
		}
	}
	return -1, &ConfigurationError{Column: name, Reason: what + " column not found in input columns"}
}

func (l columnLookup) project(outputColumns []string) ([]OutputColumn, error) {
	seen := make(map[string]string, len(l.names))
	key := func(name string) (wkk.RowKey, error) {
		short := wkk.OutputName(name)
		if prev, dup := seen[short]; dup {
			return wkk.RowKey{}, &ConfigurationError{
				Column: name,
				Reason: fmt.Sprintf("output property %q is already produced by column %q", short, prev),
			}
		}
		seen[short] = name
		return wkk.NewRowKey(short), nil
	}

	if len(outputColumns) == 0 {
		out := make([]OutputColumn, 0, len(l.names))
		for i, name := range l.names {
			if name == "" {
				continue
			}
			k, err := key(name)
			if err != nil {
				return nil, err
			}
			out = append(out, OutputColumn{Key: k, Index: i})
		}
		return out, nil
	}

	out := make([]OutputColumn, 0, len(outputColumns))
	for _, name := range outputColumns {
		idx, err := l.find(name, "output")
		if err != nil {
			return nil, err
		}
		k, err := key(name)
		if err != nil {
			return nil, err
		}
		out = append(out, OutputColumn{Key: k, Index: idx})
	}
	return out, nil
}
