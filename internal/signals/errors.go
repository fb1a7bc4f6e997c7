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
	"errors"
	"fmt"
)

// ErrColumnOutOfRange is wrapped by a ParseError when a row has fewer fields
// than a configured column index requires.
var ErrColumnOutOfRange = errors.New("column index out of range")

// ConfigurationError reports a column name that does not resolve to an index.
// It is raised before any data is read.
type ConfigurationError struct {
	Column string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("column %q: %s", e.Column, e.Reason)
}

// ParseError reports a row that cannot be turned into a record.
// Seq is the ordinal of the row in the input stream, or -1 when unknown.
type ParseError struct {
	Seq    int64
	Column int
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column < 0 {
		return fmt.Sprintf("record %d: %v", e.Seq, e.Err)
	}
	return fmt.Sprintf("record %d: column %d (%q): %v", e.Seq, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
