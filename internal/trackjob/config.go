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
	"runtime"
	"unicode/utf8"

	"github.com/cardinalhq/trackrunner/internal/signals"
)

// Config holds the settings for one sessionization job.
type Config struct {
	Workers          int                 `mapstructure:"workers"`
	Separator        string              `mapstructure:"separator"`
	HasHeader        bool                `mapstructure:"header"`
	InputColumns     []string            `mapstructure:"input_columns"`
	Columns          signals.ColumnNames `mapstructure:"columns"`
	OutputColumns    []string            `mapstructure:"output_columns"`
	SpillThreshold   int                 `mapstructure:"spill_threshold"`
	TempDir          string              `mapstructure:"temp_dir"`
	MaxAttempts      int                 `mapstructure:"max_attempts"`
	ExtractBatchSize int                 `mapstructure:"extract_batch_size"`
	Points           PointsConfig        `mapstructure:"points"`
}

// PointsConfig configures the single-point variant.
type PointsConfig struct {
	Columns signals.PointColumnNames `mapstructure:"columns"`
	// DefaultRadius is attached to every point when no radius column is set.
	DefaultRadius *float64 `mapstructure:"default_radius"`
}

// DefaultConfig returns default settings.
func DefaultConfig() Config {
	return Config{
		Workers:   runtime.GOMAXPROCS(0),
		Separator: ",",
		HasHeader: true,
		Columns: signals.ColumnNames{
			UserID:    "userid",
			Timestamp: "timestamp",
			Lat:       "lat",
			Lon:       "lon",
		},
		SpillThreshold:   1_000_000,
		MaxAttempts:      3,
		ExtractBatchSize: 4096,
		Points: PointsConfig{
			Columns: signals.PointColumnNames{
				Lat: "lat",
				Lon: "lon",
			},
		},
	}
}

// SeparatorRune decodes the configured field separator. "tab" and "\t" both mean a tab.
func (c Config) SeparatorRune() (rune, error) {
	switch c.Separator {
	case "", ",":
		return ',', nil
	case "tab", `\t`, "\t":
		return '\t', nil
	}

	r, size := utf8.DecodeRuneInString(c.Separator)
	if size != len(c.Separator) || r == utf8.RuneError {
		return 0, &signals.ConfigurationError{Column: c.Separator, Reason: "separator must be a single character"}
	}
	switch r {
	case '"', '\r', '\n':
		return 0, &signals.ConfigurationError{Column: c.Separator, Reason: "separator cannot be a quote or line break"}
	}
	return r, nil
}

func (c Config) workers() int {
	if c.Workers < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Workers
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

func (c Config) batchSize() int {
	if c.ExtractBatchSize < 1 {
		return 4096
	}
	return c.ExtractBatchSize
}
