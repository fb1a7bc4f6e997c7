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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	recordsExtracted    metric.Int64Counter
	trajectoriesEmitted metric.Int64Counter
	segmentsEmitted     metric.Int64Counter
	partitionRetries    metric.Int64Counter
	pointsEmitted       metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/trackrunner/internal/trackjob")

	var err error
	recordsExtracted, err = meter.Int64Counter(
		"trackrunner.records.extracted",
		metric.WithDescription("Number of input rows extracted into signal records"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create records.extracted counter: %w", err))
	}

	trajectoriesEmitted, err = meter.Int64Counter(
		"trackrunner.trajectories.emitted",
		metric.WithDescription("Number of trajectories written to the sink"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create trajectories.emitted counter: %w", err))
	}

	segmentsEmitted, err = meter.Int64Counter(
		"trackrunner.segments.emitted",
		metric.WithDescription("Number of trajectory segments written to the sink"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create segments.emitted counter: %w", err))
	}

	partitionRetries, err = meter.Int64Counter(
		"trackrunner.partition.retries",
		metric.WithDescription("Number of partition reconstruction attempts that were retried"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create partition.retries counter: %w", err))
	}

	pointsEmitted, err = meter.Int64Counter(
		"trackrunner.points.emitted",
		metric.WithDescription("Number of standalone points written to the sink"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create points.emitted counter: %w", err))
	}
}
