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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/trackrunner/config"
	"github.com/cardinalhq/trackrunner/internal/logctx"
	"github.com/cardinalhq/trackrunner/internal/trackio"
	"github.com/cardinalhq/trackrunner/internal/trackjob"
)

func init() {
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Convert location rows into standalone points",
		Long: `Reads delimited rows and writes each one as a point with _center_lat,
_center_lon and, when known, _radius properties. Rows are not grouped or sorted.`,
		RunE: runPointsCmd,
	}

	addJobFlags(cmd)
	cmd.Flags().String("lat-column", "", "Column holding the latitude")
	cmd.Flags().String("lon-column", "", "Column holding the longitude")
	cmd.Flags().String("radius-column", "", "Column holding the radius in meters")
	cmd.Flags().Float64("default-radius", 0, "Radius attached to every point when no radius column is set")

	rootCmd.AddCommand(cmd)
}

func runPointsCmd(c *cobra.Command, _ []string) error {
	ctx, doneFx, err := setupTelemetry("trackrunner-points")
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := doneFx(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyJobFlags(c, &cfg.Job); err != nil {
		return err
	}
	if err := applyPointFlags(c, &cfg.Job.Points); err != nil {
		return err
	}

	input, _ := c.Flags().GetString("input")
	output, _ := c.Flags().GetString("output")
	formatName, _ := c.Flags().GetString("format")
	format, err := trackio.ParseFormat(formatName)
	if err != nil {
		return err
	}

	start := time.Now()
	err = runPoints(ctx, cfg, input, output, format)
	recordJob(ctx, start, err)
	return err
}

func applyPointFlags(c *cobra.Command, cfg *trackjob.PointsConfig) error {
	for name, dst := range map[string]*string{
		"lat-column":    &cfg.Columns.Lat,
		"lon-column":    &cfg.Columns.Lon,
		"radius-column": &cfg.Columns.Radius,
	} {
		if err := applyStringFlag(c, name, dst); err != nil {
			return err
		}
	}
	if c.Flags().Changed("default-radius") {
		v, err := c.Flags().GetFloat64("default-radius")
		if err != nil {
			return fmt.Errorf("failed to get default-radius flag: %w", err)
		}
		cfg.DefaultRadius = &v
	}
	return nil
}

func runPoints(ctx context.Context, cfg *config.Config, input, output string, format trackio.Format) (err error) {
	ctx, logger := logctx.With(ctx, slog.String("input", input), slog.String("output", output))

	job, err := trackjob.New(cfg.Job)
	if err != nil {
		return err
	}

	locs := &trackio.Locations{S3Options: cfg.S3}
	src, err := locs.OpenSource(ctx, input)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := locs.CreateDestination(ctx, output)
	if err != nil {
		return err
	}
	sink, err := trackio.NewPointSink(format, dst)
	if err != nil {
		_ = trackio.Abort(dst)
		return err
	}
	defer func() {
		err = finish(err, sink, dst)
	}()

	if _, err := job.RunPoints(ctx, src, sink); err != nil {
		logger.Error("Point conversion failed", slog.Any("error", err))
		return err
	}
	return nil
}
