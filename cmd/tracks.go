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
	"io"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/trackrunner/config"
	"github.com/cardinalhq/trackrunner/internal/logctx"
	"github.com/cardinalhq/trackrunner/internal/trackio"
	"github.com/cardinalhq/trackrunner/internal/trackjob"
)

func init() {
	cmd := &cobra.Command{
		Use:   "tracks",
		Short: "Reconstruct per-user trajectories from location signals",
		Long: `Reads delimited rows, partitions them by user id across workers, sorts each
partition by user and time, and writes one trajectory per user. When a track
column is configured, each trajectory is split into segments wherever the
track id changes.`,
		RunE: runTracksCmd,
	}

	addJobFlags(cmd)
	cmd.Flags().String("userid-column", "", "Column holding the user id")
	cmd.Flags().String("timestamp-column", "", "Column holding the timestamp")
	cmd.Flags().String("lat-column", "", "Column holding the latitude")
	cmd.Flags().String("lon-column", "", "Column holding the longitude")
	cmd.Flags().String("track-column", "", "Column holding the track id (enables segmentation)")
	cmd.Flags().Int("spill-threshold", 0, "Partitions with more rows than this are sorted on disk")
	cmd.Flags().String("temp-dir", "", "Directory for spilled partitions")
	cmd.Flags().Int("max-attempts", 0, "Attempts per partition before the job fails")

	rootCmd.AddCommand(cmd)
}

func runTracksCmd(c *cobra.Command, _ []string) error {
	ctx, doneFx, err := setupTelemetry("trackrunner-tracks")
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
	if err := applyTrackFlags(c, &cfg.Job); err != nil {
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
	err = runTracks(ctx, cfg, input, output, format)
	recordJob(ctx, start, err)
	return err
}

func applyTrackFlags(c *cobra.Command, cfg *trackjob.Config) error {
	for name, dst := range map[string]*string{
		"userid-column":    &cfg.Columns.UserID,
		"timestamp-column": &cfg.Columns.Timestamp,
		"lat-column":       &cfg.Columns.Lat,
		"lon-column":       &cfg.Columns.Lon,
		"track-column":     &cfg.Columns.TrackID,
		"temp-dir":         &cfg.TempDir,
	} {
		if err := applyStringFlag(c, name, dst); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*int{
		"spill-threshold": &cfg.SpillThreshold,
		"max-attempts":    &cfg.MaxAttempts,
	} {
		if !c.Flags().Changed(name) {
			continue
		}
		v, err := c.Flags().GetInt(name)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*dst = v
	}
	return nil
}

// runTracks runs one sessionization job from input to output.
func runTracks(ctx context.Context, cfg *config.Config, input, output string, format trackio.Format) (err error) {
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
	sink, err := trackio.NewTrajectorySink(format, dst)
	if err != nil {
		_ = trackio.Abort(dst)
		return err
	}
	defer func() {
		err = finish(err, sink, dst)
	}()

	summary, err := job.Run(ctx, src, sink)
	if err != nil {
		logger.Error("Sessionization failed", slog.Any("error", err), slog.Any("summary", summary))
		return err
	}
	return nil
}

// finish flushes the sink and closes the destination. After a failure the
// destination is discarded so that no partial output is left behind.
func finish(err error, sink io.Closer, dst io.WriteCloser) error {
	if err == nil {
		if err = sink.Close(); err != nil {
			err = fmt.Errorf("failed to flush output: %w", err)
		}
	} else {
		_ = sink.Close()
	}

	if err != nil {
		if aerr := trackio.Abort(dst); aerr != nil {
			return multierror.Append(err, fmt.Errorf("failed to discard output: %w", aerr))
		}
		return err
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}
