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

package debug

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/trackrunner/config"
	"github.com/cardinalhq/trackrunner/internal/trackio"
	"github.com/cardinalhq/trackrunner/internal/trackjob"
)

func GetPartitionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "Show how an input would be split across workers",
		Long: `Extracts and partitions an input, predicts the number of users per
partition, and prints the per-partition load without reconstructing trajectories.`,
		RunE: func(c *cobra.Command, _ []string) error {
			input, err := c.Flags().GetString("input")
			if err != nil {
				return fmt.Errorf("failed to get input flag: %w", err)
			}
			workers, err := c.Flags().GetInt("workers")
			if err != nil {
				return fmt.Errorf("failed to get workers flag: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if workers > 0 {
				cfg.Job.Workers = workers
			}

			job, err := trackjob.New(cfg.Job)
			if err != nil {
				return err
			}
			locs := &trackio.Locations{S3Options: cfg.S3}
			src, err := locs.OpenSource(c.Context(), input)
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			stats, err := job.Plan(c.Context(), src)
			if err != nil {
				return err
			}
			return printPartitions(c.OutOrStdout(), stats)
		},
	}

	cmd.Flags().StringP("input", "i", "-", "Input location: a path, s3://bucket/key, or - for stdin")
	cmd.Flags().Int("workers", 0, "Number of partitions (default from config)")

	return cmd
}

func printPartitions(w io.Writer, stats []trackjob.PartitionStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PARTITION\tRECORDS\tUSERS\tSPILLED\t")

	records, users := 0, 0
	for _, s := range stats {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%t\t\n", s.Partition, s.Records, s.Entities, s.Spilled)
		records += s.Records
		users += s.Entities
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t\t\n", records, users)
	return tw.Flush()
}
