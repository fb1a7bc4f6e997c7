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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/trackrunner/internal/trackjob"
)

// addJobFlags registers the flags shared by commands that read signal rows.
// Flags only override configuration when set explicitly.
func addJobFlags(c *cobra.Command) {
	c.Flags().StringP("input", "i", "-", "Input location: a path, s3://bucket/key, or - for stdin")
	c.Flags().StringP("output", "o", "-", "Output location: a path, s3://bucket/key, or - for stdout")
	c.Flags().StringP("format", "f", "jsonl", "Output format")
	c.Flags().Int("workers", 0, "Number of parallel workers (partitions)")
	c.Flags().String("separator", "", "Field separator; use 'tab' for tab-separated input")
	c.Flags().Bool("no-header", false, "Input has no header row")
	c.Flags().String("input-columns", "", "Comma-separated input column names, overriding the header row")
	c.Flags().String("output-columns", "", "Comma-separated columns to carry on each point (default all)")
	c.Flags().Int("extract-batch-size", 0, "Rows parsed per extraction task")
}

func applyJobFlags(c *cobra.Command, cfg *trackjob.Config) error {
	flags := c.Flags()

	if flags.Changed("workers") {
		v, err := flags.GetInt("workers")
		if err != nil {
			return fmt.Errorf("failed to get workers flag: %w", err)
		}
		cfg.Workers = v
	}
	if flags.Changed("separator") {
		v, err := flags.GetString("separator")
		if err != nil {
			return fmt.Errorf("failed to get separator flag: %w", err)
		}
		cfg.Separator = v
	}
	if flags.Changed("no-header") {
		v, err := flags.GetBool("no-header")
		if err != nil {
			return fmt.Errorf("failed to get no-header flag: %w", err)
		}
		cfg.HasHeader = !v
	}
	if flags.Changed("input-columns") {
		v, err := flags.GetString("input-columns")
		if err != nil {
			return fmt.Errorf("failed to get input-columns flag: %w", err)
		}
		cfg.InputColumns = splitList(v)
	}
	if flags.Changed("output-columns") {
		v, err := flags.GetString("output-columns")
		if err != nil {
			return fmt.Errorf("failed to get output-columns flag: %w", err)
		}
		cfg.OutputColumns = splitList(v)
	}
	if flags.Changed("extract-batch-size") {
		v, err := flags.GetInt("extract-batch-size")
		if err != nil {
			return fmt.Errorf("failed to get extract-batch-size flag: %w", err)
		}
		cfg.ExtractBatchSize = v
	}
	return nil
}

// applyStringFlag copies a string flag into dst when it was set.
func applyStringFlag(c *cobra.Command, name string, dst *string) error {
	if !c.Flags().Changed(name) {
		return nil
	}
	v, err := c.Flags().GetString(name)
	if err != nil {
		return fmt.Errorf("failed to get %s flag: %w", name, err)
	}
	*dst = v
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
