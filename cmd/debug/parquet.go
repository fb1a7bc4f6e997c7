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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/trackrunner/internal/trackio"
)

func GetParquetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parquet",
		Short: "Parquet output inspection utilities",
		Long:  `Utilities for inspecting Parquet files written by the tracks command.`,
	}

	cmd.AddCommand(getParquetCatSubCmd())
	cmd.AddCommand(getParquetSchemaSubCmd())

	return cmd
}

func getParquetCatSubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat",
		Short: "Output point rows as JSON lines",
		RunE: func(c *cobra.Command, _ []string) error {
			filename, err := c.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}

			limit, err := c.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}

			return runParquetCat(c.OutOrStdout(), filename, limit)
		},
	}

	cmd.Flags().String("file", "", "Parquet file to read")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("failed to mark file flag as required: %w", err))
	}
	cmd.Flags().Int("limit", 0, "Maximum number of rows to output (0 for unlimited)")

	return cmd
}

func getParquetSchemaSubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the schema and row count of a Parquet file",
		RunE: func(c *cobra.Command, _ []string) error {
			filename, err := c.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}

			return runParquetSchema(c.OutOrStdout(), filename)
		},
	}

	cmd.Flags().String("file", "", "Parquet file to read")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("failed to mark file flag as required: %w", err))
	}

	return cmd
}

func openParquet(filename string) (*os.File, *parquet.File, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("failed to stat file %s: %w", filename, err)
	}

	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	return file, pf, nil
}

func runParquetCat(w io.Writer, filename string, limit int) error {
	file, pf, err := openParquet(filename)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	reader := parquet.NewGenericReader[trackio.PointRow](pf)
	defer func() { _ = reader.Close() }()

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	rows := make([]trackio.PointRow, 1000)
	written := 0
	for limit <= 0 || written < limit {
		n, err := reader.Read(rows)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("error reading parquet rows: %w", err)
		}

		for i := 0; i < n && (limit <= 0 || written < limit); i++ {
			if err := enc.Encode(rows[i]); err != nil {
				return fmt.Errorf("error marshaling row to JSON: %w", err)
			}
			written++
		}

		if n == 0 || errors.Is(err, io.EOF) {
			break
		}
	}

	return bw.Flush()
}

func runParquetSchema(w io.Writer, filename string) error {
	file, pf, err := openParquet(filename)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	_, err = fmt.Fprintf(w, "%s\nrows: %d\n", pf.Schema().String(), pf.NumRows())
	return err
}
