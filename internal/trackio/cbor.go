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

package trackio

import (
	"bufio"
	"context"
	"fmt"
	"io"

	fxcbor "github.com/fxamacker/cbor/v2"

	"github.com/cardinalhq/trackrunner/internal/cbor"
	"github.com/cardinalhq/trackrunner/internal/tracks"
)

// CBORSink writes a stream of CBOR-encoded TrajectoryDoc values.
type CBORSink struct {
	bw  *bufio.Writer
	enc *fxcbor.Encoder
}

func NewCBORSink(w io.Writer) (*CBORSink, error) {
	config, err := cbor.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR config: %w", err)
	}
	bw := bufio.NewWriter(w)
	return &CBORSink{bw: bw, enc: config.NewEncoder(bw)}, nil
}

func (s *CBORSink) Write(ctx context.Context, trajectories []tracks.Trajectory) error {
	for i := range trajectories {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.enc.Encode(newTrajectoryDoc(&trajectories[i])); err != nil {
			return err
		}
	}
	return nil
}

func (s *CBORSink) Close() error {
	return s.bw.Flush()
}
