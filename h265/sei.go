package h265

import (
	"fmt"

	"github.com/zsiec/hwenc/bitstream"
	"github.com/zsiec/hwenc/sei"
)

// RawSEI wraps a set of SEI payloads in one prefix SEI NAL unit.
type RawSEI struct {
	Payloads []sei.Payload
}

// Marshal writes the prefix SEI NAL unit with all accumulated messages.
func (s *RawSEI) Marshal(w *bitstream.Writer) error {
	writeNALHeader(w, NALSEIPrefix)
	for _, p := range s.Payloads {
		if err := sei.WriteMessage(w, p); err != nil {
			return fmt.Errorf("h265: sei message: %w", err)
		}
	}
	w.WriteTrailingBits()
	return w.Err()
}
