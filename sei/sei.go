// Package sei builds the Supplemental Enhancement Information payloads
// shared by the H.264 and HEVC cores: HDR metadata, A/53 closed
// captions, recovery points, and the encoder identifier. Codec packages
// wrap these payloads in their own SEI NAL unit framing.
package sei

import (
	"fmt"

	"github.com/zsiec/hwenc/bitstream"
)

// Payload type codes from Rec. ITU-T H.264 Annex D / H.265 Annex D.
const (
	TypeBufferingPeriod        = 0
	TypePicTiming              = 1
	TypeUserDataRegistered     = 4
	TypeUserDataUnregistered   = 5
	TypeRecoveryPoint          = 6
	TypeMasteringDisplayColour = 137
	TypeContentLightLevel      = 144
)

// Payload is one SEI message body.
type Payload interface {
	Type() int
	MarshalBody() ([]byte, error)
}

// WriteMessage appends one SEI message (last_payload_type_byte /
// last_payload_size_byte framing with 0xFF extension) to w.
func WriteMessage(w *bitstream.Writer, p Payload) error {
	body, err := p.MarshalBody()
	if err != nil {
		return fmt.Errorf("sei: payload type %d: %w", p.Type(), err)
	}
	t := p.Type()
	for t >= 255 {
		w.WriteBits(0xff, 8)
		t -= 255
	}
	w.WriteBits(uint32(t), 8)
	n := len(body)
	for n >= 255 {
		w.WriteBits(0xff, 8)
		n -= 255
	}
	w.WriteBits(uint32(n), 8)
	for _, b := range body {
		w.WriteBits(uint32(b), 8)
	}
	return w.Err()
}
