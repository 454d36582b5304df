package sei

import (
	"github.com/zsiec/hwenc/bitstream"
)

// UserDataUnregistered is SEI payload 5: a 16-byte ISO 11578 UUID
// followed by arbitrary bytes. Used for the encoder identifier string.
type UserDataUnregistered struct {
	UUID [16]byte
	Data []byte
}

func (u *UserDataUnregistered) Type() int { return TypeUserDataUnregistered }

func (u *UserDataUnregistered) MarshalBody() ([]byte, error) {
	out := make([]byte, 0, 16+len(u.Data))
	out = append(out, u.UUID[:]...)
	return append(out, u.Data...), nil
}

// RecoveryPoint is SEI payload 6.
type RecoveryPoint struct {
	RecoveryFrameCnt      uint32
	ExactMatchFlag        bool
	BrokenLinkFlag        bool
	ChangingSliceGroupIDC uint32
}

func (r *RecoveryPoint) Type() int { return TypeRecoveryPoint }

func (r *RecoveryPoint) MarshalBody() ([]byte, error) {
	var w bitstream.Writer
	w.WriteUE(r.RecoveryFrameCnt)
	w.WriteFlag(r.ExactMatchFlag)
	w.WriteFlag(r.BrokenLinkFlag)
	w.WriteBits(r.ChangingSliceGroupIDC, 2)
	// payload_bit_equal_to_one + alignment
	if !w.ByteAligned() {
		w.WriteTrailingBits()
	}
	return w.Bytes(), w.Err()
}
