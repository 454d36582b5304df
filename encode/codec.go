package encode

// Codec is the per-standard strategy selected once at configure time.
// All methods are synchronous and must be called from a single
// goroutine: sequence params once, then for each picture in encode
// order InitPictureParams, InitSliceParams per slice, and the header
// writes the submission layer asks for. Header writes report the
// payload length in bits; destination capacity is also in bits.
type Codec interface {
	// InitSequenceParams derives the parameter sets and the hardware
	// sequence parameter block from the configuration.
	InitSequenceParams() error

	// InitPictureParams computes per-picture ordering state (POC,
	// frame_num, NAL classification) and fills the hardware picture
	// parameter block.
	InitPictureParams(pic *Picture) error

	// InitSliceParams derives the slice header and the hardware slice
	// parameter block, including reference list renumbering.
	InitSliceParams(pic *Picture, sl *Slice) error

	// WriteSequenceHeader serializes the parameter set NAL units.
	WriteSequenceHeader(dst []byte, dstBits int) (int, error)

	// WriteSliceHeader serializes the slice header NAL unit.
	WriteSliceHeader(pic *Picture, sl *Slice, dst []byte, dstBits int) (int, error)

	// WriteExtraHeaders serializes the SEI access unit for this
	// picture. A zero length with nil error means no extra headers are
	// due.
	WriteExtraHeaders(pic *Picture, dst []byte, dstBits int) (int, error)
}
