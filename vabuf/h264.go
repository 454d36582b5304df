// Package vabuf defines the hardware parameter block layouts the encode
// core fills for submission: sequence, picture, and slice parameter
// buffers plus reference picture entries, in the field layout of the
// VA-API encode ABI. The structures are plain data; the external
// submission layer is responsible for marshaling them to the device.
package vabuf

// InvalidID marks an unused surface or buffer handle.
const InvalidID uint32 = 0xffffffff

// Reference list array size shared by both codecs.
const MaxReferenceFrames = 16

// PictureH264 flag bits.
const (
	PictureH264Invalid            uint32 = 0x00000001
	PictureH264ShortTermReference uint32 = 0x00000008
	PictureH264LongTermReference  uint32 = 0x00000010
)

// PictureH264 describes one reference (or the current) picture for the
// H.264 encode ABI.
type PictureH264 struct {
	PictureID           uint32
	FrameIdx            int
	Flags               uint32
	TopFieldOrderCnt    int
	BottomFieldOrderCnt int
}

// InvalidPictureH264 is the sentinel entry padding unused reference
// slots.
func InvalidPictureH264() PictureH264 {
	return PictureH264{PictureID: InvalidID, Flags: PictureH264Invalid}
}

// SeqFieldsH264 packs the SPS-derived bit fields of the sequence buffer.
type SeqFieldsH264 struct {
	ChromaFormatIDC             int
	FrameMbsOnlyFlag            bool
	MbAdaptiveFrameFieldFlag    bool
	SeqScalingMatrixPresentFlag bool
	Direct8x8InferenceFlag      bool
	Log2MaxFrameNumMinus4       int
	PicOrderCntType             int
	Log2MaxPicOrderCntLsbMinus4 int
	DeltaPicOrderAlwaysZeroFlag bool
}

// VUIFieldsH264 packs the VUI-derived bit fields of the sequence buffer.
type VUIFieldsH264 struct {
	AspectRatioInfoPresentFlag bool
	TimingInfoPresentFlag      bool
	BitstreamRestrictionFlag   bool
	Log2MaxMvLengthHorizontal  int
	Log2MaxMvLengthVertical    int
}

// SequenceParameterBufferH264 is the per-sequence block.
type SequenceParameterBufferH264 struct {
	SeqParameterSetID    int
	LevelIDC             int
	IntraPeriod          int
	IntraIDRPeriod       int
	IPPeriod             int
	BitsPerSecond        int64
	MaxNumRefFrames      int
	PictureWidthInMbs    int
	PictureHeightInMbs   int
	SeqFields            SeqFieldsH264
	BitDepthLumaMinus8   int
	BitDepthChromaMinus8 int

	FrameCroppingFlag     bool
	FrameCropLeftOffset   int
	FrameCropRightOffset  int
	FrameCropTopOffset    int
	FrameCropBottomOffset int

	VUIParametersPresentFlag bool
	VUIFields                VUIFieldsH264
	AspectRatioIDC           int
	SarWidth                 int
	SarHeight                int
	NumUnitsInTick           int
	TimeScale                int
}

// PicFieldsH264 packs the PPS-derived bit fields of the picture buffer.
type PicFieldsH264 struct {
	IDRPicFlag                         bool
	ReferencePicFlag                   bool
	EntropyCodingModeFlag              bool
	WeightedPredFlag                   bool
	WeightedBipredIDC                  int
	ConstrainedIntraPredFlag           bool
	Transform8x8ModeFlag               bool
	DeblockingFilterControlPresentFlag bool
	RedundantPicCntPresentFlag         bool
	PicOrderPresentFlag                bool
	PicScalingMatrixPresentFlag        bool
}

// PictureParameterBufferH264 is the per-picture block.
type PictureParameterBufferH264 struct {
	CurrPic         PictureH264
	ReferenceFrames [MaxReferenceFrames]PictureH264
	CodedBuf        uint32

	PicParameterSetID int
	SeqParameterSetID int

	FrameNum int

	PicInitQP               int
	NumRefIdxL0ActiveMinus1 int
	NumRefIdxL1ActiveMinus1 int

	ChromaQPIndexOffset       int
	SecondChromaQPIndexOffset int

	PicFields PicFieldsH264
}

// SliceParameterBufferH264 is the per-slice block.
type SliceParameterBufferH264 struct {
	MacroblockAddress int
	NumMacroblocks    int
	MacroblockInfo    uint32

	SliceType         int
	PicParameterSetID int
	IDRPicID          int

	PicOrderCntLsb int

	DirectSpatialMvPredFlag bool

	RefPicList0 [32]PictureH264
	RefPicList1 [32]PictureH264

	SliceQPDelta int
}

// ResetRefLists pads both slice reference lists with invalid entries.
func (s *SliceParameterBufferH264) ResetRefLists() {
	for i := range s.RefPicList0 {
		s.RefPicList0[i] = InvalidPictureH264()
		s.RefPicList1[i] = InvalidPictureH264()
	}
}
