package vabuf

// PictureHEVC flag bits.
const (
	PictureHEVCInvalid           uint32 = 0x00000001
	PictureHEVCLongTermReference uint32 = 0x00000002
	PictureHEVCRpsStCurrBefore   uint32 = 0x00000004
	PictureHEVCRpsStCurrAfter    uint32 = 0x00000008
	PictureHEVCRpsLtCurr         uint32 = 0x00000010
)

// MaxRefListEntries is the length of the per-slice reference list
// arrays in the HEVC encode ABI. One entry shorter than
// MaxReferenceFrames: the current picture occupies a DPB slot but never
// appears in its own lists.
const MaxRefListEntries = 15

// PictureHEVC describes one reference (or the current) picture for the
// HEVC encode ABI.
type PictureHEVC struct {
	PictureID   uint32
	PicOrderCnt int
	Flags       uint32
}

// InvalidPictureHEVC is the sentinel entry padding unused reference
// slots.
func InvalidPictureHEVC() PictureHEVC {
	return PictureHEVC{PictureID: InvalidID, Flags: PictureHEVCInvalid}
}

// SequenceParameterBufferHEVC is the per-sequence block.
type SequenceParameterBufferHEVC struct {
	GeneralProfileIDC int
	GeneralLevelIDC   int
	GeneralTierFlag   int

	IntraPeriod    int
	IntraIDRPeriod int
	IPPeriod       int
	BitsPerSecond  int64

	PicWidthInLumaSamples  int
	PicHeightInLumaSamples int

	ChromaFormatIDC                 int
	SeparateColourPlaneFlag         bool
	BitDepthLumaMinus8              int
	BitDepthChromaMinus8            int
	ScalingListEnabledFlag          bool
	StrongIntraSmoothingEnabledFlag bool
	AMPEnabledFlag                  bool
	SampleAdaptiveOffsetEnabledFlag bool
	PCMEnabledFlag                  bool
	PCMLoopFilterDisabledFlag       bool
	SpsTemporalMvpEnabledFlag       bool

	Log2MinLumaCodingBlockSizeMinus3  int
	Log2DiffMaxMinLumaCodingBlockSize int
	Log2MinTransformBlockSizeMinus2   int
	Log2DiffMaxMinTransformBlockSize  int
	MaxTransformHierarchyDepthInter   int
	MaxTransformHierarchyDepthIntra   int

	VUIParametersPresentFlag bool
}

// PicFieldsHEVC packs the PPS-derived bit fields of the picture buffer.
type PicFieldsHEVC struct {
	IDRPicFlag       bool
	CodingType       int // 1 = I, 2 = P, 3 = B
	ReferencePicFlag bool

	SignDataHidingEnabledFlag            bool
	ConstrainedIntraPredFlag             bool
	TransformSkipEnabledFlag             bool
	CUQPDeltaEnabledFlag                 bool
	WeightedPredFlag                     bool
	WeightedBipredFlag                   bool
	TransquantBypassEnabledFlag          bool
	TilesEnabledFlag                     bool
	EntropyCodingSyncEnabledFlag         bool
	LoopFilterAcrossTilesEnabledFlag     bool
	PpsLoopFilterAcrossSlicesEnabledFlag bool
	ScalingListDataPresentFlag           bool
	NoOutputOfPriorPicsFlag              bool
}

// PictureParameterBufferHEVC is the per-picture block.
type PictureParameterBufferHEVC struct {
	DecodedCurrPic  PictureHEVC
	ReferenceFrames [MaxReferenceFrames]PictureHEVC
	CodedBuf        uint32

	CollocatedRefPicIndex int
	LastPicture           int

	PicInitQP          int
	DiffCUQPDeltaDepth int
	PpsCbQPOffset      int
	PpsCrQPOffset      int

	NumTileColumnsMinus1 int
	NumTileRowsMinus1    int
	ColumnWidthMinus1    [19]int
	RowHeightMinus1      [21]int

	Log2ParallelMergeLevelMinus2 int
	CTUMaxBitsizeAllowed         int

	NumRefIdxL0DefaultActiveMinus1 int
	NumRefIdxL1DefaultActiveMinus1 int

	SlicePicParameterSetID int
	NALUnitType            int

	PicFields PicFieldsHEVC
}

// SliceFieldsHEVC packs the per-slice bit fields.
type SliceFieldsHEVC struct {
	LastSliceOfPicFlag                     bool
	DependentSliceSegmentFlag              bool
	ColourPlaneID                          int
	SliceTemporalMvpEnabledFlag            bool
	SliceSaoLumaFlag                       bool
	SliceSaoChromaFlag                     bool
	NumRefIdxActiveOverrideFlag            bool
	MvdL1ZeroFlag                          bool
	CabacInitFlag                          bool
	SliceDeblockingFilterDisabledFlag      bool
	SliceLoopFilterAcrossSlicesEnabledFlag bool
	CollocatedFromL0Flag                   bool
}

// SliceParameterBufferHEVC is the per-slice block.
type SliceParameterBufferHEVC struct {
	SliceSegmentAddress int
	NumCTUInSlice       int

	SliceType              int
	SlicePicParameterSetID int

	NumRefIdxL0ActiveMinus1 int
	NumRefIdxL1ActiveMinus1 int

	RefPicList0 [MaxRefListEntries]PictureHEVC
	RefPicList1 [MaxRefListEntries]PictureHEVC

	LumaLog2WeightDenom        int
	DeltaChromaLog2WeightDenom int

	MaxNumMergeCand int

	SliceQPDelta    int
	SliceCbQPOffset int
	SliceCrQPOffset int

	SliceBetaOffsetDiv2 int
	SliceTcOffsetDiv2   int

	SliceFields SliceFieldsHEVC
}

// ResetRefLists pads both slice reference lists with invalid entries.
func (s *SliceParameterBufferHEVC) ResetRefLists() {
	for i := range s.RefPicList0 {
		s.RefPicList0[i] = InvalidPictureHEVC()
		s.RefPicList1[i] = InvalidPictureHEVC()
	}
}
