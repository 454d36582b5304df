package h265

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/zsiec/hwenc/bitstream"
	"github.com/zsiec/hwenc/encode"
	"github.com/zsiec/hwenc/sei"
	"github.com/zsiec/hwenc/vabuf"
)

// picState is the per-picture ordering state attached to each Picture.
type picState struct {
	lastIDRFrame int64
	picOrderCnt  int64
	sliceNALUnit int
	sliceType    uint32
	picType      uint32
}

// Codec derives HEVC headers and hardware parameter blocks. It
// implements encode.Codec and must be driven from a single goroutine.
type Codec struct {
	cfg *encode.Config
	log *slog.Logger

	profile int
	tier    int

	ctuSize   int
	minCBSize int

	surfaceWidth  int
	surfaceHeight int
	ctbCols       int
	ctbRows       int
	ctbAddrBits   int

	colWidth  []int
	rowHeight []int

	fixedQPIDR int
	fixedQPP   int
	fixedQPB   int

	gpb bool

	seiFlags encode.SEIFlags

	vps RawVPS
	sps RawSPS
	pps RawPPS

	// Filled by the Init*Params calls for the submission layer.
	Seq vabuf.SequenceParameterBufferHEVC
	Pic vabuf.PictureParameterBufferHEVC
	Sl  vabuf.SliceParameterBufferHEVC

	frag bitstream.Fragment

	audNeeded bool
	rawAUD    RawAUD
	seiNeeded encode.SEIFlags
	mastering *sei.MasteringDisplayColourVolume
	light     *sei.ContentLightLevel
	a53       *sei.UserDataRegistered

	rawSlice RawSliceHeader
}

// New validates cfg and resolves the profile, tier, and block size
// geometry. Header derivation happens in InitSequenceParams.
func New(cfg *encode.Config, logger *slog.Logger) (*Codec, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	profile := cfg.Profile
	if profile == -1 || profile == 0 {
		switch {
		case cfg.Chroma == encode.Chroma420 && cfg.BitDepth == 8:
			profile = ProfileMain
		case cfg.Chroma == encode.Chroma420 && cfg.BitDepth == 10:
			profile = ProfileMain10
		default:
			profile = ProfileRext
		}
	}
	switch profile {
	case ProfileMain:
		if cfg.Chroma != encode.Chroma420 || cfg.BitDepth != 8 {
			return nil, fmt.Errorf("h265: %w: main profile requires 8-bit 4:2:0",
				encode.ErrInvalidConfig)
		}
	case ProfileMain10:
		if cfg.Chroma != encode.Chroma420 || cfg.BitDepth > 10 {
			return nil, fmt.Errorf("h265: %w: main 10 profile requires 4:2:0 at up to 10 bits",
				encode.ErrInvalidConfig)
		}
	case ProfileRext:
	default:
		return nil, fmt.Errorf("h265: %w: profile %d is not supported",
			encode.ErrInvalidConfig, profile)
	}
	if cfg.Tier != TierMain && cfg.Tier != TierHigh {
		return nil, fmt.Errorf("h265: %w: tier %d", encode.ErrInvalidConfig, cfg.Tier)
	}

	c := &Codec{
		cfg:     cfg,
		log:     logger,
		profile: profile,
		tier:    cfg.Tier,
		gpb:     cfg.GPB,
	}

	c.ctuSize = 32
	c.minCBSize = 16
	if cfg.Caps != nil && cfg.Caps.BlockSizes != nil {
		c.ctuSize = cfg.Caps.BlockSizes.CTUSize
		c.minCBSize = cfg.Caps.BlockSizes.MinCBSize
	}
	c.log.Debug("block geometry", "ctu", c.ctuSize, "min_cb", c.minCBSize)

	c.surfaceWidth = align(cfg.Width, c.minCBSize)
	c.surfaceHeight = align(cfg.Height, c.minCBSize)
	c.ctbCols = (c.surfaceWidth + c.ctuSize - 1) / c.ctuSize
	c.ctbRows = (c.surfaceHeight + c.ctuSize - 1) / c.ctuSize
	c.ctbAddrBits = ceilLog2(c.ctbCols * c.ctbRows)

	c.fixedQPIDR, c.fixedQPP, c.fixedQPB = cfg.FixedQP(30)
	c.log.Debug("fixed QP values",
		"idr", c.fixedQPIDR, "p", c.fixedQPP, "b", c.fixedQPB)

	c.seiFlags = cfg.SEI &
		(encode.SEIMasteringDisplay | encode.SEIContentLight | encode.SEIA53CC)
	return c, nil
}

// InitSequenceParams derives the VPS, SPS, PPS, and the hardware
// sequence parameter block.
func (c *Codec) InitSequenceParams() error {
	cfg := c.cfg
	vps := &c.vps
	sps := &c.sps
	pps := &c.pps
	*vps = RawVPS{}
	*sps = RawSPS{}
	*pps = RawPPS{}

	chromaW, chromaH := cfg.Chroma.SubsampleShift()

	// VPS

	vps.VideoParameterSetID = 0
	vps.BaseLayerInternalFlag = true
	vps.BaseLayerAvailableFlag = true
	vps.TemporalIDNestingFlag = true

	ptl := &vps.ProfileTierLevel
	ptl.ProfileSpace = 0
	ptl.ProfileIDC = uint32(c.profile)
	ptl.TierFlag = c.tier == TierHigh

	ptl.ProfileCompatibilityFlag[c.profile] = true
	if ptl.ProfileCompatibilityFlag[1] {
		ptl.ProfileCompatibilityFlag[2] = true
	}
	if ptl.ProfileCompatibilityFlag[3] {
		ptl.ProfileCompatibilityFlag[1] = true
		ptl.ProfileCompatibilityFlag[2] = true
	}

	ptl.ProgressiveSourceFlag = true
	ptl.NonPackedConstraintFlag = true
	ptl.FrameOnlyConstraintFlag = true

	ptl.Max14BitConstraintFlag = cfg.BitDepth <= 14
	ptl.Max12BitConstraintFlag = cfg.BitDepth <= 12
	ptl.Max10BitConstraintFlag = cfg.BitDepth <= 10
	ptl.Max8BitConstraintFlag = cfg.BitDepth == 8

	ptl.Max422ChromaConstraintFlag = cfg.Chroma <= encode.Chroma422
	ptl.Max420ChromaConstraintFlag = cfg.Chroma <= encode.Chroma420
	ptl.MaxMonochromeConstraintFlag = cfg.Chroma == encode.ChromaMonochrome

	ptl.IntraConstraintFlag = cfg.GOPSize == 1
	ptl.LowerBitRateConstraintFlag = true

	if cfg.Level != -1 {
		ptl.LevelIDC = cfg.Level
	} else {
		maxDec := 1
		if cfg.BPerP > 0 {
			maxDec = 2
		}
		level := GuessLevel(c.profile, c.tier, cfg.BitRate,
			c.surfaceWidth, c.surfaceHeight,
			cfg.Slices, cfg.TileRows, cfg.TileCols, maxDec)
		if level != nil {
			c.log.Debug("using level", "level", level.Name)
			ptl.LevelIDC = level.LevelIDC
		} else {
			c.log.Warn("stream will not conform to any normal level, using level 8.5")
			ptl.LevelIDC = 255
			// The tier flag must be set in level 8.5.
			ptl.TierFlag = true
		}
	}

	vps.MaxDecPicBufferingMinus1 = uint32(cfg.MaxBDepth + 1)
	vps.MaxNumReorderPics = uint32(cfg.MaxBDepth)
	vps.MaxLatencyIncreasePlus1 = 0

	vps.TimingInfoPresentFlag = true
	if !cfg.Framerate.IsZero() {
		vps.NumUnitsInTick = uint32(cfg.Framerate.Den)
		vps.TimeScale = uint32(cfg.Framerate.Num)
		vps.POCProportionalToTimingFlag = true
		vps.NumTicksPOCDiffOneMinus1 = 0
	} else {
		vps.NumUnitsInTick = uint32(cfg.TimeBase.Num)
		vps.TimeScale = uint32(cfg.TimeBase.Den)
	}

	// SPS

	sps.VideoParameterSetID = vps.VideoParameterSetID
	sps.TemporalIDNestingFlag = vps.TemporalIDNestingFlag
	sps.ProfileTierLevel = vps.ProfileTierLevel

	sps.SeqParameterSetID = 0
	sps.ChromaFormatIDC = uint32(cfg.Chroma)

	sps.PicWidthInLumaSamples = uint32(c.surfaceWidth)
	sps.PicHeightInLumaSamples = uint32(c.surfaceHeight)

	if cfg.Width != c.surfaceWidth || cfg.Height != c.surfaceHeight {
		sps.ConformanceWindowFlag = true
		sps.ConfWinRightOffset = uint32(c.surfaceWidth-cfg.Width) >> chromaW
		sps.ConfWinBottomOffset = uint32(c.surfaceHeight-cfg.Height) >> chromaH
	}

	sps.BitDepthLumaMinus8 = uint32(cfg.BitDepth - 8)
	sps.BitDepthChromaMinus8 = uint32(cfg.BitDepth - 8)

	sps.Log2MaxPicOrderCntLsbMinus4 = 8

	sps.MaxDecPicBufferingMinus1 = vps.MaxDecPicBufferingMinus1
	sps.MaxNumReorderPics = vps.MaxNumReorderPics
	sps.MaxLatencyIncreasePlus1 = vps.MaxLatencyIncreasePlus1

	// Conservative defaults from the first Intel driver generation
	// implementing HEVC encode: CTB 8-32, transform 4-32, full
	// hierarchy, AMP only.
	sps.Log2MinLumaCodingBlockSizeMinus3 = 0
	sps.Log2DiffMaxMinLumaCodingBlockSize = 2
	sps.Log2MinLumaTransformBlockSizeMinus2 = 0
	sps.Log2DiffMaxMinLumaTransformBlockSize = 3
	sps.MaxTransformHierarchyDepthInter = 3
	sps.MaxTransformHierarchyDepthIntra = 3
	sps.AmpEnabledFlag = true
	sps.SampleAdaptiveOffsetEnabledFlag = false
	sps.TemporalMVPEnabledFlag = false
	sps.PCMEnabledFlag = false

	if cfg.Caps != nil && cfg.Caps.Features != nil {
		f := cfg.Caps.Features
		sps.AmpEnabledFlag = f.AMP
		sps.SampleAdaptiveOffsetEnabledFlag = f.SAO
		sps.TemporalMVPEnabledFlag = f.TemporalMVP
		sps.PCMEnabledFlag = f.PCM
	}
	if cfg.Caps != nil && cfg.Caps.BlockSizes != nil {
		bs := cfg.Caps.BlockSizes
		sps.Log2MinLumaCodingBlockSizeMinus3 =
			uint32(bits.TrailingZeros(uint(c.minCBSize)) - 3)
		sps.Log2DiffMaxMinLumaCodingBlockSize =
			uint32(bits.TrailingZeros(uint(c.ctuSize)) - bits.TrailingZeros(uint(c.minCBSize)))
		sps.Log2MinLumaTransformBlockSizeMinus2 = uint32(bs.MinTBLog2Minus2)
		sps.Log2DiffMaxMinLumaTransformBlockSize = uint32(bs.MaxTBLog2Minus2 - bs.MinTBLog2Minus2)
		sps.MaxTransformHierarchyDepthInter = uint32(bs.MaxTHDepthInter)
		sps.MaxTransformHierarchyDepthIntra = uint32(bs.MaxTHDepthIntra)
	}

	if sps.PCMEnabledFlag {
		sps.PCMSampleBitDepthLumaMinus1 = uint32(cfg.BitDepth - 1)
		sps.PCMSampleBitDepthChromaMinus1 = uint32(cfg.BitDepth - 1)
		minPCM := bits.TrailingZeros(uint(c.minCBSize))
		if minPCM > 5 {
			minPCM = 5
		}
		maxPCM := bits.TrailingZeros(uint(c.ctuSize))
		if maxPCM > 5 {
			maxPCM = 5
		}
		sps.Log2MinPCMLumaCodingBlockSizeMinus3 = uint32(minPCM - 3)
		sps.Log2DiffMaxMinPCMLumaCodingBlockSize = uint32(maxPCM - minPCM)
	}

	sps.VUIParametersPresentFlag = true
	vui := &sps.VUI

	if !cfg.SampleAspect.IsZero() {
		sar := cfg.SampleAspect.Reduce(65535)
		vui.AspectRatioIDC = lookupAspectRatio(sar.Num, sar.Den)
		if vui.AspectRatioIDC == ExtendedSAR {
			vui.SarWidth = sar.Num
			vui.SarHeight = sar.Den
		}
		vui.AspectRatioInfoPresentFlag = true
	}

	// Unspecified video format, from Table E-2.
	vui.VideoFormat = 5
	vui.VideoFullRangeFlag = cfg.FullRange
	vui.ColourPrimaries = colorCode(cfg.ColorPrimaries)
	vui.TransferCharacteristics = colorCode(cfg.ColorTransfer)
	vui.MatrixCoefficients = colorCode(cfg.ColorMatrix)
	if vui.ColourPrimaries != 2 || vui.TransferCharacteristics != 2 ||
		vui.MatrixCoefficients != 2 {
		vui.ColourDescriptionPresentFlag = true
	}
	if cfg.FullRange || vui.ColourDescriptionPresentFlag {
		vui.VideoSignalTypePresentFlag = true
	}

	if cfg.ChromaLocation > 0 {
		vui.ChromaLocInfoPresentFlag = true
		vui.ChromaSampleLocTypeTopField = uint32(cfg.ChromaLocation - 1)
		vui.ChromaSampleLocTypeBottomField = uint32(cfg.ChromaLocation - 1)
	}

	vui.TimingInfoPresentFlag = true
	vui.NumUnitsInTick = vps.NumUnitsInTick
	vui.TimeScale = vps.TimeScale
	vui.POCProportionalToTimingFlag = vps.POCProportionalToTimingFlag
	vui.NumTicksPOCDiffOneMinus1 = vps.NumTicksPOCDiffOneMinus1

	vui.BitstreamRestrictionFlag = true
	vui.MotionVectorsOverPicBoundariesFlag = true
	vui.RestrictedRefPicListsFlag = true
	vui.Log2MaxMvLengthHorizontal = 15
	vui.Log2MaxMvLengthVertical = 15

	// PPS

	pps.PicParameterSetID = 0
	pps.SeqParameterSetID = sps.SeqParameterSetID

	pps.NumRefIdxL0DefaultActiveMinus1 = 0
	pps.NumRefIdxL1DefaultActiveMinus1 = 0

	pps.InitQPMinus26 = int32(c.fixedQPIDR - 26)

	pps.CUQPDeltaEnabledFlag = cfg.RC != encode.RCConstantQP
	if cfg.Caps != nil && cfg.Caps.Features != nil {
		f := cfg.Caps.Features
		if cfg.RC != encode.RCConstantQP {
			pps.CUQPDeltaEnabledFlag = f.CUQPDelta
		}
		pps.TransformSkipEnabledFlag = f.TransformSkip
	}
	// diff_cu_qp_delta_depth 0 would disable per-CU QP again, so use
	// the full CB range when the mechanism is on.
	if pps.CUQPDeltaEnabledFlag {
		pps.DiffCUQPDeltaDepth = sps.Log2DiffMaxMinLumaCodingBlockSize
	}

	if cfg.TileRows > 0 && cfg.TileCols > 0 {
		pps.TilesEnabledFlag = true
		pps.NumTileColumnsMinus1 = uint32(cfg.TileCols - 1)
		pps.NumTileRowsMinus1 = uint32(cfg.TileRows - 1)

		// The uniform spacing the PPS signals; the hardware block still
		// wants the boundaries spelled out.
		c.colWidth = make([]int, cfg.TileCols)
		c.rowHeight = make([]int, cfg.TileRows)
		for i := 0; i < cfg.TileCols; i++ {
			c.colWidth[i] = (i+1)*c.ctbCols/cfg.TileCols - i*c.ctbCols/cfg.TileCols
		}
		for i := 0; i < cfg.TileRows; i++ {
			c.rowHeight[i] = (i+1)*c.ctbRows/cfg.TileRows - i*c.ctbRows/cfg.TileRows
		}
		pps.LoopFilterAcrossTilesEnabledFlag = true
	}

	pps.LoopFilterAcrossSlicesEnabledFlag = true

	// Hardware parameter blocks.

	tierFlag := 0
	if ptl.TierFlag {
		tierFlag = 1
	}
	c.Seq = vabuf.SequenceParameterBufferHEVC{
		GeneralProfileIDC: int(ptl.ProfileIDC),
		GeneralLevelIDC:   ptl.LevelIDC,
		GeneralTierFlag:   tierFlag,

		IntraPeriod:    cfg.GOPSize,
		IntraIDRPeriod: cfg.GOPSize,
		IPPeriod:       cfg.BPerP + 1,
		BitsPerSecond:  cfg.BitRate,

		PicWidthInLumaSamples:  int(sps.PicWidthInLumaSamples),
		PicHeightInLumaSamples: int(sps.PicHeightInLumaSamples),

		ChromaFormatIDC:                 int(sps.ChromaFormatIDC),
		BitDepthLumaMinus8:              int(sps.BitDepthLumaMinus8),
		BitDepthChromaMinus8:            int(sps.BitDepthChromaMinus8),
		StrongIntraSmoothingEnabledFlag: sps.StrongIntraSmoothingEnabledFlag,
		AMPEnabledFlag:                  sps.AmpEnabledFlag,
		SampleAdaptiveOffsetEnabledFlag: sps.SampleAdaptiveOffsetEnabledFlag,
		PCMEnabledFlag:                  sps.PCMEnabledFlag,
		PCMLoopFilterDisabledFlag:       sps.PCMLoopFilterDisabledFlag,
		SpsTemporalMvpEnabledFlag:       sps.TemporalMVPEnabledFlag,

		Log2MinLumaCodingBlockSizeMinus3:  int(sps.Log2MinLumaCodingBlockSizeMinus3),
		Log2DiffMaxMinLumaCodingBlockSize: int(sps.Log2DiffMaxMinLumaCodingBlockSize),
		Log2MinTransformBlockSizeMinus2:   int(sps.Log2MinLumaTransformBlockSizeMinus2),
		Log2DiffMaxMinTransformBlockSize:  int(sps.Log2DiffMaxMinLumaTransformBlockSize),
		MaxTransformHierarchyDepthInter:   int(sps.MaxTransformHierarchyDepthInter),
		MaxTransformHierarchyDepthIntra:   int(sps.MaxTransformHierarchyDepthIntra),
	}

	collocated := 0xff
	if sps.TemporalMVPEnabledFlag {
		collocated = 0
	}
	c.Pic = vabuf.PictureParameterBufferHEVC{
		DecodedCurrPic: vabuf.InvalidPictureHEVC(),
		CodedBuf:       vabuf.InvalidID,

		CollocatedRefPicIndex: collocated,

		PicInitQP:          int(pps.InitQPMinus26) + 26,
		DiffCUQPDeltaDepth: int(pps.DiffCUQPDeltaDepth),

		NumTileColumnsMinus1: int(pps.NumTileColumnsMinus1),
		NumTileRowsMinus1:    int(pps.NumTileRowsMinus1),

		NumRefIdxL0DefaultActiveMinus1: int(pps.NumRefIdxL0DefaultActiveMinus1),
		NumRefIdxL1DefaultActiveMinus1: int(pps.NumRefIdxL1DefaultActiveMinus1),

		SlicePicParameterSetID: int(pps.PicParameterSetID),

		PicFields: vabuf.PicFieldsHEVC{
			ConstrainedIntraPredFlag:             pps.ConstrainedIntraPredFlag,
			TransformSkipEnabledFlag:             pps.TransformSkipEnabledFlag,
			CUQPDeltaEnabledFlag:                 pps.CUQPDeltaEnabledFlag,
			TilesEnabledFlag:                     pps.TilesEnabledFlag,
			LoopFilterAcrossTilesEnabledFlag:     pps.LoopFilterAcrossTilesEnabledFlag,
			PpsLoopFilterAcrossSlicesEnabledFlag: pps.LoopFilterAcrossSlicesEnabledFlag,
		},
	}
	if pps.TilesEnabledFlag {
		for i := range c.colWidth {
			c.Pic.ColumnWidthMinus1[i] = c.colWidth[i] - 1
		}
		for i := range c.rowHeight {
			c.Pic.RowHeightMinus1[i] = c.rowHeight[i] - 1
		}
	}
	return nil
}

// InitPictureParams classifies the slice NAL unit, advances the POC
// engine, and fills the hardware picture parameter block.
func (c *Codec) InitPictureParams(pic *encode.Picture) error {
	st := &picState{}
	if pic.Type == encode.PictureIDR {
		if pic.DisplayOrder != pic.EncodeOrder {
			panic("h265: IDR picture display order diverges from encode order")
		}
		st.lastIDRFrame = pic.DisplayOrder
		st.sliceNALUnit = NALIDRWRADL
		st.sliceType = SliceI
		st.picType = 0
	} else {
		if pic.Prev == nil {
			panic("h265: non-IDR picture without predecessor")
		}
		st.lastIDRFrame = prevState(pic).lastIDRFrame

		switch pic.Type {
		case encode.PictureI:
			st.sliceNALUnit = NALCRANUT
			st.sliceType = SliceI
			st.picType = 0
		case encode.PictureP:
			if len(pic.Refs[0]) == 0 {
				panic("h265: P picture without backward reference")
			}
			st.sliceNALUnit = NALTrailR
			st.sliceType = SliceP
			st.picType = 1
		default:
			if len(pic.Refs[0]) == 0 || len(pic.Refs[1]) == 0 {
				panic("h265: B picture without references in both directions")
			}
			// A B picture that decodes after a CRA it depends on is a
			// RASL picture; otherwise a trailing picture. Unreferenced
			// only at the bottom of the pyramid.
			irap := false
			for p := pic; p != nil; {
				if p.Type == encode.PictureI {
					irap = true
					break
				}
				if len(p.Refs[1]) == 0 {
					break
				}
				p = p.Refs[1][0]
			}
			if pic.BDepth == c.cfg.MaxBDepth {
				if irap {
					st.sliceNALUnit = NALRASLN
				} else {
					st.sliceNALUnit = NALTrailN
				}
			} else {
				if irap {
					st.sliceNALUnit = NALRASLR
				} else {
					st.sliceNALUnit = NALTrailR
				}
			}
			st.sliceType = SliceB
			st.picType = 2
		}
	}
	st.picOrderCnt = pic.DisplayOrder - st.lastIDRFrame
	pic.SetCodecState(st)

	c.audNeeded = c.cfg.AUD
	c.rawAUD = RawAUD{PicType: st.picType}

	c.seiNeeded = 0
	intra := pic.Type == encode.PictureI || pic.Type == encode.PictureIDR

	// HDR metadata rides only on intra pictures; a stream cut at an
	// IRAP keeps it that way.
	if c.seiFlags&encode.SEIMasteringDisplay != 0 && intra && pic.Frame != nil {
		if m := sei.NewMasteringDisplay(pic.Frame.Mastering); m != nil {
			c.mastering = m
			c.seiNeeded |= encode.SEIMasteringDisplay
		}
	}
	if c.seiFlags&encode.SEIContentLight != 0 && intra && pic.Frame != nil {
		if l := sei.NewContentLight(pic.Frame.Light); l != nil {
			c.light = l
			c.seiNeeded |= encode.SEIContentLight
		}
	}
	if c.seiFlags&encode.SEIA53CC != 0 && pic.Frame != nil {
		p, err := sei.A53Captions(pic.Frame.CCData)
		if err != nil {
			return fmt.Errorf("h265: %w", err)
		}
		if p != nil {
			c.a53 = p
			c.seiNeeded |= encode.SEIA53CC
		}
	}

	c.Pic.DecodedCurrPic = vabuf.PictureHEVC{
		PictureID:   pic.ReconSurface,
		PicOrderCnt: int(st.picOrderCnt),
	}
	j := 0
	for _, list := range pic.Refs {
		if len(list) > vabuf.MaxRefListEntries {
			panic("h265: reference list exceeds the slice list array")
		}
		for _, ref := range list {
			if ref.EncodeOrder >= pic.EncodeOrder {
				panic("h265: reference encoded after current picture")
			}
			if j == len(c.Pic.ReferenceFrames) {
				panic("h265: reference lists overflow the DPB array")
			}
			rs := pState(ref)
			var flags uint32
			if ref.DisplayOrder < pic.DisplayOrder {
				flags |= vabuf.PictureHEVCRpsStCurrBefore
			}
			if ref.DisplayOrder > pic.DisplayOrder {
				flags |= vabuf.PictureHEVCRpsStCurrAfter
			}
			c.Pic.ReferenceFrames[j] = vabuf.PictureHEVC{
				PictureID:   ref.ReconSurface,
				PicOrderCnt: int(rs.picOrderCnt),
				Flags:       flags,
			}
			j++
		}
	}
	for ; j < len(c.Pic.ReferenceFrames); j++ {
		c.Pic.ReferenceFrames[j] = vabuf.InvalidPictureHEVC()
	}

	c.Pic.CodedBuf = pic.CodedBuffer
	c.Pic.NALUnitType = st.sliceNALUnit

	c.Pic.PicFields.ReferencePicFlag = pic.IsReference
	switch pic.Type {
	case encode.PictureIDR:
		c.Pic.PicFields.IDRPicFlag = true
		c.Pic.PicFields.CodingType = 1
	case encode.PictureI:
		c.Pic.PicFields.IDRPicFlag = false
		c.Pic.PicFields.CodingType = 1
	case encode.PictureP:
		c.Pic.PicFields.IDRPicFlag = false
		c.Pic.PicFields.CodingType = 2
	case encode.PictureB:
		c.Pic.PicFields.IDRPicFlag = false
		c.Pic.PicFields.CodingType = 3
	}
	return nil
}

// InitSliceParams derives the slice segment header, including the
// short-term reference picture set, and fills the hardware slice block.
func (c *Codec) InitSliceParams(pic *encode.Picture, sl *encode.Slice) error {
	st := pState(pic)
	sh := &c.rawSlice
	*sh = RawSliceHeader{
		SPS:         &c.sps,
		PPS:         &c.pps,
		NALUnitType: st.sliceNALUnit,
		CtbAddrBits: c.ctbAddrBits,
	}

	sh.FirstSliceSegmentInPicFlag = sl.Index == 0
	sh.SliceSegmentAddress = uint32(sl.BlockStart)

	sh.SliceType = st.sliceType
	if sh.SliceType == SliceP && c.gpb {
		sh.SliceType = SliceB
	}

	sh.PicOrderCntLsb = uint32(st.picOrderCnt & int64(c.sps.MaxPicOrderCntLsb()-1))

	if pic.Type != encode.PictureIDR {
		c.buildRefPicSet(pic, st, &sh.ShortTermRefPicSet)

		sh.CollocatedFromL0Flag = true
		sh.TemporalMVPEnabledFlag = c.sps.TemporalMVPEnabledFlag
	}

	sh.SAOLumaFlag = c.sps.SampleAdaptiveOffsetEnabledFlag
	sh.SAOChromaFlag = c.sps.SampleAdaptiveOffsetEnabledFlag

	switch pic.Type {
	case encode.PictureB:
		sh.SliceQPDelta = int32(c.fixedQPB - c.Pic.PicInitQP)
	case encode.PictureP:
		sh.SliceQPDelta = int32(c.fixedQPP - c.Pic.PicInitQP)
	default:
		sh.SliceQPDelta = int32(c.fixedQPIDR - c.Pic.PicInitQP)
	}

	c.Sl = vabuf.SliceParameterBufferHEVC{
		SliceSegmentAddress: sl.BlockStart,
		NumCTUInSlice:       sl.BlockSize,

		SliceType:              int(sh.SliceType),
		SlicePicParameterSetID: int(c.pps.PicParameterSetID),

		MaxNumMergeCand: 5 - int(sh.FiveMinusMaxNumMergeCand),

		SliceQPDelta: int(sh.SliceQPDelta),

		SliceFields: vabuf.SliceFieldsHEVC{
			LastSliceOfPicFlag:          sl.Index == c.cfg.Slices-1,
			SliceTemporalMvpEnabledFlag: sh.TemporalMVPEnabledFlag,
			SliceSaoLumaFlag:            sh.SAOLumaFlag,
			SliceSaoChromaFlag:          sh.SAOChromaFlag,
			MvdL1ZeroFlag:               sh.MvdL1ZeroFlag,
			CollocatedFromL0Flag:        sh.CollocatedFromL0Flag,
		},
	}
	c.Sl.ResetRefLists()

	j := 0
	for i := range pic.Refs[0] {
		c.Sl.RefPicList0[i] = c.Pic.ReferenceFrames[j]
		j++
	}
	for i := range pic.Refs[1] {
		c.Sl.RefPicList1[i] = c.Pic.ReferenceFrames[j]
		j++
	}
	if c.gpb && pic.Type == encode.PictureP {
		// GPB: list 1 mirrors list 0.
		copy(c.Sl.RefPicList1[:], c.Sl.RefPicList0[:])
	}
	return nil
}

// buildRefPicSet assembles the short-term RPS: every active reference
// is marked used, every other retained DPB picture rides along unused
// so the decoder keeps it.
func (c *Codec) buildRefPicSet(pic *encode.Picture, st *picState, rps *STRefPicSet) {
	type entry struct {
		poc  int64
		used bool
	}
	entries := make([]entry, 0, encode.MaxDPBSize)

	for _, list := range pic.Refs {
		for _, ref := range list {
			entries = append(entries, entry{pState(ref).picOrderCnt, true})
		}
	}
	for _, d := range pic.DPB {
		if d == pic || pic.IsRef(d) {
			continue
		}
		entries = append(entries, entry{pState(d).picOrderCnt, false})
	}

	for i := 1; i < len(entries); i++ {
		for j := i; j > 0; j-- {
			if entries[j].poc > entries[j-1].poc {
				break
			}
			if entries[j].poc == entries[j-1].poc {
				panic("h265: duplicate POC in reference picture set")
			}
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}

	dump := make([]int64, len(entries))
	for i, e := range entries {
		dump[i] = e.poc
	}
	c.log.Debug("reference picture set",
		"poc", st.picOrderCnt, "entries", dump)

	split := len(entries)
	for i, e := range entries {
		if e.poc == st.picOrderCnt {
			panic("h265: reference picture set contains current POC")
		}
		if e.poc > st.picOrderCnt {
			split = i
			break
		}
	}

	rps.NumNegativePics = split
	poc := st.picOrderCnt
	for j := split - 1; j >= 0; j-- {
		rps.DeltaPocS0Minus1[split-1-j] = uint32(poc - entries[j].poc - 1)
		rps.UsedByCurrPicS0Flag[split-1-j] = entries[j].used
		poc = entries[j].poc
	}

	rps.NumPositivePics = len(entries) - split
	poc = st.picOrderCnt
	for j := split; j < len(entries); j++ {
		rps.DeltaPocS1Minus1[j-split] = uint32(entries[j].poc - poc - 1)
		rps.UsedByCurrPicS1Flag[j-split] = entries[j].used
		poc = entries[j].poc
	}
}

// WriteSequenceHeader serializes AUD (if due), VPS, SPS, and PPS.
func (c *Codec) WriteSequenceHeader(dst []byte, dstBits int) (int, error) {
	if c.audNeeded {
		c.frag.Add(&c.rawAUD)
	}
	c.frag.Add(&c.vps)
	c.frag.Add(&c.sps)
	c.frag.Add(&c.pps)
	n, err := c.frag.WriteTo(dst, dstBits)
	if err != nil {
		return 0, err
	}
	c.audNeeded = false
	return n, nil
}

// WriteSliceHeader serializes AUD (if still due) and the slice segment
// header.
func (c *Codec) WriteSliceHeader(pic *encode.Picture, sl *encode.Slice, dst []byte, dstBits int) (int, error) {
	if c.audNeeded {
		c.frag.Add(&c.rawAUD)
	}
	c.frag.Add(&c.rawSlice)
	n, err := c.frag.WriteTo(dst, dstBits)
	if err != nil {
		return 0, err
	}
	c.audNeeded = false
	return n, nil
}

// WriteExtraHeaders serializes the SEI access unit for pic. A zero
// length with nil error means no SEI messages are due.
func (c *Codec) WriteExtraHeaders(pic *encode.Picture, dst []byte, dstBits int) (int, error) {
	if c.seiNeeded == 0 {
		return 0, nil
	}
	if c.audNeeded {
		c.frag.Add(&c.rawAUD)
	}

	msg := &RawSEI{}
	if c.seiNeeded&encode.SEIMasteringDisplay != 0 {
		msg.Payloads = append(msg.Payloads, c.mastering)
	}
	if c.seiNeeded&encode.SEIContentLight != 0 {
		msg.Payloads = append(msg.Payloads, c.light)
	}
	if c.seiNeeded&encode.SEIA53CC != 0 {
		msg.Payloads = append(msg.Payloads, c.a53)
	}
	c.frag.Add(msg)

	n, err := c.frag.WriteTo(dst, dstBits)
	if err != nil {
		return 0, err
	}
	c.audNeeded = false
	c.seiNeeded = 0
	return n, nil
}

func pState(p *encode.Picture) *picState {
	st, ok := p.CodecState().(*picState)
	if !ok {
		panic("h265: picture without codec state")
	}
	return st
}

func prevState(p *encode.Picture) *picState {
	return pState(p.Prev)
}

// colorCode maps the zero value to the H.273 "unspecified" code point.
func colorCode(v uint8) uint32 {
	if v == 0 {
		return 2
	}
	return uint32(v)
}

func align(v, a int) int {
	return (v + a - 1) / a * a
}
