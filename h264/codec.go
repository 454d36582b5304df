package h264

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/zsiec/hwenc/bitstream"
	"github.com/zsiec/hwenc/encode"
	"github.com/zsiec/hwenc/sei"
	"github.com/zsiec/hwenc/vabuf"
)

// identifierUUID tags the user_data_unregistered SEI carrying the
// encoder identifier string.
var identifierUUID = [16]byte{
	0x6f, 0x2b, 0xd4, 0x1c, 0x87, 0x5e, 0x4c, 0x8b,
	0xb6, 0x1b, 0x2e, 0x1a, 0x52, 0x7f, 0x06, 0x3d,
}

const identifierString = "hwenc H.264 hardware encoder"

// picState is the per-picture ordering state attached to each Picture.
type picState struct {
	frameNum       int64 // monotone between IDRs; masked at emission
	lastIDRFrame   int64
	idrPicID       uint16
	primaryPicType uint32
	sliceType      uint32
	picOrderCnt    int64
	dpbDelay       int64
	cpbDelay       int64
}

// Codec derives H.264 headers and hardware parameter blocks. It
// implements encode.Codec and must be driven from a single goroutine.
type Codec struct {
	cfg *encode.Config
	log *slog.Logger

	profile  int // profile constant, modifier bits included
	mbWidth  int
	mbHeight int

	dpbFrames int

	fixedQPIDR int
	fixedQPP   int
	fixedQPB   int

	hrdBufferSize      int64
	hrdInitialFullness int64

	seiFlags   encode.SEIFlags
	identifier *sei.UserDataUnregistered

	sps             RawSPS
	pps             RawPPS
	bufferingPeriod BufferingPeriod

	// Filled by the Init*Params calls for the submission layer.
	Seq vabuf.SequenceParameterBufferH264
	Pic vabuf.PictureParameterBufferH264
	Sl  vabuf.SliceParameterBufferH264

	frag bitstream.Fragment

	audNeeded     bool
	rawAUD        RawAUD
	seiNeeded     encode.SEIFlags
	picTiming     PicTiming
	recoveryPoint sei.RecoveryPoint
	a53           *sei.UserDataRegistered

	rawSlice RawSliceHeader
}

// New validates cfg and resolves the profile and per-type QP values.
// Header derivation happens in InitSequenceParams.
func New(cfg *encode.Config, logger *slog.Logger) (*Codec, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	profile := cfg.Profile
	if profile == -1 || profile == 0 {
		profile = ProfileHigh
	}
	switch profile {
	case ProfileBaseline:
		logger.Warn("baseline profile is not supported, using constrained baseline profile instead")
		profile = ProfileConstrainedBaseline
	case ProfileExtended:
		return nil, fmt.Errorf("h264: %w: extended profile is not supported", encode.ErrInvalidConfig)
	}
	switch profile {
	case ProfileConstrainedBaseline, ProfileMain, ProfileHigh, ProfileHigh10:
	default:
		return nil, fmt.Errorf("h264: %w: profile %d is not supported", encode.ErrInvalidConfig, profile)
	}

	wantDepth := 8
	if profile == ProfileHigh10 {
		wantDepth = 10
	}
	if cfg.BitDepth != wantDepth {
		return nil, fmt.Errorf("h264: %w: bit depth %d does not match profile %d",
			encode.ErrInvalidConfig, cfg.BitDepth, profile)
	}
	if cfg.Chroma != encode.Chroma420 {
		return nil, fmt.Errorf("h264: %w: chroma format %s is not supported",
			encode.ErrInvalidConfig, cfg.Chroma)
	}
	if cfg.TileCols > 1 || cfg.TileRows > 1 {
		return nil, fmt.Errorf("h264: %w: tiles are not supported", encode.ErrInvalidConfig)
	}

	c := &Codec{
		cfg:      cfg,
		log:      logger,
		profile:  profile,
		mbWidth:  (cfg.Width + MbSize - 1) / MbSize,
		mbHeight: (cfg.Height + MbSize - 1) / MbSize,
	}
	if cfg.GOPSize == 1 {
		c.dpbFrames = 0
	} else {
		c.dpbFrames = 1 + cfg.MaxBDepth
	}

	c.fixedQPIDR, c.fixedQPP, c.fixedQPB = cfg.FixedQP(26)
	c.log.Debug("fixed QP values",
		"idr", c.fixedQPIDR, "p", c.fixedQPP, "b", c.fixedQPB)

	c.seiFlags = cfg.SEI
	c.hrdBufferSize = cfg.HRDBufferSize
	if c.hrdBufferSize == 0 {
		c.hrdBufferSize = cfg.BitRate
	}
	c.hrdInitialFullness = cfg.HRDInitialFullness
	if c.hrdInitialFullness == 0 {
		c.hrdInitialFullness = c.hrdBufferSize * 3 / 4
	}
	if cfg.RC == encode.RCConstantQP || cfg.BitRate <= 0 {
		// Timing SEI requires a rate control mode respecting HRD
		// parameters.
		c.seiFlags &^= encode.SEITiming
	}
	if c.seiFlags&encode.SEIIdentifier != 0 {
		c.identifier = &sei.UserDataUnregistered{
			UUID: identifierUUID,
			Data: []byte(identifierString),
		}
	}
	return c, nil
}

// InitSequenceParams derives the SPS, PPS, and the hardware sequence
// parameter block.
func (c *Codec) InitSequenceParams() error {
	cfg := c.cfg
	sps := &c.sps
	pps := &c.pps
	*sps = RawSPS{}
	*pps = RawPPS{}

	sps.ProfileIDC = c.profile & 0xff
	if c.profile == ProfileConstrainedBaseline || c.profile == ProfileMain {
		sps.ConstraintSet1Flag = true
	}
	if c.profile == ProfileHigh || c.profile == ProfileHigh10 {
		sps.ConstraintSet3Flag = cfg.GOPSize == 1
	}
	if c.profile == ProfileMain || c.profile == ProfileHigh || c.profile == ProfileHigh10 {
		sps.ConstraintSet4Flag = true
		sps.ConstraintSet5Flag = cfg.BPerP == 0
	}

	if cfg.Level != -1 {
		sps.LevelIDC = cfg.Level
	} else {
		framerate := 0
		if !cfg.Framerate.IsZero() {
			framerate = cfg.Framerate.Num / cfg.Framerate.Den
		}
		level := GuessLevel(sps.ProfileIDC, cfg.BitRate, framerate,
			c.mbWidth*MbSize, c.mbHeight*MbSize, c.dpbFrames)
		if level != nil {
			c.log.Debug("using level", "level", level.Name)
			if level.ConstraintSet3Flag {
				sps.ConstraintSet3Flag = true
			}
			sps.LevelIDC = level.LevelIDC
		} else {
			c.log.Warn("stream will not conform to any level, using level 6.2")
			sps.LevelIDC = 62
		}
	}

	sps.SeqParameterSetID = 0
	sps.ChromaFormatIDC = 1
	sps.BitDepthLumaMinus8 = uint32(cfg.BitDepth - 8)
	sps.BitDepthChromaMinus8 = uint32(cfg.BitDepth - 8)

	sps.Log2MaxFrameNumMinus4 = 4
	if cfg.MaxBDepth > 0 {
		sps.PicOrderCntType = 0
		sps.Log2MaxPicOrderCntLsbMinus4 = 4
	} else {
		sps.PicOrderCntType = 2
	}

	sps.MaxNumRefFrames = uint32(c.dpbFrames)

	sps.PicWidthInMbsMinus1 = uint32(c.mbWidth - 1)
	sps.PicHeightInMapUnitsMinus1 = uint32(c.mbHeight - 1)

	sps.FrameMbsOnlyFlag = true
	sps.Direct8x8InferenceFlag = true

	if cfg.Width != MbSize*c.mbWidth || cfg.Height != MbSize*c.mbHeight {
		sps.FrameCroppingFlag = true
		sps.FrameCropRightOffset = uint32(MbSize*c.mbWidth-cfg.Width) / 2
		sps.FrameCropBottomOffset = uint32(MbSize*c.mbHeight-cfg.Height) / 2
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
	if !cfg.Framerate.IsZero() {
		vui.NumUnitsInTick = uint32(cfg.Framerate.Den)
		vui.TimeScale = uint32(2 * cfg.Framerate.Num)
		vui.FixedFrameRateFlag = true
	} else {
		vui.NumUnitsInTick = uint32(cfg.TimeBase.Num)
		vui.TimeScale = uint32(2 * cfg.TimeBase.Den)
	}

	if c.seiFlags&encode.SEITiming != 0 {
		hrd := &vui.NALHRDParameters
		vui.NALHRDParametersPresentFlag = true

		// Scale rate and size so the Exp-Golomb codes stay short.
		hrd.BitRateScale = clipScale(log2i64(cfg.BitRate) - 15 - 6)
		hrd.BitRateValueMinus1 = uint32(cfg.BitRate>>(hrd.BitRateScale+6)) - 1
		hrd.CPBSizeScale = clipScale(log2i64(c.hrdBufferSize) - 15 - 4)
		hrd.CPBSizeValueMinus1 = uint32(c.hrdBufferSize>>(hrd.CPBSizeScale+4)) - 1

		// CBR as defined for the HRD cannot be achieved without filler
		// data, so the flag stays clear even in CBR rate control.
		hrd.CBRFlag = false

		hrd.InitialCPBRemovalDelayLengthMinus1 = 23
		hrd.CPBRemovalDelayLengthMinus1 = 23
		hrd.DPBOutputDelayLengthMinus1 = 7
		hrd.TimeOffsetLength = 0

		c.bufferingPeriod = BufferingPeriod{
			SPS: sps,
			InitialCPBRemovalDelay: uint32(90000 *
				uint64(c.hrdInitialFullness) / uint64(c.hrdBufferSize)),
		}
	} else {
		vui.LowDelayHRDFlag = !vui.FixedFrameRateFlag
	}

	vui.BitstreamRestrictionFlag = true
	vui.MotionVectorsOverPicBoundariesFlag = true
	vui.Log2MaxMvLengthHorizontal = 15
	vui.Log2MaxMvLengthVertical = 15
	vui.MaxNumReorderFrames = uint32(cfg.MaxBDepth)
	vui.MaxDecFrameBuffering = uint32(cfg.MaxBDepth + 1)

	pps.PicParameterSetID = 0
	pps.SeqParameterSetID = 0

	pps.EntropyCodingModeFlag = sps.ProfileIDC != ProfileBaseline &&
		sps.ProfileIDC != ProfileExtended &&
		sps.ProfileIDC != ProfileCAVLC444

	pps.NumRefIdxL0DefaultActiveMinus1 = 0
	pps.NumRefIdxL1DefaultActiveMinus1 = 0

	pps.PicInitQPMinus26 = int32(c.fixedQPIDR - 26)

	switch sps.ProfileIDC {
	case ProfileBaseline, ProfileExtended, ProfileMain:
		pps.MoreRBSPData = false
	default:
		pps.MoreRBSPData = true
		pps.Transform8x8ModeFlag = true
	}

	c.Seq = vabuf.SequenceParameterBufferH264{
		SeqParameterSetID: int(sps.SeqParameterSetID),
		LevelIDC:          sps.LevelIDC,
		IntraPeriod:       cfg.GOPSize,
		IntraIDRPeriod:    cfg.GOPSize,
		IPPeriod:          cfg.BPerP + 1,

		BitsPerSecond:      cfg.BitRate,
		MaxNumRefFrames:    int(sps.MaxNumRefFrames),
		PictureWidthInMbs:  c.mbWidth,
		PictureHeightInMbs: c.mbHeight,

		SeqFields: vabuf.SeqFieldsH264{
			ChromaFormatIDC:             int(sps.ChromaFormatIDC),
			FrameMbsOnlyFlag:            sps.FrameMbsOnlyFlag,
			Direct8x8InferenceFlag:      sps.Direct8x8InferenceFlag,
			Log2MaxFrameNumMinus4:       int(sps.Log2MaxFrameNumMinus4),
			PicOrderCntType:             int(sps.PicOrderCntType),
			Log2MaxPicOrderCntLsbMinus4: int(sps.Log2MaxPicOrderCntLsbMinus4),
		},

		BitDepthLumaMinus8:   int(sps.BitDepthLumaMinus8),
		BitDepthChromaMinus8: int(sps.BitDepthChromaMinus8),

		FrameCroppingFlag:     sps.FrameCroppingFlag,
		FrameCropRightOffset:  int(sps.FrameCropRightOffset),
		FrameCropBottomOffset: int(sps.FrameCropBottomOffset),

		VUIParametersPresentFlag: sps.VUIParametersPresentFlag,
		VUIFields: vabuf.VUIFieldsH264{
			AspectRatioInfoPresentFlag: vui.AspectRatioInfoPresentFlag,
			TimingInfoPresentFlag:      vui.TimingInfoPresentFlag,
			BitstreamRestrictionFlag:   vui.BitstreamRestrictionFlag,
			Log2MaxMvLengthHorizontal:  int(vui.Log2MaxMvLengthHorizontal),
			Log2MaxMvLengthVertical:    int(vui.Log2MaxMvLengthVertical),
		},
		AspectRatioIDC: vui.AspectRatioIDC,
		SarWidth:       vui.SarWidth,
		SarHeight:      vui.SarHeight,
		NumUnitsInTick: int(vui.NumUnitsInTick),
		TimeScale:      int(vui.TimeScale),
	}

	c.Pic = vabuf.PictureParameterBufferH264{
		CurrPic:  vabuf.InvalidPictureH264(),
		CodedBuf: vabuf.InvalidID,

		PicParameterSetID: int(pps.PicParameterSetID),
		SeqParameterSetID: int(pps.SeqParameterSetID),

		PicInitQP:               int(pps.PicInitQPMinus26) + 26,
		NumRefIdxL0ActiveMinus1: int(pps.NumRefIdxL0DefaultActiveMinus1),
		NumRefIdxL1ActiveMinus1: int(pps.NumRefIdxL1DefaultActiveMinus1),

		ChromaQPIndexOffset:       int(pps.ChromaQPIndexOffset),
		SecondChromaQPIndexOffset: int(pps.SecondChromaQPIndexOffset),

		PicFields: vabuf.PicFieldsH264{
			EntropyCodingModeFlag:              pps.EntropyCodingModeFlag,
			WeightedPredFlag:                   pps.WeightedPredFlag,
			WeightedBipredIDC:                  int(pps.WeightedBipredIDC),
			ConstrainedIntraPredFlag:           pps.ConstrainedIntraPredFlag,
			Transform8x8ModeFlag:               pps.Transform8x8ModeFlag,
			DeblockingFilterControlPresentFlag: pps.DeblockingFilterControlPresentFlag,
		},
	}
	for i := range c.Pic.ReferenceFrames {
		c.Pic.ReferenceFrames[i] = vabuf.InvalidPictureH264()
	}
	return nil
}

// InitPictureParams advances the POC/frame_num engine for pic and fills
// the hardware picture parameter block.
func (c *Codec) InitPictureParams(pic *encode.Picture) error {
	st := &picState{}
	if pic.Type == encode.PictureIDR {
		if pic.DisplayOrder != pic.EncodeOrder {
			panic("h264: IDR picture display order diverges from encode order")
		}
		st.frameNum = 0
		st.lastIDRFrame = pic.DisplayOrder
		if pic.Prev != nil {
			st.idrPicID = prevState(pic).idrPicID + 1
		}
		st.primaryPicType = 0
		st.sliceType = SliceAllI
	} else {
		if pic.Prev == nil {
			panic("h264: non-IDR picture without predecessor")
		}
		prev := prevState(pic)
		st.frameNum = prev.frameNum
		if pic.Prev.IsReference {
			st.frameNum++
		}
		st.lastIDRFrame = prev.lastIDRFrame
		st.idrPicID = prev.idrPicID

		switch pic.Type {
		case encode.PictureI:
			st.sliceType = SliceAllI
			st.primaryPicType = 0
		case encode.PictureP:
			if len(pic.Refs[0]) == 0 {
				panic("h264: P picture without backward reference")
			}
			st.sliceType = SliceAllP
			st.primaryPicType = 1
		default:
			if len(pic.Refs[0]) == 0 || len(pic.Refs[1]) == 0 {
				panic("h264: B picture without references in both directions")
			}
			st.sliceType = SliceAllB
			st.primaryPicType = 2
		}
	}
	st.picOrderCnt = pic.DisplayOrder - st.lastIDRFrame
	if c.sps.PicOrderCntType == 2 {
		st.picOrderCnt *= 2
	}
	st.dpbDelay = pic.DisplayOrder - pic.EncodeOrder + int64(c.cfg.MaxBDepth)
	st.cpbDelay = pic.EncodeOrder - st.lastIDRFrame
	pic.SetCodecState(st)

	c.audNeeded = c.cfg.AUD
	c.rawAUD = RawAUD{PrimaryPicType: st.primaryPicType}

	c.seiNeeded = 0
	if c.seiFlags&encode.SEIIdentifier != 0 && pic.EncodeOrder == 0 {
		c.seiNeeded |= encode.SEIIdentifier
	}
	if c.seiFlags&encode.SEITiming != 0 {
		c.picTiming = PicTiming{
			SPS:             &c.sps,
			CPBRemovalDelay: uint32(2 * st.cpbDelay),
			DPBOutputDelay:  uint32(2 * st.dpbDelay),
		}
		c.seiNeeded |= encode.SEITiming
	}
	if c.seiFlags&encode.SEIRecoveryPoint != 0 && pic.Type == encode.PictureI {
		c.recoveryPoint = sei.RecoveryPoint{
			RecoveryFrameCnt: 0,
			ExactMatchFlag:   true,
			BrokenLinkFlag:   c.cfg.BPerP > 0,
		}
		c.seiNeeded |= encode.SEIRecoveryPoint
	}
	if c.seiFlags&encode.SEIA53CC != 0 && pic.Frame != nil {
		p, err := sei.A53Captions(pic.Frame.CCData)
		if err != nil {
			return fmt.Errorf("h264: %w", err)
		}
		if p != nil {
			c.a53 = p
			c.seiNeeded |= encode.SEIA53CC
		}
	}

	mask := int64(c.sps.MaxFrameNum() - 1)
	c.Pic.CurrPic = vabuf.PictureH264{
		PictureID:           pic.ReconSurface,
		FrameIdx:            int(st.frameNum & mask),
		TopFieldOrderCnt:    int(st.picOrderCnt),
		BottomFieldOrderCnt: int(st.picOrderCnt),
	}
	j := 0
	for _, list := range pic.Refs {
		for _, ref := range list {
			if ref.EncodeOrder >= pic.EncodeOrder {
				panic("h264: reference encoded after current picture")
			}
			if j == len(c.Pic.ReferenceFrames) {
				panic("h264: reference lists overflow the DPB array")
			}
			rs := pState(ref)
			c.Pic.ReferenceFrames[j] = vabuf.PictureH264{
				PictureID:           ref.ReconSurface,
				FrameIdx:            int(rs.frameNum & mask),
				Flags:               vabuf.PictureH264ShortTermReference,
				TopFieldOrderCnt:    int(rs.picOrderCnt),
				BottomFieldOrderCnt: int(rs.picOrderCnt),
			}
			j++
		}
	}
	for ; j < len(c.Pic.ReferenceFrames); j++ {
		c.Pic.ReferenceFrames[j] = vabuf.InvalidPictureH264()
	}

	c.Pic.CodedBuf = pic.CodedBuffer
	c.Pic.FrameNum = int(st.frameNum & mask)
	c.Pic.PicFields.IDRPicFlag = pic.Type == encode.PictureIDR
	c.Pic.PicFields.ReferencePicFlag = pic.IsReference
	return nil
}

// defaultRefPicList reconstructs the initial reference picture lists the
// decoder will build (§8.2.4.2): list 0 by descending frame_num for P,
// and the POC-split orderings for B. When both B lists come out
// identical the first two entries of list 1 swap, as the decoder
// specifies for that degenerate case.
func (c *Codec) defaultRefPicList(pic *encode.Picture) (rpl0, rpl1 []*encode.Picture) {
	if pic.Prev == nil {
		panic("h264: reference list requested without predecessor")
	}
	hp := pState(pic)
	rpl0 = make([]*encode.Picture, 0, len(pic.Prev.DPB))
	rpl1 = make([]*encode.Picture, 0, len(pic.Prev.DPB))

	for _, cand := range pic.Prev.DPB {
		hn := pState(cand)
		if hn.frameNum >= hp.frameNum {
			panic("h264: DPB picture with frame_num beyond current")
		}
		n := len(rpl0)

		switch pic.Type {
		case encode.PictureP:
			j := n
			for ; j > 0; j-- {
				hc := pState(rpl0[j-1])
				if hc.frameNum > hn.frameNum {
					break
				}
			}
			rpl0 = insertAt(rpl0, j, cand)

		case encode.PictureB:
			j := n
			for ; j > 0; j-- {
				hc := pState(rpl0[j-1])
				if hc.picOrderCnt == hp.picOrderCnt {
					panic("h264: DPB picture shares current POC")
				}
				if hc.picOrderCnt < hp.picOrderCnt {
					if hn.picOrderCnt > hp.picOrderCnt ||
						hn.picOrderCnt < hc.picOrderCnt {
						break
					}
				} else {
					if hn.picOrderCnt > hc.picOrderCnt {
						break
					}
				}
			}
			rpl0 = insertAt(rpl0, j, cand)

			j = n
			for ; j > 0; j-- {
				hc := pState(rpl1[j-1])
				if hc.picOrderCnt > hp.picOrderCnt {
					if hn.picOrderCnt < hp.picOrderCnt ||
						hn.picOrderCnt > hc.picOrderCnt {
						break
					}
				} else {
					if hn.picOrderCnt < hc.picOrderCnt {
						break
					}
				}
			}
			rpl1 = insertAt(rpl1, j, cand)
		}
	}

	if pic.Type == encode.PictureB && len(rpl1) > 1 {
		same := true
		for i := range rpl0 {
			if rpl0[i] != rpl1[i] {
				same = false
				break
			}
		}
		if same {
			rpl1[0], rpl1[1] = rpl1[1], rpl1[0]
		}
	}

	if pic.Type == encode.PictureP || pic.Type == encode.PictureB {
		c.log.Debug("default reference list 0",
			"frame_num", hp.frameNum, "poc", hp.picOrderCnt,
			"list", refListString(rpl0))
	}
	if pic.Type == encode.PictureB {
		c.log.Debug("default reference list 1",
			"frame_num", hp.frameNum, "poc", hp.picOrderCnt,
			"list", refListString(rpl1))
	}
	return rpl0, rpl1
}

// InitSliceParams derives the slice header, including reference picture
// marking and list modification, and fills the hardware slice block.
func (c *Codec) InitSliceParams(pic *encode.Picture, sl *encode.Slice) error {
	st := pState(pic)
	sh := &c.rawSlice
	*sh = RawSliceHeader{SPS: &c.sps, PPS: &c.pps}

	if pic.Type == encode.PictureIDR {
		sh.NALUnitType = NALIDRSlice
		sh.NALRefIDC = 3
	} else {
		sh.NALUnitType = NALSlice
		if pic.IsReference {
			sh.NALRefIDC = 1
		}
	}

	sh.FirstMbInSlice = uint32(sl.BlockStart)
	sh.SliceType = st.sliceType
	sh.PicParameterSetID = c.pps.PicParameterSetID

	maxFrameNum := int64(c.sps.MaxFrameNum())
	sh.FrameNum = uint32(st.frameNum & (maxFrameNum - 1))
	sh.IDRPicID = uint32(st.idrPicID)
	sh.PicOrderCntLsb = uint32(st.picOrderCnt & int64(c.sps.MaxPicOrderCntLsb()-1))

	sh.DirectSpatialMvPredFlag = true

	switch pic.Type {
	case encode.PictureB:
		sh.SliceQPDelta = int32(c.fixedQPB - c.Pic.PicInitQP)
	case encode.PictureP:
		sh.SliceQPDelta = int32(c.fixedQPP - c.Pic.PicInitQP)
	default:
		sh.SliceQPDelta = int32(c.fixedQPIDR - c.Pic.PicInitQP)
	}

	if pic.IsReference && pic.Type != encode.PictureIDR {
		// Evict everything in the previous DPB that this picture's DPB
		// no longer holds.
		keep := 0
		for _, old := range pic.Prev.DPB {
			if pic.InDPB(old) {
				keep++
				continue
			}
			ho := pState(old)
			if ho.frameNum >= st.frameNum {
				panic("h264: evicting picture with frame_num beyond current")
			}
			sh.MMCOs = append(sh.MMCOs, MMCO{
				Op:                        1,
				DifferenceOfPicNumsMinus1: uint32(st.frameNum - ho.frameNum - 1),
			})
		}
		if keep > c.dpbFrames {
			panic("h264: DPB retains more pictures than max_num_ref_frames")
		}
		sh.AdaptiveRefPicMarkingModeFlag = len(sh.MMCOs) > 0
	}

	// When the intended references are not already the head of the
	// default lists, renumber them there explicitly.
	if pic.Type == encode.PictureP || pic.Type == encode.PictureB {
		def0, def1 := c.defaultRefPicList(pic)

		needL0 := false
		for i, ref := range pic.Refs[0] {
			if i >= len(def0) || ref != def0[i] {
				needL0 = true
				break
			}
		}
		sh.RefPicListModificationFlagL0 = needL0
		if needL0 {
			sh.RPLML0 = c.buildRPLM(pic.Refs[0], st.frameNum, maxFrameNum)
		}

		if pic.Type == encode.PictureB {
			needL1 := false
			for i, ref := range pic.Refs[1] {
				if i >= len(def1) || ref != def1[i] {
					needL1 = true
					break
				}
			}
			sh.RefPicListModificationFlagL1 = needL1
			if needL1 {
				sh.RPLML1 = c.buildRPLM(pic.Refs[1], st.frameNum, maxFrameNum)
			}
		}
	}

	c.Sl = vabuf.SliceParameterBufferH264{
		MacroblockAddress: sl.BlockStart,
		NumMacroblocks:    sl.BlockSize,
		MacroblockInfo:    vabuf.InvalidID,

		SliceType:         int(st.sliceType % 5),
		PicParameterSetID: int(sh.PicParameterSetID),
		IDRPicID:          int(sh.IDRPicID),

		PicOrderCntLsb: int(sh.PicOrderCntLsb),

		DirectSpatialMvPredFlag: sh.DirectSpatialMvPredFlag,

		SliceQPDelta: int(sh.SliceQPDelta),
	}
	c.Sl.ResetRefLists()
	if len(pic.Refs[0]) > 0 {
		c.Sl.RefPicList0[0] = c.Pic.ReferenceFrames[0]
	}
	if len(pic.Refs[1]) > 0 {
		c.Sl.RefPicList1[0] = c.Pic.ReferenceFrames[1]
	}
	return nil
}

// buildRPLM encodes the explicit list as ref_pic_list_modification
// steps. The pic_num cursor starts at the current frame_num and tracks
// each renumbered reference; differences wrap modulo MaxFrameNum.
func (c *Codec) buildRPLM(refs []*encode.Picture, frameNum, maxFrameNum int64) []RefPicListMod {
	out := make([]RefPicListMod, 0, len(refs))
	picNum := frameNum & (maxFrameNum - 1)
	for _, ref := range refs {
		rn := pState(ref).frameNum & (maxFrameNum - 1)
		if rn == picNum {
			panic("h264: reference shares pic_num with modification cursor")
		}
		sub := (picNum - rn + maxFrameNum) & (maxFrameNum - 1)
		add := (rn - picNum + maxFrameNum) & (maxFrameNum - 1)
		if sub <= add {
			out = append(out, RefPicListMod{
				ModificationOfPicNumsIDC: 0,
				AbsDiffPicNumMinus1:      uint32(sub - 1),
			})
		} else {
			out = append(out, RefPicListMod{
				ModificationOfPicNumsIDC: 1,
				AbsDiffPicNumMinus1:      uint32(add - 1),
			})
		}
		picNum = rn
	}
	return out
}

// WriteSequenceHeader serializes AUD (if due), SPS, and PPS.
func (c *Codec) WriteSequenceHeader(dst []byte, dstBits int) (int, error) {
	if c.audNeeded {
		c.frag.Add(&c.rawAUD)
	}
	c.frag.Add(&c.sps)
	c.frag.Add(&c.pps)
	n, err := c.frag.WriteTo(dst, dstBits)
	if err != nil {
		return 0, err
	}
	c.audNeeded = false
	return n, nil
}

// WriteSliceHeader serializes AUD (if still due) and the slice header.
// The slice header NAL ends bit-unaligned; the reported length accounts
// for the unused padding bits.
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
	if c.seiNeeded&encode.SEIIdentifier != 0 {
		msg.Payloads = append(msg.Payloads, c.identifier)
	}
	if c.seiNeeded&encode.SEITiming != 0 {
		if pic.Type == encode.PictureIDR {
			msg.Payloads = append(msg.Payloads, &c.bufferingPeriod)
		}
		msg.Payloads = append(msg.Payloads, &c.picTiming)
	}
	if c.seiNeeded&encode.SEIRecoveryPoint != 0 {
		msg.Payloads = append(msg.Payloads, &c.recoveryPoint)
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
		panic("h264: picture without codec state")
	}
	return st
}

func prevState(p *encode.Picture) *picState {
	return pState(p.Prev)
}

func insertAt(list []*encode.Picture, i int, p *encode.Picture) []*encode.Picture {
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = p
	return list
}

func refListString(list []*encode.Picture) string {
	s := ""
	for i, p := range list {
		if i > 0 {
			s += " "
		}
		st := pState(p)
		s += fmt.Sprintf("fn=%d/poc=%d", st.frameNum, st.picOrderCnt)
	}
	return s
}

// colorCode maps the zero value to the H.273 "unspecified" code point.
func colorCode(v uint8) uint32 {
	if v == 0 {
		return 2
	}
	return uint32(v)
}

func log2i64(v int64) int {
	if v <= 0 {
		return 0
	}
	return bits.Len64(uint64(v)) - 1
}

// clipScale clamps a scale exponent to the four-bit field.
func clipScale(v int) uint32 {
	if v < 0 {
		return 0
	}
	if v > 15 {
		return 15
	}
	return uint32(v)
}
