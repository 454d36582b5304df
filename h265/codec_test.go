package h265

import (
	"bytes"
	"testing"

	"github.com/zsiec/hwenc/encode"
	"github.com/zsiec/hwenc/vabuf"
)

func testConfig() *encode.Config {
	return &encode.Config{
		Width:     1920,
		Height:    1080,
		BitDepth:  8,
		Chroma:    encode.Chroma420,
		Framerate: encode.Rational{Num: 30, Den: 1},
		GOPSize:   120,
		BPerP:     2,
		MaxBDepth: 1,
		BitRate:   10_000_000,
		RC:        encode.RCVBR,
		Profile:   -1,
		Level:     -1,
	}
}

func newTestCodec(t *testing.T, cfg *encode.Config) *Codec {
	t.Helper()
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.InitSequenceParams(); err != nil {
		t.Fatalf("InitSequenceParams: %v", err)
	}
	return c
}

// harness builds encode-order picture chains and feeds them through
// InitPictureParams.
type harness struct {
	t    *testing.T
	c    *Codec
	prev *encode.Picture
	enc  int64
	id   uint32
}

func (h *harness) add(display int64, typ encode.PictureType, isRef bool, depth int,
	refs0, refs1 []*encode.Picture) *encode.Picture {
	h.t.Helper()
	pic := &encode.Picture{
		DisplayOrder: display,
		EncodeOrder:  h.enc,
		Type:         typ,
		IsReference:  isRef,
		BDepth:       depth,
		Refs:         [2][]*encode.Picture{refs0, refs1},
		Prev:         h.prev,
		ReconSurface: h.id,
		CodedBuffer:  h.id + 100,
	}
	if isRef {
		pic.DPB = []*encode.Picture{pic}
	}
	h.enc++
	h.id++
	h.prev = pic
	if err := h.c.InitPictureParams(pic); err != nil {
		h.t.Fatalf("InitPictureParams display %d: %v", display, err)
	}
	return pic
}

func TestNALClassification(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t, testConfig())
	h := &harness{t: t, c: c}

	idr := h.add(0, encode.PictureIDR, true, 0, nil, nil)
	p := h.add(3, encode.PictureP, true, 0, []*encode.Picture{idr}, nil)
	bRef := h.add(1, encode.PictureB, true, 0,
		[]*encode.Picture{idr}, []*encode.Picture{p})
	bLeaf := h.add(2, encode.PictureB, false, 1,
		[]*encode.Picture{bRef}, []*encode.Picture{p})

	cra := h.add(6, encode.PictureI, true, 0, nil, nil)
	rasl := h.add(4, encode.PictureB, true, 0,
		[]*encode.Picture{p}, []*encode.Picture{cra})
	raslLeaf := h.add(5, encode.PictureB, false, 1,
		[]*encode.Picture{rasl}, []*encode.Picture{cra})

	want := []struct {
		pic *encode.Picture
		nal int
	}{
		{idr, NALIDRWRADL},
		{p, NALTrailR},
		{bRef, NALTrailR},
		{bLeaf, NALTrailN},
		{cra, NALCRANUT},
		{rasl, NALRASLR},
		{raslLeaf, NALRASLN},
	}
	for i, tc := range want {
		if got := pState(tc.pic).sliceNALUnit; got != tc.nal {
			t.Errorf("pic %d: NAL type %d, want %d", i, got, tc.nal)
		}
	}

	// A CRA does not reset the POC base; only an IDR does.
	if got := pState(cra).picOrderCnt; got != 6 {
		t.Errorf("CRA poc: got %d, want 6", got)
	}
	idr2 := h.add(7, encode.PictureIDR, true, 0, nil, nil)
	if got := pState(idr2).picOrderCnt; got != 0 {
		t.Errorf("poc after IDR: got %d, want 0", got)
	}
}

func TestRefFlagsByDirection(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t, testConfig())
	h := &harness{t: t, c: c}

	idr := h.add(0, encode.PictureIDR, true, 0, nil, nil)
	p := h.add(2, encode.PictureP, true, 0, []*encode.Picture{idr}, nil)
	h.add(1, encode.PictureB, false, 1,
		[]*encode.Picture{idr}, []*encode.Picture{p})

	if f := c.Pic.ReferenceFrames[0].Flags; f&vabuf.PictureHEVCRpsStCurrBefore == 0 {
		t.Errorf("backward reference flags: got %#x", f)
	}
	if f := c.Pic.ReferenceFrames[1].Flags; f&vabuf.PictureHEVCRpsStCurrAfter == 0 {
		t.Errorf("forward reference flags: got %#x", f)
	}
	if c.Pic.ReferenceFrames[2] != vabuf.InvalidPictureHEVC() {
		t.Error("unused reference slot not invalidated")
	}
}

func TestRefPicSet(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t, testConfig())
	h := &harness{t: t, c: c}

	idr := h.add(0, encode.PictureIDR, true, 0, nil, nil)
	p4 := h.add(4, encode.PictureP, true, 0, []*encode.Picture{idr}, nil)
	p6 := h.add(6, encode.PictureP, true, 0, []*encode.Picture{p4}, nil)
	b2 := h.add(2, encode.PictureB, false, 1,
		[]*encode.Picture{idr}, []*encode.Picture{p4})
	b2.DPB = []*encode.Picture{idr, p4, p6}

	sl := &encode.Slice{BlockSize: 2040}
	if err := c.InitSliceParams(b2, sl); err != nil {
		t.Fatalf("InitSliceParams: %v", err)
	}
	rps := &c.rawSlice.ShortTermRefPicSet

	if rps.NumNegativePics != 1 || rps.NumPositivePics != 2 {
		t.Fatalf("pic counts: got %d/%d, want 1/2",
			rps.NumNegativePics, rps.NumPositivePics)
	}
	// Negative side walks down from POC 2: delta to 0 is 2.
	if rps.DeltaPocS0Minus1[0] != 1 || !rps.UsedByCurrPicS0Flag[0] {
		t.Errorf("S0[0]: delta %d used %v", rps.DeltaPocS0Minus1[0], rps.UsedByCurrPicS0Flag[0])
	}
	// Positive side chains 2 -> 4 -> 6; only POC 4 is an active reference.
	if rps.DeltaPocS1Minus1[0] != 1 || !rps.UsedByCurrPicS1Flag[0] {
		t.Errorf("S1[0]: delta %d used %v", rps.DeltaPocS1Minus1[0], rps.UsedByCurrPicS1Flag[0])
	}
	if rps.DeltaPocS1Minus1[1] != 1 || rps.UsedByCurrPicS1Flag[1] {
		t.Errorf("S1[1]: delta %d used %v", rps.DeltaPocS1Minus1[1], rps.UsedByCurrPicS1Flag[1])
	}
}

func TestRefPicSetDuplicatePOC(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t, testConfig())
	h := &harness{t: t, c: c}

	idr := h.add(0, encode.PictureIDR, true, 0, nil, nil)
	p4 := h.add(4, encode.PictureP, true, 0, []*encode.Picture{idr}, nil)

	ghost := &encode.Picture{DisplayOrder: 4}
	ghost.SetCodecState(&picState{picOrderCnt: 4})

	b2 := h.add(2, encode.PictureB, false, 1,
		[]*encode.Picture{idr}, []*encode.Picture{p4})
	b2.DPB = []*encode.Picture{idr, p4, ghost}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate POC in reference picture set")
		}
	}()
	_ = c.InitSliceParams(b2, &encode.Slice{BlockSize: 2040})
}

func TestReferenceListBoundsContract(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t, testConfig())
	h := &harness{t: t, c: c}
	idr := h.add(0, encode.PictureIDR, true, 0, nil, nil)

	// One reference more than the slice list arrays hold.
	refs := make([]*encode.Picture, vabuf.MaxRefListEntries+1)
	for i := range refs {
		r := &encode.Picture{DisplayOrder: int64(i), EncodeOrder: int64(i)}
		r.SetCodecState(&picState{picOrderCnt: int64(i)})
		refs[i] = r
	}
	pic := &encode.Picture{
		DisplayOrder: 16, EncodeOrder: 16,
		Type: encode.PictureP,
		Refs: [2][]*encode.Picture{refs, nil},
		Prev: idr,
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic for reference list past the slice array")
		}
	}()
	_ = c.InitPictureParams(pic)
}

func TestGPBSliceLists(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.GPB = true
	c := newTestCodec(t, cfg)
	h := &harness{t: t, c: c}

	idr := h.add(0, encode.PictureIDR, true, 0, nil, nil)
	p := h.add(1, encode.PictureP, true, 0, []*encode.Picture{idr}, nil)
	p.DPB = []*encode.Picture{idr, p}

	sl := &encode.Slice{BlockSize: 2040}
	if err := c.InitSliceParams(p, sl); err != nil {
		t.Fatalf("InitSliceParams: %v", err)
	}
	if c.rawSlice.SliceType != SliceB {
		t.Errorf("slice type: got %d, want B", c.rawSlice.SliceType)
	}
	if c.Sl.SliceType != SliceB {
		t.Errorf("buffer slice type: got %d, want B", c.Sl.SliceType)
	}
	if c.Sl.RefPicList1[0] != c.Sl.RefPicList0[0] {
		t.Error("list 1 does not mirror list 0")
	}
	if c.Sl.RefPicList0[0].PictureID != idr.ReconSurface {
		t.Errorf("list 0 head: got surface %d, want %d",
			c.Sl.RefPicList0[0].PictureID, idr.ReconSurface)
	}
}

func TestTileGeometry(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.TileCols = 4
	cfg.TileRows = 3
	c := newTestCodec(t, cfg)

	// 1920x1088 surface at CTU 32: 60x34 CTBs.
	if !c.pps.TilesEnabledFlag {
		t.Fatal("tiles not enabled")
	}
	if c.pps.NumTileColumnsMinus1 != 3 || c.pps.NumTileRowsMinus1 != 2 {
		t.Fatalf("tile grid: got %d/%d", c.pps.NumTileColumnsMinus1, c.pps.NumTileRowsMinus1)
	}
	for i, w := range []int{15, 15, 15, 15} {
		if c.colWidth[i] != w {
			t.Errorf("column %d: got %d, want %d", i, c.colWidth[i], w)
		}
	}
	// 34 rows split 11/11/12.
	for i, ht := range []int{11, 11, 12} {
		if c.rowHeight[i] != ht {
			t.Errorf("row %d: got %d, want %d", i, c.rowHeight[i], ht)
		}
	}
	if c.Pic.ColumnWidthMinus1[0] != 14 || c.Pic.RowHeightMinus1[2] != 11 {
		t.Error("tile geometry not mirrored into the picture buffer")
	}

	// The tiled PPS still serializes.
	dst := make([]byte, 2048)
	n, err := c.WriteSequenceHeader(dst, len(dst)*8)
	if err != nil {
		t.Fatalf("WriteSequenceHeader: %v", err)
	}
	if !bytes.Contains(dst[:(n+7)/8], []byte{0, 0, 1, 0x44, 0x01}) {
		t.Error("PPS missing from tiled sequence header")
	}
}

func TestConformanceWindow(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t, testConfig())

	// 1080 aligns up to 1088; the offset is in chroma units.
	if c.sps.PicWidthInLumaSamples != 1920 || c.sps.PicHeightInLumaSamples != 1088 {
		t.Fatalf("surface: got %dx%d", c.sps.PicWidthInLumaSamples, c.sps.PicHeightInLumaSamples)
	}
	if !c.sps.ConformanceWindowFlag {
		t.Fatal("conformance window not signalled")
	}
	if c.sps.ConfWinRightOffset != 0 || c.sps.ConfWinBottomOffset != 4 {
		t.Errorf("offsets: got %d/%d, want 0/4",
			c.sps.ConfWinRightOffset, c.sps.ConfWinBottomOffset)
	}
	// 60x34 CTBs need 11 address bits.
	if c.ctbAddrBits != 11 {
		t.Errorf("ctb address bits: got %d, want 11", c.ctbAddrBits)
	}
}

func TestProfileTierLevel(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t, testConfig())
	ptl := &c.sps.ProfileTierLevel

	if ptl.ProfileIDC != ProfileMain {
		t.Errorf("profile: got %d, want main", ptl.ProfileIDC)
	}
	// Main streams are decodable by Main 10 decoders.
	if !ptl.ProfileCompatibilityFlag[1] || !ptl.ProfileCompatibilityFlag[2] {
		t.Error("main compatibility flags not propagated")
	}
	if !ptl.Max8BitConstraintFlag || !ptl.Max420ChromaConstraintFlag {
		t.Error("format constraint flags not derived")
	}
	if ptl.IntraConstraintFlag {
		t.Error("intra constraint set for a 120-frame GOP")
	}
	if ptl.LevelIDC != 120 {
		t.Errorf("level: got %d, want 120", ptl.LevelIDC)
	}

	// Intra-only stream.
	cfg := testConfig()
	cfg.GOPSize = 1
	cfg.BPerP = 0
	cfg.MaxBDepth = 0
	c = newTestCodec(t, cfg)
	if !c.sps.ProfileTierLevel.IntraConstraintFlag {
		t.Error("intra constraint missing for GOP size 1")
	}
}

func TestMain10Selection(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.BitDepth = 10
	c := newTestCodec(t, cfg)
	ptl := &c.sps.ProfileTierLevel
	if ptl.ProfileIDC != ProfileMain10 {
		t.Errorf("profile: got %d, want main 10", ptl.ProfileIDC)
	}
	if ptl.Max8BitConstraintFlag {
		t.Error("8-bit constraint set for a 10-bit stream")
	}
	// Main compatibility must not be claimed; Main 10 implies nothing
	// upward.
	if ptl.ProfileCompatibilityFlag[1] {
		t.Error("main compatibility claimed for 10-bit stream")
	}
	if !ptl.ProfileCompatibilityFlag[2] {
		t.Error("main 10 compatibility missing")
	}
}

func TestGuessLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		tier    int
		bitrate int64
		w, h    int
		want    string
	}{
		{"1080p main", TierMain, 10_000_000, 1920, 1088, "4"},
		{"1080p high rate", TierHigh, 40_000_000, 1920, 1088, "4.1"},
		{"cif", TierMain, 1_000_000, 352, 288, "2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			l := GuessLevel(ProfileMain, tc.tier, tc.bitrate, tc.w, tc.h, 1, 0, 0, 2)
			if l == nil {
				t.Fatal("no level found")
			}
			if l.Name != tc.want {
				t.Errorf("got %s, want %s", l.Name, tc.want)
			}
		})
	}
	if l := GuessLevel(ProfileMain, TierMain, 2_000_000_000, 1920, 1088, 1, 0, 0, 2); l != nil {
		t.Errorf("expected no level at 2 Gb/s main tier, got %s", l.Name)
	}
}

func TestLevelFallbackForcesHighTier(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.BitRate = 2_000_000_000
	c := newTestCodec(t, cfg)
	ptl := &c.sps.ProfileTierLevel
	if ptl.LevelIDC != 255 {
		t.Fatalf("level: got %d, want 255", ptl.LevelIDC)
	}
	if !ptl.TierFlag {
		t.Error("level 8.5 requires the high tier flag")
	}
	if c.Seq.GeneralLevelIDC != 255 || c.Seq.GeneralTierFlag != 1 {
		t.Error("fallback level not mirrored into the sequence buffer")
	}
}

func TestTimingFields(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t, testConfig())
	if c.vps.NumUnitsInTick != 1 || c.vps.TimeScale != 30 {
		t.Errorf("vps timing: got %d/%d, want 1/30", c.vps.NumUnitsInTick, c.vps.TimeScale)
	}
	if c.sps.VUI.TimeScale != c.vps.TimeScale {
		t.Error("VUI timing diverges from VPS")
	}
	if !c.vps.POCProportionalToTimingFlag {
		t.Error("POC proportional flag missing with a fixed frame rate")
	}
}

func TestSequenceHeaderEmission(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.AUD = true
	c := newTestCodec(t, cfg)
	h := &harness{t: t, c: c}
	h.add(0, encode.PictureIDR, true, 0, nil, nil)

	dst := make([]byte, 2048)
	n, err := c.WriteSequenceHeader(dst, len(dst)*8)
	if err != nil {
		t.Fatalf("WriteSequenceHeader: %v", err)
	}
	if n%8 != 0 {
		t.Errorf("expected byte-aligned parameter sets, got %d bits", n)
	}
	out := dst[:n/8]

	if !bytes.HasPrefix(out, []byte{0, 0, 0, 1, 0x46, 0x01}) {
		t.Fatalf("missing AUD: %x", out[:8])
	}
	vpsIdx := bytes.Index(out, []byte{0, 0, 1, 0x40, 0x01})
	spsIdx := bytes.Index(out, []byte{0, 0, 1, 0x42, 0x01})
	ppsIdx := bytes.Index(out, []byte{0, 0, 1, 0x44, 0x01})
	if vpsIdx < 0 || spsIdx < 0 || ppsIdx < 0 {
		t.Fatalf("missing parameter set NAL: %x", out)
	}
	if !(vpsIdx < spsIdx && spsIdx < ppsIdx) {
		t.Errorf("parameter set order wrong: vps %d sps %d pps %d", vpsIdx, spsIdx, ppsIdx)
	}

	// The AUD is consumed by the first write.
	n, err = c.WriteSequenceHeader(dst, len(dst)*8)
	if err != nil {
		t.Fatalf("second WriteSequenceHeader: %v", err)
	}
	if bytes.HasPrefix(dst[:n/8], []byte{0, 0, 0, 1, 0x46}) {
		t.Error("AUD emitted twice")
	}
}

func TestHDRSEIGating(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.SEI = encode.SEIHDR | encode.SEIA53CC | encode.SEITiming
	c := newTestCodec(t, cfg)
	// Flags outside the HEVC SEI set are masked away.
	if c.seiFlags&encode.SEITiming != 0 {
		t.Error("timing SEI not masked")
	}

	frame := &encode.Frame{
		Mastering: &encode.MasteringDisplay{HasPrimaries: true, HasLuminance: true,
			MaxLuminance: encode.Rational{Num: 1000, Den: 1},
			MinLuminance: encode.Rational{Num: 5, Den: 1000}},
		Light:  &encode.ContentLight{MaxCLL: 1000, MaxFALL: 400},
		CCData: []byte{0xfc, 0x94, 0x2c},
	}

	idr := &encode.Picture{Type: encode.PictureIDR, IsReference: true, Frame: frame}
	idr.DPB = []*encode.Picture{idr}
	if err := c.InitPictureParams(idr); err != nil {
		t.Fatal(err)
	}
	want := encode.SEIMasteringDisplay | encode.SEIContentLight | encode.SEIA53CC
	if c.seiNeeded != want {
		t.Errorf("IDR SEI: got %b, want %b", c.seiNeeded, want)
	}

	// Same side data on a P picture: captions only.
	p := &encode.Picture{
		DisplayOrder: 1, EncodeOrder: 1,
		Type: encode.PictureP, IsReference: true,
		Refs: [2][]*encode.Picture{{idr}, nil},
		Prev: idr, Frame: frame,
	}
	p.DPB = []*encode.Picture{idr, p}
	if err := c.InitPictureParams(p); err != nil {
		t.Fatal(err)
	}
	if c.seiNeeded != encode.SEIA53CC {
		t.Errorf("P picture SEI: got %b, want captions only", c.seiNeeded)
	}

	dst := make([]byte, 1024)
	n, err := c.WriteExtraHeaders(p, dst, len(dst)*8)
	if err != nil {
		t.Fatalf("WriteExtraHeaders: %v", err)
	}
	if n == 0 {
		t.Fatal("caption SEI missing")
	}
	// SEI prefix NAL header: type 39.
	if dst[4] != NALSEIPrefix<<1 || dst[5] != 0x01 {
		t.Errorf("SEI NAL header: got %02x %02x", dst[4], dst[5])
	}
}

func TestPCMFieldDerivation(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Caps = &encode.Caps{
		Features: &encode.HEVCFeatures{PCM: true, AMP: true},
		BlockSizes: &encode.HEVCBlockSizes{
			CTUSize: 64, MinCBSize: 8,
			MinTBLog2Minus2: 0, MaxTBLog2Minus2: 3,
			MaxTHDepthInter: 2, MaxTHDepthIntra: 2,
		},
	}
	c := newTestCodec(t, cfg)

	if !c.sps.PCMEnabledFlag {
		t.Fatal("PCM not enabled")
	}
	if c.sps.PCMSampleBitDepthLumaMinus1 != 7 {
		t.Errorf("pcm bit depth: got %d, want 7", c.sps.PCMSampleBitDepthLumaMinus1)
	}
	// Min CB 8 -> log2 3; CTU 64 clamps to the PCM maximum of 32.
	if c.sps.Log2MinPCMLumaCodingBlockSizeMinus3 != 0 {
		t.Errorf("pcm min size: got %d", c.sps.Log2MinPCMLumaCodingBlockSizeMinus3)
	}
	if c.sps.Log2DiffMaxMinPCMLumaCodingBlockSize != 2 {
		t.Errorf("pcm size range: got %d", c.sps.Log2DiffMaxMinPCMLumaCodingBlockSize)
	}
	// Block geometry flows into the coding block fields: 8..64.
	if c.sps.Log2MinLumaCodingBlockSizeMinus3 != 0 ||
		c.sps.Log2DiffMaxMinLumaCodingBlockSize != 3 {
		t.Errorf("cb sizes: got %d/%d",
			c.sps.Log2MinLumaCodingBlockSizeMinus3, c.sps.Log2DiffMaxMinLumaCodingBlockSize)
	}
}

func TestProfileValidation(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Profile = ProfileMain
	cfg.BitDepth = 10
	if _, err := New(cfg, nil); err == nil {
		t.Error("main profile at 10 bits must be rejected")
	}

	cfg = testConfig()
	cfg.Profile = ProfileMain10
	cfg.BitDepth = 10
	if _, err := New(cfg, nil); err != nil {
		t.Errorf("main 10 at 10 bits: %v", err)
	}

	cfg = testConfig()
	cfg.Tier = 7
	if _, err := New(cfg, nil); err == nil {
		t.Error("unknown tier must be rejected")
	}
}
