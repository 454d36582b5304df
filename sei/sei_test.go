package sei

import (
	"bytes"
	"testing"

	"github.com/zsiec/hwenc/bitstream"
	"github.com/zsiec/hwenc/encode"
)

func TestWriteMessageFraming(t *testing.T) {
	t.Parallel()
	var w bitstream.Writer
	p := &UserDataUnregistered{Data: []byte{0xAA, 0xBB}}
	if err := WriteMessage(&w, p); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got := w.Bytes()
	if got[0] != TypeUserDataUnregistered {
		t.Errorf("payload type: got %d", got[0])
	}
	if got[1] != 18 { // 16 UUID + 2 data
		t.Errorf("payload size: got %d, want 18", got[1])
	}
	if len(got) != 2+18 {
		t.Errorf("length: got %d, want 20", len(got))
	}
}

func TestWriteMessageSizeExtension(t *testing.T) {
	t.Parallel()
	// 300-byte body needs a 0xFF size extension byte: 255 + 45.
	var w bitstream.Writer
	p := &UserDataUnregistered{Data: make([]byte, 300-16)}
	if err := WriteMessage(&w, p); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got := w.Bytes()
	if got[1] != 0xFF || got[2] != 45 {
		t.Errorf("size bytes: got %02x %02x, want ff 2d", got[1], got[2])
	}
	if len(got) != 3+300 {
		t.Errorf("length: got %d, want 303", len(got))
	}
}

func TestWriteMessageTypeExtension(t *testing.T) {
	t.Parallel()
	var w bitstream.Writer
	p := &ContentLightLevel{MaxContentLightLevel: 1}
	if err := WriteMessage(&w, p); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	// Type 144 fits one byte, no extension.
	got := w.Bytes()
	if got[0] != 144 || got[1] != 4 {
		t.Errorf("header: got %02x %02x, want 90 04", got[0], got[1])
	}
}

func TestA53Captions(t *testing.T) {
	t.Parallel()
	cc := []byte{0xfc, 0x94, 0x2c, 0xfd, 0x00, 0x00}
	p, err := A53Captions(cc)
	if err != nil {
		t.Fatalf("A53Captions: %v", err)
	}
	if p.CountryCode != 181 {
		t.Errorf("country code: got %d, want 181", p.CountryCode)
	}
	body, err := p.MarshalBody()
	if err != nil {
		t.Fatalf("MarshalBody: %v", err)
	}
	// country(1) + provider(2) + GA94(4) + type(1) + count(1) + em(1) +
	// cc_data + marker(1)
	if want := 1 + 2 + 4 + 1 + 1 + 1 + len(cc) + 1; len(body) != want {
		t.Fatalf("body length: got %d, want %d", len(body), want)
	}
	if !bytes.Equal(body[3:7], []byte("GA94")) {
		t.Errorf("missing GA94 identifier: %x", body[3:7])
	}
	if body[8] != byte(len(cc)/3)|0x40 {
		t.Errorf("cc_count byte: got %02x", body[8])
	}
	if !bytes.Equal(body[10:10+len(cc)], cc) {
		t.Errorf("cc_data not preserved: %x", body[10:10+len(cc)])
	}
	if body[len(body)-1] != 0xFF {
		t.Errorf("marker byte: got %02x", body[len(body)-1])
	}
}

func TestA53CaptionsEdgeCases(t *testing.T) {
	t.Parallel()
	p, err := A53Captions(nil)
	if p != nil || err != nil {
		t.Errorf("nil input: got %v, %v", p, err)
	}
	if _, err := A53Captions([]byte{0x01, 0x02}); err == nil {
		t.Error("expected error for non-triplet length")
	}
	if _, err := A53Captions(make([]byte, 3*32)); err == nil {
		t.Error("expected error for cc_count over 31")
	}
}

func TestNewMasteringDisplay(t *testing.T) {
	t.Parallel()
	md := &encode.MasteringDisplay{
		Primaries: [3][2]encode.Rational{
			{{Num: 680, Den: 1000}, {Num: 320, Den: 1000}}, // R
			{{Num: 265, Den: 1000}, {Num: 690, Den: 1000}}, // G
			{{Num: 150, Den: 1000}, {Num: 60, Den: 1000}},  // B
		},
		WhitePoint:   [2]encode.Rational{{Num: 3127, Den: 10000}, {Num: 3290, Den: 10000}},
		MaxLuminance: encode.Rational{Num: 1000, Den: 1},
		MinLuminance: encode.Rational{Num: 5, Den: 1000},
		HasPrimaries: true,
		HasLuminance: true,
	}
	m := NewMasteringDisplay(md)
	if m == nil {
		t.Fatal("expected payload")
	}
	// Stored in GBR order: index 0 is the source green primary.
	if m.PrimariesX[0] != 13250 || m.PrimariesY[0] != 34500 {
		t.Errorf("green primary: got %d/%d", m.PrimariesX[0], m.PrimariesY[0])
	}
	if m.PrimariesX[2] != 34000 { // red lands last
		t.Errorf("red primary: got %d", m.PrimariesX[2])
	}
	if m.WhitePointX != 15635 || m.WhitePointY != 16450 {
		t.Errorf("white point: got %d/%d", m.WhitePointX, m.WhitePointY)
	}
	if m.MaxLuminance != 10000000 || m.MinLuminance != 50 {
		t.Errorf("luminance: got %d/%d", m.MaxLuminance, m.MinLuminance)
	}
}

func TestNewMasteringDisplayGating(t *testing.T) {
	t.Parallel()
	if NewMasteringDisplay(nil) != nil {
		t.Error("nil input must yield nil payload")
	}
	if NewMasteringDisplay(&encode.MasteringDisplay{HasPrimaries: true}) != nil {
		t.Error("missing luminance must yield nil payload")
	}
	if NewMasteringDisplay(&encode.MasteringDisplay{HasLuminance: true}) != nil {
		t.Error("missing primaries must yield nil payload")
	}
}

func TestNewMasteringDisplayMinClamp(t *testing.T) {
	t.Parallel()
	md := &encode.MasteringDisplay{
		MaxLuminance: encode.Rational{Num: 1, Den: 1},
		MinLuminance: encode.Rational{Num: 100, Den: 1},
		HasPrimaries: true,
		HasLuminance: true,
	}
	m := NewMasteringDisplay(md)
	if m.MinLuminance != m.MaxLuminance {
		t.Errorf("min %d not clamped to max %d", m.MinLuminance, m.MaxLuminance)
	}
}

func TestNewContentLight(t *testing.T) {
	t.Parallel()
	if NewContentLight(nil) != nil {
		t.Error("nil input must yield nil payload")
	}
	c := NewContentLight(&encode.ContentLight{MaxCLL: 70000, MaxFALL: -3})
	if c.MaxContentLightLevel != 0xffff || c.MaxPicAverageLightLevel != 0 {
		t.Errorf("clamping: got %d/%d", c.MaxContentLightLevel, c.MaxPicAverageLightLevel)
	}
}

func TestRecoveryPointBody(t *testing.T) {
	t.Parallel()
	r := &RecoveryPoint{RecoveryFrameCnt: 0, ExactMatchFlag: true}
	body, err := r.MarshalBody()
	if err != nil {
		t.Fatalf("MarshalBody: %v", err)
	}
	// ue(0)=1, exact=1, broken=0, idc=00, then stop bit + padding.
	if len(body) != 1 || body[0] != 0xC4 {
		t.Errorf("got %x, want c4", body)
	}
}
