package sei

import (
	"encoding/binary"

	"github.com/zsiec/hwenc/encode"
)

// Scaling denominators mandated for the mastering display colour volume
// payload (Rec. ITU-T H.265 §D.3.28): chromaticity coordinates in units
// of 0.00002, luminance in units of 0.0001 cd/m².
const (
	chromaDen = 50000
	lumaDen   = 10000
)

// MasteringDisplayColourVolume is SEI payload 137. Primaries are stored
// in the bitstream's GBR order.
type MasteringDisplayColourVolume struct {
	PrimariesX   [3]uint16
	PrimariesY   [3]uint16
	WhitePointX  uint16
	WhitePointY  uint16
	MaxLuminance uint32
	MinLuminance uint32
}

func (m *MasteringDisplayColourVolume) Type() int { return TypeMasteringDisplayColour }

func (m *MasteringDisplayColourVolume) MarshalBody() ([]byte, error) {
	out := make([]byte, 0, 24)
	for i := 0; i < 3; i++ {
		out = binary.BigEndian.AppendUint16(out, m.PrimariesX[i])
		out = binary.BigEndian.AppendUint16(out, m.PrimariesY[i])
	}
	out = binary.BigEndian.AppendUint16(out, m.WhitePointX)
	out = binary.BigEndian.AppendUint16(out, m.WhitePointY)
	out = binary.BigEndian.AppendUint32(out, m.MaxLuminance)
	out = binary.BigEndian.AppendUint32(out, m.MinLuminance)
	return out, nil
}

// NewMasteringDisplay converts frame metadata to the SEI payload. The
// input carries primaries in RGB order; the payload wants GBR. Returns
// nil if either primaries or luminance are missing, since the payload is
// only meaningful with both.
func NewMasteringDisplay(md *encode.MasteringDisplay) *MasteringDisplayColourVolume {
	if md == nil || !md.HasPrimaries || !md.HasLuminance {
		return nil
	}
	out := &MasteringDisplayColourVolume{}
	mapping := [3]int{1, 2, 0} // RGB -> GBR
	for i := 0; i < 3; i++ {
		j := mapping[i]
		out.PrimariesX[i] = scaleChroma(md.Primaries[j][0])
		out.PrimariesY[i] = scaleChroma(md.Primaries[j][1])
	}
	out.WhitePointX = scaleChroma(md.WhitePoint[0])
	out.WhitePointY = scaleChroma(md.WhitePoint[1])
	out.MaxLuminance = uint32(md.MaxLuminance.Float()*lumaDen + 0.5)
	minL := uint32(md.MinLuminance.Float()*lumaDen + 0.5)
	if minL > out.MaxLuminance {
		minL = out.MaxLuminance
	}
	out.MinLuminance = minL
	return out
}

func scaleChroma(v encode.Rational) uint16 {
	s := int64(v.Float()*chromaDen + 0.5)
	if s > chromaDen {
		s = chromaDen
	}
	if s < 0 {
		s = 0
	}
	return uint16(s)
}

// ContentLightLevel is SEI payload 144. Both values are clamped to the
// 16-bit field width.
type ContentLightLevel struct {
	MaxContentLightLevel    uint16
	MaxPicAverageLightLevel uint16
}

func (c *ContentLightLevel) Type() int { return TypeContentLightLevel }

func (c *ContentLightLevel) MarshalBody() ([]byte, error) {
	out := make([]byte, 0, 4)
	out = binary.BigEndian.AppendUint16(out, c.MaxContentLightLevel)
	out = binary.BigEndian.AppendUint16(out, c.MaxPicAverageLightLevel)
	return out, nil
}

// NewContentLight converts frame metadata to the SEI payload.
func NewContentLight(cl *encode.ContentLight) *ContentLightLevel {
	if cl == nil {
		return nil
	}
	return &ContentLightLevel{
		MaxContentLightLevel:    clamp16(cl.MaxCLL),
		MaxPicAverageLightLevel: clamp16(cl.MaxFALL),
	}
}

func clamp16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xffff {
		return 0xffff
	}
	return uint16(v)
}
