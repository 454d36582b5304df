package encode

// Rational is an exact ratio, used for framerates and sample aspect
// ratios.
type Rational struct {
	Num int
	Den int
}

// IsZero reports whether the ratio is unset.
func (r Rational) IsZero() bool { return r.Num == 0 || r.Den == 0 }

// Reduce returns r in lowest terms with both components clamped to max.
func (r Rational) Reduce(max int) Rational {
	a, b := r.Num, r.Den
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return r
	}
	out := Rational{r.Num / a, r.Den / a}
	for out.Num > max || out.Den > max {
		out.Num >>= 1
		out.Den >>= 1
	}
	return out
}

// Float returns the ratio as a float64.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// MasteringDisplay carries SMPTE ST 2086 mastering display metadata as
// attached to an input frame. Primaries are in R, G, B order; all
// chromaticities are absolute ratios.
type MasteringDisplay struct {
	Primaries    [3][2]Rational
	WhitePoint   [2]Rational
	MaxLuminance Rational
	MinLuminance Rational
	HasPrimaries bool
	HasLuminance bool
}

// ContentLight carries CTA-861.3 content light level metadata.
type ContentLight struct {
	MaxCLL  int
	MaxFALL int
}

// Frame is the per-picture input descriptor. Side data pointers are nil
// when the metadata is not attached; CCData holds raw A/53 cc_data
// triplets (3 bytes each) when closed captions are present.
type Frame struct {
	Mastering *MasteringDisplay
	Light     *ContentLight
	CCData    []byte
}
