package sei

import (
	"errors"
	"fmt"
)

// T.35 codes for ATSC A/53 caption carriage.
const (
	t35CountryCodeUS   = 181
	t35ProviderATSC    = 49
	ga94UserIdentifier = "GA94"
	ccDataTypeCode     = 3
)

var errBadCCData = errors.New("sei: cc_data length not a multiple of 3")

// UserDataRegistered is an itu_t_t35 SEI payload. Data holds everything
// after the country code byte.
type UserDataRegistered struct {
	CountryCode byte
	Data        []byte
}

func (u *UserDataRegistered) Type() int { return TypeUserDataRegistered }

func (u *UserDataRegistered) MarshalBody() ([]byte, error) {
	out := make([]byte, 0, 1+len(u.Data))
	out = append(out, u.CountryCode)
	return append(out, u.Data...), nil
}

// A53Captions wraps raw A/53 cc_data triplets in the ATSC1 user data
// structure (A/53 Part 4 §6.2.3.1): provider code, "GA94" identifier,
// user_data_type_code 3, cc_count with process_cc_data_flag, em_data,
// and a trailing marker byte. A nil input means no captions are present
// this frame; that is not an error, the SEI is simply omitted.
func A53Captions(ccData []byte) (*UserDataRegistered, error) {
	if len(ccData) == 0 {
		return nil, nil
	}
	if len(ccData)%3 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", errBadCCData, len(ccData))
	}
	ccCount := len(ccData) / 3
	if ccCount > 31 {
		return nil, fmt.Errorf("sei: cc_count %d exceeds 31", ccCount)
	}

	data := make([]byte, 0, 9+len(ccData)+1)
	data = append(data, 0, t35ProviderATSC)
	data = append(data, ga94UserIdentifier...)
	data = append(data, ccDataTypeCode)
	data = append(data, byte(ccCount)|0x40) // process_cc_data_flag set
	data = append(data, 0xff)               // em_data
	data = append(data, ccData...)
	data = append(data, 0xff) // marker_bits

	return &UserDataRegistered{CountryCode: t35CountryCodeUS, Data: data}, nil
}
