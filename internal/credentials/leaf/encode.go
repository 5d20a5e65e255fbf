package leaf

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/iden3/go-iden3-crypto/constants"
)

// epoch1900Offset is the number of seconds between 1900-01-01 and
// 1970-01-01 UTC.
const epoch1900Offset = 2208988800

var (
	ErrDateOutOfRange = errors.New("date must be between 1900 and 2099")
	ErrInvalidDate    = errors.New("date must be YYYY-MM-DD")
)

// placeholder stands in for absent text. A zero-length buffer must never be
// hashed; the field value of the placeholder is 0.
var placeholder = []byte{0x00}

// TextBytes returns the bytes hashed for a text field.
func TextBytes(s string) []byte {
	if s == "" {
		return append([]byte(nil), placeholder...)
	}
	return []byte(s)
}

// TextField encodes text as the big-endian integer of its UTF-8 bytes,
// reduced into the scalar field.
func TextField(s string) *big.Int {
	return toField(new(big.Int).SetBytes(TextBytes(s)))
}

// UintField encodes an unsigned integer.
func UintField(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// DateAsInt returns seconds since 1900-01-01 UTC for a YYYY-MM-DD date.
// Absent dates encode as 0.
func DateAsInt(date string) (*big.Int, error) {
	if date == "" {
		return new(big.Int), nil
	}
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if y := t.Year(); y < 1900 || y > 2099 {
		return nil, fmt.Errorf("%w: %q", ErrDateOutOfRange, date)
	}
	return big.NewInt(t.Unix() + epoch1900Offset), nil
}

func toField(v *big.Int) *big.Int {
	if v.Cmp(constants.Q) >= 0 {
		return v.Mod(v, constants.Q)
	}
	return v
}
