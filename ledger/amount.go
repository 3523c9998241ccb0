package ledger

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Amount is a signed arbitrary precision integer quantity of an asset.
// It travels over the wire and rests in the db as a decimal string so that
// values beyond 64 bits survive json encoding intact.
type Amount struct {
	i big.Int
}

func NewAmount(value int64) Amount {
	var a Amount
	a.i.SetInt64(value)
	return a
}

func ParseAmount(value string) (a Amount, err error) {
	_, ok := a.i.SetString(value, 10)
	if !ok {
		err = errors.Errorf("cannot parse amount %v", value)
		return
	}
	return a, nil
}

func (a Amount) Add(b Amount) Amount {
	var r Amount
	r.i.Add(&a.i, &b.i)
	return r
}

func (a Amount) Sub(b Amount) Amount {
	var r Amount
	r.i.Sub(&a.i, &b.i)
	return r
}

func (a Amount) Neg() Amount {
	var r Amount
	r.i.Neg(&a.i)
	return r
}

func (a Amount) Abs() Amount {
	var r Amount
	r.i.Abs(&a.i)
	return r
}

// Cmp returns -1, 0 or 1 depending on whether a is less than, equal to or
// greater than b.
func (a Amount) Cmp(b Amount) int {
	return a.i.Cmp(&b.i)
}

// Sign returns -1 for negative amounts, 0 for zero, 1 for positive.
func (a Amount) Sign() int {
	return a.i.Sign()
}

func (a Amount) IsZero() bool {
	return a.i.Sign() == 0
}

func (a Amount) String() string {
	return a.i.String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.i.String())), nil
}

// UnmarshalJSON accepts both a decimal string and a bare json number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)

	_, ok := a.i.SetString(s, 10)
	if !ok {
		return errors.Errorf("cannot unmarshal amount %v", string(data))
	}

	return nil
}
