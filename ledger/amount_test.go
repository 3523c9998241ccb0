package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("123456789012345678901234567890")
	assert.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", a.String())

	_, err = ParseAmount("not a number")
	assert.Error(t, err)
}

func TestAmountArithmetic(t *testing.T) {
	a := NewAmount(600)
	b := NewAmount(500)

	assert.Equal(t, "1100", a.Add(b).String())
	assert.Equal(t, "100", a.Sub(b).String())
	assert.Equal(t, "-600", a.Neg().String())
	assert.Equal(t, "600", a.Neg().Abs().String())

	assert.Equal(t, 1, a.Cmp(b))
	assert.Equal(t, -1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(NewAmount(600)))

	assert.Equal(t, -1, NewAmount(-5).Sign())
	assert.True(t, NewAmount(0).IsZero())
}

func TestAmountJson(t *testing.T) {
	// amounts marshal as decimal strings
	bytes, err := json.Marshal(NewAmount(500))
	assert.NoError(t, err)
	assert.Equal(t, `"500"`, string(bytes))

	// and unmarshal from both strings and bare numbers
	var fromString Amount
	err = json.Unmarshal([]byte(`"100000000000000000000"`), &fromString)
	assert.NoError(t, err)
	assert.Equal(t, "100000000000000000000", fromString.String())

	var fromNumber Amount
	err = json.Unmarshal([]byte(`-42`), &fromNumber)
	assert.NoError(t, err)
	assert.Equal(t, "-42", fromNumber.String())

	var bad Amount
	err = json.Unmarshal([]byte(`"nope"`), &bad)
	assert.Error(t, err)
}
