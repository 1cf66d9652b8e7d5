package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "namereg/pkg/domain-errors"
)

func TestParseAmount(t *testing.T) {
	t.Run("rejects values that are not whole non-negative wei", func(t *testing.T) {
		for _, input := range []string{"", "-1", "0.5", "1.000000000000000001", "ten", "0x10"} {
			_, err := ParseAmount(input)
			require.Error(t, err, input)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), input)
		}
	})

	t.Run("accepts integers beyond 64 bits", func(t *testing.T) {
		const max256 = "115792089237316195423570985008687907853269984665640564039457584007913129639935"
		a, err := ParseAmount(max256)
		require.NoError(t, err)
		assert.Equal(t, max256, a.String())
	})

	t.Run("trailing zero fraction is still whole", func(t *testing.T) {
		a, err := ParseAmount("5.0")
		require.NoError(t, err)
		assert.True(t, a.Equal(Wei(5)))
	})
}

func TestAmountArithmetic(t *testing.T) {
	fee := Ether("0.01")
	assert.Equal(t, "10000000000000000", fee.String())
	assert.Equal(t, "5000000000000000", fee.Half().String())
	assert.Equal(t, "1", Wei(3).Half().String())
	assert.Equal(t, "0.01", fee.EtherString())

	sum := fee.Add(fee.Half())
	assert.Equal(t, "15000000000000000", sum.String())

	parsed, err := ParseAmount("10000000000000000")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(fee))
	assert.False(t, parsed.Equal(fee.Half()))

	assert.True(t, ZeroAmount.IsZero())
	assert.Equal(t, "0", Amount{}.String())
}

func TestAmountText(t *testing.T) {
	var a Amount
	require.NoError(t, a.UnmarshalText([]byte("42")))
	text, err := a.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "42", string(text))

	assert.Error(t, a.UnmarshalText([]byte("-42")))
}

func TestAmountFromDecimal(t *testing.T) {
	a, err := AmountFromDecimal(Ether("0.01").Decimal())
	require.NoError(t, err)
	assert.True(t, a.Equal(Ether("0.01")))
}

func FuzzParseAmount(f *testing.F) {
	f.Add("0")
	f.Add("10000000000000000")
	f.Add("-1")
	f.Add("1.5")
	f.Add("1e18")

	f.Fuzz(func(t *testing.T, input string) {
		a, err := ParseAmount(input)
		if err != nil {
			return
		}
		again, err := ParseAmount(a.String())
		if err != nil {
			t.Fatalf("valid amount failed round-trip: %v", err)
		}
		if !again.Equal(a) {
			t.Fatal("round-trip changed amount")
		}
	})
}
