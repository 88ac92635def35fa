package contract

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEther(t *testing.T) {
	tests := []struct {
		wei  string
		want string
	}{
		{"0", "0.0"},
		{"1", "0.000000000000000001"},
		{"1000000000000000000", "1.0"},
		{"1500000000000000000", "1.5"},
		{"50000000000000000", "0.05"},
		{"123456789012345678901", "123.456789012345678901"},
		{"-2000000000000000000", "-2.0"},
	}

	for _, tt := range tests {
		wei, ok := new(big.Int).SetString(tt.wei, 10)
		require.True(t, ok)
		assert.Equal(t, tt.want, FormatEther(wei), tt.wei)
	}

	assert.Equal(t, "0.0", FormatEther(nil))
}

func TestParseEther(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.05", "50000000000000000"},
		{".5", "500000000000000000"},
		{"2.", "2000000000000000000"},
		{" 0.000000000000000001 ", "1"},
		{"0", "0"},
		{"0.0", "0"},
	}

	for _, tt := range tests {
		got, err := ParseEther(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

func TestParseEtherRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", " ", "-1", "1.2.3", "abc", "1e18", ".", "0.0000000000000000001", "+1"} {
		_, err := ParseEther(in)
		assert.Error(t, err, in)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, in := range []string{"1.0", "0.05", "123.456789012345678901", "0.000000000000000001"} {
		wei, err := ParseEther(in)
		require.NoError(t, err)
		assert.Equal(t, in, FormatEther(wei))
	}
}

func TestNewBalance(t *testing.T) {
	b := NewBalance(big.NewInt(1e18))
	assert.Equal(t, "1.0", b.Ether)
	assert.Equal(t, "1000000000000000000", b.WeiString())

	zero := NewBalance(nil)
	assert.Equal(t, "0", zero.WeiString())
	assert.Equal(t, "0.0", zero.Ether)
}
