package fips

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, "06", NormalizeState("6"))
	assert.Equal(t, "51", NormalizeState("51"))
	assert.Equal(t, "09", NormalizeState(" 9 "))
	assert.Equal(t, "", NormalizeState(""))
}

func TestNormalizeCounty(t *testing.T) {
	assert.Equal(t, "001", NormalizeCounty("1"))
	assert.Equal(t, "013", NormalizeCounty("13"))
	assert.Equal(t, "510", NormalizeCounty("510"))
	assert.Equal(t, "", NormalizeCounty("  "))
}

func TestCombine(t *testing.T) {
	assert.Equal(t, "09001", Combine("9", "1"))
	assert.Equal(t, "51059", Combine("51", "59"))
	assert.Equal(t, "", Combine("", "1"))
	assert.Equal(t, "", Combine("51", ""))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "01001", Format(1001, CountyDigits))
	assert.Equal(t, "51059", Format(51059, CountyDigits))
	assert.Equal(t, "09", Format(9, 2))
}

func TestParseCounty(t *testing.T) {
	tests := []struct {
		in   string
		num  int
		code string
	}{
		{"1001", 1001, "01001"},
		{"01001", 1001, "01001"},
		{"1001.0", 1001, "01001"},
		{" 9001 ", 9001, "09001"},
		{"51059", 51059, "51059"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, code, err := ParseCounty(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.num, n)
			assert.Equal(t, tt.code, code)
			assert.Len(t, code, CountyDigits)
		})
	}
}

func TestParseCounty_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1001.5", "-4", "0", "123456"} {
		_, _, err := ParseCounty(in)
		assert.Error(t, err, in)
	}
}

func TestStatePrefix(t *testing.T) {
	assert.Equal(t, "51", StatePrefix("51059"))
	assert.Equal(t, "", StatePrefix("5"))
}
