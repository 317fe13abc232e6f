package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanAmount(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "12,340", expected: "12340"},
		{input: " 1,234,567원 ", expected: "1234567"},
		{input: "-3,210", expected: "-3210"},
		{input: "", expected: ""},
	}

	for _, row := range table {
		require.Equal(t, row.expected, CleanAmount(row.input))
	}
}

func TestParenthesized(t *testing.T) {
	value, ok := Parenthesized("우리집 사용량 ( 245kWh )")
	require.True(t, ok)
	require.Equal(t, "245kWh", value)

	_, ok = Parenthesized("no parens here")
	require.False(t, ok)

	_, ok = Parenthesized("dangling (245")
	require.False(t, ok)
}

func TestNormalizeSpace(t *testing.T) {
	require.Equal(t, "전기 67%", NormalizeSpace("\n  전기 \t 67%  "))
}
