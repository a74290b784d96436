package stockcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToPlatform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"600000", "600000.SH"},
		{"510300", "510300.SH"},
		{"000001", "000001.SZ"},
		{"1", "000001.SZ"},
		{"300750", "300750.SZ"},
		{"783001", "783001.SZ"},
		{"600000.sh", "600000.SH"},
		{" 002594 ", "002594.SZ"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ToPlatform(tt.in), "input %q", tt.in)
	}
}

func TestIsValid(t *testing.T) {
	valid := []string{"600000.SH", "688981.SH", "510300.SH", "000001.SZ", "300750.SZ", "159915.SZ"}
	for _, code := range valid {
		assert.True(t, IsValid(code), code)
	}

	invalid := []string{"600000", "783001.SZ", "370001.SZ", "733001.SH", "000001.SH", "60000A.SH", "600000.HK", ""}
	for _, code := range invalid {
		assert.False(t, IsValid(code), code)
	}
}

func TestToBroker(t *testing.T) {
	assert.Equal(t, "600000", ToBroker("600000.SH"))
	assert.Equal(t, "000001", ToBroker("000001"))
}
