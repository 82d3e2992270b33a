package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckedArithmetic(t *testing.T) {
	tests := []struct {
		name string
		fn   func(a, b int64) (int64, bool)
		a, b int64
		want int64
		ok   bool
	}{
		{"add", AddInt, 5, 3, 8, true},
		{"add max", AddInt, math.MaxInt64, 0, math.MaxInt64, true},
		{"add overflow", AddInt, math.MaxInt64, 1, 0, false},
		{"add underflow", AddInt, math.MinInt64, -1, 0, false},
		{"sub", SubInt, 5, 3, 2, true},
		{"sub to min", SubInt, -1, math.MaxInt64, math.MinInt64, true},
		{"sub overflow", SubInt, math.MaxInt64, -1, 0, false},
		{"sub underflow", SubInt, math.MinInt64, 1, 0, false},
		{"mul", MulInt, 4, -3, -12, true},
		{"mul zero", MulInt, math.MinInt64, 0, 0, true},
		{"mul overflow", MulInt, math.MaxInt64, 2, 0, false},
		{"mul min by -1", MulInt, math.MinInt64, -1, 0, false},
		{"mul large", MulInt, 1 << 32, 1 << 32, 0, false},
		{"div", DivInt, -7, 2, -3, true},
		{"div min by -1", DivInt, math.MinInt64, -1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.fn(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
