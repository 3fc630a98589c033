package cashu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmountSplit(t *testing.T) {
	tests := []struct {
		amount   uint64
		expected []uint64
	}{
		{0, nil},
		{1, []uint64{1}},
		{13, []uint64{1, 4, 8}},
		{64, []uint64{64}},
		{1023, []uint64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512}},
	}

	for _, tt := range tests {
		got := AmountSplit(tt.amount)
		assert.Equal(t, tt.expected, got)

		var sum uint64
		for _, c := range got {
			sum += c
		}
		assert.Equal(t, tt.amount, sum)
	}
}
