package postgres

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumericArg(t *testing.T) {
	assert.Equal(t, "0", numericArg(nil))
	assert.Equal(t, "340282366920938463463374607431768211455",
		numericArg(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))))
}

func TestNumericValue(t *testing.T) {
	assert.Equal(t, "12345", numericValue("12345").String())
	// Malformed text never panics the read path.
	assert.Equal(t, "0", numericValue("not-a-number").String())
}
