package clob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTickPrice(t *testing.T) {
	assert.True(t, IsValidTickPrice(0.37, 0.01))
	assert.False(t, IsValidTickPrice(0.373, 0.01))
	assert.True(t, IsValidTickPrice(0.373, 0.001))
	assert.True(t, IsValidTickPrice(0.5, 0.1))
	assert.False(t, IsValidTickPrice(0.55, 0.1))
	assert.False(t, IsValidTickPrice(0.5, 0))
}

func TestValidateLimitPriceBounds(t *testing.T) {
	assert.NoError(t, ValidateLimitPrice(0.01, 0.01))
	assert.NoError(t, ValidateLimitPrice(0.99, 0.01))
	assert.NoError(t, ValidateLimitPrice(0.37, 0.01))

	assert.Error(t, ValidateLimitPrice(0.00, 0.01))
	assert.Error(t, ValidateLimitPrice(1.00, 0.01))
	assert.Error(t, ValidateLimitPrice(0.373, 0.01))
	assert.Error(t, ValidateLimitPrice(0.0005, 0.001))
	assert.Error(t, ValidateLimitPrice(0.5, 1))
}

func TestValidProbability(t *testing.T) {
	assert.True(t, ValidProbability(0.5))
	assert.False(t, ValidProbability(0))
	assert.False(t, ValidProbability(1))
	assert.False(t, ValidProbability(-0.1))
}
