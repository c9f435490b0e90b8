package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := HashPassword("pass123")
	require.NoError(t, err)
	assert.NotEqual(t, "pass123", hash)

	assert.NoError(t, ComparePassword(hash, "pass123"))
	assert.Error(t, ComparePassword(hash, "wrong"))
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestGenerateEnrollmentCode(t *testing.T) {
	code, err := GenerateEnrollmentCode()
	require.NoError(t, err)
	assert.Len(t, code, enrollmentCodeLength)

	for _, c := range code {
		assert.True(t, strings.ContainsRune(enrollmentAlphabet, c), "unexpected character %q", c)
	}

	other, err := GenerateEnrollmentCode()
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}
