package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Run("hashes and verifies", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery")
		require.NoError(t, err)
		assert.NotEqual(t, "correct horse battery", hash)

		assert.NoError(t, CheckPassword(hash, "correct horse battery"))
	})

	t.Run("rejects short passwords", func(t *testing.T) {
		_, err := HashPassword("short")
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	})

	t.Run("wrong password fails", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery")
		require.NoError(t, err)

		assert.ErrorIs(t, CheckPassword(hash, "wrong password"), ErrPasswordMismatch)
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		hash1, err := HashPassword("correct horse battery")
		require.NoError(t, err)
		hash2, err := HashPassword("correct horse battery")
		require.NoError(t, err)

		assert.NotEqual(t, hash1, hash2)
	})
}
