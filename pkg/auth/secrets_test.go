package auth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOneTimeSecret(t *testing.T) {
	plain, digest, err := GenerateOneTimeSecret()
	require.NoError(t, err)

	raw, err := hex.DecodeString(plain)
	require.NoError(t, err)
	assert.Len(t, raw, OneTimeSecretBytes)

	assert.Equal(t, HashSecret(plain), digest)
	assert.NotEqual(t, plain, digest)
	assert.Len(t, digest, 64)
}

func TestGenerateOneTimeSecret_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		plain, _, err := GenerateOneTimeSecret()
		require.NoError(t, err)
		assert.False(t, seen[plain])
		seen[plain] = true
	}
}

func TestGenerateRecoveryCodes(t *testing.T) {
	codes, digests, err := GenerateRecoveryCodes(10)
	require.NoError(t, err)

	require.Len(t, codes, 10)
	require.Len(t, digests, 10)

	distinct := make(map[string]bool)
	for i, code := range codes {
		assert.Len(t, code, RecoveryCodeBytes*2)
		assert.Equal(t, HashSecret(code), digests[i])
		distinct[code] = true

		for _, d := range digests {
			assert.NotEqual(t, code, d, "plaintext code must not appear among stored digests")
		}
	}
	assert.Len(t, distinct, 10)
}
