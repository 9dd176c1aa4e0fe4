package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	OneTimeSecretBytes = 32
	RecoveryCodeBytes  = 4
)

// GenerateOneTimeSecret returns a random hex token and the SHA-256 digest to persist.
// The plaintext goes to the requester only; the digest is what the store keeps.
func GenerateOneTimeSecret() (plain, digest string, err error) {
	plain, err = randomHex(OneTimeSecretBytes)
	if err != nil {
		return "", "", err
	}
	return plain, HashSecret(plain), nil
}

// HashSecret returns the hex SHA-256 digest used to look up one-time secrets.
func HashSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// GenerateRecoveryCodes returns count distinct hex codes and their digests, index-aligned.
func GenerateRecoveryCodes(count int) (codes, digests []string, err error) {
	codes = make([]string, 0, count)
	digests = make([]string, 0, count)
	seen := make(map[string]struct{}, count)

	for len(codes) < count {
		code, err := randomHex(RecoveryCodeBytes)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
		digests = append(digests, HashSecret(code))
	}

	return codes, digests, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
