// Package fingerprint detects byte-identical captures so the pipeline can skip
// normalization and alignment when both vantage points received the same file.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// File returns the hex SHA-256 digest of the whole file.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint open: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("fingerprint read %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Equal reports whether a and b hold identical bytes. Files of different
// length are never equal and are not hashed.
func Equal(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, fmt.Errorf("fingerprint stat: %w", err)
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, fmt.Errorf("fingerprint stat: %w", err)
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}
	digestA, err := File(a)
	if err != nil {
		return false, err
	}
	digestB, err := File(b)
	if err != nil {
		return false, err
	}
	return digestA == digestB, nil
}
