package authflow

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SHA256Hasher digests the UTF-8 password to lowercase hex. It is the digest
// the original demo storage used, kept so existing credential records stay
// verifiable. New deployments should prefer BcryptHasher.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyPassword
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (h SHA256Hasher) Compare(password, hash string) error {
	digest, err := h.Hash(password)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(digest), []byte(hash)) == 0 {
		return ErrMismatchedHashAndPassword
	}
	return nil
}
