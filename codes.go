package authflow

import (
	"crypto/rand"
	"math/big"
)

// randomCodes is the default CodeGenerator. Signup codes come out as 5 or 6
// digits, the length chosen per request; recovery codes are always 6 digits.
type randomCodes struct{}

func (randomCodes) SignupCode() string {
	code := numericCode()
	if coinFlip() {
		return code[:5]
	}
	return code
}

func (randomCodes) RecoveryCode() string {
	return numericCode()
}

// numericCode returns six digits with a non-zero leading digit, so truncation
// never shortens the code.
func numericCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand only fails when the platform source is broken.
		panic("authflow: random source unavailable: " + err.Error())
	}
	return big.NewInt(0).Add(n, big.NewInt(100000)).String()
}

func coinFlip() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		panic("authflow: random source unavailable: " + err.Error())
	}
	return n.Int64() == 0
}
