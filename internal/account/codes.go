package account

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generatePIN returns a 6-digit PIN from a cryptographically secure source.
// Uniqueness is enforced by the accounts table; callers retry on collision.
func generatePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// generateReferralCode returns a 6-character code. The alphabet drops the
// lookalike characters 0/O/1/I so codes survive being read out loud.
func generateReferralCode() (string, error) {
	out := make([]byte, 6)
	max := big.NewInt(int64(len(referralAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = referralAlphabet[n.Int64()]
	}
	return string(out), nil
}
