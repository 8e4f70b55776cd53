package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	verificationCodeLength = 4
	referralCodeLength     = 6
	passwordLength         = 6

	digits           = "0123456789"
	referralAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

func generateVerificationCode() (string, error) {
	return randomString(digits, verificationCodeLength)
}

func generateReferralCode() (string, error) {
	return randomString(referralAlphabet, referralCodeLength)
}

func generatePassword() (string, error) {
	return randomString(passwordAlphabet, passwordLength)
}
