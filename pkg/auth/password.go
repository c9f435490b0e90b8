package auth

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost = 12

	enrollmentCodeLength = 20
)

// enrollmentAlphabet avoids ambiguous characters so operators can read codes
// off printed QR sheets.
const enrollmentAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// ComparePassword is the credential check. bcrypt comparison is intentionally
// slow; callers must run their cheap rejection paths first.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// GenerateEnrollmentCode produces the shared secret embedded in a QR Master
// sheet.
func GenerateEnrollmentCode() (string, error) {
	buf := make([]byte, enrollmentCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate enrollment code: %w", err)
	}
	for i, b := range buf {
		buf[i] = enrollmentAlphabet[int(b)%len(enrollmentAlphabet)]
	}
	return string(buf), nil
}
