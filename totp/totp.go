// Package totp derives RFC 6238 time-based one-time passwords from the Base32
// shared secrets handed out during authenticator-app enrollment.
package totp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	libtotp "github.com/pquerna/otp/totp"
)

const (
	// Period is the length of one time step in seconds.
	Period = 30
	// Digits is the number of digits in a generated code.
	Digits = otp.DigitsSix
)

var (
	ErrInvalidSecret = errors.New("totp secret is empty or not valid base32")
	ErrInvalidKey    = errors.New("totp secret decodes to an empty key")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ComputeCode returns the 6-digit code for the 30-second step containing at.
// The result is deterministic for a given secret and step.
func ComputeCode(secret string, at time.Time) (string, error) {
	normalized, err := normalizeSecret(secret)
	if err != nil {
		return "", err
	}

	return generate(normalized, at, libtotp.ValidateOpts{
		Period:    Period,
		Digits:    Digits,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// Now is ComputeCode at the current wall-clock time.
func Now(secret string) (string, error) {
	return ComputeCode(secret, time.Now())
}

// ComputeCodeForKey generates a code using the period, digit count and
// algorithm advertised by an enrollment key. Missing parameters fall back to
// the RFC defaults.
func ComputeCodeForKey(key *otp.Key, at time.Time) (string, error) {
	if key == nil {
		return "", ErrInvalidSecret
	}
	normalized, err := normalizeSecret(key.Secret())
	if err != nil {
		return "", err
	}

	period := uint(key.Period())
	if period == 0 {
		period = Period
	}
	digits := key.Digits()
	if digits != otp.DigitsSix && digits != otp.DigitsEight {
		digits = Digits
	}

	return generate(normalized, at, libtotp.ValidateOpts{
		Period:    period,
		Digits:    digits,
		Algorithm: key.Algorithm(),
	})
}

func generate(secret string, at time.Time, opts libtotp.ValidateOpts) (string, error) {
	code, err := libtotp.GenerateCodeCustom(secret, at, opts)
	if err != nil {
		if errors.Is(err, otp.ErrValidateSecretInvalidBase32) {
			return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
		}
		return "", fmt.Errorf("generate totp code: %w", err)
	}
	return code, nil
}

// normalizeSecret upper-cases the secret, strips padding and checks that it
// decodes to a usable key.
func normalizeSecret(secret string) (string, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return "", ErrInvalidSecret
	}

	normalized := strings.TrimRight(strings.ToUpper(trimmed), "=")
	key, err := secretEncoding.DecodeString(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if len(key) == 0 {
		return "", ErrInvalidKey
	}

	return normalized, nil
}
