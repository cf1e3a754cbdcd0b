package mailbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrEmptyContent = errors.New("message content is empty")
	ErrCodeNotFound = errors.New("code not found in message content")
)

var (
	otpPattern  = regexp.MustCompile(`\b\d{6}\b`)
	uuidPattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-(?:[0-9a-f]{4}-){3}[0-9a-f]{12}`)
)

// ExtractOTP returns the first standalone 6-digit number in content.
func ExtractOTP(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	match := otpPattern.FindString(content)
	if match == "" {
		return "", fmt.Errorf("%w: no 6-digit otp", ErrCodeNotFound)
	}
	return match, nil
}

// ExtractUUID returns the first 8-4-4-4-12 hex token in content, exactly as
// written.
func ExtractUUID(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	match := uuidPattern.FindString(content)
	if match == "" {
		return "", fmt.Errorf("%w: no uuid token", ErrCodeNotFound)
	}
	return match, nil
}
