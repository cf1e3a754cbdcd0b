// Package qr recovers TOTP shared secrets from scanned enrollment QR codes.
package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"strings"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/pquerna/otp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnreadableImage        = errors.New("image does not contain a readable qr code")
	ErrMalformedEnrollmentURI = errors.New("qr payload is not an otpauth://totp enrollment uri")
	ErrSecretNotFound         = errors.New("enrollment uri has no secret parameter")
)

var decodeHints = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER: true,
}

// Readers keep per-decode state, so each caller borrows its own.
var readers = sync.Pool{
	New: func() any { return qrcode.NewQRCodeReader() },
}

// ExtractSecret decodes the QR code in imageBytes and returns the Base32
// secret of the TOTP enrollment URI it carries.
func ExtractSecret(imageBytes []byte) (string, error) {
	payload, err := Decode(imageBytes)
	if err != nil {
		return "", err
	}
	return SecretFromURI(payload)
}

// Decode returns the text payload of the QR code in imageBytes. PNG, JPEG,
// GIF, BMP and WebP input is accepted.
func Decode(imageBytes []byte) (string, error) {
	if len(imageBytes) == 0 {
		return "", fmt.Errorf("%w: image is empty", ErrUnreadableImage)
	}

	img, format, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return "", fmt.Errorf("%w: decode image: %v", ErrUnreadableImage, err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: binarize %s image: %v", ErrUnreadableImage, format, err)
	}

	reader := readers.Get().(gozxing.Reader)
	defer func() {
		reader.Reset()
		readers.Put(reader)
	}()

	result, err := reader.Decode(bmp, decodeHints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	return result.GetText(), nil
}

// ParseEnrollmentURI validates an otpauth://totp/ URI and returns it as an
// otp.Key, which also exposes issuer, account, period, digits and algorithm.
func ParseEnrollmentURI(uri string) (*otp.Key, error) {
	uri = strings.TrimSpace(uri)

	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnrollmentURI, err)
	}
	if !strings.EqualFold(parsed.Scheme, "otpauth") {
		return nil, fmt.Errorf("%w: scheme %q", ErrMalformedEnrollmentURI, parsed.Scheme)
	}
	if !strings.EqualFold(parsed.Host, "totp") {
		return nil, fmt.Errorf("%w: type %q", ErrMalformedEnrollmentURI, parsed.Host)
	}
	if parsed.RawQuery == "" {
		return nil, fmt.Errorf("%w: missing query", ErrMalformedEnrollmentURI)
	}

	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnrollmentURI, err)
	}
	if strings.TrimSpace(key.Secret()) == "" {
		return nil, ErrSecretNotFound
	}

	return key, nil
}

// SecretFromURI returns the URL-decoded secret parameter of an enrollment URI.
func SecretFromURI(uri string) (string, error) {
	key, err := ParseEnrollmentURI(uri)
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}
