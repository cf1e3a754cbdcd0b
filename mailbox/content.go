package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
	htmlcharset "golang.org/x/net/html/charset"
)

var ErrUnsupportedContent = errors.New("message has no text content")

const maxBodyBytes = 1 << 20

var htmlPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// TextContent returns the readable text of a raw RFC 5322 message. A
// text/plain part wins over text/html; HTML is reduced to its text.
func TextContent(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", ErrEmptyContent
	}

	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return "", fmt.Errorf("%w: parse message: %w", ErrUnsupportedContent, err)
	}

	var htmlBody string
	for {
		part, perr := reader.NextPart()
		if errors.Is(perr, io.EOF) {
			break
		}
		if perr != nil && (part == nil || !gomessage.IsUnknownCharset(perr)) {
			return "", fmt.Errorf("%w: read part: %w", ErrUnsupportedContent, perr)
		}
		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		mimeType, _, cerr := inline.ContentType()
		if cerr != nil || mimeType == "" {
			mimeType = "text/plain"
		}
		mimeType = strings.ToLower(mimeType)
		if mimeType != "text/plain" && mimeType != "text/html" {
			continue
		}

		body, rerr := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
		if rerr != nil {
			return "", fmt.Errorf("read %s body: %w", mimeType, rerr)
		}
		if mimeType == "text/plain" {
			return string(body), nil
		}
		if htmlBody == "" {
			htmlBody = string(body)
		}
	}

	if htmlBody != "" {
		return flattenHTML(htmlBody), nil
	}
	return "", ErrUnsupportedContent
}

func flattenHTML(body string) string {
	text := html.UnescapeString(htmlPolicy.Sanitize(body))
	return strings.Join(strings.Fields(text), " ")
}
