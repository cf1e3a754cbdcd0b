package mbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/mail"
	"os"
	"strings"
	"time"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/mfa-probe/mfa-probe/model"
)

var (
	ErrEmptyPath = errors.New("mbox path is empty")
	ErrNoMatch   = errors.New("no matching message in mbox")
)

var wordDecoder = new(mime.WordDecoder)

// Read opens an mbox file and calls fn for each message in file order.
// Messages without a parsable header are skipped.
func Read(path string, fn func(model.Message) error) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return ErrEmptyPath
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	return read(file, path, fn)
}

// ReadBytes is Read over an in-memory mbox.
func ReadBytes(data []byte, fn func(model.Message) error) error {
	return read(bytes.NewReader(data), "", fn)
}

func read(r io.Reader, folder string, fn func(model.Message) error) error {
	reader := mboxlib.NewReader(r)
	for idx := 0; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		msg, err := parseMail(raw)
		if err != nil {
			slog.Debug("mbox message skipped", "index", idx, "err", err)
			continue
		}
		msg.UID = uint32(idx + 1)
		msg.Folder = folder
		msg.Raw = raw

		if err := fn(msg); err != nil {
			return err
		}
	}
}

func parseMail(raw []byte) (model.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return model.Message{}, err
	}

	id := strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), " <>")

	subject := msg.Header.Get("Subject")
	if decoded, err := wordDecoder.DecodeHeader(subject); err == nil {
		subject = decoded
	}

	var to []string
	if list, err := msg.Header.AddressList("To"); err == nil {
		for _, addr := range list {
			to = append(to, addr.Address)
		}
	}

	var receivedAt time.Time
	if date := msg.Header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			receivedAt = t
		}
	}

	return model.Message{
		ID:         id,
		Subject:    subject,
		To:         to,
		ReceivedAt: receivedAt,
	}, nil
}

// Matches applies the mail store's search rules: subject substring and
// recipient substring, both case-insensitive, and a received time not before
// since.
func Matches(msg model.Message, subject, recipient string, since time.Time) bool {
	if !containsFold(msg.Subject, subject) {
		return false
	}
	if recipient != "" {
		found := false
		for _, addr := range msg.To {
			if containsFold(addr, recipient) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !since.IsZero() && (msg.ReceivedAt.IsZero() || msg.ReceivedAt.Before(since)) {
		return false
	}
	return true
}

// FindLatest returns the most recently received message in the mbox at path
// that Matches the given criteria.
func FindLatest(path, subject, recipient string, since time.Time) (*model.Message, error) {
	var latest *model.Message
	err := Read(path, func(msg model.Message) error {
		if !Matches(msg, subject, recipient, since) {
			return nil
		}
		if latest == nil || !msg.ReceivedAt.Before(latest.ReceivedAt) {
			m := msg
			latest = &m
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: subject %q", ErrNoMatch, subject)
	}
	return latest, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
