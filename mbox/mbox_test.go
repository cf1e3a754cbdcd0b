package mbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mfa-probe/mfa-probe/model"
)

const fixture = "testdata/messages.mbox"

func TestReadSkipsUnparsableMessages(t *testing.T) {
	var msgs []model.Message
	err := Read(fixture, func(m model.Message) error {
		msgs = append(msgs, m)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	var uids []uint32
	for _, m := range msgs {
		uids = append(uids, m.UID)
	}
	require.Equal(t, []uint32{1, 2, 3, 5}, uids)

	second := msgs[2]
	require.Equal(t, "second@example.com", second.ID)
	require.Equal(t, "Your verification code", second.Subject)
	require.Equal(t, []string{"PROBE@example.com"}, second.To)
	require.Equal(t, time.Date(2026, 10, 19, 10, 5, 0, 0, time.UTC), second.ReceivedAt.UTC())
	require.Equal(t, fixture, second.Folder)
	require.Contains(t, string(second.Raw), "Your code is 222222.")
}

func TestReadBytesMatchesRead(t *testing.T) {
	data, err := os.ReadFile(fixture)
	require.NoError(t, err)

	count := 0
	require.NoError(t, ReadBytes(data, func(m model.Message) error {
		count++
		require.Empty(t, m.Folder)
		return nil
	}))
	require.Equal(t, 4, count)
}

func TestReadStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	count := 0
	err := Read(fixture, func(model.Message) error {
		count++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, count)
}

func TestReadErrors(t *testing.T) {
	require.ErrorIs(t, Read(" ", func(model.Message) error { return nil }), ErrEmptyPath)

	err := Read(filepath.Join(t.TempDir(), "missing.mbox"), func(model.Message) error { return nil })
	require.ErrorContains(t, err, "open mbox")
}

func TestFindLatest(t *testing.T) {
	since := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	msg, err := FindLatest(fixture, "verification code", "probe@example.com", since)
	require.NoError(t, err)
	require.Equal(t, "second@example.com", msg.ID)

	msg, err = FindLatest(fixture, "Your verification code", "", since)
	require.NoError(t, err)
	require.Equal(t, "third@example.com", msg.ID)

	msg, err = FindLatest(fixture, "welcome", "probe@example.com", time.Time{})
	require.NoError(t, err)
	require.Equal(t, uint32(2), msg.UID)

	_, err = FindLatest(fixture, "Your verification code", "probe@example.com", since.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestMatches(t *testing.T) {
	at := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	msg := model.Message{Subject: "Your Verification Code", To: []string{"a@example.com", "probe@example.com"}, ReceivedAt: at}

	require.True(t, Matches(msg, "verification", "PROBE@example.com", at))
	require.False(t, Matches(msg, "reset", "probe@example.com", at))
	require.False(t, Matches(msg, "verification", "nobody@example.com", at))
	require.False(t, Matches(msg, "verification", "probe@example.com", at.Add(time.Second)))
	require.False(t, Matches(model.Message{Subject: "Your Verification Code"}, "verification", "", at))
}
